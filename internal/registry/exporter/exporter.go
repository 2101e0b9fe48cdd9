// Package exporter writes the record store out as a seed file the importer
// can load.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/importer"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

const defaultPageSize = 100

// Lister is the part of the record store the exporter reads.
type Lister interface {
	ListServers(ctx context.Context, filter *database.ServerFilter, cursor string, limit int) ([]*models.ServerRecord, string, error)
}

// Service handles exporting registry data into seed files.
type Service struct {
	store    Lister
	pageSize int
}

// NewService creates a new exporter service.
func NewService(store Lister) *Service {
	return &Service{
		store:    store,
		pageSize: defaultPageSize,
	}
}

// SetPageSize allows tests to override the pagination size used when reading
// the record store.
func (s *Service) SetPageSize(size int) {
	if size > 0 {
		s.pageSize = size
	}
}

// ExportToPath writes every record to outputPath as a JSON array of
// importer.SeedServer and returns how many were written.
func (s *Service) ExportToPath(ctx context.Context, outputPath string) (int, error) {
	if s.store == nil {
		return 0, fmt.Errorf("record store is not initialized")
	}

	servers, err := s.collectServers(ctx)
	if err != nil {
		return 0, err
	}

	if err := ensureDir(outputPath); err != nil {
		return 0, err
	}

	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal servers for export: %w", err)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write export file %s: %w", outputPath, err)
	}

	return len(servers), nil
}

func (s *Service) collectServers(ctx context.Context) ([]*importer.SeedServer, error) {
	var (
		allServers = []*importer.SeedServer{}
		cursor     string
	)

	for {
		records, nextCursor, err := s.store.ListServers(ctx, nil, cursor, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list servers: %w", err)
		}

		for _, record := range records {
			if record == nil {
				continue
			}
			allServers = append(allServers, importer.FromRecord(record))
		}

		if nextCursor == "" {
			break
		}

		cursor = nextCursor
	}

	return allServers, nil
}

func ensureDir(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if dir == "" || dir == "." {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	return nil
}
