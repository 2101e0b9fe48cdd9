package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentregistry-dev/mcpindex/internal/registry/cache"
	"github.com/agentregistry-dev/mcpindex/internal/registry/database"
	"github.com/agentregistry-dev/mcpindex/internal/registry/errs"
	"github.com/agentregistry-dev/mcpindex/internal/registry/logging"
	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

const maxReportedFailures = 100

// ReindexOptions configures a reindex operation.
type ReindexOptions struct {
	BatchSize int  `json:"batch_size,omitempty" minimum:"0" maximum:"1000"`
	Workers   int  `json:"workers,omitempty" minimum:"0" maximum:"64"`
	DryRun    bool `json:"dry_run,omitempty" doc:"Compute scores without writing either store"`
}

// ReindexResult tracks reindex progress.
type ReindexResult struct {
	Processed int      `json:"processed"`
	Rescored  int      `json:"rescored"`
	Indexed   int      `json:"indexed"`
	Pruned    int      `json:"pruned"`
	Failures  int      `json:"failures"`
	Failed    []string `json:"failed,omitempty"`
}

// ReindexProgressFunc is called with progress updates after every batch.
type ReindexProgressFunc func(stats ReindexResult)

// Reindex re-scores every record from the record store, commits scores that
// drifted, and upserts a fresh projection of each record. Indexed documents
// whose record no longer exists are then removed and every cached query is
// dropped. A record that fails is counted and skipped.
func (s *registryServiceImpl) Reindex(ctx context.Context, opts ReindexOptions, onProgress ReindexProgressFunc) (*ReindexResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = s.workers
	}
	if err := s.backend.EnsureIndex(ctx); err != nil {
		return nil, errs.Unavailable(StageProjected, err, "failed to prepare search index")
	}

	var (
		mu     sync.Mutex
		stats  ReindexResult
		cursor string
	)
	record := func(id string, rescored, indexed bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		stats.Processed++
		if rescored {
			stats.Rescored++
		}
		if indexed {
			stats.Indexed++
		}
		if err != nil {
			stats.Failures++
			if len(stats.Failed) < maxReportedFailures {
				stats.Failed = append(stats.Failed, id)
			}
			logging.L(ctx, s.logger).Warn("failed to reindex server", zap.String("server_id", id), zap.Error(err))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return &stats, err
		}

		servers, nextCursor, err := s.db.ListServers(ctx, nil, cursor, opts.BatchSize)
		if err != nil {
			return &stats, stageErr("", err)
		}
		if len(servers) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for _, rec := range servers {
			g.Go(func() error {
				rescored, indexed, err := s.reindexOne(gctx, rec, opts.DryRun)
				record(rec.ID, rescored, indexed, err)
				// per-record failures never abort the batch
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return &stats, err
		}

		if onProgress != nil {
			mu.Lock()
			snapshot := stats
			mu.Unlock()
			onProgress(snapshot)
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	if err := s.pruneOrphans(ctx, opts, &stats); err != nil {
		return &stats, err
	}
	if !opts.DryRun {
		for _, ns := range cachedQueryNamespaces {
			s.cache.InvalidatePrefix(ctx, ns+":")
		}
	}

	logging.L(ctx, s.logger).Info("reindex completed",
		zap.Int("processed", stats.Processed), zap.Int("rescored", stats.Rescored),
		zap.Int("indexed", stats.Indexed), zap.Int("pruned", stats.Pruned),
		zap.Int("failures", stats.Failures))
	return &stats, nil
}

// cachedQueryNamespaces are flushed once a reindex has rewritten the index.
var cachedQueryNamespaces = append([]string{cache.NamespaceSearch, cache.NamespaceSuggest}, discoveryNamespaces...)

// pruneOrphans walks the index in id order and removes documents whose record
// is gone from the store.
func (s *registryServiceImpl) pruneOrphans(ctx context.Context, opts ReindexOptions, stats *ReindexResult) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := s.backend.IDs(ctx, after, opts.BatchSize)
		if err != nil {
			return errs.Unavailable(StageProjected, err, "failed to list indexed documents")
		}
		for _, id := range ids {
			_, err := s.db.GetServerByID(ctx, id)
			if !errors.Is(err, database.ErrNotFound) {
				continue
			}
			if !opts.DryRun {
				if err := s.project(ctx, id, nil); err != nil {
					stats.Failures++
					if len(stats.Failed) < maxReportedFailures {
						stats.Failed = append(stats.Failed, id)
					}
					logging.L(ctx, s.logger).Warn("failed to remove orphan document", zap.String("server_id", id), zap.Error(err))
					continue
				}
			}
			stats.Pruned++
		}
		if len(ids) < opts.BatchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

func (s *registryServiceImpl) reindexOne(ctx context.Context, rec *models.ServerRecord, dryRun bool) (rescored, indexed bool, err error) {
	now := s.now()
	fresh := rec.Clone()
	s.rescore(fresh, now)
	drifted := fresh.Score != rec.Score || fresh.Metadata.TrustScore != rec.Metadata.TrustScore
	if dryRun {
		return drifted, false, nil
	}

	if drifted {
		// scores are only ever committed through the store's atomic update
		rec, err = s.db.UpdateServer(ctx, rec.ID, func(r *models.ServerRecord) error {
			s.rescore(r, now)
			return nil
		})
		if err != nil {
			return false, false, fmt.Errorf("rescore: %w", err)
		}
		s.invalidateRecord(ctx, rec.ID)
	}

	// projection re-reads the record so a write that raced the listing wins
	if err := s.project(ctx, rec.ID, rec); err != nil {
		return drifted, false, fmt.Errorf("project: %w", err)
	}
	return drifted, true, nil
}
