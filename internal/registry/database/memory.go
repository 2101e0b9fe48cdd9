package database

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// Memory is an in-process Database used for development and tests.
type Memory struct {
	mu         sync.RWMutex
	servers    map[string]*models.ServerRecord
	byName     map[string]string
	byExternal map[string]string
	publishers map[string]*models.Publisher
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		servers:    make(map[string]*models.ServerRecord),
		byName:     make(map[string]string),
		byExternal: make(map[string]string),
		publishers: make(map[string]*models.Publisher),
	}
}

var _ Database = (*Memory)(nil)

func externalKey(source models.Source, externalID string) string {
	return string(source) + "\x00" + externalID
}

func (m *Memory) CreateServer(ctx context.Context, rec *models.ServerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" || rec.Name == "" {
		return ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.servers[rec.ID]; ok {
		return ErrAlreadyExists
	}
	if _, ok := m.byName[rec.Name]; ok {
		return ErrAlreadyExists
	}
	ext := externalKey(rec.Source, rec.ExternalID)
	if _, ok := m.byExternal[ext]; ok {
		return ErrAlreadyExists
	}

	m.servers[rec.ID] = rec.Clone()
	m.byName[rec.Name] = rec.ID
	m.byExternal[ext] = rec.ID
	return nil
}

func (m *Memory) GetServerByID(ctx context.Context, id string) (*models.ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.servers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) GetServerByName(ctx context.Context, name string) (*models.ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return m.servers[id].Clone(), nil
}

func (m *Memory) GetServersByIDs(ctx context.Context, ids []string) ([]*models.ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ServerRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.servers[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *Memory) UpdateServer(ctx context.Context, id string, fn UpdateFunc) (*models.ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.servers[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	// identity is immutable
	next.ID = current.ID
	next.Name = current.Name
	next.Source = current.Source
	next.ExternalID = current.ExternalID
	next.Revision = current.Revision + 1

	m.servers[id] = next
	return next.Clone(), nil
}

func (m *Memory) DeleteServer(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.servers[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.servers, id)
	delete(m.byName, rec.Name)
	delete(m.byExternal, externalKey(rec.Source, rec.ExternalID))
	return nil
}

func (m *Memory) ListServers(ctx context.Context, filter *ServerFilter, cursor string, limit int) ([]*models.ServerRecord, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		if name > cursor {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []*models.ServerRecord
	for _, name := range names {
		rec := m.servers[m.byName[name]]
		if !filter.matches(rec) {
			continue
		}
		out = append(out, rec.Clone())
		if len(out) == limit {
			break
		}
	}

	next := ""
	if len(out) == limit {
		next = out[len(out)-1].Name
	}
	return out, next, nil
}

func (m *Memory) CountServers(ctx context.Context, filter *ServerFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.servers {
		if filter.matches(rec) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreatePublisher(ctx context.Context, p *models.Publisher) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.ID == "" || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.publishers[p.ID]; ok {
		return ErrAlreadyExists
	}
	cp := *p
	m.publishers[p.ID] = &cp
	return nil
}

func (m *Memory) GetPublisher(ctx context.Context, id string) (*models.Publisher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.publishers[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}

func (f *ServerFilter) matches(rec *models.ServerRecord) bool {
	if f == nil {
		return true
	}
	if f.Query != nil && *f.Query != "" {
		q := strings.ToLower(*f.Query)
		if !strings.Contains(strings.ToLower(rec.Name), q) &&
			!strings.Contains(strings.ToLower(rec.Description), q) {
			return false
		}
	}
	if f.Category != nil && rec.Metadata.Category != *f.Category {
		return false
	}
	if f.Verified != nil && rec.Metadata.Verified != *f.Verified {
		return false
	}
	if f.Source != nil && rec.Source != *f.Source {
		return false
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, func(t string) bool {
		return slices.Contains(rec.Metadata.Tags, t)
	}) {
		return false
	}
	if f.Claimed != nil && rec.IsClaimed() != *f.Claimed {
		return false
	}
	return true
}
