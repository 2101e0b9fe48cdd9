// Package database holds the authoritative record store.
package database

import (
	"context"
	"errors"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// Common database errors
var (
	ErrNotFound         = errors.New("record not found")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidVersion   = errors.New("invalid version: cannot publish duplicate version")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrRevisionMismatch = errors.New("record revision does not match expected revision")
	ErrUnavailable      = errors.New("database unavailable")
)

// ServerFilter narrows ListServers and CountServers. Nil fields are unconstrained.
type ServerFilter struct {
	Query    *string // case-insensitive substring of name or description
	Category *string
	Verified *bool
	Source   *models.Source
	Tags     []string // any of
	Claimed  *bool
}

// UpdateFunc mutates a record in place. Returning an error aborts the update
// without writing anything.
type UpdateFunc func(rec *models.ServerRecord) error

// Database is the record store. Every method is safe for concurrent use.
//
// UpdateServer performs an atomic read-modify-write: the record is locked,
// handed to fn, and written back with its revision incremented by one.
type Database interface {
	CreateServer(ctx context.Context, rec *models.ServerRecord) error
	GetServerByID(ctx context.Context, id string) (*models.ServerRecord, error)
	GetServerByName(ctx context.Context, name string) (*models.ServerRecord, error)
	// GetServersByIDs returns the records that exist, in no particular order.
	GetServersByIDs(ctx context.Context, ids []string) ([]*models.ServerRecord, error)
	UpdateServer(ctx context.Context, id string, fn UpdateFunc) (*models.ServerRecord, error)
	DeleteServer(ctx context.Context, id string) error
	// ListServers pages through records ordered by name. The returned cursor is
	// empty once the last page has been read.
	ListServers(ctx context.Context, filter *ServerFilter, cursor string, limit int) ([]*models.ServerRecord, string, error)
	CountServers(ctx context.Context, filter *ServerFilter) (int64, error)

	CreatePublisher(ctx context.Context, p *models.Publisher) error
	GetPublisher(ctx context.Context, id string) (*models.Publisher, error)

	Ping(ctx context.Context) error
	Close() error
}
