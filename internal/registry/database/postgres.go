package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// PostgreSQL is an implementation of the Database interface using PostgreSQL
type PostgreSQL struct {
	pool       *pgxpool.Pool
	logger     *zap.Logger
	maxRetries uint64
}

var _ Database = (*PostgreSQL)(nil)

// Executor is an interface for executing queries (satisfied by both pgx.Tx and pgxpool.Pool)
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// getExecutor returns the appropriate executor (transaction or pool)
func (db *PostgreSQL) getExecutor(tx pgx.Tx) Executor {
	if tx != nil {
		return tx
	}
	return db.pool
}

// PostgresOptions tunes the pool and retry behavior.
type PostgresOptions struct {
	MaxConns   int32
	MaxRetries uint64
	Logger     *zap.Logger
}

// NewPostgreSQL creates a new instance of the PostgreSQL database
func NewPostgreSQL(ctx context.Context, connectionURI string, opts PostgresOptions) (*PostgreSQL, error) {
	config, err := pgxpool.ParseConfig(connectionURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	config.MaxConns = 30
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	config.MinConns = 2
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = 2 * time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	db := &PostgreSQL{pool: pool, logger: logger, maxRetries: opts.MaxRetries}

	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to acquire connection for migrations: %w", err)
	}
	defer conn.Release()

	if err := migrate(ctx, conn.Conn()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return db, nil
}

// isTransient reports whether err is a connection-level failure that is safe
// to retry. Constraint violations and other server errors are terminal.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 57P0x: operator intervention
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// retry runs op with bounded exponential backoff, retrying transient errors only.
func (db *PostgreSQL) retry(ctx context.Context, name string, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, db.maxRetries), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		db.logger.Warn("transient database error",
			zap.String("operation", name), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, name, err)
	}
	return err
}

func mapPgError(err error, action string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// InTransaction executes a function within a database transaction
func (db *PostgreSQL) InTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if rbErr := tx.Rollback(rollbackCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.logger.Error("failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *PostgreSQL) CreateServer(ctx context.Context, rec *models.ServerRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if rec == nil || rec.ID == "" || rec.Name == "" {
		return ErrInvalidInput
	}

	valueJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal server record: %w", err)
	}

	query := `
		INSERT INTO servers (id, name, source, external_id, description, category, tags, verified,
			claimed_by, publisher_id, trust_score, revision, created_at, updated_at, value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	return db.retry(ctx, "create server", func() error {
		_, err := db.pool.Exec(ctx, query, rec.ID, rec.Name, string(rec.Source), rec.ExternalID,
			rec.Description, rec.Metadata.Category, tagsOrEmpty(rec.Metadata.Tags), rec.Metadata.Verified,
			nullable(rec.ClaimedBy), nullable(rec.PublisherID), rec.Metadata.TrustScore, rec.Revision,
			rec.CreatedAt, rec.UpdatedAt, valueJSON)
		if err != nil {
			return mapPgError(err, "insert server")
		}
		return nil
	})
}

func (db *PostgreSQL) getServer(ctx context.Context, where string, arg any) (*models.ServerRecord, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var rec *models.ServerRecord
	err := db.retry(ctx, "get server", func() error {
		var err error
		rec, err = scanServer(db.pool.QueryRow(ctx, "SELECT value, revision FROM servers WHERE "+where, arg))
		return err
	})
	return rec, err
}

func (db *PostgreSQL) GetServerByID(ctx context.Context, id string) (*models.ServerRecord, error) {
	return db.getServer(ctx, "id = $1", id)
}

func (db *PostgreSQL) GetServerByName(ctx context.Context, name string) (*models.ServerRecord, error) {
	return db.getServer(ctx, "name = $1", name)
}

func (db *PostgreSQL) GetServersByIDs(ctx context.Context, ids []string) ([]*models.ServerRecord, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*models.ServerRecord
	err := db.retry(ctx, "get servers by id", func() error {
		rows, err := db.pool.Query(ctx, "SELECT value, revision FROM servers WHERE id = ANY($1)", ids)
		if err != nil {
			return fmt.Errorf("failed to query servers: %w", err)
		}
		out, err = collectServers(rows)
		return err
	})
	return out, err
}

// UpdateServer locks the row, applies fn and writes the result in one transaction.
func (db *PostgreSQL) UpdateServer(ctx context.Context, id string, fn UpdateFunc) (*models.ServerRecord, error) {
	var updated *models.ServerRecord
	err := db.retry(ctx, "update server", func() error {
		return db.InTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
			current, err := scanServer(tx.QueryRow(ctx,
				"SELECT value, revision FROM servers WHERE id = $1 FOR UPDATE", id))
			if err != nil {
				return err
			}

			next := current.Clone()
			if err := fn(next); err != nil {
				return err
			}
			next.ID = current.ID
			next.Name = current.Name
			next.Source = current.Source
			next.ExternalID = current.ExternalID
			next.Revision = current.Revision + 1

			valueJSON, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to marshal server record: %w", err)
			}

			_, err = db.getExecutor(tx).Exec(ctx, `
				UPDATE servers
				SET description = $2, category = $3, tags = $4, verified = $5, claimed_by = $6,
					publisher_id = $7, trust_score = $8, revision = $9, updated_at = $10, value = $11
				WHERE id = $1
			`, next.ID, next.Description, next.Metadata.Category, tagsOrEmpty(next.Metadata.Tags),
				next.Metadata.Verified, nullable(next.ClaimedBy), nullable(next.PublisherID),
				next.Metadata.TrustScore, next.Revision, next.UpdatedAt, valueJSON)
			if err != nil {
				return mapPgError(err, "update server")
			}
			updated = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (db *PostgreSQL) DeleteServer(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return db.retry(ctx, "delete server", func() error {
		result, err := db.pool.Exec(ctx, "DELETE FROM servers WHERE id = $1", id)
		if err != nil {
			return fmt.Errorf("failed to delete server: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// whereClause renders filter as SQL conditions starting at placeholder argIndex.
func whereClause(filter *ServerFilter, argIndex int) ([]string, []any) {
	var conditions []string
	var args []any
	if filter == nil {
		return nil, nil
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+escapeLike(*filter.Query)+"%")
		argIndex++
	}
	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, *filter.Category)
		argIndex++
	}
	if filter.Verified != nil {
		conditions = append(conditions, fmt.Sprintf("verified = $%d", argIndex))
		args = append(args, *filter.Verified)
		argIndex++
	}
	if filter.Source != nil {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argIndex))
		args = append(args, string(*filter.Source))
		argIndex++
	}
	if len(filter.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags && $%d", argIndex))
		args = append(args, filter.Tags)
		argIndex++
	}
	if filter.Claimed != nil {
		if *filter.Claimed {
			conditions = append(conditions, "claimed_by IS NOT NULL")
		} else {
			conditions = append(conditions, "claimed_by IS NULL")
		}
	}
	return conditions, args
}

func (db *PostgreSQL) ListServers(ctx context.Context, filter *ServerFilter, cursor string, limit int) ([]*models.ServerRecord, string, error) {
	if limit <= 0 {
		limit = 10
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	conditions, args := whereClause(filter, 1)
	if cursor != "" {
		conditions = append(conditions, fmt.Sprintf("name > $%d", len(args)+1))
		args = append(args, cursor)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf("SELECT value, revision FROM servers %s ORDER BY name LIMIT $%d", where, len(args)+1)
	args = append(args, limit)

	var results []*models.ServerRecord
	err := db.retry(ctx, "list servers", func() error {
		rows, err := db.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query servers: %w", err)
		}
		results, err = collectServers(rows)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(results) > 0 && len(results) >= limit {
		nextCursor = results[len(results)-1].Name
	}
	return results, nextCursor, nil
}

func (db *PostgreSQL) CountServers(ctx context.Context, filter *ServerFilter) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	conditions, args := whereClause(filter, 1)
	query := "SELECT COUNT(*) FROM servers"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	var n int64
	err := db.retry(ctx, "count servers", func() error {
		if err := db.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
			return fmt.Errorf("failed to count servers: %w", err)
		}
		return nil
	})
	return n, err
}

func (db *PostgreSQL) CreatePublisher(ctx context.Context, p *models.Publisher) error {
	if p == nil || strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidInput
	}
	return db.retry(ctx, "create publisher", func() error {
		_, err := db.pool.Exec(ctx,
			"INSERT INTO publishers (id, name, verified, created_at) VALUES ($1, $2, $3, $4)",
			p.ID, p.Name, p.Verified, p.CreatedAt)
		if err != nil {
			return mapPgError(err, "create publisher")
		}
		return nil
	})
}

func (db *PostgreSQL) GetPublisher(ctx context.Context, id string) (*models.Publisher, error) {
	var p models.Publisher
	err := db.retry(ctx, "get publisher", func() error {
		err := db.pool.QueryRow(ctx,
			"SELECT id, name, verified, created_at FROM publishers WHERE id = $1", id,
		).Scan(&p.ID, &p.Name, &p.Verified, &p.CreatedAt)
		if err != nil {
			return mapPgError(err, "get publisher")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *PostgreSQL) Ping(ctx context.Context) error {
	return db.retry(ctx, "ping", func() error {
		return db.pool.Ping(ctx)
	})
}

// Close closes the database connection
func (db *PostgreSQL) Close() error {
	db.pool.Close()
	return nil
}

func scanServer(row pgx.Row) (*models.ServerRecord, error) {
	var valueJSON []byte
	var revision int64
	if err := row.Scan(&valueJSON, &revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan server row: %w", err)
	}
	var rec models.ServerRecord
	if err := json.Unmarshal(valueJSON, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal server record: %w", err)
	}
	rec.Revision = revision
	return &rec, nil
}

func collectServers(rows pgx.Rows) ([]*models.ServerRecord, error) {
	defer rows.Close()
	var out []*models.ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
