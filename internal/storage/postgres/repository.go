package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/domain/content"
	"github.com/subjectboard/server/internal/metrics"
	"github.com/subjectboard/server/internal/storage"
)

var _ storage.Repository = (*Store)(nil)

// Store implements storage.Repository with a PostgreSQL backend.
type Store struct {
	pool    *pgxpool.Pool
	content *ContentRepository
	audit   *AuditRepository
}

// Connect opens a pool and verifies the server is reachable.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Store{
		pool:    pool,
		content: &ContentRepository{pool: pool},
		audit:   &AuditRepository{pool: pool},
	}, nil
}

func (s *Store) Content() content.Repository { return s.content }

func (s *Store) Audit() audit.Store { return s.audit }

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// isForeignKeyViolation reports a missing referenced row (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// observe records query latency. Not-found results are outcomes, not errors.
func observe(operation string, start time.Time, err error) {
	if errors.Is(err, content.ErrGroupNotFound) || errors.Is(err, content.ErrContentNotFound) ||
		errors.Is(err, content.ErrIdempotencyKeyNotFound) {
		err = nil
	}
	metrics.RecordQuery(operation, start, err)
}

func nullIfEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
