package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/domain/content"
	"github.com/subjectboard/server/internal/metrics"
	"github.com/subjectboard/server/internal/storage"
)

var _ storage.Repository = (*Store)(nil)

// Store implements storage.Repository on an embedded SQLite file.
type Store struct {
	db      *sql.DB
	content *ContentRepository
	audit   *AuditRepository
}

func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite repository: db is nil")
	}
	return &Store{
		db:      db,
		content: &ContentRepository{db: db, q: db},
		audit:   &AuditRepository{db: db},
	}, nil
}

func (s *Store) Content() content.Repository { return s.content }

func (s *Store) Audit() audit.Store { return s.audit }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() { _ = s.db.Close() }

func observe(operation string, start time.Time, err error) {
	if errors.Is(err, content.ErrGroupNotFound) || errors.Is(err, content.ErrContentNotFound) ||
		errors.Is(err, content.ErrIdempotencyKeyNotFound) {
		err = nil
	}
	metrics.RecordQuery(operation, start, err)
}
