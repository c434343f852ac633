// Package storage defines the persistence boundary shared by the Postgres and
// SQLite backends.
package storage

import (
	"context"

	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/domain/content"
)

// Repository groups data access by domain.
type Repository interface {
	Content() content.Repository
	Audit() audit.Store

	Ping(ctx context.Context) error
	Close()
}
