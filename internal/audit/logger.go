package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/subjectboard/server/internal/domain/ids"
	"github.com/subjectboard/server/internal/metrics"
)

// Operation is the kind of mutation an entry describes.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Entry is one append-only audit record. OldValues and NewValues are the
// field tuples of the item before and after the mutation, in the same order.
type Entry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Operation   Operation `json:"operation"`
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id"`
	ParentGroup string    `json:"parent_group,omitempty"`
	OldValues   []string  `json:"old_values"`
	NewValues   []string  `json:"new_values"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// Page selects part of the log, newest first. After is the NextCursor of a
// previous ListResult; empty starts at the newest entry.
type Page struct {
	Limit int
	After string
}

// ListResult is one page of entries. NextCursor is empty on the last page.
type ListResult struct {
	Entries    []Entry
	NextCursor string
}

// Store persists and lists audit entries.
type Store interface {
	AppendAuditEntry(ctx context.Context, entry Entry) error
	ListAuditEntries(ctx context.Context, page Page) (ListResult, error)
}

// Sink receives entries once they have been logged.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, entry Entry) error

func (f SinkFunc) Write(ctx context.Context, entry Entry) error { return f(ctx, entry) }

// StoreSink writes entries straight into the store.
func StoreSink(store Store) Sink {
	return SinkFunc(store.AppendAuditEntry)
}

// Logger records mutations without blocking the request that caused them.
// Every entry goes to the structured log synchronously; the sink write
// happens in the background and failures are only logged and counted.
type Logger struct {
	logger  zerolog.Logger
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewLogger creates a new audit logger. A nil sink keeps entries in the log
// output only.
func NewLogger(logger zerolog.Logger, sink Sink, timeout time.Duration) *Logger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Logger{
		logger:  logger.With().Str("component", "audit").Logger(),
		sink:    sink,
		timeout: timeout,
		now:     time.Now,
	}
}

// Record stamps the entry and hands it to the sink.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}
	if entry.ID == "" {
		id, err := ids.NewULID()
		if err != nil {
			l.logger.Error().Err(err).Msg("failed to mint audit entry id")
			metrics.AuditWriteFailures.Inc()
			return
		}
		entry.ID = id
	}
	if entry.OldValues == nil {
		entry.OldValues = []string{}
	}
	if entry.NewValues == nil {
		entry.NewValues = []string{}
	}

	l.logger.Info().Interface("audit", entry).Msg("content mutation")

	if l.sink == nil {
		return
	}

	writeCtx := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(writeCtx, l.timeout)
		defer cancel()
		if err := l.sink.Write(ctx, entry); err != nil {
			metrics.AuditWriteFailures.Inc()
			l.logger.Error().Err(err).
				Str("audit_id", entry.ID).
				Str("operation", string(entry.Operation)).
				Msg("failed to persist audit entry")
		}
	}()
}

// Wait blocks until all pending sink writes have finished.
func (l *Logger) Wait() {
	l.wg.Wait()
}
