package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/subjectboard/server/internal/audit"
)

// AuditRecordArgs carries one audit entry to the store.
type AuditRecordArgs struct {
	Entry audit.Entry `json:"entry"`
}

func (AuditRecordArgs) Kind() string { return JobKindAuditRecord }

func (AuditRecordArgs) InsertOpts() river.InsertOpts { return InsertOptsForKind(JobKindAuditRecord) }

// AuditRecordWorker persists queued audit entries. Appends are idempotent on
// the entry id, so a retried job never duplicates a row.
type AuditRecordWorker struct {
	river.WorkerDefaults[AuditRecordArgs]
	Store audit.Store
}

func (AuditRecordWorker) Kind() string { return JobKindAuditRecord }

func (w AuditRecordWorker) Work(ctx context.Context, job *river.Job[AuditRecordArgs]) error {
	if job == nil {
		return fmt.Errorf("audit record job missing")
	}
	if w.Store == nil {
		return fmt.Errorf("audit store not configured")
	}
	if err := w.Store.AppendAuditEntry(ctx, job.Args.Entry); err != nil {
		return fmt.Errorf("append audit entry %s: %w", job.Args.Entry.ID, err)
	}
	return nil
}

// NewWorkers registers the audit worker.
func NewWorkers(store audit.Store) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[AuditRecordArgs](workers, AuditRecordWorker{Store: store})
	return workers
}

// Inserter is the part of the River client the audit sink needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// AuditSink queues audit entries as River jobs instead of writing them
// inline, so store outages are retried with backoff.
type AuditSink struct {
	client Inserter
}

func NewAuditSink(client Inserter) *AuditSink {
	return &AuditSink{client: client}
}

func (s *AuditSink) Write(ctx context.Context, entry audit.Entry) error {
	if _, err := s.client.Insert(ctx, AuditRecordArgs{Entry: entry}, nil); err != nil {
		return fmt.Errorf("enqueue audit entry: %w", err)
	}
	return nil
}
