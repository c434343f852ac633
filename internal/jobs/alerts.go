package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/subjectboard/server/internal/metrics"
)

// LostEntryFunc is called once an audit job has used its final attempt.
type LostEntryFunc func(ctx context.Context, job *rivertype.JobRow, err error)

// AuditErrorHandler reports failed audit writes. Each failure is logged with
// the entry it carried. Exhausted jobs count toward metrics.AuditWriteFailures
// and reach OnLost.
type AuditErrorHandler struct {
	Logger *slog.Logger
	OnLost LostEntryFunc
}

func NewAuditErrorHandler(logger *slog.Logger, onLost LostEntryFunc) *AuditErrorHandler {
	return &AuditErrorHandler{Logger: logger, OnLost: onLost}
}

func (h *AuditErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.report(ctx, job, err, "audit job failed")
	return nil
}

func (h *AuditErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	err := fmt.Errorf("panic: %v", panicVal)
	h.report(ctx, job, err, "audit job panicked", "trace", trace)
	return nil
}

func (h *AuditErrorHandler) report(ctx context.Context, job *rivertype.JobRow, err error, msg string, extra ...any) {
	exhausted := isFinalAttempt(job)
	if h.Logger != nil {
		attrs := []any{"job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "final", exhausted, "error", err}
		if job.Kind == JobKindAuditRecord {
			var args AuditRecordArgs
			if decodeErr := json.Unmarshal(job.EncodedArgs, &args); decodeErr == nil {
				attrs = append(attrs,
					"entry_id", args.Entry.ID,
					"operation", string(args.Entry.Operation),
					"content_id", args.Entry.ContentID)
			}
		} else {
			msg = "job failed"
		}
		h.Logger.Error(msg, append(attrs, extra...)...)
	}

	if job.Kind != JobKindAuditRecord || !exhausted {
		return
	}
	metrics.AuditWriteFailures.Inc()
	if h.OnLost != nil {
		h.OnLost(ctx, job, err)
	}
}

func isFinalAttempt(job *rivertype.JobRow) bool {
	return job.MaxAttempts > 0 && job.Attempt >= job.MaxAttempts
}
