package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subjectboard/server/internal/api/pagination"
	"github.com/subjectboard/server/internal/audit"
)

const defaultAuditPageSize = 50

var _ audit.Store = (*AuditRepository)(nil)

type AuditRepository struct {
	pool *pgxpool.Pool
}

// AppendAuditEntry is idempotent on the entry id so retried deliveries do
// not duplicate rows.
func (r *AuditRepository) AppendAuditEntry(ctx context.Context, entry audit.Entry) (err error) {
	defer func(start time.Time) { observe("audit.append_entry", start, err) }(time.Now())

	oldValues, err := marshalTuple(entry.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalTuple(entry.NewValues)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO audit_log (
	id, recorded_at, operation, content_type, content_id,
	parent_group_id, old_values, new_values, fingerprint
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.Timestamp, string(entry.Operation), entry.ContentType, entry.ContentID,
		entry.ParentGroup, oldValues, newValues, entry.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns a page of entries newest first, keyed on
// (recorded_at, id) so pages stay stable while new entries are appended.
func (r *AuditRepository) ListAuditEntries(ctx context.Context, page audit.Page) (_ audit.ListResult, err error) {
	defer func(start time.Time) { observe("audit.list_entries", start, err) }(time.Now())

	var cursorTimestamp *time.Time
	var cursorID *string
	if strings.TrimSpace(page.After) != "" {
		cursor, err := pagination.DecodeAuditCursor(page.After)
		if err != nil {
			return audit.ListResult{}, err
		}
		value := cursor.Timestamp.UTC()
		cursorTimestamp = &value
		cursorID = &cursor.ID
	}

	limit := page.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}

	rows, err := r.pool.Query(ctx, `
SELECT id, recorded_at, operation, content_type, content_id,
       parent_group_id, old_values, new_values, fingerprint
  FROM audit_log
 WHERE (
   $1::timestamptz IS NULL OR
   recorded_at < $1::timestamptz OR
   (recorded_at = $1::timestamptz AND id < $2)
 )
 ORDER BY recorded_at DESC, id DESC
 LIMIT $3`, cursorTimestamp, cursorID, limit+1)
	if err != nil {
		return audit.ListResult{}, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e         audit.Entry
			operation string
			oldValues []byte
			newValues []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &operation, &e.ContentType, &e.ContentID,
			&e.ParentGroup, &oldValues, &newValues, &e.Fingerprint,
		); err != nil {
			return audit.ListResult{}, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Operation = audit.Operation(operation)
		e.Timestamp = e.Timestamp.UTC()
		if e.OldValues, err = unmarshalTuple(oldValues); err != nil {
			return audit.ListResult{}, err
		}
		if e.NewValues, err = unmarshalTuple(newValues); err != nil {
			return audit.ListResult{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return audit.ListResult{}, fmt.Errorf("iterate audit entries: %w", err)
	}

	result := audit.ListResult{}
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		result.NextCursor = pagination.EncodeAuditCursor(last.Timestamp, last.ID)
	}
	result.Entries = entries
	return result, nil
}

func marshalTuple(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal audit values: %w", err)
	}
	return data, nil
}

func unmarshalTuple(data []byte) ([]string, error) {
	values := []string{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshal audit values: %w", err)
	}
	return values, nil
}
