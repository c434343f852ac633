package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/subjectboard/server/internal/api/pagination"
	"github.com/subjectboard/server/internal/audit"
)

const defaultAuditPageSize = 50

var _ audit.Store = (*AuditRepository)(nil)

type AuditRepository struct {
	db *sql.DB
}

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

	_, err = r.db.ExecContext(ctx, `INSERT INTO audit_log (
		id, recorded_at, operation, content_type, content_id,
		parent_group_id, old_values, new_values, fingerprint
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING`,
		entry.ID, formatTime(entry.Timestamp), string(entry.Operation), entry.ContentType, entry.ContentID,
		entry.ParentGroup, oldValues, newValues, entry.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns a page of entries newest first. recorded_at is
// stored in a fixed-width layout, so the keyset comparison works on TEXT.
func (r *AuditRepository) ListAuditEntries(ctx context.Context, page audit.Page) (_ audit.ListResult, err error) {
	defer func(start time.Time) { observe("audit.list_entries", start, err) }(time.Now())

	var cursorTime, cursorID any
	if strings.TrimSpace(page.After) != "" {
		cursor, err := pagination.DecodeAuditCursor(page.After)
		if err != nil {
			return audit.ListResult{}, err
		}
		cursorTime = formatTime(cursor.Timestamp)
		cursorID = cursor.ID
	}

	limit := page.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, recorded_at, operation, content_type, content_id,
		parent_group_id, old_values, new_values, fingerprint
		FROM audit_log
		WHERE (? IS NULL OR recorded_at < ? OR (recorded_at = ? AND id < ?))
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, cursorTime, cursorTime, cursorTime, cursorID, limit+1)
	if err != nil {
		return audit.ListResult{}, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e                    audit.Entry
			recordedAt           string
			operation            string
			oldValues, newValues string
		)
		if err := rows.Scan(
			&e.ID, &recordedAt, &operation, &e.ContentType, &e.ContentID,
			&e.ParentGroup, &oldValues, &newValues, &e.Fingerprint,
		); err != nil {
			return audit.ListResult{}, fmt.Errorf("scanning audit entry: %w", err)
		}
		if e.Timestamp, err = parseTime(recordedAt); err != nil {
			return audit.ListResult{}, err
		}
		e.Operation = audit.Operation(operation)
		if e.OldValues, err = unmarshalTuple(oldValues); err != nil {
			return audit.ListResult{}, err
		}
		if e.NewValues, err = unmarshalTuple(newValues); err != nil {
			return audit.ListResult{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return audit.ListResult{}, fmt.Errorf("iterating audit entries: %w", err)
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

func marshalTuple(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encoding audit values: %w", err)
	}
	return string(data), nil
}

func unmarshalTuple(data string) ([]string, error) {
	values := []string{}
	if data == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("decoding audit values: %w", err)
	}
	return values, nil
}
