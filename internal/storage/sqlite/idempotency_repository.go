package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/subjectboard/server/internal/domain/content"
)

func (r *ContentRepository) GetIdempotencyKey(ctx context.Context, key string, now time.Time) (_ *content.IdempotencyRecord, err error) {
	defer func(start time.Time) { observe("content.get_idempotency_key", start, err) }(time.Now())

	var (
		rec                  content.IdempotencyRecord
		createdAt, expiresAt string
	)
	err = r.q.QueryRowContext(ctx, `SELECT idempotency_key, request_hash, parent_group_id, content_id, created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = ? AND expires_at > ?`, key, formatTime(now)).Scan(
		&rec.Key, &rec.RequestHash, &rec.ParentGroup, &rec.ContentID, &createdAt, &expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, content.ErrIdempotencyKeyNotFound
		}
		return nil, fmt.Errorf("reading idempotency key: %w", err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ContentRepository) InsertIdempotencyKey(ctx context.Context, rec content.IdempotencyRecord) (err error) {
	defer func(start time.Time) { observe("content.insert_idempotency_key", start, err) }(time.Now())

	res, err := r.q.ExecContext(ctx, `INSERT INTO idempotency_keys (
		idempotency_key, request_hash, parent_group_id, content_id, created_at, expires_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (idempotency_key) DO UPDATE SET
		request_hash = excluded.request_hash,
		parent_group_id = excluded.parent_group_id,
		content_id = excluded.content_id,
		created_at = excluded.created_at,
		expires_at = excluded.expires_at
	WHERE idempotency_keys.expires_at <= excluded.created_at`,
		rec.Key, rec.RequestHash, rec.ParentGroup, rec.ContentID,
		formatTime(rec.CreatedAt), formatTime(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting idempotency key: %w", err)
	}
	return requireAffected(res, content.ErrIdempotencyConflict)
}

func (r *ContentRepository) DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (_ int64, err error) {
	defer func(start time.Time) { observe("content.delete_expired_idempotency_keys", start, err) }(time.Now())

	res, err := r.q.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired idempotency keys: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}
