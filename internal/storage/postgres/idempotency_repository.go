package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/subjectboard/server/internal/domain/content"
)

func (r *ContentRepository) GetIdempotencyKey(ctx context.Context, key string, now time.Time) (_ *content.IdempotencyRecord, err error) {
	defer func(start time.Time) { observe("content.get_idempotency_key", start, err) }(time.Now())

	var rec content.IdempotencyRecord
	err = r.queryer().QueryRow(ctx, `
SELECT idempotency_key, request_hash, parent_group_id, content_id, created_at, expires_at
  FROM idempotency_keys
 WHERE idempotency_key = $1 AND expires_at > $2`, key, now).Scan(
		&rec.Key, &rec.RequestHash, &rec.ParentGroup, &rec.ContentID, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, content.ErrIdempotencyKeyNotFound
		}
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return &rec, nil
}

// InsertIdempotencyKey takes over an expired row for the same key; a live
// row leaves the upsert without effect.
func (r *ContentRepository) InsertIdempotencyKey(ctx context.Context, rec content.IdempotencyRecord) (err error) {
	defer func(start time.Time) { observe("content.insert_idempotency_key", start, err) }(time.Now())

	tag, err := r.queryer().Exec(ctx, `
INSERT INTO idempotency_keys (idempotency_key, request_hash, parent_group_id, content_id, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (idempotency_key) DO UPDATE
   SET request_hash    = EXCLUDED.request_hash,
       parent_group_id = EXCLUDED.parent_group_id,
       content_id      = EXCLUDED.content_id,
       created_at      = EXCLUDED.created_at,
       expires_at      = EXCLUDED.expires_at
 WHERE idempotency_keys.expires_at <= EXCLUDED.created_at`,
		rec.Key, rec.RequestHash, rec.ParentGroup, rec.ContentID, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return content.ErrIdempotencyConflict
	}
	return nil
}

func (r *ContentRepository) DeleteExpiredIdempotencyKeys(ctx context.Context, now time.Time) (_ int64, err error) {
	defer func(start time.Time) { observe("content.delete_expired_idempotency_keys", start, err) }(time.Now())

	tag, err := r.queryer().Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
