package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/subjectboard/server/internal/metrics"
)

// IdempotencyTTL is how long a create can be replayed with the same key.
const IdempotencyTTL = 24 * time.Hour

var (
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyConflict means the key was already used for a different
	// request, or a concurrent request with the key is still in progress.
	ErrIdempotencyConflict = errors.New("idempotency key already used for a different request")
)

// IdempotencyRecord remembers which item a keyed create produced.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	ParentGroup string
	ContentID   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// requestHash fingerprints the raw request fields, before relative dates are
// resolved, so a retry hashes the same as the original.
func requestHash(typ Type, parentGroup string, placement int, fields ...string) string {
	h := sha256.New()
	for _, part := range append([]string{string(typ), parentGroup, strconv.Itoa(placement)}, fields...) {
		// Length prefixes keep ("ab","c") and ("a","bc") apart.
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// replay returns the item an earlier create with key produced, or nil when
// the key is unused or expired.
func (s *Service) replay(ctx context.Context, key, hash string) (*Item, error) {
	rec, err := s.repo.GetIdempotencyKey(ctx, key, s.now().UTC())
	if errors.Is(err, ErrIdempotencyKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up idempotency key: %w", err)
	}
	if rec.RequestHash != hash {
		return nil, ErrIdempotencyConflict
	}
	item, err := s.repo.GetItem(ctx, rec.ParentGroup, rec.ContentID)
	if err != nil {
		return nil, err
	}
	metrics.IdempotentReplays.Inc()
	s.logger.Debug().Str("content_id", item.ID).Msg("replayed keyed create")
	return item, nil
}

// SweepIdempotencyKeys deletes expired keys and returns how many went.
func (s *Service) SweepIdempotencyKeys(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredIdempotencyKeys(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	metrics.IdempotencyKeysDeleted.Add(float64(n))
	return n, nil
}

// RunIdempotencySweeper calls SweepIdempotencyKeys every interval until ctx
// is done.
func (s *Service) RunIdempotencySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepIdempotencyKeys(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("idempotency key sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int64("deleted", n).Msg("expired idempotency keys removed")
			}
		}
	}
}
