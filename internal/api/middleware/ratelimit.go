package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/subjectboard/server/internal/api/problem"
	"github.com/subjectboard/server/internal/config"
)

type RateLimitTier string

const (
	TierPublic   RateLimitTier = "public"
	TierMutation RateLimitTier = "mutation"
)

type rateLimitKey string

const rateLimitTierKey rateLimitKey = "rateLimitTier"

const (
	limiterTTL      = 15 * time.Minute
	cleanupInterval = 5 * time.Minute
)

func WithRateLimitTier(ctx context.Context, tier RateLimitTier) context.Context {
	return context.WithValue(ctx, rateLimitTierKey, tier)
}

func WithRateLimitTierHandler(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithRateLimitTier(r.Context(), tier)))
		})
	}
}

// RateLimiter applies a per-client token bucket per tier. The tier is read
// from the request context; requests without one count as public.
type RateLimiter struct {
	store   *limiterStore
	proxies []*net.IPNet
	env     string
}

func NewRateLimiter(cfg config.RateLimitConfig, env string) *RateLimiter {
	return &RateLimiter{
		store:   newLimiterStore(cfg),
		proxies: parseCIDRs(cfg.TrustedProxyCIDRs),
		env:     env,
	}
}

// Stop ends the background cleanup of idle limiters.
func (l *RateLimiter) Stop() {
	l.store.stop()
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		tier := TierPublic
		if value, ok := r.Context().Value(rateLimitTierKey).(RateLimitTier); ok {
			tier = value
		}

		limiter := l.store.limiter(tier, clientKey(r, l.proxies))
		if limiter == nil || limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Retry-After", strconv.Itoa(l.store.retryAfterSeconds(tier)))
		problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too Many Requests", nil, l.env,
			problem.WithDetail("rate limit exceeded for "+string(tier)+" requests"))
	})
}

type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	perMinute map[RateLimitTier]int
	done      chan struct{}
	stopOnce  sync.Once
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	store := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		perMinute: map[RateLimitTier]int{
			TierPublic:   cfg.PublicPerMinute,
			TierMutation: cfg.MutationPerMinute,
		},
		done: make(chan struct{}),
	}
	go store.cleanupLoop()
	return store
}

// limiter returns nil when the tier is unlimited.
func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return nil
	}

	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit)), limit)
	s.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (s *limiterStore) retryAfterSeconds(tier RateLimitTier) int {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return 1
	}
	seconds := 60 / limit
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *limiterStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterTTL {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}
