package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const checkTimeout = 2 * time.Second

// HealthCheck is the readiness report.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Check runs one dependency check. Status is "pass", "warn" or "fail".
type Check func(ctx context.Context) CheckResult

type Pinger interface {
	Ping(ctx context.Context) error
}

// MigrationStatus reports the applied schema version; ok is false when the
// database has never been migrated.
type MigrationStatus func(ctx context.Context) (version uint, dirty bool, ok bool, err error)

// HealthChecker aggregates named checks into one readiness response.
type HealthChecker struct {
	checks    map[string]Check
	version   string
	gitCommit string
}

func NewHealthChecker(version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		checks:    make(map[string]Check),
		version:   version,
		gitCommit: gitCommit,
	}
}

// WithCheck registers check under name and returns h for chaining.
func (h *HealthChecker) WithCheck(name string, check Check) *HealthChecker {
	h.checks[name] = check
	return h
}

// Readyz answers 503 when any check fails and 200 otherwise; warnings
// downgrade the status to "degraded".
func (h *HealthChecker) Readyz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make(map[string]CheckResult, len(h.checks))
		for name, check := range h.checks {
			results[name] = check(ctx)
		}

		overall, status := "healthy", http.StatusOK
		for _, result := range results {
			if result.Status == "fail" {
				overall, status = "unhealthy", http.StatusServiceUnavailable
				break
			}
			if result.Status == "warn" {
				overall = "degraded"
			}
		}

		writeJSON(w, status, HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    results,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	})
}

// DatabaseCheck pings the store.
func DatabaseCheck(db Pinger) Check {
	return func(ctx context.Context) CheckResult {
		if db == nil {
			return CheckResult{Status: "fail", Message: "Database not initialized"}
		}
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		start := time.Now()
		err := db.Ping(ctx)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return CheckResult{
				Status:    "fail",
				Message:   "Database ping failed",
				LatencyMs: latency,
				Details:   map[string]any{"error": err.Error()},
			}
		}
		return CheckResult{Status: "pass", Message: "Database reachable", LatencyMs: latency}
	}
}

// MigrationCheck fails on a dirty or missing schema.
func MigrationCheck(status MigrationStatus) Check {
	return func(ctx context.Context) CheckResult {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		version, dirty, ok, err := status(ctx)
		switch {
		case err != nil:
			return CheckResult{
				Status:  "fail",
				Message: "Failed to read migration version",
				Details: map[string]any{"error": err.Error()},
			}
		case !ok:
			return CheckResult{Status: "fail", Message: "No migrations applied", Details: map[string]any{
				"remediation": "Run: server migrate up",
			}}
		case dirty:
			return CheckResult{Status: "fail", Message: "Database in dirty migration state", Details: map[string]any{
				"version": version,
				"action":  "Do NOT run new migrations until this is resolved",
			}}
		}
		return CheckResult{
			Status:  "pass",
			Message: fmt.Sprintf("Migrations applied (version %d)", version),
			Details: map[string]any{"version": version},
		}
	}
}

// JobQueueCheck counts pending audit jobs in River's table.
func JobQueueCheck(pool *pgxpool.Pool) Check {
	return func(ctx context.Context) CheckResult {
		if pool == nil {
			return CheckResult{Status: "warn", Message: "Job queue not initialized"}
		}
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		start := time.Now()
		var pending int64
		err := pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM river_job WHERE state = ANY($1)`,
			[]string{"available", "running", "retryable"},
		).Scan(&pending)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return CheckResult{
				Status:    "fail",
				Message:   "Failed to query job queue",
				LatencyMs: latency,
				Details: map[string]any{
					"error":       err.Error(),
					"remediation": "Run: server migrate up (applies River migrations)",
				},
			}
		}
		return CheckResult{
			Status:    "pass",
			Message:   "River job queue operational",
			LatencyMs: latency,
			Details:   map[string]any{"pending_jobs": pending},
		}
	}
}

// SubscriberCheck reports connected stream viewers. It never fails.
func SubscriberCheck(count func() int) Check {
	return func(context.Context) CheckResult {
		return CheckResult{
			Status:  "pass",
			Message: "Realtime hub running",
			Details: map[string]any{"subscribers": count()},
		}
	}
}

// Healthz reports liveness.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
