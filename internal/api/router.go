package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/subjectboard/server/internal/api/handlers"
	"github.com/subjectboard/server/internal/api/middleware"
	"github.com/subjectboard/server/internal/audit"
	"github.com/subjectboard/server/internal/config"
	"github.com/subjectboard/server/internal/metrics"
)

// ContentService is everything the content and group endpoints need.
type ContentService interface {
	handlers.ContentService
	handlers.GroupService
}

// Deps are the collaborators the router wires into handlers. RateLimiter and
// Health may be nil.
type Deps struct {
	Config      config.Config
	Logger      zerolog.Logger
	Content     ContentService
	Audit       audit.Store
	Stream      http.Handler
	Health      *handlers.HealthChecker
	RateLimiter *middleware.RateLimiter
	Build       BuildInfo
}

func NewRouter(deps Deps) http.Handler {
	env := deps.Config.Environment
	contentHandler := handlers.NewContentHandler(deps.Content, env)
	groupsHandler := handlers.NewGroupsHandler(deps.Content, env)
	auditHandler := handlers.NewAuditHandler(deps.Audit, env)

	limit := func(h http.Handler) http.Handler {
		if deps.RateLimiter == nil {
			return h
		}
		return deps.RateLimiter.Middleware(h)
	}
	public := func(h http.HandlerFunc) http.Handler {
		return limit(h)
	}
	mutation := func(h http.HandlerFunc) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierMutation)(
			limit(middleware.RequestSize(middleware.DefaultMaxBodySize)(h)),
		)
	}
	create := func(h http.HandlerFunc) http.Handler {
		return mutation(middleware.Idempotency(h).ServeHTTP)
	}

	mux := http.NewServeMux()

	mux.Handle("GET /healthz", handlers.Healthz())
	readyz := deps.Health
	if readyz == nil {
		readyz = handlers.NewHealthChecker(deps.Build.Version, deps.Build.GitCommit)
	}
	mux.Handle("GET /readyz", readyz.Readyz())
	mux.Handle("GET /version", VersionHandler(deps.Build))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /api/v1/openapi.json", OpenAPIHandler())

	mux.Handle("POST /api/v1/content/link/create", create(contentHandler.CreateLink))
	mux.Handle("POST /api/v1/content/text/create", create(contentHandler.CreateText))
	mux.Handle("POST /api/v1/content/deadline/create", create(contentHandler.CreateDeadline))
	mux.Handle("POST /api/v1/content/link/update", mutation(contentHandler.UpdateLink))
	mux.Handle("POST /api/v1/content/text/update", mutation(contentHandler.UpdateText))
	mux.Handle("POST /api/v1/content/deadline/update", mutation(contentHandler.UpdateDeadline))
	mux.Handle("POST /api/v1/content/delete", mutation(contentHandler.Delete))
	mux.Handle("POST /api/v1/content/read", public(contentHandler.Read))

	mux.Handle("GET /api/v1/groups", public(groupsHandler.List))
	mux.Handle("GET /api/v1/groups/{id}", public(groupsHandler.Get))
	mux.Handle("POST /api/v1/groups/create", mutation(groupsHandler.Create))
	mux.Handle("POST /api/v1/groups/rename", mutation(groupsHandler.Rename))
	mux.Handle("POST /api/v1/groups/delete", mutation(groupsHandler.Delete))

	mux.Handle("GET /api/v1/audit", public(auditHandler.List))
	if deps.Stream != nil {
		mux.Handle("GET /api/v1/stream", limit(deps.Stream))
	}

	var handler http.Handler = mux
	handler = middleware.CORS(deps.Config.CORS, deps.Logger)(handler)
	handler = middleware.SecurityHeaders(env == "production")(handler)
	handler = middleware.ClientIP(deps.Config.RateLimit.TrustedProxyCIDRs)(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	return handler
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
