// Package http exposes the ledger and account services as a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/metrics"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	"budget/internal/services"
)

// Ledger is the tenant-scoped record and category contract.
type Ledger interface {
	CreateRecord(ctx context.Context, tenantID string, draft core.RecordDraft) (core.Record, error)
	GetRecord(ctx context.Context, tenantID, id string) (core.Record, error)
	ListRecords(ctx context.Context, tenantID string, q core.RecordQuery) (core.RecordPage, error)
	UpdateRecord(ctx context.Context, tenantID, id string, patch core.RecordPatch) (core.Record, error)
	DeleteRecord(ctx context.Context, tenantID, id string) error
	CreateCategory(ctx context.Context, tenantID string, draft core.CategoryDraft) (core.Category, error)
	GetCategory(ctx context.Context, tenantID, id string) (core.Category, error)
	ListCategories(ctx context.Context, tenantID string, q core.CategoryQuery) (core.CategoryPage, error)
	UpdateCategory(ctx context.Context, tenantID, id string, patch core.CategoryPatch) (core.Category, error)
	DeleteCategory(ctx context.Context, tenantID, id string) error
	Suggest(ctx context.Context, tenantID string, q core.SuggestQuery) ([]core.Suggestion, error)
}

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, username, password string) (core.User, error)
	Login(ctx context.Context, username, password string) (services.Session, error)
	Authenticate(ctx context.Context, token string) (core.User, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// Check is a named readiness probe.
type Check func(ctx context.Context) error

// Config holds the transport settings.
type Config struct {
	Addr          string
	SecureCookies bool
}

// Deps are the collaborators of the server. Metrics, Limiter and Checks may be nil.
type Deps struct {
	Ledger   Ledger
	Accounts Accounts
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.Limiter
	Checks   map[string]Check
	Logger   *log.Logger
}

type Server struct {
	http.Server

	ledger   Ledger
	accounts Accounts
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	checks   map[string]Check
	logger   *log.Logger
	errors   *log.StructuredLogger

	secureCookies bool
	started       time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	s := &Server{
		ledger:        deps.Ledger,
		accounts:      deps.Accounts,
		metrics:       deps.Metrics,
		limiter:       limiter,
		checks:        deps.Checks,
		logger:        logger.WithComponent(log.ComponentHTTP),
		errors:        log.NewStructuredLogger(logger),
		secureCookies: cfg.SecureCookies,
		started:       time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/me", s.requireUser(s.handleMe))
	mux.HandleFunc("DELETE /auth/me", s.requireUser(s.handleDeleteAccount))

	mux.HandleFunc("POST /records", s.requireUser(s.handleCreateRecord))
	mux.HandleFunc("GET /records", s.requireUser(s.handleListRecords))
	mux.HandleFunc("GET /records/suggestions", s.requireUser(s.handleSuggest))
	mux.HandleFunc("GET /records/{id}", s.requireUser(s.handleGetRecord))
	mux.HandleFunc("PUT /records/{id}", s.requireUser(s.handleUpdateRecord))
	mux.HandleFunc("DELETE /records/{id}", s.requireUser(s.handleDeleteRecord))

	mux.HandleFunc("POST /categories", s.requireUser(s.handleCreateCategory))
	mux.HandleFunc("GET /categories", s.requireUser(s.handleListCategories))
	mux.HandleFunc("GET /categories/{id}", s.requireUser(s.handleGetCategory))
	mux.HandleFunc("PUT /categories/{id}", s.requireUser(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /categories/{id}", s.requireUser(s.handleDeleteCategory))

	detector := security.NewDetector()
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := limiter.Middleware(detector.ClientIP, s.handleRateLimited)
	tracer := trace.NewMiddleware(logger, deps.Metrics, detector.ClientIP, detector.Suspicious)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           tracer.Middleware(headers.Middleware(limited(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
}
