// Package web provides the HTTP API for ledger imports.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/config"
	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/JonMunkholm/ledgerimport/internal/ledger"
	"github.com/JonMunkholm/ledgerimport/internal/staging"
	webmw "github.com/JonMunkholm/ledgerimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LinkFetcher downloads a JSON row set from a share link.
type LinkFetcher interface {
	Fetch(ctx context.Context, link string) ([]map[string]any, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Coordinator  *core.Coordinator
	Staging      staging.Store
	Transactions ledger.Store
	Presets      ledger.PresetStore
	Audit        ledger.AuditStore
	Links        LinkFetcher
}

// Server is the HTTP server for the import API.
type Server struct {
	cfg     *config.Config
	coord   *core.Coordinator
	staging staging.Store
	txns    ledger.Store
	presets ledger.PresetStore
	audit   ledger.AuditStore
	links   LinkFetcher
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		coord:   deps.Coordinator,
		staging: deps.Staging,
		txns:    deps.Transactions,
		presets: deps.Presets,
		audit:   deps.Audit,
		links:   deps.Links,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(webmw.RateLimit(s.cfg.Rate.RequestsPerMinute, time.Minute, s.rateLimited))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(webmw.APIKeyAuth(&s.cfg.Security))

		// Staging write-back and read, called by the extraction service and pollers
		r.Post("/staging", s.handleStagingPut)
		r.Get("/staging", s.handleStagingTake)
		r.Delete("/staging", s.handleStagingDelete)
		r.Post("/staging/link", s.handleStagingLink)

		// Import sessions
		r.Route("/imports", func(r chi.Router) {
			r.Get("/", s.handleListImports)
			r.With(s.uploadLimit()).Post("/", s.handleStartImport)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetImport)
				r.Delete("/", s.handleForgetImport)
				r.Put("/mapping", s.handleSetMapping)
				r.Post("/validate", s.handleValidate)
				r.Post("/rows", s.handleAddRow)
				r.Patch("/rows/{index}", s.handleUpdateCell)
				r.Delete("/rows/{index}", s.handleDeleteRow)
				r.Post("/retry", s.handleRetryPoll)
				r.Post("/commit", s.handleCommit)
				r.Post("/cancel", s.handleCancel)
				r.Get("/audit", s.handleImportAudit)
			})
		})

		// Stateless helpers
		r.Post("/preview", s.handlePreview)
		r.Post("/transactions/bulk", s.handleBulkTransactions)

		// Mapping presets
		r.Get("/presets", s.handleListPresets)
		r.Post("/presets", s.handleCreatePreset)
		r.Post("/presets/match", s.handleMatchPresets)
		r.Get("/presets/{id}", s.handleGetPreset)
		r.Delete("/presets/{id}", s.handleDeletePreset)

		// Audit trail
		r.Get("/audit", s.handleListAudit)
	})
}

// uploadLimit applies the tighter per-IP limit to file intake.
func (s *Server) uploadLimit() func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return webmw.RateLimit(s.cfg.Rate.UploadLimit, time.Minute, s.rateLimited)
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME type sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Prevent clickjacking
			w.Header().Set("X-Frame-Options", "DENY")

			if enableCSP {
				// The API serves JSON and small HTML fragments only
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			// Control referrer information
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
