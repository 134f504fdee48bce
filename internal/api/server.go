package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/canvas/internal/artifact"
	"github.com/koopa0/canvas/internal/generate"
	"github.com/koopa0/canvas/internal/session"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Coordinator *generate.Coordinator // Required
	Sessions    *session.Manager      // Required
	Archive     *artifact.PGStore     // Optional: nil disables archived-history endpoints
	Pool        *pgxpool.Pool         // Optional: nil disables pool checks in /ready
	CORSOrigins []string
	IsDev       bool // Disables HSTS
	TrustProxy  bool // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int  // Per-IP burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session manager is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sh := &sessionHandler{sessions: cfg.Sessions, logger: logger}
	ah := &artifactHandler{sessions: cfg.Sessions, archive: cfg.Archive, logger: logger}
	gh := &generateHandler{
		sessions:    cfg.Sessions,
		coordinator: cfg.Coordinator,
		logger:      logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", sh.create)
	mux.HandleFunc("GET /api/v1/sessions", sh.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sh.get)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sh.delete)
	mux.HandleFunc("GET /api/v1/sessions/{id}/export", sh.export)
	mux.HandleFunc("POST /api/v1/sessions/import", sh.importSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", sh.addMessage)

	mux.HandleFunc("POST /api/v1/sessions/{id}/generate", gh.generate)

	mux.HandleFunc("GET /api/v1/sessions/{id}/artifacts", ah.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}/artifacts/{artifactID}", ah.get)
	mux.HandleFunc("GET /api/v1/sessions/{id}/artifacts/{artifactID}/history", ah.history)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	limiter := newIPLimiter(1.0, burst)

	// Middleware stack, outermost first: recovery, request id, logging,
	// CORS, rate limit. CORS sits before the limiter so preflight
	// responses carry the right headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(limiter, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
