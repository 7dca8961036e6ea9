package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
	// StorageObjects serves /storage/objects when non-nil (local backend).
	StorageObjects http.Handler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /admin", h.Admin)

	// API
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/get-upload-url", h.GetUploadURL)
	mux.HandleFunc("POST /api/upload", h.Upload)
	mux.HandleFunc("GET /api/submissions", h.Submissions)

	// OAuth bootstrap
	mux.HandleFunc("GET /api/auth/url", h.AuthURL)
	mux.HandleFunc("GET /api/auth/callback/google", h.AuthCallback)
	mux.HandleFunc("GET /api/auth/get-token", h.GetToken)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	if cfg.StorageObjects != nil {
		mux.Handle("/storage/objects", cfg.StorageObjects)
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
