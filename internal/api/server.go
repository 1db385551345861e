// Package api provides the HTTP surface of the coach dashboard backend.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amillerrr/courtside/internal/auth"
	"github.com/amillerrr/courtside/internal/config"
	"github.com/amillerrr/courtside/internal/health"
	"github.com/amillerrr/courtside/internal/upload"
)

// Server configuration constants
const (
	ReadTimeout       = 30 * time.Second
	ReadHeaderTimeout = 10 * time.Second
	WriteTimeout      = 300 * time.Second
	IdleTimeout       = 120 * time.Second
	MaxHeaderBytes    = 1 << 20 // 1 MB
)

// Server represents the HTTP server for the API.
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	log         *slog.Logger
	rateLimiter *auth.RateLimiter
}

// ServerConfig holds dependencies for the server.
type ServerConfig struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         Store
	Uploader      Uploader
	Progress      ProgressSource
	Playback      PlaybackResolver
	Validator     *upload.Validator
	Spooler       *upload.Spooler
	JWTService    *auth.JWTService
	RateLimiter   *auth.RateLimiter
	HealthChecker *health.Checker
}

// NewServer creates a new API server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Store == nil || cfg.Uploader == nil || cfg.Spooler == nil {
		return nil, errors.New("store, uploader and spooler are required")
	}
	if cfg.JWTService == nil || cfg.HealthChecker == nil {
		return nil, errors.New("jwt service and health checker are required")
	}

	handlers := NewHandlers(&HandlersConfig{
		Config:      cfg.Config,
		Logger:      cfg.Logger,
		Store:       cfg.Store,
		Uploader:    cfg.Uploader,
		Progress:    cfg.Progress,
		Playback:    cfg.Playback,
		Validator:   cfg.Validator,
		Spooler:     cfg.Spooler,
		JWTService:  cfg.JWTService,
		RateLimiter: cfg.RateLimiter,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Config.API.Port,
		Handler:           NewRouter(handlers, cfg.JWTService.Middleware(cfg.RateLimiter), cfg.HealthChecker, cfg.Config.CORS.AllowedOrigins),
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		MaxHeaderBytes:    MaxHeaderBytes,
	}

	return &Server{
		httpServer:  httpServer,
		cfg:         cfg.Config,
		log:         cfg.Logger,
		rateLimiter: cfg.RateLimiter,
	}, nil
}

// NewRouter wires every route onto a ServeMux.
func NewRouter(h *Handlers, authMiddleware func(http.HandlerFunc) http.HandlerFunc, checker *health.Checker, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("GET /health", checker.Handler())
	mux.HandleFunc("POST /login", h.LoginHandler)

	// Protected endpoints
	mux.HandleFunc("GET /teams", authMiddleware(h.ListTeamsHandler))
	mux.HandleFunc("POST /teams", authMiddleware(h.CreateTeamHandler))
	mux.HandleFunc("GET /teams/{teamID}/players", authMiddleware(h.ListPlayersHandler))
	mux.HandleFunc("POST /teams/{teamID}/players", authMiddleware(h.CreatePlayerHandler))
	mux.HandleFunc("GET /teams/{teamID}/games", authMiddleware(h.ListGamesHandler))
	mux.HandleFunc("POST /teams/{teamID}/games/upload", authMiddleware(h.UploadGameHandler))
	mux.HandleFunc("GET /games/{gameID}", authMiddleware(h.GetGameHandler))
	mux.HandleFunc("GET /games/{gameID}/progress", authMiddleware(h.GameProgressHandler))
	mux.HandleFunc("GET /games/{gameID}/markers", authMiddleware(h.ListMarkersHandler))
	mux.HandleFunc("POST /games/{gameID}/markers", authMiddleware(h.CreateMarkerHandler))
	mux.HandleFunc("DELETE /markers/{markerID}", authMiddleware(h.DeleteMarkerHandler))

	// Internal only
	mux.Handle("GET /health/deep", internalOnlyMiddleware(checker.DeepHandler()))
	mux.Handle("GET /metrics", internalOnlyMiddleware(promhttp.Handler()))

	return CORSMiddleware(allowedOrigins)(MetricsMiddleware(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Starting API server", "port", s.cfg.API.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down API server...")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// Private networks for internal-only middleware
var privateNetworks = []net.IPNet{
	{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(8, 32)},
	{IP: net.ParseIP("172.16.0.0"), Mask: net.CIDRMask(12, 32)},
	{IP: net.ParseIP("192.168.0.0"), Mask: net.CIDRMask(16, 32)},
	{IP: net.ParseIP("127.0.0.0"), Mask: net.CIDRMask(8, 32)},
}

// internalOnlyMiddleware restricts access to internal networks.
func internalOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deny if X-Forwarded-For is present (came through load balancer)
		if r.Header.Get("X-Forwarded-For") != "" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if isInternalRequest(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	})
}

// isInternalRequest checks if the request is from an internal network.
func isInternalRequest(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return ip.IsLoopback()
}
