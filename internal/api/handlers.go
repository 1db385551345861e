package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/amillerrr/courtside/internal/auth"
	"github.com/amillerrr/courtside/internal/config"
	"github.com/amillerrr/courtside/internal/metrics"
	"github.com/amillerrr/courtside/internal/upload"
	"github.com/amillerrr/courtside/pkg/models"
)

var (
	tracer    = otel.Tracer("courtside-api")
	defaultID = uuid.NewString
)

// Configuration constants
const (
	MaxRequestBodySize = 1 << 20 // 1 MB
	MaxFormFieldSize   = 64 << 10
	MaxFormOverhead    = 1 << 20
)

// Store is the record store used by the CRUD handlers.
type Store interface {
	CreateTeam(ctx context.Context, team *models.Team) (*models.Team, error)
	GetTeam(ctx context.Context, teamID string) (*models.Team, error)
	ListTeams(ctx context.Context, owner string) ([]models.Team, error)
	CreatePlayer(ctx context.Context, player *models.Player) (*models.Player, error)
	GetPlayer(ctx context.Context, playerID string) (*models.Player, error)
	ListPlayers(ctx context.Context, teamID string) ([]models.Player, error)
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	ListGames(ctx context.Context, teamID string) ([]models.Game, error)
	CreateMarker(ctx context.Context, marker *models.Marker) (*models.Marker, error)
	GetMarker(ctx context.Context, markerID string) (*models.Marker, error)
	ListMarkers(ctx context.Context, gameID string) ([]models.Marker, error)
	DeleteMarker(ctx context.Context, markerID string) error
}

// Uploader runs the video upload pipeline.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request, onProgress upload.ProgressFunc) (*models.Game, error)
}

// PlaybackResolver turns a stored object key into a playback URL.
type PlaybackResolver interface {
	ResolvePlaybackURL(ctx context.Context, key string) (string, error)
}

// ProgressSource reports in-flight upload progress.
type ProgressSource interface {
	Get(gameID string) (upload.Snapshot, bool)
}

// Handlers contains all HTTP handlers for the API.
type Handlers struct {
	cfg        *config.Config
	log        *slog.Logger
	store      Store
	uploader   Uploader
	progress    ProgressSource
	playback    PlaybackResolver
	validator   *upload.Validator
	spooler     *upload.Spooler
	jwtService  *auth.JWTService
	rateLimiter *auth.RateLimiter
	newID       func() string
}

// HandlersConfig holds dependencies for handlers.
type HandlersConfig struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    Store
	Uploader Uploader
	Progress ProgressSource
	// Playback re-resolves asset URLs on read. Nil serves the stored URLs.
	Playback    PlaybackResolver
	Validator   *upload.Validator
	Spooler     *upload.Spooler
	JWTService  *auth.JWTService
	RateLimiter *auth.RateLimiter
	NewID       func() string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg *HandlersConfig) *Handlers {
	v := cfg.Validator
	if v == nil {
		v = upload.NewValidator(cfg.Config.Upload.MaxFileSizeBytes)
	}
	newID := cfg.NewID
	if newID == nil {
		newID = defaultID
	}
	return &Handlers{
		cfg:        cfg.Config,
		log:        cfg.Logger,
		store:      cfg.Store,
		uploader:   cfg.Uploader,
		progress:    cfg.Progress,
		playback:    cfg.Playback,
		validator:   v,
		spooler:     cfg.Spooler,
		jwtService:  cfg.JWTService,
		rateLimiter: cfg.RateLimiter,
		newID:       newID,
	}
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.ErrorContext(ctx, "Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	h.writeJSON(ctx, w, status, map[string]string{"error": message})
}

// FieldErrorResponse reports form validation failures.
type FieldErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (h *Handlers) writeFieldErrors(ctx context.Context, w http.ResponseWriter, status int, fields map[string]string) {
	h.writeJSON(ctx, w, status, FieldErrorResponse{Error: "Validation failed", Fields: fields})
}

// limitRequestBody wraps the request body with a size limit.
func (h *Handlers) limitRequestBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
}

// decodeJSON reads a size-limited JSON body into dst, writing the error response on failure.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	h.limitRequestBody(w, r)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// identity returns the caller's owner key set by the auth middleware.
func identity(r *http.Request) string {
	claims, ok := auth.GetClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Identity()
}

// writeStoreError maps record store errors to responses.
func (h *Handlers) writeStoreError(ctx context.Context, w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.writeError(ctx, w, http.StatusNotFound, what+" not found")
	case errors.Is(err, models.ErrAlreadyExists):
		h.writeError(ctx, w, http.StatusConflict, what+" already exists")
	default:
		h.log.ErrorContext(ctx, "Record store error", "entity", what, "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
	}
}

// LoginHandler handles user authentication and returns a JWT token.
func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientIP := auth.GetClientIP(r)

	if h.rateLimiter != nil && h.rateLimiter.IsLimited(clientIP) {
		metrics.AuthFailures.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(h.rateLimiter.RetryAfter(clientIP).Seconds())+1))
		h.writeError(ctx, w, http.StatusTooManyRequests, "Too many failed attempts")
		return
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		h.writeError(ctx, w, http.StatusUnauthorized, "Missing credentials")
		return
	}

	expectedUsername, expectedPassword, err := h.cfg.GetAPICredentials()
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to get API credentials", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Server configuration error")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(expectedUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(expectedPassword)) == 1
	if !userOK || !passOK {
		metrics.AuthFailures.WithLabelValues("invalid_credentials").Inc()
		if h.rateLimiter != nil {
			h.rateLimiter.RecordFailure(clientIP)
		}
		h.log.WarnContext(ctx, "Failed login attempt", "username", username, "ip", clientIP)
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if h.rateLimiter != nil {
		h.rateLimiter.Reset(clientIP)
	}

	token, err := h.jwtService.GenerateToken(username)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to generate token", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	h.log.InfoContext(ctx, "Successful login", "username", username, "ip", clientIP)
	h.writeJSON(ctx, w, http.StatusOK, map[string]string{"token": token})
}
