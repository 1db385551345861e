package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/amillerrr/courtside/internal/upload"
	"github.com/amillerrr/courtside/pkg/models"
)

// Marker defaults
const (
	DefaultMarkerCategory = "general"
	DefaultMarkerPriority = "medium"
)

// CreateMarkerRequest is the request payload for annotating a game video.
type CreateMarkerRequest struct {
	PlayerID    string  `json:"playerId"`
	Timestamp   float64 `json:"timestamp"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Priority    string  `json:"priority"`
}

// ownedGame loads gameID and checks it belongs to the caller.
func (h *Handlers) ownedGame(w http.ResponseWriter, r *http.Request, gameID string) (*models.Game, bool) {
	ctx := r.Context()
	game, err := h.store.GetGame(ctx, gameID)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Game")
		return nil, false
	}
	if game.Owner != identity(r) {
		h.writeError(ctx, w, http.StatusNotFound, "Game not found")
		return nil, false
	}
	return game, true
}

// MsgPlayerNotOnTeam rejects markers for players outside the game's team.
const MsgPlayerNotOnTeam = "Player is not on this team"

// refreshPlaybackURLs replaces stored presigned URLs, which expire, with fresh
// ones. A failed resolution keeps the stored URL.
func (h *Handlers) refreshPlaybackURLs(ctx context.Context, game *models.Game) {
	if h.playback == nil || game.UploadStatus != models.StatusCompleted {
		return
	}
	resolve := func(key string, dst *string) {
		if key == "" {
			return
		}
		u, err := h.playback.ResolvePlaybackURL(ctx, key)
		if err != nil || u == "" {
			h.log.WarnContext(ctx, "Failed to refresh playback URL", "gameId", game.GameID, "key", key, "error", err)
			return
		}
		*dst = u
	}
	resolve(game.VideoStoragePath, &game.VideoPlaybackURL)
	resolve(game.ThumbnailStoragePath, &game.ThumbnailPlaybackURL)
}

// ListGamesHandler returns a team's games, newest first.
func (h *Handlers) ListGamesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	team, ok := h.ownedTeam(w, r, r.PathValue("teamID"))
	if !ok {
		return
	}

	games, err := h.store.ListGames(ctx, team.TeamID)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Game")
		return
	}
	if games == nil {
		games = []models.Game{}
	}
	for i := range games {
		h.refreshPlaybackURLs(ctx, &games[i])
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"games": games})
}

// GetGameHandler returns one game.
func (h *Handlers) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	game, ok := h.ownedGame(w, r, r.PathValue("gameID"))
	if !ok {
		return
	}
	h.refreshPlaybackURLs(r.Context(), game)
	h.writeJSON(r.Context(), w, http.StatusOK, game)
}

// GameProgressHandler reports upload progress. Games no longer tracked in
// memory report progress derived from their stored status.
func (h *Handlers) GameProgressHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	game, ok := h.ownedGame(w, r, r.PathValue("gameID"))
	if !ok {
		return
	}

	if h.progress != nil {
		if snap, found := h.progress.Get(game.GameID); found {
			h.writeJSON(ctx, w, http.StatusOK, snap)
			return
		}
	}

	snap := upload.Snapshot{GameID: game.GameID, Status: game.UploadStatus}
	if game.UploadStatus == models.StatusCompleted {
		snap.Percent = upload.Finished
	}
	if t, err := time.Parse(time.RFC3339, game.UpdatedAt); err == nil {
		snap.UpdatedAt = t
	}
	h.writeJSON(ctx, w, http.StatusOK, snap)
}

// ListMarkersHandler returns a game's markers in playback order.
func (h *Handlers) ListMarkersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	game, ok := h.ownedGame(w, r, r.PathValue("gameID"))
	if !ok {
		return
	}

	markers, err := h.store.ListMarkers(ctx, game.GameID)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Marker")
		return
	}
	if markers == nil {
		markers = []models.Marker{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"markers": markers})
}

// CreateMarkerHandler adds a marker to a game.
func (h *Handlers) CreateMarkerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateMarkerRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	game, ok := h.ownedGame(w, r, r.PathValue("gameID"))
	if !ok {
		return
	}

	marker := &models.Marker{
		MarkerID:    h.newID(),
		TeamID:      game.TeamID,
		GameID:      game.GameID,
		PlayerID:    strings.TrimSpace(req.PlayerID),
		Owner:       game.Owner,
		Timestamp:   req.Timestamp,
		Description: strings.TrimSpace(req.Description),
		Type:        strings.ToLower(strings.TrimSpace(req.Type)),
		Category:    strings.TrimSpace(req.Category),
		Priority:    strings.ToLower(strings.TrimSpace(req.Priority)),
	}
	if marker.Category == "" {
		marker.Category = DefaultMarkerCategory
	}
	if marker.Priority == "" {
		marker.Priority = DefaultMarkerPriority
	}

	if fields := h.validator.StructFields(marker); len(fields) > 0 {
		h.writeFieldErrors(ctx, w, http.StatusBadRequest, fields)
		return
	}

	player, err := h.store.GetPlayer(ctx, marker.PlayerID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.writeFieldErrors(ctx, w, http.StatusBadRequest, map[string]string{"playerId": MsgPlayerNotOnTeam})
		return
	case err != nil:
		h.writeStoreError(ctx, w, err, "Player")
		return
	case player.TeamID != game.TeamID:
		h.writeFieldErrors(ctx, w, http.StatusBadRequest, map[string]string{"playerId": MsgPlayerNotOnTeam})
		return
	}

	created, err := h.store.CreateMarker(ctx, marker)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Marker")
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, created)
}

// DeleteMarkerHandler removes a marker owned by the caller.
func (h *Handlers) DeleteMarkerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	marker, err := h.store.GetMarker(ctx, r.PathValue("markerID"))
	if err != nil {
		h.writeStoreError(ctx, w, err, "Marker")
		return
	}
	if marker.Owner != identity(r) {
		h.writeError(ctx, w, http.StatusNotFound, "Marker not found")
		return
	}

	if err := h.store.DeleteMarker(ctx, marker.MarkerID); err != nil {
		h.writeStoreError(ctx, w, err, "Marker")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
