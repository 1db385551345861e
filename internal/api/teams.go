package api

import (
	"net/http"
	"strings"

	"github.com/amillerrr/courtside/pkg/models"
)

// DefaultSport is assigned to teams created without one.
const DefaultSport = "Basketball"

// CreateTeamRequest is the request payload for creating a team.
type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Sport       string `json:"sport"`
	Season      string `json:"season"`
	AgeGroup    string `json:"ageGroup"`
	IsActive    *bool  `json:"isActive"`
}

// CreatePlayerRequest is the request payload for adding a player to a roster.
type CreatePlayerRequest struct {
	Name     string `json:"name"`
	Number   *int   `json:"number"`
	Position string `json:"position"`
	Active   *bool  `json:"active"`
	Height   string `json:"height"`
	Weight   int    `json:"weight"`
	Grade    string `json:"grade"`
}

// ownedTeam loads teamID and checks it belongs to the caller. Teams owned by
// someone else are reported as missing.
func (h *Handlers) ownedTeam(w http.ResponseWriter, r *http.Request, teamID string) (*models.Team, bool) {
	ctx := r.Context()
	team, err := h.store.GetTeam(ctx, teamID)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Team")
		return nil, false
	}
	if team.Owner != identity(r) {
		h.writeError(ctx, w, http.StatusNotFound, "Team not found")
		return nil, false
	}
	return team, true
}

// ListTeamsHandler returns the caller's teams.
func (h *Handlers) ListTeamsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teams, err := h.store.ListTeams(ctx, identity(r))
	if err != nil {
		h.writeStoreError(ctx, w, err, "Team")
		return
	}
	if teams == nil {
		teams = []models.Team{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"teams": teams})
}

// CreateTeamHandler creates a team owned by the caller.
func (h *Handlers) CreateTeamHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateTeamRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	team := &models.Team{
		TeamID:      h.newID(),
		Owner:       identity(r),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Sport:       strings.TrimSpace(req.Sport),
		Season:      strings.TrimSpace(req.Season),
		AgeGroup:    strings.TrimSpace(req.AgeGroup),
		IsActive:    true,
	}
	if team.Sport == "" {
		team.Sport = DefaultSport
	}
	if req.IsActive != nil {
		team.IsActive = *req.IsActive
	}

	if fields := h.validator.StructFields(team); len(fields) > 0 {
		h.writeFieldErrors(ctx, w, http.StatusBadRequest, fields)
		return
	}

	created, err := h.store.CreateTeam(ctx, team)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Team")
		return
	}

	h.log.InfoContext(ctx, "Team created", "teamId", created.TeamID)
	h.writeJSON(ctx, w, http.StatusCreated, created)
}

// ListPlayersHandler returns a team's roster.
func (h *Handlers) ListPlayersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	team, ok := h.ownedTeam(w, r, r.PathValue("teamID"))
	if !ok {
		return
	}

	players, err := h.store.ListPlayers(ctx, team.TeamID)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Player")
		return
	}
	if players == nil {
		players = []models.Player{}
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"players": players})
}

// CreatePlayerHandler adds a player to a team's roster.
func (h *Handlers) CreatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePlayerRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	team, ok := h.ownedTeam(w, r, r.PathValue("teamID"))
	if !ok {
		return
	}

	player := &models.Player{
		PlayerID: h.newID(),
		TeamID:   team.TeamID,
		Owner:    team.Owner,
		Name:     strings.TrimSpace(req.Name),
		Number:   req.Number,
		Position: strings.TrimSpace(req.Position),
		Active:   true,
		Height:   strings.TrimSpace(req.Height),
		Weight:   req.Weight,
		Grade:    strings.TrimSpace(req.Grade),
	}
	if req.Active != nil {
		player.Active = *req.Active
	}

	if fields := h.validator.StructFields(player); len(fields) > 0 {
		h.writeFieldErrors(ctx, w, http.StatusBadRequest, fields)
		return
	}

	created, err := h.store.CreatePlayer(ctx, player)
	if err != nil {
		h.writeStoreError(ctx, w, err, "Player")
		return
	}

	h.log.InfoContext(ctx, "Player created", "teamId", created.TeamID, "playerId", created.PlayerID)
	h.writeJSON(ctx, w, http.StatusCreated, created)
}
