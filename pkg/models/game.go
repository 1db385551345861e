package models

import (
	"fmt"
	"strings"
)

// Game is a game belonging to one team, with its video upload state.
type Game struct {
	// Keys
	PK     string `dynamodbav:"pk" json:"-"`
	SK     string `dynamodbav:"sk" json:"-"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty" json:"-"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty" json:"-"`

	// Attributes
	GameID        string `dynamodbav:"game_id" json:"id"`
	TeamID        string `dynamodbav:"team_id" json:"teamId"`
	Owner         string `dynamodbav:"owner" json:"-"`
	Opponent      string `dynamodbav:"opponent" json:"opponent"`
	Date          string `dynamodbav:"date" json:"date"`
	GameType      string `dynamodbav:"game_type,omitempty" json:"gameType,omitempty"`
	Location      string `dynamodbav:"location,omitempty" json:"location,omitempty"`
	Score         string `dynamodbav:"score,omitempty" json:"score,omitempty"`
	OurScore      *int   `dynamodbav:"our_score,omitempty" json:"ourScore,omitempty"`
	OpponentScore *int   `dynamodbav:"opponent_score,omitempty" json:"opponentScore,omitempty"`
	Notes         string `dynamodbav:"notes,omitempty" json:"notes,omitempty"`

	// Video
	VideoFileName        string       `dynamodbav:"video_file_name,omitempty" json:"videoFileName,omitempty"`
	VideoFileSize        int64        `dynamodbav:"video_file_size,omitempty" json:"videoFileSize,omitempty"`
	UploadStatus         UploadStatus `dynamodbav:"upload_status" json:"uploadStatus"`
	VideoStoragePath     string       `dynamodbav:"video_storage_path,omitempty" json:"videoStoragePath,omitempty"`
	VideoPlaybackURL     string       `dynamodbav:"video_playback_url,omitempty" json:"videoPlaybackUrl,omitempty"`
	ThumbnailStoragePath string       `dynamodbav:"thumbnail_storage_path,omitempty" json:"thumbnailStoragePath,omitempty"`
	ThumbnailPlaybackURL string       `dynamodbav:"thumbnail_playback_url,omitempty" json:"thumbnailPlaybackUrl,omitempty"`
	DurationSeconds      int          `dynamodbav:"duration_seconds" json:"duration"`
	ErrorMessage         string       `dynamodbav:"error_message,omitempty" json:"errorMessage,omitempty"`

	CreatedAt string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt string `dynamodbav:"updated_at" json:"updatedAt"`
}

// Game types accepted by the upload form.
const (
	GameTypeRegular   = "Regular"
	GameTypePlayoff   = "Playoff"
	GameTypePractice  = "Practice"
	GameTypeScrimmage = "Scrimmage"
)

// GameMetadata is the user-supplied description of a game being uploaded.
type GameMetadata struct {
	Opponent      string `json:"opponent" validate:"required"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	GameType      string `json:"gameType" validate:"omitempty,oneof=Regular Playoff Practice Scrimmage"`
	Location      string `json:"location" validate:"max=120"`
	Score         string `json:"score" validate:"max=32"`
	OurScore      *int   `json:"ourScore" validate:"omitempty,min=0"`
	OpponentScore *int   `json:"opponentScore" validate:"omitempty,min=0"`
	Notes         string `json:"notes" validate:"max=4000"`
}

// Normalize trims free text and fills defaults.
func (m GameMetadata) Normalize() GameMetadata {
	m.Opponent = strings.TrimSpace(m.Opponent)
	m.Date = strings.TrimSpace(m.Date)
	m.GameType = strings.TrimSpace(m.GameType)
	m.Location = strings.TrimSpace(m.Location)
	m.Score = strings.TrimSpace(m.Score)
	m.Notes = strings.TrimSpace(m.Notes)
	if m.GameType == "" {
		m.GameType = GameTypeRegular
	}
	if m.Location == "" {
		m.Location = "Home"
	}
	return m
}

// Finalization carries the resolved assets of a successful upload.
type Finalization struct {
	VideoStoragePath     string
	VideoPlaybackURL     string
	ThumbnailStoragePath string
	ThumbnailPlaybackURL string
	DurationSeconds      int
}

// GameUpdate lists the fields to change on a game record. Nil fields are untouched.
type GameUpdate struct {
	UploadStatus         *UploadStatus
	VideoStoragePath     *string
	VideoPlaybackURL     *string
	ThumbnailStoragePath *string
	ThumbnailPlaybackURL *string
	DurationSeconds      *int
	ErrorMessage         *string

	// ExpectStatus makes the write conditional on the stored status. Empty means unconditional.
	ExpectStatus UploadStatus
}

// CompleteUpdate builds the uploading -> completed update.
func CompleteUpdate(f Finalization) (GameUpdate, error) {
	status, err := StatusUploading.TransitionTo(StatusCompleted)
	if err != nil {
		return GameUpdate{}, err
	}
	if strings.TrimSpace(f.VideoPlaybackURL) == "" {
		return GameUpdate{}, ErrMissingPlaybackURL
	}
	if f.VideoStoragePath == "" {
		return GameUpdate{}, fmt.Errorf("%w: empty video path", ErrInvalidPath)
	}

	duration := max(f.DurationSeconds, 0)
	u := GameUpdate{
		UploadStatus:     &status,
		VideoStoragePath: &f.VideoStoragePath,
		VideoPlaybackURL: &f.VideoPlaybackURL,
		DurationSeconds:  &duration,
		ExpectStatus:     StatusUploading,
	}
	// Thumbnail fields stay empty unless both halves resolved.
	if f.ThumbnailStoragePath != "" && f.ThumbnailPlaybackURL != "" {
		u.ThumbnailStoragePath = &f.ThumbnailStoragePath
		u.ThumbnailPlaybackURL = &f.ThumbnailPlaybackURL
	}
	return u, nil
}

// FailUpdate builds the uploading -> failed update.
func FailUpdate(reason string) GameUpdate {
	status := StatusFailed
	return GameUpdate{
		UploadStatus: &status,
		ErrorMessage: &reason,
		ExpectStatus: StatusUploading,
	}
}

// Apply returns a copy of g with the update applied, enforcing the status transition.
func (g Game) Apply(u GameUpdate) (Game, error) {
	if u.ExpectStatus != "" && g.UploadStatus != u.ExpectStatus {
		return g, fmt.Errorf("%w: %s", ErrStatusConflict, g.UploadStatus)
	}
	if u.UploadStatus != nil && *u.UploadStatus != g.UploadStatus {
		next, err := g.UploadStatus.TransitionTo(*u.UploadStatus)
		if err != nil {
			return g, err
		}
		g.UploadStatus = next
	}
	if u.VideoStoragePath != nil {
		g.VideoStoragePath = *u.VideoStoragePath
	}
	if u.VideoPlaybackURL != nil {
		g.VideoPlaybackURL = *u.VideoPlaybackURL
	}
	if u.ThumbnailStoragePath != nil {
		g.ThumbnailStoragePath = *u.ThumbnailStoragePath
	}
	if u.ThumbnailPlaybackURL != nil {
		g.ThumbnailPlaybackURL = *u.ThumbnailPlaybackURL
	}
	if u.DurationSeconds != nil {
		g.DurationSeconds = *u.DurationSeconds
	}
	if u.ErrorMessage != nil {
		g.ErrorMessage = *u.ErrorMessage
	}
	if g.UploadStatus == StatusCompleted && g.VideoPlaybackURL == "" {
		return g, ErrMissingPlaybackURL
	}
	return g, nil
}
