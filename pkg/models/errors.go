package models

import "errors"

// Sentinel errors for courtside operations.
var (
	// Validation errors
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrFileTooLarge      = errors.New("file too large")
	ErrInvalidMetadata   = errors.New("invalid game metadata")
	ErrInvalidFilename   = errors.New("invalid filename")
	ErrInvalidPath       = errors.New("invalid storage path")
	ErrMissingTeam       = errors.New("team is required")

	// Upload pipeline errors
	ErrRecordCreateFailed = errors.New("failed to create game record")
	ErrTransferFailed     = errors.New("failed to transfer video")
	ErrResolveURLFailed   = errors.New("failed to resolve playback url")
	ErrFinalizeFailed     = errors.New("failed to finalize game record")
	ErrMissingPlaybackURL = errors.New("completed game requires a playback url")

	// Status errors
	ErrInvalidStatus     = errors.New("invalid upload status")
	ErrInvalidTransition = errors.New("invalid upload status transition")
	ErrStatusConflict    = errors.New("game is no longer uploading")

	// Storage errors
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrFFprobeFailed = errors.New("ffprobe execution failed")
	ErrFFmpegFailed  = errors.New("ffmpeg execution failed")
)
