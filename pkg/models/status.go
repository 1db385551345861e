package models

import "fmt"

// UploadStatus represents where a game's video upload stands.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusUploading UploadStatus = "uploading"
	StatusCompleted UploadStatus = "completed"
	StatusFailed    UploadStatus = "failed"
)

// IsValid returns true if the status is a valid UploadStatus.
func (s UploadStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusUploading, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether an upload attempt has concluded.
func (s UploadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// A retry is a new record, so terminal states never move.
func (s UploadStatus) CanTransitionTo(next UploadStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusUploading || next == StatusFailed
	case StatusUploading:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// TransitionTo returns next if the move is allowed.
func (s UploadStatus) TransitionTo(next UploadStatus) (UploadStatus, error) {
	if !s.IsValid() || !next.IsValid() {
		return s, fmt.Errorf("%w: %q -> %q", ErrInvalidStatus, s, next)
	}
	if !s.CanTransitionTo(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
