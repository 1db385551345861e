package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amillerrr/courtside/pkg/models"
)

func TestVideoPath(t *testing.T) {
	scope := Scope{Identity: "coach-1", TeamID: "t1", GameID: "g1"}

	tests := []struct {
		name     string
		filename string
		want     string
		wantErr  bool
	}{
		{"plain", "game.mp4", "videos/coach-1/team-t1/game-g1/game.mp4", false},
		{"spaces kept", "Lakers Game.mov", "videos/coach-1/team-t1/game-g1/Lakers Game.mov", false},
		{"windows path", `C:\Users\coach\game.mp4`, "videos/coach-1/team-t1/game-g1/game.mp4", false},
		{"traversal stripped", "../../etc/passwd.mp4", "videos/coach-1/team-t1/game-g1/passwd.mp4", false},
		{"encoded traversal", "..%2F..%2Fsecret.mp4", "videos/coach-1/team-t1/game-g1/secret.mp4", false},
		{"unsafe chars", "game<1>?.mp4", "videos/coach-1/team-t1/game-g1/game_1_.mp4", false},
		{"empty", "", "", true},
		{"dots only", "..", "", true},
		{"too long", strings.Repeat("a", 300) + ".mp4", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VideoPath(scope, tt.filename)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThumbnailPath(t *testing.T) {
	got, err := ThumbnailPath(Scope{Identity: "coach-1", TeamID: "t1", GameID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "thumbnails/coach-1/team-t1/game-g1/thumbnail.jpg", got)
}

func TestScope_RejectsUnsafeSegments(t *testing.T) {
	tests := []Scope{
		{Identity: "", TeamID: "t1", GameID: "g1"},
		{Identity: "coach", TeamID: "../t1", GameID: "g1"},
		{Identity: "coach", TeamID: "t1", GameID: "g/1"},
		{Identity: `a\b`, TeamID: "t1", GameID: "g1"},
	}
	for _, scope := range tests {
		_, err := ThumbnailPath(scope)
		assert.ErrorIs(t, err, models.ErrInvalidPath, "scope %+v", scope)
	}
}

func TestScope_ValidateOwner(t *testing.T) {
	assert.NoError(t, Scope{Identity: "coach", TeamID: "t1"}.ValidateOwner())

	for _, scope := range []Scope{
		{Identity: "../evil", TeamID: "t1"},
		{Identity: "coach", TeamID: ""},
		{Identity: "a/b", TeamID: "t1"},
	} {
		assert.ErrorIs(t, scope.ValidateOwner(), models.ErrInvalidPath, "scope %+v", scope)
	}
}
