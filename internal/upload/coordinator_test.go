package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amillerrr/courtside/internal/logger"
	"github.com/amillerrr/courtside/internal/media"
	"github.com/amillerrr/courtside/pkg/models"
)

var testJPEG = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

type harness struct {
	store     *fakeStore
	objects   *fakeObjects
	extractor *fakeExtractor
	notifier  *fakeNotifier
	registry  *Registry
	coord     *Coordinator

	mu       sync.Mutex
	progress []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newFakeStore(),
		objects:   newFakeObjects(),
		extractor: &fakeExtractor{md: media.Metadata{DurationSeconds: 2700, Thumbnail: testJPEG}},
		notifier:  &fakeNotifier{},
		registry:  NewRegistry(0),
	}
	coord, err := NewCoordinator(CoordinatorConfig{
		Store:     h.store,
		Objects:   h.objects,
		Extractor: h.extractor,
		Validator: NewValidator(DefaultMaxFileSize),
		Notifier:  h.notifier,
		Registry:  h.registry,
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	coord.newID = func() string { return "game-1" }
	h.coord = coord
	return h
}

func (h *harness) onProgress(_ string, p int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = append(h.progress, p)
}

func (h *harness) reported() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.progress...)
}

// spoolFile creates a sparse file of size bytes.
func spoolFile(t *testing.T, name string, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return path
}

func lakersRequest(t *testing.T, size int64) Request {
	return Request{
		Identity: "coach-1",
		TeamID:   "team-t",
		File: File{
			Name:        "lakers.mp4",
			ContentType: "video/mp4",
			Size:        size,
			Path:        spoolFile(t, "lakers.mp4", size),
		},
		Game: models.GameMetadata{Opponent: "Lakers", Date: "2024-03-15"},
	}
}

func assertMonotonic(t *testing.T, progress []int) {
	t.Helper()
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress went backwards at %d: %v", i, progress)
	}
}

func TestCoordinator_LakersScenario(t *testing.T) {
	h := newHarness(t)
	const size = 50 << 20

	// Record the store state at the moment 100 is reported.
	var updatesAt100 int
	onProgress := func(id string, p int) {
		h.onProgress(id, p)
		if p == Finished {
			updatesAt100 = len(h.store.updates)
		}
	}

	game, err := h.coord.Upload(context.Background(), lakersRequest(t, size), onProgress)
	require.NoError(t, err)

	assert.Equal(t, 1, h.store.creates)
	require.Len(t, h.store.updates, 1)
	assert.Equal(t, models.StatusUploading, h.store.updates[0].ExpectStatus)

	assert.Equal(t, models.StatusCompleted, game.UploadStatus)
	assert.Equal(t, "Lakers", game.Opponent)
	assert.Equal(t, "2024-03-15", game.Date)
	assert.Equal(t, models.GameTypeRegular, game.GameType)
	assert.Positive(t, game.DurationSeconds)
	assert.Equal(t, "videos/coach-1/team-team-t/game-game-1/lakers.mp4", game.VideoStoragePath)
	assert.Equal(t, "https://cdn.example.com/videos/coach-1/team-team-t/game-game-1/lakers.mp4", game.VideoPlaybackURL)
	assert.Equal(t, "thumbnails/coach-1/team-team-t/game-game-1/thumbnail.jpg", game.ThumbnailStoragePath)
	assert.NotEmpty(t, game.ThumbnailPlaybackURL)
	assert.Equal(t, int64(size), h.objects.uploads[game.VideoStoragePath])

	progress := h.reported()
	require.NotEmpty(t, progress)
	assertMonotonic(t, progress)
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, Finished, progress[len(progress)-1])
	for _, p := range progress[:len(progress)-1] {
		assert.LessOrEqual(t, p, TransferCeiling)
	}
	assert.Contains(t, progress, TransferCeiling)
	assert.Equal(t, 1, updatesAt100, "100 must be reported only after finalization")

	require.Len(t, h.notifier.games, 1)
	assert.Equal(t, "game-1", h.notifier.games[0].GameID)

	snap, ok := h.registry.Get("game-1")
	require.True(t, ok)
	assert.Equal(t, Finished, snap.Percent)
	assert.Equal(t, models.StatusCompleted, snap.Status)
}

func TestCoordinator_UnsupportedFormat_NoCalls(t *testing.T) {
	h := newHarness(t)
	req := lakersRequest(t, 1024)
	req.File.Name = "notes.txt"
	req.File.ContentType = "text/plain"

	game, err := h.coord.Upload(context.Background(), req, h.onProgress)
	require.Error(t, err)
	assert.Nil(t, game)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(UnsupportedFormat))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
	assert.Equal(t, MsgUnsupportedFormat, verr.Fields["file"])

	assert.Zero(t, h.store.calls())
	assert.Zero(t, h.objects.totalCalls())
	assert.Zero(t, h.extractor.calls)
	assert.Empty(t, h.reported())
}

func TestCoordinator_FileTooLarge_RegardlessOfType(t *testing.T) {
	for _, ct := range []string{"video/mp4", "text/plain"} {
		t.Run(ct, func(t *testing.T) {
			h := newHarness(t)
			h.coord.validator = NewValidator(1 << 20)
			req := lakersRequest(t, 2<<20)
			req.File.ContentType = ct

			_, err := h.coord.Upload(context.Background(), req, nil)
			assert.ErrorIs(t, err, models.ErrFileTooLarge)
			assert.Zero(t, h.store.calls())
			assert.Zero(t, h.objects.totalCalls())
		})
	}
}

func TestCoordinator_MissingMetadata_NoCalls(t *testing.T) {
	h := newHarness(t)
	req := lakersRequest(t, 1024)
	req.TeamID = ""
	req.Game = models.GameMetadata{Opponent: "   "}

	_, err := h.coord.Upload(context.Background(), req, nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgMissingTeam, verr.Fields["team"])
	assert.Equal(t, MsgMissingOpponent, verr.Fields["opponent"])
	assert.Equal(t, MsgMissingDate, verr.Fields["date"])
	assert.ErrorIs(t, err, models.ErrMissingTeam)
	assert.ErrorIs(t, err, models.ErrInvalidMetadata)
	assert.Zero(t, h.store.calls())
}

func TestCoordinator_TransferFailsMidStream(t *testing.T) {
	h := newHarness(t)
	h.objects.failAfter = 10 << 20
	req := lakersRequest(t, 50<<20)

	game, err := h.coord.Upload(context.Background(), req, h.onProgress)
	require.Error(t, err)
	assert.Nil(t, game)
	assert.ErrorIs(t, err, models.ErrTransferFailed)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "game-1", stepErr.GameID)
	assert.Equal(t, "transfer", stepErr.Step)

	stored := h.store.only()
	assert.Equal(t, models.StatusFailed, stored.UploadStatus)
	assert.Empty(t, stored.VideoPlaybackURL)
	assert.NotEmpty(t, stored.ErrorMessage)

	// The spooled file stays for resubmission.
	_, statErr := os.Stat(req.File.Path)
	assert.NoError(t, statErr)

	progress := h.reported()
	assertMonotonic(t, progress)
	assert.NotContains(t, progress, Finished)
	for _, p := range progress {
		assert.LessOrEqual(t, p, TransferCeiling)
	}

	snap, ok := h.registry.Get("game-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, snap.Status)
	assert.Empty(t, h.notifier.games)
}

func TestCoordinator_ThumbnailFailure_StillCompletes(t *testing.T) {
	h := newHarness(t)
	h.objects.thumbErr = errors.New("thumbnail bucket unavailable")

	game, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), h.onProgress)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, game.UploadStatus)
	assert.NotEmpty(t, game.VideoPlaybackURL)
	assert.Empty(t, game.ThumbnailStoragePath)
	assert.Empty(t, game.ThumbnailPlaybackURL)
}

func TestCoordinator_ThumbnailURLFailure_StillCompletes(t *testing.T) {
	h := newHarness(t)
	h.objects.resolve = func(key string) (string, error) {
		if filepath.Base(key) == "thumbnail.jpg" {
			return "", errors.New("presign failed")
		}
		return "https://cdn.example.com/" + key, nil
	}

	game, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, game.UploadStatus)
	assert.Empty(t, game.ThumbnailStoragePath)
	assert.Empty(t, game.ThumbnailPlaybackURL)
}

func TestCoordinator_NoMetadata_StillCompletes(t *testing.T) {
	h := newHarness(t)
	h.extractor.md = media.Metadata{}

	game, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, game.UploadStatus)
	assert.Zero(t, game.DurationSeconds)
	assert.Empty(t, game.ThumbnailPlaybackURL)
	assert.Len(t, h.objects.uploads, 1, "only the video should be uploaded")
}

func TestCoordinator_VideoURLFailure_Fails(t *testing.T) {
	tests := []struct {
		name    string
		resolve func(string) (string, error)
	}{
		{"error", func(string) (string, error) { return "", errors.New("access denied") }},
		{"empty url", func(string) (string, error) { return "", nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.objects.resolve = tt.resolve

			_, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), h.onProgress)
			assert.ErrorIs(t, err, models.ErrResolveURLFailed)

			stored := h.store.only()
			assert.Equal(t, models.StatusFailed, stored.UploadStatus)
			assert.Empty(t, stored.VideoPlaybackURL)
			assert.NotContains(t, h.reported(), Finished)
		})
	}
}

func TestCoordinator_CreateFailure_NoTransfer(t *testing.T) {
	h := newHarness(t)
	h.store.createErr = errors.New("table not found")

	_, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), h.onProgress)
	assert.ErrorIs(t, err, models.ErrRecordCreateFailed)

	var stepErr *StepError
	assert.False(t, errors.As(err, &stepErr))
	assert.Empty(t, h.store.updates, "nothing to reconcile")
	assert.Zero(t, h.objects.totalCalls())
	assert.Empty(t, h.reported())
}

func TestCoordinator_FinalizeFailure_MarksFailed(t *testing.T) {
	h := newHarness(t)
	h.store.failUpdateOnCall = 1

	_, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), h.onProgress)
	assert.ErrorIs(t, err, models.ErrFinalizeFailed)

	require.Len(t, h.store.updates, 2)
	assert.Equal(t, models.StatusFailed, *h.store.updates[1].UploadStatus)
	assert.Equal(t, models.StatusFailed, h.store.only().UploadStatus)
	assert.NotContains(t, h.reported(), Finished)
}

func TestCoordinator_ReconcileFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.objects.videoErr = errors.New("network down")
	h.store.updateErr = errors.New("throttled")

	_, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), nil)
	assert.ErrorIs(t, err, models.ErrTransferFailed)

	assert.Len(t, h.store.updates, 1)
	assert.Equal(t, models.StatusUploading, h.store.only().UploadStatus)

	snap, ok := h.registry.Get("game-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, snap.Status)
}

func TestCoordinator_PipelineTimeout_MarksFailed(t *testing.T) {
	store := newFakeStore()
	objects := newFakeObjects()
	objects.stall = true
	registry := NewRegistry(0)

	coord, err := NewCoordinator(CoordinatorConfig{
		Store:     ctxStore{store},
		Objects:   objects,
		Extractor: &fakeExtractor{},
		Registry:  registry,
		Timeout:   50 * time.Millisecond,
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	coord.newID = func() string { return "game-1" }

	_, err = coord.Upload(context.Background(), lakersRequest(t, 4096), nil)
	assert.ErrorIs(t, err, models.ErrTransferFailed)

	stored := store.only()
	assert.Equal(t, models.StatusFailed, stored.UploadStatus)
	assert.NotEmpty(t, stored.ErrorMessage)

	snap, ok := registry.Get("game-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, snap.Status)
}

func TestCoordinator_UnsafeIdentity_NoCalls(t *testing.T) {
	h := newHarness(t)
	req := lakersRequest(t, 4096)
	req.Identity = "../evil"

	_, err := h.coord.Upload(context.Background(), req, h.onProgress)
	assert.ErrorIs(t, err, models.ErrInvalidPath)

	assert.Zero(t, h.store.calls())
	assert.Zero(t, h.objects.totalCalls())
	assert.Empty(t, h.reported())
}

func TestCoordinator_IgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.objects.onVideoDone = cancel

	game, err := h.coord.Upload(ctx, lakersRequest(t, 4096), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, game.UploadStatus)
}

func TestCoordinator_NotifierFailureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("queue unavailable")

	game, err := h.coord.Upload(context.Background(), lakersRequest(t, 4096), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, game.UploadStatus)
}

func TestNewCoordinator_RequiresCollaborators(t *testing.T) {
	_, err := NewCoordinator(CoordinatorConfig{})
	assert.Error(t, err)

	_, err = NewCoordinator(CoordinatorConfig{Store: newFakeStore()})
	assert.Error(t, err)

	_, err = NewCoordinator(CoordinatorConfig{Store: newFakeStore(), Objects: newFakeObjects()})
	assert.Error(t, err)
}
