package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/amillerrr/courtside/internal/logger"
	"github.com/amillerrr/courtside/internal/media"
	"github.com/amillerrr/courtside/internal/metrics"
	"github.com/amillerrr/courtside/internal/storage"
	"github.com/amillerrr/courtside/pkg/models"
)

var tracer = otel.Tracer("courtside-upload")

// DefaultPipelineTimeout bounds one upload invocation.
const DefaultPipelineTimeout = 2 * time.Hour

// ReconcileTimeout bounds the failure write, which runs after the pipeline
// context may already be done.
const ReconcileTimeout = 30 * time.Second

// File is a spooled video owned by one upload invocation.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Path        string
}

// Request is one video submission for a team.
type Request struct {
	Identity string
	TeamID   string
	File     File
	Game     models.GameMetadata
}

// GameStore creates and updates game records.
type GameStore interface {
	GameUpdater
	CreateGame(ctx context.Context, game *models.Game) (*models.Game, error)
}

// ObjectStore puts assets and resolves their playback URLs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, onProgress storage.ProgressFunc) error
	ResolvePlaybackURL(ctx context.Context, key string) (string, error)
}

// MetadataExtractor derives duration and a thumbnail. It never fails.
type MetadataExtractor interface {
	Extract(ctx context.Context, path string) media.Metadata
}

// Notifier is told about completed uploads.
type Notifier interface {
	GameUploaded(ctx context.Context, game *models.Game) error
}

// ProgressFunc receives the unified 0-100 progress for a game.
type ProgressFunc func(gameID string, percent int)

// StepError is a pipeline failure after the placeholder record exists.
type StepError struct {
	GameID string
	Step   string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("upload %s: %s: %v", e.GameID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CoordinatorConfig holds the coordinator's collaborators.
type CoordinatorConfig struct {
	Store     GameStore
	Objects   ObjectStore
	Extractor MetadataExtractor
	Validator *Validator
	Notifier  Notifier
	Registry  *Registry
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Coordinator runs the upload pipeline for one video at a time per call.
type Coordinator struct {
	store      GameStore
	objects    ObjectStore
	extractor  MetadataExtractor
	validator  *Validator
	notifier   Notifier
	registry   *Registry
	reconciler *Reconciler
	timeout    time.Duration
	log        *slog.Logger
	newID      func() string
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("game store is required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("metadata extractor is required")
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(DefaultMaxFileSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPipelineTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Coordinator{
		store:      cfg.Store,
		objects:    cfg.Objects,
		extractor:  cfg.Extractor,
		validator:  cfg.Validator,
		notifier:   cfg.Notifier,
		registry:   cfg.Registry,
		reconciler: NewReconciler(cfg.Store, cfg.Logger),
		timeout:    cfg.Timeout,
		log:        cfg.Logger,
		newID:      uuid.NewString,
	}, nil
}

// Validator returns the coordinator's validator.
func (c *Coordinator) Validator() *Validator {
	return c.validator
}

// Upload validates req, creates the placeholder game, transfers the video and
// thumbnail, and reconciles the record. The caller's cancellation does not
// abort an invocation once started; only the pipeline timeout does.
func (c *Coordinator) Upload(ctx context.Context, req Request, onProgress ProgressFunc) (*models.Game, error) {
	if err := c.validator.ValidateRequest(req); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				metrics.RecordRejection(string(v))
			}
		}
		return nil, err
	}

	owner := storage.Scope{Identity: req.Identity, TeamID: req.TeamID}
	if err := owner.ValidateOwner(); err != nil {
		metrics.RecordOutcome("path_rejected")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "upload-game-video")
	defer span.End()
	span.SetAttributes(
		attribute.String("team.id", req.TeamID),
		attribute.Int64("video.size_bytes", req.File.Size),
		attribute.String("video.content_type", req.File.ContentType),
	)

	start := time.Now()
	metrics.ActiveUploads.Inc()
	defer metrics.ActiveUploads.Dec()
	defer func() { metrics.UploadDuration.Observe(time.Since(start).Seconds()) }()

	// Nothing is transferred until the uploading record exists.
	game, err := c.createPlaceholder(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create placeholder failed")
		metrics.RecordOutcome("create_failed")
		logger.Error(ctx, c.log, "Failed to create game record", "teamId", req.TeamID, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("game.id", game.GameID))

	tracker := NewTracker(func(p int) {
		if c.registry != nil {
			c.registry.Report(game.GameID, p)
		}
		if onProgress != nil {
			onProgress(game.GameID, p)
		}
	})
	tracker.Start()

	final, step, err := c.run(ctx, game, req, tracker)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, step+" failed")
		return nil, c.fail(ctx, game.GameID, step, err)
	}

	tracker.Finish()
	if c.registry != nil {
		c.registry.Finish(game.GameID, models.StatusCompleted)
	}
	metrics.RecordOutcome("completed")
	logger.Info(ctx, c.log, "Game video uploaded",
		"gameId", final.GameID,
		"teamId", final.TeamID,
		"durationSeconds", final.DurationSeconds,
		"hasThumbnail", final.ThumbnailPlaybackURL != "",
		"progress", tracker.Percent(),
	)

	c.notify(ctx, final)
	return final, nil
}

func (c *Coordinator) createPlaceholder(ctx context.Context, req Request) (*models.Game, error) {
	meta := req.Game.Normalize()
	game := &models.Game{
		GameID:        c.newID(),
		TeamID:        req.TeamID,
		Owner:         req.Identity,
		Opponent:      meta.Opponent,
		Date:          meta.Date,
		GameType:      meta.GameType,
		Location:      meta.Location,
		Score:         meta.Score,
		OurScore:      meta.OurScore,
		OpponentScore: meta.OpponentScore,
		Notes:         meta.Notes,
		VideoFileName: req.File.Name,
		VideoFileSize: req.File.Size,
		UploadStatus:  models.StatusUploading,
	}

	created, err := c.store.CreateGame(ctx, game)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRecordCreateFailed, err)
	}
	return created, nil
}

// run transfers the assets and finalizes the record. It returns the failing
// step name on error.
func (c *Coordinator) run(ctx context.Context, game *models.Game, req Request, tracker *Tracker) (*models.Game, string, error) {
	scope := storage.Scope{Identity: req.Identity, TeamID: req.TeamID, GameID: game.GameID}

	videoPath, err := storage.VideoPath(scope, req.File.Name)
	if err != nil {
		return nil, "path", err
	}

	// Metadata extraction reads the spooled copy while the video transfers.
	md, err := c.transferVideo(ctx, videoPath, req.File, tracker)
	if err != nil {
		return nil, "transfer", fmt.Errorf("%w: %v", models.ErrTransferFailed, err)
	}
	tracker.TransferDone()

	if md.DurationSeconds == 0 {
		metrics.RecordDegradation("duration")
	}

	// A missing thumbnail never fails the upload.
	thumbPath, thumbURL := c.transferThumbnail(ctx, scope, md)

	// The video URL is required.
	videoURL, err := c.objects.ResolvePlaybackURL(ctx, videoPath)
	if err == nil && videoURL == "" {
		err = models.ErrMissingPlaybackURL
	}
	if err != nil {
		return nil, "resolve", fmt.Errorf("%w: %v", models.ErrResolveURLFailed, err)
	}

	final, err := c.reconciler.Complete(ctx, game.GameID, models.Finalization{
		VideoStoragePath:     videoPath,
		VideoPlaybackURL:     videoURL,
		ThumbnailStoragePath: thumbPath,
		ThumbnailPlaybackURL: thumbURL,
		DurationSeconds:      md.DurationSeconds,
	})
	if err != nil {
		return nil, "finalize", err
	}
	return final, "", nil
}

func (c *Coordinator) transferVideo(ctx context.Context, key string, file File, tracker *Tracker) (media.Metadata, error) {
	ctx, span := tracer.Start(ctx, "transfer-video")
	defer span.End()

	f, err := os.Open(file.Path)
	if err != nil {
		return media.Metadata{}, fmt.Errorf("failed to open spooled video: %w", err)
	}
	defer f.Close()

	size := file.Size
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	var md media.Metadata
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		md = c.extractor.Extract(gctx, file.Path)
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		err := c.objects.Upload(gctx, key, f, size, file.ContentType, tracker.Transfer)
		if err != nil {
			return err
		}
		metrics.TransferDuration.WithLabelValues("video").Observe(time.Since(start).Seconds())
		metrics.TransferredBytes.WithLabelValues("video").Add(float64(size))
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return media.Metadata{}, err
	}
	return md, nil
}

// transferThumbnail uploads the thumbnail and resolves its URL. Failures leave both empty.
func (c *Coordinator) transferThumbnail(ctx context.Context, scope storage.Scope, md media.Metadata) (string, string) {
	if !md.HasThumbnail() {
		metrics.RecordDegradation("thumbnail")
		return "", ""
	}

	ctx, span := tracer.Start(ctx, "transfer-thumbnail")
	defer span.End()

	degrade := func(msg string, err error) (string, string) {
		span.RecordError(err)
		metrics.RecordDegradation("thumbnail")
		logger.Warn(ctx, c.log, msg, "gameId", scope.GameID, "error", err)
		return "", ""
	}

	path, err := storage.ThumbnailPath(scope)
	if err != nil {
		return degrade("Invalid thumbnail path", err)
	}

	start := time.Now()
	size := int64(len(md.Thumbnail))
	if err := c.objects.Upload(ctx, path, bytes.NewReader(md.Thumbnail), size, media.ThumbnailContentType, nil); err != nil {
		return degrade("Thumbnail upload failed", err)
	}
	metrics.TransferDuration.WithLabelValues("thumbnail").Observe(time.Since(start).Seconds())
	metrics.TransferredBytes.WithLabelValues("thumbnail").Add(float64(size))

	url, err := c.objects.ResolvePlaybackURL(ctx, path)
	if err != nil {
		return degrade("Thumbnail URL resolution failed", err)
	}
	if url == "" {
		return degrade("Thumbnail URL resolution failed", models.ErrMissingPlaybackURL)
	}
	return path, url
}

// fail reconciles the record to failed and returns the error to surface.
// The write gets its own deadline so a timed-out pipeline is still recorded.
func (c *Coordinator) fail(ctx context.Context, gameID, step string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReconcileTimeout)
	defer cancel()

	metrics.RecordOutcome(step + "_failed")
	logger.Error(ctx, c.log, "Upload pipeline failed",
		"gameId", gameID,
		"step", step,
		"error", cause,
	)

	// A failed reconcile leaves the record uploading; the attempt is over either way.
	_, _ = c.reconciler.Fail(ctx, gameID, cause)
	if c.registry != nil {
		c.registry.Finish(gameID, models.StatusFailed)
	}
	return &StepError{GameID: gameID, Step: step, Err: cause}
}

func (c *Coordinator) notify(ctx context.Context, game *models.Game) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.GameUploaded(ctx, game); err != nil {
		logger.Warn(ctx, c.log, "Failed to publish upload event", "gameId", game.GameID, "error", err)
	}
}
