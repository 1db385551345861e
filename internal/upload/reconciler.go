package upload

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/amillerrr/courtside/internal/logger"
	"github.com/amillerrr/courtside/internal/metrics"
	"github.com/amillerrr/courtside/pkg/models"
)

const maxErrorMessageLength = 1000

// GameUpdater applies a single update to a stored game.
type GameUpdater interface {
	UpdateGame(ctx context.Context, gameID string, u models.GameUpdate) (*models.Game, error)
}

// Reconciler moves an uploading game to its outcome with exactly one update call.
type Reconciler struct {
	store GameUpdater
	log   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store GameUpdater, log *slog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Complete marks the game completed with its resolved assets.
// A finalization without a playback URL is rejected before any call.
func (r *Reconciler) Complete(ctx context.Context, gameID string, f models.Finalization) (*models.Game, error) {
	ctx, span := tracer.Start(ctx, "reconcile-complete")
	defer span.End()

	u, err := models.CompleteUpdate(f)
	if err != nil {
		return nil, err
	}

	game, err := r.store.UpdateGame(ctx, gameID, u)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", models.ErrFinalizeFailed, err)
	}
	return game, nil
}

// Fail marks the game failed. Errors are logged and returned, never retried.
func (r *Reconciler) Fail(ctx context.Context, gameID string, cause error) (*models.Game, error) {
	ctx, span := tracer.Start(ctx, "reconcile-fail")
	defer span.End()
	span.SetAttributes(attribute.String("game.id", gameID))

	reason := cause.Error()
	if len(reason) > maxErrorMessageLength {
		reason = reason[:maxErrorMessageLength]
	}

	game, err := r.store.UpdateGame(ctx, gameID, models.FailUpdate(reason))
	if err != nil {
		span.RecordError(err)
		metrics.ReconcileFailures.Inc()
		logger.Error(ctx, r.log, "Failed to mark game failed",
			"gameId", gameID,
			"cause", cause,
			"error", err,
		)
		return nil, err
	}
	return game, nil
}
