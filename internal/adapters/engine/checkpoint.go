package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

// checkpointManager gates periodic snapshots of run state behind the
// configured interval and restores them on resume.
type checkpointManager struct {
	store    ports.StateStore
	metrics  ports.MetricsCollector
	enabled  bool
	interval time.Duration
	logger   *slog.Logger
}

func newCheckpointManager(store ports.StateStore, metrics ports.MetricsCollector, opts domain.ExecutionOptions, logger *slog.Logger) *checkpointManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &checkpointManager{
		store:    store,
		metrics:  metrics,
		enabled:  opts.EnableCheckpointing && store != nil,
		interval: opts.CheckpointInterval,
		logger:   logger.With("component", "checkpoint-manager"),
	}
}

// MaybeCheckpoint writes a snapshot when the interval has elapsed since the
// last write. Failures are logged, never fatal: a missed checkpoint only
// widens the recovery window.
func (cm *checkpointManager) MaybeCheckpoint(ctx context.Context, state *domain.ExecutionState) {
	if !cm.enabled || !state.CheckpointDue(cm.interval) {
		return
	}
	cm.write(ctx, state)
}

// Force writes a snapshot unconditionally. Called before a PAUSED
// transition returns control to the caller.
func (cm *checkpointManager) Force(ctx context.Context, state *domain.ExecutionState) {
	if !cm.enabled {
		return
	}
	cm.write(ctx, state)
}

func (cm *checkpointManager) write(ctx context.Context, state *domain.ExecutionState) {
	checkpoint := state.Snapshot()
	if cm.metrics != nil {
		checkpoint.Metrics = cm.metrics.GetMetrics(state.ExecutionID)
	}
	if err := cm.store.SaveState(ctx, state.ExecutionID, checkpoint); err != nil {
		cm.logger.Error("checkpoint write failed",
			"execution_id", state.ExecutionID,
			"error", err.Error(),
		)
		return
	}
	state.MarkCheckpointed(checkpoint.Timestamp)
	cm.logger.Debug("checkpoint written",
		"execution_id", state.ExecutionID,
		"completed_nodes", len(checkpoint.CompletedNodes),
	)
}

// Restore merges a stored checkpoint into a fresh state. Returns whether a
// checkpoint existed.
func (cm *checkpointManager) Restore(ctx context.Context, executionID string, state *domain.ExecutionState) (bool, error) {
	if cm.store == nil {
		return false, nil
	}

	checkpoint, err := cm.store.LoadState(ctx, executionID)
	if err != nil {
		return false, err
	}
	if checkpoint == nil {
		return false, nil
	}

	state.Restore(checkpoint)
	cm.logger.Info("resumed from checkpoint",
		"execution_id", executionID,
		"completed_nodes", len(checkpoint.CompletedNodes),
		"checkpoint_age", time.Since(checkpoint.Timestamp),
	)
	return true, nil
}
