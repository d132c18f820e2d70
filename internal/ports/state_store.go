package ports

import (
	"context"

	"github.com/eleven-am/weft/internal/domain"
)

// StateStore persists run checkpoints. LoadState returns (nil, nil) when no
// checkpoint exists for the execution.
type StateStore interface {
	SaveState(ctx context.Context, executionID string, checkpoint *domain.Checkpoint) error
	LoadState(ctx context.Context, executionID string) (*domain.Checkpoint, error)
	DeleteState(ctx context.Context, executionID string) error
	ListStates(ctx context.Context, workflowID string) ([]string, error)
	Close() error
}
