package ports

import (
	"context"

	"github.com/eleven-am/weft/internal/domain"
)

// Engine drives a workflow document to a terminal status. Execute always
// returns a well-formed result; internal faults surface as a FAILED status
// with an error summary, never as a panic.
type Engine interface {
	Execute(ctx context.Context, doc *domain.WorkflowDocument, opts domain.ExecutionOptions, globalInputs map[string]interface{}) *domain.ExecutionResult
	Resume(ctx context.Context, executionID string, doc *domain.WorkflowDocument, opts domain.ExecutionOptions, globalInputs map[string]interface{}) *domain.ExecutionResult
	Pause(executionID string) error
	Cancel(executionID string) error
	Status(executionID string) (domain.WorkflowStatus, error)
}
