package ports

import (
	"time"

	"github.com/eleven-am/weft/internal/domain"
)

type MetricsCollector interface {
	RecordWorkflowStart(executionID, workflowID string)
	RecordWorkflowComplete(executionID string, status domain.WorkflowStatus, duration time.Duration)
	RecordWorkflowResumed(executionID string)
	RecordNodeStart(executionID, nodeID, nodeType string)
	RecordNodeComplete(executionID, nodeID string, status domain.NodeStatus, duration time.Duration)
	RecordNodeRetry(executionID, nodeID string)
	RecordNodeTimeout(executionID, nodeID string)
	RecordNodePanic(executionID, nodeID string)
	GetMetrics(executionID string) *domain.ExecutionMetrics
	GetAggregatedMetrics() *domain.ExecutionMetrics
	Forget(executionID string)
}
