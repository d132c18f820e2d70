package domain

import (
	"sync/atomic"
	"time"
)

type ExecutionMetrics struct {
	WorkflowsStarted   int64 `json:"workflows_started"`
	WorkflowsCompleted int64 `json:"workflows_completed"`
	WorkflowsFailed    int64 `json:"workflows_failed"`
	WorkflowsPaused    int64 `json:"workflows_paused"`
	WorkflowsResumed   int64 `json:"workflows_resumed"`

	NodesExecuted  int64 `json:"nodes_executed"`
	NodesSucceeded int64 `json:"nodes_succeeded"`
	NodesFailed    int64 `json:"nodes_failed"`
	NodesTimedOut  int64 `json:"nodes_timed_out"`
	NodesRetried   int64 `json:"nodes_retried"`
	NodesPanicked  int64 `json:"nodes_panicked"`

	TotalExecutionTimeNs int64 `json:"total_execution_time_ns"`
	NodeExecutionCount   int64 `json:"node_execution_count"`
}

func NewExecutionMetrics() *ExecutionMetrics {
	return &ExecutionMetrics{}
}

func (m *ExecutionMetrics) IncrementWorkflowsStarted() {
	atomic.AddInt64(&m.WorkflowsStarted, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsCompleted() {
	atomic.AddInt64(&m.WorkflowsCompleted, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsFailed() {
	atomic.AddInt64(&m.WorkflowsFailed, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsPaused() {
	atomic.AddInt64(&m.WorkflowsPaused, 1)
}

func (m *ExecutionMetrics) IncrementWorkflowsResumed() {
	atomic.AddInt64(&m.WorkflowsResumed, 1)
}

func (m *ExecutionMetrics) IncrementNodesSucceeded() {
	atomic.AddInt64(&m.NodesSucceeded, 1)
}

func (m *ExecutionMetrics) IncrementNodesFailed() {
	atomic.AddInt64(&m.NodesFailed, 1)
}

func (m *ExecutionMetrics) IncrementNodesTimedOut() {
	atomic.AddInt64(&m.NodesTimedOut, 1)
}

func (m *ExecutionMetrics) IncrementNodesRetried() {
	atomic.AddInt64(&m.NodesRetried, 1)
}

func (m *ExecutionMetrics) IncrementNodesPanicked() {
	atomic.AddInt64(&m.NodesPanicked, 1)
}

func (m *ExecutionMetrics) RecordNodeExecution(duration time.Duration) {
	atomic.AddInt64(&m.NodesExecuted, 1)
	atomic.AddInt64(&m.TotalExecutionTimeNs, int64(duration))
	atomic.AddInt64(&m.NodeExecutionCount, 1)
}

func (m *ExecutionMetrics) AverageNodeExecutionTime() time.Duration {
	count := atomic.LoadInt64(&m.NodeExecutionCount)
	if count == 0 {
		return 0
	}
	total := atomic.LoadInt64(&m.TotalExecutionTimeNs)
	return time.Duration(total / count)
}

// Snapshot returns a plain copy safe to serialize into checkpoints.
func (m *ExecutionMetrics) Snapshot() *ExecutionMetrics {
	return &ExecutionMetrics{
		WorkflowsStarted:     atomic.LoadInt64(&m.WorkflowsStarted),
		WorkflowsCompleted:   atomic.LoadInt64(&m.WorkflowsCompleted),
		WorkflowsFailed:      atomic.LoadInt64(&m.WorkflowsFailed),
		WorkflowsPaused:      atomic.LoadInt64(&m.WorkflowsPaused),
		WorkflowsResumed:     atomic.LoadInt64(&m.WorkflowsResumed),
		NodesExecuted:        atomic.LoadInt64(&m.NodesExecuted),
		NodesSucceeded:       atomic.LoadInt64(&m.NodesSucceeded),
		NodesFailed:          atomic.LoadInt64(&m.NodesFailed),
		NodesTimedOut:        atomic.LoadInt64(&m.NodesTimedOut),
		NodesRetried:         atomic.LoadInt64(&m.NodesRetried),
		NodesPanicked:        atomic.LoadInt64(&m.NodesPanicked),
		TotalExecutionTimeNs: atomic.LoadInt64(&m.TotalExecutionTimeNs),
		NodeExecutionCount:   atomic.LoadInt64(&m.NodeExecutionCount),
	}
}
