package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/weft/internal/domain"
)

// Collector keeps per-execution and aggregate counters in memory.
type Collector struct {
	mu         sync.RWMutex
	logger     *slog.Logger
	perRun     map[string]*domain.ExecutionMetrics
	aggregated *domain.ExecutionMetrics
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		logger:     logger.With("component", "metrics-collector"),
		perRun:     make(map[string]*domain.ExecutionMetrics),
		aggregated: domain.NewExecutionMetrics(),
	}
}

func (c *Collector) metricsFor(executionID string) *domain.ExecutionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.perRun[executionID]
	if !ok {
		m = domain.NewExecutionMetrics()
		c.perRun[executionID] = m
	}
	return m
}

func (c *Collector) RecordWorkflowStart(executionID, workflowID string) {
	c.metricsFor(executionID).IncrementWorkflowsStarted()
	c.aggregated.IncrementWorkflowsStarted()
	c.logger.Debug("workflow start recorded", "execution_id", executionID, "workflow_id", workflowID)
}

func (c *Collector) RecordWorkflowComplete(executionID string, status domain.WorkflowStatus, duration time.Duration) {
	m := c.metricsFor(executionID)

	switch status {
	case domain.WorkflowStatusCompleted:
		m.IncrementWorkflowsCompleted()
		c.aggregated.IncrementWorkflowsCompleted()
	case domain.WorkflowStatusPaused:
		m.IncrementWorkflowsPaused()
		c.aggregated.IncrementWorkflowsPaused()
	default:
		m.IncrementWorkflowsFailed()
		c.aggregated.IncrementWorkflowsFailed()
	}

	c.logger.Debug("workflow completion recorded",
		"execution_id", executionID,
		"status", status,
		"duration", duration,
	)
}

func (c *Collector) RecordWorkflowResumed(executionID string) {
	c.metricsFor(executionID).IncrementWorkflowsResumed()
	c.aggregated.IncrementWorkflowsResumed()
	c.logger.Debug("workflow resume recorded", "execution_id", executionID)
}

func (c *Collector) RecordNodeStart(executionID, nodeID, nodeType string) {
	c.logger.Debug("node start recorded", "execution_id", executionID, "node_id", nodeID, "node_type", nodeType)
}

func (c *Collector) RecordNodeComplete(executionID, nodeID string, status domain.NodeStatus, duration time.Duration) {
	m := c.metricsFor(executionID)
	m.RecordNodeExecution(duration)
	c.aggregated.RecordNodeExecution(duration)

	switch status {
	case domain.NodeStatusCompleted:
		m.IncrementNodesSucceeded()
		c.aggregated.IncrementNodesSucceeded()
	case domain.NodeStatusFailed, domain.NodeStatusCancelled:
		m.IncrementNodesFailed()
		c.aggregated.IncrementNodesFailed()
	}

	c.logger.Debug("node completion recorded",
		"execution_id", executionID,
		"node_id", nodeID,
		"status", status,
		"duration", duration,
	)
}

func (c *Collector) RecordNodeRetry(executionID, nodeID string) {
	c.metricsFor(executionID).IncrementNodesRetried()
	c.aggregated.IncrementNodesRetried()
	c.logger.Debug("node retry recorded", "execution_id", executionID, "node_id", nodeID)
}

func (c *Collector) RecordNodeTimeout(executionID, nodeID string) {
	c.metricsFor(executionID).IncrementNodesTimedOut()
	c.aggregated.IncrementNodesTimedOut()
	c.logger.Debug("node timeout recorded", "execution_id", executionID, "node_id", nodeID)
}

func (c *Collector) RecordNodePanic(executionID, nodeID string) {
	c.metricsFor(executionID).IncrementNodesPanicked()
	c.aggregated.IncrementNodesPanicked()
	c.logger.Debug("node panic recorded", "execution_id", executionID, "node_id", nodeID)
}

func (c *Collector) GetMetrics(executionID string) *domain.ExecutionMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.perRun[executionID]
	if !ok {
		return domain.NewExecutionMetrics()
	}
	return m.Snapshot()
}

func (c *Collector) GetAggregatedMetrics() *domain.ExecutionMetrics {
	return c.aggregated.Snapshot()
}

// Forget drops per-run counters once a result has been archived.
func (c *Collector) Forget(executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.perRun, executionID)
}
