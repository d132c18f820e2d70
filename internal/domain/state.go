package domain

import (
	"sync"
	"time"
)

type NodeExecutionResult struct {
	NodeID      string                 `json:"node_id"`
	Status      NodeStatus             `json:"status"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	Error       string                 `json:"error,omitempty"`
}

type RetryState struct {
	NodeID        string        `json:"node_id"`
	AttemptCount  int           `json:"attempt_count"`
	LastError     string        `json:"last_error,omitempty"`
	NextRetryTime time.Time     `json:"next_retry_time"`
	TotalDelay    time.Duration `json:"total_delay"`
}

// ExecutionState is the mutable state of one run. The scheduler is its only
// writer; every mutation goes through a method holding the internal mutex.
type ExecutionState struct {
	mu sync.RWMutex

	ExecutionID    string
	WorkflowID     string
	Status         WorkflowStatus
	GlobalInputs   map[string]interface{}
	CompletedNodes map[string]struct{}
	FailedNodes    map[string]struct{}
	NodeResults    map[string]*NodeExecutionResult
	RetryStates    map[string]*RetryState
	StartedAt      time.Time
	LastCheckpoint time.Time
}

func NewExecutionState(executionID, workflowID string, globalInputs map[string]interface{}) *ExecutionState {
	return &ExecutionState{
		ExecutionID:    executionID,
		WorkflowID:     workflowID,
		Status:         WorkflowStatusRunning,
		GlobalInputs:   globalInputs,
		CompletedNodes: make(map[string]struct{}),
		FailedNodes:    make(map[string]struct{}),
		NodeResults:    make(map[string]*NodeExecutionResult),
		RetryStates:    make(map[string]*RetryState),
		StartedAt:      time.Now(),
	}
}

func (s *ExecutionState) MarkCompleted(result *NodeExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result.Status = NodeStatusCompleted
	s.NodeResults[result.NodeID] = result
	s.CompletedNodes[result.NodeID] = struct{}{}
	delete(s.FailedNodes, result.NodeID)
	delete(s.RetryStates, result.NodeID)
}

func (s *ExecutionState) MarkFailed(result *NodeExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Status != NodeStatusCancelled {
		result.Status = NodeStatusFailed
	}
	s.NodeResults[result.NodeID] = result
	s.FailedNodes[result.NodeID] = struct{}{}
	delete(s.RetryStates, result.NodeID)
}

func (s *ExecutionState) SetRetryState(rs *RetryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetryStates[rs.NodeID] = rs
}

func (s *ExecutionState) IsCompleted(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.CompletedNodes[nodeID]
	return ok
}

func (s *ExecutionState) IsTerminal(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.CompletedNodes[nodeID]; ok {
		return true
	}
	_, ok := s.FailedNodes[nodeID]
	return ok
}

func (s *ExecutionState) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.CompletedNodes)
}

func (s *ExecutionState) FailedNodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.FailedNodes))
	for id := range s.FailedNodes {
		ids = append(ids, id)
	}
	return ids
}

func (s *ExecutionState) HasFailures() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.FailedNodes) > 0
}

func (s *ExecutionState) ResultFor(nodeID string) *NodeExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NodeResults[nodeID]
}

func (s *ExecutionState) SetStatus(status WorkflowStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

func (s *ExecutionState) GetStatus() WorkflowStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

func (s *ExecutionState) CheckpointDue(interval time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.LastCheckpoint) > interval
}

func (s *ExecutionState) MarkCheckpointed(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastCheckpoint = at
}

// Snapshot produces a checkpoint of the current run state. Maps are copied
// so the snapshot stays stable while the scheduler keeps mutating.
func (s *ExecutionState) Snapshot() *Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := &Checkpoint{
		ExecutionID:    s.ExecutionID,
		WorkflowID:     s.WorkflowID,
		CompletedNodes: make([]string, 0, len(s.CompletedNodes)),
		NodeResults:    make(map[string]*NodeExecutionResult, len(s.NodeResults)),
		RetryStates:    make(map[string]*RetryState, len(s.RetryStates)),
		Timestamp:      time.Now(),
	}

	for id := range s.CompletedNodes {
		cp.CompletedNodes = append(cp.CompletedNodes, id)
	}
	for id, result := range s.NodeResults {
		copied := *result
		cp.NodeResults[id] = &copied
	}
	for id, rs := range s.RetryStates {
		copied := *rs
		cp.RetryStates[id] = &copied
	}
	return cp
}

// Restore merges a checkpoint into a fresh state so completed nodes are
// never re-executed on resume.
func (s *ExecutionState) Restore(cp *Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range cp.CompletedNodes {
		s.CompletedNodes[id] = struct{}{}
	}
	for id, result := range cp.NodeResults {
		copied := *result
		s.NodeResults[id] = &copied
	}
	for id, rs := range cp.RetryStates {
		copied := *rs
		s.RetryStates[id] = &copied
	}
	s.LastCheckpoint = cp.Timestamp
}

type Checkpoint struct {
	ExecutionID    string                          `json:"execution_id"`
	WorkflowID     string                          `json:"workflow_id"`
	CompletedNodes []string                        `json:"completed_nodes"`
	NodeResults    map[string]*NodeExecutionResult `json:"node_results"`
	RetryStates    map[string]*RetryState          `json:"retry_states"`
	Metrics        *ExecutionMetrics               `json:"metrics,omitempty"`
	Timestamp      time.Time                       `json:"timestamp"`
}

type ExecutionResult struct {
	ExecutionID    string                          `json:"execution_id"`
	WorkflowID     string                          `json:"workflow_id"`
	Status         WorkflowStatus                  `json:"status"`
	StartTime      time.Time                       `json:"start_time"`
	EndTime        time.Time                       `json:"end_time"`
	Duration       time.Duration                   `json:"duration"`
	Results        map[string]*NodeExecutionResult `json:"results"`
	ExecutionOrder []string                        `json:"execution_order"`
	Metrics        *ExecutionMetrics               `json:"metrics,omitempty"`
	Error          string                          `json:"error,omitempty"`
	CheckpointData *Checkpoint                     `json:"checkpoint_data,omitempty"`
}
