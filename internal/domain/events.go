package domain

import (
	"time"
)

type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowPaused    EventType = "workflow_paused"
	EventWorkflowResumed   EventType = "workflow_resumed"
	EventNodeStarted       EventType = "node_started"
	EventNodeCompleted     EventType = "node_completed"
	EventNodeFailed        EventType = "node_failed"
	EventNodeRetrying      EventType = "node_retrying"
	EventProgress          EventType = "progress"
)

type EventHandler func(Event)

type Event struct {
	Type        EventType   `json:"type"`
	ExecutionID string      `json:"execution_id"`
	WorkflowID  string      `json:"workflow_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload,omitempty"`
}

type WorkflowStartedEvent struct {
	ExecutionID  string                 `json:"execution_id"`
	WorkflowID   string                 `json:"workflow_id"`
	StartedAt    time.Time              `json:"started_at"`
	NodeCount    int                    `json:"node_count"`
	GlobalInputs map[string]interface{} `json:"global_inputs,omitempty"`
	Resumed      bool                   `json:"resumed"`
}

type WorkflowCompletedEvent struct {
	ExecutionID   string        `json:"execution_id"`
	WorkflowID    string        `json:"workflow_id"`
	CompletedAt   time.Time     `json:"completed_at"`
	Duration      time.Duration `json:"duration"`
	ExecutedNodes []string      `json:"executed_nodes"`
}

type WorkflowFailedEvent struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	FailedAt    time.Time `json:"failed_at"`
	FailedNodes []string  `json:"failed_nodes"`
	Error       string    `json:"error"`
}

type WorkflowPausedEvent struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	PausedAt    time.Time `json:"paused_at"`
	Reason      string    `json:"reason,omitempty"`
}

type WorkflowResumedEvent struct {
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	ResumedAt   time.Time `json:"resumed_at"`
}

type NodeStartedEvent struct {
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id"`
	NodeType    string                 `json:"node_type"`
	StartedAt   time.Time              `json:"started_at"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Attempt     int                    `json:"attempt"`
}

type NodeCompletedEvent struct {
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id"`
	CompletedAt time.Time              `json:"completed_at"`
	Duration    time.Duration          `json:"duration"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	RetryCount  int                    `json:"retry_count"`
}

type NodeFailedEvent struct {
	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id"`
	FailedAt    time.Time     `json:"failed_at"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error"`
	Retryable   bool          `json:"retryable"`
	RetryCount  int           `json:"retry_count"`
}

type NodeRetryingEvent struct {
	ExecutionID   string        `json:"execution_id"`
	NodeID        string        `json:"node_id"`
	Attempt       int           `json:"attempt"`
	Delay         time.Duration `json:"delay"`
	NextRetryTime time.Time     `json:"next_retry_time"`
	LastError     string        `json:"last_error"`
}

type ProgressEvent struct {
	ExecutionID    string  `json:"execution_id"`
	WorkflowID     string  `json:"workflow_id"`
	CompletedNodes int     `json:"completed_nodes"`
	TotalNodes     int     `json:"total_nodes"`
	Percent        float64 `json:"percent"`
}
