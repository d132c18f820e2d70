package domain

import (
	"time"
)

type WorkflowDocument struct {
	ID    string `json:"id" yaml:"id"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

type Node struct {
	ID            string                 `json:"id" yaml:"id"`
	Type          string                 `json:"type" yaml:"type"`
	Configuration map[string]interface{} `json:"configuration,omitempty" yaml:"configuration,omitempty"`
	Retries       *int                   `json:"retries,omitempty" yaml:"retries,omitempty"`
	Timeout       *time.Duration         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryDelay    *time.Duration         `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
}

type Edge struct {
	ID   string   `json:"id" yaml:"id"`
	From string   `json:"from" yaml:"from"`
	To   string   `json:"to" yaml:"to"`
	Meta EdgeMeta `json:"meta,omitempty" yaml:"meta,omitempty"`
}

type EdgeMeta struct {
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle,omitempty"`
}

// EdgePredicate is an opaque compiled edge condition evaluated against the
// source node's outputs. A nil predicate always routes.
type EdgePredicate func(outputs map[string]interface{}) bool

// DataConnection is the flattened data route derived from an edge: output
// key of the source node feeding an input key of the target node.
type DataConnection struct {
	SourceNode string        `json:"source_node"`
	SourceKey  string        `json:"source_key"`
	TargetNode string        `json:"target_node"`
	TargetKey  string        `json:"target_key"`
	Predicate  EdgePredicate `json:"-"`
}

type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusRetrying  NodeStatus = "retrying"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusCancelled NodeStatus = "cancelled"
)

type WorkflowStatus string

const (
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
	WorkflowStatusPaused    WorkflowStatus = "paused"
)

func (d *WorkflowDocument) NodeByID(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}
