package ports

import (
	"context"
	"time"
)

// ExecutionContext carries everything a node executor may consult for one
// attempt. Services is an opaque bag resolved by the host application.
type ExecutionContext struct {
	ExecutionID   string
	WorkflowID    string
	NodeID        string
	NodeType      string
	GlobalInputs  map[string]interface{}
	NodeInputs    map[string]interface{}
	Configuration map[string]interface{}
	Timeout       time.Duration
	Attempt       int
	Services      map[string]interface{}
}

type NodeExecutor interface {
	Execute(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error)
}

// ExecutorRegistry resolves node type tags to executors. Resolution happens
// at workflow-load time so an unknown tag is a validation error, not a
// runtime surprise.
type ExecutorRegistry interface {
	Register(nodeType string, executor NodeExecutor) error
	Resolve(nodeType string) (NodeExecutor, error)
	Has(nodeType string) bool
	Types() []string
}

type ExecutorRegistrationError struct {
	NodeType string
	Reason   string
}

func (e *ExecutorRegistrationError) Error() string {
	return "executor registration failed for type '" + e.NodeType + "': " + e.Reason
}
