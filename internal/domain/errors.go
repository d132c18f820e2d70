package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrInvalidState   = errors.New("invalid state")
	ErrCapacityLimit  = errors.New("capacity limit reached")
	ErrAlreadyRunning = errors.New("execution already running")
	ErrClosed         = errors.New("already closed")
	ErrPaused         = errors.New("execution paused")
	ErrCancelled      = errors.New("execution cancelled")
)

// ValidationError is a structural defect in the workflow document: missing
// or duplicate ids, dangling edges, unknown node types, cycles. Always
// fatal and always raised before any node executes.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation failed (%s): %s", e.Rule, e.Detail)
}

func NewValidationError(rule, detail string) *ValidationError {
	return &ValidationError{Rule: rule, Detail: detail}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TimeoutError marks a node attempt that exceeded its deadline. Retryable
// under the default policy.
type TimeoutError struct {
	NodeID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("node %s timed out after %s", e.NodeID, e.Timeout)
}

func NewTimeoutError(nodeID string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{NodeID: nodeID, Timeout: timeout}
}

func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ExecutionError is a generic node failure; retryability is decided by the
// retry policy's error-class allow-list.
type ExecutionError struct {
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %s execution failed: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func NewExecutionError(nodeID string, err error) *ExecutionError {
	return &ExecutionError{NodeID: nodeID, Err: err}
}

// RetryExhaustedError wraps the last error after all configured attempts
// failed. Terminal.
type RetryExhaustedError struct {
	NodeID   string
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("node %s failed after %d attempts: %v", e.NodeID, e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

func NewRetryExhaustedError(nodeID string, attempts int, lastErr error) *RetryExhaustedError {
	return &RetryExhaustedError{NodeID: nodeID, Attempts: attempts, LastErr: lastErr}
}

func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// ResourceError is an admission denial or accounting fault from the
// resource manager.
type ResourceError struct {
	Resource string
	Op       string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource[%s] %s: %v", e.Resource, e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

func NewResourceError(resource, op string, err error) *ResourceError {
	return &ResourceError{Resource: resource, Op: op, Err: err}
}

// PanicError carries a recovered panic out of a node executor as a normal
// failure.
type PanicError struct {
	NodeID     string
	PanicValue interface{}
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.PanicValue)
}

func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsCapacityLimit(err error) bool {
	return errors.Is(err, ErrCapacityLimit)
}

// ErrorMatchesPolicy reports whether err matches any entry of the policy's
// retryable allow-list, by class name or message substring.
func ErrorMatchesPolicy(err error, retryable []string) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	for _, pattern := range retryable {
		if pattern == "" {
			continue
		}
		if strings.Contains(msg, pattern) {
			return true
		}
		switch strings.ToLower(pattern) {
		case "timeout", "timeouterror":
			if IsTimeoutError(err) {
				return true
			}
		case "execution", "executionerror":
			var ee *ExecutionError
			if errors.As(err, &ee) {
				return true
			}
		}
	}
	return false
}
