package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

// retryController re-invokes a failed node attempt while its error class is
// retryable and the attempt budget lasts. Backoff is deterministic:
// min(baseDelay * multiplier^(attempt-1), maxDelay), no jitter.
type retryController struct {
	config domain.RetryConfig
	logger *slog.Logger
	events ports.EventManager
}

func newRetryController(config domain.RetryConfig, logger *slog.Logger, events ports.EventManager) *retryController {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryController{
		config: config,
		logger: logger.With("component", "retry-controller"),
		events: events,
	}
}

// policyFor resolves a node's effective retry policy, applying per-node
// overrides on top of the run's configuration.
func (rc *retryController) policyFor(node *domain.Node) domain.RetryConfig {
	policy := rc.config
	if node == nil {
		return policy
	}
	if node.Retries != nil && *node.Retries >= 0 {
		policy.MaxRetries = *node.Retries
	}
	if node.RetryDelay != nil && *node.RetryDelay > 0 {
		policy.BaseDelay = *node.RetryDelay
	}
	return policy
}

type attemptFunc func(ctx context.Context, attempt int) (map[string]interface{}, error)

// Run executes the node until success, a fatal error, or retry exhaustion.
// Returns the outputs, the number of retries performed (attempts minus
// one) and the terminal error if any.
func (rc *retryController) Run(ctx context.Context, nodeID string, policy domain.RetryConfig, invoke attemptFunc, onRetry func(*domain.RetryState)) (map[string]interface{}, int, error) {
	retryState := &domain.RetryState{NodeID: nodeID}

	maxAttempts := policy.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outputs, err := invoke(ctx, attempt)
		if err == nil {
			return outputs, attempt - 1, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, attempt - 1, err
		}

		if !rc.classifyRetryable(err, policy) {
			rc.logger.Debug("error classified fatal, not retrying",
				"node_id", nodeID,
				"attempt", attempt,
				"error", err.Error(),
			)
			return nil, attempt - 1, err
		}

		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(policy, attempt)

		retryState.AttemptCount = attempt
		retryState.LastError = err.Error()
		retryState.NextRetryTime = time.Now().Add(delay)
		retryState.TotalDelay += delay
		if onRetry != nil {
			onRetry(retryState)
		}

		rc.logger.Debug("retrying node after backoff",
			"node_id", nodeID,
			"attempt", attempt,
			"delay", delay,
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, policy.MaxRetries, domain.NewRetryExhaustedError(nodeID, maxAttempts, lastErr)
}

// classifyRetryable applies the policy's error-class allow-list. Timeouts
// are retryable by default; context cancellation never is.
func (rc *retryController) classifyRetryable(err error, policy domain.RetryConfig) bool {
	if err == nil {
		return false
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	if domain.IsTimeoutError(err) {
		return true
	}
	return domain.ErrorMatchesPolicy(err, policy.RetryableErrors)
}

// backoffDelay computes the deterministic exponential delay for the given
// attempt number (1-based).
func backoffDelay(policy domain.RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(policy.BaseDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1)))
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if delay < 0 {
		delay = policy.MaxDelay
	}
	return delay
}
