package engine

import (
	"context"
	"errors"
	"time"

	"github.com/eleven-am/weft/internal/domain"
)

type attemptOutcome struct {
	outputs map[string]interface{}
	err     error
}

// runWithTimeout races one node attempt against its deadline. Expiry yields
// a distinguished TimeoutError; each retry attempt gets a fresh window. The
// attempt goroutine observes cancellation through its derived context, so a
// cooperative executor exits early rather than leaking.
func runWithTimeout(ctx context.Context, nodeID string, timeout time.Duration, invoke func(context.Context) (map[string]interface{}, error)) (map[string]interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptOutcome, 1)
	go func() {
		outputs, err := invoke(attemptCtx)
		done <- attemptOutcome{outputs: outputs, err: err}
	}()

	select {
	case outcome := <-done:
		if errors.Is(outcome.err, context.DeadlineExceeded) && ctx.Err() == nil {
			// A cooperative executor noticed the attempt deadline and
			// returned its context error itself.
			return nil, domain.NewTimeoutError(nodeID, timeout)
		}
		return outcome.outputs, outcome.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// The run itself was cancelled or timed out, not this node.
			return nil, ctx.Err()
		}
		return nil, domain.NewTimeoutError(nodeID, timeout)
	}
}
