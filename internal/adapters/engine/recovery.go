package engine

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

// invokeWithRecovery shields the scheduler from panicking executors: a
// recovered panic becomes a PanicError and flows through the normal
// failure path.
func invokeWithRecovery(ctx context.Context, executor ports.NodeExecutor, ectx ports.ExecutionContext, logger *slog.Logger) (outputs map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			stackTrace := string(debug.Stack())
			logger.Error("node executor panicked",
				"execution_id", ectx.ExecutionID,
				"node_id", ectx.NodeID,
				"panic_value", r,
				"stack_trace", stackTrace,
			)
			outputs = nil
			err = &domain.PanicError{
				NodeID:     ectx.NodeID,
				PanicValue: r,
				StackTrace: stackTrace,
			}
		}
	}()

	return executor.Execute(ctx, ectx)
}
