package engine

import (
	"context"
	"fmt"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
	"github.com/eleven-am/weft/internal/xjson"
)

const (
	loopWorkflowKey   = "workflow"
	loopUntilKey      = "until_key"
	loopIterationsKey = "iterations"
	loopOutputKey     = "output"

	defaultLoopMaxIterations = 100
)

// LoopExecutor implements bounded iteration as a self-contained node: it
// re-invokes an embedded sub-graph until a termination output appears or
// the iteration budget runs out. The outer DAG stays strictly acyclic.
type LoopExecutor struct {
	engine *Engine
}

func NewLoopExecutor(engine *Engine) *LoopExecutor {
	return &LoopExecutor{engine: engine}
}

func (le *LoopExecutor) Execute(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
	rawDoc, ok := ectx.Configuration[loopWorkflowKey]
	if !ok {
		return nil, domain.NewValidationError("loop", "loop node requires an embedded workflow")
	}

	var subDoc domain.WorkflowDocument
	if err := xjson.Roundtrip(rawDoc, &subDoc); err != nil {
		return nil, domain.NewValidationError("loop", "embedded workflow is malformed: "+err.Error())
	}
	if subDoc.ID == "" {
		subDoc.ID = ectx.WorkflowID + ":" + ectx.NodeID
	}

	var loopCfg domain.LoopConfig
	if raw, ok := ectx.Configuration["loop"]; ok {
		if err := xjson.Roundtrip(raw, &loopCfg); err != nil {
			return nil, domain.NewValidationError("loop", "loop configuration is malformed: "+err.Error())
		}
	}
	maxIterations := loopCfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultLoopMaxIterations
	}

	untilKey, _ := ectx.Configuration[loopUntilKey].(string)

	opts := domain.DefaultExecutionOptions()
	opts.TimeoutConfig.NodeTimeout = ectx.Timeout
	opts.EnableCheckpointing = false

	carried := make(map[string]interface{}, len(ectx.NodeInputs)+len(ectx.GlobalInputs))
	for key, value := range ectx.GlobalInputs {
		carried[key] = value
	}
	for key, value := range ectx.NodeInputs {
		carried[key] = value
	}

	var lastOutputs map[string]interface{}
	iterations := 0

	for iterations < maxIterations {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		iterations++

		result := le.engine.Execute(ctx, &subDoc, opts, carried)
		if result.Status != domain.WorkflowStatusCompleted {
			return nil, domain.NewExecutionError(ectx.NodeID,
				fmt.Errorf("loop iteration %d ended %s: %s", iterations, result.Status, result.Error))
		}

		lastOutputs = terminalOutputs(&subDoc, result)

		// Carry this iteration's outputs into the next one.
		for key, value := range lastOutputs {
			carried[key] = value
		}

		if untilKey != "" && truthy(lastOutputs[untilKey]) {
			break
		}
	}

	return map[string]interface{}{
		loopIterationsKey: iterations,
		loopOutputKey:     lastOutputs,
	}, nil
}

// terminalOutputs merges the outputs of the sub-graph's sink nodes (nodes
// with no outgoing edges).
func terminalOutputs(doc *domain.WorkflowDocument, result *domain.ExecutionResult) map[string]interface{} {
	hasDownstream := make(map[string]bool, len(doc.Nodes))
	for _, edge := range doc.Edges {
		hasDownstream[edge.From] = true
	}

	merged := make(map[string]interface{})
	for _, node := range doc.Nodes {
		if hasDownstream[node.ID] {
			continue
		}
		if nodeResult, ok := result.Results[node.ID]; ok {
			for key, value := range nodeResult.Outputs {
				merged[key] = value
			}
		}
	}
	return merged
}

func truthy(v interface{}) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return value != "" && value != "false"
	case float64:
		return value != 0
	case int:
		return value != 0
	case nil:
		return false
	default:
		return true
	}
}
