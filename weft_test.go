package weft

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eleven-am/weft/internal/ports"
)

type stubExecutor func(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error)

func (f stubExecutor) Execute(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error) {
	return f(ctx, ectx)
}

func quietConfig() *Config {
	config := DefaultConfig()
	config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	config.Execution.EnableCheckpointing = false
	config.Execution.RetryConfig.MaxRetries = 0
	config.Execution.RetryConfig.BaseDelay = time.Millisecond
	config.Execution.RetryConfig.MaxDelay = time.Millisecond
	return config
}

const pipelineYAML = `
id: pipeline
nodes:
  - id: a
    type: produce
  - id: b
    type: increment
edges:
  - id: e1
    from: a
    to: b
`

func registerPipeline(t *testing.T, runner *Runner) {
	t.Helper()
	require.NoError(t, runner.RegisterExecutor("produce", stubExecutor(func(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{"x": 1}, nil
	})))
	require.NoError(t, runner.RegisterExecutor("increment", stubExecutor(func(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error) {
		x, _ := ectx.NodeInputs["x"].(int)
		return map[string]interface{}{"y": x + 1}, nil
	})))
}

func TestRunnerExecutesYAMLDocument(t *testing.T) {
	runner, err := New(quietConfig())
	require.NoError(t, err)
	defer runner.Close()
	registerPipeline(t, runner)

	doc, err := ParseDocument([]byte(pipelineYAML))
	require.NoError(t, err)
	require.Equal(t, "pipeline", doc.ID)
	require.Len(t, doc.Nodes, 2)

	result := runner.Execute(context.Background(), doc, nil)
	require.Equal(t, WorkflowStatusCompleted, result.Status, "error: %s", result.Error)
	assert.Equal(t, 2, result.Results["b"].Outputs["y"])
}

func TestRunnerDeliversLifecycleEvents(t *testing.T) {
	runner, err := New(quietConfig())
	require.NoError(t, err)
	require.NoError(t, runner.Start(context.Background()))
	defer runner.Close()
	registerPipeline(t, runner)

	completed := make(chan Event, 8)
	handlerID := runner.On(EventWorkflowCompleted, func(event Event) {
		completed <- event
	})
	defer runner.Off(handlerID)

	doc, err := ParseDocument([]byte(pipelineYAML))
	require.NoError(t, err)

	result := runner.Execute(context.Background(), doc, nil)
	require.Equal(t, WorkflowStatusCompleted, result.Status)

	select {
	case event := <-completed:
		assert.Equal(t, EventWorkflowCompleted, event.Type)
		assert.Equal(t, "pipeline", event.WorkflowID)
	case <-time.After(2 * time.Second):
		t.Fatal("workflow_completed event never arrived")
	}
}

func TestRunnerDurableResumeAcrossRestarts(t *testing.T) {
	dataDir := t.TempDir()
	var bAttempts int64

	build := func() *Runner {
		config := NewConfigBuilder().
			WithDataDir(dataDir).
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
			WithCheckpointing(true, time.Millisecond).
			WithRetryPolicy(0, time.Millisecond, time.Millisecond).
			Build()
		runner, err := New(config)
		require.NoError(t, err)

		require.NoError(t, runner.RegisterExecutor("produce", stubExecutor(func(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error) {
			return map[string]interface{}{"x": 1}, nil
		})))
		require.NoError(t, runner.RegisterExecutor("increment", stubExecutor(func(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error) {
			if atomic.AddInt64(&bAttempts, 1) == 1 {
				return nil, errors.New("transient fault")
			}
			var x int
			switch v := ectx.NodeInputs["x"].(type) {
			case int:
				x = v
			case float64:
				x = int(v)
			}
			return map[string]interface{}{"y": x + 1}, nil
		})))
		return runner
	}

	doc, err := ParseDocument([]byte(pipelineYAML))
	require.NoError(t, err)

	const executionID = "exec-durable-1"

	first := build()
	result := first.Resume(context.Background(), executionID, doc, nil)
	require.Equal(t, WorkflowStatusFailed, result.Status)
	require.NoError(t, first.Close())

	second := build()
	defer second.Close()

	ids, err := second.ListCheckpoints(context.Background(), "pipeline")
	require.NoError(t, err)
	assert.Contains(t, ids, executionID, "the checkpoint must survive the restart")

	resumed := second.Resume(context.Background(), executionID, doc, nil)
	require.Equal(t, WorkflowStatusCompleted, resumed.Status, "error: %s", resumed.Error)
	assert.Equal(t, int64(2), atomic.LoadInt64(&bAttempts))
	assert.Equal(t, int64(1), second.AggregatedMetrics().WorkflowsResumed, "the checkpointed restart must count as a resume")
}

func TestRunnerDeleteCheckpointForgetsRunMetrics(t *testing.T) {
	config := quietConfig()
	config.Execution.EnableCheckpointing = true
	config.Execution.CheckpointInterval = time.Millisecond

	runner, err := New(config)
	require.NoError(t, err)
	defer runner.Close()
	registerPipeline(t, runner)

	doc, err := ParseDocument([]byte(pipelineYAML))
	require.NoError(t, err)

	result := runner.Execute(context.Background(), doc, nil)
	require.Equal(t, WorkflowStatusCompleted, result.Status)
	require.GreaterOrEqual(t, runner.Metrics(result.ExecutionID).NodesSucceeded, int64(2))

	require.NoError(t, runner.DeleteCheckpoint(context.Background(), result.ExecutionID))

	cp, err := runner.LoadCheckpoint(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.Zero(t, runner.Metrics(result.ExecutionID).NodesSucceeded, "archived runs leave no per-run counters behind")
}

func TestRunnerMetricsAccumulate(t *testing.T) {
	runner, err := New(quietConfig())
	require.NoError(t, err)
	defer runner.Close()
	registerPipeline(t, runner)

	doc, err := ParseDocument([]byte(pipelineYAML))
	require.NoError(t, err)

	result := runner.Execute(context.Background(), doc, nil)
	require.Equal(t, WorkflowStatusCompleted, result.Status)

	aggregated := runner.AggregatedMetrics()
	require.NotNil(t, aggregated)
	assert.GreaterOrEqual(t, aggregated.WorkflowsCompleted, int64(1))
	assert.GreaterOrEqual(t, aggregated.NodesSucceeded, int64(2))
}

func TestRunnerBuiltinLoopRegistered(t *testing.T) {
	runner, err := New(quietConfig())
	require.NoError(t, err)
	defer runner.Close()

	err = runner.RegisterExecutor("loop", stubExecutor(func(ctx context.Context, ectx ExecutionContext) (map[string]interface{}, error) {
		return nil, nil
	}))
	var regErr *ports.ExecutorRegistrationError
	require.ErrorAs(t, err, &regErr, "the loop type is reserved for the builtin executor")
}

func TestParseDocumentJSON(t *testing.T) {
	doc, err := ParseDocumentJSON([]byte(`{
		"id": "pipeline",
		"nodes": [{"id": "a", "type": "produce"}],
		"edges": []
	}`))
	require.NoError(t, err)
	assert.Equal(t, "pipeline", doc.ID)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "produce", doc.Nodes[0].Type)
}

func TestParseDocumentRejectsMalformedYAML(t *testing.T) {
	_, err := ParseDocument([]byte("nodes: [unclosed"))
	require.Error(t, err)
}

func TestConfigBuilder(t *testing.T) {
	config := NewConfigBuilder().
		WithParallelism(8).
		WithRetryPolicy(2, time.Second, 10*time.Second, "transient").
		WithTimeouts(time.Minute, time.Hour).
		WithStopOnFailure(true).
		WithBudget(CapabilityBudget{MaxCost: 5}).
		WithService("http", "client").
		Build()

	assert.True(t, config.Execution.ParallelExecution)
	assert.Equal(t, 8, config.Execution.MaxParallelNodes)
	assert.Equal(t, 2, config.Execution.RetryConfig.MaxRetries)
	assert.Equal(t, []string{"transient"}, config.Execution.RetryConfig.RetryableErrors)
	assert.Equal(t, time.Minute, config.Execution.TimeoutConfig.NodeTimeout)
	assert.True(t, config.Execution.StopOnFailure)
	assert.Equal(t, 5.0, config.Budget.MaxCost)
	assert.Equal(t, "client", config.Services["http"])
}
