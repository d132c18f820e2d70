package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/weft/internal/adapters/registry"
	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

func fanOutContext(items []interface{}) ports.ExecutionContext {
	return ports.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "fan",
		NodeType:    "echo",
		NodeInputs:  map[string]interface{}{fanOutItemsKey: items},
	}
}

func TestRunFanOutPreservesInputOrder(t *testing.T) {
	echo := executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{"item": ectx.NodeInputs[fanOutItemKey]}, nil
	})

	cfg := domain.FanOutConfig{MaxConcurrency: 4, PreserveOrder: true, Backpressure: domain.BackpressureReject}
	items := []interface{}{"a", "b", "c", "d", "e"}

	outputs, err := runFanOut(context.Background(), echo, fanOutContext(items), cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := outputs[fanOutResultsKey].([]interface{})
	if len(results) != len(items) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(items))
	}
	for i, r := range results {
		got := r.(map[string]interface{})["item"]
		if got != items[i] {
			t.Errorf("results[%d] = %v, want %v", i, got, items[i])
		}
	}
}

func TestRunFanOutCompletionOrderWhenNotPreserved(t *testing.T) {
	// The first item takes far longer than the rest, so with order
	// preservation off it must come out last.
	worker := executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		if ectx.NodeInputs[fanOutIndexKey] == 0 {
			time.Sleep(150 * time.Millisecond)
		}
		return map[string]interface{}{"item": ectx.NodeInputs[fanOutItemKey]}, nil
	})

	cfg := domain.FanOutConfig{MaxConcurrency: 3, PreserveOrder: false, Backpressure: domain.BackpressureReject}
	items := []interface{}{"slow", "b", "c"}

	outputs, err := runFanOut(context.Background(), worker, fanOutContext(items), cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := outputs[fanOutResultsKey].([]interface{})
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if got := results[2].(map[string]interface{})["item"]; got != "slow" {
		t.Errorf("results[2] = %v, want the slow item to finish last", got)
	}
}

func TestRunFanOutBoundsConcurrency(t *testing.T) {
	var running, peak int64
	worker := executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		now := atomic.AddInt64(&running, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if now <= old || atomic.CompareAndSwapInt64(&peak, old, now) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&running, -1)
		return nil, nil
	})

	cfg := domain.FanOutConfig{MaxConcurrency: 2, Backpressure: domain.BackpressureReject}
	items := []interface{}{1, 2, 3, 4, 5, 6}

	if _, err := runFanOut(context.Background(), worker, fanOutContext(items), cfg, testLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := atomic.LoadInt64(&peak); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestRunFanOutDropNewest(t *testing.T) {
	echo := executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{"item": ectx.NodeInputs[fanOutItemKey]}, nil
	})

	cfg := domain.FanOutConfig{
		MaxConcurrency: 1,
		BatchSize:      3,
		Backpressure:   domain.BackpressureDropNewest,
		PreserveOrder:  true,
	}
	items := []interface{}{"a", "b", "c", "d", "e"}

	outputs, err := runFanOut(context.Background(), echo, fanOutContext(items), cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := outputs[fanOutResultsKey].([]interface{})
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	dropped := outputs[fanOutDroppedKey].([]int)
	if len(dropped) != 2 || dropped[0] != 3 || dropped[1] != 4 {
		t.Errorf("dropped = %v, want [3 4]", dropped)
	}
}

func TestRunFanOutDropOldest(t *testing.T) {
	echo := executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{"item": ectx.NodeInputs[fanOutItemKey]}, nil
	})

	cfg := domain.FanOutConfig{
		MaxConcurrency: 1,
		BatchSize:      3,
		Backpressure:   domain.BackpressureDropOldest,
		PreserveOrder:  true,
	}
	items := []interface{}{"a", "b", "c", "d", "e"}

	outputs, err := runFanOut(context.Background(), echo, fanOutContext(items), cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := outputs[fanOutResultsKey].([]interface{})
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	// The two earliest items gave way; the survivors keep input order.
	want := []interface{}{"c", "d", "e"}
	for i, r := range results {
		got := r.(map[string]interface{})["item"]
		if got != want[i] {
			t.Errorf("results[%d] = %v, want %v", i, got, want[i])
		}
	}
}

func TestRunFanOutRejectOverflow(t *testing.T) {
	echo := executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		return nil, nil
	})

	cfg := domain.FanOutConfig{
		MaxConcurrency: 1,
		BatchSize:      2,
		Backpressure:   domain.BackpressureReject,
	}
	items := []interface{}{"a", "b", "c"}

	_, err := runFanOut(context.Background(), echo, fanOutContext(items), cfg, testLogger())
	if !domain.IsCapacityLimit(err) {
		t.Fatalf("err = %v, want capacity limit", err)
	}
}

func TestRunFanOutElementFailureFailsNode(t *testing.T) {
	worker := executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		if ectx.NodeInputs[fanOutIndexKey] == 2 {
			return nil, errors.New("element exploded")
		}
		return nil, nil
	})

	cfg := domain.FanOutConfig{MaxConcurrency: 2, Backpressure: domain.BackpressureReject}
	items := []interface{}{"a", "b", "c", "d"}

	_, err := runFanOut(context.Background(), worker, fanOutContext(items), cfg, testLogger())
	if err == nil {
		t.Fatal("expected the element failure to surface")
	}
	var ee *domain.ExecutionError
	if !errors.As(err, &ee) {
		t.Errorf("err = %T, want ExecutionError", err)
	}
}

func TestEngine_FanOutNodeProcessesGlobalCollection(t *testing.T) {
	reg := registry.NewAdapter(testLogger())
	if err := reg.Register("echo", executorFunc(func(ctx context.Context, ectx ports.ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{"item": ectx.NodeInputs[fanOutItemKey]}, nil
	})); err != nil {
		t.Fatal(err)
	}

	doc := &domain.WorkflowDocument{
		ID: "wf-fanout",
		Nodes: []domain.Node{
			{
				ID:   "resize",
				Type: "echo",
				Configuration: map[string]interface{}{
					"fan_out": map[string]interface{}{"max_concurrency": 2},
				},
			},
		},
	}

	engine := New(Options{Logger: testLogger(), Registry: reg})
	result := engine.Execute(context.Background(), doc, fastOptions(), map[string]interface{}{
		"items": []interface{}{"a", "b", "c"},
	})

	if result.Status != domain.WorkflowStatusCompleted {
		t.Fatalf("status = %s, error = %s", result.Status, result.Error)
	}
	results := result.Results["resize"].Outputs[fanOutResultsKey].([]interface{})
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
}

func TestParseFanOutConfigDefaults(t *testing.T) {
	node := &domain.Node{
		ID:   "fan",
		Type: "echo",
		Configuration: map[string]interface{}{
			"fan_out": map[string]interface{}{},
		},
	}

	cfg, ok := parseFanOutConfig(node)
	if !ok {
		t.Fatal("expected a fan-out declaration")
	}
	if cfg.MaxConcurrency != 1 {
		t.Errorf("MaxConcurrency = %d, want 1", cfg.MaxConcurrency)
	}
	if cfg.Backpressure != domain.BackpressureReject {
		t.Errorf("Backpressure = %s, want reject", cfg.Backpressure)
	}

	if _, ok := parseFanOutConfig(&domain.Node{ID: "plain"}); ok {
		t.Error("nodes without fan_out must not parse as fan-out")
	}
}
