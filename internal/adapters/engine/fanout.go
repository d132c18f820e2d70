package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
	"github.com/eleven-am/weft/internal/xjson"
)

const (
	fanOutItemsKey   = "items"
	fanOutItemKey    = "item"
	fanOutIndexKey   = "index"
	fanOutResultsKey = "results"
	fanOutDroppedKey = "dropped"
)

// parseFanOutConfig extracts an optional fan-out declaration from a node's
// configuration block.
func parseFanOutConfig(node *domain.Node) (domain.FanOutConfig, bool) {
	cfg := domain.FanOutConfig{PreserveOrder: true}
	if node == nil || node.Configuration == nil {
		return cfg, false
	}
	raw, ok := node.Configuration["fan_out"]
	if !ok {
		return cfg, false
	}
	if err := xjson.Roundtrip(raw, &cfg); err != nil {
		return cfg, false
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Backpressure == "" {
		cfg.Backpressure = domain.BackpressureReject
	}
	return cfg, true
}

type fanOutTask struct {
	index int
	item  interface{}
}

// runFanOut broadcasts the node's executor over the input collection under
// a bounded sub-pool. Output order follows input order unless the node
// opts out. The batch-size bound is the pending queue's capacity; overflow
// is resolved by the configured backpressure policy.
func runFanOut(ctx context.Context, executor ports.NodeExecutor, ectx ports.ExecutionContext, cfg domain.FanOutConfig, logger *slog.Logger) (map[string]interface{}, error) {
	items := collectionFromInputs(ectx.NodeInputs)

	queue, dropped, err := applyBackpressure(items, cfg, logger)
	if err != nil {
		return nil, err
	}

	results := make([]interface{}, len(items))
	errs := make([]error, len(items))

	var completedMu sync.Mutex
	completed := make([]interface{}, 0, len(queue))

	taskChan := make(chan fanOutTask, len(queue))
	for _, task := range queue {
		taskChan <- task
	}
	close(taskChan)

	var wg sync.WaitGroup
	for w := 0; w < cfg.MaxConcurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				if ctx.Err() != nil {
					errs[task.index] = ctx.Err()
					continue
				}

				subCtx := ectx
				subInputs := make(map[string]interface{}, len(ectx.NodeInputs)+2)
				for key, value := range ectx.NodeInputs {
					subInputs[key] = value
				}
				subInputs[fanOutItemKey] = task.item
				subInputs[fanOutIndexKey] = task.index
				subCtx.NodeInputs = subInputs

				outputs, err := invokeWithRecovery(ctx, executor, subCtx, logger)
				if err != nil {
					errs[task.index] = err
					continue
				}
				if cfg.PreserveOrder {
					results[task.index] = outputs
				} else {
					completedMu.Lock()
					completed = append(completed, outputs)
					completedMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, domain.NewExecutionError(ectx.NodeID, err)
		}
	}

	collected := completed
	if cfg.PreserveOrder {
		droppedSet := make(map[int]struct{}, len(dropped))
		for _, idx := range dropped {
			droppedSet[idx] = struct{}{}
		}
		collected = make([]interface{}, 0, len(results))
		for i, r := range results {
			if _, skip := droppedSet[i]; skip {
				continue
			}
			collected = append(collected, r)
		}
	}

	outputs := map[string]interface{}{fanOutResultsKey: collected}
	if len(dropped) > 0 {
		outputs[fanOutDroppedKey] = dropped
	}
	return outputs, nil
}

// applyBackpressure bounds the pending queue at the configured batch size.
// A zero batch size means unbounded.
func applyBackpressure(items []interface{}, cfg domain.FanOutConfig, logger *slog.Logger) ([]fanOutTask, []int, error) {
	tasks := make([]fanOutTask, 0, len(items))
	dropped := make([]int, 0)

	capacity := cfg.BatchSize
	if capacity <= 0 {
		capacity = len(items)
	}

	for i, item := range items {
		if len(tasks) < capacity {
			tasks = append(tasks, fanOutTask{index: i, item: item})
			continue
		}

		switch cfg.Backpressure {
		case domain.BackpressureDropOldest:
			dropped = append(dropped, tasks[0].index)
			tasks = append(tasks[1:], fanOutTask{index: i, item: item})
		case domain.BackpressureDropNewest:
			dropped = append(dropped, i)
		case domain.BackpressureReject:
			return nil, nil, domain.NewResourceError("fan-out-queue", "enqueue", domain.ErrCapacityLimit)
		default:
			return nil, nil, domain.NewValidationError("fan_out", "unknown backpressure policy: "+string(cfg.Backpressure))
		}
	}

	if len(dropped) > 0 {
		logger.Debug("fan-out backpressure dropped items",
			"policy", cfg.Backpressure,
			"dropped", len(dropped),
		)
	}
	return tasks, dropped, nil
}

func collectionFromInputs(inputs map[string]interface{}) []interface{} {
	if inputs == nil {
		return nil
	}
	raw, ok := inputs[fanOutItemsKey]
	if !ok {
		return nil
	}
	if items, ok := raw.([]interface{}); ok {
		return items
	}

	var items []interface{}
	if err := xjson.Roundtrip(raw, &items); err != nil {
		return nil
	}
	return items
}
