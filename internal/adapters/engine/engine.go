package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eleven-am/weft/internal/adapters/graph"
	"github.com/eleven-am/weft/internal/adapters/resources"
	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

// Engine owns workflow runs: it builds the execution plan, restores
// checkpoints, drives the scheduler and assembles the terminal result.
// Execute never panics and never returns a malformed result.
type Engine struct {
	logger     *slog.Logger
	registry   ports.ExecutorRegistry
	store      ports.StateStore
	events     ports.EventManager
	metrics    ports.MetricsCollector
	budget     domain.CapabilityBudget
	services   map[string]interface{}
	predicates map[string]domain.EdgePredicate

	mu     sync.Mutex
	active map[string]*runHandle
}

type runHandle struct {
	executionID string
	state       *domain.ExecutionState
	cancel      context.CancelFunc
	sched       *scheduler
}

type Options struct {
	Logger     *slog.Logger
	Registry   ports.ExecutorRegistry
	Store      ports.StateStore
	Events     ports.EventManager
	Metrics    ports.MetricsCollector
	Budget     domain.CapabilityBudget
	Services   map[string]interface{}
	Predicates map[string]domain.EdgePredicate
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		logger:     logger.With("component", "engine"),
		registry:   opts.Registry,
		store:      opts.Store,
		events:     opts.Events,
		metrics:    opts.Metrics,
		budget:     opts.Budget,
		services:   opts.Services,
		predicates: opts.Predicates,
		active:     make(map[string]*runHandle),
	}
}

func (e *Engine) Execute(ctx context.Context, doc *domain.WorkflowDocument, opts domain.ExecutionOptions, globalInputs map[string]interface{}) *domain.ExecutionResult {
	return e.run(ctx, uuid.New().String(), doc, opts, globalInputs, false)
}

// Resume continues a previous run under the same execution id. A stored
// checkpoint restores completed nodes before scheduling so none of them is
// ever re-invoked.
func (e *Engine) Resume(ctx context.Context, executionID string, doc *domain.WorkflowDocument, opts domain.ExecutionOptions, globalInputs map[string]interface{}) *domain.ExecutionResult {
	return e.run(ctx, executionID, doc, opts, globalInputs, true)
}

func (e *Engine) run(ctx context.Context, executionID string, doc *domain.WorkflowDocument, opts domain.ExecutionOptions, globalInputs map[string]interface{}, resume bool) (result *domain.ExecutionResult) {
	startTime := time.Now()
	workflowID := ""
	if doc != nil {
		workflowID = doc.ID
	}

	result = &domain.ExecutionResult{
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Status:      domain.WorkflowStatusFailed,
		StartTime:   startTime,
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("internal panic during execution",
				"execution_id", executionID,
				"panic", r,
				"stack_trace", string(debug.Stack()),
			)
			result.Status = domain.WorkflowStatusFailed
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		result.Error = err.Error()
		return result
	}

	plan, err := graph.NewBuilder(e.logger).Build(doc, e.registry, e.predicates)
	if err != nil {
		e.logger.Error("workflow rejected", "workflow_id", workflowID, "error", err.Error())
		result.Error = err.Error()
		return result
	}
	result.ExecutionOrder = plan.ExecutionOrder

	var runCtx context.Context
	var cancel context.CancelFunc
	if opts.TimeoutConfig.WorkflowTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.TimeoutConfig.WorkflowTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	state := domain.NewExecutionState(executionID, workflowID, globalInputs)
	state.StartedAt = startTime

	checkpoints := newCheckpointManager(e.store, e.metrics, opts, e.logger)
	resumed := false
	if resume {
		restored, err := checkpoints.Restore(runCtx, executionID, state)
		if err != nil {
			e.logger.Error("checkpoint restore failed", "execution_id", executionID, "error", err.Error())
			result.Error = err.Error()
			return result
		}
		resumed = restored
	}

	budget := e.withConcurrency(opts)
	resourceMgr := resources.NewManager(budget, e.logger)

	sched := newScheduler(e, plan, doc, opts, budget, state, resourceMgr, checkpoints)

	handle := &runHandle{
		executionID: executionID,
		state:       state,
		cancel:      cancel,
		sched:       sched,
	}
	if err := e.register(handle); err != nil {
		result.Error = err.Error()
		return result
	}
	defer e.unregister(executionID)

	if e.metrics != nil {
		e.metrics.RecordWorkflowStart(executionID, workflowID)
	}
	e.broadcast(domain.EventWorkflowStarted, executionID, workflowID, domain.WorkflowStartedEvent{
		ExecutionID:  executionID,
		WorkflowID:   workflowID,
		StartedAt:    startTime,
		NodeCount:    len(doc.Nodes),
		GlobalInputs: globalInputs,
		Resumed:      resumed,
	})
	if resumed {
		if e.metrics != nil {
			e.metrics.RecordWorkflowResumed(executionID)
		}
		e.broadcast(domain.EventWorkflowResumed, executionID, workflowID, domain.WorkflowResumedEvent{
			ExecutionID: executionID,
			WorkflowID:  workflowID,
			ResumedAt:   time.Now(),
		})
	}

	sched.Run(runCtx)

	return e.finalize(runCtx, result, sched, startTime)
}

func (e *Engine) finalize(ctx context.Context, result *domain.ExecutionResult, sched *scheduler, startTime time.Time) *domain.ExecutionResult {
	state := sched.state
	doc := sched.doc

	result.Results = make(map[string]*domain.NodeExecutionResult, len(doc.Nodes))
	for _, node := range doc.Nodes {
		if nodeResult := state.ResultFor(node.ID); nodeResult != nil {
			result.Results[node.ID] = nodeResult
		}
	}
	if e.metrics != nil {
		result.Metrics = e.metrics.GetMetrics(state.ExecutionID)
	}

	duration := time.Since(startTime)

	switch {
	case sched.Paused():
		state.SetStatus(domain.WorkflowStatusPaused)
		result.Status = domain.WorkflowStatusPaused
		result.CheckpointData = state.Snapshot()
		e.broadcast(domain.EventWorkflowPaused, state.ExecutionID, state.WorkflowID, domain.WorkflowPausedEvent{
			ExecutionID: state.ExecutionID,
			WorkflowID:  state.WorkflowID,
			PausedAt:    time.Now(),
		})

	case sched.Cancelled():
		state.SetStatus(domain.WorkflowStatusCancelled)
		result.Status = domain.WorkflowStatusCancelled
		result.Error = "execution cancelled"

	case state.CompletedCount() == len(doc.Nodes):
		state.SetStatus(domain.WorkflowStatusCompleted)
		result.Status = domain.WorkflowStatusCompleted
		executed := make([]string, 0, len(doc.Nodes))
		for _, node := range doc.Nodes {
			executed = append(executed, node.ID)
		}
		e.broadcast(domain.EventWorkflowCompleted, state.ExecutionID, state.WorkflowID, domain.WorkflowCompletedEvent{
			ExecutionID:   state.ExecutionID,
			WorkflowID:    state.WorkflowID,
			CompletedAt:   time.Now(),
			Duration:      duration,
			ExecutedNodes: executed,
		})

	default:
		state.SetStatus(domain.WorkflowStatusFailed)
		result.Status = domain.WorkflowStatusFailed
		failed := state.FailedNodeIDs()
		sort.Strings(failed)
		if len(failed) > 0 {
			result.Error = "workflow failed at nodes: " + strings.Join(failed, ", ")
		} else {
			result.Error = "workflow did not complete all nodes"
		}
		e.broadcast(domain.EventWorkflowFailed, state.ExecutionID, state.WorkflowID, domain.WorkflowFailedEvent{
			ExecutionID: state.ExecutionID,
			WorkflowID:  state.WorkflowID,
			FailedAt:    time.Now(),
			FailedNodes: failed,
			Error:       result.Error,
		})
	}

	if e.metrics != nil {
		e.metrics.RecordWorkflowComplete(state.ExecutionID, result.Status, duration)
	}

	e.logger.Info("execution finished",
		"execution_id", state.ExecutionID,
		"workflow_id", state.WorkflowID,
		"status", result.Status,
		"duration", duration,
		"completed_nodes", state.CompletedCount(),
		"total_nodes", len(doc.Nodes),
	)
	return result
}

func (e *Engine) Pause(executionID string) error {
	e.mu.Lock()
	handle, ok := e.active[executionID]
	e.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}
	handle.sched.Pause()
	return nil
}

func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	handle, ok := e.active[executionID]
	e.mu.Unlock()

	if !ok {
		return domain.ErrNotFound
	}
	handle.sched.CancelRun()
	handle.cancel()
	return nil
}

func (e *Engine) Status(executionID string) (domain.WorkflowStatus, error) {
	e.mu.Lock()
	handle, ok := e.active[executionID]
	e.mu.Unlock()

	if !ok {
		return "", domain.ErrNotFound
	}
	return handle.state.GetStatus(), nil
}

func (e *Engine) register(handle *runHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.active[handle.executionID]; exists {
		return domain.ErrAlreadyRunning
	}
	e.active[handle.executionID] = handle
	return nil
}

func (e *Engine) unregister(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, executionID)
}

// withConcurrency folds the run's worker-pool bound into the capability
// budget so the resource manager enforces the same ceiling.
func (e *Engine) withConcurrency(opts domain.ExecutionOptions) domain.CapabilityBudget {
	budget := e.budget
	if budget.MaxConcurrentNodes == 0 || budget.MaxConcurrentNodes > opts.MaxParallelNodes {
		budget.MaxConcurrentNodes = opts.MaxParallelNodes
	}
	return budget
}

func (e *Engine) broadcast(eventType domain.EventType, executionID, workflowID string, payload interface{}) {
	if e.events == nil {
		return
	}
	err := e.events.Broadcast(domain.Event{
		Type:        eventType,
		ExecutionID: executionID,
		WorkflowID:  workflowID,
		Timestamp:   time.Now(),
		Payload:     payload,
	})
	if err != nil {
		e.logger.Debug("event broadcast dropped", "event_type", eventType, "error", err.Error())
	}
}
