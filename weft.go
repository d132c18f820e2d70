// Package weft provides a workflow execution engine for Go applications.
//
// Weft runs workflows declared as directed acyclic graphs: nodes carry a
// type tag resolved against a registry of executors, edges carry data from
// one node's outputs into the next node's inputs. It provides features like:
//   - Deterministic topological scheduling with bounded parallelism
//   - Per-node retries with exponential backoff and timeout enforcement
//   - Capability budgets for concurrency, session handles, memory and cost
//   - Fan-out over collections and quorum-gated fan-in aggregation
//   - Checkpointing with idempotent resume, pause and cancellation
//   - Event-driven architecture with typed lifecycle observers
//
// Basic usage:
//
//	runner, _ := weft.New(weft.DefaultConfig())
//	runner.RegisterExecutor("fetch", &FetchExecutor{})
//	runner.Start(context.Background())
//	defer runner.Close()
//
//	doc, _ := weft.LoadDocument("pipeline.yaml")
//	result := runner.Execute(context.Background(), doc, map[string]interface{}{"input": "data"})
package weft

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/weft/internal/adapters/engine"
	"github.com/eleven-am/weft/internal/adapters/events"
	"github.com/eleven-am/weft/internal/adapters/metrics"
	"github.com/eleven-am/weft/internal/adapters/registry"
	"github.com/eleven-am/weft/internal/adapters/storage"
	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

// WorkflowDocument is the declarative workflow definition: nodes, edges and
// an identifier.
type WorkflowDocument = domain.WorkflowDocument

// Node declares one unit of work with its type tag, configuration and
// optional retry and timeout overrides.
type Node = domain.Node

// Edge declares an ordering and data dependency between two nodes.
type Edge = domain.Edge

// EdgeMeta names the output and input keys an edge routes between.
type EdgeMeta = domain.EdgeMeta

// EdgePredicate is a compiled edge condition: the route is taken only when
// it returns true for the source node's outputs.
type EdgePredicate = domain.EdgePredicate

// ExecutionContext carries everything a node executor may consult for one
// attempt.
type ExecutionContext = ports.ExecutionContext

// NodeExecutor is the contract application code implements for a node type.
type NodeExecutor = ports.NodeExecutor

// ExecutionOptions tune one run: parallelism, retries, timeouts and
// checkpointing.
type ExecutionOptions = domain.ExecutionOptions

// RetryConfig is the run-wide retry policy; individual nodes may override
// the attempt count and base delay.
type RetryConfig = domain.RetryConfig

// CapabilityBudget is the ceiling on shared, finite resources for one run.
type CapabilityBudget = domain.CapabilityBudget

// ExecutionResult is the terminal record of one run.
type ExecutionResult = domain.ExecutionResult

// NodeExecutionResult is the terminal record of one node within a run.
type NodeExecutionResult = domain.NodeExecutionResult

// ExecutionMetrics aggregates counters and timings for one or more runs.
type ExecutionMetrics = domain.ExecutionMetrics

// Checkpoint is a durable snapshot of run progress used for resume.
type Checkpoint = domain.Checkpoint

// Event is a lifecycle notification delivered to registered observers.
type Event = domain.Event

// EventHandler observes lifecycle events.
type EventHandler = domain.EventHandler

// EventType discriminates lifecycle events.
type EventType = domain.EventType

// WorkflowStatus is the terminal (or paused) status of a run.
type WorkflowStatus = domain.WorkflowStatus

// NodeStatus is the status of one node within a run.
type NodeStatus = domain.NodeStatus

// Lifecycle event types.
const (
	EventWorkflowStarted   = domain.EventWorkflowStarted
	EventWorkflowCompleted = domain.EventWorkflowCompleted
	EventWorkflowFailed    = domain.EventWorkflowFailed
	EventWorkflowPaused    = domain.EventWorkflowPaused
	EventWorkflowResumed   = domain.EventWorkflowResumed
	EventNodeStarted       = domain.EventNodeStarted
	EventNodeCompleted     = domain.EventNodeCompleted
	EventNodeFailed        = domain.EventNodeFailed
	EventNodeRetrying      = domain.EventNodeRetrying
	EventProgress          = domain.EventProgress
)

// Run status constants.
const (
	WorkflowStatusRunning   = domain.WorkflowStatusRunning
	WorkflowStatusCompleted = domain.WorkflowStatusCompleted
	WorkflowStatusFailed    = domain.WorkflowStatusFailed
	WorkflowStatusCancelled = domain.WorkflowStatusCancelled
	WorkflowStatusPaused    = domain.WorkflowStatusPaused
)

const eventWorkerCount = 4

// Runner is the assembled workflow engine: executor registry, event
// dispatch, metrics, checkpoint store and the scheduler behind one surface.
type Runner struct {
	logger   *slog.Logger
	config   *Config
	registry ports.ExecutorRegistry
	events   ports.EventManager
	metrics  ports.MetricsCollector
	store    ports.StateStore
	engine   *engine.Engine

	mu         sync.Mutex
	predicates map[string]domain.EdgePredicate
	started    bool
}

// New assembles a Runner from the given configuration. A configured DataDir
// selects the durable badger-backed checkpoint store; otherwise checkpoints
// live in memory and do not survive the process.
func New(config *Config) (*Runner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var store ports.StateStore
	if config.DataDir != "" {
		badgerStore, err := storage.NewBadgerStore(config.DataDir, logger)
		if err != nil {
			return nil, err
		}
		store = badgerStore
	} else {
		store = storage.NewMemoryStore()
	}

	reg := registry.NewAdapter(logger)
	eventManager := events.NewManager(eventWorkerCount, logger)
	collector := metrics.NewCollector(logger)
	predicates := make(map[string]domain.EdgePredicate)

	eng := engine.New(engine.Options{
		Logger:     logger,
		Registry:   reg,
		Store:      store,
		Events:     eventManager,
		Metrics:    collector,
		Budget:     config.Budget,
		Services:   config.Services,
		Predicates: predicates,
	})

	runner := &Runner{
		logger:     logger.With("component", "runner"),
		config:     config,
		registry:   reg,
		events:     eventManager,
		metrics:    collector,
		store:      store,
		engine:     eng,
		predicates: predicates,
	}
	runner.registerBuiltins()
	return runner, nil
}

func (r *Runner) registerBuiltins() {
	if err := r.registry.Register("loop", engine.NewLoopExecutor(r.engine)); err != nil {
		r.logger.Error("builtin executor registration failed", "node_type", "loop", "error", err.Error())
	}
}

// RegisterExecutor binds a node type tag to its executor. Registration must
// precede any run referencing the tag; unknown tags are rejected at
// workflow-load time.
func (r *Runner) RegisterExecutor(nodeType string, executor ports.NodeExecutor) error {
	return r.registry.Register(nodeType, executor)
}

// RegisterPredicate binds an edge id to its compiled condition. Register
// predicates before executing workflows that reference them.
func (r *Runner) RegisterPredicate(edgeID string, predicate domain.EdgePredicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[edgeID] = predicate
}

// Start begins event dispatch. Runs started before Start still execute;
// their events are dropped.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return domain.ErrAlreadyRunning
	}
	if err := r.events.Start(ctx); err != nil {
		return err
	}
	r.started = true
	return nil
}

// Close stops event dispatch and releases the checkpoint store.
func (r *Runner) Close() error {
	r.mu.Lock()
	started := r.started
	r.started = false
	r.mu.Unlock()

	if started {
		if err := r.events.Stop(); err != nil {
			r.logger.Error("event manager stop failed", "error", err.Error())
		}
	}
	return r.store.Close()
}

// Execute runs the document under the runner's configured options.
func (r *Runner) Execute(ctx context.Context, doc *WorkflowDocument, globalInputs map[string]interface{}) *ExecutionResult {
	return r.engine.Execute(ctx, doc, r.config.Execution, globalInputs)
}

// ExecuteWithOptions runs the document under per-run options.
func (r *Runner) ExecuteWithOptions(ctx context.Context, doc *WorkflowDocument, opts ExecutionOptions, globalInputs map[string]interface{}) *ExecutionResult {
	return r.engine.Execute(ctx, doc, opts, globalInputs)
}

// Resume continues a previous run from its stored checkpoint. Completed
// nodes are never re-invoked.
func (r *Runner) Resume(ctx context.Context, executionID string, doc *WorkflowDocument, globalInputs map[string]interface{}) *ExecutionResult {
	return r.engine.Resume(ctx, executionID, doc, r.config.Execution, globalInputs)
}

// Pause asks a running execution to stop dispatching and checkpoint. Nodes
// already in flight finish their current attempt.
func (r *Runner) Pause(executionID string) error {
	return r.engine.Pause(executionID)
}

// Cancel aborts a running execution. In-flight nodes observe cancellation
// through their context.
func (r *Runner) Cancel(executionID string) error {
	return r.engine.Cancel(executionID)
}

// Status reports a currently running execution's status. Finished runs are
// not tracked; consult their returned ExecutionResult instead.
func (r *Runner) Status(executionID string) (WorkflowStatus, error) {
	return r.engine.Status(executionID)
}

// On registers a lifecycle event handler and returns its id for Off.
func (r *Runner) On(eventType EventType, handler EventHandler) string {
	return r.events.On(eventType, handler)
}

// Off removes a previously registered handler.
func (r *Runner) Off(handlerID string) {
	r.events.Off(handlerID)
}

// Subscribe returns a channel of events of the given type plus a cancel
// function that must be called when the subscriber is done.
func (r *Runner) Subscribe(eventType EventType) (<-chan Event, func(), error) {
	return r.events.SubscribeToChannel(eventType)
}

// Metrics returns the recorded metrics for one execution.
func (r *Runner) Metrics(executionID string) *ExecutionMetrics {
	return r.metrics.GetMetrics(executionID)
}

// AggregatedMetrics returns metrics accumulated across every run of this
// Runner.
func (r *Runner) AggregatedMetrics() *ExecutionMetrics {
	return r.metrics.GetAggregatedMetrics()
}

// ListCheckpoints returns the execution ids with stored checkpoints for a
// workflow.
func (r *Runner) ListCheckpoints(ctx context.Context, workflowID string) ([]string, error) {
	return r.store.ListStates(ctx, workflowID)
}

// LoadCheckpoint fetches the stored checkpoint for an execution, or nil when
// none exists.
func (r *Runner) LoadCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error) {
	return r.store.LoadState(ctx, executionID)
}

// DeleteCheckpoint removes an execution's stored checkpoint and drops its
// per-run metrics.
func (r *Runner) DeleteCheckpoint(ctx context.Context, executionID string) error {
	r.metrics.Forget(executionID)
	return r.store.DeleteState(ctx, executionID)
}
