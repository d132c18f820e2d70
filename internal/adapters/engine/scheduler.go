package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/weft/internal/adapters/graph"
	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
	"github.com/eleven-am/weft/internal/xjson"
)

// rescanInterval bounds how long a resource-deferred node waits before the
// ready set is re-evaluated when no completion event arrives to wake the
// loop.
const rescanInterval = 25 * time.Millisecond

// scheduler drives one run: it owns the ExecutionState, dispatches ready
// nodes into a bounded worker pool and re-evaluates readiness every time a
// node reaches a terminal status.
type scheduler struct {
	engine      *Engine
	plan        *graph.Graph
	doc         *domain.WorkflowDocument
	opts        domain.ExecutionOptions
	budget      domain.CapabilityBudget
	state       *domain.ExecutionState
	resources   ports.ResourceManager
	checkpoints *checkpointManager
	retries     *retryController
	logger      *slog.Logger

	permits  chan struct{}
	wake     chan struct{}
	inFlight sync.WaitGroup

	mu         sync.Mutex
	dispatched map[string]bool
	inFlightN  int64

	paused    atomic.Bool
	cancelled atomic.Bool
}

func newScheduler(engine *Engine, plan *graph.Graph, doc *domain.WorkflowDocument, opts domain.ExecutionOptions, budget domain.CapabilityBudget, state *domain.ExecutionState, resourceMgr ports.ResourceManager, checkpoints *checkpointManager) *scheduler {
	s := &scheduler{
		engine:      engine,
		plan:        plan,
		doc:         doc,
		opts:        opts,
		budget:      budget,
		state:       state,
		resources:   resourceMgr,
		checkpoints: checkpoints,
		logger:      engine.logger.With("component", "scheduler", "execution_id", state.ExecutionID),
		permits:     make(chan struct{}, opts.MaxParallelNodes),
		wake:        make(chan struct{}, 1),
		dispatched:  make(map[string]bool, len(doc.Nodes)),
	}
	s.retries = newRetryController(opts.RetryConfig, engine.logger, engine.events)
	return s
}

func (s *scheduler) Pause()     { s.paused.Store(true); s.signal() }
func (s *scheduler) CancelRun() { s.cancelled.Store(true); s.signal() }

func (s *scheduler) Paused() bool    { return s.paused.Load() }
func (s *scheduler) Cancelled() bool { return s.cancelled.Load() }

// Run drives every node to a terminal status, then drains in-flight work.
func (s *scheduler) Run(ctx context.Context) {
	for {
		if s.halted(ctx) {
			break
		}

		dispatchedAny := s.dispatchReady(ctx)

		if s.allTerminal() {
			break
		}

		if !dispatchedAny && s.inFlightCount() == 0 && !s.anyDispatchable() {
			// Nothing running and nothing can start: the remaining
			// nodes are starved (resource denial) or downstream of
			// failures.
			s.logger.Warn("scheduler stalled with unfinished nodes",
				"completed", s.state.CompletedCount(),
				"total", len(s.doc.Nodes),
			)
			break
		}

		s.checkpoints.MaybeCheckpoint(ctx, s.state)
		s.evictExpiredAllocations()

		select {
		case <-ctx.Done():
		case <-s.wake:
		case <-time.After(rescanInterval):
		}
	}

	s.inFlight.Wait()

	// The terminal state is always persisted, interval or not, so a later
	// resume sees every completion.
	s.checkpoints.Force(context.Background(), s.state)
}

// evictExpiredAllocations releases the resources of nodes that outlived the
// wall-time limit, so one wedged node cannot pin its share of the budget for
// the rest of the run. The node itself keeps running until its own timeout.
func (s *scheduler) evictExpiredAllocations() {
	if s.budget.WallTimeLimit <= 0 {
		return
	}
	if evicted := s.resources.EnforceBudgets(s.state.ExecutionID, s.budget); len(evicted) > 0 {
		s.signal()
	}
}

func (s *scheduler) halted(ctx context.Context) bool {
	if ctx.Err() != nil || s.Paused() || s.Cancelled() {
		return true
	}
	if s.opts.StopOnFailure && s.state.HasFailures() {
		s.logger.Debug("halting dispatch after failure", "failed_nodes", s.state.FailedNodeIDs())
		return true
	}
	return false
}

// dispatchReady scans the topological order once and dispatches every node
// whose dependencies are satisfied, as long as pool permits and resources
// admit it. Deferred nodes are reconsidered on the next wake.
func (s *scheduler) dispatchReady(ctx context.Context) bool {
	dispatchedAny := false

	for _, nodeID := range s.plan.ExecutionOrder {
		if s.halted(ctx) {
			break
		}
		if !s.readyToDispatch(nodeID) {
			continue
		}

		select {
		case s.permits <- struct{}{}:
		default:
			// Pool exhausted; a completion will wake the loop.
			return dispatchedAny
		}

		node := s.doc.NodeByID(nodeID)
		if !s.resources.Allocate(nodeID, requirementsFor(node)) {
			<-s.permits
			if s.inFlightCount() == 0 {
				// Nothing else holds resources, so this demand can
				// never be admitted. Fail it instead of spinning.
				s.failStarved(node)
				continue
			}
			s.logger.Debug("dispatch deferred by resource budget", "node_id", nodeID)
			continue
		}

		s.markDispatched(nodeID)
		dispatchedAny = true

		s.inFlight.Add(1)
		atomic.AddInt64(&s.inFlightN, 1)
		go s.runNode(ctx, node)
	}

	return dispatchedAny
}

// failStarved marks a node failed whose resource requirements exceed the
// run's budget even with the pool idle.
func (s *scheduler) failStarved(node *domain.Node) {
	now := time.Now()
	err := domain.NewResourceError("budget", "admit", domain.ErrCapacityLimit)

	result := &domain.NodeExecutionResult{
		NodeID:      node.ID,
		StartedAt:   now,
		CompletedAt: &now,
		Error:       err.Error(),
	}
	s.markDispatched(node.ID)
	s.state.MarkFailed(result)

	s.logger.Error("node requirements exceed the run's capability budget",
		"node_id", node.ID,
		"node_type", node.Type,
	)
	s.engine.broadcast(domain.EventNodeFailed, s.state.ExecutionID, s.state.WorkflowID, domain.NodeFailedEvent{
		ExecutionID: s.state.ExecutionID,
		NodeID:      node.ID,
		FailedAt:    now,
		Error:       err.Error(),
	})
}

func (s *scheduler) runNode(ctx context.Context, node *domain.Node) {
	defer func() {
		s.resources.Deallocate(node.ID)
		<-s.permits
		atomic.AddInt64(&s.inFlightN, -1)
		s.inFlight.Done()
		s.signal()
	}()

	inputs := s.inputsFor(node.ID)

	result := &domain.NodeExecutionResult{
		NodeID:    node.ID,
		Status:    domain.NodeStatusRunning,
		Inputs:    inputs,
		StartedAt: time.Now(),
	}

	if s.engine.metrics != nil {
		s.engine.metrics.RecordNodeStart(s.state.ExecutionID, node.ID, node.Type)
	}

	outputs, retryCount, err := s.execute(ctx, node, inputs)

	now := time.Now()
	result.CompletedAt = &now
	result.RetryCount = retryCount
	duration := now.Sub(result.StartedAt)

	if err != nil {
		result.Error = err.Error()
		if ctx.Err() != nil && s.Cancelled() {
			result.Status = domain.NodeStatusCancelled
		}
		s.state.MarkFailed(result)

		if s.engine.metrics != nil {
			switch {
			case domain.IsPanicError(err):
				s.engine.metrics.RecordNodePanic(s.state.ExecutionID, node.ID)
			case domain.IsTimeoutError(err):
				s.engine.metrics.RecordNodeTimeout(s.state.ExecutionID, node.ID)
			}
		}

		s.logger.Error("node failed",
			"node_id", node.ID,
			"node_type", node.Type,
			"retries", retryCount,
			"duration", duration,
			"error", err.Error(),
		)
		s.engine.broadcast(domain.EventNodeFailed, s.state.ExecutionID, s.state.WorkflowID, domain.NodeFailedEvent{
			ExecutionID: s.state.ExecutionID,
			NodeID:      node.ID,
			FailedAt:    now,
			Duration:    duration,
			Error:       err.Error(),
			RetryCount:  retryCount,
		})
	} else {
		result.Outputs = outputs
		s.state.MarkCompleted(result)

		s.logger.Debug("node completed",
			"node_id", node.ID,
			"node_type", node.Type,
			"duration", duration,
			"retries", retryCount,
		)
		s.engine.broadcast(domain.EventNodeCompleted, s.state.ExecutionID, s.state.WorkflowID, domain.NodeCompletedEvent{
			ExecutionID: s.state.ExecutionID,
			NodeID:      node.ID,
			CompletedAt: now,
			Duration:    duration,
			Outputs:     outputs,
			RetryCount:  retryCount,
		})
		s.emitProgress()
	}

	if s.engine.metrics != nil {
		status := domain.NodeStatusCompleted
		if err != nil {
			status = result.Status
		}
		s.engine.metrics.RecordNodeComplete(s.state.ExecutionID, node.ID, status, duration)
	}
}

// execute composes the per-node pipeline: fan-out or plain invocation,
// wrapped by the timeout guard, wrapped by the retry controller.
func (s *scheduler) execute(ctx context.Context, node *domain.Node, inputs map[string]interface{}) (map[string]interface{}, int, error) {
	executor, err := s.engine.registry.Resolve(node.Type)
	if err != nil {
		return nil, 0, err
	}

	timeout := s.opts.TimeoutConfig.NodeTimeout
	if node.Timeout != nil && *node.Timeout > 0 {
		timeout = *node.Timeout
	}

	policy := s.retries.policyFor(node)

	invoke := func(attemptCtx context.Context, attempt int) (map[string]interface{}, error) {
		ectx := ports.ExecutionContext{
			ExecutionID:   s.state.ExecutionID,
			WorkflowID:    s.state.WorkflowID,
			NodeID:        node.ID,
			NodeType:      node.Type,
			GlobalInputs:  s.state.GlobalInputs,
			NodeInputs:    inputs,
			Configuration: node.Configuration,
			Timeout:       timeout,
			Attempt:       attempt,
			Services:      s.engine.services,
		}

		s.engine.broadcast(domain.EventNodeStarted, s.state.ExecutionID, s.state.WorkflowID, domain.NodeStartedEvent{
			ExecutionID: s.state.ExecutionID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			StartedAt:   time.Now(),
			Inputs:      inputs,
			Attempt:     attempt,
		})

		return runWithTimeout(attemptCtx, node.ID, timeout, func(tctx context.Context) (map[string]interface{}, error) {
			if fanOut, ok := parseFanOutConfig(node); ok {
				return runFanOut(tctx, executor, ectx, fanOut, s.logger)
			}
			return invokeWithRecovery(tctx, executor, ectx, s.logger)
		})
	}

	return s.retries.Run(ctx, node.ID, policy, invoke, func(rs *domain.RetryState) {
		s.state.SetRetryState(rs)
		if s.engine.metrics != nil {
			s.engine.metrics.RecordNodeRetry(s.state.ExecutionID, node.ID)
		}
		s.engine.broadcast(domain.EventNodeRetrying, s.state.ExecutionID, s.state.WorkflowID, domain.NodeRetryingEvent{
			ExecutionID:   s.state.ExecutionID,
			NodeID:        node.ID,
			Attempt:       rs.AttemptCount,
			NextRetryTime: rs.NextRetryTime,
			LastError:     rs.LastError,
		})
	})
}

// readyToDispatch applies the dependency gate. Fan-in nodes become ready
// once their quorum of upstream completions is reached; everything else
// needs every upstream completed.
func (s *scheduler) readyToDispatch(nodeID string) bool {
	s.mu.Lock()
	if s.dispatched[nodeID] {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	if s.state.IsTerminal(nodeID) {
		return false
	}

	deps := s.plan.Dependencies[nodeID]
	if len(deps) == 0 {
		return true
	}

	completed := 0
	for _, dep := range deps {
		if s.state.IsCompleted(dep) {
			completed++
		}
	}

	node := s.doc.NodeByID(nodeID)
	if fanIn, ok := parseFanInConfig(node); ok {
		return quorumReached(fanIn.Quorum, completed, len(deps))
	}
	return completed == len(deps)
}

// anyDispatchable reports whether some non-terminal, non-dispatched node
// has its dependency gate satisfied, regardless of pool or resource
// capacity. Used only for stall detection.
func (s *scheduler) anyDispatchable() bool {
	for _, nodeID := range s.plan.ExecutionOrder {
		if s.readyToDispatch(nodeID) {
			return true
		}
	}
	return false
}

func (s *scheduler) allTerminal() bool {
	for _, node := range s.doc.Nodes {
		if !s.state.IsTerminal(node.ID) {
			return false
		}
	}
	return true
}

func (s *scheduler) markDispatched(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched[nodeID] = true
}

func (s *scheduler) inFlightCount() int64 {
	return atomic.LoadInt64(&s.inFlightN)
}

func (s *scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// inputsFor assembles a node's inputs from its upstream data connections.
// Edges without handles merge the source's whole output map; edges with a
// false condition predicate contribute nothing. Fan-in nodes additionally
// aggregate upstream results per their configured strategy.
func (s *scheduler) inputsFor(nodeID string) map[string]interface{} {
	inputs := make(map[string]interface{})

	// Root nodes are fed by the run's global inputs.
	if len(s.plan.Dependencies[nodeID]) == 0 {
		for key, value := range s.state.GlobalInputs {
			inputs[key] = value
		}
	}

	upstream := make([]map[string]interface{}, 0)
	for _, conn := range s.plan.DataConnections {
		if conn.TargetNode != nodeID {
			continue
		}
		srcResult := s.state.ResultFor(conn.SourceNode)
		if srcResult == nil || srcResult.Status != domain.NodeStatusCompleted {
			continue
		}
		outputs := srcResult.Outputs
		if conn.Predicate != nil && !conn.Predicate(outputs) {
			s.logger.Debug("edge condition false, route dropped",
				"source", conn.SourceNode,
				"target", conn.TargetNode,
			)
			continue
		}

		upstream = append(upstream, outputs)

		switch {
		case conn.SourceKey == "" && conn.TargetKey == "":
			for key, value := range outputs {
				inputs[key] = value
			}
		case conn.SourceKey == "":
			inputs[conn.TargetKey] = outputs
		default:
			if value, ok := outputs[conn.SourceKey]; ok {
				inputs[conn.TargetKey] = value
			}
		}
	}

	node := s.doc.NodeByID(nodeID)
	if fanIn, ok := parseFanInConfig(node); ok {
		aggregated, err := aggregate(upstream, fanIn)
		if err != nil {
			s.logger.Error("fan-in aggregation failed", "node_id", nodeID, "error", err.Error())
		} else {
			inputs[fanInAggregatedKey] = aggregated
		}
	}

	return inputs
}

func (s *scheduler) emitProgress() {
	completed := s.state.CompletedCount()
	total := len(s.doc.Nodes)
	s.engine.broadcast(domain.EventProgress, s.state.ExecutionID, s.state.WorkflowID, domain.ProgressEvent{
		ExecutionID:    s.state.ExecutionID,
		WorkflowID:     s.state.WorkflowID,
		CompletedNodes: completed,
		TotalNodes:     total,
		Percent:        float64(completed) / float64(total) * 100,
	})
}

// requirementsFor reads a node's declared resource demands from its
// configuration block. Absent keys cost nothing beyond the concurrency
// slot.
func requirementsFor(node *domain.Node) domain.ResourceRequirements {
	var req domain.ResourceRequirements
	if node == nil || node.Configuration == nil {
		return req
	}
	raw, ok := node.Configuration["resources"]
	if !ok {
		return req
	}
	if err := xjson.Roundtrip(raw, &req); err != nil {
		return domain.ResourceRequirements{}
	}
	return req
}
