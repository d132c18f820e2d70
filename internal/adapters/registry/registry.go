package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

type Adapter struct {
	executors map[string]ports.NodeExecutor
	mu        sync.RWMutex
	logger    *slog.Logger
}

func NewAdapter(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		executors: make(map[string]ports.NodeExecutor),
		logger:    logger.With("component", "executor-registry"),
	}
}

func (r *Adapter) Register(nodeType string, executor ports.NodeExecutor) error {
	if executor == nil {
		r.logger.Error("attempted to register nil executor", "node_type", nodeType)
		return &ports.ExecutorRegistrationError{NodeType: nodeType, Reason: "executor cannot be nil"}
	}
	if nodeType == "" {
		r.logger.Error("attempted to register executor with empty type tag")
		return &ports.ExecutorRegistrationError{NodeType: nodeType, Reason: "node type cannot be empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[nodeType]; exists {
		r.logger.Debug("executor registration failed - already exists", "node_type", nodeType)
		return &ports.ExecutorRegistrationError{NodeType: nodeType, Reason: "executor already registered"}
	}

	r.executors[nodeType] = executor
	r.logger.Debug("executor registered", "node_type", nodeType, "total_types", len(r.executors))
	return nil
}

func (r *Adapter) Resolve(nodeType string) (ports.NodeExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, exists := r.executors[nodeType]
	if !exists {
		return nil, domain.NewValidationError("executor", "no executor registered for type '"+nodeType+"'")
	}
	return executor, nil
}

func (r *Adapter) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.executors[nodeType]
	return exists
}

func (r *Adapter) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for nodeType := range r.executors {
		types = append(types, nodeType)
	}
	sort.Strings(types)
	return types
}
