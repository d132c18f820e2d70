package resources

import (
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/ports"
)

// Manager accounts one run's capability budget: concurrent node slots,
// external-session handles, memory and cost. Admission is fail-fast; a
// rejected request leaves every counter untouched.
type Manager struct {
	mu          sync.Mutex
	logger      *slog.Logger
	budget      domain.CapabilityBudget
	allocations map[string]*domain.ResourceAllocation

	sessionHandles int
	memoryBytes    int64
	cost           float64
}

func NewManager(budget domain.CapabilityBudget, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		logger:      logger.With("component", "resource-manager"),
		budget:      budget,
		allocations: make(map[string]*domain.ResourceAllocation),
	}
}

func (m *Manager) Allocate(nodeID string, req domain.ResourceRequirements) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.fits(req) {
		m.logger.Debug("allocation rejected",
			"node_id", nodeID,
			"concurrent_nodes", len(m.allocations),
			"session_handles", m.sessionHandles,
			"memory_bytes", m.memoryBytes,
			"cost", m.cost,
		)
		return false
	}

	alloc := &domain.ResourceAllocation{
		NodeID:         nodeID,
		SessionHandles: req.SessionHandles,
		MemoryBytes:    req.MemoryBytes,
		Cost:           req.Cost,
		AllocatedAt:    time.Now(),
	}
	if m.budget.WallTimeLimit > 0 {
		expires := alloc.AllocatedAt.Add(m.budget.WallTimeLimit)
		alloc.ExpiresAt = &expires
	}

	m.allocations[nodeID] = alloc
	m.sessionHandles += req.SessionHandles
	m.memoryBytes += req.MemoryBytes
	m.cost += req.Cost

	m.logger.Debug("resources allocated",
		"node_id", nodeID,
		"session_handles", req.SessionHandles,
		"memory_bytes", req.MemoryBytes,
		"cost", req.Cost,
		"concurrent_nodes", len(m.allocations),
	)
	return true
}

func (m *Manager) Deallocate(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(nodeID)
}

func (m *Manager) CheckAvailability(req domain.ResourceRequirements) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fits(req)
}

func (m *Manager) GetUsage() ports.ResourceUsage {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ports.ResourceUsage{
		ConcurrentNodes: len(m.allocations),
		SessionHandles:  m.sessionHandles,
		MemoryBytes:     m.memoryBytes,
		Cost:            m.cost,
		Allocations:     len(m.allocations),
	}
}

// EnforceBudgets re-checks aggregate usage against the run's declared
// budget and evicts allocations that outlived the wall-time limit.
// Returns the node ids it force-deallocated.
func (m *Manager) EnforceBudgets(executionID string, budget domain.CapabilityBudget) []string {
	var evicted []string
	if budget.WallTimeLimit > 0 {
		evicted = m.CleanupStaleAllocations(budget.WallTimeLimit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(evicted) > 0 {
		m.logger.Warn("force-deallocated stale allocations",
			"execution_id", executionID,
			"evicted", evicted,
		)
	}

	if overrun := m.overrunDimension(budget); overrun != "" {
		m.logger.Warn("aggregate usage exceeds budget",
			"execution_id", executionID,
			"dimension", overrun,
		)
	}

	return evicted
}

// CleanupStaleAllocations force-deallocates every allocation older than
// maxAge and returns the node ids it released.
func (m *Manager) CleanupStaleAllocations(maxAge time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := make([]string, 0)
	now := time.Now()

	for nodeID, alloc := range m.allocations {
		if now.Sub(alloc.AllocatedAt) > maxAge {
			m.release(nodeID)
			evicted = append(evicted, nodeID)
		}
	}

	if len(evicted) > 0 {
		m.logger.Debug("cleaned up stale allocations", "max_age", maxAge, "evicted", evicted)
	}

	return evicted
}

// fits and release assume the caller holds the mutex.

func (m *Manager) fits(req domain.ResourceRequirements) bool {
	if m.budget.MaxConcurrentNodes > 0 && len(m.allocations)+1 > m.budget.MaxConcurrentNodes {
		return false
	}
	if m.budget.MaxSessionHandles > 0 && m.sessionHandles+req.SessionHandles > m.budget.MaxSessionHandles {
		return false
	}
	if m.budget.MaxMemoryBytes > 0 && m.memoryBytes+req.MemoryBytes > m.budget.MaxMemoryBytes {
		return false
	}
	if m.budget.MaxCost > 0 && m.cost+req.Cost > m.budget.MaxCost {
		return false
	}
	return true
}

func (m *Manager) release(nodeID string) {
	alloc, ok := m.allocations[nodeID]
	if !ok {
		return
	}

	m.sessionHandles -= alloc.SessionHandles
	m.memoryBytes -= alloc.MemoryBytes
	m.cost -= alloc.Cost
	delete(m.allocations, nodeID)

	m.logger.Debug("resources released", "node_id", nodeID, "concurrent_nodes", len(m.allocations))
}

func (m *Manager) overrunDimension(budget domain.CapabilityBudget) string {
	switch {
	case budget.MaxConcurrentNodes > 0 && len(m.allocations) > budget.MaxConcurrentNodes:
		return "concurrent_nodes"
	case budget.MaxSessionHandles > 0 && m.sessionHandles > budget.MaxSessionHandles:
		return "session_handles"
	case budget.MaxMemoryBytes > 0 && m.memoryBytes > budget.MaxMemoryBytes:
		return "memory_bytes"
	case budget.MaxCost > 0 && m.cost > budget.MaxCost:
		return "cost"
	}
	return ""
}
