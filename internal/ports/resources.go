package ports

import (
	"time"

	"github.com/eleven-am/weft/internal/domain"
)

// ResourceManager accounts a run's capability budget. Admission is
// fail-fast: a denied Allocate is the scheduler's signal to defer the
// dispatch, never to block. EnforceBudgets is the wall-time sweep; the
// scheduler runs it on every rescan tick when the budget sets a limit.
type ResourceManager interface {
	Allocate(nodeID string, req domain.ResourceRequirements) bool
	Deallocate(nodeID string)
	CheckAvailability(req domain.ResourceRequirements) bool
	GetUsage() ResourceUsage
	EnforceBudgets(executionID string, budget domain.CapabilityBudget) []string
	CleanupStaleAllocations(maxAge time.Duration) []string
}

type ResourceUsage struct {
	ConcurrentNodes int     `json:"concurrent_nodes"`
	SessionHandles  int     `json:"session_handles"`
	MemoryBytes     int64   `json:"memory_bytes"`
	Cost            float64 `json:"cost"`
	Allocations     int     `json:"allocations"`
}
