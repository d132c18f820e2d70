package resources

import (
	"testing"
	"time"

	"github.com/eleven-am/weft/internal/domain"
)

func TestManager_AllocateWithinBudget(t *testing.T) {
	m := NewManager(domain.CapabilityBudget{
		MaxConcurrentNodes: 2,
		MaxSessionHandles:  3,
		MaxMemoryBytes:     1024,
		MaxCost:            10,
	}, nil)

	if !m.Allocate("a", domain.ResourceRequirements{SessionHandles: 1, MemoryBytes: 512, Cost: 4}) {
		t.Fatal("expected first allocation to succeed")
	}

	usage := m.GetUsage()
	if usage.ConcurrentNodes != 1 || usage.SessionHandles != 1 || usage.MemoryBytes != 512 || usage.Cost != 4 {
		t.Errorf("unexpected usage: %+v", usage)
	}
}

func TestManager_RejectLeavesCountersUnchanged(t *testing.T) {
	m := NewManager(domain.CapabilityBudget{MaxConcurrentNodes: 1}, nil)

	if !m.Allocate("a", domain.ResourceRequirements{}) {
		t.Fatal("expected first allocation to succeed")
	}
	if m.Allocate("b", domain.ResourceRequirements{}) {
		t.Fatal("expected second allocation to be rejected")
	}

	usage := m.GetUsage()
	if usage.ConcurrentNodes != 1 {
		t.Errorf("counters mutated on rejection: %+v", usage)
	}
}

func TestManager_RejectsOverBudgetDimension(t *testing.T) {
	m := NewManager(domain.CapabilityBudget{
		MaxConcurrentNodes: 10,
		MaxSessionHandles:  2,
	}, nil)

	m.Allocate("a", domain.ResourceRequirements{SessionHandles: 2})

	if m.Allocate("b", domain.ResourceRequirements{SessionHandles: 1}) {
		t.Fatal("expected session handle budget to reject allocation")
	}
	if !m.CheckAvailability(domain.ResourceRequirements{SessionHandles: 0}) {
		t.Fatal("zero-handle request should still fit")
	}
}

func TestManager_DeallocateFreesCapacity(t *testing.T) {
	m := NewManager(domain.CapabilityBudget{MaxConcurrentNodes: 1}, nil)

	m.Allocate("a", domain.ResourceRequirements{Cost: 1})
	m.Deallocate("a")

	usage := m.GetUsage()
	if usage.ConcurrentNodes != 0 || usage.Cost != 0 {
		t.Errorf("expected empty usage after deallocate, got %+v", usage)
	}

	if !m.Allocate("b", domain.ResourceRequirements{}) {
		t.Error("expected allocation to succeed after release")
	}
}

func TestManager_DeallocateUnknownNodeIsNoop(t *testing.T) {
	m := NewManager(domain.CapabilityBudget{}, nil)
	m.Deallocate("ghost")

	if usage := m.GetUsage(); usage.Allocations != 0 {
		t.Errorf("unexpected usage: %+v", usage)
	}
}

func TestManager_CleanupStaleAllocations(t *testing.T) {
	m := NewManager(domain.CapabilityBudget{}, nil)

	m.Allocate("old", domain.ResourceRequirements{SessionHandles: 1})
	m.allocations["old"].AllocatedAt = time.Now().Add(-time.Hour)
	m.Allocate("fresh", domain.ResourceRequirements{})

	evicted := m.CleanupStaleAllocations(time.Minute)
	if len(evicted) != 1 || evicted[0] != "old" {
		t.Fatalf("expected [old] evicted, got %v", evicted)
	}

	usage := m.GetUsage()
	if usage.ConcurrentNodes != 1 || usage.SessionHandles != 0 {
		t.Errorf("unexpected usage after cleanup: %+v", usage)
	}
}

func TestManager_EnforceBudgetsEvictsExpired(t *testing.T) {
	budget := domain.CapabilityBudget{WallTimeLimit: time.Minute}
	m := NewManager(budget, nil)

	m.Allocate("stale", domain.ResourceRequirements{SessionHandles: 1})
	m.allocations["stale"].AllocatedAt = time.Now().Add(-2 * time.Minute)
	m.Allocate("fresh", domain.ResourceRequirements{})

	evicted := m.EnforceBudgets("exec-1", budget)
	if len(evicted) != 1 || evicted[0] != "stale" {
		t.Fatalf("expected [stale] evicted, got %v", evicted)
	}

	usage := m.GetUsage()
	if usage.ConcurrentNodes != 1 || usage.SessionHandles != 0 {
		t.Errorf("unexpected usage after eviction: %+v", usage)
	}
}
