package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/xjson"
)

// MemoryStore is the state store used when no data directory is configured.
// Checkpoints survive only for the life of the process. Values are held
// serialized so loads return independent copies, matching the durable
// store's semantics.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
	index  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string][]byte),
		index:  make(map[string]string),
	}
}

func (s *MemoryStore) SaveState(ctx context.Context, executionID string, checkpoint *domain.Checkpoint) error {
	data, err := xjson.Marshal(checkpoint)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[executionID] = data
	if checkpoint.WorkflowID != "" {
		s.index[checkpoint.WorkflowID+":"+executionID] = executionID
	}
	return nil
}

func (s *MemoryStore) LoadState(ctx context.Context, executionID string) (*domain.Checkpoint, error) {
	s.mu.RLock()
	data, ok := s.states[executionID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	var checkpoint domain.Checkpoint
	if err := xjson.Unmarshal(data, &checkpoint); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

func (s *MemoryStore) DeleteState(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, executionID)
	for key, id := range s.index {
		if id == executionID {
			delete(s.index, key)
		}
	}
	return nil
}

func (s *MemoryStore) ListStates(ctx context.Context, workflowID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executionIDs := make([]string, 0)
	for key, id := range s.index {
		if workflowID == "" || strings.HasPrefix(key, workflowID+":") {
			executionIDs = append(executionIDs, id)
		}
	}
	return executionIDs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
