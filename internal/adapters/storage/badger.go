package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/eleven-am/weft/internal/domain"
	"github.com/eleven-am/weft/internal/xjson"
)

const (
	checkpointPrefix = "checkpoint:"
	workflowPrefix   = "workflow:"
)

// BadgerStore persists checkpoints in a local badger database. Keys:
//
//	checkpoint:<executionID>            -> serialized checkpoint
//	workflow:<workflowID>:<executionID> -> index entry for ListStates
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadgerStore(dataDir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:     db,
		logger: logger.With("component", "badger-store"),
	}, nil
}

func (s *BadgerStore) SaveState(ctx context.Context, executionID string, checkpoint *domain.Checkpoint) error {
	data, err := xjson.Marshal(checkpoint)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(checkpointPrefix+executionID), data); err != nil {
			return err
		}
		if checkpoint.WorkflowID != "" {
			indexKey := workflowPrefix + checkpoint.WorkflowID + ":" + executionID
			return txn.Set([]byte(indexKey), []byte(executionID))
		}
		return nil
	})
	if err != nil {
		s.logger.Error("checkpoint save failed", "execution_id", executionID, "error", err.Error())
		return err
	}

	s.logger.Debug("checkpoint saved",
		"execution_id", executionID,
		"completed_nodes", len(checkpoint.CompletedNodes),
		"bytes", len(data),
	)
	return nil
}

func (s *BadgerStore) LoadState(ctx context.Context, executionID string) (*domain.Checkpoint, error) {
	var data []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(checkpointPrefix + executionID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var checkpoint domain.Checkpoint
	if err := xjson.Unmarshal(data, &checkpoint); err != nil {
		return nil, err
	}

	s.logger.Debug("checkpoint loaded", "execution_id", executionID, "completed_nodes", len(checkpoint.CompletedNodes))
	return &checkpoint, nil
}

func (s *BadgerStore) DeleteState(ctx context.Context, executionID string) error {
	checkpoint, err := s.LoadState(ctx, executionID)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(checkpointPrefix + executionID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if checkpoint != nil && checkpoint.WorkflowID != "" {
			indexKey := workflowPrefix + checkpoint.WorkflowID + ":" + executionID
			if err := txn.Delete([]byte(indexKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) ListStates(ctx context.Context, workflowID string) ([]string, error) {
	executionIDs := make([]string, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		prefix := []byte(workflowPrefix)
		if workflowID != "" {
			prefix = []byte(workflowPrefix + workflowID + ":")
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			executionIDs = append(executionIDs, string(value))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return executionIDs, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
