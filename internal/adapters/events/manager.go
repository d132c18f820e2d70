package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eleven-am/weft/internal/domain"
)

const broadcastBuffer = 1000

type registeredHandler struct {
	id        string
	eventType domain.EventType
	handler   domain.EventHandler
}

type channelSubscription struct {
	id        string
	eventType domain.EventType
	ch        chan domain.Event
}

// Manager dispatches lifecycle events to explicitly registered observers.
// Handlers run on dedicated dispatch workers, never on the scheduler's
// goroutine, so a slow observer cannot stall execution.
type Manager struct {
	logger      *slog.Logger
	workerCount int

	mu            sync.RWMutex
	handlers      []registeredHandler
	subscriptions map[string]*channelSubscription
	eventChan     chan domain.Event
	running       bool
	closed        bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

func NewManager(workerCount int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount <= 0 {
		workerCount = 2
	}

	return &Manager{
		logger:        logger.With("component", "event-manager"),
		workerCount:   workerCount,
		subscriptions: make(map[string]*channelSubscription),
		eventChan:     make(chan domain.Event, broadcastBuffer),
	}
}

func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return domain.ErrAlreadyRunning
	}
	if m.closed {
		return domain.ErrClosed
	}

	workerCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for i := 0; i < m.workerCount; i++ {
		m.wg.Add(1)
		go m.worker(workerCtx, i)
	}

	m.logger.Debug("event manager started", "workers", m.workerCount)
	return nil
}

func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return domain.ErrInvalidState
	}
	m.running = false
	m.closed = true
	m.cancel()
	close(m.eventChan)
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	for _, sub := range m.subscriptions {
		close(sub.ch)
	}
	m.subscriptions = make(map[string]*channelSubscription)
	m.mu.Unlock()

	m.logger.Debug("event manager stopped")
	return nil
}

func (m *Manager) Broadcast(event domain.Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running {
		return domain.ErrInvalidState
	}

	select {
	case m.eventChan <- event:
		return nil
	default:
		m.logger.Warn("event channel full, event dropped",
			"event_type", event.Type,
			"execution_id", event.ExecutionID,
		)
		return domain.ErrCapacityLimit
	}
}

func (m *Manager) On(eventType domain.EventType, handler domain.EventHandler) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.handlers = append(m.handlers, registeredHandler{
		id:        id,
		eventType: eventType,
		handler:   handler,
	})

	m.logger.Debug("handler registered", "event_type", eventType, "handler_id", id)
	return id
}

func (m *Manager) Off(handlerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, h := range m.handlers {
		if h.id == handlerID {
			m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
			m.logger.Debug("handler removed", "handler_id", handlerID)
			return
		}
	}
}

func (m *Manager) SubscribeToChannel(eventType domain.EventType) (<-chan domain.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, domain.ErrClosed
	}

	sub := &channelSubscription{
		id:        uuid.New().String(),
		eventType: eventType,
		ch:        make(chan domain.Event, 64),
	}
	m.subscriptions[sub.id] = sub

	cleanup := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subscriptions[sub.id]; ok {
			delete(m.subscriptions, sub.id)
			close(existing.ch)
		}
	}

	return sub.ch, cleanup, nil
}

func (m *Manager) worker(ctx context.Context, workerID int) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.eventChan:
			if !ok {
				return
			}
			m.dispatch(event, workerID)
		}
	}
}

func (m *Manager) dispatch(event domain.Event, workerID int) {
	m.mu.RLock()
	handlers := make([]registeredHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		if h.eventType == event.Type {
			handlers = append(handlers, h)
		}
	}
	subs := make([]*channelSubscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.eventType == event.Type {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("event handler panicked",
						"event_type", event.Type,
						"handler_id", h.id,
						"panic", r,
					)
				}
			}()
			h.handler(event)
		}()
	}

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			m.logger.Debug("subscriber channel full, event dropped",
				"event_type", event.Type,
				"subscription_id", sub.id,
				"worker", workerID,
			)
		}
	}
}
