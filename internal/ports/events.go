package ports

import (
	"context"

	"github.com/eleven-am/weft/internal/domain"
)

// EventManager is the typed observer surface for lifecycle notifications.
// Handlers are registered explicitly at construction or later via On; there
// is no process-wide emitter.
type EventManager interface {
	Start(ctx context.Context) error
	Stop() error

	Broadcast(event domain.Event) error
	SubscribeToChannel(eventType domain.EventType) (<-chan domain.Event, func(), error)

	On(eventType domain.EventType, handler domain.EventHandler) string
	Off(handlerID string)
}
