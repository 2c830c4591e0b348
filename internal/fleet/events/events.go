// Package events carries fleet lifecycle notifications between components
// without coupling them directly.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gookitEvent "github.com/gookit/event"

	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

// Event types published by the fleet layer.
const (
	TypeAccountDeactivated = "account.deactivated"
	TypeBanRecorded        = "account.ban_recorded"
	TypeSessionRotated     = "account.session_rotated"
	TypeTransferCompleted  = "account.transfer_completed"
	TypeTransferFailed     = "account.transfer_failed"
	TypeNodeUnreachable    = "node.unreachable"
)

// Event is a fleet notification with a generated id and timestamp.
type Event struct {
	ID        string
	Type      string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// NewEvent creates an event of the given type.
func NewEvent(eventType string, fields map[string]interface{}) Event {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	}
}

// Handler consumes one event. Returning an error stops delivery to lower
// priority handlers of the same type.
type Handler func(ctx context.Context, evt Event) error

// Bus is a thin wrapper around gookit/event scoped to fleet notifications.
type Bus struct {
	manager *gookitEvent.Manager
	logger  *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewBus creates an event bus and attaches a debug-level logging subscriber
// for every fleet event type.
func NewBus(log *logger.Logger) *Bus {
	b := &Bus{
		manager: gookitEvent.NewManager("fleet"),
		logger:  log.WithComponent("events"),
	}

	for _, eventType := range []string{
		TypeAccountDeactivated,
		TypeBanRecorded,
		TypeSessionRotated,
		TypeTransferCompleted,
		TypeTransferFailed,
		TypeNodeUnreachable,
	} {
		b.manager.On(eventType, gookitEvent.ListenerFunc(func(e gookitEvent.Event) error {
			if evt, ok := e.Get("payload").(Event); ok {
				b.logger.Debug("event published", "type", evt.Type, "id", evt.ID)
			}
			return nil
		}), gookitEvent.Max)
	}

	return b
}

// Publish fires an event to all subscribers of its type.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return fmt.Errorf("event bus is closed")
	}

	err, _ := b.manager.Fire(evt.Type, gookitEvent.M{"payload": evt})
	if err != nil {
		b.logger.ErrorCtx(ctx, "failed to publish event", err, "type", evt.Type, "id", evt.ID)
		return fmt.Errorf("failed to publish event %s: %w", evt.Type, err)
	}
	return nil
}

// Subscribe registers a handler for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	listener := gookitEvent.ListenerFunc(func(e gookitEvent.Event) error {
		evt, ok := e.Get("payload").(Event)
		if !ok {
			return fmt.Errorf("invalid event payload type %T", e.Get("payload"))
		}
		return handler(context.Background(), evt)
	})

	b.manager.On(eventType, listener, gookitEvent.Normal)

	return func() {
		b.manager.RemoveListener(eventType, listener)
	}
}

// Close drops all subscribers. Publishing after Close is an error.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.manager.Clear()
	b.closed = true
	return nil
}
