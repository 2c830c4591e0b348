package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(logger.NewDevelopment("events-test"))
	defer bus.Close()

	var received []Event
	unsubscribe := bus.Subscribe(TypeBanRecorded, func(ctx context.Context, evt Event) error {
		received = append(received, evt)
		return nil
	})

	evt := NewEvent(TypeBanRecorded, map[string]interface{}{"account_id": "acc-1", "banned_by": "target-1"})
	require.NoError(t, bus.Publish(context.Background(), evt))

	require.Len(t, received, 1)
	assert.Equal(t, evt.ID, received[0].ID)
	assert.Equal(t, "acc-1", received[0].Fields["account_id"])

	unsubscribe()
	require.NoError(t, bus.Publish(context.Background(), NewEvent(TypeBanRecorded, nil)))
	assert.Len(t, received, 1, "unsubscribed handler should not fire")
}

func TestPublishAfterClose(t *testing.T) {
	bus := NewBus(logger.NewDevelopment("events-test"))
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), NewEvent(TypeNodeUnreachable, nil))
	assert.Error(t, err)
}

func TestEventDefaults(t *testing.T) {
	evt := NewEvent(TypeTransferCompleted, nil)
	assert.NotEmpty(t, evt.ID)
	assert.False(t, evt.Timestamp.IsZero())
	assert.NotNil(t, evt.Fields)
}
