package stats

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAllSucceed(t *testing.T) {
	results := Settle(context.Background(),
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return nil },
	)

	require.Len(t, results, 2)
	assert.NoError(t, results[0])
	assert.NoError(t, results[1])
}

func TestSettleIsolatesFailures(t *testing.T) {
	var completed int32
	boom := fmt.Errorf("boom")

	results := Settle(context.Background(),
		func(ctx context.Context) error {
			return boom
		},
		func(ctx context.Context) error {
			// Give the failing sibling time to return first.
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&completed, 1)
			return nil
		},
		func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&completed, 1)
			return nil
		},
	)

	require.Len(t, results, 3)
	assert.Equal(t, boom, results[0])
	assert.NoError(t, results[1])
	assert.NoError(t, results[2])
	assert.Equal(t, int32(2), atomic.LoadInt32(&completed), "a failure must not cancel siblings")
}

func TestSettleRecoversPanics(t *testing.T) {
	results := Settle(context.Background(),
		func(ctx context.Context) error { panic("kaboom") },
		func(ctx context.Context) error { return nil },
	)

	require.Len(t, results, 2)
	require.Error(t, results[0])
	assert.Contains(t, results[0].Error(), "kaboom")
	assert.NoError(t, results[1])
}

func TestSettleEmpty(t *testing.T) {
	assert.Empty(t, Settle(context.Background()))
}
