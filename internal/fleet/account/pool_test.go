package account

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asimaranov/telestory-backend/internal/fleet/db"
	"github.com/asimaranov/telestory-backend/internal/fleet/events"
	"github.com/asimaranov/telestory-backend/internal/shared/errors"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
	"github.com/asimaranov/telestory-backend/pkg/crypto"
)

func newTestPool(t *testing.T, accounts int) (*Pool, db.Store) {
	t.Helper()

	_, store := db.NewTestDB(t)
	box := crypto.NewSessionBox(nil)
	log := logger.NewDevelopment("pool-test")

	db.SeedTestNode(t, store, db.UpsertNodeParams{Name: "worker-1", Tier: "free"})

	for i := 0; i < accounts; i++ {
		blob, err := box.Seal([]byte(fmt.Sprintf("credential-%d", i)))
		require.NoError(t, err)
		db.SeedTestAccount(t, store, db.CreateAccountParams{
			ID:          fmt.Sprintf("acc-%d", i),
			SessionBlob: blob,
			NodeID:      "worker-1",
		})
	}

	pool := NewPool(PoolConfig{NodeName: "worker-1", HistoryRetention: 3}, store, box, events.NewBus(log), log)
	require.NoError(t, pool.Load(context.Background()))
	return pool, store
}

func TestCheckoutBeforeLoad(t *testing.T) {
	_, store := db.NewTestDB(t)
	log := logger.NewDevelopment("pool-test")
	pool := NewPool(PoolConfig{NodeName: "worker-1"}, store, crypto.NewSessionBox(nil), nil, log)

	_, err := pool.Checkout(context.Background())
	assert.ErrorIs(t, err, errors.ErrPoolEmpty)
}

func TestCheckoutEmptyPool(t *testing.T) {
	pool, _ := newTestPool(t, 0)

	_, err := pool.Checkout(context.Background())
	assert.ErrorIs(t, err, errors.ErrPoolEmpty)
}

func TestCheckoutRoundRobin(t *testing.T) {
	for _, size := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			pool, _ := newTestPool(t, size)
			ctx := context.Background()

			// Two full cycles: every session is visited exactly once per cycle.
			for cycle := 0; cycle < 2; cycle++ {
				seen := make(map[string]int)
				for i := 0; i < size; i++ {
					lease, err := pool.Checkout(ctx)
					require.NoError(t, err)
					seen[lease.Account().ID]++
					lease.Release()
				}
				assert.Len(t, seen, size, "each cycle must visit every session")
				for id, n := range seen {
					assert.Equal(t, 1, n, "session %s visited more than once in a cycle", id)
				}
			}
		})
	}
}

func TestCheckoutExclusion(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	ctx := context.Background()

	first, err := pool.Checkout(ctx)
	require.NoError(t, err)

	// A second checkout of the same session blocks until release.
	acquired := make(chan struct{})
	go func() {
		second, err := pool.Checkout(ctx)
		if err == nil {
			close(acquired)
			second.Release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second checkout acquired the lock while the first lease was held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second checkout did not proceed after release")
	}
}

func TestCheckoutDifferentSessionsIndependent(t *testing.T) {
	pool, _ := newTestPool(t, 2)
	ctx := context.Background()

	first, err := pool.Checkout(ctx)
	require.NoError(t, err)
	defer first.Release()

	// The next rotation slot is a different session and must not block.
	done := make(chan struct{})
	go func() {
		second, err := pool.Checkout(ctx)
		require.NoError(t, err)
		second.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checkout of a different session blocked")
	}
}

func TestCheckoutHonorsContext(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	lease, err := pool.Checkout(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Checkout(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseIdempotent(t *testing.T) {
	pool, _ := newTestPool(t, 1)

	lease, err := pool.Checkout(context.Background())
	require.NoError(t, err)
	lease.Release()
	lease.Release() // second release must not unlock someone else's lease

	second, err := pool.Checkout(context.Background())
	require.NoError(t, err)
	defer second.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Checkout(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecordBanIdempotent(t *testing.T) {
	pool, store := newTestPool(t, 1)
	ctx := context.Background()

	require.NoError(t, pool.RecordBan(ctx, "acc-0", "target-1", `{"code":403}`))
	require.NoError(t, pool.RecordBan(ctx, "acc-0", "target-1", `{"code":403}`))

	bans, err := store.ListAccountBans(ctx, "acc-0")
	require.NoError(t, err)
	assert.Len(t, bans, 1)
}

func TestDeactivateRemovesFromRotation(t *testing.T) {
	pool, store := newTestPool(t, 3)
	ctx := context.Background()

	require.NoError(t, pool.Deactivate(ctx, "acc-1", "auth_expired"))
	assert.Equal(t, 2, pool.Size())

	// Deactivated session never comes back out of rotation.
	for i := 0; i < 4; i++ {
		lease, err := pool.Checkout(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, "acc-1", lease.Account().ID)
		lease.Release()
	}

	row, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.False(t, row.Active)
	assert.Equal(t, "auth_expired", row.InactiveReason)
}

func TestDeactivateLetsHolderFinish(t *testing.T) {
	pool, _ := newTestPool(t, 1)
	ctx := context.Background()

	lease, err := pool.Checkout(ctx)
	require.NoError(t, err)

	require.NoError(t, pool.Deactivate(ctx, "acc-0", "auth_expired"))

	// The in-flight lease still works and releases cleanly.
	assert.Equal(t, "acc-0", lease.Account().ID)
	lease.Release()

	_, err = pool.Checkout(ctx)
	assert.ErrorIs(t, err, errors.ErrPoolEmpty)
}

func TestRotateSessionKeepsHistoryBounded(t *testing.T) {
	pool, store := newTestPool(t, 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, pool.RotateSession(ctx, "acc-0", fmt.Sprintf("credential-v%d", i), "rotation"))
	}

	entries, err := store.ListSessionHistory(ctx, "acc-0")
	require.NoError(t, err)
	assert.Len(t, entries, 3, "history must be capped at the configured retention")

	row, err := store.GetAccount(ctx, "acc-0")
	require.NoError(t, err)
	blob, err := crypto.NewSessionBox(nil).Open(row.SessionBlob)
	require.NoError(t, err)
	assert.Equal(t, "credential-v4", string(blob))
}

func TestConcurrentCheckoutStress(t *testing.T) {
	pool, _ := newTestPool(t, 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	held := make(map[string]*int32)
	var mu sync.Mutex

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := pool.Checkout(ctx)
			if err != nil {
				t.Errorf("checkout failed: %v", err)
				return
			}
			defer lease.Release()

			id := lease.Account().ID
			mu.Lock()
			if held[id] == nil {
				var zero int32
				held[id] = &zero
			}
			counter := held[id]
			mu.Unlock()

			// Exclusion invariant: we are the only holder of this session.
			n := atomic.AddInt32(counter, 1)
			if n != 1 {
				t.Errorf("session %s held by %d callers", id, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(counter, -1)
		}()
	}
	wg.Wait()
}
