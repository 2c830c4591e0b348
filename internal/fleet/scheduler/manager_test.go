package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asimaranov/telestory-backend/internal/fleet/config"
	"github.com/asimaranov/telestory-backend/internal/shared/logger"
)

type fakeManagers struct {
	approvals int32
	transfers int32
	prunes    int32
}

func (f *fakeManagers) ApprovalSweep(ctx context.Context) error {
	atomic.AddInt32(&f.approvals, 1)
	return nil
}

func (f *fakeManagers) SweepTransfers(ctx context.Context) error {
	atomic.AddInt32(&f.transfers, 1)
	return nil
}

func (f *fakeManagers) PruneRequestLog(ctx context.Context, before time.Time) (int64, error) {
	atomic.AddInt32(&f.prunes, 1)
	return 0, nil
}

func shortConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		ApprovalInterval:    10 * time.Millisecond,
		TransferInterval:    10 * time.Millisecond,
		MaintenanceInterval: 10 * time.Millisecond,
		RequestLogRetention: time.Hour,
	}
}

func TestManagerLifecycle(t *testing.T) {
	fake := &fakeManagers{}
	m := NewManager(shortConfig(), fake, fake, fake, logger.NewDevelopment("scheduler-test"))

	require.False(t, m.IsRunning())
	require.NoError(t, m.Start(context.Background()))
	require.True(t, m.IsRunning())

	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(stopCtx))
	require.False(t, m.IsRunning())

	assert.Greater(t, atomic.LoadInt32(&fake.approvals), int32(0))
	assert.Greater(t, atomic.LoadInt32(&fake.transfers), int32(0))
	assert.Greater(t, atomic.LoadInt32(&fake.prunes), int32(0))
}

func TestManagerSkipsApprovalLoopWithoutManager(t *testing.T) {
	fake := &fakeManagers{}
	m := NewManager(shortConfig(), nil, fake, fake, logger.NewDevelopment("scheduler-test"))

	require.NoError(t, m.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(stopCtx))

	assert.Zero(t, atomic.LoadInt32(&fake.approvals), "worker nodes must not run approval sweeps")
	assert.Greater(t, atomic.LoadInt32(&fake.transfers), int32(0))
	assert.Greater(t, atomic.LoadInt32(&fake.prunes), int32(0))
}

func TestManagerStartIdempotent(t *testing.T) {
	fake := &fakeManagers{}
	m := NewManager(shortConfig(), fake, fake, fake, logger.NewDevelopment("scheduler-test"))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(stopCtx))
	require.NoError(t, m.Stop(stopCtx))
}

func TestApprovalSchedulerSweepsImmediately(t *testing.T) {
	fake := &fakeManagers{}
	s := NewApprovalScheduler(time.Hour, fake, logger.NewDevelopment("scheduler-test"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fake.approvals) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
