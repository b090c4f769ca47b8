package pool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var errServerGone = errors.New("server closed the connection unexpectedly")

type fakeConn struct {
	n        int
	closed   atomic.Bool
	stale    atomic.Bool
	inUse    atomic.Bool
	closeErr error
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed.Store(true)
	return c.closeErr
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeConn
	// next, when set, decides the outcome of each call
	next     func(call int) error
	calls    int
	closeErr error
	onCreate func()
}

func (f *fakeFactory) Create(ctx context.Context) (*fakeConn, error) {
	f.mu.Lock()
	f.calls++
	call, next, onCreate := f.calls, f.next, f.onCreate
	f.mu.Unlock()

	if onCreate != nil {
		onCreate()
	}
	if next != nil {
		if err := next(call); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{n: len(f.created), closeErr: f.closeErr}
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) conn(i int) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[i]
}

var staleProbe = ProbeFunc[*fakeConn](func(ctx context.Context, c *fakeConn) error {
	if c.stale.Load() {
		return errServerGone
	}
	return nil
})

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T, f *fakeFactory, config Config) *Pool[*fakeConn] {
	t.Helper()
	p, err := New[*fakeConn](f, staleProbe, config, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNew(t *testing.T) {
	f := &fakeFactory{}

	t.Run("Defaults", func(t *testing.T) {
		p, err := New[*fakeConn](f, nil, Config{MaxSize: 3}, WithLogger(quietLogger()), WithName("primary"))
		require.NoError(t, err)
		stats := p.Stats()
		assert.Equal(t, 3, stats.MaxSize)
		assert.Equal(t, 3, stats.Reuse)
		assert.Equal(t, DefaultWaitInterval, p.config.WaitInterval)
		assert.Equal(t, DefaultProbeTimeout, p.config.ProbeTimeout)
		assert.Equal(t, 3, cap(p.idle))
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		for name, config := range map[string]Config{
			"ZeroMaxSize":      {MaxSize: 0},
			"NegativeMaxSize":  {MaxSize: -1},
			"NegativeReuse":    {MaxSize: 2, Reuse: -1},
			"NegativeWait":     {MaxSize: 2, WaitInterval: -time.Second},
			"NegativeProbeTTL": {MaxSize: 2, ProbeTimeout: -time.Second},
		} {
			t.Run(name, func(t *testing.T) {
				_, err := New[*fakeConn](f, nil, config)
				require.Error(t, err)
				assert.True(t, IsPoolError(err))
				assert.ErrorIs(t, err, ErrInvalidConfig)
			})
		}
	})

	t.Run("NilFactory", func(t *testing.T) {
		_, err := New[*fakeConn](nil, nil, DefaultConfig())
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestPool_ReusesReleasedConnection(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 2, Reuse: 2})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count())
	assert.NotEqual(t, a.ID(), b.ID())

	p.Release(a)
	assert.False(t, a.IdleSince().IsZero())

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, a, c)
	assert.Same(t, a.Conn(), c.Conn())
	assert.Equal(t, 2, f.count(), "no third connection may be created")

	stats := p.Stats()
	assert.Equal(t, 2, stats.Live)
	assert.Equal(t, uint64(1), stats.Reuses)
	assert.Equal(t, uint64(2), stats.Creates)
}

func TestPool_DiscardsStaleIdleConnection(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 2})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	a.Release()
	a.Conn().stale.Store(true)

	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.True(t, a.Conn().closed.Load())
	assert.False(t, p.Owns(a.ID()))
	assert.True(t, p.Owns(b.ID()))

	stats := p.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, uint64(1), stats.StaleDiscards)
}

type mockProbe struct {
	mock.Mock
}

func (m *mockProbe) Check(ctx context.Context, conn *fakeConn) error {
	args := m.Called(conn)
	return args.Error(0)
}

func TestPool_ProbesOnlyIdleConnections(t *testing.T) {
	f := &fakeFactory{}
	probe := &mockProbe{}
	p, err := New[*fakeConn](f, probe, Config{MaxSize: 1}, WithLogger(quietLogger()))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	probe.AssertNotCalled(t, "Check", mock.Anything)

	probe.On("Check", a.Conn()).Return(nil).Once()
	a.Release()
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, a, b)
	probe.AssertExpectations(t)
}

func TestPool_BlocksAtCapacityUntilRelease(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 1, WaitInterval: time.Minute})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *PooledConn[*fakeConn], 1)
	go func() {
		b, err := p.Acquire(ctx)
		assert.NoError(t, err)
		got <- b
	}()

	select {
	case <-got:
		t.Fatal("second acquire must block while the only connection is checked out")
	case <-time.After(100 * time.Millisecond):
	}

	p.Release(a)

	select {
	case b := <-got:
		assert.Same(t, a, b)
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire was not served after release")
	}
	assert.Equal(t, 1, f.count())
	assert.LessOrEqual(t, p.Stats().Live, 1)
	assert.GreaterOrEqual(t, p.Stats().Waits, uint64(1))
}

func TestPool_BlocksAtCapacityUntilDiscard(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 1, WaitInterval: time.Minute})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *PooledConn[*fakeConn], 1)
	go func() {
		b, err := p.Acquire(ctx)
		assert.NoError(t, err)
		got <- b
	}()

	time.Sleep(50 * time.Millisecond)
	a.Discard()
	assert.True(t, a.Conn().closed.Load())

	select {
	case b := <-got:
		assert.NotSame(t, a, b)
	case <-time.After(2 * time.Second):
		t.Fatal("discard did not wake the waiting acquire")
	}
	assert.Equal(t, 2, f.count())

	stats := p.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, uint64(1), stats.Discards)
}

func TestPool_OverflowOnRelease(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 3, Reuse: 1})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)

	p.Release(a)
	p.Release(b)

	assert.False(t, a.Conn().closed.Load())
	assert.True(t, b.Conn().closed.Load())

	stats := p.Stats()
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, uint64(1), stats.OverflowCloses)
	assert.False(t, p.Owns(b.ID()))
}

func TestPool_DrainAll(t *testing.T) {
	f := &fakeFactory{closeErr: errServerGone}
	p := newTestPool(t, f, Config{MaxSize: 4})
	ctx := context.Background()

	var conns []*PooledConn[*fakeConn]
	for i := 0; i < 4; i++ {
		pc, err := p.Acquire(ctx)
		require.NoError(t, err)
		conns = append(conns, pc)
	}
	for _, pc := range conns[:3] {
		p.Release(pc)
	}

	assert.Equal(t, 3, p.DrainAll(), "close errors must not stop the drain")
	assert.Equal(t, 0, p.DrainAll())

	for _, pc := range conns[:3] {
		assert.True(t, pc.Conn().closed.Load())
		assert.False(t, p.Owns(pc.ID()))
	}
	assert.False(t, conns[3].Conn().closed.Load(), "checked-out connections are left alone")

	stats := p.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 0, stats.Idle)

	p.Release(conns[3])
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestPool_CreateFailureUnwindsCapacity(t *testing.T) {
	driverErr := errors.New("connection refused")
	f := &fakeFactory{next: func(call int) error { return driverErr }}
	p := newTestPool(t, f, Config{MaxSize: 1})

	for i := 0; i < 3; i++ {
		_, err := p.Acquire(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCreate)
		assert.ErrorIs(t, err, driverErr)
		assert.True(t, IsPoolError(err))
	}

	stats := p.Stats()
	assert.Equal(t, 0, stats.Live)
	assert.Equal(t, 0, stats.Inflight)
	assert.Equal(t, uint64(3), stats.CreateErrors)
}

func TestPool_CreateFailureWakesWaiter(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	f := &fakeFactory{next: func(call int) error {
		if call == 1 {
			close(entered)
			<-gate
			return errors.New("handshake failed")
		}
		return nil
	}}
	p := newTestPool(t, f, Config{MaxSize: 1, WaitInterval: time.Minute})
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		first <- err
	}()
	<-entered
	assert.Equal(t, 1, p.Stats().Inflight)

	second := make(chan *PooledConn[*fakeConn], 1)
	go func() {
		pc, err := p.Acquire(ctx)
		assert.NoError(t, err)
		second <- pc
	}()

	require.Eventually(t, func() bool { return p.Stats().Waits > 0 }, time.Second, 5*time.Millisecond)
	close(gate)

	assert.ErrorIs(t, <-first, ErrCreate)
	select {
	case pc := <-second:
		require.NotNil(t, pc)
		assert.Equal(t, 1, p.Stats().Live)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by the failed creation")
	}
}

func TestPool_FactoryPanicUnwindsCapacity(t *testing.T) {
	f := &fakeFactory{onCreate: func() { panic("driver bug") }}
	p := newTestPool(t, f, Config{MaxSize: 1})

	assert.Panics(t, func() { _, _ = p.Acquire(context.Background()) })
	assert.Equal(t, 0, p.Stats().Inflight)
}

func TestPool_AcquireCancelledWhileWaiting(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 1, WaitInterval: time.Minute})

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 0, stats.Inflight)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err = p.Acquire(cancelled)
	assert.ErrorIs(t, err, context.Canceled)

	p.Release(a)
}

func TestPool_RecheckFindsLostCapacity(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 1, WaitInterval: 20 * time.Millisecond})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *PooledConn[*fakeConn], 1)
	go func() {
		b, err := p.Acquire(ctx)
		assert.NoError(t, err)
		got <- b
	}()
	require.Eventually(t, func() bool { return p.Stats().Waits > 0 }, time.Second, 5*time.Millisecond)

	// Lose the connection without any notification reaching the waiter.
	p.reg.mu.Lock()
	delete(p.reg.live, a.ID())
	p.reg.mu.Unlock()

	select {
	case b := <-got:
		assert.NotSame(t, a, b)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never re-checked capacity")
	}
	assert.GreaterOrEqual(t, p.Stats().WaitTimeouts, uint64(1))
}

func TestPool_IgnoresInvalidReleases(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 2})
	other := newTestPool(t, &fakeFactory{}, Config{MaxSize: 1})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)

	p.Release(a)
	p.Release(a)
	p.Discard(a)
	assert.Equal(t, 1, p.Stats().Idle)
	assert.False(t, a.Conn().closed.Load())

	p.Release(nil)
	foreign, err := other.Acquire(ctx)
	require.NoError(t, err)
	p.Release(foreign)
	assert.Equal(t, 1, p.Stats().Idle)
	assert.Equal(t, 1, other.Stats().Live)

	a2, err := p.Acquire(ctx)
	require.NoError(t, err)
	a2.Discard()
	a2.Release()
	assert.Equal(t, 0, p.Stats().Idle)
	assert.Equal(t, 0, p.Stats().Live)
}

func TestPool_Close(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 2, WaitInterval: time.Minute})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(a)

	waiter := make(chan error, 1)
	go func() {
		// Drains a, then waits at capacity for b.
		pc, err := p.Acquire(ctx)
		if err == nil {
			pc, err = p.Acquire(ctx)
		}
		_ = pc
		waiter <- err
	}()
	require.Eventually(t, func() bool { return p.Stats().Waits > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	select {
	case err := <-waiter:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not wake the waiter")
	}

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Release(b)
	assert.True(t, b.Conn().closed.Load())
	stats := p.Stats()
	assert.Equal(t, 0, stats.Idle)
	assert.Equal(t, uint64(1), stats.ClosedReleases)
	assert.Zero(t, stats.OverflowCloses)
}

func TestPool_ReclaimsLeakedHandle(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 1, WaitInterval: 20 * time.Millisecond})

	leak := func() {
		_, err := p.Acquire(context.Background())
		require.NoError(t, err)
	}
	leak()
	require.Equal(t, 1, p.Stats().Live)

	require.Eventually(t, func() bool {
		runtime.GC()
		return p.Stats().Live == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(1), p.Stats().Leaked)
	require.Eventually(t, func() bool { return f.conn(0).closed.Load() }, time.Second, 5*time.Millisecond)

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(pc)
}

func TestPool_ConcurrentCallersNeverExceedMaxSize(t *testing.T) {
	const (
		maxSize = 3
		workers = 24
		rounds  = 40
	)

	var p *Pool[*fakeConn]
	var overshoot atomic.Int64
	f := &fakeFactory{onCreate: func() {
		stats := p.Stats()
		if stats.Live+stats.Inflight > maxSize {
			overshoot.Add(1)
		}
	}}
	p = newTestPool(t, f, Config{MaxSize: maxSize, Reuse: 2, WaitInterval: 10 * time.Millisecond})

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			ctx := context.Background()
			for i := 0; i < rounds; i++ {
				pc, err := p.Acquire(ctx)
				if err != nil {
					return err
				}
				if !pc.Conn().inUse.CompareAndSwap(false, true) {
					return errors.New("connection handed to two callers at once")
				}
				stats := p.Stats()
				if stats.Live+stats.Inflight > maxSize {
					overshoot.Add(1)
				}
				time.Sleep(time.Duration(i%3) * 100 * time.Microsecond)
				pc.Conn().inUse.Store(false)

				switch {
				case (w+i)%11 == 0:
					pc.Discard()
				case (w+i)%7 == 0:
					pc.Conn().stale.Store(true)
					pc.Release()
				default:
					pc.Release()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Zero(t, overshoot.Load())
	stats := p.Stats()
	assert.LessOrEqual(t, stats.Live, maxSize)
	assert.LessOrEqual(t, stats.Idle, 2)
	assert.Equal(t, 0, stats.Inflight)
	assert.Equal(t, uint64(workers*rounds), stats.Acquires)
}

func TestPool_Ping(t *testing.T) {
	f := &fakeFactory{}
	p := newTestPool(t, f, Config{MaxSize: 1, Reuse: 1})
	ctx := context.Background()

	require.NoError(t, p.Ping(ctx))
	require.NoError(t, p.Ping(ctx))
	assert.Equal(t, 1, f.count())
	assert.Equal(t, 1, p.Stats().Idle)

	f.conn(0).stale.Store(true)
	f.mu.Lock()
	f.next = func(int) error { return errServerGone }
	f.mu.Unlock()
	err := p.Ping(ctx)
	assert.ErrorIs(t, err, ErrCreate)
	assert.ErrorIs(t, err, errServerGone)
}
