// Package pool provides a bounded pool of database connections shared by
// concurrent goroutines. It caps live connections at a hard limit, keeps a
// smaller cache of idle ones, and probes every idle connection before handing
// it out so that connections closed by the server are discarded rather than
// reused.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/guileen/pgpool/logger"
)

// Option customizes a Pool
type Option func(*options)

type options struct {
	log  *slog.Logger
	name string
}

// WithLogger sets the logger the pool reports through
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithName tags every log line of the pool with name
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Pool manages a bounded set of connections of type C.
//
// Atomicity: capacity bookkeeping lives in registry and each of its methods
// is one critical section. The idle buffer is a channel and is pushed and
// popped without holding the registry lock. The checkout state of each
// handle is an atomic CAS.
type Pool[C Conn] struct {
	config  Config
	factory Factory[C]
	probe   HealthProbe[C]
	log     *slog.Logger

	idle  chan *PooledConn[C]
	reg   *registry
	stats counters
}

// New creates a connection pool. A nil probe treats every idle connection
// as usable.
func New[C Conn](factory Factory[C], probe HealthProbe[C], config Config, opts ...Option) (*Pool[C], error) {
	if factory == nil {
		return nil, configError("factory is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.With(logger.Component("pool"))
	}
	if o.name != "" {
		o.log = o.log.With(logger.PoolName(o.name))
	}

	return &Pool[C]{
		config:  config,
		factory: factory,
		probe:   probe,
		log:     o.log,
		idle:    make(chan *PooledConn[C], config.Reuse),
		reg:     newRegistry(config.MaxSize),
	}, nil
}

// Acquire returns a usable connection: an idle one that just passed the
// health probe, or a freshly created one. At capacity it waits for a
// release, re-checking capacity at least every WaitInterval. Only factory
// failures, cancellation of ctx and a closed pool are returned as errors.
func (p *Pool[C]) Acquire(ctx context.Context) (*PooledConn[C], error) {
	p.stats.acquires.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &PoolError{Op: "acquire", Err: err}
	}
	if p.reg.isClosed() {
		return nil, &PoolError{Op: "acquire", Err: ErrPoolClosed}
	}

	if pc := p.takeIdle(ctx); pc != nil {
		return pc, nil
	}

	// Wait for a usable connection while at capacity. Connections can be
	// lost without ever being released, so capacity is re-read after every
	// wake-up and a free slot falls through to creation.
	for {
		wait, used, err := p.reg.reserve()
		if err != nil {
			return nil, &PoolError{Op: "acquire", Err: err}
		}
		if wait == nil {
			break
		}

		p.log.Warn(fmt.Sprintf("%d out of %d database connections used", used, p.config.MaxSize))
		p.stats.waits.Add(1)

		timer := time.NewTimer(p.config.WaitInterval)
		select {
		case pc := <-p.idle:
			timer.Stop()
			if p.checkout(ctx, pc) {
				return pc, nil
			}
		case <-wait:
			timer.Stop()
		case <-timer.C:
			p.stats.waitTimeouts.Add(1)
		case <-ctx.Done():
			timer.Stop()
			return nil, &PoolError{Op: "acquire", Err: ctx.Err()}
		}
	}

	return p.create(ctx)
}

// takeIdle pops idle connections without blocking until one passes the probe
func (p *Pool[C]) takeIdle(ctx context.Context) *PooledConn[C] {
	for {
		select {
		case pc := <-p.idle:
			if p.checkout(ctx, pc) {
				return pc
			}
		default:
			return nil
		}
	}
}

// create runs the factory in a slot already reserved by the caller. The
// slot is settled on every exit path, panics included.
func (p *Pool[C]) create(ctx context.Context) (*PooledConn[C], error) {
	id := uuid.New()
	created := false
	defer func() {
		p.reg.settle(id, created)
	}()

	p.log.Debug("Creating a new DB connection", logger.ConnID(id))
	conn, err := p.factory.Create(ctx)
	if err != nil {
		p.stats.createErrors.Add(1)
		p.log.Warn("Failed to create DB connection", logger.ConnID(id), logger.ErrorField(err))
		return nil, createError(err)
	}

	pc := &PooledConn[C]{
		id:        id,
		conn:      conn,
		pool:      p,
		createdAt: time.Now(),
	}
	pc.state.Store(stateCheckedOut)
	pc.cleanup = runtime.AddCleanup(pc, p.reclaim, leaked[C]{id: id, conn: conn})

	created = true
	p.stats.creates.Add(1)
	return pc, nil
}

// checkout claims a connection popped from the idle buffer. It reports
// false, after discarding the connection, when the probe fails.
func (p *Pool[C]) checkout(ctx context.Context, pc *PooledConn[C]) bool {
	if !pc.state.CompareAndSwap(stateIdle, stateCheckedOut) {
		return false
	}
	if err := p.check(ctx, pc); err != nil {
		p.stats.staleDiscards.Add(1)
		p.log.Debug("DB connection was closed", logger.ConnID(pc.id), logger.ErrorField(err))
		p.destroy(pc)
		return false
	}
	p.stats.reuses.Add(1)
	p.log.Debug("DB connection reused", logger.ConnID(pc.id))
	return true
}

// check runs the health probe. It is detached from cancellation of ctx so
// that a caller giving up mid-probe does not make a healthy connection
// look stale.
func (p *Pool[C]) check(ctx context.Context, pc *PooledConn[C]) error {
	if p.probe == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.ProbeTimeout)
	defer cancel()

	if err := p.probe.Check(ctx, pc.conn); err != nil {
		return staleError(pc.id, err)
	}
	return nil
}

// Release returns a checked-out connection to the idle buffer. When the
// buffer is full, or the pool is closed, the connection is closed instead.
// Release never waits on other callers.
func (p *Pool[C]) Release(pc *PooledConn[C]) {
	if !p.owns(pc, "release") {
		return
	}
	if !pc.state.CompareAndSwap(stateCheckedOut, stateIdle) {
		p.log.Warn("Ignoring release of a connection that is not checked out", logger.ConnID(pc.id))
		return
	}
	pc.releasedAt.Store(time.Now().UnixNano())

	if p.reg.isClosed() {
		p.stats.closedReleases.Add(1)
		p.destroy(pc)
		return
	}

	select {
	case p.idle <- pc:
		p.log.Debug("DB connection returned to the pool", logger.ConnID(pc.id))
		// Close may have drained the buffer between the check and the push.
		if p.reg.isClosed() {
			p.DrainAll()
		}
	default:
		p.stats.overflowCloses.Add(1)
		p.destroy(pc)
	}
}

// Discard closes a checked-out connection the caller found broken and frees
// its slot for a waiter.
func (p *Pool[C]) Discard(pc *PooledConn[C]) {
	if !p.owns(pc, "discard") {
		return
	}
	if !pc.state.CompareAndSwap(stateCheckedOut, stateClosed) {
		p.log.Warn("Ignoring discard of a connection that is not checked out", logger.ConnID(pc.id))
		return
	}
	p.stats.discards.Add(1)
	p.destroy(pc)
}

// DrainAll closes every idle connection and returns how many it closed.
// Checked-out connections are left to their holders.
func (p *Pool[C]) DrainAll() int {
	drained := 0
	for {
		select {
		case pc := <-p.idle:
			p.destroy(pc)
			drained++
		default:
			p.log.Debug("DB connections all closed", slog.Int("drained", drained))
			return drained
		}
	}
}

// Close stops the pool from handing out connections and drains the idle
// buffer. Connections still checked out are closed on release.
func (p *Pool[C]) Close() error {
	if !p.reg.shutdown() {
		return nil
	}
	p.DrainAll()
	return nil
}

// Ping acquires a connection and releases it straight away. It fails when
// no usable connection can be obtained before ctx is done.
func (p *Pool[C]) Ping(ctx context.Context) error {
	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	p.Release(pc)
	return nil
}

// Owns reports whether the connection with id is currently live in this pool
func (p *Pool[C]) Owns(id uuid.UUID) bool {
	return p.reg.contains(id)
}

func (p *Pool[C]) owns(pc *PooledConn[C], op string) bool {
	if pc == nil {
		p.log.Warn("Ignoring nil connection", logger.Operation(op))
		return false
	}
	if pc.pool != p {
		p.log.Warn("Ignoring connection from another pool", logger.Operation(op), logger.ConnID(pc.id))
		return false
	}
	return true
}

// destroy closes a connection and removes it from the live set. Close
// errors are logged and swallowed.
func (p *Pool[C]) destroy(pc *PooledConn[C]) {
	pc.state.Store(stateClosed)
	pc.cleanup.Stop()
	p.closeConn(pc.id, pc.conn)
	p.reg.forget(pc.id)
}

func (p *Pool[C]) closeConn(id uuid.UUID, conn C) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ProbeTimeout)
	defer cancel()

	if err := conn.Close(ctx); err != nil {
		p.log.Debug("Failed to close DB connection", logger.ConnID(id), logger.ErrorField(err))
	}
}

// reclaim runs after a checked-out handle became unreachable without being
// released or discarded.
func (p *Pool[C]) reclaim(l leaked[C]) {
	if !p.reg.forget(l.id) {
		return
	}
	p.stats.leaked.Add(1)
	p.log.Warn("Reclaiming DB connection dropped without release", logger.ConnID(l.id))
	go p.closeConn(l.id, l.conn)
}
