package pool

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conn is the raw connection contract. *pgx.Conn satisfies it as is.
type Conn interface {
	Close(ctx context.Context) error
}

// Factory creates new live connections
type Factory[C Conn] interface {
	Create(ctx context.Context) (C, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc[C Conn] func(ctx context.Context) (C, error)

func (f FactoryFunc[C]) Create(ctx context.Context) (C, error) {
	return f(ctx)
}

// HealthProbe cheaply verifies a connection still round-trips. Any error
// means "not usable".
type HealthProbe[C Conn] interface {
	Check(ctx context.Context, conn C) error
}

// ProbeFunc adapts a function to HealthProbe
type ProbeFunc[C Conn] func(ctx context.Context, conn C) error

func (f ProbeFunc[C]) Check(ctx context.Context, conn C) error {
	return f(ctx, conn)
}

const (
	stateCheckedOut int32 = iota
	stateIdle
	stateClosed
)

// PooledConn is the handle Acquire hands out. It is owned by the caller
// until Release or Discard.
type PooledConn[C Conn] struct {
	id        uuid.UUID
	conn      C
	pool      *Pool[C]
	createdAt time.Time
	// releasedAt is unix nanoseconds of the last Release.
	releasedAt atomic.Int64
	state      atomic.Int32
	cleanup    runtime.Cleanup
}

// ID returns the stable identity the pool tracks this connection by
func (pc *PooledConn[C]) ID() uuid.UUID {
	return pc.id
}

// Conn returns the underlying connection
func (pc *PooledConn[C]) Conn() C {
	return pc.conn
}

// CreatedAt returns when the factory produced the connection
func (pc *PooledConn[C]) CreatedAt() time.Time {
	return pc.createdAt
}

// IdleSince returns when the connection was last released, or the zero
// time if it never was.
func (pc *PooledConn[C]) IdleSince() time.Time {
	ns := pc.releasedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Release returns the connection to its pool
func (pc *PooledConn[C]) Release() {
	pc.pool.Release(pc)
}

// Discard closes the connection and frees its slot in the pool
func (pc *PooledConn[C]) Discard() {
	pc.pool.Discard(pc)
}

// leaked is what a cleanup needs to reclaim a dropped handle. It must not
// reference the handle itself.
type leaked[C Conn] struct {
	id   uuid.UUID
	conn C
}
