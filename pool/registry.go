package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// registry is the capacity bookkeeping of a Pool. Every method is a single
// critical section under mu, so a capacity check and the counter update it
// guards are never separated.
//
// live holds ids, never handles: a handle dropped by its caller stays
// collectable and its cleanup can call forget.
type registry struct {
	mu       sync.Mutex
	max      int
	live     map[uuid.UUID]time.Time
	inflight int
	closed   bool
	// changed is closed, then replaced, whenever len(live)+inflight drops
	// or the pool closes.
	changed chan struct{}
}

func newRegistry(max int) *registry {
	return &registry{
		max:     max,
		live:    make(map[uuid.UUID]time.Time, max),
		changed: make(chan struct{}),
	}
}

// reserve claims a creation slot when live+inflight is below max. At
// capacity it returns instead the channel that fires on the next drop.
func (r *registry) reserve() (wait <-chan struct{}, used int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, 0, ErrPoolClosed
	}
	used = len(r.live) + r.inflight
	if used < r.max {
		r.inflight++
		return nil, used + 1, nil
	}
	return r.changed, used, nil
}

// settle ends a reservation: the slot becomes a live entry when the
// factory succeeded and is handed back otherwise.
func (r *registry) settle(id uuid.UUID, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inflight--
	if created {
		r.live[id] = time.Now()
		return
	}
	r.notifyLocked()
}

// forget removes a live entry. It reports false if id was not live.
func (r *registry) forget(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[id]; !ok {
		return false
	}
	delete(r.live, id)
	r.notifyLocked()
	return true
}

func (r *registry) contains(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.live[id]
	return ok
}

// shutdown marks the registry closed. Only the first call reports true.
func (r *registry) shutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.closed = true
	r.notifyLocked()
	return true
}

func (r *registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *registry) usage() (live, inflight int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live), r.inflight
}

func (r *registry) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
