package pool

import "sync/atomic"

// Stats is a point-in-time snapshot of a Pool
type Stats struct {
	MaxSize  int `json:"max_size"`
	Reuse    int `json:"reuse"`
	Live     int `json:"live"`     // connections owned by the idle buffer or a caller
	Inflight int `json:"inflight"` // connections being created
	Idle     int `json:"idle"`     // connections sitting in the idle buffer

	Acquires       uint64 `json:"acquires"`        // calls to Acquire
	Reuses         uint64 `json:"reuses"`          // idle connections that passed the probe
	Creates        uint64 `json:"creates"`         // successful factory calls
	CreateErrors   uint64 `json:"create_errors"`   // failed factory calls
	StaleDiscards  uint64 `json:"stale_discards"`  // idle connections that failed the probe
	OverflowCloses uint64 `json:"overflow_closes"` // releases that found the idle buffer full
	ClosedReleases uint64 `json:"closed_releases"` // releases closed because the pool was closed
	Discards       uint64 `json:"discards"`        // connections discarded by callers
	Waits          uint64 `json:"waits"`           // waits at capacity
	WaitTimeouts   uint64 `json:"wait_timeouts"`   // waits that ended on WaitInterval
	Leaked         uint64 `json:"leaked"`          // handles reclaimed after being dropped
}

type counters struct {
	acquires       atomic.Uint64
	reuses         atomic.Uint64
	creates        atomic.Uint64
	createErrors   atomic.Uint64
	staleDiscards  atomic.Uint64
	overflowCloses atomic.Uint64
	closedReleases atomic.Uint64
	discards       atomic.Uint64
	waits          atomic.Uint64
	waitTimeouts   atomic.Uint64
	leaked         atomic.Uint64
}

// Stats returns current pool statistics
func (p *Pool[C]) Stats() Stats {
	live, inflight := p.reg.usage()
	return Stats{
		MaxSize:  p.config.MaxSize,
		Reuse:    p.config.Reuse,
		Live:     live,
		Inflight: inflight,
		Idle:     len(p.idle),

		Acquires:       p.stats.acquires.Load(),
		Reuses:         p.stats.reuses.Load(),
		Creates:        p.stats.creates.Load(),
		CreateErrors:   p.stats.createErrors.Load(),
		StaleDiscards:  p.stats.staleDiscards.Load(),
		OverflowCloses: p.stats.overflowCloses.Load(),
		ClosedReleases: p.stats.closedReleases.Load(),
		Discards:       p.stats.discards.Load(),
		Waits:          p.stats.waits.Load(),
		WaitTimeouts:   p.stats.waitTimeouts.Load(),
		Leaked:         p.stats.leaked.Load(),
	}
}
