package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Conn adapts a net.Conn to the pool's connection contract
type Conn struct {
	net.Conn
	closed atomic.Bool
}

// NewConn wraps c
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c}
}

// Close closes the socket. A second call is a no-op.
func (c *Conn) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.Conn.Close()
}

// IsClosed reports whether Close has been called
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// ReadProbe checks an idle socket by reading with a very short deadline.
// A timeout means the peer is quiet and the socket is healthy. EOF, a
// closed socket or unsolicited bytes mean the connection cannot be reused.
type ReadProbe struct {
	// Wait is the read deadline, 1ms when zero.
	Wait time.Duration
}

// Check implements pool.HealthProbe
func (p ReadProbe) Check(ctx context.Context, c *Conn) error {
	if c.IsClosed() {
		return NewNetworkError("probe", remoteAddr(c), net.ErrClosed)
	}

	wait := p.Wait
	if wait <= 0 {
		wait = time.Millisecond
	}
	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.SetReadDeadline(deadline); err != nil {
		return NewNetworkError("probe", remoteAddr(c), err)
	}
	var buf [1]byte
	n, err := c.Read(buf[:])
	// Reset deadline
	_ = c.SetReadDeadline(time.Time{})

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return NewNetworkError("probe", remoteAddr(c), err)
	}
	if n > 0 {
		return NewNetworkError("probe", remoteAddr(c), fmt.Errorf("unexpected %d byte(s) on idle connection", n))
	}
	return nil
}

func remoteAddr(c *Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
