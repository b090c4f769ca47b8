// Package network provides pool collaborators for raw stream sockets: TCP
// and Unix socket factories, and a read-deadline health probe.
package network

import (
	"context"
	"net"
	"time"

	"github.com/guileen/pgpool/pool"
)

const defaultDialTimeout = 30 * time.Second

// DialFactory creates connections by dialing a fixed network address
type DialFactory struct {
	network string
	address string
	timeout time.Duration
	dialer  net.Dialer
}

// NewTCPFactory creates a new TCP connection factory
func NewTCPFactory(address string, timeout time.Duration) *DialFactory {
	return newDialFactory("tcp", address, timeout)
}

// NewUnixFactory creates a new Unix socket connection factory
func NewUnixFactory(socketPath string, timeout time.Duration) *DialFactory {
	return newDialFactory("unix", socketPath, timeout)
}

func newDialFactory(network, address string, timeout time.Duration) *DialFactory {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &DialFactory{
		network: network,
		address: address,
		timeout: timeout,
	}
}

// Create dials a new connection, honoring the context deadline when it is
// earlier than the factory timeout.
func (f *DialFactory) Create(ctx context.Context) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	conn, err := f.dialer.DialContext(ctx, f.network, f.address)
	if err != nil {
		return nil, NewNetworkError("dial", f.address, WrapError(err, "failed to dial %s %s", f.network, f.address))
	}
	return NewConn(conn), nil
}

// Address returns the dialed address
func (f *DialFactory) Address() string {
	return f.address
}

// NewTCPPool wires a pool of TCP connections to address
func NewTCPPool(address string, timeout time.Duration, config pool.Config, opts ...pool.Option) (*pool.Pool[*Conn], error) {
	return pool.New[*Conn](NewTCPFactory(address, timeout), ReadProbe{}, config, opts...)
}

// NewUnixPool wires a pool of Unix socket connections to socketPath
func NewUnixPool(socketPath string, timeout time.Duration, config pool.Config, opts ...pool.Option) (*pool.Pool[*Conn], error) {
	return pool.New[*Conn](NewUnixFactory(socketPath, timeout), ReadProbe{}, config, opts...)
}
