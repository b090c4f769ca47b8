package sqlconn

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
)

var errNotSupported = errors.New("driver connection does not support this operation")

// Conn is a single driver connection checked out of a pool. It is not safe
// for concurrent use; the pool hands it to one goroutine at a time.
type Conn struct {
	raw    driver.Conn
	closed atomic.Bool
}

// NewConn wraps a raw driver connection
func NewConn(raw driver.Conn) *Conn {
	return &Conn{raw: raw}
}

// Raw returns the underlying driver connection
func (c *Conn) Raw() driver.Conn {
	return c.raw
}

// Close closes the driver connection. Closing twice is a no-op.
func (c *Conn) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.raw.Close()
}

// IsClosed reports whether Close was called
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Exec runs a statement that returns no rows
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (driver.Result, error) {
	execer, ok := c.raw.(driver.ExecerContext)
	if !ok {
		return nil, fmt.Errorf("exec: %w", errNotSupported)
	}
	return execer.ExecContext(ctx, query, namedValues(args))
}

// Query runs a statement and returns its rows. The caller closes the rows
// before releasing the connection.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	queryer, ok := c.raw.(driver.QueryerContext)
	if !ok {
		return nil, fmt.Errorf("query: %w", errNotSupported)
	}
	return queryer.QueryContext(ctx, query, namedValues(args))
}

func namedValues(args []any) []driver.NamedValue {
	if len(args) == 0 {
		return nil
	}
	named := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return named
}
