package sqlconn

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
)

// Probe checks a driver connection before reuse. It prefers the driver's
// own Ping and falls back to running Query.
type Probe struct {
	// Query defaults to "SELECT 1".
	Query string
}

// Check implements pool.HealthProbe
func (p Probe) Check(ctx context.Context, c *Conn) error {
	if c.IsClosed() {
		return driver.ErrBadConn
	}
	if v, ok := c.raw.(driver.Validator); ok && !v.IsValid() {
		return driver.ErrBadConn
	}
	if pinger, ok := c.raw.(driver.Pinger); ok && p.Query == "" {
		return pinger.Ping(ctx)
	}
	queryer, ok := c.raw.(driver.QueryerContext)
	if !ok {
		return nil
	}

	query := p.Query
	if query == "" {
		query = "SELECT 1"
	}
	rows, err := queryer.QueryContext(ctx, query, nil)
	if err != nil {
		return err
	}
	dest := make([]driver.Value, len(rows.Columns()))
	if err := rows.Next(dest); err != nil && !errors.Is(err, io.EOF) {
		rows.Close()
		return err
	}
	return rows.Close()
}
