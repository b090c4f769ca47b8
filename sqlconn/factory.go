// Package sqlconn adapts database/sql drivers to the pool. Connections are
// raw driver.Conn values opened through a driver.Connector, so the pool, not
// database/sql, owns their lifetime.
package sqlconn

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/guileen/pgpool/pool"
	"github.com/mattn/go-sqlite3"
)

// Supported driver names
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

const defaultDialTimeout = 10 * time.Second

// Factory opens driver connections through a connector
type Factory struct {
	connector driver.Connector
	driver    string
}

// NewFactory returns a factory backed by connector
func NewFactory(name string, connector driver.Connector) *Factory {
	return &Factory{connector: connector, driver: name}
}

// Open returns a factory for one of the supported drivers
func Open(driverName, dsn string) (*Factory, error) {
	switch driverName {
	case DriverMySQL:
		return NewMySQLFactory(dsn)
	case DriverSQLite:
		return NewSQLiteFactory(dsn)
	default:
		return nil, invalidConfig(fmt.Errorf("unsupported driver %q", driverName))
	}
}

// NewMySQLFactory parses a go-sql-driver DSN such as
// "user:password@tcp(127.0.0.1:3306)/app" and returns a factory for it.
func NewMySQLFactory(dsn string) (*Factory, error) {
	config, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, invalidConfig(fmt.Errorf("parse mysql dsn: %w", err))
	}
	if config.Timeout == 0 {
		config.Timeout = defaultDialTimeout
	}
	connector, err := mysql.NewConnector(config)
	if err != nil {
		return nil, invalidConfig(err)
	}
	return NewFactory(DriverMySQL, connector), nil
}

// NewSQLiteFactory returns a factory opening dsn with go-sqlite3. Every
// connection to ":memory:" is a separate database.
func NewSQLiteFactory(dsn string) (*Factory, error) {
	if dsn == "" {
		return nil, invalidConfig(fmt.Errorf("sqlite dsn is empty"))
	}
	return NewFactory(DriverSQLite, dsnConnector{dsn: dsn, driver: &sqlite3.SQLiteDriver{}}), nil
}

// Driver returns the driver name the factory was built for
func (f *Factory) Driver() string {
	return f.driver
}

// Create opens a new driver connection
func (f *Factory) Create(ctx context.Context) (*Conn, error) {
	raw, err := f.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return NewConn(raw), nil
}

// NewPool wires a pool over f with the default probe
func NewPool(f *Factory, config pool.Config, opts ...pool.Option) (*pool.Pool[*Conn], error) {
	if f == nil {
		return nil, invalidConfig(fmt.Errorf("factory is required"))
	}
	return pool.New[*Conn](f, Probe{}, config, opts...)
}

// dsnConnector adapts a driver without its own connector
type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.driver
}

func invalidConfig(err error) error {
	return &pool.PoolError{Op: "config", Err: fmt.Errorf("%w: %w", pool.ErrInvalidConfig, err)}
}
