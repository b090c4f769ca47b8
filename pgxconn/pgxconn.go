// Package pgxconn supplies the pool collaborators for PostgreSQL: a factory
// that opens *pgx.Conn handshakes from a fixed DSN and a SELECT 1 health
// probe.
package pgxconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/guileen/pgpool/pool"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// DefaultProbeQuery is the round trip the probe issues
const DefaultProbeQuery = "SELECT 1"

var errConnClosed = errors.New("pgx connection is closed")

// AfterConnectFunc runs on every new connection before the pool hands it out
type AfterConnectFunc func(ctx context.Context, conn *pgx.Conn) error

// FactoryOption customizes a Factory
type FactoryOption func(*Factory)

// WithAfterConnect installs a hook run on every new connection. A failing
// hook closes the connection and fails the creation.
func WithAfterConnect(fn AfterConnectFunc) FactoryOption {
	return func(f *Factory) {
		f.afterConnect = fn
	}
}

// WithRawJSONB controls whether jsonb values scanned into an interface come
// back as their raw JSON text. It is on by default; when off, pgx decodes
// them into maps and slices.
func WithRawJSONB(enabled bool) FactoryOption {
	return func(f *Factory) {
		f.rawJSONB = enabled
	}
}

// WithRuntimeParam sets a server run-time parameter sent in the startup
// message of every connection.
func WithRuntimeParam(key, value string) FactoryOption {
	return func(f *Factory) {
		f.config.RuntimeParams[key] = value
	}
}

// Factory opens PostgreSQL connections from a parsed configuration. The
// configuration is parsed once and copied for every connection.
type Factory struct {
	config       *pgx.ConnConfig
	afterConnect AfterConnectFunc
	rawJSONB     bool
}

// NewFactory parses dsn and returns a factory for it. Every connection uses
// client_encoding UTF8 unless overridden with WithRuntimeParam.
func NewFactory(dsn string, opts ...FactoryOption) (*Factory, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, &pool.PoolError{
			Op:  "config",
			Err: fmt.Errorf("%w: parse postgres dsn: %w", pool.ErrInvalidConfig, err),
		}
	}
	if config.RuntimeParams == nil {
		config.RuntimeParams = make(map[string]string)
	}
	config.RuntimeParams["client_encoding"] = "UTF8"

	f := &Factory{config: config, rawJSONB: true}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Create opens a new connection
func (f *Factory) Create(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.ConnectConfig(ctx, f.config.Copy())
	if err != nil {
		return nil, err
	}
	if f.rawJSONB {
		registerRawJSONB(conn.TypeMap())
	}
	if f.afterConnect != nil {
		if err := f.afterConnect(ctx, conn); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("after connect: %w", err)
		}
	}
	return conn, nil
}

// registerRawJSONB replaces the jsonb codec of m with one that leaves the
// document undecoded when the destination is an interface.
func registerRawJSONB(m *pgtype.Map) {
	m.RegisterType(&pgtype.Type{
		Name: "jsonb",
		OID:  pgtype.JSONBOID,
		Codec: &pgtype.JSONBCodec{
			Marshal:   json.Marshal,
			Unmarshal: unmarshalRawJSON,
		},
	})
}

func unmarshalRawJSON(data []byte, v any) error {
	if dst, ok := v.(*any); ok {
		*dst = string(data)
		return nil
	}
	return json.Unmarshal(data, v)
}

// Config returns a copy of the connection configuration
func (f *Factory) Config() *pgx.ConnConfig {
	return f.config.Copy()
}

// Probe verifies a connection with a trivial query
type Probe struct {
	// Query defaults to DefaultProbeQuery.
	Query string
}

// Check implements pool.HealthProbe
func (p Probe) Check(ctx context.Context, conn *pgx.Conn) error {
	if conn.IsClosed() {
		return errConnClosed
	}
	query := p.Query
	if query == "" {
		query = DefaultProbeQuery
	}
	_, err := conn.Exec(ctx, query)
	return err
}

// NewPool wires a pool of PostgreSQL connections to dsn
func NewPool(dsn string, config pool.Config, opts ...pool.Option) (*pool.Pool[*pgx.Conn], error) {
	factory, err := NewFactory(dsn)
	if err != nil {
		return nil, err
	}
	return pool.New[*pgx.Conn](factory, Probe{}, config, opts...)
}
