package main

import (
	"fmt"

	"github.com/guileen/pgpool/internal/api"
	"github.com/guileen/pgpool/internal/config"
	"github.com/guileen/pgpool/pgxconn"
	"github.com/guileen/pgpool/pool"
	"github.com/guileen/pgpool/sqlconn"
)

// managedPool is a pool of any connection type as the daemon sees it
type managedPool interface {
	api.PoolService
	Close() error
}

// openPool builds the pool for the configured driver
func openPool(cfg *config.Config) (managedPool, error) {
	poolConfig := cfg.PoolConfig()
	name := pool.WithName(cfg.Database.Driver)

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		p, err := pgxconn.NewPool(cfg.Database.DSN, poolConfig, name)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.DriverMySQL, config.DriverSQLite:
		f, err := sqlconn.Open(sqlDriverName(cfg.Database.Driver), cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		p, err := sqlconn.NewPool(f, poolConfig, name)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func sqlDriverName(driver string) string {
	if driver == config.DriverSQLite {
		return sqlconn.DriverSQLite
	}
	return sqlconn.DriverMySQL
}
