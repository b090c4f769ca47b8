package main

import (
	"context"
	"database/sql/driver"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/guileen/pgpool/internal/config"
	"github.com/guileen/pgpool/logger"
	"github.com/guileen/pgpool/network"
	"github.com/guileen/pgpool/pgxconn"
	"github.com/guileen/pgpool/pool"
	"github.com/guileen/pgpool/profiling"
	"github.com/guileen/pgpool/sqlconn"
	"golang.org/x/sync/errgroup"
)

// BenchStats tracks the outcome of a bench run
type BenchStats struct {
	Operations atomic.Uint64
	Errors     atomic.Uint64
	Discards   atomic.Uint64
	StartTime  time.Time
}

func (s *BenchStats) OpsPerSecond() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.Operations.Load()) / elapsed
}

type benchOptions struct {
	workers int
	rounds  int
	hold    time.Duration
}

func benchMain() {
	cmd := flag.NewFlagSet("bench", flag.ExitOnError)
	configPath := cmd.String("config", "", "Path to a YAML or TOML config file")
	tcpAddr := cmd.String("tcp", "", "Bench raw TCP connections to this address instead of a database")
	workers := cmd.Int("workers", 16, "Number of concurrent workers")
	rounds := cmd.Int("rounds", 100, "Acquire/release rounds per worker")
	hold := cmd.Duration("hold", time.Millisecond, "How long each worker holds a connection")
	profiles := cmd.String("profile", "", "Comma separated profiles to capture: cpu,heap,allocs,block,mutex,goroutine")
	profileDir := cmd.String("profile-dir", "./profiles", "Directory to store profiling data")
	logLevel := cmd.String("log-level", "", "Log level override: trace, debug, info, warn, error")
	cmd.Parse(os.Args[2:])

	if *logLevel != "" {
		if _, err := logger.ParseLevel(*logLevel); err != nil {
			log.Fatalf("Invalid -log-level: %v", err)
		}
	}

	profileTypes, err := profiling.ParseTypes(*profiles)
	if err != nil {
		log.Fatalf("Invalid -profile: %v", err)
	}
	prof := profiling.NewProfiler(*profileDir, "bench")
	if err := prof.Start(profileTypes...); err != nil {
		log.Fatalf("Failed to start profiling: %v", err)
	}

	opts := benchOptions{workers: *workers, rounds: *rounds, hold: *hold}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		stats *BenchStats
		ps    pool.Stats
	)
	if *tcpAddr != "" {
		if *logLevel != "" {
			level, _ := logger.ParseLevel(*logLevel)
			logger.SetLogLevel(level)
		}
		p, perr := network.NewTCPPool(*tcpAddr, 5*time.Second, mustPoolConfig())
		if perr != nil {
			log.Fatalf("Failed to create TCP pool: %v", perr)
		}
		defer p.Close()
		stats, err = runBench(ctx, p, func(context.Context, *network.Conn) error { return nil }, opts)
		ps = p.Stats()
	} else {
		cfg, cerr := config.Load(*configPath)
		if cerr != nil {
			log.Fatalf("Failed to load config: %v", cerr)
		}
		if *logLevel != "" {
			cfg.Logging.Level = *logLevel
		}
		logger.SetDefault(logger.NewLogger(cfg.LoggerConfig()))
		stats, ps, err = benchDatabase(ctx, cfg, opts)
	}
	files, perr := prof.Stop()
	if perr != nil {
		logger.Warn("Failed to write profiles", logger.ErrorField(perr))
	}
	for _, f := range files {
		logger.Info("Profile written", "file", f)
	}
	if benchFailed(ctx, err) || stats == nil {
		logger.Error("Bench failed", logger.ErrorField(err))
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("Bench interrupted", logger.ErrorField(err))
	}

	logger.Info("Bench completed",
		"workers", opts.workers,
		"operations", stats.Operations.Load(),
		"errors", stats.Errors.Load(),
		"discards", stats.Discards.Load(),
		"ops_per_second", stats.OpsPerSecond(),
		logger.Duration("elapsed", time.Since(stats.StartTime)),
		"creates", ps.Creates,
		"reuses", ps.Reuses,
		"waits", ps.Waits,
		"stale_discards", ps.StaleDiscards)
}

func mustPoolConfig() pool.Config {
	config, err := pool.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid pool config: %v", err)
	}
	return config
}

// benchDatabase runs the bench over the configured driver, using each
// driver's probe query as the unit of work.
func benchDatabase(ctx context.Context, cfg *config.Config, opts benchOptions) (*BenchStats, pool.Stats, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		p, err := pgxconn.NewPool(cfg.Database.DSN, cfg.PoolConfig())
		if err != nil {
			return nil, pool.Stats{}, err
		}
		defer p.Close()
		probe := pgxconn.Probe{}
		stats, err := runBench(ctx, p, probe.Check, opts)
		return stats, p.Stats(), err
	default:
		f, err := sqlconn.Open(sqlDriverName(cfg.Database.Driver), cfg.Database.DSN)
		if err != nil {
			return nil, pool.Stats{}, err
		}
		p, err := sqlconn.NewPool(f, cfg.PoolConfig())
		if err != nil {
			return nil, pool.Stats{}, err
		}
		defer p.Close()
		probe := sqlconn.Probe{}
		stats, err := runBench(ctx, p, probe.Check, opts)
		return stats, p.Stats(), err
	}
}

// benchFailed reports whether err ends the bench as a failure. A run cut
// short by a shutdown signal still reports its results.
func benchFailed(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() == nil || !network.IsTimeoutError(err)
}

// isBrokenConn reports whether err means the connection must not be reused
func isBrokenConn(err error) bool {
	return network.IsConnectionError(err) || errors.Is(err, driver.ErrBadConn)
}

// runBench has opts.workers goroutines acquire a connection, run use on it,
// hold it for opts.hold and hand it back. Connections failing with a
// connection-level error are discarded, others are released. Creation
// failures are counted and the worker carries on.
func runBench[C pool.Conn](ctx context.Context, p *pool.Pool[C], use func(context.Context, C) error, opts benchOptions) (*BenchStats, error) {
	stats := &BenchStats{StartTime: time.Now()}
	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < opts.workers; w++ {
		g.Go(func() error {
			for i := 0; i < opts.rounds; i++ {
				pc, err := p.Acquire(ctx)
				if err != nil {
					if errors.Is(err, pool.ErrCreate) {
						stats.Errors.Add(1)
						continue
					}
					return err
				}

				err = use(ctx, pc.Conn())
				if opts.hold > 0 {
					time.Sleep(opts.hold)
				}
				if err != nil {
					stats.Errors.Add(1)
					if isBrokenConn(err) {
						stats.Discards.Add(1)
						pc.Discard()
						continue
					}
				}
				pc.Release()
				stats.Operations.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	return stats, err
}
