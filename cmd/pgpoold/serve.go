package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guileen/pgpool/internal/api"
	"github.com/guileen/pgpool/internal/config"
	"github.com/guileen/pgpool/logger"
)

const shutdownTimeout = 10 * time.Second

func serveMain() {
	cmd := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := cmd.String("config", "", "Path to a YAML or TOML config file")
	cmd.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetDefault(logger.NewLogger(cfg.LoggerConfig()))

	p, err := openPool(cfg)
	if err != nil {
		logger.Error("Failed to create connection pool", logger.ErrorField(err), "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	logger.Info("Connection pool created",
		"driver", cfg.Database.Driver,
		"max_conns", cfg.Pool.MaxConns,
		"reuse_conns", cfg.Pool.ReuseConns)

	handler := api.NewHandler(p, time.Duration(cfg.Pool.ProbeTimeout))
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "listen", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", logger.ErrorField(err), "listen", cfg.Listen)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownStart := time.Now()
	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", logger.ErrorField(err))
	}
	if err := p.Close(); err != nil {
		logger.Error("Connection pool close failed", logger.ErrorField(err))
	}
	logger.Info("Shutdown complete", logger.Duration("shutdown_duration", time.Since(shutdownStart)))
}
