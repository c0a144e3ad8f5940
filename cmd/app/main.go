package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pedalworks/trainsync/internal/bootstrap"
	"github.com/pedalworks/trainsync/internal/config"
	"github.com/pedalworks/trainsync/internal/database"
	"github.com/pedalworks/trainsync/internal/handler"
	"github.com/pedalworks/trainsync/internal/scheduler"
	"github.com/pedalworks/trainsync/internal/server"
	"github.com/pedalworks/trainsync/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// @title TrainSync API
// @version 1.0
// @description Credential lifecycle service for fitness platform integrations
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logFile, err := bootstrap.SetupLogger(cfg)
	if err != nil {
		slog.Error("Failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer logFile.Close()

	dbPool, err := database.NewPool(context.Background(), database.PoolConfig{
		ConnString:  cfg.GetDBConnString(),
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		MaxIdleTime: cfg.DBMaxIdleTime,
		MaxLifetime: cfg.DBMaxLifetime,
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	handler.InitValidator()

	repos := bootstrap.NewRepositories(dbPool)
	services, err := bootstrap.NewServices(cfg, repos)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	// Background maintenance: a small pool is plenty, the sweep itself is
	// sequential
	pool := worker.NewPool(2, 10)
	pool.Start()

	sched := scheduler.New(pool)
	sched.Schedule(cfg.MaintenanceInterval, worker.NewMaintenanceWorker(services.Maintenance))
	slog.Info("Maintenance sweep scheduled", "interval", cfg.MaintenanceInterval)

	srv := server.NewServer(server.Config{
		Port:               cfg.Port,
		APIKey:             cfg.APIKey,
		TrustedProxies:     cfg.TrustedProxies,
		RateLimitPerWindow: cfg.RateLimitPerWindow,
		RateLimitWindow:    cfg.RateLimitWindow,
	}, dbPool, services.Integration, services.Webhook, services.Maintenance, services.Limiter)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		slog.Error("Server failed", "error", err)
	case sig := <-quit:
		slog.Info("Shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	bootstrap.GracefulShutdown(ctx, bootstrap.ShutdownComponents{
		Server:     srv,
		Scheduler:  sched,
		WorkerPool: pool,
		DBPool:     dbPool,
	})
}
