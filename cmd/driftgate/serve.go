package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/driftstack/driftgate/internal/api"
	"github.com/driftstack/driftgate/internal/config"
	"github.com/driftstack/driftgate/internal/metrics"
	"github.com/driftstack/driftgate/internal/registry"
	"github.com/driftstack/driftgate/internal/services"
	"github.com/driftstack/driftgate/internal/store"
	"github.com/driftstack/driftgate/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the driftgate API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	logger.Info("starting driftgate", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	snapshots, err := store.New(store.Config{
		Path:           cfg.Store.Path,
		InMemory:       cfg.Store.InMemory,
		SyncWrites:     cfg.Store.SyncWrites,
		GCInterval:     cfg.Store.GCInterval,
		GCDiscardRatio: cfg.Store.GCDiscardRatio,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer snapshots.Close()

	reg, err := registry.New(cfg.Schemas.Dir, logger)
	if err != nil {
		return fmt.Errorf("load schema registry: %w", err)
	}
	logger.Info("schema registry loaded", slog.String("dir", cfg.Schemas.Dir), slog.Int("datasets", reg.Len()))

	svc := services.NewValidationService(logger, reg, snapshots, services.Mode(cfg.Validation.DefaultMode))

	server, err := api.NewServer(cfg.Server, svc, logger)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api server listening", slog.String("address", server.Address()))
		return server.Start()
	})

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if cfg.Schemas.Watch {
		g.Go(func() error {
			return reg.Watch(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
		defer cancel()
		server.Shutdown(shutdownCtx)

		if metricsServer != nil {
			metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelMetrics()
			if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("driftgate stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
