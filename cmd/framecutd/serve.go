package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/framecut/framecut-backend/internal/api"
	"github.com/framecut/framecut-backend/internal/config"
	"github.com/framecut/framecut-backend/internal/exports"
	"github.com/framecut/framecut-backend/internal/logging"
	"github.com/framecut/framecut-backend/internal/playback"
	"github.com/framecut/framecut-backend/internal/probe"
	"github.com/framecut/framecut-backend/internal/upload"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the export dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := ctx.open(nil)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(commandCtx(cmd), a)
		},
	}
}

func serve(parent context.Context, a *app) error {
	startTime := time.Now()
	cfg, logger := a.cfg, a.logger
	logger.Info("starting framecutd",
		"version", config.Version,
		"data_dir", cfg.DataDir(),
		"config_file", cfg.File(),
	)

	dispatcherLog := logging.WithComponent(logger, "dispatcher")
	worker := exports.NewWorker(a.ledger, a.registry, cfg.ExportTimeout(), logging.WithComponent(logger, "worker"))
	dispatcher := exports.NewDispatcher(worker, a.ledger, cfg.ExportWorkers(), cfg.ExportQueueSize(), dispatcherLog)
	svc := exports.NewService(a.ledger, a.query, dispatcher, a.registry, logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interrupted, err := svc.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile export jobs: %w", err)
	}
	if len(interrupted) > 0 {
		logger.Warn("failed export jobs interrupted by restart", "count", len(interrupted))
	}

	uploads, err := openUploads(ctx, cfg, logging.WithComponent(logger, "upload"))
	if err != nil {
		return err
	}

	var prober probe.Prober
	if ff, err := probe.New(cfg.FFprobePath(), 0, logging.WithComponent(logger, "probe")); err == nil {
		prober = ff
	} else {
		logger.Info("ffprobe unavailable, uploads will not be probed", "error", err)
	}

	// Runs are stopped explicitly after the HTTP server drains.
	dispatcher.Start(context.Background())

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		Timeline:       a.timeline,
		Exports:        svc,
		Dispatcher:     dispatcher,
		Uploads:        uploads,
		Prober:         prober,
		Playback:       playback.NewServer(cfg.DataDir(), logging.WithComponent(logger, "playback")),
		Presets:        a.registry.Presets(),
		AllowedOrigins: cfg.AllowedOrigins(),
		CORSMaxAge:     cfg.CORSMaxAge(),
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	if n, err := svc.ResumeQueued(ctx); err != nil {
		logger.Warn("could not resume every queued export", "resumed", n, "error", err)
	} else if n > 0 {
		logger.Info("resumed queued exports", "count", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		dispatcher.Stop()
		return err
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func openUploads(ctx context.Context, cfg *config.EnvConfig, logger *slog.Logger) (upload.Store, error) {
	if cfg.UploadBackend() != config.BackendMinIO {
		return upload.NewLocalStore(cfg.UploadDir(), logger)
	}
	m := cfg.MinIO()
	store, err := upload.NewMinIOStore(upload.MinIOConfig{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		Region:    m.Region,
		UseSSL:    m.UseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
