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

	"github.com/spf13/cobra"

	"github.com/haukened/teledrop/internal/janitor"
	"github.com/haukened/teledrop/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Teledrop HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jan := janitor.New(d.meta, d.blobs, d.metrics, janitor.Config{Logger: slog.Default()})
	if err := jan.StartupSweep(ctx); err != nil {
		slog.Error("startup sweep failed", "error", err)
	}
	jan.Start(ctx)
	defer jan.Stop()

	srv := &http.Server{
		Addr:         d.cfg.Addr,
		Handler:      buildHandler(d),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // large uploads/downloads stream; bounded by ChunkBytes cooperation, not a wall clock
		IdleTimeout:  120 * time.Second,
	}

	var metricsSrv *http.Server
	if d.cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:         d.cfg.MetricsAddr,
			Handler:      metrics.Handler(d.cfg.MetricsToken),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
		slog.Info("metrics server started", "addr", d.cfg.MetricsAddr)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", d.cfg.Addr, "backend", d.cfg.StorageBackend, "pid", os.Getpid())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}
