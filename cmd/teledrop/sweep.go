package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/haukened/teledrop/internal/janitor"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one maintenance pass (stale temp cleanup + orphan reconcile) and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep()
	},
}

func runSweep() error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	jan := janitor.New(d.meta, d.blobs, d.metrics, janitor.Config{Logger: slog.Default()})
	if err := jan.StartupSweep(ctx); err != nil {
		return err
	}
	detected, err := jan.Reconcile(ctx)
	if err != nil {
		return err
	}
	slog.Info("sweep complete", "orphans_detected", detected)
	return nil
}
