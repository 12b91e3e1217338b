// Package janitor implements background maintenance for the Blob Store and
// Metadata Store: a startup sweep of stale incomplete writes, and a periodic
// reconciliation pass that detects (but does not delete) blobs with no
// backing metadata row. It operates independently of the request path so
// maintenance timing never blocks a Create/Read/Delete.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haukened/teledrop/internal/metrics"
	"github.com/haukened/teledrop/internal/store"
)

// Metrics is the minimal observer interface the janitor emits through.
type Metrics interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}

// Config holds tunables for the Janitor.
type Config struct {
	// ReconcileInterval is how often an orphan-blob reconciliation cycle runs.
	ReconcileInterval time.Duration
	// StaleTempAge bounds how old an incomplete (never-committed) write must
	// be before the startup sweep removes it.
	StaleTempAge time.Duration
	Logger       *slog.Logger
}

// Janitor encapsulates the background maintenance loop: a startup sweep of
// stale incomplete writes, and periodic orphan-blob reconciliation.
type Janitor struct {
	meta    store.MetadataStore
	blobs   store.BlobStore
	cfg     Config
	metrics Metrics

	ticker *time.Ticker
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New constructs but does not start a Janitor.
func New(meta store.MetadataStore, blobs store.BlobStore, m Metrics, cfg Config) *Janitor {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 10 * time.Minute
	}
	if cfg.StaleTempAge <= 0 {
		cfg.StaleTempAge = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Janitor{
		meta:    meta,
		blobs:   blobs,
		cfg:     cfg,
		metrics: m,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// StartupSweep removes incomplete writes older than StaleTempAge. Callers
// run this once, before serving traffic, so a crash mid-upload doesn't leak
// temp objects indefinitely.
func (j *Janitor) StartupSweep(ctx context.Context) error {
	log := j.cfg.Logger.With("domain", "janitor", "action", "startup_sweep")
	cutoff := time.Now().UTC().Add(-j.cfg.StaleTempAge)
	n, err := j.blobs.SweepStaleTemp(ctx, cutoff)
	if err != nil {
		log.Error("sweep", "error", err)
		return err
	}
	j.metrics.Inc(metrics.StaleTempRemovedTotal, int64(n))
	log.Info("sweep complete", "removed", n)
	return nil
}

// Start launches the periodic reconcile loop in a new goroutine.
func (j *Janitor) Start(ctx context.Context) {
	if j.ticker != nil {
		return
	}
	j.ticker = time.NewTicker(j.cfg.ReconcileInterval)
	go j.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (j *Janitor) Stop() {
	j.once.Do(func() { close(j.stopCh) })
	<-j.doneCh
}

func (j *Janitor) loop(ctx context.Context) {
	log := j.cfg.Logger.With("domain", "janitor")
	defer func() {
		j.ticker.Stop()
		close(j.doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info("janitor stop", "reason", "context_cancel")
			return
		case <-j.stopCh:
			log.Info("janitor stop", "reason", "stop_signal")
			return
		case <-j.ticker.C:
			j.runCycle(ctx)
		}
	}
}

// runCycle performs one reconciliation pass.
func (j *Janitor) runCycle(ctx context.Context) {
	start := time.Now()
	log := j.cfg.Logger.With("domain", "janitor", "action", "reconcile")
	detected, err := j.Reconcile(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("reconcile", "error", err)
	}
	j.metrics.Inc(metrics.SweepCyclesTotal, 1)
	log.Info("cycle complete", "orphans_detected", detected, "ms", time.Since(start).Milliseconds())
}

// Reconcile lists every committed blob key and every live storage key known
// to the Metadata Store, and reports blobs present in the former but absent
// from the latter. It never deletes what it finds: a blob can legitimately
// outlive its row for the short window between the Blob Store commit and the
// enclosing metadata transaction's commit in app.Service.Create, and pruning
// on sight would race that window and destroy a blob a concurrent Create is
// still publishing. Orphans surviving past that window are left for an
// operator to inspect and clear by hand.
func (j *Janitor) Reconcile(ctx context.Context) (int, error) {
	blobKeys, err := j.blobs.ListKeys(ctx)
	if err != nil {
		return 0, err
	}

	var liveKeys []string
	err = j.meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		keys, err := tx.ListStorageKeys(ctx)
		if err != nil {
			return err
		}
		liveKeys = keys
		return nil
	})
	if err != nil {
		return 0, err
	}

	live := make(map[string]struct{}, len(liveKeys))
	for _, k := range liveKeys {
		live[k] = struct{}{}
	}

	detected := 0
	log := j.cfg.Logger.With("domain", "janitor", "action", "reconcile")
	for _, key := range blobKeys {
		if _, ok := live[key]; ok {
			continue
		}
		detected++
		log.Warn("orphan blob detected", "key", key)
	}
	if detected > 0 {
		j.metrics.Inc(metrics.OrphanBlobsDetectedTotal, int64(detected))
	}
	return detected, nil
}
