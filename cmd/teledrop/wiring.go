package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/haukened/teledrop/internal/app"
	"github.com/haukened/teledrop/internal/config"
	"github.com/haukened/teledrop/internal/httpx"
	"github.com/haukened/teledrop/internal/metrics"
	"github.com/haukened/teledrop/internal/store"
	"github.com/haukened/teledrop/internal/store/filesystem"
	"github.com/haukened/teledrop/internal/store/s3objectstore"
	"github.com/haukened/teledrop/internal/store/sqlite"
)

// deps bundles the constructed components a subcommand needs, so serve and
// sweep can share the same bring-up path without duplicating it.
type deps struct {
	cfg     *config.Config
	db      *sql.DB
	meta    store.MetadataStore
	blobs   store.BlobStore
	metrics metrics.Recorder
	service *app.Service
}

// ensureDir creates dir (and parents) if it does not already exist.
func ensureDir(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.MkdirAll(dir, 0o755)
		}
		return err
	}
	if !st.IsDir() {
		return errors.New("storage root exists and is not a directory")
	}
	return nil
}

// buildDeps loads configuration and constructs the Metadata Store, Blob
// Store, and Drop Lifecycle Coordinator. Callers are responsible for
// closing db once done.
func buildDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := ensureDir(cfg.StorageRoot); err != nil {
		return nil, err
	}
	dbDir := filepath.Dir(cfg.StorageRoot)
	db, err := sql.Open("sqlite3", cfg.SQLiteDSN(dbDir))
	if err != nil {
		return nil, err
	}
	meta, err := sqlite.New(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	rec := metrics.New()
	svc := app.NewService(meta, blobs, app.SystemClock, rec, cfg.MaxUploadBytes, cfg.ChunkBytes, cfg.Argon2Params(), cfg.ReservedSlugSet(), cfg.SlugCacheSize)

	return &deps{cfg: cfg, db: db, meta: meta, blobs: blobs, metrics: rec, service: svc}, nil
}

// newBlobStore constructs the Blob Store named by cfg.StorageBackend.
func newBlobStore(cfg *config.Config) (store.BlobStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		client, err := minio.New(cfg.S3Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
			Secure: cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return s3objectstore.New(client, cfg.S3Bucket, "blobs"), nil
	default:
		return filesystem.New(cfg.StorageRoot)
	}
}

// buildHandler assembles the HTTP delivery layer around the already-built
// service and blob store.
func buildHandler(d *deps) http.Handler {
	readiness := func(ctx context.Context) error {
		return d.db.PingContext(ctx)
	}
	h := &httpx.Handler{
		Service:       d.service,
		Blobs:         d.blobs,
		Identity:      newIdentityResolver(d.cfg),
		MaxBody:       d.cfg.MaxUploadBytes,
		ChunkBytes:    d.cfg.ChunkBytes,
		ReservedSlugs: d.cfg.ReservedSlugSet(),
		Metrics:       d.metrics,
		Readiness:     readiness,
	}
	return h.Router()
}

// newIdentityResolver builds the operator bearer-token resolver when
// cfg.OperatorToken is configured; otherwise every caller resolves as
// anonymous.
func newIdentityResolver(cfg *config.Config) httpx.IdentityResolver {
	if cfg.OperatorToken == "" {
		return nil
	}
	return httpx.BearerTokenResolver{Tokens: map[string]string{cfg.OperatorToken: cfg.OperatorIdentity}}
}
