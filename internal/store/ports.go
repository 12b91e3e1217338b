package store

import (
	"context"
	"io"
	"time"

	"github.com/haukened/teledrop/internal/domain"
)

// BlobStore is the byte vault, keyed by storage key (a hash of the file ID,
// see domain.StorageKeyFor), not by content. Implementations
// (internal/store/filesystem, internal/store/s3objectstore) must provide the
// atomic-publish and range-read semantics documented below.
type BlobStore interface {
	// OpenWrite returns a streaming sink for key. Data is only visible to
	// Read/Stat/ReadRange after Commit is called; Abort discards it.
	OpenWrite(ctx context.Context, key string) (WriteSink, error)
	// Read returns a reader over the full blob at key.
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	// ReadRange returns a reader over blob[start:endInclusive] (inclusive).
	ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error)
	// Stat returns the size in bytes of the blob at key.
	Stat(ctx context.Context, key string) (int64, error)
	// Delete removes the blob at key. Absence is not an error.
	Delete(ctx context.Context, key string) error
	// Move relocates a blob from src to dst. Nothing in this module calls
	// it; the Coordinator's publish path uses Commit, not Move.
	Move(ctx context.Context, src, dst string) error
	// SweepStaleTemp removes incomplete (never-committed) writes older than
	// olderThan and returns the count removed.
	SweepStaleTemp(ctx context.Context, olderThan time.Time) (int, error)
	// ListKeys returns every committed blob key currently stored, used by
	// Reconcile to find orphans.
	ListKeys(ctx context.Context) ([]string, error)
}

// WriteSink is a streaming sink returned by BlobStore.OpenWrite.
type WriteSink interface {
	io.Writer
	// Commit publishes the written bytes atomically at the target key.
	Commit(ctx context.Context) error
	// Abort discards the written bytes; safe to call after Commit (no-op).
	Abort(ctx context.Context) error
}

// MetadataStore is the relational store backing Drops and Files. Its methods
// run inside the session passed in; callers obtain one via WithTx.
type MetadataStore interface {
	// WithTx runs fn inside a transactional session, committing on success
	// and rolling back if fn returns an error.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional session a MetadataStore hands to the Coordinator.
// Every method must be called with the ctx passed to the enclosing WithTx
// call (or a context derived from it).
type Tx interface {
	// InsertDrop inserts a drop row (without its file, which is linked by
	// InsertFile) and returns ErrSlugConflict if the slug is already taken.
	InsertDrop(ctx context.Context, d domain.Drop) error
	// InsertFile inserts the file row for an existing drop.
	InsertFile(ctx context.Context, f domain.File) error
	// GetBySlug loads a drop (with its file eager-loaded) by slug.
	// Returns ErrNotFound if no live drop has that slug.
	GetBySlug(ctx context.Context, slug string) (domain.Drop, error)
	// UpdateDetail updates title/description and touches updated_at.
	UpdateDetail(ctx context.Context, id domain.DropID, title, description string, updatedAt time.Time) error
	// UpdatePermission updates private and touches updated_at.
	UpdatePermission(ctx context.Context, id domain.DropID, private bool, updatedAt time.Time) error
	// UpdateFavorite updates favorite WITHOUT touching updated_at.
	UpdateFavorite(ctx context.Context, id domain.DropID, favorite bool) error
	// UpdatePassphrase sets/rotates/clears the passphrase hash ("" clears it)
	// and touches updated_at.
	UpdatePassphrase(ctx context.Context, id domain.DropID, passphraseHash string, updatedAt time.Time) error
	// DeleteDrop deletes the drop and its file row, returning the storage key
	// of the now-orphaned blob so the caller can delete it after commit.
	DeleteDrop(ctx context.Context, id domain.DropID) (storageKey string, err error)
	// SlugExists reports whether a live drop currently has the given slug.
	SlugExists(ctx context.Context, slug string) (bool, error)
	// List returns a page of drops owned by ownerID, along with the total
	// matching count, ordered per opts.
	List(ctx context.Context, ownerID string, opts ListOptions) (drops []domain.Drop, total int, err error)
	// ListStorageKeys returns the storage key of every live file, used by
	// Reconcile to find blobs with no backing row.
	ListStorageKeys(ctx context.Context) ([]string, error)
}

// SortKey enumerates the fields List can order by.
type SortKey string

const (
	SortByCreatedAt SortKey = "created_at"
	SortByTitle     SortKey = "title"
	SortBySize      SortKey = "size"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ListOptions carries pagination and ordering for MetadataStore.Tx.List.
type ListOptions struct {
	SortKey  SortKey
	Order    SortOrder
	Page     int // 1-based
	PageSize int
}
