// Package filesystem implements the store.BlobStore port on the local
// filesystem, using a two-level fan-out directory layout taken from the
// storage key (itself a SHA-256 of the file ID, see domain.StorageKeyFor).
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haukened/teledrop/internal/store"
)

// Ensure BlobStore implements store.BlobStore.
var _ store.BlobStore = (*BlobStore)(nil)

// BlobStore implements store.BlobStore using the local filesystem. Keys are
// relative paths of the form "hh/hh/rest"; the two leading
// directory levels are created on demand.
type BlobStore struct {
	root string
}

// New returns a filesystem-backed blob store rooted at dir. The directory
// must already exist with secure permissions (0700 recommended).
func New(root string) (*BlobStore, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.New("blob root is not a directory")
	}
	return &BlobStore{root: root}, nil
}

func (b *BlobStore) path(key string) string { return filepath.Join(b.root, filepath.FromSlash(key)) }

func (b *BlobStore) tempPath(key string) string { return b.path(key) + ".tmp" }

// OpenWrite implements store.BlobStore.
func (b *BlobStore) OpenWrite(ctx context.Context, key string) (store.WriteSink, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	final := b.path(key)
	tmp := b.tempPath(key)
	if err := os.MkdirAll(filepath.Dir(final), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return &writeSink{f: f, tmpPath: tmp, finalPath: final}, nil
}

type writeSink struct {
	f         *os.File
	tmpPath   string
	finalPath string
	closed    bool
}

func (w *writeSink) Write(p []byte) (int, error) { return w.f.Write(p) }

// Commit flushes, syncs, closes, and atomically renames temp to final. A
// same-directory rename is atomic on POSIX filesystems.
func (w *writeSink) Commit(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return nil
}

// Abort discards the temp file. Safe to call after Commit (no-op).
func (w *writeSink) Abort(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.f.Close()
	return os.Remove(w.tmpPath)
}

// Read implements store.BlobStore.
func (b *BlobStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return f, nil
}

// ReadRange implements store.BlobStore, streaming blob[start:endInclusive].
func (b *BlobStore) ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	if start < 0 || endInclusive < start || endInclusive >= size {
		f.Close()
		return nil, store.ErrRangeInvalid
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	n := endInclusive - start + 1
	return &limitedReadCloser{r: io.LimitReader(f, n), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Stat implements store.BlobStore.
func (b *BlobStore) Stat(ctx context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	fi, err := os.Stat(b.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, store.ErrNotFound
		}
		return 0, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return fi.Size(), nil
}

// Delete implements store.BlobStore. Absence is not an error (idempotent).
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return nil
}

// Move implements store.BlobStore.
func (b *BlobStore) Move(ctx context.Context, src, dst string) error {
	if err := validateKey(src); err != nil {
		return err
	}
	if err := validateKey(dst); err != nil {
		return err
	}
	srcPath := b.path(src)
	if _, err := os.Stat(srcPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store.ErrNotFound
		}
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	dstPath := b.path(dst)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o700); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return nil
}

// SweepStaleTemp implements store.BlobStore's startup sweep:
// any ".tmp" file older than olderThan is removed.
func (b *BlobStore) SweepStaleTemp(ctx context.Context, olderThan time.Time) (int, error) {
	count := 0
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint: best-effort; a racing delete is not fatal to the sweep
		}
		if info.ModTime().Before(olderThan) {
			if rmErr := os.Remove(p); rmErr == nil {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return count, nil
}

// ListKeys returns every committed blob key (i.e. not ".tmp") present.
func (b *BlobStore) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, relErr := filepath.Rel(b.root, p)
		if relErr != nil {
			return relErr
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return keys, nil
}

// validateKey enforces that key has the "hh/hh/rest" fan-out shape with no
// path traversal, preventing it from ever escaping root regardless of how it
// was derived upstream (defense in depth; keys are normally derived only via
// domain.StorageKeyFor).
func validateKey(key string) error {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return errors.New("filesystem: invalid blob key")
	}
	parts := strings.Split(key, "/")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 2 || parts[2] == "" {
		return errors.New("filesystem: invalid blob key shape")
	}
	return nil
}
