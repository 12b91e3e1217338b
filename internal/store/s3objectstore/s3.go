// Package s3objectstore implements the store.BlobStore port on an
// S3-compatible object store, selected by config.Config.StorageBackend. It
// uses the temp-object + server-side-copy pattern since S3 has no rename:
// OpenWrite streams to a "<key>.tmp" object and Commit performs a CopyObject
// to the final key followed by removing the temp object.
package s3objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/haukened/teledrop/internal/store"
)

// Ensure BlobStore implements store.BlobStore.
var _ store.BlobStore = (*BlobStore)(nil)

// Client is the subset of *minio.Client this package depends on, to keep the
// package unit-testable without a live object store.
type Client interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// BlobStore implements store.BlobStore against an S3-compatible bucket.
type BlobStore struct {
	client Client
	bucket string
	prefix string // optional key prefix, e.g. "blobs/"
}

// New returns an S3-compatible blob store for the given bucket, scoping all
// keys under an optional prefix.
func New(client Client, bucket, prefix string) *BlobStore {
	return &BlobStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *BlobStore) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *BlobStore) tempKey(key string) string { return b.objectKey(key) + ".tmp" }

// OpenWrite implements store.BlobStore. Because the S3 API has no partial
// writes, the sink buffers nothing itself; it pipes writes directly into a
// PutObject call running in a background goroutine. io.Pipe holds no buffer
// of its own, so the memory held during an upload is whatever PutObject
// buffers per uploaded part.
func (b *BlobStore) OpenWrite(ctx context.Context, key string) (store.WriteSink, error) {
	pr, pw := io.Pipe()
	tmp := b.tempKey(key)
	done := make(chan error, 1)
	go func() {
		_, err := b.client.PutObject(ctx, b.bucket, tmp, pr, -1, minio.PutObjectOptions{})
		_ = pr.CloseWithError(err)
		done <- err
	}()
	return &writeSink{pw: pw, done: done, bs: b, key: key, tmp: tmp}, nil
}

type writeSink struct {
	pw     *io.PipeWriter
	done   chan error
	bs     *BlobStore
	key    string
	tmp    string
	closed bool
}

func (w *writeSink) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *writeSink) Commit(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.pw.Close(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	if err := <-w.done; err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	final := w.bs.objectKey(w.key)
	dst := minio.CopyDestOptions{Bucket: w.bs.bucket, Object: final}
	src := minio.CopySrcOptions{Bucket: w.bs.bucket, Object: w.tmp}
	if _, cpErr := w.bs.client.CopyObject(ctx, dst, src); cpErr != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, cpErr)
	}
	_ = w.bs.client.RemoveObject(ctx, w.bs.bucket, w.tmp, minio.RemoveObjectOptions{})
	return nil
}

func (w *writeSink) Abort(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.pw.CloseWithError(fmt.Errorf("aborted"))
	<-w.done
	return w.bs.client.RemoveObject(ctx, w.bs.bucket, w.tmp, minio.RemoveObjectOptions{})
}

// Read implements store.BlobStore.
func (b *BlobStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

// ReadRange implements store.BlobStore using the HTTP Range semantics of the
// S3 API.
func (b *BlobStore) ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error) {
	if start < 0 || endInclusive < start {
		return nil, store.ErrRangeInvalid
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, endInclusive); err != nil {
		return nil, store.ErrRangeInvalid
	}
	obj, err := b.client.GetObject(ctx, b.bucket, b.objectKey(key), opts)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

// Stat implements store.BlobStore.
func (b *BlobStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := b.client.StatObject(ctx, b.bucket, b.objectKey(key), minio.StatObjectOptions{})
	if err != nil {
		return 0, mapMinioErr(err)
	}
	return info.Size, nil
}

// Delete implements store.BlobStore. Absence is not an error.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	err := b.client.RemoveObject(ctx, b.bucket, b.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return nil
}

// Move implements store.BlobStore via CopyObject + RemoveObject (S3 has no
// native rename).
func (b *BlobStore) Move(ctx context.Context, src, dst string) error {
	srcOpts := minio.CopySrcOptions{Bucket: b.bucket, Object: b.objectKey(src)}
	dstOpts := minio.CopyDestOptions{Bucket: b.bucket, Object: b.objectKey(dst)}
	if _, err := b.client.CopyObject(ctx, dstOpts, srcOpts); err != nil {
		return mapMinioErr(err)
	}
	return b.Delete(ctx, src)
}

// SweepStaleTemp removes ".tmp" objects older than olderThan.
func (b *BlobStore) SweepStaleTemp(ctx context.Context, olderThan time.Time) (int, error) {
	count := 0
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: b.prefix, Recursive: true}) {
		if obj.Err != nil {
			continue
		}
		if !strings.HasSuffix(obj.Key, ".tmp") {
			continue
		}
		if obj.LastModified.Before(olderThan) {
			if err := b.client.RemoveObject(ctx, b.bucket, obj.Key, minio.RemoveObjectOptions{}); err == nil {
				count++
			}
		}
	}
	return count, nil
}

// ListKeys returns every committed (non-".tmp") object key under the prefix.
func (b *BlobStore) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: b.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrStorage, obj.Err)
		}
		if strings.HasSuffix(obj.Key, ".tmp") {
			continue
		}
		key := obj.Key
		if b.prefix != "" {
			key = strings.TrimPrefix(key, b.prefix+"/")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func mapMinioErr(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %v", store.ErrStorage, err)
}
