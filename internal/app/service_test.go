package app

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haukened/teledrop/internal/domain"
	"github.com/haukened/teledrop/internal/store"
)

// --- fakes -------------------------------------------------------------

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeMeta struct {
	mu    sync.Mutex
	drops map[domain.DropID]domain.Drop
	slugs map[string]domain.DropID
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{drops: map[domain.DropID]domain.Drop{}, slugs: map[string]domain.DropID{}}
}

func (f *fakeMeta) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapDrops := make(map[domain.DropID]domain.Drop, len(f.drops))
	for k, v := range f.drops {
		snapDrops[k] = v
	}
	snapSlugs := make(map[string]domain.DropID, len(f.slugs))
	for k, v := range f.slugs {
		snapSlugs[k] = v
	}
	err := fn(ctx, &fakeTx{f: f})
	if err != nil {
		f.drops = snapDrops
		f.slugs = snapSlugs
		return err
	}
	return nil
}

type fakeTx struct{ f *fakeMeta }

func (t *fakeTx) InsertDrop(ctx context.Context, d domain.Drop) error {
	if _, ok := t.f.slugs[d.Slug]; ok {
		return store.ErrSlugConflict
	}
	t.f.slugs[d.Slug] = d.ID
	t.f.drops[d.ID] = d
	return nil
}

func (t *fakeTx) InsertFile(ctx context.Context, file domain.File) error {
	d, ok := t.f.drops[file.DropID]
	if !ok {
		return store.ErrNotFound
	}
	d.File = file
	t.f.drops[file.DropID] = d
	return nil
}

func (t *fakeTx) GetBySlug(ctx context.Context, slug string) (domain.Drop, error) {
	id, ok := t.f.slugs[slug]
	if !ok {
		return domain.Drop{}, store.ErrNotFound
	}
	return t.f.drops[id], nil
}

func (t *fakeTx) UpdateDetail(ctx context.Context, id domain.DropID, title, description string, updatedAt time.Time) error {
	d, ok := t.f.drops[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Title, d.Description, d.UpdatedAt = title, description, updatedAt
	t.f.drops[id] = d
	return nil
}

func (t *fakeTx) UpdatePermission(ctx context.Context, id domain.DropID, private bool, updatedAt time.Time) error {
	d, ok := t.f.drops[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Private, d.UpdatedAt = private, updatedAt
	t.f.drops[id] = d
	return nil
}

func (t *fakeTx) UpdateFavorite(ctx context.Context, id domain.DropID, favorite bool) error {
	d, ok := t.f.drops[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Favorite = favorite
	t.f.drops[id] = d
	return nil
}

func (t *fakeTx) UpdatePassphrase(ctx context.Context, id domain.DropID, passphraseHash string, updatedAt time.Time) error {
	d, ok := t.f.drops[id]
	if !ok {
		return store.ErrNotFound
	}
	d.PassphraseHash, d.UpdatedAt = passphraseHash, updatedAt
	t.f.drops[id] = d
	return nil
}

func (t *fakeTx) DeleteDrop(ctx context.Context, id domain.DropID) (string, error) {
	d, ok := t.f.drops[id]
	if !ok {
		return "", store.ErrNotFound
	}
	delete(t.f.drops, id)
	delete(t.f.slugs, d.Slug)
	return d.File.StorageKey, nil
}

func (t *fakeTx) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, ok := t.f.slugs[slug]
	return ok, nil
}

func (t *fakeTx) List(ctx context.Context, ownerID string, opts store.ListOptions) ([]domain.Drop, int, error) {
	var out []domain.Drop
	for _, d := range t.f.drops {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (t *fakeTx) ListStorageKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, d := range t.f.drops {
		if d.File.StorageKey != "" {
			keys = append(keys, d.File.StorageKey)
		}
	}
	return keys, nil
}

type fakeBlob struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBlob() *fakeBlob { return &fakeBlob{data: map[string][]byte{}} }

type fakeSink struct {
	bs  *fakeBlob
	key string
	buf bytes.Buffer
}

func (s *fakeSink) Write(p []byte) (int, error) { return s.buf.Write(p) }

func (s *fakeSink) Commit(ctx context.Context) error {
	s.bs.mu.Lock()
	defer s.bs.mu.Unlock()
	s.bs.data[s.key] = append([]byte(nil), s.buf.Bytes()...)
	return nil
}

func (s *fakeSink) Abort(ctx context.Context) error { return nil }

func (b *fakeBlob) OpenWrite(ctx context.Context, key string) (store.WriteSink, error) {
	return &fakeSink{bs: b, key: key}, nil
}

func (b *fakeBlob) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlob) ReadRange(ctx context.Context, key string, start, endInclusive int64) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	if start < 0 || endInclusive >= int64(len(data)) || endInclusive < start {
		return nil, store.ErrRangeInvalid
	}
	return io.NopCloser(bytes.NewReader(data[start : endInclusive+1])), nil
}

func (b *fakeBlob) Stat(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return 0, store.ErrNotFound
	}
	return int64(len(data)), nil
}

func (b *fakeBlob) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *fakeBlob) Move(ctx context.Context, src, dst string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[src]
	if !ok {
		return store.ErrNotFound
	}
	b.data[dst] = data
	delete(b.data, src)
	return nil
}

func (b *fakeBlob) SweepStaleTemp(ctx context.Context, olderThan time.Time) (int, error) { return 0, nil }

func (b *fakeBlob) ListKeys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func newTestService() *Service {
	return NewService(newFakeMeta(), newFakeBlob(), fixedClock{t: time.Unix(1700000000, 0).UTC()}, nil, 1<<20, 4096, domain.Argon2Params{Time: 1, MemoryKiB: 8 * 1024, Threads: 1, KeyLen: 16, SaltLen: 8}, nil, 64)
}

// --- tests ---------------------------------------------------------------

func TestCreateAutoSlugRoundTrip(t *testing.T) {
	s := newTestService()
	in := CreateInput{
		Title:     "notes",
		FileName:  "notes.txt",
		MediaType: "text/plain",
		OwnerID:   "alice",
		Body:      strings.NewReader("hello world"),
	}
	drop, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(drop.Slug) != domain.GeneratedSlugLen {
		t.Fatalf("expected generated slug length %d, got %q", domain.GeneratedSlugLen, drop.Slug)
	}
	if drop.File.Size != int64(len("hello world")) {
		t.Fatalf("unexpected size %d", drop.File.Size)
	}

	rc, err := s.Blobs.Read(context.Background(), drop.File.StorageKey)
	if err != nil {
		t.Fatalf("Read blob: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestCreateExplicitSlugConflict(t *testing.T) {
	s := newTestService()
	slug := "my-drop"
	in := CreateInput{Slug: &slug, Title: "a", FileName: "a.txt", OwnerID: "alice", Body: strings.NewReader("x")}
	if _, err := s.Create(context.Background(), in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := s.Create(context.Background(), in); err != domain.ErrSlugTaken {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestCreateOverSizeLimitRollsBackAndLeavesNoBlob(t *testing.T) {
	s := newTestService()
	s.MaxUploadBytes = 4
	in := CreateInput{Title: "big", FileName: "big.bin", OwnerID: "alice", Body: strings.NewReader("way too much data")}
	_, err := s.Create(context.Background(), in)
	if err != domain.ErrSizeLimitExceeded {
		t.Fatalf("expected ErrSizeLimitExceeded, got %v", err)
	}
	fb := s.Blobs.(*fakeBlob)
	if len(fb.data) != 0 {
		t.Fatalf("expected no committed blob, got %d", len(fb.data))
	}
	fm := s.Meta.(*fakeMeta)
	if len(fm.drops) != 0 {
		t.Fatalf("expected no drop row after rollback, got %d", len(fm.drops))
	}
}

func TestReadEnforcesPassphrase(t *testing.T) {
	s := newTestService()
	in := CreateInput{Title: "secret", FileName: "s.txt", Passphrase: "swordfish", OwnerID: "alice", Body: strings.NewReader("shh")}
	drop, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	anon := domain.Caller{}
	if _, err := s.Read(context.Background(), drop.Slug, anon, ""); err != domain.ErrPasswordRequired {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := s.Read(context.Background(), drop.Slug, anon, "wrong"); err != domain.ErrPasswordInvalid {
		t.Fatalf("expected ErrPasswordInvalid, got %v", err)
	}
	if _, err := s.Read(context.Background(), drop.Slug, anon, "swordfish"); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestUpdateDetailRequiresOwner(t *testing.T) {
	s := newTestService()
	in := CreateInput{Title: "t", FileName: "f", OwnerID: "alice", Body: strings.NewReader("x")}
	drop, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stranger := domain.Caller{Authenticated: true, Identity: "mallory"}
	if _, err := s.UpdateDetail(context.Background(), drop.Slug, stranger, UpdateDetailInput{}); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	owner := domain.Caller{Authenticated: true, Identity: "alice"}
	newTitle := "updated"
	updated, err := s.UpdateDetail(context.Background(), drop.Slug, owner, UpdateDetailInput{Title: &newTitle})
	if err != nil {
		t.Fatalf("UpdateDetail: %v", err)
	}
	if updated.Title != "updated" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
}

func TestUpdateFavoriteDoesNotTouchUpdatedAt(t *testing.T) {
	s := newTestService()
	in := CreateInput{Title: "t", FileName: "f", OwnerID: "alice", Body: strings.NewReader("x")}
	drop, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	owner := domain.Caller{Authenticated: true, Identity: "alice"}
	updated, err := s.UpdateFavorite(context.Background(), drop.Slug, owner, true)
	if err != nil {
		t.Fatalf("UpdateFavorite: %v", err)
	}
	if !updated.Favorite {
		t.Fatal("expected favorite true")
	}
	if !updated.UpdatedAt.Equal(drop.UpdatedAt) {
		t.Fatalf("updated_at should be unchanged, got %v want %v", updated.UpdatedAt, drop.UpdatedAt)
	}
}

func TestDeleteRemovesRowAndBlob(t *testing.T) {
	s := newTestService()
	in := CreateInput{Title: "t", FileName: "f", OwnerID: "alice", Body: strings.NewReader("x")}
	drop, err := s.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	owner := domain.Caller{Authenticated: true, Identity: "alice"}
	if err := s.Delete(context.Background(), drop.Slug, owner); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, exists, err := s.loadBySlug(context.Background(), drop.Slug); err != nil || exists {
		t.Fatalf("expected drop gone after delete, exists=%v err=%v", exists, err)
	}
	if _, err := s.Blobs.Stat(context.Background(), drop.File.StorageKey); err != store.ErrNotFound {
		t.Fatalf("expected blob gone, got %v", err)
	}
	// Deleting again must not resurrect or error oddly: not found via Evaluate.
	if err := s.Delete(context.Background(), drop.Slug, owner); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCheckSlugAvailableReflectsCreatesAndDeletes(t *testing.T) {
	s := newTestService()
	slug := "taken-or-not"
	available, err := s.CheckSlugAvailable(context.Background(), slug)
	if err != nil {
		t.Fatalf("CheckSlugAvailable: %v", err)
	}
	if !available {
		t.Fatal("expected available before create")
	}

	in := CreateInput{Slug: &slug, Title: "t", FileName: "f", OwnerID: "alice", Body: strings.NewReader("x")}
	if _, err := s.Create(context.Background(), in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	available, err = s.CheckSlugAvailable(context.Background(), slug)
	if err != nil {
		t.Fatalf("CheckSlugAvailable after create: %v", err)
	}
	if available {
		t.Fatal("expected unavailable after create")
	}

	owner := domain.Caller{Authenticated: true, Identity: "alice"}
	if err := s.Delete(context.Background(), slug, owner); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	available, err = s.CheckSlugAvailable(context.Background(), slug)
	if err != nil {
		t.Fatalf("CheckSlugAvailable after delete: %v", err)
	}
	if !available {
		t.Fatal("expected available again after delete")
	}
}
