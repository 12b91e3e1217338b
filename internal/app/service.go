// Package app implements the Drop Lifecycle Coordinator described above:
// Create, Read, List, the partial-update family, and Delete, each wrapped in
// a single Metadata Store transaction with best-effort Blob Store
// compensation on failure.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/teledrop/internal/domain"
	"github.com/haukened/teledrop/internal/metrics"
	"github.com/haukened/teledrop/internal/store"
)

// Service is the Drop Lifecycle Coordinator. It holds no state of its own
// beyond the injected ports and a small bounded cache for slug-availability
// checks; every durable fact lives in Meta or Blobs.
type Service struct {
	Meta  store.MetadataStore
	Blobs store.BlobStore
	Clock Clock

	Metrics Metrics // optional; nil is a valid no-op

	MaxUploadBytes int64
	ChunkBytes     int
	Argon2         domain.Argon2Params
	ReservedSlugs  map[string]struct{}

	slugCache *lru.Cache[string, bool]
}

// NewService wires a Coordinator. slugCacheSize <= 0 disables the cache.
func NewService(meta store.MetadataStore, blobs store.BlobStore, clock Clock, metrics Metrics, maxUploadBytes int64, chunkBytes int, argon2 domain.Argon2Params, reserved map[string]struct{}, slugCacheSize int) *Service {
	s := &Service{
		Meta:           meta,
		Blobs:          blobs,
		Clock:          clock,
		Metrics:        metrics,
		MaxUploadBytes: maxUploadBytes,
		ChunkBytes:     chunkBytes,
		Argon2:         argon2,
		ReservedSlugs:  reserved,
	}
	if slugCacheSize > 0 {
		c, err := lru.New[string, bool](slugCacheSize)
		if err == nil {
			s.slugCache = c
		}
	}
	return s
}

func (s *Service) inc(name string, n int64) {
	if s.Metrics != nil {
		s.Metrics.Inc(name, n)
	}
}

func (s *Service) observe(name string, v int64) {
	if s.Metrics != nil {
		s.Metrics.Observe(name, v)
	}
}

func (s *Service) cacheInvalidate(slug string) {
	if s.slugCache != nil {
		s.slugCache.Remove(slug)
	}
}

// Create implements create procedure: validate preconditions,
// resolve a slug, insert the Drop row, stream the payload into the Blob
// Store under a temp key, commit it, record the File row, and commit the
// enclosing transaction. Any failure after the blob write opens triggers a
// best-effort Blob.delete of whatever key currently holds the bytes.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Drop, error) {
	if in.Slug != nil {
		if err := domain.ValidateSlug(*in.Slug, s.ReservedSlugs); err != nil {
			return domain.Drop{}, err
		}
	}
	if err := domain.ValidateTitle(in.Title); err != nil {
		return domain.Drop{}, err
	}
	if err := domain.ValidateDescription(in.Description); err != nil {
		return domain.Drop{}, err
	}
	if in.Passphrase != "" {
		if err := domain.ValidatePassphrase(in.Passphrase); err != nil {
			return domain.Drop{}, err
		}
	}
	if err := domain.ValidateMediaType(in.MediaType); err != nil {
		return domain.Drop{}, err
	}
	if in.Body == nil {
		return domain.Drop{}, domain.ErrValidation
	}

	ownerID := in.OwnerID
	if ownerID == "" {
		ownerID = domain.AnonymousOwner
	}

	var passphraseHash string
	if in.Passphrase != "" {
		h, err := domain.HashPassphrase(in.Passphrase, s.Argon2)
		if err != nil {
			return domain.Drop{}, err
		}
		passphraseHash = h
	}

	var result domain.Drop
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) (err error) {
		now := s.Clock.Now()
		drop := domain.Drop{
			ID:             domain.NewDropID(),
			Title:          in.Title,
			Description:    in.Description,
			PassphraseHash: passphraseHash,
			Private:        in.Private,
			Favorite:       in.Favorite,
			OwnerID:        ownerID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		drop, err = s.insertWithSlug(ctx, tx, drop, in.Slug)
		if err != nil {
			return err
		}

		fileID := domain.NewFileID()
		storageKey := domain.StorageKeyFor(fileID)

		sink, openErr := s.Blobs.OpenWrite(ctx, storageKey)
		if openErr != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorage, openErr)
		}
		committed := false
		defer func() {
			if err != nil {
				bgCtx := context.Background()
				if committed {
					_ = s.Blobs.Delete(bgCtx, storageKey)
				} else {
					_ = sink.Abort(bgCtx)
				}
			}
		}()

		size, hash, streamErr := s.stream(sink, in.Body)
		if streamErr != nil {
			err = streamErr
			return err
		}
		if cErr := sink.Commit(ctx); cErr != nil {
			err = fmt.Errorf("%w: %v", domain.ErrStorage, cErr)
			return err
		}
		committed = true

		file := domain.File{
			ID:          fileID,
			DropID:      drop.ID,
			Name:        in.FileName,
			MediaType:   domain.NormalizeMediaType(in.MediaType),
			Size:        size,
			ContentHash: hash,
			StorageKey:  storageKey,
		}
		if iErr := tx.InsertFile(ctx, file); iErr != nil {
			err = iErr
			return err
		}

		drop.File = file
		result = drop
		return nil
	})
	if err != nil {
		return domain.Drop{}, err
	}

	s.cacheInvalidate(result.Slug)
	s.inc(metrics.DropsCreatedTotal, 1)
	s.observe(metrics.UploadBytesTotal, result.File.Size)
	return result, nil
}

// insertWithSlug inserts drop under the requested slug, or, if none was
// requested, generates and retries candidates up to
// domain.MaxSlugGenerationAttempts.
func (s *Service) insertWithSlug(ctx context.Context, tx store.Tx, drop domain.Drop, requested *string) (domain.Drop, error) {
	if requested != nil {
		drop.Slug = *requested
		if err := tx.InsertDrop(ctx, drop); err != nil {
			if errors.Is(err, store.ErrSlugConflict) {
				s.inc(metrics.SlugConflictsTotal, 1)
				return domain.Drop{}, domain.ErrSlugTaken
			}
			return domain.Drop{}, err
		}
		return drop, nil
	}

	for attempt := 0; attempt < domain.MaxSlugGenerationAttempts; attempt++ {
		candidate, genErr := domain.GenerateSlugCandidate()
		if genErr != nil {
			return domain.Drop{}, genErr
		}
		if domain.ValidateSlug(candidate, s.ReservedSlugs) != nil {
			continue
		}
		drop.Slug = candidate
		err := tx.InsertDrop(ctx, drop)
		if err == nil {
			return drop, nil
		}
		if !errors.Is(err, store.ErrSlugConflict) {
			return domain.Drop{}, err
		}
		s.inc(metrics.SlugConflictsTotal, 1)
	}
	return domain.Drop{}, domain.ErrSlugExhausted
}

// stream copies body into sink in bounded chunks, enforcing MaxUploadBytes
// and computing the SHA-256 content hash as it goes.
func (s *Service) stream(sink store.WriteSink, body io.Reader) (size int64, hexHash string, err error) {
	chunk := s.ChunkBytes
	if chunk <= 0 {
		chunk = 256 * 1024
	}
	hasher := sha256.New()
	buf := make([]byte, chunk)
	var total int64
	for {
		n, rErr := body.Read(buf)
		if n > 0 {
			total += int64(n)
			if s.MaxUploadBytes > 0 && total > s.MaxUploadBytes {
				return 0, "", domain.ErrSizeLimitExceeded
			}
			hasher.Write(buf[:n])
			if _, wErr := sink.Write(buf[:n]); wErr != nil {
				return 0, "", fmt.Errorf("%w: %v", domain.ErrStorage, wErr)
			}
		}
		if rErr == io.EOF {
			break
		}
		if rErr != nil {
			return 0, "", rErr
		}
	}
	return total, hex.EncodeToString(hasher.Sum(nil)), nil
}

// loadBySlug fetches a drop by slug within its own transactional session,
// reporting existence separately so the caller can run it through Evaluate.
func (s *Service) loadBySlug(ctx context.Context, slug string) (drop domain.Drop, exists bool, err error) {
	err = s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, gErr := tx.GetBySlug(ctx, slug)
		if gErr != nil {
			if errors.Is(gErr, store.ErrNotFound) {
				return nil
			}
			return gErr
		}
		exists = true
		drop = d
		return nil
	})
	return drop, exists, err
}

// Read authorizes and returns the drop addressed by slug for a non-owner
// (read) access path: preview and download both call this ('s
// Evaluator invocation happens here, once, shared by both callers).
func (s *Service) Read(ctx context.Context, slug string, caller domain.Caller, passphrase string) (domain.Drop, error) {
	drop, exists, err := s.loadBySlug(ctx, slug)
	if err != nil {
		return domain.Drop{}, err
	}
	decision := domain.Evaluate(exists, drop, caller, passphrase, false)
	if decision != domain.Allow {
		return domain.Drop{}, decision.Err()
	}
	return drop, nil
}

// authorizeMutation loads a drop and requires the caller to own it,
// regardless of passphrase: mutating operations short-circuit to
// DenyForbidden for any non-owner.
func (s *Service) authorizeMutation(ctx context.Context, tx store.Tx, slug string, caller domain.Caller) (domain.Drop, error) {
	d, err := tx.GetBySlug(ctx, slug)
	exists := true
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			exists = false
		} else {
			return domain.Drop{}, err
		}
	}
	decision := domain.Evaluate(exists, d, caller, "", true)
	if decision != domain.Allow {
		return domain.Drop{}, decision.Err()
	}
	return d, nil
}

// List returns the authenticated owner's drops, paginated per opts. Anonymous
// callers never have a list to return.
func (s *Service) List(ctx context.Context, caller domain.Caller, opts store.ListOptions) ([]domain.Drop, int, error) {
	if !caller.Authenticated || caller.Identity == "" || caller.Identity == domain.AnonymousOwner {
		return nil, 0, domain.ErrAuthRequired
	}
	var drops []domain.Drop
	var total int
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		d, t, lErr := tx.List(ctx, caller.Identity, opts)
		if lErr != nil {
			return lErr
		}
		drops, total = d, t
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return drops, total, nil
}

// UpdateDetail partially updates title/description; only the owner may call
// this.
func (s *Service) UpdateDetail(ctx context.Context, slug string, caller domain.Caller, in UpdateDetailInput) (domain.Drop, error) {
	var result domain.Drop
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		drop, err := s.authorizeMutation(ctx, tx, slug, caller)
		if err != nil {
			return err
		}
		title, desc := drop.Title, drop.Description
		if in.Title != nil {
			if vErr := domain.ValidateTitle(*in.Title); vErr != nil {
				return vErr
			}
			title = *in.Title
		}
		if in.Description != nil {
			if vErr := domain.ValidateDescription(*in.Description); vErr != nil {
				return vErr
			}
			desc = *in.Description
		}
		now := s.Clock.Now()
		if uErr := tx.UpdateDetail(ctx, drop.ID, title, desc, now); uErr != nil {
			return uErr
		}
		drop.Title, drop.Description, drop.UpdatedAt = title, desc, now
		result = drop
		return nil
	})
	if err != nil {
		return domain.Drop{}, err
	}
	return result, nil
}

// UpdatePermission flips the private flag; only the owner may call this.
func (s *Service) UpdatePermission(ctx context.Context, slug string, caller domain.Caller, private bool) (domain.Drop, error) {
	var result domain.Drop
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		drop, err := s.authorizeMutation(ctx, tx, slug, caller)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		if uErr := tx.UpdatePermission(ctx, drop.ID, private, now); uErr != nil {
			return uErr
		}
		drop.Private, drop.UpdatedAt = private, now
		result = drop
		return nil
	})
	if err != nil {
		return domain.Drop{}, err
	}
	return result, nil
}

// UpdateFavorite flips the favorite flag without touching updated_at:
// favorite is a personal organizational tag, not a content edit.
func (s *Service) UpdateFavorite(ctx context.Context, slug string, caller domain.Caller, favorite bool) (domain.Drop, error) {
	var result domain.Drop
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		drop, err := s.authorizeMutation(ctx, tx, slug, caller)
		if err != nil {
			return err
		}
		if uErr := tx.UpdateFavorite(ctx, drop.ID, favorite); uErr != nil {
			return uErr
		}
		drop.Favorite = favorite
		result = drop
		return nil
	})
	if err != nil {
		return domain.Drop{}, err
	}
	return result, nil
}

// SetPassphrase sets or rotates the drop's passphrase; only the owner may
// call this. An empty passphrase removes protection.
func (s *Service) SetPassphrase(ctx context.Context, slug string, caller domain.Caller, passphrase string) (domain.Drop, error) {
	var hash string
	if passphrase != "" {
		if err := domain.ValidatePassphrase(passphrase); err != nil {
			return domain.Drop{}, err
		}
		h, err := domain.HashPassphrase(passphrase, s.Argon2)
		if err != nil {
			return domain.Drop{}, err
		}
		hash = h
	}

	var result domain.Drop
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		drop, err := s.authorizeMutation(ctx, tx, slug, caller)
		if err != nil {
			return err
		}
		now := s.Clock.Now()
		if uErr := tx.UpdatePassphrase(ctx, drop.ID, hash, now); uErr != nil {
			return uErr
		}
		drop.PassphraseHash, drop.UpdatedAt = hash, now
		result = drop
		return nil
	})
	if err != nil {
		return domain.Drop{}, err
	}
	return result, nil
}

// RemovePassphrase clears a drop's passphrase; equivalent to SetPassphrase
// with an empty string, kept as a distinct method to mirror the HTTP
// surface's dedicated reset endpoint.
func (s *Service) RemovePassphrase(ctx context.Context, slug string, caller domain.Caller) (domain.Drop, error) {
	return s.SetPassphrase(ctx, slug, caller, "")
}

// Delete removes a drop's metadata row, then best-effort deletes its blob
// after the transaction commits: deleting the DB row first and the blob
// second means a crash between the two leaves an orphan blob that Reconcile
// tolerates, never a dangling reference to a missing blob.
func (s *Service) Delete(ctx context.Context, slug string, caller domain.Caller) error {
	var storageKey string
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		drop, err := s.authorizeMutation(ctx, tx, slug, caller)
		if err != nil {
			return err
		}
		key, dErr := tx.DeleteDrop(ctx, drop.ID)
		if dErr != nil {
			return dErr
		}
		storageKey = key
		return nil
	})
	if err != nil {
		return err
	}
	s.cacheInvalidate(slug)
	_ = s.Blobs.Delete(context.Background(), storageKey)
	s.inc(metrics.DropsDeletedTotal, 1)
	return nil
}

// CheckSlugAvailable is a non-authoritative availability check: a true
// return here is never a guarantee the slug will still be free by the time
// a Create call tries to claim it. Results are kept in a bounded LRU cache
// to spare the index from repeated UI-driven lookups; an entry stays until it
// is evicted or a Create or Delete on that slug in this process removes it.
func (s *Service) CheckSlugAvailable(ctx context.Context, slug string) (bool, error) {
	if err := domain.ValidateSlug(slug, s.ReservedSlugs); err != nil {
		return false, err
	}
	if s.slugCache != nil {
		if taken, ok := s.slugCache.Get(slug); ok {
			return !taken, nil
		}
	}
	var taken bool
	err := s.Meta.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		exists, eErr := tx.SlugExists(ctx, slug)
		if eErr != nil {
			return eErr
		}
		taken = exists
		return nil
	})
	if err != nil {
		return false, err
	}
	if s.slugCache != nil {
		s.slugCache.Add(slug, taken)
	}
	return !taken, nil
}
