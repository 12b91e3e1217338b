// Package sqlite implements the store.MetadataStore port on top of SQLite,
// using a two-table (drops, files) schema.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Import SQLite3 driver for database/sql.
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/haukened/teledrop/internal/domain"
	"github.com/haukened/teledrop/internal/store"
)

// Ensure MetadataStore implements store.MetadataStore.
var _ store.MetadataStore = (*MetadataStore)(nil)

// MetadataStore implements store.MetadataStore using SQLite.
type MetadataStore struct {
	db *sql.DB
}

// New returns a new SQLite-backed MetadataStore. The caller provides a
// configured *sql.DB (WAL, busy timeout, foreign keys); schema creation is
// performed if necessary.
func New(db *sql.DB) (*MetadataStore, error) {
	m := &MetadataStore{db: db}
	if err := m.init(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MetadataStore) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS drops (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	passphrase_hash TEXT NOT NULL DEFAULT '',
	private INTEGER NOT NULL DEFAULT 0,
	favorite INTEGER NOT NULL DEFAULT 0,
	owner_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS files (
	id TEXT PRIMARY KEY,
	drop_id TEXT NOT NULL UNIQUE REFERENCES drops(id),
	name TEXT NOT NULL,
	media_type TEXT NOT NULL,
	size INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drops_owner ON drops(owner_id);
`
	_, err := m.db.Exec(schema)
	return err
}

// WithTx implements store.MetadataStore.
func (m *MetadataStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txw := &txWrapper{tx: sqlTx}
	if err := fn(ctx, txw); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

type txWrapper struct {
	tx *sql.Tx
}

var _ store.Tx = (*txWrapper)(nil)

func (t *txWrapper) InsertDrop(ctx context.Context, d domain.Drop) error {
	const q = `INSERT INTO drops (id, slug, title, description, passphrase_hash, private, favorite, owner_id, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`
	_, err := t.tx.ExecContext(ctx, q,
		d.ID.String(), d.Slug, d.Title, d.Description, d.PassphraseHash,
		boolToInt(d.Private), boolToInt(d.Favorite), d.OwnerID,
		d.CreatedAt.Unix(), d.UpdatedAt.Unix())
	if isUniqueConstraint(err) {
		return store.ErrSlugConflict
	}
	return err
}

func (t *txWrapper) InsertFile(ctx context.Context, f domain.File) error {
	const q = `INSERT INTO files (id, drop_id, name, media_type, size, content_hash, storage_key, created_at)
VALUES (?,?,?,?,?,?,?,?)`
	_, err := t.tx.ExecContext(ctx, q,
		f.ID.String(), f.DropID.String(), f.Name, f.MediaType, f.Size, f.ContentHash, f.StorageKey, time.Now().UTC().Unix())
	return err
}

const selectDropWithFile = `
SELECT d.id, d.slug, d.title, d.description, d.passphrase_hash, d.private, d.favorite, d.owner_id, d.created_at, d.updated_at,
       f.id, f.name, f.media_type, f.size, f.content_hash, f.storage_key
FROM drops d JOIN files f ON f.drop_id = d.id
WHERE %s`

func scanDrop(row interface{ Scan(...any) error }) (domain.Drop, error) {
	var d domain.Drop
	var f domain.File
	var dID, fID, fDropID string
	var createdAt, updatedAt int64
	var private, favorite int
	err := row.Scan(&dID, &d.Slug, &d.Title, &d.Description, &d.PassphraseHash, &private, &favorite, &d.OwnerID, &createdAt, &updatedAt,
		&fID, &f.Name, &f.MediaType, &f.Size, &f.ContentHash, &f.StorageKey)
	if err != nil {
		return domain.Drop{}, err
	}
	d.ID = domain.DropID(dID)
	d.Private = private != 0
	d.Favorite = favorite != 0
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	f.ID = domain.FileID(fID)
	f.DropID = domain.DropID(fDropID)
	d.File = f
	d.File.DropID = d.ID
	return d, nil
}

func (t *txWrapper) GetBySlug(ctx context.Context, slug string) (domain.Drop, error) {
	q := fmt.Sprintf(selectDropWithFile, "d.slug = ?")
	row := t.tx.QueryRowContext(ctx, q, slug)
	d, err := scanDrop(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Drop{}, store.ErrNotFound
		}
		return domain.Drop{}, err
	}
	return d, nil
}

func (t *txWrapper) UpdateDetail(ctx context.Context, id domain.DropID, title, description string, updatedAt time.Time) error {
	const q = `UPDATE drops SET title=?, description=?, updated_at=? WHERE id=?`
	res, err := t.tx.ExecContext(ctx, q, title, description, updatedAt.Unix(), id.String())
	return checkRowsAffected(res, err)
}

func (t *txWrapper) UpdatePermission(ctx context.Context, id domain.DropID, private bool, updatedAt time.Time) error {
	const q = `UPDATE drops SET private=?, updated_at=? WHERE id=?`
	res, err := t.tx.ExecContext(ctx, q, boolToInt(private), updatedAt.Unix(), id.String())
	return checkRowsAffected(res, err)
}

func (t *txWrapper) UpdateFavorite(ctx context.Context, id domain.DropID, favorite bool) error {
	const q = `UPDATE drops SET favorite=? WHERE id=?`
	res, err := t.tx.ExecContext(ctx, q, boolToInt(favorite), id.String())
	return checkRowsAffected(res, err)
}

func (t *txWrapper) UpdatePassphrase(ctx context.Context, id domain.DropID, passphraseHash string, updatedAt time.Time) error {
	const q = `UPDATE drops SET passphrase_hash=?, updated_at=? WHERE id=?`
	res, err := t.tx.ExecContext(ctx, q, passphraseHash, updatedAt.Unix(), id.String())
	return checkRowsAffected(res, err)
}

func (t *txWrapper) DeleteDrop(ctx context.Context, id domain.DropID) (string, error) {
	var storageKey string
	row := t.tx.QueryRowContext(ctx, `SELECT storage_key FROM files WHERE drop_id=?`, id.String())
	if err := row.Scan(&storageKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM files WHERE drop_id=?`, id.String()); err != nil {
		return "", err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM drops WHERE id=?`, id.String())
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", store.ErrNotFound
	}
	return storageKey, nil
}

func (t *txWrapper) SlugExists(ctx context.Context, slug string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM drops WHERE slug=? LIMIT 1`, slug).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *txWrapper) List(ctx context.Context, ownerID string, opts store.ListOptions) ([]domain.Drop, int, error) {
	orderCol := "d.created_at"
	switch opts.SortKey {
	case store.SortByTitle:
		orderCol = "d.title"
	case store.SortBySize:
		orderCol = "f.size"
	case store.SortByCreatedAt, "":
		orderCol = "d.created_at"
	}
	orderDir := "ASC"
	if opts.Order == store.OrderDesc {
		orderDir = "DESC"
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	var total int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM drops WHERE owner_id=?`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := strings.Replace(selectDropWithFile, "WHERE %s", "WHERE d.owner_id = ? ORDER BY "+orderCol+" "+orderDir+" LIMIT ? OFFSET ?", 1)
	rows, err := t.tx.QueryContext(ctx, q, ownerID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Drop
	for rows.Next() {
		d, err := scanDrop(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (t *txWrapper) ListStorageKeys(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT storage_key FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// isUniqueConstraint reports whether err is a SQLite UNIQUE constraint
// violation, regardless of which unique index triggered it. It checks the
// extended error code specifically, not the primary ErrConstraint code,
// which also covers NOT NULL/CHECK/foreign-key violations.
func isUniqueConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
