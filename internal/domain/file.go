// Package domain file.go contains the File entity: the bytes behind a Drop.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// File is the 1:1 companion of a Drop. Name is only ever used as
// the Content-Disposition filename, never as a filesystem path.
type File struct {
	ID          FileID
	DropID      DropID
	Name        string
	MediaType   string
	Size        int64
	ContentHash string // lowercase hex SHA-256 of the blob
	StorageKey  string
}

// StorageKeyFor derives the two-level fan-out storage key from a FileID:
// hex(sha256(file_id))[0:2] + "/" + [2:4] + "/" + [4:].
func StorageKeyFor(id FileID) string {
	sum := sha256.Sum256([]byte(id.String()))
	hexSum := hex.EncodeToString(sum[:])
	return hexSum[0:2] + "/" + hexSum[2:4] + "/" + hexSum[4:]
}
