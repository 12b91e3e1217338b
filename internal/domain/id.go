// Package domain id.go contains the opaque identifiers assigned to Drops and
// Files. Both are UUID-class values; they are never derived from
// user input and are never reused.
package domain

import "github.com/google/uuid"

// DropID is the stable, never-mutated identifier of a Drop.
type DropID string

// FileID is the internal identifier of a File, used only to derive its
// storage key; it is never exposed to clients.
type FileID string

// NewDropID generates a new random DropID.
func NewDropID() DropID { return DropID(uuid.NewString()) }

// NewFileID generates a new random FileID.
func NewFileID() FileID { return FileID(uuid.NewString()) }

// String returns the canonical string form.
func (id DropID) String() string { return string(id) }

// String returns the canonical string form.
func (id FileID) String() string { return string(id) }
