// Package domain drop.go contains the Drop entity and its input validation.
package domain

import "time"

// AnonymousOwner is the sentinel owner_id for drops created without an
// authenticated identity.
const AnonymousOwner = "anonymous"

const (
	TitleMaxLen       = 200
	DescriptionMaxLen = 4096
	PassphraseMinLen  = 1
	PassphraseMaxLen  = 1024
)

// Drop is the primary entity a user names and shares. PassphraseHash
// is the Argon2 verifier; it is never serialized to a public projection.
type Drop struct {
	ID             DropID
	Slug           string
	Title          string
	Description    string
	PassphraseHash string // empty iff not passphrase-protected
	Private        bool
	Favorite       bool
	OwnerID        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	File           File
}

// HasPassphrase reports whether the drop is passphrase-protected.
func (d Drop) HasPassphrase() bool { return d.PassphraseHash != "" }

// IsOwnedBy reports whether identity owns this drop. Anonymous-owned drops
// are never owned by any authenticated identity.
func (d Drop) IsOwnedBy(identity string) bool {
	return identity != "" && identity != AnonymousOwner && d.OwnerID == identity
}

// Public is the client-visible projection of a Drop: no PassphraseHash, no
// raw storage key, only a has_passphrase boolean.
type Public struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Private       bool      `json:"private"`
	Favorite      bool      `json:"favorite"`
	HasPassphrase bool      `json:"has_passphrase"`
	OwnerID       string    `json:"owner_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	FileName      string    `json:"file_name"`
	MediaType     string    `json:"media_type"`
	FileSize      int64     `json:"file_size"`
}

// ToPublic builds the public projection of a Drop.
func (d Drop) ToPublic() Public {
	return Public{
		ID:            d.ID.String(),
		Slug:          d.Slug,
		Title:         d.Title,
		Description:   d.Description,
		Private:       d.Private,
		Favorite:      d.Favorite,
		HasPassphrase: d.HasPassphrase(),
		OwnerID:       d.OwnerID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		FileName:      d.File.Name,
		MediaType:     d.File.MediaType,
		FileSize:      d.File.Size,
	}
}

// ValidateTitle enforces the title length bound.
func ValidateTitle(title string) error {
	if len(title) > TitleMaxLen {
		return ErrValidation
	}
	return nil
}

// ValidateDescription enforces the description length bound.
func ValidateDescription(desc string) error {
	if len(desc) > DescriptionMaxLen {
		return ErrValidation
	}
	return nil
}

// ValidatePassphrase enforces the clear passphrase length bound.
func ValidatePassphrase(passphrase string) error {
	if len(passphrase) < PassphraseMinLen || len(passphrase) > PassphraseMaxLen {
		return ErrValidation
	}
	return nil
}

// ValidateMediaType enforces the declared media type shape: empty, or
// "type/subtype". It does not validate against an
// IANA registry — only the syntactic shape.
func ValidateMediaType(mediaType string) error {
	if mediaType == "" {
		return nil
	}
	slash := -1
	for i := 0; i < len(mediaType); i++ {
		if mediaType[i] == '/' {
			if slash != -1 { // more than one slash
				return ErrValidation
			}
			slash = i
		}
	}
	if slash <= 0 || slash == len(mediaType)-1 {
		return ErrValidation
	}
	return nil
}

// DefaultMediaType is substituted when the uploader supplies none.
const DefaultMediaType = "application/octet-stream"

// NormalizeMediaType substitutes DefaultMediaType when mediaType is empty.
func NormalizeMediaType(mediaType string) string {
	if mediaType == "" {
		return DefaultMediaType
	}
	return mediaType
}
