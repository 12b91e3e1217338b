package app

import "io"

// CreateInput carries everything needed to create a drop and its one file.
// Slug is nil when the caller wants one auto-generated.
type CreateInput struct {
	Slug        *string
	Title       string
	Description string
	Passphrase  string // empty means not passphrase-protected
	Private     bool
	Favorite    bool
	OwnerID     string // domain.AnonymousOwner if the caller is unauthenticated
	FileName    string
	MediaType   string
	Body        io.Reader
}

// UpdateDetailInput partially updates title/description; nil fields are left
// untouched.
type UpdateDetailInput struct {
	Title       *string
	Description *string
}
