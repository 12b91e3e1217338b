package httpx

import (
	"net/http"
	"strings"

	"github.com/haukened/teledrop/internal/domain"
)

// IdentityResolver resolves the caller identity for a request: the core
// consumes an already-resolved identity from a pluggable verifier.
// Production deployments should supply a JWT/cookie/API-key verifier; this
// package only ships a minimal standalone stub.
type IdentityResolver interface {
	Resolve(r *http.Request) domain.Caller
}

// BearerTokenResolver is a minimal standalone IdentityResolver: every token
// in Tokens maps to a single configured operator identity. It is explicitly
// not a production auth subsystem — no expiry, no revocation, no multi-user
// support (a single configured operator identity is the only supported shape).
type BearerTokenResolver struct {
	// Tokens maps an accepted bearer token to the identity it authenticates.
	Tokens map[string]string
}

// callerFor resolves the caller identity, treating a nil Identity resolver
// as always-anonymous so the handler package works standalone in tests.
func (h *Handler) callerFor(r *http.Request) domain.Caller {
	if h.Identity == nil {
		return domain.Caller{}
	}
	return h.Identity.Resolve(r)
}

// Resolve implements IdentityResolver.
func (b BearerTokenResolver) Resolve(r *http.Request) domain.Caller {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return domain.Caller{}
	}
	token := strings.TrimPrefix(auth, prefix)
	identity, ok := b.Tokens[token]
	if !ok || identity == "" {
		return domain.Caller{}
	}
	return domain.Caller{Authenticated: true, Identity: identity}
}
