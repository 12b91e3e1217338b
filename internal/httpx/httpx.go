// Package httpx is the HTTP delivery layer for the Drop engine. It maps
// requests under /api/content to the Drop Lifecycle Coordinator
// (internal/app), decodes and validates form/multipart input, resolves the
// caller identity, and translates domain/store errors into the response
// table below. It performs no business logic of its own.
package httpx

import (
	"context"
	"net/http"

	"github.com/haukened/teledrop/internal/app"
	"github.com/haukened/teledrop/internal/domain"
	"github.com/haukened/teledrop/internal/store"
)

// ServicePort abstracts the subset of app.Service the HTTP layer depends on,
// so handlers can be tested against a fake without spinning up real stores.
type ServicePort interface {
	Create(ctx context.Context, in app.CreateInput) (domain.Drop, error)
	Read(ctx context.Context, slug string, caller domain.Caller, passphrase string) (domain.Drop, error)
	UpdateDetail(ctx context.Context, slug string, caller domain.Caller, in app.UpdateDetailInput) (domain.Drop, error)
	UpdatePermission(ctx context.Context, slug string, caller domain.Caller, private bool) (domain.Drop, error)
	UpdateFavorite(ctx context.Context, slug string, caller domain.Caller, favorite bool) (domain.Drop, error)
	SetPassphrase(ctx context.Context, slug string, caller domain.Caller, passphrase string) (domain.Drop, error)
	RemovePassphrase(ctx context.Context, slug string, caller domain.Caller) (domain.Drop, error)
	Delete(ctx context.Context, slug string, caller domain.Caller) error
	CheckSlugAvailable(ctx context.Context, slug string) (bool, error)
}

// Handler wires HTTP endpoints to the application service and blob store.
// Downloads stream directly from Blobs once a read is authorized, bypassing
// the Coordinator for the byte transfer itself.
type Handler struct {
	Service  ServicePort
	Blobs    store.BlobStore
	Identity IdentityResolver

	MaxBody       int64 // mirrors app.Service.MaxUploadBytes; defense-in-depth
	ChunkBytes    int
	ReservedSlugs map[string]struct{}
	Metrics       Metrics // optional

	Readiness func(context.Context) error // optional readiness probe
}

// Metrics is the minimal observer interface the HTTP layer depends on.
type Metrics interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}

func (h *Handler) inc(name string, n int64) {
	if h.Metrics != nil {
		h.Metrics.Inc(name, n)
	}
}

func (h *Handler) observe(name string, v int64) {
	if h.Metrics != nil {
		h.Metrics.Observe(name, v)
	}
}

// Router constructs the mounted route table, wrapped in correlation-ID and
// security-header middleware.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/content/{$}", h.handleCreate)
	mux.HandleFunc("GET /api/content/keycheck/{slug}", h.handleKeycheck)
	mux.HandleFunc("GET /api/content/{slug}/preview", h.handlePreview)
	mux.HandleFunc("GET /api/content/{slug}", h.handleDownload)
	mux.HandleFunc("PATCH /api/content/{slug}/detail", h.handleUpdateDetail)
	mux.HandleFunc("PATCH /api/content/{slug}/permission", h.handleUpdatePermission)
	mux.HandleFunc("PATCH /api/content/{slug}/favorite", h.handleUpdateFavorite)
	mux.HandleFunc("PATCH /api/content/{slug}/password", h.handleSetPassword)
	mux.HandleFunc("PATCH /api/content/{slug}/reset", h.handleResetPassword)
	mux.HandleFunc("DELETE /api/content/{slug}", h.handleDelete)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	return CorrelationIDMiddleware(h.secureHeaders(mux))
}

// secureHeaders sets a minimal defense-in-depth header set; this API returns
// only JSON and blob streams, so the CSP is simpler than a
// template-rendering surface would need.
func (h *Handler) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Readiness != nil {
		if err := h.Readiness(r.Context()); err != nil {
			h.writeError(r.Context(), w, http.StatusServiceUnavailable, "not_ready", "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
