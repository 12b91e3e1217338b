package httpx

import "net/http"

// handleDelete implements DELETE /api/content/{slug}. Deletion is owner-only
// regardless of any supplied password: mutating operations short-circuit to
// Forbidden for any non-owner caller.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	if err := h.Service.Delete(r.Context(), slug, caller); err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
