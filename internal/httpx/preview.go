package httpx

import "net/http"

// handlePreview implements GET /api/content/{slug}/preview.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	drop, err := h.Service.Read(r.Context(), slug, caller, r.URL.Query().Get("password"))
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, drop.ToPublic())
}
