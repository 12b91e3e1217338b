package httpx

import "net/http"

// handleKeycheck implements GET /api/content/keycheck/{slug}: a
// non-authoritative availability probe used by the UI before upload.
func (h *Handler) handleKeycheck(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	available, err := h.Service.CheckSlugAvailable(r.Context(), slug)
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct {
		Exists bool `json:"exists"`
	}{Exists: !available})
}
