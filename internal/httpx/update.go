package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/haukened/teledrop/internal/app"
)

// detailPayload decodes PATCH /api/content/{slug}/detail's body, accepting
// either JSON or form encoding. Fields absent from the payload
// stay nil so UpdateDetail leaves them untouched.
type detailPayload struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

func decodeDetailPayload(r *http.Request) (detailPayload, error) {
	var p detailPayload
	if isJSON(r) {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return detailPayload{}, err
		}
		return p, nil
	}
	if err := r.ParseForm(); err != nil {
		return detailPayload{}, err
	}
	if v := r.Form.Get("title"); r.Form.Has("title") {
		p.Title = &v
	}
	if v := r.Form.Get("description"); r.Form.Has("description") {
		p.Description = &v
	}
	return p, nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// handleUpdateDetail implements PATCH /api/content/{slug}/detail.
func (h *Handler) handleUpdateDetail(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeDetailPayload(r)
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "invalid request body")
		return
	}
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	drop, sErr := h.Service.UpdateDetail(r.Context(), slug, caller, app.UpdateDetailInput{
		Title:       payload.Title,
		Description: payload.Description,
	})
	if sErr != nil {
		h.mapServiceError(r.Context(), w, sErr)
		return
	}
	h.writeJSON(w, http.StatusOK, drop.ToPublic())
}

// handleUpdatePermission implements PATCH /api/content/{slug}/permission.
func (h *Handler) handleUpdatePermission(w http.ResponseWriter, r *http.Request) {
	private, err := formBool(r, "private")
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "private must be a boolean")
		return
	}
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	drop, sErr := h.Service.UpdatePermission(r.Context(), slug, caller, private)
	if sErr != nil {
		h.mapServiceError(r.Context(), w, sErr)
		return
	}
	h.writeJSON(w, http.StatusOK, drop.ToPublic())
}

// handleUpdateFavorite implements PATCH /api/content/{slug}/favorite.
func (h *Handler) handleUpdateFavorite(w http.ResponseWriter, r *http.Request) {
	favorite, err := formBool(r, "favorite")
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "favorite must be a boolean")
		return
	}
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	drop, sErr := h.Service.UpdateFavorite(r.Context(), slug, caller, favorite)
	if sErr != nil {
		h.mapServiceError(r.Context(), w, sErr)
		return
	}
	h.writeJSON(w, http.StatusOK, drop.ToPublic())
}

// handleSetPassword implements PATCH /api/content/{slug}/password.
func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "invalid form body")
		return
	}
	newPassword := r.Form.Get("new_password")
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	drop, err := h.Service.SetPassphrase(r.Context(), slug, caller, newPassword)
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, drop.ToPublic())
}

// handleResetPassword implements PATCH /api/content/{slug}/reset: removes
// the passphrase entirely.
func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	drop, err := h.Service.RemovePassphrase(r.Context(), slug, caller)
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, drop.ToPublic())
}

func formBool(r *http.Request, field string) (bool, error) {
	if err := r.ParseForm(); err != nil {
		return false, err
	}
	return strconv.ParseBool(r.Form.Get(field))
}
