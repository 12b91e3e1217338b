package httpx

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/haukened/teledrop/internal/app"
	"github.com/haukened/teledrop/internal/domain"
)

var validate = validator.New()

// createFields are the non-file multipart fields of POST `/`.
// They are validated before the file part is ever read, so a malformed
// request never opens a Blob Store write.
type createFields struct {
	Slug        string `validate:"omitempty,min=4,max=64"`
	Title       string `validate:"max=200"`
	Description string `validate:"max=4096"`
	Password    string `validate:"omitempty,max=1024"`
	Private     bool
	Favorite    bool
}

// handleCreate implements POST /api/content/. It streams the "file" part
// straight into the Coordinator without buffering it whole, so memory use
// stays O(chunk size) regardless of upload size.
// Field parts MUST precede the file part in the multipart body.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if h.MaxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "expected multipart/form-data")
		return
	}

	var fields createFields
	var filePart *multipart.Part
	var fileName, mediaType string
	for {
		part, pErr := mr.NextPart()
		if pErr == io.EOF {
			break
		}
		if pErr != nil {
			h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "malformed multipart body")
			return
		}
		switch part.FormName() {
		case "file":
			filePart = part
			fileName = part.FileName()
			mediaType = part.Header.Get("Content-Type")
		case "slug":
			fields.Slug = readPartString(part)
		case "title":
			fields.Title = readPartString(part)
		case "description":
			fields.Description = readPartString(part)
		case "password":
			fields.Password = readPartString(part)
		case "private":
			fields.Private, _ = strconv.ParseBool(readPartString(part))
		case "favorite":
			fields.Favorite, _ = strconv.ParseBool(readPartString(part))
		default:
			_ = part.Close()
		}
		if filePart != nil {
			break
		}
	}
	if filePart == nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "missing required field: file")
		return
	}
	defer filePart.Close()

	if err := validate.Struct(fields); err != nil {
		h.writeError(r.Context(), w, http.StatusBadRequest, "ValidationError", "invalid field")
		return
	}
	if fields.Slug != "" {
		if vErr := domain.ValidateSlug(fields.Slug, h.ReservedSlugs); vErr != nil {
			h.writeError(r.Context(), w, http.StatusBadRequest, "SlugInvalid", "slug invalid")
			return
		}
	}

	in := app.CreateInput{
		Title:       fields.Title,
		Description: fields.Description,
		Passphrase:  fields.Password,
		Private:     fields.Private,
		Favorite:    fields.Favorite,
		FileName:    fileName,
		MediaType:   mediaType,
		Body:        filePart,
	}
	if fields.Slug != "" {
		in.Slug = &fields.Slug
	}
	if caller := h.callerFor(r); caller.Authenticated {
		in.OwnerID = caller.Identity
	}

	drop, err := h.Service.Create(r.Context(), in)
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, drop.ToPublic())
}

func readPartString(part *multipart.Part) string {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, 8192))
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return string(b)
}
