package httpx

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/haukened/teledrop/internal/metrics"
	"github.com/haukened/teledrop/internal/store"
)

// rangeResult is the outcome of resolving a Range header against a blob of
// known size.
type rangeResult struct {
	partial bool
	start   int64
	end     int64 // inclusive
}

var errRangeUnsatisfiable = errors.New("range not satisfiable")

// parseRange implements the single-range subset of RFC 7233: "bytes=S-E",
// "bytes=S-", and "bytes=-N" (suffix length). Multipart ranges and any other
// form are treated as malformed.
func parseRange(header string, size int64) (rangeResult, error) {
	if header == "" {
		return rangeResult{}, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return rangeResult{}, errRangeUnsatisfiable
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return rangeResult{}, errRangeUnsatisfiable
	}
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return rangeResult{}, errRangeUnsatisfiable
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr != "":
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return rangeResult{}, errRangeUnsatisfiable
		}
		if n > size {
			n = size
		}
		start = size - n
		end = size - 1
	case startStr != "" && endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return rangeResult{}, errRangeUnsatisfiable
		}
		start, end = s, size-1
	case startStr != "" && endStr != "":
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s {
			return rangeResult{}, errRangeUnsatisfiable
		}
		start, end = s, e
	default:
		return rangeResult{}, errRangeUnsatisfiable
	}

	if start < 0 || start >= size {
		return rangeResult{}, errRangeUnsatisfiable
	}
	if end > size-1 {
		end = size - 1
	}
	if end < start {
		return rangeResult{}, errRangeUnsatisfiable
	}
	return rangeResult{partial: true, start: start, end: end}, nil
}

// contentDisposition builds a Content-Disposition header using the
// filename*=UTF-8'' form so non-ASCII file names survive (RFC 5987).
func contentDisposition(asAttachment bool, name string) string {
	disposition := "inline"
	if asAttachment {
		disposition = "attachment"
	}
	return fmt.Sprintf("%s; filename*=UTF-8''%s", disposition, url.PathEscape(name))
}

// downloadStatus records a served download's status class. The Metrics
// interface carries no label set, so each class gets its own counter name
// rather than one counter with a status-class label.
func (h *Handler) downloadStatus(status int) {
	switch {
	case status >= 500:
		h.inc(metrics.DownloadsServed5xxTotal, 1)
	case status >= 400:
		h.inc(metrics.DownloadsServed4xxTotal, 1)
	default:
		h.inc(metrics.DownloadsServed2xxTotal, 1)
	}
}

// handleDownload implements GET /api/content/{slug}.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	caller := h.callerFor(r)
	q := r.URL.Query()
	drop, err := h.Service.Read(r.Context(), slug, caller, q.Get("password"))
	if err != nil {
		status := h.mapServiceError(r.Context(), w, err)
		h.downloadStatus(status)
		return
	}

	size := drop.File.Size
	rr, rErr := parseRange(r.Header.Get("Range"), size)
	if rErr != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		h.writeError(r.Context(), w, http.StatusRequestedRangeNotSatisfiable, "RangeNotSatisfiable", "range not satisfiable")
		h.downloadStatus(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	asAttachment, _ := strconv.ParseBool(q.Get("as_attachment"))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", drop.File.MediaType)
	w.Header().Set("Content-Disposition", contentDisposition(asAttachment, drop.File.Name))

	var body io.ReadCloser
	if rr.partial {
		body, err = h.Blobs.ReadRange(r.Context(), drop.File.StorageKey, rr.start, rr.end)
	} else {
		body, err = h.Blobs.Read(r.Context(), drop.File.StorageKey)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(r.Context(), w, http.StatusNotFound, "NotFound", "not found")
			h.downloadStatus(http.StatusNotFound)
			return
		}
		status := h.mapServiceError(r.Context(), w, err)
		h.downloadStatus(status)
		return
	}
	defer body.Close()

	if rr.partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rr.start, rr.end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(rr.end-rr.start+1, 10))
		w.WriteHeader(http.StatusPartialContent)
		h.downloadStatus(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		h.downloadStatus(http.StatusOK)
	}

	h.streamBody(w, r, body)
}

// streamBody copies body to w one chunk at a time, stopping promptly on
// client disconnect so the blob handle is released within one chunk, not
// when the blob ends.
func (h *Handler) streamBody(w http.ResponseWriter, r *http.Request, body io.Reader) {
	chunk := h.ChunkBytes
	if chunk <= 0 {
		chunk = 1 << 20
	}
	buf := make([]byte, chunk)
	flusher, _ := w.(http.Flusher)
	var total int64
	for {
		if r.Context().Err() != nil {
			break
		}
		n, rErr := body.Read(buf)
		if n > 0 {
			if _, wErr := w.Write(buf[:n]); wErr != nil {
				break
			}
			total += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rErr == io.EOF {
			break
		}
		if rErr != nil {
			break
		}
	}
	h.observe(metrics.BytesStreamedTotal, total)
}
