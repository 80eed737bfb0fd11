package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/services"
)

const defaultPageLimit = 10

type SegmentHandler struct {
	svc *services.SegmentService
	log zerolog.Logger
}

func NewSegmentHandler(svc *services.SegmentService, log zerolog.Logger) *SegmentHandler {
	return &SegmentHandler{svc: svc, log: log}
}

type segmentRequest struct {
	Content *string `json:"content"`
}

// ListSegments serves ?offset=&limit=&query= over one document's segments.
func (h *SegmentHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, ok := intParam(q, "offset", 0)
	if !ok {
		badRequest(w, "offset must be an integer")
		return
	}
	limit, ok := intParam(q, "limit", defaultPageLimit)
	if !ok {
		badRequest(w, "limit must be an integer")
		return
	}

	uid, ok := pathParam(r, "uid")
	if !ok {
		badRequest(w, "invalid document uid")
		return
	}

	page, err := h.svc.List(r.Context(), chi.URLParam(r, "id"), uid, offset, limit, q.Get("query"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeOK(w, page)
}

func (h *SegmentHandler) AddSegment(w http.ResponseWriter, r *http.Request) {
	uid, ok := pathParam(r, "uid")
	if !ok {
		badRequest(w, "invalid document uid")
		return
	}
	content, ok := decodeContent(w, r)
	if !ok {
		return
	}
	seg, err := h.svc.Add(r.Context(), chi.URLParam(r, "id"), uid, content)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeOK(w, seg)
}

// UpdateSegment edits a segment in place; empty content deletes it. The
// segment id is the rest of the path, percent-encoded by the client.
func (h *SegmentHandler) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	segmentID, ok := pathParam(r, "*")
	if !ok || segmentID == "" {
		badRequest(w, "invalid segment id")
		return
	}
	uid, ok := pathParam(r, "uid")
	if !ok {
		badRequest(w, "invalid document uid")
		return
	}
	content, ok := decodeContent(w, r)
	if !ok {
		return
	}

	seg, err := h.svc.Edit(r.Context(), chi.URLParam(r, "id"), uid, segmentID, content)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if seg == nil {
		writeOK(w, nil)
		return
	}
	writeOK(w, seg)
}

// pathParam unescapes a route parameter. chi matches on the raw path when the
// client percent-encoded it, so ids with slashes arrive encoded.
func pathParam(r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	return v, err == nil
}

func decodeContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return "", false
	}
	if req.Content == nil {
		badRequest(w, "content is required")
		return "", false
	}
	return *req.Content, true
}

func intParam(q url.Values, key string, def int) (int, bool) {
	raw := q.Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
