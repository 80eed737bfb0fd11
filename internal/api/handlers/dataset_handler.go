package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/models"
	"github.com/markdave123-py/contexta-datasets/internal/services"
)

const defaultQueryLimit = 5

type DatasetHandler struct {
	svc *services.DatasetService
	log zerolog.Logger
}

func NewDatasetHandler(svc *services.DatasetService, log zerolog.Logger) *DatasetHandler {
	return &DatasetHandler{svc: svc, log: log}
}

type datasetRequest struct {
	Documents []models.Document `json:"documents"`
}

type queryRequest struct {
	Content string `json:"content"`
	Limit   *int   `json:"limit"`
}

// CreateDataset stores a new dataset and schedules its ingestion.
func (h *DatasetHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ds, err := h.svc.Create(r.Context(), req.Documents)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeOK(w, map[string]string{"id": ds.ID})
}

func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeOK(w, ds)
}

// UpdateDataset replaces the document list. With ?preview=N&uid=U it instead
// returns the first N segments of document U without persisting anything.
func (h *DatasetHandler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req datasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if raw := r.URL.Query().Get("preview"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "preview must be a non-negative integer")
			return
		}
		uid := r.URL.Query().Get("uid")
		if uid == "" {
			badRequest(w, "uid is required for preview")
			return
		}

		segments, err := h.svc.Preview(r.Context(), id, uid, req.Documents, n)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		writeOK(w, map[string]any{"segments": segments})
		return
	}

	if err := h.svc.Update(r.Context(), id, req.Documents); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

func (h *DatasetHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeOK(w, nil)
}

// QueryDataset ranks the dataset's segments against a free-text query.
func (h *DatasetHandler) QueryDataset(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	limit := defaultQueryLimit
	if req.Limit != nil {
		limit = *req.Limit
	}

	hits, err := h.svc.Query(r.Context(), chi.URLParam(r, "id"), req.Content, limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeOK(w, map[string]any{"query": hits})
}
