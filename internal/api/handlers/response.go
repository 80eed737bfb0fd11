package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

// Response is the envelope of every API reply. Status mirrors the HTTP code.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: status, Message: message, Data: data})
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, "success", data)
}

// writeError maps domain errors onto status codes and client-safe messages.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, message, nil)
}

func classify(err error) (int, string) {
	var invalid *core.InvalidSplitOptionError
	switch {
	case errors.Is(err, core.ErrDatasetNotFound):
		return http.StatusNotFound, "Dataset not found"
	case errors.Is(err, core.ErrUIDNotFound):
		return http.StatusNotFound, "UID not found in dataset documents"
	case errors.Is(err, core.ErrSegmentNotFound):
		return http.StatusNotFound, "Segment not found"
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.Is(err, core.ErrDuplicateDocument), errors.Is(err, core.ErrEmptyContent):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrDatasetExists), errors.Is(err, core.ErrDocumentBusy):
		return http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrUpstreamFormat):
		return http.StatusInternalServerError, "Unexpected data format from upstream"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, message, nil)
}
