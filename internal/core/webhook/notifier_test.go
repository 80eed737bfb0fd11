package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_Payload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, zerolog.Nop(), WithHTTPClient(srv.Client()))
	require.NoError(t, n.UpdateStatus(context.Background(), "d1", 2))

	assert.Equal(t, float64(2), got["status"])
	assert.Equal(t, map[string]any{"api_dataset_id": "d1", "status": float64(2)}, got["data"])
}

func TestNotifier_RetriesThreeTimes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, zerolog.Nop(), WithHTTPClient(srv.Client()), WithRetry(3, time.Millisecond))
	err := n.UpdateStatus(context.Background(), "d1", 0)

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifier_RecoversAfterFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, zerolog.Nop(), WithHTTPClient(srv.Client()), WithRetry(3, time.Millisecond))
	require.NoError(t, n.UpdateStatus(context.Background(), "d1", 0))
	assert.Equal(t, int32(2), calls.Load())
}
