package annotation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("speaker 1: hello"))
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"content": "speaker 2: hi"}`))
		case "/bad":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"content": 42}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Load(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL+"/", "secret", srv.Client())
	ctx := context.Background()

	text, err := c.Load(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, "speaker 1: hello", text)

	text, err = c.Load(ctx, "json")
	require.NoError(t, err)
	assert.Equal(t, "speaker 2: hi", text)
}

func TestClient_Load_Errors(t *testing.T) {
	srv := newServer(t)
	c := NewClient(srv.URL, "secret", srv.Client())
	ctx := context.Background()

	_, err := c.Load(ctx, "bad")
	assert.ErrorIs(t, err, core.ErrUpstreamFormat)

	_, err = c.Load(ctx, "missing")
	var fe *core.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.NotFound)

	unauthorized := NewClient(srv.URL, "", srv.Client())
	_, err = unauthorized.Load(ctx, "plain")
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.NotFound)
}

func TestClient_NotConfigured(t *testing.T) {
	_, err := NewClient("", "", nil).Load(context.Background(), "x")
	var fe *core.FetchError
	assert.True(t, errors.As(err, &fe))
}
