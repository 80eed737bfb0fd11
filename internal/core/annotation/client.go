// Package annotation loads annotated transcripts from the annotation service.
package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

var _ core.AnnotationLoader = (*Client)(nil)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

type transcript struct {
	Content *string `json:"content"`
}

// Load fetches {baseURL}/{uid}. The body is either the transcript itself or
// a JSON object with a string "content" field.
func (c *Client) Load(ctx context.Context, uid string) (string, error) {
	if c.baseURL == "" {
		return "", &core.FetchError{Locator: uid, Err: fmt.Errorf("annotation service not configured")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(uid), nil)
	if err != nil {
		return "", &core.FetchError{Locator: uid, Err: err}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &core.FetchError{Locator: uid, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &core.FetchError{
			Locator:  uid,
			NotFound: resp.StatusCode == http.StatusNotFound,
			Err:      fmt.Errorf("annotation service returned %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &core.FetchError{Locator: uid, Err: fmt.Errorf("read body: %w", err)}
	}

	if !isJSON(resp.Header.Get("Content-Type"), body) {
		return string(body), nil
	}
	var t transcript
	if err := json.Unmarshal(body, &t); err != nil || t.Content == nil {
		return "", fmt.Errorf("%w: annotation %s has no string content", core.ErrUpstreamFormat, uid)
	}
	return *t.Content, nil
}

func isJSON(contentType string, body []byte) bool {
	if strings.HasPrefix(contentType, "application/json") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("{"))
}
