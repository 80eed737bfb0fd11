package objectclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

// HTTPClient fetches documents published at plain http(s) URLs.
type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{client: client}
}

func (c *HTTPClient) Load(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &core.FetchError{Locator: locator, Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &core.FetchError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.FetchError{
			Locator:  locator,
			NotFound: resp.StatusCode == http.StatusNotFound,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.FetchError{Locator: locator, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
