package objectclient

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

var _ core.ObjectLoader = (*Router)(nil)

// Router sends S3 locators to the S3 client and everything else over HTTP.
// Without an S3 client, amazonaws.com URLs are fetched over HTTP as public objects.
type Router struct {
	s3      core.ObjectLoader
	http    core.ObjectLoader
	timeout time.Duration
}

// NewRouter builds a Router. s3 may be nil.
func NewRouter(s3, http core.ObjectLoader, timeout time.Duration) *Router {
	return &Router{s3: s3, http: http, timeout: timeout}
}

func (r *Router) Load(ctx context.Context, locator string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	u, err := url.Parse(locator)
	if err != nil {
		return nil, &core.FetchError{Locator: locator, Err: err}
	}
	_, _, isS3 := parseS3URL(locator)

	switch {
	case isS3 && r.s3 != nil:
		return r.s3.Load(ctx, locator)
	case u.Scheme == "http" || u.Scheme == "https":
		return r.http.Load(ctx, locator)
	case u.Scheme == "s3":
		return nil, &core.FetchError{Locator: locator, Err: fmt.Errorf("s3 storage not configured")}
	default:
		return nil, &core.FetchError{Locator: locator, Err: fmt.Errorf("unsupported url scheme %q", u.Scheme)}
	}
}
