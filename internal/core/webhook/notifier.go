// Package webhook reports dataset status changes to an external endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/contexta-datasets/internal/core"
)

const (
	defaultAttempts = 3
	defaultDelay    = 2 * time.Second
)

var _ core.StatusNotifier = (*Notifier)(nil)

type statusData struct {
	DatasetID string `json:"api_dataset_id"`
	Status    int    `json:"status"`
}

type statusRequest struct {
	Status int        `json:"status"`
	Data   statusData `json:"data"`
}

// Notifier POSTs status updates, retrying a fixed number of times.
type Notifier struct {
	url      string
	http     *http.Client
	attempts int
	delay    time.Duration
	log      zerolog.Logger
}

type Option func(*Notifier)

// WithRetry overrides the attempt count and the delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(n *Notifier) {
		n.attempts = attempts
		n.delay = delay
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.http = c }
}

func NewNotifier(url string, log zerolog.Logger, opts ...Option) *Notifier {
	n := &Notifier{url: url, http: http.DefaultClient, attempts: defaultAttempts, delay: defaultDelay, log: log}
	for _, o := range opts {
		o(n)
	}
	if n.attempts < 1 {
		n.attempts = 1
	}
	return n
}

func (n *Notifier) UpdateStatus(ctx context.Context, datasetID string, status int) error {
	payload, err := json.Marshal(statusRequest{
		Status: status,
		Data:   statusData{DatasetID: datasetID, Status: status},
	})
	if err != nil {
		return err
	}

	n.log.Info().Str("dataset_id", datasetID).Int("status", status).Msg("updating dataset status")

	attempt := 0
	op := func() error {
		attempt++
		return n.post(ctx, payload)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(n.delay), uint64(n.attempts-1)),
		ctx,
	)
	return backoff.RetryNotify(op, policy, func(err error, _ time.Duration) {
		n.log.Warn().Err(err).Int("attempt", attempt).Str("dataset_id", datasetID).Msg("status webhook failed")
	})
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Noop discards status updates when no webhook is configured.
type Noop struct{}

func (Noop) UpdateStatus(context.Context, string, int) error { return nil }
