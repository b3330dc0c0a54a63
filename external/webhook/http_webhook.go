package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/mixerd/internal/webhook"
)

const (
	eventHeader        = "X-Mixerd-Event"
	deliveryHeader     = "X-Mixerd-Delivery"
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
	requestTimeout     = 10 * time.Second
)

// HTTPSender posts mixer events as JSON. Network errors and 5xx answers are
// retried with a doubling backoff; other non-2xx answers fail at once.
type HTTPSender struct {
	webhookURL  string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
}

type Option func(*HTTPSender)

func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *HTTPSender) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		s.backoff = backoff
	}
}

func NewHTTPSender(webhookURL string, opts ...Option) *HTTPSender {
	s := &HTTPSender{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: requestTimeout},
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSender) SendMixerClosed(ctx context.Context, payload webhook.MixerClosedPayload) error {
	if s.webhookURL == "" {
		return nil
	}
	payload.Event = webhook.EventMixerClosed
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.deliver(ctx, webhook.EventMixerClosed, payload.MixerID, body)
}

func (s *HTTPSender) deliver(ctx context.Context, event, deliveryID string, body []byte) error {
	wait := s.backoff
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		retryable, err := s.post(ctx, event, deliveryID, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || attempt == s.maxAttempts {
			break
		}
		slog.Warn("webhook delivery failed; retrying", "event", event, "mixer_id", deliveryID, "attempt", attempt, "error", err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("webhook delivery canceled: %w", ctx.Err())
		}
		wait *= 2
	}
	return lastErr
}

func (s *HTTPSender) post(ctx context.Context, event, deliveryID string, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(eventHeader, event)
	req.Header.Set(deliveryHeader, deliveryID)
	resp, err := s.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if isHTTPSuccessStatus(resp.StatusCode) {
		return false, nil
	}
	return resp.StatusCode >= http.StatusInternalServerError, fmt.Errorf("webhook returned status %d", resp.StatusCode)
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
