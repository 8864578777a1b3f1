package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/steveyegge/muster/internal/config"
	"github.com/steveyegge/muster/internal/util"
)

// New selects a notifier from configuration: a Webhook when webhook_url is
// set, otherwise Discard.
func New(cfg config.NotifyConfig, logger *slog.Logger) Notifier {
	if cfg.WebhookURL == "" {
		return Discard{}
	}
	var opts []Option
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, WithMaxRetries(cfg.MaxRetries))
	}
	return NewWebhook(cfg.WebhookURL, logger, opts...)
}

// Webhook posts events as JSON to an HTTP endpoint.
type Webhook struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger

	// minInterval spaces consecutive posts; most chat webhooks allow
	// roughly one message per second.
	mu          sync.Mutex
	lastPost    time.Time
	minInterval time.Duration

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ Notifier = (*Webhook)(nil)

// Option configures a Webhook.
type Option func(*Webhook)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) {
		w.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of delivery attempts.
func WithMaxRetries(n int) Option {
	return func(w *Webhook) {
		w.maxRetries = n
	}
}

// WithBackoff sets the initial and maximum backoff durations for retries.
func WithBackoff(initial, max time.Duration) Option {
	return func(w *Webhook) {
		w.initialBackoff = initial
		w.maxBackoff = max
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Webhook) {
		w.httpClient = c
	}
}

// NewWebhook creates a webhook notifier for the given endpoint.
func NewWebhook(url string, logger *slog.Logger, opts ...Option) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		log:            logger.With("component", "notify"),
		minInterval:    time.Second,
		maxRetries:     3,
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Notify posts the event with retry and rate limiting. It returns false on
// any final failure; the error is logged, never propagated.
func (w *Webhook) Notify(ctx context.Context, event Event) bool {
	body, err := json.Marshal(event)
	if err != nil {
		w.log.Error("marshal event", "event", event.Type, "error", err)
		return false
	}

	cfg := util.DefaultRetryConfig()
	cfg.MaxAttempts = w.maxRetries
	cfg.InitialDelay = w.initialBackoff
	cfg.MaxDelay = w.maxBackoff

	_, err = util.Retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, w.post(ctx, body)
	})
	if err != nil {
		w.log.Error("webhook delivery failed",
			"event", event.Type, "agent", event.AgentName, "error", err)
		return false
	}
	return true
}

// post performs a single HTTP POST. Client-side errors other than rate
// limiting are marked permanent so the retry loop stops early.
func (w *Webhook) post(ctx context.Context, body []byte) error {
	w.pace()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return util.MarkPermanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	// Drain a little for error detail; endpoints rarely say much.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rate limited (429): %s", respBody)
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, respBody)
	default:
		return util.MarkPermanent(fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, respBody))
	}
}

// pace enforces the minimum interval between posts.
func (w *Webhook) pace() {
	if w.minInterval <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if elapsed := time.Since(w.lastPost); elapsed < w.minInterval {
		time.Sleep(w.minInterval - elapsed)
	}
	w.lastPost = time.Now()
}
