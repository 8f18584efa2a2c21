package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vid2doc/internal/logging"
	"vid2doc/internal/queue"
)

const (
	userAgent             = "vid2doc/0.1.0"
	secretHeader          = "X-Webhook-Secret"
	maxRetries            = 3
	defaultRequestTimeout = 20 * time.Second
)

// WebhookConfig is the per-job delivery target.
type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// Notifier delivers terminal job snapshots.
type Notifier interface {
	Notify(ctx context.Context, jobID string, config WebhookConfig) error
}

// snapshot is the payload POSTed to the callback URL.
type snapshot struct {
	JobID    string          `json:"jobId"`
	Status   queue.Status    `json:"status"`
	Progress queue.Progress  `json:"progress"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type store interface {
	GetByID(ctx context.Context, id string) (*queue.Job, error)
}

// Service POSTs job snapshots with bounded retries. Delivery failures after
// the final retry are logged and dropped.
type Service struct {
	store   store
	client  *http.Client
	sleeper func(time.Duration)
	logger  *slog.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithHTTPClient overrides the delivery client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.client = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(s *Service) {
		if sleeper != nil {
			s.sleeper = sleeper
		}
	}
}

// NewService builds a webhook notifier reading snapshots from the job store.
func NewService(jobStore store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	service := &Service{
		store:   jobStore,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		sleeper: time.Sleep,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Notify fetches the job and POSTs its snapshot to the configured URL. Up to
// three retries with exponential backoff follow a failed delivery; after that
// the notification is dropped and only an error is returned.
func (s *Service) Notify(ctx context.Context, jobID string, config WebhookConfig) error {
	if strings.TrimSpace(config.URL) == "" {
		return nil
	}

	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("webhook: load job %s: %w", jobID, err)
	}
	if job == nil {
		return fmt.Errorf("webhook: job %s not found", jobID)
	}

	payload := snapshot{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Error:    job.ErrorMessage,
	}
	if strings.TrimSpace(job.ResultJSON) != "" {
		payload.Result = json.RawMessage(job.ResultJSON)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: encode snapshot: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// 1s, 2s, 4s between attempts.
			delay := time.Duration(1<<(attempt-1)) * time.Second
			s.sleeper(delay)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if lastErr = s.deliver(ctx, config, body); lastErr == nil {
			s.logger.Info("webhook delivered", logging.FieldJobID, jobID, "url", config.URL, "attempt", attempt+1)
			return nil
		}
		s.logger.Warn("webhook delivery failed", logging.FieldJobID, jobID, "url", config.URL, "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("webhook: delivery to %s abandoned after %d attempts: %w", config.URL, maxRetries+1, lastErr)
}

func (s *Service) deliver(ctx context.Context, config WebhookConfig, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if config.Secret != "" {
		req.Header.Set(secretHeader, config.Secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(preview)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
