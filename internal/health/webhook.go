package health

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/core"
)

const EventHealth = "service_health"

type WebhookPayload struct {
	Event     string              `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
	Data      core.HealthSnapshot `json:"data"`
	Signature string              `json:"signature,omitempty"`
}

type WebhookConfig struct {
	URL        string
	Secret     string
	RetryCount int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// WebhookSink posts each snapshot to a URL. The signature is an HMAC-SHA256
// of the JSON encoded snapshot keyed by the shared secret.
type WebhookSink struct {
	url        string
	secret     string
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewWebhookSink(config WebhookConfig, logger *zap.Logger) *WebhookSink {
	if config.RetryCount <= 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookSink{
		url:    config.URL,
		secret: config.Secret,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retryCount: config.RetryCount,
		retryDelay: config.RetryDelay,
		logger:     logger,
		now:        time.Now,
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %d", e.code)
}

func (s *WebhookSink) Publish(ctx context.Context, snapshot core.HealthSnapshot) error {
	payload := &WebhookPayload{
		Event:     EventHealth,
		Timestamp: s.now(),
		Data:      snapshot,
	}

	var lastErr error
	for attempt := 1; attempt <= s.retryCount; attempt++ {
		err := s.sendRequest(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err

		if isClientError(err) {
			s.logger.Warn("health webhook rejected, not retrying", zap.String("url", s.url), zap.Error(err))
			return err
		}

		if attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(attempt-1))
			s.logger.Debug("health webhook retry",
				zap.Int("attempt", attempt),
				zap.Int("max", s.retryCount),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *WebhookSink) sendRequest(ctx context.Context, payload *WebhookPayload) error {
	dataBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	if s.secret != "" {
		payload.Signature = Sign(dataBytes, s.secret)
	}

	fullPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", payload.Signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}

	return nil
}

func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}
