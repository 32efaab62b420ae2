// Package chat delivers home platform chat messages through a webhook.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
)

// ErrChatNotConfigured is returned when no webhook URL is configured
var ErrChatNotConfigured = errors.New("chat: webhook not configured")

const (
	defaultTimeout = 10 * time.Second
	webhookRetries = 1
)

// Poster is the subset of the resilient call client the sender needs
type Poster interface {
	Post(ctx context.Context, rawURL string, body any, opts ...httpclient.CallOption) (*httpclient.Response, error)
}

// WebhookSender posts chat messages to the configured webhook
type WebhookSender struct {
	url     string
	timeout time.Duration
	client  Poster
	logger  *zap.Logger
}

// NewWebhookSender creates a sender. An empty url yields a sender that
// always fails with ErrChatNotConfigured.
func NewWebhookSender(url string, timeout time.Duration, client Poster, logger *zap.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookSender{url: url, timeout: timeout, client: client, logger: logger}
}

// Configured reports whether a webhook URL is set
func (s *WebhookSender) Configured() bool {
	return s.url != ""
}

// SendChatMessage posts req to the webhook
func (s *WebhookSender) SendChatMessage(ctx context.Context, req integration.SendChatMessageRequest) error {
	if !s.Configured() {
		return ErrChatNotConfigured
	}

	resp, err := s.client.Post(ctx, s.url, req,
		httpclient.WithTimeout(s.timeout),
		httpclient.WithMaxRetries(webhookRetries),
	)
	if err != nil {
		return fmt.Errorf("chat webhook: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("chat webhook: %d %s", resp.StatusCode, resp.StatusText)
	}
	s.logger.Debug("Chat message delivered", zap.Bool("send_as_bot", req.SendAsBot))
	return nil
}
