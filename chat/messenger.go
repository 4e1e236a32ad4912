package chat

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var chatLogger = log.With().Str("logger_name", "chat::messenger").Logger()

// HTTPMessenger talks to the chat-platform gateway service. Transient
// HTTP failures are retried with a fixed delay; a message that still
// fails after the attempts are exhausted is logged and dropped, never
// surfaced to the player.
type HTTPMessenger struct {
	baseURL    string
	client     *http.Client
	maxRetries uint32
	retryDelay time.Duration
}

func NewHTTPMessenger(baseURL string, maxRetries uint32, retryDelay time.Duration) *HTTPMessenger {
	return &HTTPMessenger{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

func (m *HTTPMessenger) SendMessage(ctx context.Context, channelID string, content string) error {
	payload := map[string]interface{}{"content": content}
	reqData, err := jsoniter.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "Unable to encode chat message")
	}

	url := fmt.Sprintf("%s/channels/%s/messages", m.baseURL, channelID)
	return m.doWithRetry(ctx, http.MethodPost, url, reqData)
}

func (m *HTTPMessenger) DeleteChannel(ctx context.Context, channelID string) error {
	url := fmt.Sprintf("%s/channels/%s", m.baseURL, channelID)
	return m.doWithRetry(ctx, http.MethodDelete, url, nil)
}

func (m *HTTPMessenger) doWithRetry(ctx context.Context, method string, url string, body []byte) error {
	var lastErr error
	for attempt := uint32(0); attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			chatLogger.Error().Msgf("Error in %s %s: %v. Retrying (%d/%d)", method, url, lastErr, attempt, m.maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return errors.Wrapf(err, "Unable to build %s request to %s", method, url)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := m.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = errors.Errorf("%s %s returned HTTP %d", method, url, resp.StatusCode)
	}
	return lastErr
}

// NopMessenger discards everything. Used when no chat gateway is
// configured and in tests.
type NopMessenger struct{}

func (NopMessenger) SendMessage(ctx context.Context, channelID string, content string) error {
	return nil
}

func (NopMessenger) DeleteChannel(ctx context.Context, channelID string) error {
	return nil
}
