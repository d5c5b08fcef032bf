// Package chatbot is the HTTP client for the follow-up conversation service
package chatbot

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

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
)

// Config holds the configuration for the chatbot client
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns a Config for a local chatbot service
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8002",
		Timeout: 30 * time.Second,
	}
}

// Client talks to the chatbot service
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates a new chatbot client
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger,
	}
}

// Start opens a conversation about an analysis. firstMessage may be empty.
func (c *Client) Start(ctx context.Context, analysis AnalysisContext, firstMessage string) (*StartResponse, error) {
	req := StartRequest{
		AnalysisContext: analysis,
		FirstMessage:    strings.TrimSpace(firstMessage),
	}

	var resp StartResponse
	if err := c.doRequest(ctx, http.MethodPost, "/chat/start", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, domain.ErrUpstreamResponse.WithError(fmt.Errorf("%w: missing session_id", ErrInvalidResponse))
	}

	c.logger.Debug("chat session started", slog.String("chat_session_id", resp.SessionID))
	return &resp, nil
}

// SendMessage sends one user message and returns the reply
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (*MessageResponse, error) {
	if sessionID == "" {
		return nil, domain.ErrBadRequest.WithError(ErrMissingSession)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrBadRequest.WithError(ErrEmptyMessage)
	}

	var resp MessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/chat/message", MessageRequest{SessionID: sessionID, Message: text}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthCheck reports whether the chatbot service answers its health endpoint
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil) == nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrUpstreamUnavailable.WithError(fmt.Errorf("%w: %v", ErrChatbotUnavailable, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrUpstreamUnavailable.WithError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return domain.ErrUpstreamUnavailable.WithError(
			fmt.Errorf("%w: status %d: %s", ErrChatbotUnavailable, resp.StatusCode, string(respBody)),
		)
	case resp.StatusCode >= 400:
		return domain.ErrBadRequest.WithError(fmt.Errorf("chatbot returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return domain.ErrUpstreamResponse.WithError(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
		}
	}
	return nil
}
