// Package diagnosis is the HTTP client for the skin lesion analysis service
package diagnosis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
)

const (
	diagnosePath = "/api/diagnose"
	refinePath   = "/api/refine-text"

	maxBackoff = 30 * time.Second
)

// Config holds the configuration for the diagnosis client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// DefaultConfig returns a Config for a local analysis service
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:8001",
		Timeout:    60 * time.Second,
		RetryCount: 2,
	}
}

// Client calls the analysis service
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger
}

// NewClient creates a new diagnosis client
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
		logger: logger,
	}
}

// Diagnose submits an image with optional symptoms and questionnaire answers
func (c *Client) Diagnose(ctx context.Context, req Request) (*Diagnosis, error) {
	body, contentType, err := buildMultipart(req)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	respBody, err := c.doWithRetry(ctx, diagnosePath, contentType, body)
	if err != nil {
		return nil, err
	}

	var raw diagnoseResponse
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, domain.ErrUpstreamResponse.WithError(fmt.Errorf("%w: %v", ErrInvalidResponse, err))
	}

	if raw.PredictedDisease == "" && raw.Result != "" {
		d, ok := parseLegacy(raw.Result)
		if !ok {
			return nil, domain.ErrUpstreamResponse.WithError(fmt.Errorf("%w: no label in legacy result", ErrInvalidResponse))
		}
		c.logger.Debug("parsed legacy diagnosis payload")
		return d, nil
	}

	if raw.PredictedDisease == "" {
		return nil, domain.ErrUpstreamResponse.WithError(fmt.Errorf("%w: missing predicted_disease", ErrInvalidResponse))
	}

	d := &Diagnosis{
		PredictedDisease: raw.PredictedDisease,
		DiseaseCode:      raw.DiseaseCode,
		Confidence:       raw.Confidence,
		Summary:          raw.Summary,
		Recommendation:   raw.Recommendation,
		SimilarDiseases:  raw.SimilarDiseases,
	}
	if d.SimilarDiseases == nil {
		d.SimilarDiseases = []SimilarDisease{}
	}
	return d, nil
}

// Refine asks the service to clean up free text. It returns nil whenever no
// refinement is available, including on any failure.
func (c *Client) Refine(ctx context.Context, text, language string) *string {
	payload, err := json.Marshal(RefineRequest{Text: text, Language: language})
	if err != nil {
		return nil
	}

	respBody, err := c.do(ctx, refinePath, "application/json", payload)
	if err != nil {
		c.logger.Debug("text refinement unavailable", slog.Any("error", err))
		return nil
	}

	var resp RefineResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		c.logger.Debug("text refinement unreadable", slog.Any("error", err))
		return nil
	}
	return resp.RefinedText
}

// calculateBackoff returns 1s, 2s, 4s... for successive attempts
func calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	seconds := 1
	for i := 1; i < attempt && i < 6; i++ {
		seconds *= 2
	}
	return time.Duration(seconds) * time.Second
}

func (c *Client) doWithRetry(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		respBody, err := c.do(ctx, path, contentType, body)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Only server and transport failures are retried
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.clientError() {
			return nil, domain.ErrBadRequest.WithError(err)
		}

		c.logger.Warn("diagnosis request failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}

	return nil, domain.ErrUpstreamUnavailable.WithError(fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr))
}

func (c *Client) do(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func buildMultipart(req Request) ([]byte, string, error) {
	data := req.Image
	contentType := ""
	if len(data) == 0 && req.ImageDataURL != "" {
		var err error
		data, contentType, err = DecodeDataURL(req.ImageDataURL)
		if err != nil {
			return nil, "", err
		}
	}
	if len(data) == 0 {
		return nil, "", ErrNoImage
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	filename := req.Filename
	if filename == "" {
		filename = "capture" + extensionFor(contentType)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}

	if s := strings.TrimSpace(req.Symptoms); s != "" {
		if err := w.WriteField("symptoms", s); err != nil {
			return nil, "", fmt.Errorf("write symptoms: %w", err)
		}
	}

	if len(req.Questionnaire) > 0 {
		answers, err := json.Marshal(req.Questionnaire)
		if err != nil {
			return nil, "", fmt.Errorf("marshal questionnaire: %w", err)
		}
		if err := w.WriteField("questionnaire", string(answers)); err != nil {
			return nil, "", fmt.Errorf("write questionnaire: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// DecodeDataURL decodes "data:<type>;base64,<payload>". A bare base64 string
// is accepted as well.
func DecodeDataURL(s string) ([]byte, string, error) {
	contentType := ""
	payload := s

	if strings.HasPrefix(s, "data:") {
		meta, rest, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, "", ErrInvalidDataURL
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		payload = rest
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, contentType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
