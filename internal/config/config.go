package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	// Upstream services
	APIBaseURL     string `envconfig:"API_BASE_URL" default:"http://localhost:8000"`
	AIBaseURL      string `envconfig:"AI_BASE_URL" default:"http://localhost:8001"`
	ChatbotBaseURL string `envconfig:"CHATBOT_BASE_URL" default:"http://localhost:8002"`

	// Detection channel
	DetectionURL   string `envconfig:"DETECTION_URL"`
	DetectionToken string `envconfig:"DETECTION_TOKEN"`

	// Capture client
	CameraBackend   string        `envconfig:"CAMERA_BACKEND" default:"device"`
	UserAgent       string        `envconfig:"CLIENT_USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64) dermacam/0.1"`
	OutputDir       string        `envconfig:"CAPTURE_OUTPUT_DIR" default:"."`
	MetadataTimeout time.Duration `envconfig:"METADATA_TIMEOUT" default:"5s"`
	ReconnectDelay  time.Duration `envconfig:"RECONNECT_DELAY" default:"5s"`
	StabilizeDelay  time.Duration `envconfig:"STABILIZE_DELAY" default:"1s"`
	SampleInterval  time.Duration `envconfig:"SAMPLE_INTERVAL" default:"200ms"`

	// Detection relay (development server)
	RelayPort    int    `envconfig:"RELAY_PORT" default:"8000"`
	RelayToken   string `envconfig:"RELAY_TOKEN"`
	FaceProvider string `envconfig:"FACE_PROVIDER" default:"mock"`
	DeepFaceURL  string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	AWSRegion    string `envconfig:"AWS_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DetectionEndpoint returns the websocket base URL of the detection service.
// When DETECTION_URL is unset it is derived from API_BASE_URL, mapping
// http to ws and https to wss.
func (c *Config) DetectionEndpoint() (string, error) {
	raw := c.DetectionURL
	if raw == "" {
		raw = c.APIBaseURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse detection url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("detection url %q: unsupported scheme %q", raw, u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("detection url %q: host is required", raw)
	}

	return strings.TrimSuffix(u.String(), "/"), nil
}
