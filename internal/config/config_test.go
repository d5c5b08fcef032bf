package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*Config) bool
	}{
		{
			name: "loads with explicit vars",
			envVars: map[string]string{
				"ENV":              "production",
				"API_BASE_URL":     "https://api.example.com",
				"AI_BASE_URL":      "https://ai.example.com",
				"CHATBOT_BASE_URL": "https://chat.example.com",
				"DETECTION_TOKEN":  "secret123",
				"CAMERA_BACKEND":   "mock",
				"RECONNECT_DELAY":  "2s",
			},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Environment == "production" &&
					c.APIBaseURL == "https://api.example.com" &&
					c.AIBaseURL == "https://ai.example.com" &&
					c.ChatbotBaseURL == "https://chat.example.com" &&
					c.DetectionToken == "secret123" &&
					c.CameraBackend == "mock" &&
					c.ReconnectDelay == 2*time.Second
			},
		},
		{
			name:    "uses defaults when optional vars missing",
			envVars: map[string]string{},
			wantErr: false,
			check: func(c *Config) bool {
				return c.Environment == "development" &&
					c.APIBaseURL == "http://localhost:8000" &&
					c.CameraBackend == "device" &&
					c.MetadataTimeout == 5*time.Second &&
					c.ReconnectDelay == 5*time.Second &&
					c.StabilizeDelay == time.Second &&
					c.SampleInterval == 200*time.Millisecond &&
					c.RelayPort == 8000 &&
					c.FaceProvider == "mock"
			},
		},
		{
			name: "fails on malformed duration",
			envVars: map[string]string{
				"METADATA_TIMEOUT": "soon",
			},
			wantErr: true,
			check:   nil,
		},
		{
			name: "fails on malformed port",
			envVars: map[string]string{
				"RELAY_PORT": "eighty",
			},
			wantErr: true,
			check:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Load() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Load() unexpected error: %v", err)
				return
			}

			if tt.check != nil && !tt.check(cfg) {
				t.Errorf("Load() config check failed, got: %+v", cfg)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"development", "development", true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsDevelopment(); got != tt.want {
				t.Errorf("IsDevelopment() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"production", "production", true},
		{"development", "development", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Environment: tt.env}
			if got := c.IsProduction(); got != tt.want {
				t.Errorf("IsProduction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_DetectionEndpoint(t *testing.T) {
	tests := []struct {
		name         string
		apiBase      string
		detectionURL string
		want         string
		wantErr      bool
	}{
		{"derived from http api", "http://localhost:8000", "", "ws://localhost:8000", false},
		{"derived from https api", "https://api.example.com/", "", "wss://api.example.com", false},
		{"explicit ws url wins", "https://api.example.com", "ws://detector:9000", "ws://detector:9000", false},
		{"explicit https url is converted", "", "https://detect.example.com", "wss://detect.example.com", false},
		{"unsupported scheme", "ftp://example.com", "", "", true},
		{"missing host", "http://", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{APIBaseURL: tt.apiBase, DetectionURL: tt.detectionURL}
			got, err := c.DetectionEndpoint()
			if tt.wantErr {
				if err == nil {
					t.Errorf("DetectionEndpoint() expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectionEndpoint() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectionEndpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}
