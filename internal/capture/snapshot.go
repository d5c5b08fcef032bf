package capture

import "github.com/saturnino-fabrica-de-software/dermalens/internal/domain"

// Snapshot is a copy of the controller state for rendering
type Snapshot struct {
	State        domain.CaptureState    `json:"state"`
	Mode         domain.CaptureMode     `json:"mode,omitempty"`
	Profile      domain.DeviceProfile   `json:"profile"`
	SessionID    string                 `json:"session_id,omitempty"`
	ChannelState domain.ChannelState    `json:"channel_state"`
	Detection    domain.DetectionResult `json:"detection"`
	Countdown    domain.CountdownState  `json:"countdown"`
	Image        *domain.CapturedImage  `json:"image,omitempty"`

	// Error is the user-facing reason for the error state
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`

	// Notice is a non-fatal message, such as a lost detection service
	Notice string `json:"notice,omitempty"`

	CameraOpen        bool `json:"camera_open"`
	ChannelOpen       bool `json:"channel_open"`
	SamplerRunning    bool `json:"sampler_running"`
	ReconnectPending  bool `json:"reconnect_pending"`
	ReconnectAttempts int  `json:"reconnect_attempts"`
}
