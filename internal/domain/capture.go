package domain

import "time"

// DeviceProfile is the static classification of the running client
type DeviceProfile struct {
	IsMobile       bool `json:"is_mobile"`
	IsTablet       bool `json:"is_tablet"`
	IsDesktop      bool `json:"is_desktop"`
	IsIOS          bool `json:"is_ios"`
	IsAndroid      bool `json:"is_android"`
	SupportsCamera bool `json:"supports_camera"`
}

// CaptureState is the state of the capture state machine
type CaptureState string

const (
	StateIdle      CaptureState = "idle"
	StateStarting  CaptureState = "starting"
	StateStreaming CaptureState = "streaming"
	StateCountdown CaptureState = "countdown"
	StateCaptured  CaptureState = "captured"
	StateError     CaptureState = "error"
	StateStopped   CaptureState = "stopped"
)

// IsLive reports whether the state owns (or is acquiring) camera hardware
func (s CaptureState) IsLive() bool {
	return s == StateStarting || s == StateStreaming || s == StateCountdown
}

// CaptureMode selects how a streaming session produces its photo
type CaptureMode string

const (
	ModeNone          CaptureMode = ""
	ModeAutoDetect    CaptureMode = "auto_detect"
	ModeManualShutter CaptureMode = "manual_shutter"
)

// ChannelState tracks the detection channel connection
type ChannelState string

const (
	ChannelDisconnected ChannelState = "disconnected"
	ChannelConnecting   ChannelState = "connecting"
	ChannelConnected    ChannelState = "connected"
)

// DetectionResult is the latest face-detection verdict from the detection service
type DetectionResult struct {
	Detected        bool    `json:"detected"`
	Confidence      float64 `json:"confidence"`
	FaceCount       int     `json:"face_count"`
	ReadyForCapture bool    `json:"ready_for_capture"`
	Feedback        string  `json:"feedback,omitempty"`
}

// CountdownState is the server-driven auto-capture timer
type CountdownState struct {
	Active    bool `json:"is_active"`
	Remaining int  `json:"remaining"`
	Total     int  `json:"total"`
}

// StartCountdown returns a fresh active countdown of the given duration.
// Non-positive durations are clamped to one second.
func StartCountdown(duration int) CountdownState {
	if duration <= 0 {
		duration = 1
	}
	return CountdownState{Active: true, Remaining: duration, Total: duration}
}

// Tick applies a remaining value reported by the server. Remaining never
// increases while the countdown is active and never exceeds Total.
// The returned bool is false when the tick was ignored.
func (c CountdownState) Tick(remaining int) (CountdownState, bool) {
	if !c.Active {
		return c, false
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > c.Remaining {
		return c, false
	}
	c.Remaining = remaining
	return c, true
}

// Finished reports whether an active countdown has reached zero
func (c CountdownState) Finished() bool {
	return c.Active && c.Remaining == 0
}

// ImageSource records how a CapturedImage was produced
type ImageSource string

const (
	SourceAuto       ImageSource = "auto"
	SourceManual     ImageSource = "manual"
	SourceFileUpload ImageSource = "file_upload"
)

// CapturedImage is the still image chosen for analysis
type CapturedImage struct {
	Data        []byte      `json:"-"`
	ContentType string      `json:"content_type"`
	Source      ImageSource `json:"source"`
	CapturedAt  time.Time   `json:"captured_at"`
}
