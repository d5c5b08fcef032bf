package ws

import "time"

// Config tunes the detection sessions served by the hub
type Config struct {
	// ReadyFrames is how many consecutive ready frames start the countdown
	ReadyFrames int
	// CountdownSeconds is the countdown length announced in countdown_started
	CountdownSeconds int
	TickInterval     time.Duration
	PingInterval     time.Duration
	DetectTimeout    time.Duration
	WriteTimeout     time.Duration

	// MinConfidence, MinFaceArea and CenterMargin gate ready_for_capture.
	// Area and margin are fractions of the frame.
	MinConfidence float64
	MinFaceArea   float64
	CenterMargin  float64

	MaxFrameBytes int64
}

// DefaultConfig returns the settings the capture client is tuned for
func DefaultConfig() Config {
	return Config{
		ReadyFrames:      3,
		CountdownSeconds: 3,
		TickInterval:     time.Second,
		PingInterval:     20 * time.Second,
		DetectTimeout:    5 * time.Second,
		WriteTimeout:     10 * time.Second,
		MinConfidence:    0.8,
		MinFaceArea:      0.04,
		CenterMargin:     0.2,
		MaxFrameBytes:    4 << 20,
	}
}

// WithDefaults fills every unset field from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ReadyFrames <= 0 {
		c.ReadyFrames = d.ReadyFrames
	}
	if c.CountdownSeconds <= 0 {
		c.CountdownSeconds = d.CountdownSeconds
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.DetectTimeout <= 0 {
		c.DetectTimeout = d.DetectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.MinFaceArea <= 0 {
		c.MinFaceArea = d.MinFaceArea
	}
	if c.CenterMargin <= 0 {
		c.CenterMargin = d.CenterMargin
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = d.MaxFrameBytes
	}
	return c
}
