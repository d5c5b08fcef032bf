// Package sampler periodically grabs a frame from a live camera, encodes it
// as a JPEG data URL and pushes it to the detection channel.
package sampler

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

const dataURLPrefix = "data:image/jpeg;base64,"

// FrameSource yields the most recent camera frame
type FrameSource interface {
	Frame() (image.Image, error)
}

// Sink accepts encoded frames while it is ready
type Sink interface {
	Ready() bool
	SendFrame(image string) error
}

// Config holds sampler settings
type Config struct {
	Interval time.Duration
	Quality  int
}

// DefaultConfig samples at 5 fps with JPEG quality 80
func DefaultConfig() Config {
	return Config{
		Interval: 200 * time.Millisecond,
		Quality:  80,
	}
}

// Sampler is a running sampling loop. The zero value is not usable; create
// one with Start.
type Sampler struct {
	cfg    Config
	source FrameSource
	sink   Sink
	logger *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	sent int
}

// Start launches the sampling loop. It runs until Stop is called or ctx is
// done.
func Start(ctx context.Context, source FrameSource, sink Sink, cfg Config, logger *slog.Logger) *Sampler {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = defaults.Quality
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Sampler{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.run(ctx)
	return s
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (s *Sampler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(s.cancel)
	<-s.done
}

// Sent returns how many frames were handed to the sink
func (s *Sampler) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	if !s.sink.Ready() {
		return
	}

	img, err := s.source.Frame()
	if err != nil {
		s.logger.Debug("no frame to sample", slog.Any("error", err))
		return
	}

	encoded, err := EncodeDataURL(img, s.cfg.Quality)
	if err != nil {
		s.logger.Warn("failed to encode frame", slog.Any("error", err))
		return
	}

	// Stop may have raced with the encode
	if ctx.Err() != nil {
		return
	}

	if err := s.sink.SendFrame(encoded); err != nil {
		s.logger.Debug("frame not sent", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
}

// EncodeJPEG encodes img as a JPEG of the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeDataURL encodes img as a base64 JPEG data URL
func EncodeDataURL(img image.Image, quality int) (string, error) {
	data, err := EncodeJPEG(img, quality)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}
