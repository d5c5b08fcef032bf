package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"strings"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
)

// DeviceSource opens real cameras through pion/mediadevices. A camera driver
// must be registered by the binary (blank import of
// github.com/pion/mediadevices/pkg/driver/camera).
type DeviceSource struct {
	logger *slog.Logger
}

// NewDeviceSource creates a Source backed by the registered camera drivers
func NewDeviceSource(logger *slog.Logger) *DeviceSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceSource{logger: logger}
}

// HasVideoInput reports whether any camera driver is registered
func (s *DeviceSource) HasVideoInput() bool {
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.VideoInput {
			return true
		}
	}
	return false
}

type userMediaResult struct {
	stream mediadevices.MediaStream
	err    error
}

// Open requests a video stream matching constraints. mediadevices has no
// notion of facing mode, so only the resolution is forwarded to the driver.
func (s *DeviceSource) Open(ctx context.Context, c Constraints) (Stream, error) {
	resultCh := make(chan userMediaResult, 1)

	go func() {
		ms, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(m *mediadevices.MediaTrackConstraints) {
				m.Width = prop.IntRanged{Min: c.MinWidth, Ideal: c.IdealWidth}
				m.Height = prop.IntRanged{Min: c.MinHeight, Ideal: c.IdealHeight}
			},
		})
		resultCh <- userMediaResult{stream: ms, err: err}
	}()

	var result userMediaResult
	select {
	case result = <-resultCh:
	case <-ctx.Done():
		// The driver may still hand us a stream later; make sure it is closed
		go func() {
			late := <-resultCh
			if late.err == nil {
				closeMediaTracks(late.stream.GetTracks(), s.logger)
			}
		}()
		return nil, ctx.Err()
	}

	if result.err != nil {
		return nil, s.translateError(result.err)
	}

	videoTracks := result.stream.GetVideoTracks()
	if len(videoTracks) == 0 {
		closeMediaTracks(result.stream.GetTracks(), s.logger)
		return nil, ErrDeviceNotFound
	}

	video, ok := videoTracks[0].(*mediadevices.VideoTrack)
	if !ok {
		closeMediaTracks(result.stream.GetTracks(), s.logger)
		return nil, fmt.Errorf("unexpected video track type %T", videoTracks[0])
	}

	tracks := make([]Track, 0, len(result.stream.GetTracks()))
	for _, t := range result.stream.GetTracks() {
		tracks = append(tracks, &deviceTrack{track: t})
	}

	stream := &deviceStream{
		tracks: tracks,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	go stream.readLoop(video)

	return stream, nil
}

func (s *DeviceSource) translateError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "failed to find the best driver") {
		if !s.HasVideoInput() {
			return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		return fmt.Errorf("%w: %v", ErrOverconstrained, err)
	}
	return err
}

func closeMediaTracks(tracks []mediadevices.Track, logger *slog.Logger) {
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			logger.Warn("failed to close media track", slog.String("track_id", t.ID()), slog.Any("error", err))
		}
	}
}

type deviceTrack struct {
	once  sync.Once
	track mediadevices.Track
	err   error
}

func (t *deviceTrack) ID() string {
	return t.track.ID()
}

func (t *deviceTrack) Stop() error {
	t.once.Do(func() {
		t.err = t.track.Close()
	})
	return t.err
}

// deviceStream keeps the latest decoded frame, the way a video element
// always shows the newest picture
type deviceStream struct {
	tracks []Track
	logger *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}

	mu     sync.RWMutex
	latest *image.RGBA
	err    error
}

func (s *deviceStream) readLoop(video *mediadevices.VideoTrack) {
	defer close(s.done)

	reader := video.NewReader(false)

	for {
		img, release, err := reader.Read()
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.readyOnce.Do(func() { close(s.ready) })
			s.logger.Debug("video reader stopped", slog.Any("error", err))
			return
		}

		frame := cloneRGBA(img)
		release()

		s.mu.Lock()
		s.latest = frame
		s.mu.Unlock()

		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *deviceStream) Tracks() []Track {
	return s.tracks
}

func (s *deviceStream) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil && s.err != nil {
		return s.err
	}
	return nil
}

func (s *deviceStream) Play() error {
	return nil
}

func (s *deviceStream) Done() <-chan struct{} {
	return s.done
}

func (s *deviceStream) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *deviceStream) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.latest == nil {
		if s.err != nil {
			return nil, errors.Join(ErrNoFrame, s.err)
		}
		return nil, ErrNoFrame
	}
	return s.latest, nil
}

func cloneRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
