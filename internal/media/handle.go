package media

import (
	"image"
	"log/slog"
	"sync"
)

// Handle owns one live camera stream. Every track is stopped individually
// when the handle is released; release is idempotent.
type Handle struct {
	mu      sync.Mutex
	stream  Stream
	tracks  []Track
	stopped bool
	logger  *slog.Logger

	// origin outlives release so Done and Err keep answering
	origin Stream
}

func newHandle(stream Stream, logger *slog.Logger) *Handle {
	return &Handle{
		stream: stream,
		tracks: stream.Tracks(),
		logger: logger,
		origin: stream,
	}
}

// Done is closed when the underlying stream ends. Releasing the handle ends
// the stream too, so callers that only care about device loss must check
// Stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.origin.Done()
}

// Err reports why the stream ended
func (h *Handle) Err() error {
	return h.origin.Err()
}

// Frame returns the current frame of the attached sink
func (h *Handle) Frame() (image.Image, error) {
	h.mu.Lock()
	stream := h.stream
	h.mu.Unlock()

	if stream == nil {
		return nil, ErrHandleStopped
	}
	return stream.Frame()
}

// Stopped reports whether the handle has been released
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// TrackCount returns the number of tracks the handle still owns
func (h *Handle) TrackCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tracks)
}

func (h *Handle) release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.stopped = true

	for _, track := range h.tracks {
		if err := track.Stop(); err != nil {
			h.logger.Warn("failed to stop media track",
				slog.String("track_id", track.ID()),
				slog.Any("error", err),
			)
		}
	}

	// Detach the sink
	h.tracks = nil
	h.stream = nil
	return true
}
