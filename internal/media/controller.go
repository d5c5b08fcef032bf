package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
)

// DefaultMetadataTimeout bounds the wait for the first frame
const DefaultMetadataTimeout = 5 * time.Second

// Controller acquires and releases camera streams. At most one handle is open
// at a time.
type Controller struct {
	source          Source
	metadataTimeout time.Duration
	logger          *slog.Logger

	// acquireMu serializes Start so an older acquisition can never replace
	// a newer handle
	acquireMu sync.Mutex

	mu      sync.Mutex
	current *Handle
}

// NewController creates a media controller over source
func NewController(source Source, metadataTimeout time.Duration, logger *slog.Logger) *Controller {
	if metadataTimeout <= 0 {
		metadataTimeout = DefaultMetadataTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source:          source,
		metadataTimeout: metadataTimeout,
		logger:          logger,
	}
}

// Start opens the camera for profile and waits for it to report frame
// metadata. Failures are returned as camera AppErrors; a stream that opened
// but never became ready is released before returning.
func (c *Controller) Start(ctx context.Context, profile domain.DeviceProfile) (*Handle, error) {
	if !profile.SupportsCamera {
		return nil, domain.ErrCameraUnsupported
	}

	c.acquireMu.Lock()
	defer c.acquireMu.Unlock()

	constraints := ConstraintsFor(profile)

	stream, err := c.source.Open(ctx, constraints)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Classify(err)
	}

	handle := newHandle(stream, c.logger)

	waitCtx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	if err := stream.WaitReady(waitCtx); err != nil {
		handle.release()

		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, domain.ErrCameraTimeout.WithError(
				fmt.Errorf("no video metadata after %s", c.metadataTimeout),
			)
		default:
			return nil, Classify(err)
		}
	}

	// Autoplay can be refused until the user interacts; frames still flow
	if err := stream.Play(); err != nil {
		c.logger.Warn("video playback failed", slog.Any("error", err))
	}

	c.mu.Lock()
	previous := c.current
	c.current = handle
	c.mu.Unlock()

	if previous != nil && previous.release() {
		c.logger.Warn("released a camera handle that was still open")
	}

	c.logger.Debug("camera started",
		slog.String("facing_mode", string(constraints.FacingMode)),
		slog.Int("tracks", handle.TrackCount()),
	)

	return handle, nil
}

// Stop releases handle. It is safe to call with nil, twice, or on a handle
// that was already released.
func (c *Controller) Stop(handle *Handle) {
	if handle == nil {
		return
	}

	c.mu.Lock()
	if c.current == handle {
		c.current = nil
	}
	c.mu.Unlock()

	if handle.release() {
		c.logger.Debug("camera stopped")
	}
}

// Active reports whether a handle is currently open
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.Stopped()
}
