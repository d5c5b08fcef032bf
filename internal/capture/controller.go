// Package capture runs the capture state machine. A single goroutine owns
// every session field; camera acquisition, the detection channel, timers and
// the frame sampler only post events to it.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/device"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/media"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/sampler"
)

const eventBuffer = 64

// Config holds capture settings
type Config struct {
	UserAgent      string
	CaptureRoute   string
	ReconnectDelay time.Duration
	StabilizeDelay time.Duration
	ImageQuality   int
	Sampler        sampler.Config
}

// DefaultConfig returns production timings
func DefaultConfig() Config {
	return Config{
		CaptureRoute:   "/capture",
		ReconnectDelay: 5 * time.Second,
		StabilizeDelay: time.Second,
		ImageQuality:   92,
		Sampler:        sampler.DefaultConfig(),
	}
}

// Controller is the capture state machine. Create it with NewController and
// drive it with Run; every exported method is safe for concurrent use.
type Controller struct {
	cfg    Config
	camera Camera
	dialer Dialer
	probe  device.CameraProbe
	logger *slog.Logger

	events chan func()
	done   chan struct{}

	postMu sync.RWMutex
	closed bool

	obsMu     sync.RWMutex
	observers []func(Snapshot)

	// Owned by the Run goroutine
	runCtx  context.Context
	exiting bool

	state        domain.CaptureState
	mode         domain.CaptureMode
	profile      domain.DeviceProfile
	sessionID    string
	channelState domain.ChannelState
	detection    domain.DetectionResult
	countdown    domain.CountdownState
	image        *domain.CapturedImage
	lastErr      *domain.AppError
	notice       string

	gen           uint64
	acquireCancel context.CancelFunc
	handle        *media.Handle
	watchCancel   context.CancelFunc
	stabilize     *time.Timer

	channelSeq uint64
	dialCancel context.CancelFunc
	channel    Channel
	listener   *sessionListener
	sink       *channelSink
	sampler    *sampler.Sampler

	reconnect         *reconnectTask
	reconnectAttempts int
}

// NewController creates an idle controller. dialer may be nil, in which case
// desktop sessions use the manual shutter.
func NewController(camera Camera, dialer Dialer, probe device.CameraProbe, cfg Config, logger *slog.Logger) *Controller {
	defaults := DefaultConfig()
	if cfg.CaptureRoute == "" {
		cfg.CaptureRoute = defaults.CaptureRoute
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.StabilizeDelay <= 0 {
		cfg.StabilizeDelay = defaults.StabilizeDelay
	}
	if cfg.ImageQuality <= 0 || cfg.ImageQuality > 100 {
		cfg.ImageQuality = defaults.ImageQuality
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		cfg:          cfg,
		camera:       camera,
		dialer:       dialer,
		probe:        probe,
		logger:       logger.With(slog.String("component", "capture")),
		events:       make(chan func(), eventBuffer),
		done:         make(chan struct{}),
		state:        domain.StateIdle,
		channelState: domain.ChannelDisconnected,
		sink:         &channelSink{},
	}
}

// WithObserver registers fn to receive every snapshot. Observers run on the
// controller goroutine and must not call back into the controller.
func (c *Controller) WithObserver(fn func(Snapshot)) *Controller {
	c.obsMu.Lock()
	c.observers = append(c.observers, fn)
	c.obsMu.Unlock()
	return c
}

// Run processes events until ctx is done, then tears down any live session
func (c *Controller) Run(ctx context.Context) {
	c.runCtx = ctx
	c.logger.Debug("capture controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case fn := <-c.events:
			fn()
		}
	}
}

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start begins a capture session. It returns once the session is starting;
// progress is reported through snapshots.
func (c *Controller) Start(ctx context.Context) error {
	return c.call(ctx, func() error {
		return c.start()
	})
}

// Retake discards the captured image and starts a new session
func (c *Controller) Retake(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.state != domain.StateCaptured {
			return domain.ErrNotCaptured
		}
		return c.start()
	})
}

// Stop tears the session down
func (c *Controller) Stop() {
	_ = c.call(context.Background(), func() error {
		c.stop("stop")
		return nil
	})
}

// Unmount tears the session down when the capture view goes away
func (c *Controller) Unmount() {
	_ = c.call(context.Background(), func() error {
		c.stop("unmount")
		return nil
	})
}

// VisibilityChanged tears a live session down when the view is hidden
func (c *Controller) VisibilityChanged(hidden bool) {
	if !hidden {
		return
	}
	_ = c.call(context.Background(), func() error {
		if c.state.IsLive() {
			c.stop("hidden")
		}
		return nil
	})
}

// RouteChanged tears the session down when navigating off the capture route
func (c *Controller) RouteChanged(path string) {
	if path == c.cfg.CaptureRoute {
		return
	}
	_ = c.call(context.Background(), func() error {
		c.stop("route_change")
		return nil
	})
}

// ManualCapture takes the photo now. In auto-detect mode a face must be ready
// for capture; no capture is allowed while a countdown is running.
func (c *Controller) ManualCapture() error {
	return c.call(context.Background(), c.manualCapture)
}

// SetImageFromFile uses an uploaded image instead of the camera, ending any
// live session
func (c *Controller) SetImageFromFile(data []byte) error {
	return c.call(context.Background(), func() error {
		return c.setImageFromFile(data)
	})
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	err := c.call(context.Background(), func() error {
		snap = c.snapshot()
		return nil
	})
	if err != nil {
		return Snapshot{State: domain.StateStopped, ChannelState: domain.ChannelDisconnected}
	}
	return snap
}

// call runs fn on the controller goroutine and waits for its result
func (c *Controller) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)

	ok := c.post(func() {
		if c.exiting {
			reply <- domain.ErrControllerClosed
			return
		}
		reply <- fn()
	})
	if !ok {
		return domain.ErrControllerClosed
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return domain.ErrControllerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the controller goroutine. It returns false once the
// controller has shut down; the caller then owns any resource fn carried.
func (c *Controller) post(fn func()) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()

	if c.closed {
		return false
	}

	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) shutdown() {
	c.exiting = true
	c.stop("shutdown")
	close(c.done)

	c.postMu.Lock()
	c.closed = true
	c.postMu.Unlock()

	// Anything still queued is stale and only releases what it carries
	for {
		select {
		case fn := <-c.events:
			fn()
		default:
			c.logger.Debug("capture controller stopped")
			return
		}
	}
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{
		State:             c.state,
		Mode:              c.mode,
		Profile:           c.profile,
		SessionID:         c.sessionID,
		ChannelState:      c.channelState,
		Detection:         c.detection,
		Countdown:         c.countdown,
		Notice:            c.notice,
		CameraOpen:        c.handle != nil && !c.handle.Stopped(),
		ChannelOpen:       c.channel != nil,
		SamplerRunning:    c.sampler != nil,
		ReconnectPending:  c.reconnect != nil,
		ReconnectAttempts: c.reconnectAttempts,
	}
	if c.image != nil {
		img := *c.image
		snap.Image = &img
	}
	if c.lastErr != nil {
		snap.Error = c.lastErr.Message
		snap.ErrorCode = c.lastErr.Code
	}
	return snap
}

func (c *Controller) notify() {
	c.obsMu.RLock()
	observers := c.observers
	c.obsMu.RUnlock()

	if len(observers) == 0 {
		return
	}

	snap := c.snapshot()
	for _, fn := range observers {
		fn(snap)
	}
}
