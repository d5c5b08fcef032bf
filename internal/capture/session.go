package capture

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/device"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/media"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/sampler"
)

func (c *Controller) start() error {
	if c.state.IsLive() {
		return domain.ErrAlreadyStarted
	}

	c.teardown()
	c.image = nil
	c.lastErr = nil
	c.notice = ""
	c.reconnectAttempts = 0

	c.profile = device.Detect(c.cfg.UserAgent, c.probe)
	c.sessionID = uuid.NewString()
	c.state = domain.StateStarting

	gen := c.gen
	profile := c.profile

	ctx, cancel := context.WithCancel(c.runCtx)
	c.acquireCancel = cancel

	c.logger.Info("capture session starting",
		slog.String("session_id", c.sessionID),
		slog.Bool("desktop", profile.IsDesktop),
		slog.Bool("supports_camera", profile.SupportsCamera),
	)

	go func() {
		handle, err := c.camera.Start(ctx, profile)
		delivered := c.post(func() {
			c.onAcquired(gen, handle, err)
		})
		if !delivered {
			c.camera.Stop(handle)
		}
	}()

	c.notify()
	return nil
}

func (c *Controller) onAcquired(gen uint64, handle *media.Handle, err error) {
	if gen != c.gen || c.state != domain.StateStarting {
		c.camera.Stop(handle)
		return
	}

	if c.acquireCancel != nil {
		c.acquireCancel()
		c.acquireCancel = nil
	}

	if err != nil {
		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			appErr = domain.ErrCameraUnknown.WithError(err)
		}

		c.logger.Warn("camera acquisition failed",
			slog.String("code", appErr.Code),
			slog.Any("error", err),
		)

		c.sessionID = ""
		c.state = domain.StateError
		c.lastErr = appErr
		c.notify()
		return
	}

	c.handle = handle
	c.state = domain.StateStreaming
	c.watchStream(gen, handle)

	// Without a detection service a desktop falls back to the shutter
	if !c.profile.IsDesktop || c.dialer == nil {
		c.mode = domain.ModeManualShutter
		c.notify()
		return
	}

	c.mode = domain.ModeAutoDetect
	c.dial()

	c.stabilize = time.AfterFunc(c.cfg.StabilizeDelay, func() {
		c.post(func() {
			c.onStabilized(gen)
		})
	})

	c.notify()
}

// watchStream reports a stream that ends while the session still owns it
func (c *Controller) watchStream(gen uint64, handle *media.Handle) {
	ctx, cancel := context.WithCancel(c.runCtx)
	c.watchCancel = cancel

	go func() {
		select {
		case <-handle.Done():
			c.post(func() {
				c.onStreamEnded(gen, handle)
			})
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) onStreamEnded(gen uint64, handle *media.Handle) {
	// A release by teardown bumps gen first, so only device loss gets here
	if gen != c.gen || handle != c.handle || !c.state.IsLive() {
		return
	}

	appErr := media.Classify(handle.Err())
	if appErr == nil {
		appErr = domain.ErrCameraUnknown
	}

	c.logger.Warn("camera stream ended",
		slog.String("session_id", c.sessionID),
		slog.String("code", appErr.Code),
		slog.Any("error", handle.Err()),
	)

	c.teardown()
	c.state = domain.StateError
	c.lastErr = appErr
	c.notice = ""
	c.notify()
}

func (c *Controller) onStabilized(gen uint64) {
	if gen != c.gen || !c.state.IsLive() || c.mode != domain.ModeAutoDetect || c.sampler != nil {
		return
	}
	c.stabilize = nil
	c.sampler = sampler.Start(c.runCtx, c.handle, c.sink, c.cfg.Sampler, c.logger)
	c.logger.Debug("frame sampler started", slog.String("session_id", c.sessionID))
	c.notify()
}

func (c *Controller) dial() {
	// One channel per session; a leftover one is closed first
	c.closeChannel()

	c.channelSeq++
	seq := c.channelSeq
	sessionID := c.sessionID
	listener := &sessionListener{controller: c, seq: seq}

	ctx, cancel := context.WithCancel(c.runCtx)
	c.dialCancel = cancel
	c.listener = listener
	c.channelState = domain.ChannelConnecting

	go func() {
		ch, err := c.dialer.Dial(ctx, sessionID, listener)
		delivered := c.post(func() {
			c.onDialed(seq, listener, ch, err)
		})
		if !delivered && ch != nil {
			listener.detach()
			_ = ch.Close(detection.CloseNormal)
		}
	}()
}

func (c *Controller) onDialed(seq uint64, listener *sessionListener, ch Channel, err error) {
	if seq != c.channelSeq || c.sessionID == "" || !c.state.IsLive() {
		listener.detach()
		if ch != nil {
			_ = ch.Close(detection.CloseNormal)
		}
		return
	}

	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}

	if err != nil {
		c.logger.Warn("detection channel unavailable",
			slog.String("session_id", c.sessionID),
			slog.Any("error", err),
		)
		c.listener = nil
		c.channelState = domain.ChannelDisconnected
		c.detection = domain.DetectionResult{}
		c.notice = domain.ErrDetectionUnavailable.Message
		c.notify()
		return
	}

	c.channel = ch
	c.sink.set(ch)
	c.channelState = domain.ChannelConnected
	c.notice = ""
	c.notify()
}

func (c *Controller) onMessage(seq uint64, msg detection.Message) {
	if seq != c.channelSeq || c.sessionID == "" {
		return
	}

	switch m := msg.(type) {
	case detection.FaceDetectionResult:
		c.detection = domain.DetectionResult{
			Detected:        m.FaceDetected,
			Confidence:      m.Confidence,
			FaceCount:       m.FaceCount,
			ReadyForCapture: m.ReadyForCapture,
			Feedback:        m.Message,
		}
		c.notify()

	case detection.CountdownStarted:
		if c.state != domain.StateStreaming || c.mode != domain.ModeAutoDetect {
			return
		}
		c.countdown = domain.StartCountdown(m.Duration)
		c.state = domain.StateCountdown
		c.notify()

	case detection.CountdownTick:
		if c.state != domain.StateCountdown {
			return
		}
		next, ok := c.countdown.Tick(m.Remaining)
		if !ok {
			c.logger.Debug("ignoring countdown tick", slog.Int("remaining", m.Remaining))
			return
		}
		c.countdown = next
		if next.Finished() {
			c.autoCapture()
			return
		}
		c.notify()

	case detection.CountdownStopped:
		if c.state != domain.StateCountdown {
			return
		}
		c.countdown = domain.CountdownState{}
		c.state = domain.StateStreaming
		c.notify()

	case detection.CaptureCommand:
		if c.state != domain.StateStreaming && c.state != domain.StateCountdown {
			return
		}
		c.autoCapture()

	case detection.ServerError:
		if m.Benign() {
			c.logger.Debug("ignoring keep-alive error", slog.String("message", m.Message))
			return
		}
		c.logger.Warn("detection service error", slog.String("code", m.Code), slog.String("message", m.Message))
		c.notice = m.Message
		c.notify()

	case detection.Connected:
		c.logger.Debug("detection session acknowledged", slog.String("session_id", c.sessionID))

	case detection.Ping, detection.Pong:

	case detection.Unknown:
		c.logger.Debug("ignoring unknown detection message", slog.String("type", string(m.Kind)))
	}
}

func (c *Controller) onClosed(seq uint64, code int) {
	if seq != c.channelSeq {
		return
	}

	// Invalidate anything else from this channel, including a late dial result
	c.channelSeq++
	c.channel = nil
	c.listener = nil
	c.sink.set(nil)
	c.channelState = domain.ChannelDisconnected
	// Readiness came from this channel and cannot outlive it
	c.detection = domain.DetectionResult{}

	if c.state == domain.StateCountdown {
		c.countdown = domain.CountdownState{}
		c.state = domain.StateStreaming
	}

	c.logger.Info("detection channel closed",
		slog.String("session_id", c.sessionID),
		slog.Int("code", code),
	)

	if code != detection.CloseNormal && c.sessionID != "" && c.state.IsLive() && c.mode == domain.ModeAutoDetect {
		c.reconnect.Cancel()
		c.reconnect = scheduleReconnect(c.sessionID, c.cfg.ReconnectDelay, func(task *reconnectTask) {
			c.post(func() {
				c.onReconnectDue(task)
			})
		})
	}

	c.notify()
}

func (c *Controller) onReconnectDue(task *reconnectTask) {
	if task != c.reconnect || task.Cancelled() {
		return
	}
	c.reconnect = nil

	if c.sessionID == "" || c.sessionID != task.sessionID || !c.state.IsLive() {
		return
	}

	c.reconnectAttempts++
	c.logger.Info("reconnecting detection channel",
		slog.String("session_id", c.sessionID),
		slog.Int("attempt", c.reconnectAttempts),
	)
	c.dial()
	c.notify()
}

func (c *Controller) manualCapture() error {
	switch {
	case c.state == domain.StateCountdown || c.countdown.Active:
		return domain.ErrCountdownActive
	case c.state != domain.StateStreaming:
		return domain.ErrNotStreaming
	case c.mode == domain.ModeAutoDetect && !c.detection.ReadyForCapture:
		c.notice = domain.ErrFaceNotReady.Message
		c.notify()
		return domain.ErrFaceNotReady
	}

	return c.capture(domain.SourceManual)
}

func (c *Controller) autoCapture() {
	if err := c.capture(domain.SourceAuto); err != nil {
		c.logger.Warn("automatic capture failed", slog.Any("error", err))
		c.countdown = domain.CountdownState{}
		c.state = domain.StateStreaming
		c.notice = domain.ErrCaptureFailed.Message
		c.notify()
	}
}

// capture grabs the current frame and tears the session down in the same step
func (c *Controller) capture(source domain.ImageSource) error {
	if c.handle == nil {
		return domain.ErrCaptureFailed
	}

	frame, err := c.handle.Frame()
	if err != nil {
		return domain.ErrCaptureFailed.WithError(err)
	}

	data, err := sampler.EncodeJPEG(frame, c.cfg.ImageQuality)
	if err != nil {
		return domain.ErrCaptureFailed.WithError(err)
	}

	c.teardown()
	c.lastErr = nil
	c.notice = ""
	c.state = domain.StateCaptured
	c.image = &domain.CapturedImage{
		Data:        data,
		ContentType: "image/jpeg",
		Source:      source,
		CapturedAt:  time.Now().UTC(),
	}

	c.logger.Info("image captured", slog.String("source", string(source)), slog.Int("bytes", len(data)))
	c.notify()
	return nil
}

func (c *Controller) setImageFromFile(data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidImage
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return domain.ErrInvalidImage
	}

	c.teardown()
	c.lastErr = nil
	c.notice = ""
	c.state = domain.StateCaptured
	c.image = &domain.CapturedImage{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		Source:      domain.SourceFileUpload,
		CapturedAt:  time.Now().UTC(),
	}

	c.logger.Info("image selected from file", slog.String("content_type", contentType))
	c.notify()
	return nil
}

func (c *Controller) stop(reason string) {
	wasLive := c.state.IsLive()
	c.teardown()

	if wasLive {
		c.state = domain.StateStopped
		c.lastErr = nil
		c.notice = ""
		c.logger.Info("capture session stopped", slog.String("reason", reason))
		c.notify()
	}
}

// teardown releases every live resource. It is the only release path and is
// safe to run any number of times.
func (c *Controller) teardown() {
	// Clearing the session id first keeps any close below from reconnecting
	c.sessionID = ""
	c.gen++

	if c.acquireCancel != nil {
		c.acquireCancel()
		c.acquireCancel = nil
	}

	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}

	c.reconnect.Cancel()
	c.reconnect = nil

	if c.stabilize != nil {
		c.stabilize.Stop()
		c.stabilize = nil
	}

	if c.sampler != nil {
		c.sampler.Stop()
		c.sampler = nil
	}

	c.closeChannel()

	if c.handle != nil {
		c.camera.Stop(c.handle)
		c.handle = nil
	}

	c.mode = domain.ModeNone
	c.channelState = domain.ChannelDisconnected
	c.detection = domain.DetectionResult{}
	c.countdown = domain.CountdownState{}
}

func (c *Controller) closeChannel() {
	c.channelSeq++

	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}

	c.sink.set(nil)

	if c.listener != nil {
		c.listener.detach()
		c.listener = nil
	}

	if c.channel != nil {
		if err := c.channel.Close(detection.CloseNormal); err != nil {
			c.logger.Debug("detection channel close", slog.Any("error", err))
		}
		c.channel = nil
	}
}

// sessionListener forwards one channel's events to the controller goroutine.
// Once detached it drops everything, so a close started by the controller
// never re-enters it.
type sessionListener struct {
	controller *Controller
	seq        uint64
	detached   atomic.Bool
}

func (l *sessionListener) detach() {
	l.detached.Store(true)
}

func (l *sessionListener) OnMessage(msg detection.Message) {
	if l.detached.Load() {
		return
	}
	l.controller.post(func() {
		l.controller.onMessage(l.seq, msg)
	})
}

func (l *sessionListener) OnClose(code int, _ string) {
	if l.detached.Load() {
		return
	}
	l.controller.post(func() {
		l.controller.onClosed(l.seq, code)
	})
}
