package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/media"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/media/mock"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/sampler"
)

const (
	desktopUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"

	testReconnectDelay = 50 * time.Millisecond
	waitFor            = 2 * time.Second
	tick               = 5 * time.Millisecond
)

type fakeChannel struct {
	sessionID string
	listener  detection.Listener

	mu         sync.Mutex
	closed     bool
	closeCodes []int
	frames     int
}

func (f *fakeChannel) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeChannel) SendFrame(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return detection.ErrChannelNotReady
	}
	f.frames++
	return nil
}

func (f *fakeChannel) Close(code int) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.closeCodes = append(f.closeCodes, code)
	f.mu.Unlock()

	f.listener.OnClose(code, "closed by client")
	return nil
}

// drop simulates the server side going away with code
func (f *fakeChannel) drop(code int) {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.listener.OnClose(code, "dropped")
}

func (f *fakeChannel) send(msg detection.Message) {
	f.listener.OnMessage(msg)
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) codes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.closeCodes...)
}

func (f *fakeChannel) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

type fakeDialer struct {
	// delay holds every dial back, ignoring cancellation like a slow handshake
	delay time.Duration

	mu       sync.Mutex
	err      error
	channels []*fakeChannel
	sessions []string
	maxOpen  int
}

func (d *fakeDialer) Dial(_ context.Context, sessionID string, listener detection.Listener) (Channel, error) {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sessions = append(d.sessions, sessionID)
	if d.err != nil {
		return nil, d.err
	}

	ch := &fakeChannel{sessionID: sessionID, listener: listener}
	d.channels = append(d.channels, ch)
	if open := d.openLocked(); open > d.maxOpen {
		d.maxOpen = open
	}
	return ch, nil
}

func (d *fakeDialer) openLocked() int {
	open := 0
	for _, ch := range d.channels {
		if !ch.isClosed() {
			open++
		}
	}
	return open
}

func (d *fakeDialer) openChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openLocked()
}

func (d *fakeDialer) peakOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOpen
}

func (d *fakeDialer) allChannels() []*fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeChannel(nil), d.channels...)
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *fakeDialer) sessionIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sessions...)
}

func (d *fakeDialer) channel(i int) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[i]
}

type harness struct {
	ctrl   *Controller
	source *mock.Source
	dialer *fakeDialer
	cancel context.CancelFunc
}

func newHarness(t *testing.T, userAgent string) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := mock.New()
	camera := media.NewController(source, time.Second, logger)
	dialer := &fakeDialer{}

	cfg := Config{
		UserAgent:      userAgent,
		ReconnectDelay: testReconnectDelay,
		StabilizeDelay: 10 * time.Millisecond,
		Sampler:        sampler.Config{Interval: 5 * time.Millisecond},
	}

	ctrl := NewController(camera, dialer, source, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)

	h := &harness{ctrl: ctrl, source: source, dialer: dialer, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})
	return h
}

func (h *harness) waitState(t *testing.T, state domain.CaptureState) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().State == state
	}, waitFor, tick, "state never became %s", state)
	return h.ctrl.Snapshot()
}

// startDesktop runs a desktop session up to a connected channel
func (h *harness) startDesktop(t *testing.T) *fakeChannel {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.waitState(t, domain.StateStreaming)
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().ChannelState == domain.ChannelConnected
	}, waitFor, tick)
	return h.dialer.channel(0)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestController_DesktopHappyPath(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.ModeAutoDetect, snap.Mode)
	assert.True(t, snap.Profile.IsDesktop)
	assert.NotEmpty(t, snap.SessionID)
	assert.Equal(t, snap.SessionID, ch.sessionID)
	assert.True(t, snap.CameraOpen)
	assert.Equal(t, media.FacingUser, h.source.LastConstraints().FacingMode)

	ch.send(detection.CountdownStarted{Duration: 3})
	snap = h.waitState(t, domain.StateCountdown)
	assert.Equal(t, domain.CountdownState{Active: true, Remaining: 3, Total: 3}, snap.Countdown)

	ch.send(detection.CountdownTick{Remaining: 2})
	ch.send(detection.CountdownTick{Remaining: 1})
	assert.Equal(t, 1, h.ctrl.Snapshot().Countdown.Remaining)

	ch.send(detection.CaptureCommand{})
	snap = h.waitState(t, domain.StateCaptured)

	require.NotNil(t, snap.Image)
	assert.Equal(t, domain.SourceAuto, snap.Image.Source)
	assert.Equal(t, "image/jpeg", snap.Image.ContentType)
	assert.NotEmpty(t, snap.Image.Data)
	assert.Empty(t, snap.SessionID)
	assert.False(t, snap.CameraOpen)
	assert.False(t, snap.ChannelOpen)
	assert.False(t, snap.SamplerRunning)
	assert.False(t, snap.Countdown.Active)
	assert.Equal(t, 0, h.source.LiveTracks())
	assert.Equal(t, []int{detection.CloseNormal}, ch.codes())
}

func TestController_SamplerStreamsAfterStabilization(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	require.Eventually(t, func() bool { return ch.frameCount() > 2 }, waitFor, tick)
	assert.True(t, h.ctrl.Snapshot().SamplerRunning)

	h.ctrl.Stop()
	sent := ch.frameCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, sent, ch.frameCount())
}

func TestController_CountdownReachingZeroCapturesOnce(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	var mu sync.Mutex
	captures := 0
	h.ctrl.WithObserver(func(s Snapshot) {
		if s.State == domain.StateCaptured {
			mu.Lock()
			captures++
			mu.Unlock()
		}
	})

	ch.send(detection.CountdownStarted{Duration: 3})
	ch.send(detection.CountdownTick{Remaining: 0})
	first := h.waitState(t, domain.StateCaptured)

	ch.send(detection.CaptureCommand{})
	ch.send(detection.CountdownTick{Remaining: 0})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.StateCaptured, snap.State)
	assert.Equal(t, first.Image.CapturedAt, snap.Image.CapturedAt)

	mu.Lock()
	assert.Equal(t, 1, captures)
	mu.Unlock()
}

func TestController_CountdownIsMonotonic(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	ch.send(detection.CountdownStarted{Duration: 3})
	h.waitState(t, domain.StateCountdown)

	ch.send(detection.CountdownTick{Remaining: 2})
	ch.send(detection.CountdownTick{Remaining: 3})
	ch.send(detection.CountdownTick{Remaining: 5})

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.StateCountdown, snap.State)
	assert.Equal(t, 2, snap.Countdown.Remaining)
	assert.LessOrEqual(t, snap.Countdown.Remaining, snap.Countdown.Total)
}

func TestController_CountdownStopped(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	ch.send(detection.CountdownStarted{Duration: 3})
	h.waitState(t, domain.StateCountdown)

	ch.send(detection.CountdownStopped{Reason: "face lost"})
	snap := h.waitState(t, domain.StateStreaming)

	assert.False(t, snap.Countdown.Active)
	assert.True(t, snap.CameraOpen)
}

func TestController_MobileHappyPath(t *testing.T) {
	h := newHarness(t, mobileUA)

	require.NoError(t, h.ctrl.Start(context.Background()))
	snap := h.waitState(t, domain.StateStreaming)

	assert.Equal(t, domain.ModeManualShutter, snap.Mode)
	assert.True(t, snap.Profile.IsMobile)
	assert.Equal(t, media.FacingEnvironment, h.source.LastConstraints().FacingMode)

	require.NoError(t, h.ctrl.ManualCapture())

	snap = h.ctrl.Snapshot()
	assert.Equal(t, domain.StateCaptured, snap.State)
	require.NotNil(t, snap.Image)
	assert.Equal(t, domain.SourceManual, snap.Image.Source)
	assert.Equal(t, 0, h.source.LiveTracks())
	assert.Equal(t, 0, h.dialer.dials())
}

func TestController_ManualCaptureGating(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	err := h.ctrl.ManualCapture()
	assert.ErrorIs(t, err, domain.ErrFaceNotReady)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.StateStreaming, snap.State)
	assert.Nil(t, snap.Image)
	assert.Equal(t, domain.ErrFaceNotReady.Message, snap.Notice)

	ch.send(detection.FaceDetectionResult{FaceDetected: true, Confidence: 0.4, FaceCount: 1})
	assert.ErrorIs(t, h.ctrl.ManualCapture(), domain.ErrFaceNotReady)

	ch.send(detection.FaceDetectionResult{FaceDetected: true, Confidence: 0.95, FaceCount: 1, ReadyForCapture: true})
	require.NoError(t, h.ctrl.ManualCapture())

	snap = h.ctrl.Snapshot()
	assert.Equal(t, domain.StateCaptured, snap.State)
	assert.Equal(t, domain.SourceManual, snap.Image.Source)
	assert.Equal(t, 0, h.source.LiveTracks())
}

func TestController_ManualCaptureRejected(t *testing.T) {
	t.Run("during countdown", func(t *testing.T) {
		h := newHarness(t, desktopUA)
		ch := h.startDesktop(t)

		ch.send(detection.FaceDetectionResult{FaceDetected: true, ReadyForCapture: true})
		ch.send(detection.CountdownStarted{Duration: 3})
		h.waitState(t, domain.StateCountdown)

		assert.ErrorIs(t, h.ctrl.ManualCapture(), domain.ErrCountdownActive)
		assert.Equal(t, domain.StateCountdown, h.ctrl.Snapshot().State)
	})

	t.Run("not streaming", func(t *testing.T) {
		h := newHarness(t, mobileUA)
		assert.ErrorIs(t, h.ctrl.ManualCapture(), domain.ErrNotStreaming)
		assert.Equal(t, domain.StateIdle, h.ctrl.Snapshot().State)
	})
}

func TestController_StartFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*mock.Source)
		wantCode string
	}{
		{
			name:     "permission denied",
			setup:    func(s *mock.Source) { s.OpenErr = media.ErrPermissionDenied },
			wantCode: domain.ErrCameraPermissionDenied.Code,
		},
		{
			name:     "device busy",
			setup:    func(s *mock.Source) { s.OpenErr = media.ErrDeviceBusy },
			wantCode: domain.ErrCameraBusy.Code,
		},
		{
			name:     "no camera",
			setup:    func(s *mock.Source) { s.NoCamera = true },
			wantCode: domain.ErrCameraUnsupported.Code,
		},
		{
			name:     "unclassified driver error",
			setup:    func(s *mock.Source) { s.OpenErr = errors.New("driver exploded") },
			wantCode: domain.ErrCameraUnknown.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, desktopUA)
			tt.setup(h.source)

			require.NoError(t, h.ctrl.Start(context.Background()))
			snap := h.waitState(t, domain.StateError)

			assert.Equal(t, tt.wantCode, snap.ErrorCode)
			assert.NotEmpty(t, snap.Error)
			assert.False(t, snap.CameraOpen)
			assert.Empty(t, snap.SessionID)
			assert.Equal(t, 0, h.source.LiveTracks())
			assert.Equal(t, 0, h.dialer.dials())
		})
	}
}

func TestController_StartAfterErrorRecovers(t *testing.T) {
	h := newHarness(t, mobileUA)
	h.source.OpenErr = media.ErrPermissionDenied

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.waitState(t, domain.StateError)

	h.source.OpenErr = nil
	require.NoError(t, h.ctrl.Start(context.Background()))
	snap := h.waitState(t, domain.StateStreaming)

	assert.Empty(t, snap.Error)
	assert.Equal(t, 1, h.source.LiveTracks())
}

func TestController_ForcedReconnect(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)
	sessionID := h.ctrl.Snapshot().SessionID

	ch.drop(detection.CloseAbnormal)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.ChannelDisconnected, snap.ChannelState)
	assert.True(t, snap.ReconnectPending)
	assert.Equal(t, 1, h.dialer.dials())

	require.Eventually(t, func() bool { return h.dialer.dials() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().ChannelState == domain.ChannelConnected
	}, waitFor, tick)

	time.Sleep(3 * testReconnectDelay)
	assert.Equal(t, 2, h.dialer.dials())
	assert.Equal(t, []string{sessionID, sessionID}, h.dialer.sessionIDs())

	snap = h.ctrl.Snapshot()
	assert.Equal(t, 1, snap.ReconnectAttempts)
	assert.False(t, snap.ReconnectPending)
	assert.Equal(t, sessionID, snap.SessionID)
}

func TestController_ChannelLossClearsReadiness(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	ch.send(detection.FaceDetectionResult{FaceDetected: true, Confidence: 0.95, FaceCount: 1, ReadyForCapture: true})
	require.True(t, h.ctrl.Snapshot().Detection.ReadyForCapture)

	ch.drop(detection.CloseAbnormal)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.ChannelDisconnected, snap.ChannelState)
	assert.Equal(t, domain.DetectionResult{}, snap.Detection)

	assert.ErrorIs(t, h.ctrl.ManualCapture(), domain.ErrFaceNotReady)

	snap = h.ctrl.Snapshot()
	assert.Equal(t, domain.StateStreaming, snap.State)
	assert.Nil(t, snap.Image)
	assert.True(t, snap.CameraOpen)
}

func TestController_NormalCloseDoesNotReconnect(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	ch.drop(detection.CloseNormal)
	time.Sleep(3 * testReconnectDelay)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, 1, h.dialer.dials())
	assert.False(t, snap.ReconnectPending)
	assert.Equal(t, domain.StateStreaming, snap.State)
}

func TestController_NoReconnectAfterStop(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	ch.drop(detection.CloseAbnormal)
	h.ctrl.Stop()

	time.Sleep(3 * testReconnectDelay)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, 1, h.dialer.dials())
	assert.Equal(t, domain.StateStopped, snap.State)
	assert.False(t, snap.ReconnectPending)
}

func TestController_DialFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, desktopUA)
	h.dialer.err = errors.New("connection refused")

	require.NoError(t, h.ctrl.Start(context.Background()))
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Notice == domain.ErrDetectionUnavailable.Message
	}, waitFor, tick)

	time.Sleep(3 * testReconnectDelay)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.StateStreaming, snap.State)
	assert.Equal(t, domain.ChannelDisconnected, snap.ChannelState)
	assert.Equal(t, domain.DetectionResult{}, snap.Detection)
	assert.True(t, snap.CameraOpen)
	assert.Equal(t, 1, h.dialer.dials())
	assert.ErrorIs(t, h.ctrl.ManualCapture(), domain.ErrFaceNotReady)
}

func TestController_CameraLostMidSession(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		err       error
		wantCode  string
	}{
		{
			name:      "device unplugged",
			userAgent: desktopUA,
			err:       errors.New("read /dev/video0: no such device"),
			wantCode:  domain.ErrCameraNotFound.Code,
		},
		{
			name:      "unclassified driver error",
			userAgent: desktopUA,
			err:       errors.New("usb transfer failed"),
			wantCode:  domain.ErrCameraUnknown.Code,
		},
		{
			name:      "ended without a reason",
			userAgent: desktopUA,
			wantCode:  domain.ErrCameraUnknown.Code,
		},
		{
			name:      "manual shutter",
			userAgent: mobileUA,
			err:       errors.New("usb transfer failed"),
			wantCode:  domain.ErrCameraUnknown.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.userAgent)
			require.NoError(t, h.ctrl.Start(context.Background()))
			h.waitState(t, domain.StateStreaming)

			var ch *fakeChannel
			if tt.userAgent == desktopUA {
				require.Eventually(t, func() bool {
					return h.ctrl.Snapshot().ChannelState == domain.ChannelConnected
				}, waitFor, tick)
				ch = h.dialer.channel(0)
			}

			h.source.Disconnect(tt.err)

			snap := h.waitState(t, domain.StateError)
			assert.Equal(t, tt.wantCode, snap.ErrorCode)
			assert.NotEmpty(t, snap.Error)
			assert.Empty(t, snap.SessionID)
			assert.False(t, snap.CameraOpen)
			assert.False(t, snap.ChannelOpen)
			assert.False(t, snap.SamplerRunning)
			assert.Equal(t, domain.ModeNone, snap.Mode)
			assert.Equal(t, 0, h.source.LiveTracks())
			assert.ErrorIs(t, h.ctrl.ManualCapture(), domain.ErrNotStreaming)

			if ch != nil {
				assert.True(t, ch.isClosed())
				assert.Equal(t, []int{detection.CloseNormal}, ch.codes())
				time.Sleep(3 * testReconnectDelay)
				assert.Equal(t, 1, h.dialer.dials())
			}

			// Start recovers from the error like any other camera failure
			require.NoError(t, h.ctrl.Start(context.Background()))
			h.waitState(t, domain.StateStreaming)
			assert.Equal(t, 1, h.source.LiveTracks())
		})
	}
}

func TestController_StartStopLoopLeavesNothingOpen(t *testing.T) {
	const rounds = 24

	h := newHarness(t, desktopUA)
	h.dialer.delay = 15 * time.Millisecond

	for i := 0; i < rounds; i++ {
		require.NoError(t, h.ctrl.Start(context.Background()))
		h.waitState(t, domain.StateStreaming)

		// Odd rounds stop a connected session, even rounds stop mid dial
		if i%2 == 1 {
			require.Eventually(t, func() bool {
				return h.ctrl.Snapshot().ChannelState == domain.ChannelConnected
			}, waitFor, tick)
		}

		h.ctrl.Stop()
		snap := h.ctrl.Snapshot()
		assert.Equal(t, domain.StateStopped, snap.State)
		assert.False(t, snap.CameraOpen)
		assert.Equal(t, 0, h.source.LiveTracks())

		// A dial that lands after Stop is closed on arrival
		require.Eventually(t, func() bool {
			return h.dialer.dials() == i+1 && h.dialer.openChannels() == 0
		}, waitFor, tick, "round %d left a channel open", i)
	}

	assert.LessOrEqual(t, h.dialer.peakOpen(), 1)
	assert.Equal(t, rounds, h.source.Opens())
	assert.Equal(t, 0, h.source.LiveTracks())

	channels := h.dialer.allChannels()
	require.Len(t, channels, rounds)
	for i, ch := range channels {
		assert.True(t, ch.isClosed(), "channel %d", i)
		assert.Equal(t, []int{detection.CloseNormal}, ch.codes(), "channel %d", i)
	}

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.StateStopped, snap.State)
	assert.Empty(t, snap.SessionID)
	assert.False(t, snap.ChannelOpen)
	assert.False(t, snap.ReconnectPending)
}

func TestController_ServerErrors(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	ch.send(detection.ServerError{Message: "Pong timeout"})
	ch.send(detection.ServerError{Code: detection.ErrorCodeKeepalive, Message: "late heartbeat"})
	assert.Empty(t, h.ctrl.Snapshot().Notice)

	ch.send(detection.Unknown{Kind: "telemetry"})
	ch.send(detection.Ping{})
	ch.send(detection.Connected{SessionID: ch.sessionID})
	assert.Empty(t, h.ctrl.Snapshot().Notice)

	ch.send(detection.ServerError{Message: "frame too large"})
	assert.Equal(t, "frame too large", h.ctrl.Snapshot().Notice)
	assert.Equal(t, domain.StateStreaming, h.ctrl.Snapshot().State)
}

func TestController_TeardownTriggers(t *testing.T) {
	tests := []struct {
		name      string
		trigger   func(*Controller) error
		wantState domain.CaptureState
	}{
		{
			name:      "stop",
			trigger:   func(c *Controller) error { c.Stop(); return nil },
			wantState: domain.StateStopped,
		},
		{
			name:      "unmount",
			trigger:   func(c *Controller) error { c.Unmount(); return nil },
			wantState: domain.StateStopped,
		},
		{
			name:      "tab hidden",
			trigger:   func(c *Controller) error { c.VisibilityChanged(true); return nil },
			wantState: domain.StateStopped,
		},
		{
			name:      "route change",
			trigger:   func(c *Controller) error { c.RouteChanged("/history"); return nil },
			wantState: domain.StateStopped,
		},
		{
			name:      "file upload",
			trigger:   func(c *Controller) error { return c.SetImageFromFile(pngBytes(t)) },
			wantState: domain.StateCaptured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, desktopUA)
			ch := h.startDesktop(t)
			require.Eventually(t, func() bool { return h.ctrl.Snapshot().SamplerRunning }, waitFor, tick)

			require.NoError(t, tt.trigger(h.ctrl))

			snap := h.ctrl.Snapshot()
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, 0, h.source.LiveTracks())
			assert.True(t, ch.isClosed())
			assert.Equal(t, []int{detection.CloseNormal}, ch.codes())
			assert.Empty(t, snap.SessionID)
			assert.False(t, snap.CameraOpen)
			assert.False(t, snap.SamplerRunning)
			assert.Equal(t, domain.DetectionResult{}, snap.Detection)
			assert.Equal(t, domain.ChannelDisconnected, snap.ChannelState)
		})
	}
}

func TestController_NonTriggers(t *testing.T) {
	h := newHarness(t, mobileUA)
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.waitState(t, domain.StateStreaming)

	h.ctrl.VisibilityChanged(false)
	h.ctrl.RouteChanged("/capture")

	assert.Equal(t, domain.StateStreaming, h.ctrl.Snapshot().State)
	assert.Equal(t, 1, h.source.LiveTracks())
}

func TestController_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, desktopUA)
	ch := h.startDesktop(t)

	h.ctrl.Stop()
	first := h.ctrl.Snapshot()

	assert.NotPanics(t, func() {
		h.ctrl.Stop()
		h.ctrl.Unmount()
		h.ctrl.VisibilityChanged(true)
	})

	assert.Equal(t, first, h.ctrl.Snapshot())
	assert.Equal(t, []int{detection.CloseNormal}, ch.codes())
	assert.Equal(t, 0, h.source.LiveTracks())
}

func TestController_StopWhileStarting(t *testing.T) {
	h := newHarness(t, desktopUA)
	h.source.ReadyDelay = 100 * time.Millisecond

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, domain.StateStarting, h.ctrl.Snapshot().State)

	h.ctrl.Stop()
	time.Sleep(200 * time.Millisecond)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.StateStopped, snap.State)
	assert.False(t, snap.CameraOpen)
	assert.Equal(t, 0, h.source.LiveTracks())
	assert.Equal(t, 0, h.dialer.dials())
}

func TestController_RetakeAndStartRules(t *testing.T) {
	h := newHarness(t, mobileUA)

	assert.ErrorIs(t, h.ctrl.Retake(context.Background()), domain.ErrNotCaptured)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), domain.ErrAlreadyStarted)

	h.waitState(t, domain.StateStreaming)
	require.NoError(t, h.ctrl.ManualCapture())

	require.NoError(t, h.ctrl.Retake(context.Background()))
	snap := h.waitState(t, domain.StateStreaming)
	assert.Nil(t, snap.Image)
	assert.Equal(t, 1, h.source.LiveTracks())

	h.ctrl.Stop()
	assert.Equal(t, 0, h.source.LiveTracks())
}

func TestController_SetImageFromFile(t *testing.T) {
	h := newHarness(t, mobileUA)

	assert.ErrorIs(t, h.ctrl.SetImageFromFile(nil), domain.ErrInvalidImage)
	assert.ErrorIs(t, h.ctrl.SetImageFromFile([]byte("not an image")), domain.ErrInvalidImage)

	data := pngBytes(t)
	require.NoError(t, h.ctrl.SetImageFromFile(data))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, domain.StateCaptured, snap.State)
	require.NotNil(t, snap.Image)
	assert.Equal(t, domain.SourceFileUpload, snap.Image.Source)
	assert.Equal(t, "image/png", snap.Image.ContentType)
	assert.Equal(t, data, snap.Image.Data)
}

func TestController_ShutdownReleasesEverything(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := mock.New()
	dialer := &fakeDialer{}
	ctrl := NewController(media.NewController(source, time.Second, logger), dialer, source, Config{
		UserAgent:      desktopUA,
		StabilizeDelay: 10 * time.Millisecond,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)

	require.NoError(t, ctrl.Start(context.Background()))
	require.Eventually(t, func() bool { return dialer.dials() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		return ctrl.Snapshot().ChannelState == domain.ChannelConnected
	}, waitFor, tick)

	cancel()
	<-ctrl.Done()

	assert.Equal(t, 0, source.LiveTracks())
	assert.True(t, dialer.channel(0).isClosed())
	assert.ErrorIs(t, ctrl.Start(context.Background()), domain.ErrControllerClosed)
	assert.Equal(t, domain.StateStopped, ctrl.Snapshot().State)
}

func TestController_Observer(t *testing.T) {
	h := newHarness(t, mobileUA)

	states := make(chan domain.CaptureState, 32)
	h.ctrl.WithObserver(func(s Snapshot) {
		select {
		case states <- s.State:
		default:
		}
	})

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.waitState(t, domain.StateStreaming)
	h.ctrl.Stop()

	var seen []domain.CaptureState
	for len(states) > 0 {
		seen = append(seen, <-states)
	}
	assert.Equal(t, []domain.CaptureState{
		domain.StateStarting,
		domain.StateStreaming,
		domain.StateStopped,
	}, seen)
}
