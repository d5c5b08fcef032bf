package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
)

type fakeDetector struct {
	mu    sync.Mutex
	faces []provider.DetectedFace
	err   error
	calls int
}

func (f *fakeDetector) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.faces, f.err
}

func (f *fakeDetector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeDetector) set(faces []provider.DetectedFace) {
	f.mu.Lock()
	f.faces = faces
	f.mu.Unlock()
}

func startServer(t *testing.T, detector provider.FaceDetector, cfg Config) (string, *Hub) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/camera/:id", UpgradeMiddleware(), Handler(hub, detector, cfg, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		cancel()
		_ = app.Shutdown()
	})

	return "ws://" + ln.Addr().String(), hub
}

func dial(t *testing.T, base, sessionID string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial(base+"/ws/camera/"+sessionID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func next(t *testing.T, conn *gorilla.Conn) detection.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := detection.Decode(data)
	require.NoError(t, err)
	return msg
}

func sendFrame(t *testing.T, conn *gorilla.Conn) {
	t.Helper()
	frame := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	require.NoError(t, conn.WriteJSON(detection.NewFrameMessage(frame)))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadyFrames = 2
	cfg.CountdownSeconds = 2
	cfg.TickInterval = 20 * time.Millisecond
	cfg.PingInterval = time.Hour
	return cfg
}

var centered = []provider.DetectedFace{{
	BoundingBox: provider.BoundingBox{X: 0.3, Y: 0.25, Width: 0.4, Height: 0.5},
	Confidence:  0.95,
}}

func TestHandler_SendsConnectedOnOpen(t *testing.T) {
	base, hub := startServer(t, &fakeDetector{}, testConfig())
	conn := dial(t, base, "session-1")

	assert.Equal(t, detection.Connected{SessionID: "session-1", Message: "detection session ready"}, next(t, conn))
	assert.Eventually(t, func() bool { return hub.ConnectedClients("session-1") == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandler_FullCountdownFlow(t *testing.T) {
	detector := &fakeDetector{faces: centered}
	base, _ := startServer(t, detector, testConfig())
	conn := dial(t, base, "session-1")
	next(t, conn)

	sendFrame(t, conn)
	result, ok := next(t, conn).(detection.FaceDetectionResult)
	require.True(t, ok)
	assert.True(t, result.ReadyForCapture)
	assert.Equal(t, 1, result.FaceCount)

	sendFrame(t, conn)
	assert.IsType(t, detection.FaceDetectionResult{}, next(t, conn))
	assert.Equal(t, detection.CountdownStarted{Duration: 2}, next(t, conn))
	assert.Equal(t, detection.CountdownTick{Remaining: 1}, next(t, conn))
	assert.Equal(t, detection.CountdownTick{Remaining: 0}, next(t, conn))
	assert.Equal(t, detection.CaptureCommand{}, next(t, conn))
}

func TestHandler_CountdownStopsWhenFaceLost(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = time.Hour
	detector := &fakeDetector{faces: centered}
	base, _ := startServer(t, detector, cfg)
	conn := dial(t, base, "session-1")
	next(t, conn)

	sendFrame(t, conn)
	next(t, conn)
	sendFrame(t, conn)
	next(t, conn)
	assert.IsType(t, detection.CountdownStarted{}, next(t, conn))

	detector.set(nil)
	sendFrame(t, conn)
	result, ok := next(t, conn).(detection.FaceDetectionResult)
	require.True(t, ok)
	assert.False(t, result.FaceDetected)
	assert.Equal(t, FeedbackNoFace, result.Message)
	assert.Equal(t, detection.CountdownStopped{Reason: StopReasonFaceLost}, next(t, conn))
}

func TestHandler_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode string
	}{
		{name: "unknown type", payload: `{"type":"selfie"}`, wantCode: ErrCodeUnknownType},
		{name: "malformed json", payload: `{not json`, wantCode: ErrCodeMalformed},
		{name: "missing type", payload: `{"image":"x"}`, wantCode: ErrCodeMalformed},
		{name: "frame without data url", payload: `{"type":"face_detection","image":"aGVsbG8="}`, wantCode: ErrCodeInvalidFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := &fakeDetector{}
			base, _ := startServer(t, detector, testConfig())
			conn := dial(t, base, "session-1")
			next(t, conn)

			require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(tt.payload)))

			msg, ok := next(t, conn).(detection.ServerError)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, msg.Code)
			assert.False(t, msg.Benign())
			assert.Equal(t, 0, detector.callCount())
		})
	}
}

func TestHandler_DetectorFailure(t *testing.T) {
	detector := &fakeDetector{err: assert.AnError}
	base, _ := startServer(t, detector, testConfig())
	conn := dial(t, base, "session-1")
	next(t, conn)

	sendFrame(t, conn)

	msg, ok := next(t, conn).(detection.ServerError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeDetectionFailed, msg.Code)
}

func TestHandler_AnswersPing(t *testing.T) {
	base, _ := startServer(t, &fakeDetector{}, testConfig())
	conn := dial(t, base, "session-1")
	next(t, conn)

	require.NoError(t, conn.WriteJSON(detection.ControlMessage{Type: detection.TypePing}))

	assert.Equal(t, detection.Pong{}, next(t, conn))
}

func TestHandler_SendsKeepalivePings(t *testing.T) {
	cfg := testConfig()
	cfg.PingInterval = 30 * time.Millisecond
	base, _ := startServer(t, &fakeDetector{}, cfg)
	conn := dial(t, base, "session-1")
	next(t, conn)

	assert.Equal(t, detection.Ping{}, next(t, conn))
}

func TestHandler_UnregistersOnClose(t *testing.T) {
	base, hub := startServer(t, &fakeDetector{}, testConfig())
	conn := dial(t, base, "session-1")
	next(t, conn)

	_ = conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""))
	_ = conn.Close()

	assert.Eventually(t, func() bool { return hub.ConnectedClients("session-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUpgradeMiddleware(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(slog.Default())})
	app.Get("/ws/camera/:id", UpgradeMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "plain http request", path: "/ws/camera/session-1", wantStatus: fiber.StatusUpgradeRequired},
		{name: "invalid session id", path: "/ws/camera/bad.id", wantStatus: fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	data, err := decodeFrame("data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	for _, bad := range []string{
		"",
		"aGVsbG8=",
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png,raw",
		"data:image/png;base64,%%%",
		"data:image/png;base64,",
	} {
		_, err := decodeFrame(bad)
		assert.ErrorIs(t, err, errInvalidFrame, bad)
	}
}

func TestEvents_AreFlatJSON(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal(newCountdownTick(2), &raw))

	assert.Equal(t, "countdown_tick", raw["type"])
	assert.Equal(t, float64(2), raw["remaining"])
}
