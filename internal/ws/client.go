package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
)

// Error codes sent in error events
const (
	ErrCodeMalformed       = "malformed_message"
	ErrCodeUnknownType     = "unknown_type"
	ErrCodeInvalidFrame    = "invalid_frame"
	ErrCodeDetectionFailed = "detection_failed"
)

var errInvalidFrame = errors.New("frame is not a base64 image data URL")

// Client is one capture client connected to a detection session
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	detector  provider.FaceDetector
	cfg       Config
	logger    *slog.Logger

	send     chan []byte
	verdicts chan detection.FaceDetectionResult
	quit     chan struct{}
	written  chan struct{}

	connectedAt time.Time
	frames      atomic.Int64
	closeOnce   sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID string, detector provider.FaceDetector, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		sessionID:   sessionID,
		detector:    detector,
		cfg:         cfg,
		logger:      logger.With(slog.String("session_id", sessionID)),
		send:        make(chan []byte, 64),
		verdicts:    make(chan detection.FaceDetectionResult, 8),
		quit:        make(chan struct{}),
		written:     make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// enqueue queues data for the write loop, dropping it when the client is
// too slow to keep up
func (c *Client) enqueue(data []byte) {
	if data == nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("dropping message for slow client")
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// ReadPump handles inbound frames until the connection fails or closes
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		close(c.quit)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("detection session read failed", slog.Any("error", err))
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.enqueue(newError(ErrCodeMalformed, "malformed message"))
			continue
		}

		switch msg.Type {
		case detection.TypeFaceDetection:
			if !c.handleFrame(ctx, msg.Image) {
				return
			}
		case detection.TypePing:
			c.enqueue(newPong())
		case detection.TypePong:
		default:
			c.enqueue(newError(ErrCodeUnknownType, fmt.Sprintf("unknown message type: %s", msg.Type)))
		}
	}
}

// handleFrame runs the detector on one frame. It returns false once the
// write loop is gone.
func (c *Client) handleFrame(ctx context.Context, image string) bool {
	data, err := decodeFrame(image)
	if err != nil {
		c.enqueue(newError(ErrCodeInvalidFrame, err.Error()))
		return true
	}

	detectCtx, cancel := context.WithTimeout(ctx, c.cfg.DetectTimeout)
	faces, err := c.detector.DetectFaces(detectCtx, data)
	cancel()
	if err != nil {
		c.logger.Warn("face detection failed", slog.Any("error", err))
		c.enqueue(newError(ErrCodeDetectionFailed, "face detection failed"))
		return true
	}

	c.frames.Add(1)
	result := Evaluate(faces, c.cfg)

	select {
	case c.verdicts <- result:
		return true
	case <-c.written:
		return false
	case <-ctx.Done():
		return false
	}
}

// WritePump owns every write to the connection, the keep-alive pings and the
// countdown timer
func (c *Client) WritePump() {
	defer close(c.written)

	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	cd := newCountdown(c.cfg.ReadyFrames, c.cfg.CountdownSeconds)
	var (
		ticker *time.Ticker
		tickC  <-chan time.Time
	)
	syncTicker := func() {
		switch {
		case cd.running() && ticker == nil:
			ticker = time.NewTicker(c.cfg.TickInterval)
			tickC = ticker.C
		case !cd.running() && ticker != nil:
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	if !c.write(newConnected(c.sessionID)) {
		return
	}

	for {
		var events [][]byte

		select {
		case <-c.quit:
			return
		case msg := <-c.send:
			events = [][]byte{msg}
		case result := <-c.verdicts:
			events = append([][]byte{newResult(result)}, cd.observe(result.ReadyForCapture)...)
		case <-tickC:
			events = cd.tick()
		case <-ping.C:
			events = [][]byte{newPing()}
		}

		syncTicker()
		for _, e := range events {
			if !c.write(e) {
				return
			}
		}
	}
}

func (c *Client) write(data []byte) bool {
	if data == nil {
		return true
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Debug("detection session write failed", slog.Any("error", err))
		// Unblock the read loop
		c.close()
		return false
	}
	return true
}

// decodeFrame decodes "data:image/<type>;base64,<payload>"
func decodeFrame(s string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasPrefix(s, "data:image/") || !strings.HasSuffix(meta, ";base64") {
		return nil, errInvalidFrame
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return nil, errInvalidFrame
	}
	return data, nil
}
