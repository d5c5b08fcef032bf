// Package detection implements the client side of the real-time face
// detection channel: a websocket per capture session that streams sampled
// frames out and receives detection, countdown and capture events back.
package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
	closeGracePeriod        = time.Second
)

// Listener receives channel events. Both methods are called from the
// channel's read goroutine; OnClose is called exactly once.
type Listener interface {
	OnMessage(msg Message)
	OnClose(code int, reason string)
}

// Dialer opens detection channels against one detection service
type Dialer struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewDialer creates a dialer for the detection service at baseURL
// (ws, wss, http or https). token is appended as a query parameter when set.
func NewDialer(baseURL, token string, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		baseURL: baseURL,
		token:   token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		logger: logger,
	}
}

// Dial connects the channel for sessionID and starts delivering events to
// listener
func (d *Dialer) Dial(ctx context.Context, sessionID string, listener Listener) (*Channel, error) {
	target, err := SessionURL(d.baseURL, sessionID, d.token)
	if err != nil {
		return nil, err
	}

	conn, _, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial detection channel for session %s: %w", sessionID, err)
	}

	ch := &Channel{
		conn:      conn,
		sessionID: sessionID,
		listener:  listener,
		logger:    d.logger.With(slog.String("session_id", sessionID)),
		done:      make(chan struct{}),
	}

	go ch.readLoop()

	ch.logger.Debug("detection channel connected")
	return ch, nil
}

// Channel is one open detection websocket
type Channel struct {
	conn      *websocket.Conn
	sessionID string
	listener  Listener
	logger    *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	closing bool

	closeOnce sync.Once
	done      chan struct{}
}

// SessionID returns the session the channel was opened for
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Ready reports whether frames can be sent
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closing
}

// Done is closed when the read loop has exited
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// SendFrame sends one encoded video frame
func (c *Channel) SendFrame(image string) error {
	if !c.Ready() {
		return ErrChannelNotReady
	}
	return c.writeJSON(NewFrameMessage(image))
}

// Close closes the channel with code. Only the first call has an effect;
// the listener sees code as the close code.
func (c *Channel) Close(code int) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.report(code, "closed by client")

	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(closeGracePeriod),
	)
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}

	if cerr := c.conn.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return err
}

func (c *Channel) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write detection message: %w", err)
	}
	return nil
}

func (c *Channel) report(code int, reason string) {
	c.closeOnce.Do(func() {
		c.listener.OnClose(code, reason)
	})
}

func (c *Channel) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			code, reason := closeStatus(err)

			c.mu.Lock()
			c.closing = true
			c.mu.Unlock()

			c.logger.Debug("detection channel closed", slog.Int("code", code), slog.String("reason", reason))
			c.report(code, reason)
			_ = c.conn.Close()
			return
		}

		msg, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping detection message", slog.Any("error", err))
			continue
		}

		// Keep-alive is answered before anything else sees the ping
		if _, ok := msg.(Ping); ok {
			if err := c.writeJSON(ControlMessage{Type: TypePong}); err != nil {
				c.logger.Warn("failed to answer ping", slog.Any("error", err))
			}
		}

		c.listener.OnMessage(msg)
	}
}

// closeStatus extracts the websocket close code from a read error. Transport
// failures without a close frame are reported as abnormal closure (1006).
func closeStatus(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// Close codes used by the capture flow
const (
	CloseNormal   = websocket.CloseNormalClosure
	CloseAbnormal = websocket.CloseAbnormalClosure
)
