package capture

import (
	"context"
	"sync"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/media"
)

// Camera acquires and releases the camera. *media.Controller implements it.
type Camera interface {
	Start(ctx context.Context, profile domain.DeviceProfile) (*media.Handle, error)
	Stop(handle *media.Handle)
}

// Channel is an open detection channel
type Channel interface {
	Ready() bool
	SendFrame(image string) error
	Close(code int) error
}

// Dialer opens detection channels
type Dialer interface {
	Dial(ctx context.Context, sessionID string, listener detection.Listener) (Channel, error)
}

type detectionDialer struct {
	dialer *detection.Dialer
}

// NewDetectionDialer adapts a websocket detection dialer
func NewDetectionDialer(d *detection.Dialer) Dialer {
	return detectionDialer{dialer: d}
}

func (d detectionDialer) Dial(ctx context.Context, sessionID string, listener detection.Listener) (Channel, error) {
	ch, err := d.dialer.Dial(ctx, sessionID, listener)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// channelSink is the sampler's view of whichever channel is current
type channelSink struct {
	mu sync.RWMutex
	ch Channel
}

func (s *channelSink) set(ch Channel) {
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()
}

func (s *channelSink) Ready() bool {
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()
	return ch != nil && ch.Ready()
}

func (s *channelSink) SendFrame(image string) error {
	s.mu.RLock()
	ch := s.ch
	s.mu.RUnlock()

	if ch == nil {
		return detection.ErrChannelNotReady
	}
	return ch.SendFrame(image)
}
