// Package mock provides a deterministic camera for tests and for running the
// capture client on machines without camera hardware.
package mock

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/media"
)

const (
	defaultWidth  = 320
	defaultHeight = 240
)

// ErrTrackStopped is the end reason of a stream whose track was stopped
var ErrTrackStopped = errors.New("mock: track stopped")

// Source is a synthetic camera. Zero values open immediately and produce
// frames; set the exported fields to script failures.
type Source struct {
	// OpenErr is returned by Open when set
	OpenErr error
	// ReadyDelay delays WaitReady; a negative value never becomes ready
	ReadyDelay time.Duration
	// PlayErr is returned by Play when set
	PlayErr error
	// NoCamera makes HasVideoInput report false
	NoCamera bool

	Width  int
	Height int

	mu          sync.Mutex
	opens       int
	constraints []media.Constraints
	tracks      []*Track
	streams     []*Stream
}

// New creates a mock camera with a 320x240 frame size
func New() *Source {
	return &Source{Width: defaultWidth, Height: defaultHeight}
}

func (s *Source) HasVideoInput() bool {
	return !s.NoCamera
}

func (s *Source) Open(ctx context.Context, constraints media.Constraints) (media.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens++
	s.constraints = append(s.constraints, constraints)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}

	width, height := s.Width, s.Height
	if width <= 0 || height <= 0 {
		width, height = defaultWidth, defaultHeight
	}

	track := &Track{id: fmt.Sprintf("mock-video-%d", s.opens), source: s, live: true}
	stream := &Stream{
		source: s,
		track:  track,
		width:  width,
		height: height,
		delay:  s.ReadyDelay,
		done:   make(chan struct{}),
	}
	track.stream = stream
	s.tracks = append(s.tracks, track)
	s.streams = append(s.streams, stream)

	return stream, nil
}

// Disconnect ends every open stream with err, the way an unplugged camera
// ends its tracks. The tracks stay owned until they are stopped.
func (s *Source) Disconnect(err error) {
	s.mu.Lock()
	streams := append([]*Stream(nil), s.streams...)
	s.mu.Unlock()

	for _, stream := range streams {
		stream.end(err)
	}
}

// Opens returns how many times Open was called
func (s *Source) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// LastConstraints returns the constraints of the most recent Open call
func (s *Source) LastConstraints() media.Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.constraints) == 0 {
		return media.Constraints{}
	}
	return s.constraints[len(s.constraints)-1]
}

// LiveTracks returns the number of tracks that have not been stopped
func (s *Source) LiveTracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := 0
	for _, t := range s.tracks {
		if t.live {
			live++
		}
	}
	return live
}

// Track is a mock hardware track
type Track struct {
	id     string
	source *Source
	stream *Stream
	live   bool
	stops  int
}

func (t *Track) ID() string {
	return t.id
}

func (t *Track) Stop() error {
	t.source.mu.Lock()
	t.live = false
	t.stops++
	t.source.mu.Unlock()

	t.stream.end(ErrTrackStopped)
	return nil
}

// Stream is a mock camera stream producing a moving gradient
type Stream struct {
	source *Source
	track  *Track
	width  int
	height int
	delay  time.Duration

	mu    sync.Mutex
	frame int
	done  chan struct{}
	err   error
}

func (s *Stream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	s.err = err
	close(s.done)
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Tracks() []media.Track {
	return []media.Track{s.track}
}

func (s *Stream) WaitReady(ctx context.Context) error {
	if s.delay < 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.delay == 0 {
		return nil
	}

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) Play() error {
	return s.source.PlayErr
}

func (s *Stream) Frame() (image.Image, error) {
	s.source.mu.Lock()
	live := s.track.live
	s.source.mu.Unlock()

	if !live {
		return nil, media.ErrNoFrame
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return nil, media.ErrNoFrame
	default:
	}
	s.frame++
	shift := s.frame
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + shift) % 256),
				G: uint8(y % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img, nil
}

var (
	_ media.Source = (*Source)(nil)
	_ media.Stream = (*Stream)(nil)
	_ media.Track  = (*Track)(nil)
)
