package media

import (
	"context"
	"image"
)

// Source acquires camera streams, the equivalent of getUserMedia
type Source interface {
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is a live camera stream attached to a video sink
type Stream interface {
	// Tracks returns every hardware track backing the stream
	Tracks() []Track

	// WaitReady blocks until frame metadata is available or ctx is done
	WaitReady(ctx context.Context) error

	// Play starts rendering into the sink
	Play() error

	// Frame returns the most recent video frame
	Frame() (image.Image, error)

	// Done is closed once the stream stops producing frames, whether the
	// tracks were stopped or the device went away
	Done() <-chan struct{}

	// Err reports why the stream ended; nil while it is still running
	Err() error
}

// Track is a single hardware track. Stop must be safe to call more than once.
type Track interface {
	ID() string
	Stop() error
}
