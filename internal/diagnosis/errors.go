package diagnosis

import (
	"errors"
	"fmt"
)

var (
	ErrServiceUnavailable = errors.New("diagnosis service unavailable")
	ErrInvalidResponse    = errors.New("invalid response from diagnosis service")
	ErrNoImage            = errors.New("no image to diagnose")
	ErrInvalidDataURL     = errors.New("invalid image data url")
)

// StatusError is a non-2xx reply from the diagnosis service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("diagnosis service returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) clientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
