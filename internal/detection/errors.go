package detection

import "errors"

var (
	ErrMalformedMessage = errors.New("malformed detection message")
	ErrChannelNotReady  = errors.New("detection channel not ready")
	ErrInvalidSession   = errors.New("invalid detection session id")
)
