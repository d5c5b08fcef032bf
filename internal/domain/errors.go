package domain

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so wrapped copies produced by
// WithError still compare equal to the predefined sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		StatusCode: 500,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: 400,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing token",
		StatusCode: 401,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Rate limit exceeded, please try again later",
		StatusCode: 429,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "No client is connected to this detection session",
		StatusCode: 404,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		StatusCode: 422,
	}

	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		StatusCode: 422,
	}

	// Camera errors, one per failure cause surfaced by the media controller
	ErrCameraUnsupported = &AppError{
		Code:       "CAMERA_UNSUPPORTED",
		Message:    "This device does not support camera capture, please upload a photo instead",
		StatusCode: 400,
	}

	ErrCameraPermissionDenied = &AppError{
		Code:       "CAMERA_PERMISSION_DENIED",
		Message:    "Camera access was denied, allow camera permission and try again",
		StatusCode: 403,
	}

	ErrCameraNotFound = &AppError{
		Code:       "CAMERA_NOT_FOUND",
		Message:    "No camera was found on this device",
		StatusCode: 404,
	}

	ErrCameraBusy = &AppError{
		Code:       "CAMERA_BUSY",
		Message:    "The camera is already in use by another application",
		StatusCode: 409,
	}

	ErrCameraConstraints = &AppError{
		Code:       "CAMERA_CONSTRAINTS",
		Message:    "The camera does not support the requested resolution",
		StatusCode: 422,
	}

	ErrCameraTimeout = &AppError{
		Code:       "CAMERA_TIMEOUT",
		Message:    "The camera took too long to start, please try again",
		StatusCode: 504,
	}

	ErrCameraUnknown = &AppError{
		Code:       "CAMERA_ERROR",
		Message:    "The camera could not be started",
		StatusCode: 500,
	}

	// Detection channel errors
	ErrDetectionUnavailable = &AppError{
		Code:       "DETECTION_UNAVAILABLE",
		Message:    "Cannot connect to the face detection service",
		StatusCode: 503,
	}

	ErrDetectionServer = &AppError{
		Code:       "DETECTION_SERVER_ERROR",
		Message:    "The face detection service reported an error",
		StatusCode: 502,
	}

	// Capture errors
	ErrFaceNotReady = &AppError{
		Code:       "FACE_NOT_READY",
		Message:    "Face not recognized, please adjust your position and retry",
		StatusCode: 409,
	}

	ErrCountdownActive = &AppError{
		Code:       "COUNTDOWN_ACTIVE",
		Message:    "Automatic capture is in progress",
		StatusCode: 409,
	}

	ErrNotStreaming = &AppError{
		Code:       "NOT_STREAMING",
		Message:    "The camera is not running",
		StatusCode: 409,
	}

	ErrAlreadyStarted = &AppError{
		Code:       "ALREADY_STARTED",
		Message:    "The camera is already running",
		StatusCode: 409,
	}

	ErrNotCaptured = &AppError{
		Code:       "NOT_CAPTURED",
		Message:    "There is no photo to retake",
		StatusCode: 409,
	}

	ErrCaptureFailed = &AppError{
		Code:       "CAPTURE_FAILED",
		Message:    "The photo could not be captured",
		StatusCode: 500,
	}

	ErrControllerClosed = &AppError{
		Code:       "CONTROLLER_CLOSED",
		Message:    "The capture view has been closed",
		StatusCode: 410,
	}

	// Upstream service errors
	ErrUpstreamUnavailable = &AppError{
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    "The analysis service is unavailable, please try again later",
		StatusCode: 503,
	}

	ErrUpstreamResponse = &AppError{
		Code:       "UPSTREAM_INVALID_RESPONSE",
		Message:    "The analysis service returned an unexpected response",
		StatusCode: 502,
	}
)

// UserMessage returns the human readable message for err, falling back to the
// generic internal message when err is not an AppError.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}
