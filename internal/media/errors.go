package media

import (
	"errors"
	"os"
	"strings"
	"syscall"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
)

// Errors returned by Source implementations
var (
	ErrPermissionDenied = errors.New("media: permission denied")
	ErrDeviceNotFound   = errors.New("media: device not found")
	ErrDeviceBusy       = errors.New("media: device busy")
	ErrOverconstrained  = errors.New("media: constraints cannot be satisfied")
	ErrHandleStopped    = errors.New("media: handle stopped")
	ErrNoFrame          = errors.New("media: no frame available")
)

// Classify maps an acquisition failure onto the user facing camera error
// taxonomy. Errors that are already AppErrors pass through unchanged.
func Classify(err error) *domain.AppError {
	if err == nil {
		return nil
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, os.ErrPermission),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM):
		return domain.ErrCameraPermissionDenied.WithError(err)

	case errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, syscall.ENODEV):
		return domain.ErrCameraNotFound.WithError(err)

	case errors.Is(err, ErrDeviceBusy),
		errors.Is(err, syscall.EBUSY):
		return domain.ErrCameraBusy.WithError(err)

	case errors.Is(err, ErrOverconstrained):
		return domain.ErrCameraConstraints.WithError(err)
	}

	// Drivers that do not wrap errno still spell it out
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "not allowed"):
		return domain.ErrCameraPermissionDenied.WithError(err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return domain.ErrCameraBusy.WithError(err)
	case strings.Contains(msg, "no such device"), strings.Contains(msg, "not found"):
		return domain.ErrCameraNotFound.WithError(err)
	}

	return domain.ErrCameraUnknown.WithError(err)
}
