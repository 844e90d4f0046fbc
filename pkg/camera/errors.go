package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for common capability failures.
var (
	// ErrNotAuthorized is returned when the user denied camera access.
	ErrNotAuthorized = errors.New("camera: not authorized")

	// ErrUnavailable is returned when no usable device exists for a facing.
	ErrUnavailable = errors.New("camera: hardware unavailable")

	// ErrClosed is returned by operations on a released handle.
	ErrClosed = errors.New("camera: handle closed")

	// ErrTorchUnsupported is returned when the device has no controllable light.
	ErrTorchUnsupported = errors.New("camera: torch not supported")

	// ErrUnsupportedFormat is returned by a scan when the device decodes
	// none of the requested barcode formats.
	ErrUnsupportedFormat = errors.New("camera: no supported barcode format")
)

// DeviceError wraps an error with device context.
type DeviceError struct {
	Device string
	Err    error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera [%s]: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with device context.
func WrapError(device string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Device: device, Err: err}
}
