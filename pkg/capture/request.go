// Package capture mediates native capture overlays for the bridge.
//
// A Mediator turns an abstract capture request into capability parameters
// (facing, guide geometry, options), owns the live camera handle while the
// overlay is visible, gates the shutter on hardware readiness and reports
// exactly one Resolution per request.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-verify/pkg/camera"
)

var (
	// ErrUnknownStep is returned for a step outside the known enumeration.
	ErrUnknownStep = errors.New("capture: unknown step")

	// ErrNotReady is returned when the shutter is pressed before the
	// hardware reported readiness.
	ErrNotReady = errors.New("capture: camera not ready")

	// ErrBusy is returned when a capture is already in flight.
	ErrBusy = errors.New("capture: capture in progress")

	// ErrWrongMode is returned for actions the overlay's mode does not offer.
	ErrWrongMode = errors.New("capture: action not available in this mode")

	// ErrClosed is returned for actions on a resolved or dismissed overlay.
	ErrClosed = errors.New("capture: overlay closed")
)

// Step is the document capture step requested by the remote flow.
type Step string

const (
	StepFront    Step = "FRONT"
	StepBack     Step = "BACK"
	StepPassport Step = "PASSPORT"
	StepSelfie   Step = "SELFIE"
	StepLiveness Step = "LIVENESS"
)

// Facing returns the camera the step is captured with.
func (s Step) Facing() (camera.Facing, error) {
	switch s {
	case StepFront, StepBack, StepPassport:
		return camera.FacingBack, nil
	case StepSelfie, StepLiveness:
		return camera.FacingFront, nil
	}
	return camera.FacingBack, fmt.Errorf("%w: %q", ErrUnknownStep, string(s))
}

// ShowsGuide reports whether the step renders a document guide.
func (s Step) ShowsGuide() bool {
	switch s {
	case StepFront, StepBack, StepPassport:
		return true
	}
	return false
}

// Mode is the kind of capture an overlay runs.
type Mode int

const (
	ModeNone Mode = iota
	ModePhoto
	ModeBarcode
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePhoto:
		return "photo"
	case ModeBarcode:
		return "barcode"
	}
	return "none"
}

// MarshalText encodes the mode as its name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*m = ModeNone
	case "photo":
		*m = ModePhoto
	case "barcode":
		*m = ModeBarcode
	default:
		return fmt.Errorf("capture: unknown mode %q", string(text))
	}
	return nil
}

// Request is a PhotoRequest or a BarcodeRequest.
type Request interface {
	Mode() Mode
}

// PhotoRequest asks for a still image.
type PhotoRequest struct {
	// IDType selects the guide geometry only.
	IDType string `json:"id_type"`
	Step   Step   `json:"step"`

	// BackFormat is passed through uninterpreted.
	BackFormat string `json:"back_format"`
}

// BarcodeRequest asks for a barcode scan.
type BarcodeRequest struct {
	// Timeout is advisory; zero disables it.
	Timeout time.Duration `json:"timeout"`
}

func (PhotoRequest) Mode() Mode   { return ModePhoto }
func (BarcodeRequest) Mode() Mode { return ModeBarcode }
