// Package camera provides the native capture capability consumed by the
// capture overlay: opening a device for a facing direction, signalling
// readiness, taking stills, scanning barcodes and toggling the torch.
package camera

import (
	"fmt"
	"slices"
)

// Facing selects which physical camera a capture uses.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

// String returns the facing name used in logs and API responses.
func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// MarshalText encodes the facing as its name.
func (f Facing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes "front" or "back".
func (f *Facing) UnmarshalText(text []byte) error {
	switch string(text) {
	case "back":
		*f = FacingBack
	case "front":
		*f = FacingFront
	default:
		return fmt.Errorf("camera: unknown facing %q", string(text))
	}
	return nil
}

// Options holds the capture parameters passed to a capability.
// They can be modified at runtime through a Manager.
type Options struct {
	// Width is the maximum encoded image width in pixels.
	// Wider frames are downscaled, narrower frames are kept as-is.
	Width int `json:"width"`

	// Quality is the JPEG quality 1-100.
	Quality int `json:"quality"`

	// Exif requests capture metadata alongside the image.
	Exif bool `json:"exif"`

	// Persist saves every capture under PersistDir in addition to
	// returning it.
	Persist    bool   `json:"persist"`
	PersistDir string `json:"persist_dir,omitempty"`

	// BarcodeFormats lists the symbologies a scan should accept. A
	// capability that decodes none of them fails the scan with
	// ErrUnsupportedFormat.
	BarcodeFormats []string `json:"barcode_formats,omitempty"`
}

// Capture limits
const (
	MinWidth   = 320
	MaxWidth   = 4608
	MinQuality = 1
	MaxQuality = 100
)

// Barcode symbologies
const (
	FormatPDF417  = "pdf417"
	FormatQR      = "qr"
	FormatCode128 = "code128"
	FormatAztec   = "aztec"
)

var knownBarcodeFormats = map[string]bool{
	FormatPDF417:  true,
	FormatQR:      true,
	FormatCode128: true,
	FormatAztec:   true,
}

// AcceptsFormat reports whether a scan may return format.
func (o *Options) AcceptsFormat(format string) bool {
	return slices.Contains(o.BarcodeFormats, format)
}

// DefaultOptions returns the options used for document and selfie stills.
func DefaultOptions() Options {
	return Options{
		Width:          1600,
		Quality:        80,
		Exif:           true,
		Persist:        false,
		BarcodeFormats: []string{FormatPDF417, FormatQR},
	}
}

// BarcodeOptions returns the options used while scanning a barcode.
func BarcodeOptions() Options {
	cfg := DefaultOptions()
	cfg.Width = 1280
	cfg.Exif = false
	return cfg
}

// Validate checks if the option values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (o *Options) Validate() []string {
	var errors []string

	if o.Width < MinWidth || o.Width > MaxWidth {
		errors = append(errors, "width must be between 320 and 4608")
	}
	if o.Quality < MinQuality || o.Quality > MaxQuality {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if o.Persist && o.PersistDir == "" {
		errors = append(errors, "persist_dir is required when persist is enabled")
	}
	for _, f := range o.BarcodeFormats {
		if !knownBarcodeFormats[f] {
			errors = append(errors, "unknown barcode format: "+f)
		}
	}

	return errors
}
