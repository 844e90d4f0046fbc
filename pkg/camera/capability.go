package camera

import "context"

// Capability opens camera devices. Implementations may prompt for
// permission; a denial surfaces as ErrNotAuthorized from Open.
type Capability interface {
	Open(ctx context.Context, facing Facing, opts Options) (Handle, error)
}

// Handle is a live device owned by a single capture overlay.
type Handle interface {
	// Ready is closed once initialization finished, successfully or not.
	Ready() <-chan struct{}

	// Err reports why initialization failed. It is nil before Ready is
	// closed and after a successful start.
	Err() error

	// TakePicture captures and encodes one still.
	TakePicture(ctx context.Context) (*Picture, error)

	// ScanBarcode blocks until a barcode is decoded or ctx ends.
	ScanBarcode(ctx context.Context) (string, error)

	// SetTorch switches the light on or off.
	SetTorch(on bool) error

	// Close stops the preview and the torch. It is safe to call twice.
	Close() error
}

// Picture is an encoded still image.
type Picture struct {
	Data   []byte
	Width  int
	Height int
	Exif   map[string]any
}
