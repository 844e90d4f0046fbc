// Package gocvcam implements camera.Capability on local video devices
// through OpenCV. It is kept apart from package camera so that only the
// host binary links against OpenCV.
package gocvcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-verify/pkg/camera"
)

// Warm-up and scan pacing
const (
	warmupFrames = 30
	scanInterval = 100 * time.Millisecond
)

// Formats lists the barcode symbologies OpenCV can decode. The build
// exposes a QR detector only.
var Formats = []string{camera.FormatQR}

// Capability opens local video devices by index.
type Capability struct {
	// RearDevice and FrontDevice are the OpenCV device indexes used for
	// each facing.
	RearDevice  int
	FrontDevice int

	Logger *slog.Logger
}

// New creates a capability for the given device indexes.
func New(rear, front int) *Capability {
	return &Capability{
		RearDevice:  rear,
		FrontDevice: front,
		Logger:      slog.Default(),
	}
}

// Open opens the device for facing and starts warming it up.
func (c *Capability) Open(ctx context.Context, facing camera.Facing, opts camera.Options) (camera.Handle, error) {
	index := c.RearDevice
	if facing == camera.FacingFront {
		index = c.FrontDevice
	}
	device := strconv.Itoa(index)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, camera.WrapError(device, fmt.Errorf("%w: %v", camera.ErrUnavailable, err))
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, camera.WrapError(device, camera.ErrUnavailable)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))

	h := &handle{
		device: device,
		facing: facing,
		opts:   opts,
		vc:     vc,
		ready:  make(chan struct{}),
		logger: c.Logger.With("device", device, "facing", facing.String()),
	}
	go h.warmup()

	return h, nil
}

type handle struct {
	device string
	facing camera.Facing
	opts   camera.Options
	logger *slog.Logger

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	closed bool
	err    error

	ready     chan struct{}
	readyOnce sync.Once
}

// warmup reads frames until the device produces a usable one. A device
// that stays dark fails initialization with ErrUnavailable.
func (h *handle) warmup() {
	img := gocv.NewMat()
	defer img.Close()

	for i := 0; i < warmupFrames; i++ {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			h.finish(camera.ErrClosed)
			return
		}
		ok := h.vc.Read(&img)
		h.mu.Unlock()

		if ok && !img.Empty() {
			h.finish(nil)
			h.logger.Debug("camera ready", "frames", i+1)
			return
		}
		time.Sleep(scanInterval)
	}

	h.logger.Warn("camera produced no frames during warm-up", "frames", warmupFrames)
	h.finish(camera.WrapError(h.device, fmt.Errorf("%w: no frames during warm-up", camera.ErrUnavailable)))
}

func (h *handle) finish(err error) {
	h.readyOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.ready)
	})
}

func (h *handle) Ready() <-chan struct{} {
	return h.ready
}

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// readFrame grabs the next frame into img.
func (h *handle) readFrame(img *gocv.Mat) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return camera.ErrClosed
	}
	if ok := h.vc.Read(img); !ok || img.Empty() {
		return camera.WrapError(h.device, errors.New("failed to read frame"))
	}
	return nil
}

func (h *handle) TakePicture(ctx context.Context) (*camera.Picture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.NewMat()
	defer img.Close()

	if err := h.readFrame(&img); err != nil {
		return nil, err
	}

	if img.Cols() > h.opts.Width {
		scaled := gocv.NewMat()
		defer scaled.Close()
		height := img.Rows() * h.opts.Width / img.Cols()
		gocv.Resize(img, &scaled, image.Pt(h.opts.Width, height), 0, 0, gocv.InterpolationArea)
		img, scaled = scaled, img
	}

	buf, err := gocv.IMEncodeWithParams(".jpg", img, []int{int(gocv.IMWriteJpegQuality), h.opts.Quality})
	if err != nil {
		return nil, camera.WrapError(h.device, fmt.Errorf("failed to encode frame: %w", err))
	}
	defer buf.Close()

	data := append([]byte(nil), buf.GetBytes()...)

	pic := &camera.Picture{
		Data:   data,
		Width:  img.Cols(),
		Height: img.Rows(),
	}
	if h.opts.Exif {
		pic.Exif = map[string]any{
			"ImageWidth":       pic.Width,
			"ImageLength":      pic.Height,
			"Orientation":      1,
			"LensFacing":       h.facing.String(),
			"DateTimeOriginal": time.Now().Format("2006:01:02 15:04:05"),
		}
	}

	if h.opts.Persist {
		name := filepath.Join(h.opts.PersistDir, fmt.Sprintf("capture-%d.jpg", time.Now().UnixNano()))
		if err := os.WriteFile(name, data, 0o600); err != nil {
			h.logger.Warn("failed to persist capture", "path", name, "error", err)
		}
	}

	return pic, nil
}

// ScanBarcode polls frames through the OpenCV QR detector until one decodes.
func (h *handle) ScanBarcode(ctx context.Context) (string, error) {
	if !h.opts.AcceptsFormat(camera.FormatQR) {
		return "", camera.WrapError(h.device, fmt.Errorf("%w: requested %v, have %v",
			camera.ErrUnsupportedFormat, h.opts.BarcodeFormats, Formats))
	}

	detector := gocv.NewQRCodeDetector()
	defer detector.Close()

	img := gocv.NewMat()
	defer img.Close()
	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		if err := h.readFrame(&img); err != nil {
			if errors.Is(err, camera.ErrClosed) {
				return "", err
			}
			continue
		}

		if payload := detector.DetectAndDecode(img, &points, &straight); payload != "" {
			return payload, nil
		}
	}
}

// SetTorch is unsupported: OpenCV exposes no light control.
func (h *handle) SetTorch(on bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return camera.ErrClosed
	}
	if !on {
		return nil
	}
	return camera.WrapError(h.device, camera.ErrTorchUnsupported)
}

func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	err := h.vc.Close()
	h.mu.Unlock()

	h.finish(camera.ErrClosed)
	if err != nil {
		return camera.WrapError(h.device, fmt.Errorf("failed to close: %w", err))
	}
	return nil
}

// Verify Capability implements camera.Capability at compile time.
var _ camera.Capability = (*Capability)(nil)
