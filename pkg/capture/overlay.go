package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-verify/pkg/camera"
	"github.com/teslashibe/go-verify/pkg/protocol"
)

// Failure codes mirrored to the content in NATIVE_PHOTO_ERROR payloads.
const (
	CodeNotAuthorized   = "NOT_AUTHORIZED"
	CodeUnavailable     = "UNAVAILABLE"
	CodeCaptureFailed   = "CAPTURE_FAILED"
	CodeUnsupportedStep = "UNSUPPORTED_STEP"
	CodeCancelled       = "CANCELLED"
)

// Overlay is one visible capture UI. It owns the camera handle from open
// until it resolves or is dismissed.
type Overlay struct {
	ticket       Ticket
	request      Request
	facing       camera.Facing
	guide        *Guide
	timeout      time.Duration
	readyTimeout time.Duration

	resolver  Resolver
	onRelease func(*Overlay)
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	handle  camera.Handle
	isReady bool
	busy    bool
	torch   bool
	closed  bool
	timer   *time.Timer
}

// View is a snapshot of the overlay for rendering or the control API.
type View struct {
	Ticket        Ticket        `json:"ticket"`
	Mode          Mode          `json:"mode"`
	Step          Step          `json:"step,omitempty"`
	IDType        string        `json:"id_type,omitempty"`
	BackFormat    string        `json:"back_format,omitempty"`
	Facing        camera.Facing `json:"facing"`
	Guide         *Guide        `json:"guide"`
	TimeoutMillis int64         `json:"timeout_ms,omitempty"`
	Ready         bool          `json:"ready"`
	Busy          bool          `json:"busy"`
	Torch         bool          `json:"torch"`
}

func newOverlay(t Ticket, req Request, r Resolver, onRelease func(*Overlay), logger *slog.Logger) *Overlay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Overlay{
		ticket:    t,
		request:   req,
		resolver:  r,
		onRelease: onRelease,
		logger:    logger.With("ticket", t.ID, "generation", t.Generation, "mode", req.Mode().String()),
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Ticket returns the request the overlay answers.
func (o *Overlay) Ticket() Ticket { return o.ticket }

// Mode returns the overlay's capture mode.
func (o *Overlay) Mode() Mode { return o.request.Mode() }

// Ready is closed once the shutter is enabled.
func (o *Overlay) Ready() <-chan struct{} { return o.ready }

// Done is closed once the overlay resolved or was dismissed.
func (o *Overlay) Done() <-chan struct{} { return o.done }

// View returns the current overlay state.
func (o *Overlay) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	v := View{
		Ticket:        o.ticket,
		Mode:          o.request.Mode(),
		Facing:        o.facing,
		Guide:         o.guide,
		TimeoutMillis: o.timeout.Milliseconds(),
		Ready:         o.isReady,
		Busy:          o.busy,
		Torch:         o.torch,
	}
	if req, ok := o.request.(PhotoRequest); ok {
		v.Step = req.Step
		v.IDType = req.IDType
		v.BackFormat = req.BackFormat
	}
	return v
}

// run opens the device, waits for readiness and, in barcode mode, scans.
func (o *Overlay) run(capability camera.Capability, opts camera.Options) {
	h, err := capability.Open(o.ctx, o.facing, opts)
	if err != nil {
		if o.ctx.Err() != nil {
			return
		}
		o.logger.Warn("camera open failed", "error", err)
		o.openFailed(err)
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		h.Close()
		return
	}
	o.handle = h
	o.mu.Unlock()

	if err := o.awaitReady(h); err != nil {
		if o.ctx.Err() != nil {
			return
		}
		o.logger.Warn("camera failed to initialize", "error", err)
		o.openFailed(err)
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.isReady = true
	o.mu.Unlock()
	close(o.ready)
	o.logger.Debug("camera ready")

	if o.Mode() == ModeBarcode {
		o.scan(h)
	}
}

// awaitReady blocks until h finished initializing, the overlay ends or the
// readiness deadline passes.
func (o *Overlay) awaitReady(h camera.Handle) error {
	var deadline <-chan time.Time
	if o.readyTimeout > 0 {
		t := time.NewTimer(o.readyTimeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-h.Ready():
		return h.Err()
	case <-o.ctx.Done():
		return o.ctx.Err()
	case <-deadline:
		return fmt.Errorf("%w: not ready after %v", camera.ErrUnavailable, o.readyTimeout)
	}
}

func (o *Overlay) openFailed(err error) {
	if o.Mode() == ModeBarcode {
		o.resolve(BarcodeFallback{})
		return
	}
	o.resolve(PhotoFailed{Failure: failureFor(err)})
}

func (o *Overlay) scan(h camera.Handle) {
	payload, err := h.ScanBarcode(o.ctx)
	if err != nil {
		if o.ctx.Err() != nil {
			return
		}
		o.logger.Warn("barcode scan failed", "error", err)
		o.resolve(BarcodeFallback{})
		return
	}
	o.resolve(BarcodeRead{Payload: payload})
}

// Shutter takes the photo. It is rejected until the camera is ready and
// while a previous capture is still in flight.
func (o *Overlay) Shutter() error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.Mode() != ModePhoto:
		o.mu.Unlock()
		return ErrWrongMode
	case !o.isReady:
		o.mu.Unlock()
		return ErrNotReady
	case o.busy:
		o.mu.Unlock()
		return ErrBusy
	}
	o.busy = true
	h := o.handle
	o.mu.Unlock()

	go func() {
		pic, err := h.TakePicture(o.ctx)
		if err == nil && pic == nil {
			err = errNoImage
		}
		if err != nil {
			if o.ctx.Err() != nil {
				return
			}
			o.logger.Warn("photo capture failed", "error", err)
			o.resolve(PhotoFailed{Failure: failureFor(err)})
			return
		}
		o.resolve(PhotoTaken{Picture: pic})
	}()
	return nil
}

// ToggleTorch flips the light in barcode mode and returns the new state.
func (o *Overlay) ToggleTorch() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.closed:
		return o.torch, ErrClosed
	case o.Mode() != ModeBarcode:
		return o.torch, ErrWrongMode
	case o.handle == nil:
		return o.torch, ErrNotReady
	}

	want := !o.torch
	if err := o.handle.SetTorch(want); err != nil {
		return o.torch, err
	}
	o.torch = want
	return o.torch, nil
}

// Fallback abandons the scan and asks the content for its manual path.
func (o *Overlay) Fallback() error {
	if o.Mode() != ModeBarcode {
		return ErrWrongMode
	}
	if !o.resolve(BarcodeFallback{}) {
		return ErrClosed
	}
	return nil
}

// Exit closes the overlay. A photo capture reports CANCELLED so the
// content always hears back; a barcode scan exits silently.
func (o *Overlay) Exit() error {
	var outcome Outcome = Exited{}
	if o.Mode() == ModePhoto {
		outcome = PhotoFailed{Failure: CancelledFailure()}
	}
	if !o.resolve(outcome) {
		return ErrClosed
	}
	return nil
}

// Dismiss releases the overlay without reporting anything.
func (o *Overlay) Dismiss() {
	o.once.Do(o.release)
}

// resolve releases the camera and then reports outcome. Only the first
// call has an effect.
func (o *Overlay) resolve(outcome Outcome) bool {
	resolved := false
	o.once.Do(func() {
		resolved = true
		o.release()
		o.resolver.Resolve(Resolution{Ticket: o.ticket, Outcome: outcome})
	})
	return resolved
}

func (o *Overlay) release() {
	o.cancel()

	o.mu.Lock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
	}
	h := o.handle
	torch := o.torch
	o.torch = false
	o.mu.Unlock()

	if h != nil {
		if torch {
			if err := h.SetTorch(false); err != nil {
				o.logger.Debug("torch off failed", "error", err)
			}
		}
		if err := h.Close(); err != nil {
			o.logger.Warn("camera close failed", "error", err)
		}
	}

	close(o.done)
	if o.onRelease != nil {
		o.onRelease(o)
	}
}

// startTimeout arms the advisory barcode timeout.
func (o *Overlay) startTimeout() {
	if o.timeout <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timer = time.AfterFunc(o.timeout, func() {
		o.logger.Info("barcode scan timed out", "timeout", o.timeout)
		o.resolve(BarcodeFallback{})
	})
}

// CancelledFailure is reported when the user leaves a photo capture.
func CancelledFailure() protocol.Failure {
	return protocol.Failure{Message: "Photo capture was cancelled.", Code: CodeCancelled}
}

var errNoImage = errors.New("capture: capability returned no image")

// failureFor maps a capability error onto the payload the content sees.
func failureFor(err error) protocol.Failure {
	switch {
	case errors.Is(err, camera.ErrNotAuthorized):
		return protocol.Failure{Message: "Camera must be authorized to capture photos.", Code: CodeNotAuthorized}
	case errors.Is(err, camera.ErrUnavailable):
		return protocol.Failure{Message: "Camera is not available on this device.", Code: CodeUnavailable}
	case errors.Is(err, ErrUnknownStep):
		return protocol.Failure{Message: err.Error(), Code: CodeUnsupportedStep}
	}
	return protocol.Failure{Message: "Photo capture failed: " + err.Error(), Code: CodeCaptureFailed}
}
