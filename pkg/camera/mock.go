package camera

import (
	"context"
	"sync"
	"time"
)

// Mock implements Capability for testing.
// All behaviour can be customized via function fields.
type Mock struct {
	// OpenFunc is called when Open is invoked.
	// If nil, returns a MockHandle that is ready immediately.
	OpenFunc func(ctx context.Context, facing Facing, opts Options) (Handle, error)

	// Tracking
	mu      sync.Mutex
	calls   []MockCall
	handles []*MockHandle
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Facing Facing
	Time   time.Time
}

// NewMock creates a new mock capability with sensible defaults.
func NewMock() *Mock {
	return &Mock{}
}

// Open calls OpenFunc and records the call.
func (m *Mock) Open(ctx context.Context, facing Facing, opts Options) (Handle, error) {
	m.recordCall("Open", facing)
	if m.OpenFunc != nil {
		h, err := m.OpenFunc(ctx, facing, opts)
		if mh, ok := h.(*MockHandle); ok {
			m.track(mh)
		}
		return h, err
	}

	h := NewMockHandle()
	h.MarkReady()
	m.track(h)
	return h, nil
}

func (m *Mock) track(h *MockHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles = append(m.handles, h)
}

func (m *Mock) recordCall(method string, facing Facing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Facing: facing, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// LastHandle returns the most recently opened MockHandle, or nil.
func (m *Mock) LastHandle() *MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.handles) == 0 {
		return nil
	}
	return m.handles[len(m.handles)-1]
}

// MockHandle implements Handle for testing.
type MockHandle struct {
	// PictureFunc is called when TakePicture is invoked.
	// If nil, returns a small fake JPEG.
	PictureFunc func(ctx context.Context) (*Picture, error)

	// BarcodeFunc is called when ScanBarcode is invoked.
	// If nil, blocks until ctx ends.
	BarcodeFunc func(ctx context.Context) (string, error)

	// TorchFunc is called when SetTorch is invoked.
	// If nil, the torch state is recorded and nil returned.
	TorchFunc func(on bool) error

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	err     error
	closed  bool
	torch   bool
	onClose []func()
}

// NewMockHandle creates a handle that is not ready yet.
func NewMockHandle() *MockHandle {
	return &MockHandle{ready: make(chan struct{})}
}

// MarkReady closes the readiness channel.
func (h *MockHandle) MarkReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Fail ends initialization with err.
func (h *MockHandle) Fail(err error) {
	h.readyOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		close(h.ready)
	})
}

// OnClose registers fn to run inside Close.
func (h *MockHandle) OnClose(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = append(h.onClose, fn)
}

func (h *MockHandle) Ready() <-chan struct{} {
	return h.ready
}

func (h *MockHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *MockHandle) TakePicture(ctx context.Context) (*Picture, error) {
	if h.Closed() {
		return nil, ErrClosed
	}
	if h.PictureFunc != nil {
		return h.PictureFunc(ctx)
	}
	return &Picture{
		Data:   []byte{0xFF, 0xD8, 0xFF, 0xE0},
		Width:  1600,
		Height: 1008,
		Exif:   map[string]any{"Orientation": 1},
	}, nil
}

func (h *MockHandle) ScanBarcode(ctx context.Context) (string, error) {
	if h.BarcodeFunc != nil {
		return h.BarcodeFunc(ctx)
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (h *MockHandle) SetTorch(on bool) error {
	if h.TorchFunc != nil {
		if err := h.TorchFunc(on); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.torch = on
	return nil
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.torch = false
	hooks := h.onClose
	h.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Closed reports whether Close has been called.
func (h *MockHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Torch reports the last torch state.
func (h *MockHandle) Torch() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.torch
}

// Verify Mock implements Capability at compile time.
var (
	_ Capability = (*Mock)(nil)
	_ Handle     = (*MockHandle)(nil)
)
