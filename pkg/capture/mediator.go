package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-verify/pkg/camera"
)

// DefaultReadyTimeout bounds camera initialization.
const DefaultReadyTimeout = 10 * time.Second

// Mediator decides which capture overlay is visible and with what
// parameters. At most one overlay is active at a time.
type Mediator struct {
	capability   camera.Capability
	options      *camera.Manager
	display      Display
	readyTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	active *Overlay
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithOptions sets the manager capture options are read from.
func WithOptions(m *camera.Manager) Option {
	return func(md *Mediator) {
		md.options = m
	}
}

// WithDisplay sets the display the guides are laid out on.
func WithDisplay(d Display) Option {
	return func(md *Mediator) {
		md.display = d
	}
}

// WithReadyTimeout bounds how long an overlay waits for the camera to
// initialize before reporting it unavailable. Zero waits indefinitely.
func WithReadyTimeout(d time.Duration) Option {
	return func(md *Mediator) {
		md.readyTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(md *Mediator) {
		md.logger = logger
	}
}

// NewMediator creates a mediator backed by capability.
func NewMediator(capability camera.Capability, opts ...Option) *Mediator {
	m := &Mediator{
		capability:   capability,
		options:      camera.NewManager(),
		display:      DefaultDisplay,
		readyTimeout: DefaultReadyTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Present shows an overlay for req. The outcome is reported to r exactly
// once, unless the overlay is dismissed first. A previously active overlay
// is dismissed.
func (m *Mediator) Present(t Ticket, req Request, r Resolver) {
	if req == nil {
		m.logger.Error("nil capture request", "ticket", t.ID)
		r.Resolve(Resolution{Ticket: t, Outcome: Exited{}})
		return
	}

	o := newOverlay(t, req, r, m.release, m.logger)
	o.readyTimeout = m.readyTimeout
	opts := m.options.Options()

	switch req := req.(type) {
	case PhotoRequest:
		facing, err := req.Step.Facing()
		if err != nil {
			o.logger.Warn("rejecting capture step", "step", string(req.Step))
			o.resolve(PhotoFailed{Failure: failureFor(err)})
			return
		}
		o.facing = facing
		if req.Step.ShowsGuide() {
			g := GuideFor(GuideKindFor(req.IDType), m.display)
			o.guide = &g
		}

	case BarcodeRequest:
		o.facing = camera.FacingBack
		g := GuideFor(GuideBarcode, m.display)
		o.guide = &g
		o.timeout = req.Timeout
		opts.Exif = false

	default:
		o.logger.Error("unsupported capture request", "type", fmt.Sprintf("%T", req))
		o.resolve(Exited{})
		return
	}

	m.mu.Lock()
	prev := m.active
	m.active = o
	m.mu.Unlock()

	if prev != nil {
		prev.logger.Warn("replacing active overlay")
		prev.Dismiss()
	}

	o.logger.Info("capture overlay shown", "facing", o.facing.String())
	o.startTimeout()
	go o.run(m.capability, opts)
}

// Dismiss releases the active overlay without reporting an outcome.
func (m *Mediator) Dismiss() {
	m.mu.Lock()
	o := m.active
	m.mu.Unlock()

	if o != nil {
		o.logger.Info("capture overlay dismissed")
		o.Dismiss()
	}
}

// Active returns the visible overlay, or nil.
func (m *Mediator) Active() *Overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Mediator) release(o *Overlay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == o {
		m.active = nil
	}
}
