// Package verify implements the bridge between embedded verification
// content and native capture.
//
// The Bridge loads the content URL into a ContentHost, consumes the
// messages the content posts back, drives a Presenter for native capture
// and delivers capture outcomes into the content as injected script.
// Capture results are fenced by the content generation: anything tagged
// with a generation older than the last reload is dropped.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-verify/pkg/camera"
	"github.com/teslashibe/go-verify/pkg/capture"
	"github.com/teslashibe/go-verify/pkg/protocol"
)

// ContentHost is the surface the remote content runs in.
type ContentHost interface {
	// Load (re)creates the content from url.
	Load(url string) error

	// InjectScript evaluates script inside the content.
	InjectScript(script string) error

	// Messages yields the raw messages the content posts.
	Messages() <-chan []byte
}

// Presenter shows native capture UI. *capture.Mediator satisfies it.
type Presenter interface {
	Present(t capture.Ticket, req capture.Request, r capture.Resolver)
	Dismiss()
}

// State is the capture state of a session.
type State int

const (
	StateIdle State = iota
	StateAwaitingPhotoCapture
	StateAwaitingBarcodeCapture
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAwaitingPhotoCapture:
		return "awaiting_photo_capture"
	case StateAwaitingBarcodeCapture:
		return "awaiting_barcode_capture"
	}
	return "idle"
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a snapshot of the bridge state.
type Session struct {
	ID             string          `json:"id"`
	Generation     uint64          `json:"generation"`
	State          State           `json:"state"`
	OverlayVisible bool            `json:"overlay_visible"`
	DisplayHeight  float64         `json:"display_height"`
	Hidden         bool            `json:"hidden"`
	URL            string          `json:"url,omitempty"`
	Ticket         *capture.Ticket `json:"ticket,omitempty"`
	Pending        capture.Request `json:"pending,omitempty"`
}

// Completion is the verification outcome. Exactly one field is set.
type Completion struct {
	Result *Result
	Error  *ErrorInfo
}

// Success reports whether verification succeeded.
func (c Completion) Success() bool { return c.Result != nil }

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// Bridge is the protocol core. Inbound messages are handled one at a time
// in arrival order; capture resolutions may arrive from any goroutine.
type Bridge struct {
	host      ContentHost
	presenter Presenter
	logger    *slog.Logger

	// recv serializes inbound messages.
	recv sync.Mutex

	// out orders deliveries against generation bumps. It is taken before
	// mu and held while a script is injected, so mu never waits on the host.
	out sync.Mutex

	mu        sync.Mutex
	cfg       Config
	url       string
	started   bool
	id        string
	gen       uint64
	height    float64
	hidden    bool
	pending   capture.Request
	ticket    capture.Ticket
	completed bool
	done      chan Completion
}

// New creates a bridge that loads content into host and shows capture UI
// through presenter.
func New(host ContentHost, presenter Presenter, opts ...Option) *Bridge {
	b := &Bridge{
		host:      host,
		presenter: presenter,
		logger:    slog.Default(),
		id:        uuid.NewString(),
		done:      make(chan Completion, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("session", b.id)
	return b
}

// Start validates cfg, builds the content URL and loads it.
func (b *Bridge) Start(cfg Config) error {
	u, err := ContentURL(cfg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.cfg = cfg
	b.url = u
	b.started = true
	b.mu.Unlock()

	b.logger.Info("loading verification content", "url", u)
	return b.host.Load(u)
}

// Run feeds host messages into Receive until the stream closes or ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	messages := b.host.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			b.Receive(raw)
		}
	}
}

// Receive handles one raw message from the content. Malformed and
// unknown messages are logged and dropped.
func (b *Bridge) Receive(raw []byte) {
	msg, err := protocol.ParseInbound(raw)
	if err != nil {
		b.logger.Warn("dropping inbound message", "error", err, "size", len(raw))
		return
	}

	b.recv.Lock()
	defer b.recv.Unlock()

	b.logger.Debug("inbound message", "type", string(msg.Type()))
	msg.Dispatch(dispatcher{b})
}

// Session returns a snapshot of the session.
func (b *Bridge) Session() Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Session{
		ID:             b.id,
		Generation:     b.gen,
		State:          b.stateLocked(),
		OverlayVisible: b.pending != nil,
		DisplayHeight:  b.height,
		Hidden:         b.hidden,
		URL:            b.url,
		Pending:        b.pending,
	}
	if b.pending != nil {
		t := b.ticket
		s.Ticket = &t
	}
	return s
}

// Done delivers the verification outcome once.
func (b *Bridge) Done() <-chan Completion {
	return b.done
}

func (b *Bridge) stateLocked() State {
	switch b.pending.(type) {
	case capture.PhotoRequest:
		return StateAwaitingPhotoCapture
	case capture.BarcodeRequest:
		return StateAwaitingBarcodeCapture
	}
	return StateIdle
}

// Resolve delivers a capture outcome to the content. Outcomes for a stale
// generation or an unknown ticket are discarded. An outcome that does not
// fit the pending request still ends it, so the content always hears back.
func (b *Bridge) Resolve(res capture.Resolution) {
	b.out.Lock()
	defer b.out.Unlock()

	logger := b.logger.With("ticket", res.Ticket.ID, "generation", res.Ticket.Generation)

	b.mu.Lock()
	if b.pending == nil || res.Ticket != b.ticket || res.Ticket.Generation != b.gen {
		gen := b.gen
		b.mu.Unlock()
		logger.Info("discarding stale capture outcome", "current_generation", gen)
		return
	}
	req := b.pending
	b.pending = nil
	b.ticket = capture.Ticket{}
	b.mu.Unlock()

	if out := outboundFor(logger, req, res.Outcome); out != nil {
		b.deliver(logger, out)
	}
}

// outboundFor maps outcome onto the message answering req. A barcode exit
// answers nothing.
func outboundFor(logger *slog.Logger, req capture.Request, outcome capture.Outcome) protocol.Outbound {
	photo := req.Mode() == capture.ModePhoto

	switch o := outcome.(type) {
	case capture.PhotoTaken:
		if photo && o.Picture != nil {
			return protocol.NewPhotoResult(o.Picture.Data, o.Picture.Exif)
		}
	case capture.PhotoFailed:
		if photo {
			return protocol.PhotoError{Failure: o.Failure}
		}
	case capture.BarcodeRead:
		if !photo {
			return protocol.BarcodeResult{Payload: o.Payload}
		}
	case capture.BarcodeFallback:
		if !photo {
			return protocol.BarcodeFallback{}
		}
	case capture.Exited:
		if photo {
			return protocol.PhotoError{Failure: capture.CancelledFailure()}
		}
		return nil
	}

	logger.Warn("capture outcome does not match pending request",
		"mode", req.Mode().String(), "outcome", fmt.Sprintf("%T", outcome))
	if photo {
		return protocol.PhotoError{Failure: protocol.Failure{
			Message: "Photo capture failed: no usable image",
			Code:    capture.CodeCaptureFailed,
		}}
	}
	return protocol.BarcodeFallback{}
}

// deliver injects out into the content. Callers hold b.out.
func (b *Bridge) deliver(logger *slog.Logger, out protocol.Outbound) {
	script, err := protocol.Script(out)
	if err != nil {
		logger.Error("failed to encode outbound message", "type", string(out.Type()), "error", err)
		return
	}
	if err := b.host.InjectScript(script); err != nil {
		logger.Warn("failed to deliver outbound message", "type", string(out.Type()), "error", err)
		return
	}
	logger.Info("delivered outbound message", "type", string(out.Type()))
}

// OnCaptureSucceeded delivers a photo for t.
func (b *Bridge) OnCaptureSucceeded(t capture.Ticket, image []byte, exif map[string]any) {
	b.Resolve(capture.Resolution{Ticket: t, Outcome: capture.PhotoTaken{
		Picture: &camera.Picture{Data: image, Exif: exif},
	}})
}

// OnCaptureFailed delivers a capture failure for t.
func (b *Bridge) OnCaptureFailed(t capture.Ticket, failure protocol.Failure) {
	b.Resolve(capture.Resolution{Ticket: t, Outcome: capture.PhotoFailed{Failure: failure}})
}

// OnBarcodeCaptured delivers a decoded barcode for t.
func (b *Bridge) OnBarcodeCaptured(t capture.Ticket, payload string) {
	b.Resolve(capture.Resolution{Ticket: t, Outcome: capture.BarcodeRead{Payload: payload}})
}

// OnBarcodeFallbackRequested tells the content to use its manual path.
func (b *Bridge) OnBarcodeFallbackRequested(t capture.Ticket) {
	b.Resolve(capture.Resolution{Ticket: t, Outcome: capture.BarcodeFallback{}})
}

// OnBarcodeExit clears t without telling the content anything; the content
// keeps waiting and can issue a new request.
func (b *Bridge) OnBarcodeExit(t capture.Ticket) {
	b.Resolve(capture.Resolution{Ticket: t, Outcome: capture.Exited{}})
}

// dispatcher routes inbound messages to the bridge.
type dispatcher struct {
	b *Bridge
}

var _ protocol.InboundHandler = dispatcher{}

func (d dispatcher) VerificationComplete(m protocol.VerificationComplete) {
	b := d.b

	b.mu.Lock()
	if b.completed {
		b.mu.Unlock()
		b.logger.Warn("ignoring repeated verification completion")
		return
	}
	b.completed = true
	cfg := b.cfg
	b.mu.Unlock()

	var c Completion
	if m.Success {
		c.Result = &Result{Value: m.Code}
	} else {
		c.Error = &ErrorInfo{Type: string(m.Type()), Payload: m.Raw}
	}

	defer b.finish(c)

	b.isolate("completion", func() {
		if c.Result != nil {
			cfg.complete(*c.Result)
		} else {
			cfg.error(*c.Error)
		}
	})
}

// finish hides the content and publishes the completion.
func (b *Bridge) finish(c Completion) {
	b.mu.Lock()
	b.hidden = true
	b.mu.Unlock()

	b.done <- c
	b.logger.Info("verification completed", "success", c.Success())
}

// isolate runs a consumer callback and swallows its panic.
func (b *Bridge) isolate(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("consumer callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

func (d dispatcher) DisplayIframe(m protocol.DisplayIframe) {
	b := d.b

	b.mu.Lock()
	cfg := b.cfg
	b.mu.Unlock()

	cfg.display()

	if m.Height != nil {
		b.mu.Lock()
		b.height = *m.Height
		b.mu.Unlock()
	}
}

func (d dispatcher) ResizeIframe(m protocol.ResizeIframe) {
	if m.Height == nil {
		return
	}
	d.b.mu.Lock()
	d.b.height = *m.Height
	d.b.mu.Unlock()
}

func (d dispatcher) ReloadIframe(protocol.ReloadIframe) {
	b := d.b

	b.out.Lock()
	b.mu.Lock()
	b.gen++
	gen := b.gen
	abandoned := b.pending != nil
	b.pending = nil
	b.ticket = capture.Ticket{}
	u := b.url
	b.mu.Unlock()
	b.out.Unlock()

	b.logger.Info("reloading content", "generation", gen, "abandoned_capture", abandoned)

	if abandoned {
		b.presenter.Dismiss()
	}
	if u == "" {
		return
	}
	if err := b.host.Load(u); err != nil {
		b.logger.Error("failed to reload content", "error", err)
	}
}

func (d dispatcher) StateChange(m protocol.StateChange) {
	d.b.mu.Lock()
	cfg := d.b.cfg
	d.b.mu.Unlock()

	cfg.stateChange(m.Payload)
}

func (d dispatcher) ErrorRendered(m protocol.ErrorRendered) {
	d.b.mu.Lock()
	cfg := d.b.cfg
	d.b.mu.Unlock()

	cfg.error(ErrorInfo{Type: string(m.Type()), Payload: m.Payload})
}

func (d dispatcher) TakeNativePhoto(m protocol.TakeNativePhoto) {
	d.b.begin(capture.PhotoRequest{
		IDType:     m.IDType,
		Step:       capture.Step(m.Step),
		BackFormat: m.BackFormat,
	})
}

func (d dispatcher) TakeNativeBarcode(m protocol.TakeNativeBarcode) {
	d.b.begin(capture.BarcodeRequest{Timeout: m.Timeout()})
}

// begin records req as pending and asks the presenter to show it. A
// request while another is pending is rejected.
func (b *Bridge) begin(req capture.Request) {
	b.mu.Lock()
	if b.pending != nil {
		state := b.stateLocked()
		b.mu.Unlock()
		b.logger.Warn("rejecting capture request while one is pending",
			"mode", req.Mode().String(), "state", state.String())
		return
	}
	t := capture.Ticket{Generation: b.gen, ID: uuid.NewString()}
	b.pending = req
	b.ticket = t
	b.mu.Unlock()

	b.logger.Info("capture requested", "mode", req.Mode().String(), "ticket", t.ID, "generation", t.Generation)
	b.presenter.Present(t, req, b)
}

var _ capture.Resolver = (*Bridge)(nil)
