package capture

import (
	"github.com/teslashibe/go-verify/pkg/camera"
	"github.com/teslashibe/go-verify/pkg/protocol"
)

// Ticket identifies one capture request. Generation is the content
// generation the request was issued under.
type Ticket struct {
	Generation uint64 `json:"generation"`
	ID         string `json:"id"`
}

// Outcome is how a capture request ended.
type Outcome interface {
	outcome()
}

// PhotoTaken carries a successful still.
type PhotoTaken struct {
	Picture *camera.Picture
}

// PhotoFailed carries a capability failure in photo mode.
type PhotoFailed struct {
	Failure protocol.Failure
}

// BarcodeRead carries a decoded barcode.
type BarcodeRead struct {
	Payload string
}

// BarcodeFallback means the user (or the timeout) abandoned scanning.
type BarcodeFallback struct{}

// Exited means the user closed the overlay without a result.
type Exited struct{}

func (PhotoTaken) outcome()      {}
func (PhotoFailed) outcome()     {}
func (BarcodeRead) outcome()     {}
func (BarcodeFallback) outcome() {}
func (Exited) outcome()          {}

// Resolution pairs an outcome with the request it answers.
type Resolution struct {
	Ticket  Ticket
	Outcome Outcome
}

// Resolver receives resolutions. It is called at most once per ticket.
type Resolver interface {
	Resolve(Resolution)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(Resolution)

// Resolve calls f(r).
func (f ResolverFunc) Resolve(r Resolution) { f(r) }
