// Package protocol defines the messages exchanged between the embedded
// verification content and the native host.
//
// Inbound messages arrive as JSON envelopes posted by the content. Outbound
// messages are delivered back into the content's execution context through a
// single injected entry point. Both directions are closed sets: every inbound
// variant has a method on InboundHandler, so adding a tag forces every
// handler to deal with it at compile time.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// InboundType identifies a message posted by the embedded content.
type InboundType string

const (
	TypeVerificationComplete InboundType = "VERIFICATION_COMPLETE"
	TypeDisplayIframe        InboundType = "DISPLAY_IFRAME"
	TypeResizeIframe         InboundType = "RESIZE_IFRAME"
	TypeReloadIframe         InboundType = "RELOAD_IFRAME"
	TypeStateChange          InboundType = "STATE_CHANGE"
	TypeErrorRendered        InboundType = "ERROR_RENDERED"
	TypeTakeNativePhoto      InboundType = "TAKE_NATIVE_PHOTO"
	TypeTakeNativeBarcode    InboundType = "TAKE_NATIVE_BARCODE"
)

// OutboundType identifies a message delivered into the embedded content.
type OutboundType string

const (
	TypeNativePhotoResult     OutboundType = "NATIVE_PHOTO_RESULT"
	TypeNativePhotoError      OutboundType = "NATIVE_PHOTO_ERROR"
	TypeNativeBarcodeResult   OutboundType = "NATIVE_BARCODE_RESULT"
	TypeNativeBarcodeFallback OutboundType = "NATIVE_BARCODE_FALLBACK"
)

var (
	// ErrMalformed is returned when a message is not a valid envelope or
	// its payload does not match the shape for its type.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownType is returned for well-formed envelopes whose type the
	// host does not understand.
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// Envelope is the wire wrapper shared by both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseData unmarshals the payload into v. A missing payload leaves v untouched.
func (e *Envelope) ParseData(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// hasPayload reports whether the envelope carries a non-null payload.
func (e *Envelope) hasPayload() bool {
	return len(e.Payload) > 0 && string(e.Payload) != "null"
}

// ParseEnvelope parses raw bytes into an Envelope without interpreting the payload.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &env, nil
}

// Failure is the payload mirrored to the content when a native capture fails.
type Failure struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error implements the error interface.
func (f Failure) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Message)
	}
	return f.Message
}
