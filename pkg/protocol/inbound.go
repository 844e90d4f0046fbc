package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inbound is one of the message variants posted by the embedded content.
type Inbound interface {
	Type() InboundType
	Dispatch(h InboundHandler)
}

// InboundHandler receives each inbound variant. Implementations must handle
// every tag; there is no default case.
type InboundHandler interface {
	VerificationComplete(VerificationComplete)
	DisplayIframe(DisplayIframe)
	ResizeIframe(ResizeIframe)
	ReloadIframe(ReloadIframe)
	StateChange(StateChange)
	ErrorRendered(ErrorRendered)
	TakeNativePhoto(TakeNativePhoto)
	TakeNativeBarcode(TakeNativeBarcode)
}

// VerificationComplete reports that the remote flow finished. The content
// is loosely typed: success is judged by truthiness and a non-string code
// is kept as its JSON text.
type VerificationComplete struct {
	Success bool
	Code    string

	// Raw is the full payload as received.
	Raw json.RawMessage
}

// UnmarshalJSON decodes the loosely typed completion payload.
func (m *VerificationComplete) UnmarshalJSON(data []byte) error {
	var wire struct {
		Success json.RawMessage `json:"success"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Success = truthy(wire.Success)
	m.Code = text(wire.Code)
	return nil
}

// truthy reports whether a JSON value would be considered true by the
// content: everything except false, null, 0, "" and a missing value.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch raw[0] {
	case 'n', 'f':
		return false
	case 't', '{', '[':
		return true
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil && s != ""
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	return err == nil && f != 0
}

// text renders a JSON value as a string: strings are unquoted, null and
// missing values are empty, anything else is kept verbatim.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// DisplayIframe asks the host to show the content surface.
type DisplayIframe struct {
	Height *float64 `json:"height,omitempty"`
}

// ResizeIframe reports a new preferred height.
type ResizeIframe struct {
	Height *float64 `json:"height,omitempty"`
}

// ReloadIframe asks the host to recreate the content surface.
type ReloadIframe struct{}

// StateChange carries an opaque flow state update.
type StateChange struct {
	Payload json.RawMessage
}

// ErrorRendered reports that the flow displayed an error to the user.
type ErrorRendered struct {
	Payload json.RawMessage
}

// TakeNativePhoto requests a native still capture.
type TakeNativePhoto struct {
	IDType     string `json:"idType"`
	Step       string `json:"step"`
	BackFormat string `json:"backFormat"`
}

// TakeNativeBarcode requests a native barcode scan.
type TakeNativeBarcode struct {
	TimeoutMillis float64 `json:"timeout"`
}

// Timeout converts the advisory timeout. Zero or negative means none.
func (m TakeNativeBarcode) Timeout() time.Duration {
	if m.TimeoutMillis <= 0 {
		return 0
	}
	return time.Duration(m.TimeoutMillis * float64(time.Millisecond))
}

func (VerificationComplete) Type() InboundType { return TypeVerificationComplete }
func (DisplayIframe) Type() InboundType        { return TypeDisplayIframe }
func (ResizeIframe) Type() InboundType         { return TypeResizeIframe }
func (ReloadIframe) Type() InboundType         { return TypeReloadIframe }
func (StateChange) Type() InboundType          { return TypeStateChange }
func (ErrorRendered) Type() InboundType        { return TypeErrorRendered }
func (TakeNativePhoto) Type() InboundType      { return TypeTakeNativePhoto }
func (TakeNativeBarcode) Type() InboundType    { return TypeTakeNativeBarcode }

func (m VerificationComplete) Dispatch(h InboundHandler) { h.VerificationComplete(m) }
func (m DisplayIframe) Dispatch(h InboundHandler)        { h.DisplayIframe(m) }
func (m ResizeIframe) Dispatch(h InboundHandler)         { h.ResizeIframe(m) }
func (m ReloadIframe) Dispatch(h InboundHandler)         { h.ReloadIframe(m) }
func (m StateChange) Dispatch(h InboundHandler)          { h.StateChange(m) }
func (m ErrorRendered) Dispatch(h InboundHandler)        { h.ErrorRendered(m) }
func (m TakeNativePhoto) Dispatch(h InboundHandler)      { h.TakeNativePhoto(m) }
func (m TakeNativeBarcode) Dispatch(h InboundHandler)    { h.TakeNativeBarcode(m) }

// ParseInbound parses a raw channel message into its variant.
//
// Errors wrap ErrMalformed or ErrUnknownType. Capture requests require a
// payload; the remaining types tolerate a missing one.
func ParseInbound(data []byte) (Inbound, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch InboundType(env.Type) {
	case TypeVerificationComplete:
		var m VerificationComplete
		if !env.hasPayload() {
			return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, env.Type)
		}
		if err := env.ParseData(&m); err != nil {
			return nil, payloadError(env, err)
		}
		m.Raw = append(json.RawMessage(nil), env.Payload...)
		return m, nil

	case TypeDisplayIframe:
		var m DisplayIframe
		if err := env.ParseData(&m); err != nil {
			return nil, payloadError(env, err)
		}
		return m, nil

	case TypeResizeIframe:
		var m ResizeIframe
		if err := env.ParseData(&m); err != nil {
			return nil, payloadError(env, err)
		}
		return m, nil

	case TypeReloadIframe:
		return ReloadIframe{}, nil

	case TypeStateChange:
		return StateChange{Payload: rawOrNull(env.Payload)}, nil

	case TypeErrorRendered:
		return ErrorRendered{Payload: rawOrNull(env.Payload)}, nil

	case TypeTakeNativePhoto:
		var m TakeNativePhoto
		if !env.hasPayload() {
			return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, env.Type)
		}
		if err := env.ParseData(&m); err != nil {
			return nil, payloadError(env, err)
		}
		return m, nil

	case TypeTakeNativeBarcode:
		var m TakeNativeBarcode
		if !env.hasPayload() {
			return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, env.Type)
		}
		if err := env.ParseData(&m); err != nil {
			return nil, payloadError(env, err)
		}
		return m, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func payloadError(env *Envelope, err error) error {
	return fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return append(json.RawMessage(nil), raw...)
}
