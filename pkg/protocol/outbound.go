package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
)

const (
	// ImageFormat is the only still-image codec the host produces.
	ImageFormat = "jpg"

	// NativeCaptureMarker is added to every photo's metadata so the remote
	// flow knows the image came from a native capture.
	NativeCaptureMarker = "react-native-video"

	// EntryPoint is the function the content exposes for outbound delivery.
	EntryPoint = "window.ReceiveRNImage"
)

// Outbound is one of the message variants delivered into the content.
type Outbound interface {
	Type() OutboundType
	payload() any
}

// PhotoResult carries a captured still image.
type PhotoResult struct {
	Base64  string         `json:"base64"`
	Format  string         `json:"format"`
	Exif    map[string]any `json:"exif"`
	Overlay bool           `json:"overlay"`
}

// PhotoError mirrors a capture failure to the content.
type PhotoError struct {
	Failure Failure
}

// BarcodeResult carries a decoded barcode.
type BarcodeResult struct {
	Payload string `json:"payload"`
}

// BarcodeFallback tells the content the user asked for the non-barcode path.
type BarcodeFallback struct{}

func (PhotoResult) Type() OutboundType     { return TypeNativePhotoResult }
func (PhotoError) Type() OutboundType      { return TypeNativePhotoError }
func (BarcodeResult) Type() OutboundType   { return TypeNativeBarcodeResult }
func (BarcodeFallback) Type() OutboundType { return TypeNativeBarcodeFallback }

func (m PhotoResult) payload() any     { return m }
func (m PhotoError) payload() any      { return m.Failure }
func (m BarcodeResult) payload() any   { return m }
func (m BarcodeFallback) payload() any { return struct{}{} }

// NewPhotoResult builds a PhotoResult from raw image bytes and capture
// metadata. The metadata is copied and tagged with NativeCaptureMarker.
func NewPhotoResult(image []byte, exif map[string]any) PhotoResult {
	tagged := make(map[string]any, len(exif)+1)
	maps.Copy(tagged, exif)
	tagged[NativeCaptureMarker] = true

	return PhotoResult{
		Base64:  base64.StdEncoding.EncodeToString(image),
		Format:  ImageFormat,
		Exif:    tagged,
		Overlay: true,
	}
}

type outboundEnvelope struct {
	Type    OutboundType `json:"type"`
	Payload any          `json:"payload"`
}

// Encode returns the JSON envelope for an outbound message.
func Encode(m Outbound) ([]byte, error) {
	data, err := json.Marshal(outboundEnvelope{Type: m.Type(), Payload: m.payload()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", m.Type(), err)
	}
	return data, nil
}

// Script returns the statement that delivers m through EntryPoint.
func Script(m Outbound) (string, error) {
	data, err := Encode(m)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s); true;", EntryPoint, data), nil
}
