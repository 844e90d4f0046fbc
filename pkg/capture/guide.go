package capture

// GuideKind names one of the guide aspect ratios.
type GuideKind string

const (
	GuideCard     GuideKind = "card"
	GuidePassport GuideKind = "passport"
	GuideBarcode  GuideKind = "barcode"
)

// guideWidthFraction is the share of the display width a guide spans.
const guideWidthFraction = 0.9

// Ratio returns height / width for the guide.
func (k GuideKind) Ratio() float64 {
	switch k {
	case GuidePassport:
		return 0.8
	case GuideBarcode:
		return 0.4
	default:
		return 0.63
	}
}

// GuideKindFor maps a free-form id type onto a guide kind.
func GuideKindFor(idType string) GuideKind {
	if idType == string(GuidePassport) {
		return GuidePassport
	}
	return GuideCard
}

// Display is the drawable area the overlay covers.
type Display struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultDisplay is a typical phone viewport in points.
var DefaultDisplay = Display{Width: 390, Height: 844}

// Guide is the on-screen frame the user aligns the document with.
type Guide struct {
	Kind   GuideKind `json:"kind"`
	Left   float64   `json:"left"`
	Top    float64   `json:"top"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
}

// GuideFor computes a guide centred on d.
func GuideFor(kind GuideKind, d Display) Guide {
	width := d.Width * guideWidthFraction
	height := width * kind.Ratio()
	return Guide{
		Kind:   kind,
		Left:   (d.Width - width) / 2,
		Top:    (d.Height - height) / 2,
		Width:  width,
		Height: height,
	}
}
