package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuideKindFor(t *testing.T) {
	assert.Equal(t, GuidePassport, GuideKindFor("passport"))
	assert.Equal(t, GuideCard, GuideKindFor("card"))
	assert.Equal(t, GuideCard, GuideKindFor(""))
	assert.Equal(t, GuideCard, GuideKindFor("residence_permit"))
}

func TestGuideFor(t *testing.T) {
	tests := []struct {
		kind   GuideKind
		height float64
	}{
		{GuideCard, 351 * 0.63},
		{GuidePassport, 351 * 0.8},
		{GuideBarcode, 351 * 0.4},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			g := GuideFor(tt.kind, DefaultDisplay)

			assert.Equal(t, tt.kind, g.Kind)
			assert.InDelta(t, 351, g.Width, 0.001)
			assert.InDelta(t, tt.height, g.Height, 0.001)
			assert.InDelta(t, 19.5, g.Left, 0.001)
			assert.InDelta(t, (844-tt.height)/2, g.Top, 0.001)
		})
	}
}

func TestStepUnknown(t *testing.T) {
	_, err := Step("BOGUS").Facing()
	assert.ErrorIs(t, err, ErrUnknownStep)
	assert.False(t, Step("BOGUS").ShowsGuide())
}

func TestModeText(t *testing.T) {
	b, err := ModeBarcode.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "barcode", string(b))
	assert.Equal(t, "none", ModeNone.String())
}
