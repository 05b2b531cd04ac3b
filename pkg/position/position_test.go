package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionArithmetic(t *testing.T) {
	p := WithMargins(100, 5, 7)
	assert.Equal(t, 95.0, p.Min())
	assert.Equal(t, 107.0, p.Max())

	moved := p.Add(20)
	assert.Equal(t, 120.0, moved.Value)
	assert.Equal(t, 115.0, moved.Min(), "exact offsets keep the margins")

	shifted := p.Shift(WithMargins(50, 2, 3))
	assert.Equal(t, 150.0, shifted.Value)
	assert.Equal(t, 143.0, shifted.Min())
	assert.Equal(t, 160.0, shifted.Max())

	back := p.Reversed().Add(10)
	assert.Equal(t, 90.0, back.Value)
	assert.Equal(t, -1, back.Orientation)
	assert.Equal(t, 85.0, back.Min())
}

func TestReversedKeepsWindow(t *testing.T) {
	p := WithMargins(100, 2, 9)
	r := p.Reversed()
	assert.Equal(t, -1, r.Orientation)
	assert.Equal(t, p.Value, r.Value)
	assert.Equal(t, p.Min(), r.Min())
	assert.Equal(t, p.Max(), r.Max())
	assert.Equal(t, p, r.Reversed())
}

func TestPositionOverlaps(t *testing.T) {
	p := WithMargins(100, 2, 2)
	assert.True(t, p.Overlaps(95, 98))
	assert.True(t, p.Overlaps(102, 110))
	assert.False(t, p.Overlaps(103, 110))
	assert.False(t, p.Overlaps(80, 97.9))
}

func TestDirection(t *testing.T) {
	assert.Equal(t, Reverse, Nominal.Opposite())
	assert.Equal(t, Unknown, Unknown.Opposite())
	assert.False(t, Unknown.Known())
	assert.Equal(t, "reverse", Reverse.String())
}

func TestOdometerConfidence(t *testing.T) {
	o := NewOdometer(5, 0.05)
	o.Relocate(1000)
	o.Update(1200, 20)

	assert.InDelta(t, 15.0, o.Confidence(1200), 1e-9)
	assert.InDelta(t, 1185.0, o.MinSafeFront(), 1e-9)
	assert.InDelta(t, 1215.0, o.MaxSafeFront(), 1e-9)

	loc := o.Locate(1000)
	assert.InDelta(t, 995.0, loc.Min(), 1e-9)

	o.Update(1200, -3)
	assert.Equal(t, 0.0, o.Speed())
}
