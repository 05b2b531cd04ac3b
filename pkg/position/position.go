// Package position provides margin-preserving track positions and odometry confidence
package position

import "math"

// Direction is the running direction of the train relative to a balise group
type Direction int

const (
	Unknown Direction = -1
	Nominal Direction = 0
	Reverse Direction = 1
)

// String returns the direction name
func (d Direction) String() string {
	switch d {
	case Nominal:
		return "nominal"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Known reports whether the direction has been resolved
func (d Direction) Known() bool {
	return d == Nominal || d == Reverse
}

// Opposite returns the reverse direction, keeping Unknown unresolved
func (d Direction) Opposite() Direction {
	switch d {
	case Nominal:
		return Reverse
	case Reverse:
		return Nominal
	default:
		return Unknown
	}
}

// Position is a location along the track in metres with independent safety margins.
// Orientation is +1 when counted along the odometer, -1 against it and 0 when unknown.
type Position struct {
	Value       float64 `json:"value"`
	Below       float64 `json:"below"`
	Above       float64 `json:"above"`
	Orientation int     `json:"orientation"`
}

// At returns an exact nominal position
func At(v float64) Position {
	return Position{Value: v, Orientation: 1}
}

// WithMargins returns a nominal position with the given lower and upper margins
func WithMargins(v, below, above float64) Position {
	return Position{Value: v, Below: math.Abs(below), Above: math.Abs(above), Orientation: 1}
}

// Min is the lowest position consistent with the margins
func (p Position) Min() float64 {
	return p.Value - p.Below
}

// Max is the highest position consistent with the margins
func (p Position) Max() float64 {
	return p.Value + p.Above
}

// Add shifts the position by an exact distance counted in its own orientation
func (p Position) Add(d float64) Position {
	if p.Orientation < 0 {
		d = -d
	}
	p.Value += d
	return p
}

// Shift adds an offset that carries its own uncertainty; the margins widen accordingly
func (p Position) Shift(offset Position) Position {
	p = p.Add(offset.Value)
	p.Below += offset.Below
	p.Above += offset.Above
	return p
}

// Widen adds symmetric or asymmetric uncertainty to the position
func (p Position) Widen(below, above float64) Position {
	p.Below += math.Abs(below)
	p.Above += math.Abs(above)
	return p
}

// Reversed flips the orientation without moving the position
func (p Position) Reversed() Position {
	p.Orientation = -p.Orientation
	return p
}

// Overlaps reports whether the margins of p intersect the window [lo, hi]
func (p Position) Overlaps(lo, hi float64) bool {
	return p.Max() >= lo && p.Min() <= hi
}
