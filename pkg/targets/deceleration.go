// Package targets computes the supervised targets and their braking curves
package targets

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/interp"
)

// ErrInvalidBands is returned for an empty or unordered deceleration model
var ErrInvalidBands = errors.New("deceleration bands must be non-empty, ascending and positive")

// Band is a deceleration valid for speeds up to UpTo (m/s)
type Band struct {
	UpTo         float64 `yaml:"up_to" json:"up_to"`
	Deceleration float64 `yaml:"deceleration" json:"deceleration"`
}

// Deceleration is a speed-dependent deceleration step function. A band covers
// the speeds above the previous limit up to and including its own limit; the
// last band extends to any higher speed.
type Deceleration struct {
	limits []float64
	pc     interp.PiecewiseConstant
}

// NewDeceleration fits a deceleration model to the given bands
func NewDeceleration(bands []Band) (*Deceleration, error) {
	if len(bands) == 0 {
		return nil, ErrInvalidBands
	}

	xs := make([]float64, 0, len(bands)+1)
	ys := make([]float64, 0, len(bands)+1)
	for i, b := range bands {
		if b.Deceleration <= 0 || (i > 0 && b.UpTo <= bands[i-1].UpTo) {
			return nil, ErrInvalidBands
		}
		xs = append(xs, b.UpTo)
		ys = append(ys, b.Deceleration)
	}
	limits := append([]float64(nil), xs...)

	// The interpolator needs two knots
	if len(xs) == 1 {
		xs = append(xs, xs[0]+1)
		ys = append(ys, ys[0])
	}

	d := &Deceleration{limits: limits}
	if err := d.pc.Fit(xs, ys); err != nil {
		return nil, err
	}
	return d, nil
}

// At returns the deceleration at speed v
func (d *Deceleration) At(v float64) float64 {
	return d.pc.Predict(v)
}

// next returns the first band limit above v
func (d *Deceleration) next(v float64) float64 {
	for _, l := range d.limits {
		if l > v {
			return l
		}
	}
	return math.Inf(1)
}

// Distance returns the braking distance from v down to vTarget
func (d *Deceleration) Distance(vTarget, v float64) float64 {
	var dist float64
	for lo := vTarget; lo < v; {
		hi := math.Min(d.next(lo), v)
		a := d.At((lo + hi) / 2)
		dist += (hi*hi - lo*lo) / (2 * a)
		lo = hi
	}
	return dist
}

// DistanceCurve returns the location at which braking from v must start to
// reach vTarget at dTarget
func (d *Deceleration) DistanceCurve(dTarget, vTarget, v float64) float64 {
	return dTarget - d.Distance(vTarget, v)
}

// SpeedCurve returns the speed of the braking curve to (dTarget, vTarget) at location x
func (d *Deceleration) SpeedCurve(dTarget, vTarget, x float64) float64 {
	if x >= dTarget {
		return vTarget
	}
	remaining := dTarget - x
	lo := vTarget
	for {
		hi := d.next(lo)
		var a float64
		if math.IsInf(hi, 1) {
			a = d.At(lo + 1)
		} else {
			a = d.At((lo + hi) / 2)
		}
		need := (hi*hi - lo*lo) / (2 * a)
		if remaining <= need {
			return math.Sqrt(lo*lo + 2*a*remaining)
		}
		remaining -= need
		lo = hi
	}
}
