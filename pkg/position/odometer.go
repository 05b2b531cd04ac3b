package position

import "math"

// Odometer tracks the estimated front of the train and derives the safe front
// positions from the distance run since the last location reference.
type Odometer struct {
	AccuracyFixed float64
	AccuracyRatio float64

	reference float64
	estFront  float64
	speed     float64
}

// NewOdometer returns an odometer with the given confidence parameters
func NewOdometer(fixed, ratio float64) *Odometer {
	return &Odometer{AccuracyFixed: fixed, AccuracyRatio: ratio}
}

// Update sets the estimated front position and speed
func (o *Odometer) Update(estFront, speed float64) {
	o.estFront = estFront
	o.speed = math.Max(speed, 0)
}

// SetSpeed sets the estimated speed only
func (o *Odometer) SetSpeed(speed float64) {
	o.speed = math.Max(speed, 0)
}

// Relocate anchors the confidence interval at a new reference location
func (o *Odometer) Relocate(ref float64) {
	o.reference = ref
}

// Reference returns the current reference location
func (o *Odometer) Reference() float64 {
	return o.reference
}

// Speed returns the estimated speed in m/s
func (o *Odometer) Speed() float64 {
	return o.speed
}

// EstFront returns the estimated front position
func (o *Odometer) EstFront() float64 {
	return o.estFront
}

// Confidence returns the odometry uncertainty at x
func (o *Odometer) Confidence(x float64) float64 {
	return o.AccuracyFixed + o.AccuracyRatio*math.Abs(x-o.reference)
}

// MinSafe returns the lowest position of x allowed by the confidence interval
func (o *Odometer) MinSafe(x float64) float64 {
	return x - o.Confidence(x)
}

// MaxSafe returns the highest position of x allowed by the confidence interval
func (o *Odometer) MaxSafe(x float64) float64 {
	return x + o.Confidence(x)
}

// MinSafeFront returns the minimum safe front end
func (o *Odometer) MinSafeFront() float64 {
	return o.MinSafe(o.estFront)
}

// MaxSafeFront returns the maximum safe front end
func (o *Odometer) MaxSafeFront() float64 {
	return o.MaxSafe(o.estFront)
}

// Locate returns the position read at x with odometry margins
func (o *Odometer) Locate(x float64) Position {
	c := o.Confidence(x)
	return WithMargins(x, c, c)
}
