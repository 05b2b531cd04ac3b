package targets

import (
	"math"
	"sort"
)

// Step is a ceiling speed valid from Location until the next step
type Step struct {
	Location float64 `json:"location"`
	Speed    float64 `json:"speed"`
}

// Restriction is a temporary speed restriction over [Start, End)
type Restriction struct {
	ID        int     `json:"id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Speed     float64 `json:"speed"`
	Revocable bool    `json:"revocable"`
}

// Authority is a movement authority in absolute locations
type Authority struct {
	EoA          float64 `json:"eoa"`
	SvL          float64 `json:"svl"`
	LoASpeed     float64 `json:"loa_speed,omitempty"` // Non-zero: the authority ends in a limit of authority
	ReleaseSpeed float64 `json:"release_speed,omitempty"`
	Start        float64 `json:"start"` // Location reference the authority was given at
}

// Track is the track description the targets are derived from
type Track struct {
	MaxSpeed     float64
	Static       []Step
	StaticEnd    float64
	GradientEnd  float64
	Restrictions map[int]Restriction
	Authority    *Authority
	SRDistance   *float64
}

// NewTrack creates an empty track description for a train with the given maximum speed
func NewTrack(maxSpeed float64) *Track {
	return &Track{MaxSpeed: maxSpeed, Restrictions: make(map[int]Restriction)}
}

// SetStatic replaces the static speed profile from start on
func (t *Track) SetStatic(start float64, steps []Step, end float64) {
	kept := t.Static[:0:0]
	for _, s := range t.Static {
		if s.Location < start {
			kept = append(kept, s)
		}
	}
	t.Static = append(kept, steps...)
	sort.SliceStable(t.Static, func(i, j int) bool { return t.Static[i].Location < t.Static[j].Location })
	t.StaticEnd = end
}

// AddRestriction adds or replaces a temporary speed restriction
func (t *Track) AddRestriction(r Restriction) {
	t.Restrictions[r.ID] = r
}

// RevokeRestriction removes a revocable restriction. It reports whether one was removed.
func (t *Track) RevokeRestriction(id int) bool {
	r, ok := t.Restrictions[id]
	if !ok || !r.Revocable {
		return false
	}
	delete(t.Restrictions, id)
	return true
}

// staticAt returns the static speed at x
func (t *Track) staticAt(x float64) float64 {
	v := t.MaxSpeed
	for _, s := range t.Static {
		if s.Location > x {
			break
		}
		v = s.Speed
	}
	return v
}

// SpeedAt returns the most restrictive speed at x
func (t *Track) SpeedAt(x float64) float64 {
	v := math.Min(t.MaxSpeed, t.staticAt(x))
	for _, r := range t.Restrictions {
		if r.Start <= x && x < r.End {
			v = math.Min(v, r.Speed)
		}
	}
	return v
}

// MRSP returns the most restrictive speed profile as ordered steps
func (t *Track) MRSP() []Step {
	points := []float64{math.Inf(-1)}
	for _, s := range t.Static {
		points = append(points, s.Location)
	}
	for _, r := range t.Restrictions {
		points = append(points, r.Start, r.End)
	}
	sort.Float64s(points)

	var steps []Step
	for _, p := range points {
		v := t.SpeedAt(p)
		if len(steps) > 0 && (steps[len(steps)-1].Location == p || steps[len(steps)-1].Speed == v) {
			continue
		}
		steps = append(steps, Step{Location: p, Speed: v})
	}
	return steps
}

// Ceiling returns the lowest MRSP speed over [from, to]
func (t *Track) Ceiling(from, to float64) float64 {
	v := t.SpeedAt(from)
	for _, s := range t.MRSP() {
		if s.Location > from && s.Location <= to {
			v = math.Min(v, s.Speed)
		}
	}
	return v
}

// Covered reports whether static speed and gradient data reach up to x
func (t *Track) Covered(x float64) bool {
	return t.StaticEnd >= x && t.GradientEnd >= x
}

// ShortenAuthority moves the end of authority back to eoa if that is closer
func (t *Track) ShortenAuthority(eoa float64) bool {
	if t.Authority == nil || eoa >= t.Authority.EoA {
		return false
	}
	t.Authority.EoA = eoa
	t.Authority.SvL = eoa
	t.Authority.LoASpeed = 0
	return true
}

// Clear removes the authority, the restrictions and the profiles
func (t *Track) Clear() {
	t.Static = nil
	t.StaticEnd = 0
	t.GradientEnd = 0
	t.Restrictions = make(map[int]Restriction)
	t.Authority = nil
	t.SRDistance = nil
}
