package targets

import "math"

// Supervised derives the targets from the track description. MRSP steps ahead
// of the maximum safe front are kept when they are lower than the step before.
func Supervised(track *Track, maxSafeFront float64) []Target {
	var targets []Target

	mrsp := track.MRSP()
	for i := 1; i < len(mrsp); i++ {
		step := mrsp[i]
		if step.Location <= maxSafeFront || step.Speed >= mrsp[i-1].Speed {
			continue
		}
		targets = append(targets, Target{Kind: KindMRSP, Location: step.Location, Speed: step.Speed})
	}

	if ma := track.Authority; ma != nil {
		if ma.LoASpeed > 0 {
			targets = append(targets, Target{Kind: KindLoA, Location: ma.EoA, Speed: ma.LoASpeed})
		}
		targets = append(targets,
			Target{Kind: KindEoA, Location: ma.EoA},
			Target{Kind: KindSvL, Location: ma.SvL},
		)
	}

	if track.SRDistance != nil {
		targets = append(targets, Target{Kind: KindSRDistance, Location: *track.SRDistance})
	}

	return targets
}

// Set is the supervised target set carried across cycles
type Set struct {
	Targets []Target
	Changed bool
}

func find(targets []Target, kind Kind) (Target, bool) {
	for _, t := range targets {
		if t.Kind == kind {
			return t, true
		}
	}
	return Target{}, false
}

// Update recomputes the set. It is marked changed when a previous target is
// no longer supervised or the EoA or SvL moved.
func (s *Set) Update(track *Track, maxSafeFront float64) {
	next := Supervised(track, maxSafeFront)

	changed := false
	for _, kind := range []Kind{KindEoA, KindSvL} {
		prev, hadPrev := find(s.Targets, kind)
		cur, hasCur := find(next, kind)
		if hadPrev != hasCur || (hadPrev && prev.Location != cur.Location) {
			changed = true
		}
	}
	for _, prev := range s.Targets {
		kept := false
		for _, t := range next {
			if t.Same(prev) {
				kept = true
				break
			}
		}
		if !kept {
			changed = true
			break
		}
	}

	s.Targets = next
	s.Changed = changed
}

// EoA returns the end of authority target
func (s *Set) EoA() (Target, bool) {
	return find(s.Targets, KindEoA)
}

// SvL returns the supervised location target
func (s *Set) SvL() (Target, bool) {
	return find(s.Targets, KindSvL)
}

// Train is the odometry state a snapshot is computed for
type Train struct {
	Speed        float64
	EstFront     float64
	MinSafeFront float64
	MaxSafeFront float64
	LRBG         float64
}

// Snapshot is the target set with boundaries computed for one cycle
type Snapshot struct {
	Targets       []Target
	Ceiling       float64
	Release       float64
	StartRSM      float64
	ReleaseTarget *Target
	Changed       bool
}

// EoA returns the end of authority target of the snapshot
func (s *Snapshot) EoA() (Target, bool) {
	return find(s.Targets, KindEoA)
}

// SvL returns the supervised location target of the snapshot
func (s *Snapshot) SvL() (Target, bool) {
	return find(s.Targets, KindSvL)
}

// Evaluate computes the boundaries, ceiling speed and release speed for the cycle
func (m *Model) Evaluate(set *Set, track *Track, tr Train) Snapshot {
	snap := Snapshot{
		Changed: set.Changed,
		Ceiling: track.Ceiling(tr.MinSafeFront-m.TrainLength, tr.MaxSafeFront),
	}

	for _, t := range set.Targets {
		c := m.Compute(t, tr.Speed)
		front := tr.MaxSafeFront
		if c.Kind == KindEoA {
			front = tr.EstFront
		}
		snap.Targets = append(snap.Targets, m.Speeds(c, front))
	}

	eoa, hasEoA := set.EoA()
	svl, hasSvL := set.SvL()
	if !hasEoA || !hasSvL {
		return snap
	}

	trip := m.TripPoint(eoa.Location, tr)
	candidates := m.releaseCandidates(set.Targets, svl, trip)

	if track.Authority != nil && track.Authority.ReleaseSpeed > 0 {
		snap.Release = track.Authority.ReleaseSpeed
	} else {
		snap.Release = m.ReleaseSpeed(candidates, trip, track, tr)
	}

	start, governing := m.StartRSM(candidates, eoa, snap.Release, tr)
	snap.StartRSM = start
	snap.ReleaseTarget = &governing
	return snap
}

// TripPoint returns the location beyond the EoA where the train is tripped
func (m *Model) TripPoint(eoa float64, tr Train) float64 {
	return eoa + m.AntennaOffset +
		math.Max(2*m.LocationAccuracy+10+0.1*(eoa-tr.LRBG), tr.MaxSafeFront-tr.MinSafeFront)
}

func (m *Model) releaseCandidates(targets []Target, svl Target, trip float64) []Target {
	var candidates []Target
	for _, t := range targets {
		if t.EBDBased() && t.Location > trip && t.Location <= svl.Location {
			candidates = append(candidates, t)
		}
	}
	return append(candidates, svl)
}

// ReleaseSpeed returns the highest speed on a 1 km/h grid from which the
// train stops within every candidate target when braking from the trip point,
// capped by the ceiling speed up to the trip point
func (m *Model) ReleaseSpeed(candidates []Target, trip float64, track *Track, tr Train) float64 {
	release := math.Inf(1)
	for _, c := range candidates {
		release = math.Min(release, m.releaseFor(c, trip))
	}
	return math.Min(release, track.Ceiling(tr.MinSafeFront, trip))
}

func (m *Model) releaseFor(c Target, trip float64) float64 {
	best := 0.0
	limit := math.Max(m.MaxSpeed, c.Speed)
	for i := 0; ; i++ {
		v := c.Speed + float64(i)*kmh
		if v > limit {
			break
		}
		vbec, dbec := m.bec(v, c.Speed)
		stop := trip + dbec
		if stop > c.Location || vbec > m.SpeedCurve(c, stop) {
			break
		}
		best = v
	}
	return best
}

// StartRSM returns where release speed monitoring starts and the target governing it
func (m *Model) StartRSM(candidates []Target, eoa Target, release float64, tr Train) (float64, Target) {
	dsbi1 := m.DistanceCurve(eoa, release) - release*m.TBS1

	dsbi2 := math.Inf(1)
	var governing Target
	for _, c := range candidates {
		d := m.Compute(c, release).DEBI - release*m.TBS2
		if d < dsbi2 {
			dsbi2 = d
			governing = c
		}
	}

	if dsbi2-dsbi1 >= tr.MaxSafeFront-tr.EstFront {
		return dsbi1, eoa
	}
	return dsbi2, governing
}
