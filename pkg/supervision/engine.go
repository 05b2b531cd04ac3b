package supervision

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/targets"
)

// Options control the release of the emergency brake
type Options struct {
	// ReleaseEmergencyBrakeEarly releases the emergency brake once the speed is
	// back below the permitted speed instead of at standstill (Q_NVEMRRLS)
	ReleaseEmergencyBrakeEarly bool `yaml:"release_emergency_brake_early"`
	// HoldEmergencyBrake keeps the emergency brake applied at standstill until
	// the driver acknowledges it
	HoldEmergencyBrake bool `yaml:"hold_emergency_brake"`
}

// Input is the train state and target snapshot for one cycle
type Input struct {
	Speed        float64
	EstFront     float64
	MinSafeFront float64
	MaxSafeFront float64
	Targets      targets.Snapshot
}

// State is the outcome of a cycle
type State struct {
	Monitoring   Monitoring      `json:"monitoring"`
	Supervision  Status          `json:"supervision"`
	Brake        Brake           `json:"brake"`
	Permitted    float64         `json:"permitted"`
	Intervention float64         `json:"intervention"`
	TargetSpeed  float64         `json:"target_speed"`
	TargetDist   float64         `json:"target_distance"`
	Release      float64         `json:"release"`
	MRDT         *targets.Target `json:"mrdt,omitempty"`
}

// Engine holds the supervision state carried across cycles
type Engine struct {
	model   *targets.Model
	options Options
	logger  zerolog.Logger

	monitoring  Monitoring
	supervision Status
	brake       Brake
	mrdt        *targets.Target
	forced      *targets.Target
}

// NewEngine creates an engine in ceiling speed monitoring
func NewEngine(model *targets.Model, options Options, logger zerolog.Logger) *Engine {
	return &Engine{
		model:   model,
		options: options,
		logger:  logger.With().Str("component", "supervision").Logger(),
	}
}

// SetOptions changes the brake release options, e.g. after new national values
func (e *Engine) SetOptions(o Options) {
	e.options = o
}

// Monitoring returns the current monitoring status
func (e *Engine) Monitoring() Monitoring {
	return e.monitoring
}

// Supervision returns the current supervision status
func (e *Engine) Supervision() Status {
	return e.supervision
}

// Brake returns the current brake command
func (e *Engine) Brake() Brake {
	return e.brake
}

// AcknowledgeEmergencyBrake releases an emergency brake held at standstill
func (e *Engine) AcknowledgeEmergencyBrake(speed float64) bool {
	if !e.brake.EmergencyBrake || speed > 0 || e.supervision == Intervention {
		return false
	}
	e.brake.EmergencyBrake = false
	return true
}

// Reset returns the engine to ceiling speed monitoring with no brake applied
func (e *Engine) Reset() {
	e.monitoring = CeilingSpeed
	e.supervision = None
	e.brake = Brake{}
	e.mrdt = nil
	e.forced = nil
}

// front returns the train location a target is compared against
func front(t targets.Target, in Input) float64 {
	if t.Kind == targets.KindEoA {
		return in.EstFront
	}
	return in.MaxSafeFront
}

// targetCondition reports whether a target requires target speed monitoring
// and returns the most restrictive one
func (e *Engine) targetCondition(in Input) (*targets.Target, bool) {
	if in.Speed < in.Targets.Release {
		return nil, false
	}
	var mrdt *targets.Target
	for i := range in.Targets.Targets {
		t := &in.Targets.Targets[i]
		if t.Speed > in.Speed || front(*t, in) < t.DI || front(*t, in) >= t.Location {
			continue
		}
		if mrdt == nil || t.VP < mrdt.VP {
			mrdt = t
		}
	}
	return mrdt, mrdt != nil
}

// releaseCondition reports whether release speed monitoring starts
func (e *Engine) releaseCondition(in Input) bool {
	snap := in.Targets
	if snap.Release <= 0 || snap.ReleaseTarget == nil {
		return false
	}
	return front(*snap.ReleaseTarget, in) >= snap.StartRSM
}

// forcedRemains reports whether the target that forced TSM or RSM is still ahead
func (e *Engine) forcedRemains(in Input) bool {
	if e.forced == nil {
		return false
	}
	for _, t := range in.Targets.Targets {
		if t.Same(*e.forced) && front(t, in) < t.Location {
			return true
		}
	}
	return false
}

func (e *Engine) enter(m Monitoring, forced *targets.Target) {
	if m != e.monitoring {
		e.logger.Info().
			Str("from", e.monitoring.String()).
			Str("to", m.String()).
			Msg("Monitoring transition")
	}
	e.monitoring = m
	if forced != nil {
		f := *forced
		e.forced = &f
	} else {
		e.forced = nil
	}
}

// updateMonitoring applies the transitions between CSM, TSM and RSM
func (e *Engine) updateMonitoring(in Input) {
	mrdt, c1 := e.targetCondition(in)
	c2 := e.releaseCondition(in)
	changed := in.Targets.Changed

	switch {
	case c2 && (e.monitoring != ReleaseSpeed || changed):
		e.enter(ReleaseSpeed, in.Targets.ReleaseTarget)
	case c1 && e.monitoring == CeilingSpeed:
		e.enter(TargetSpeed, mrdt)
	case c1 && changed && !c2:
		e.enter(TargetSpeed, mrdt)
	case e.monitoring != CeilingSpeed && !c1 && !c2 && !e.forcedRemains(in):
		e.enter(CeilingSpeed, nil)
	}

	if e.monitoring == TargetSpeed && mrdt != nil {
		m := *mrdt
		e.mrdt = &m
	} else if e.monitoring == CeilingSpeed {
		e.mrdt = nil
	}
}

// request is what the boundaries crossed in this cycle demand
type request struct {
	status Status
	sb     bool
	eb     bool
	tco    bool
}

func (r *request) raise(s Status) {
	if s > r.status {
		r.status = s
	}
}

// ceiling evaluates the ceiling speed boundaries, which apply in every status
func (e *Engine) ceiling(in Input, r *request) {
	v, vmrsp := in.Speed, in.Targets.Ceiling
	if v > vmrsp {
		r.raise(Overspeed)
	}
	if v > vmrsp+e.model.DVWarning(vmrsp) {
		r.raise(Warning)
	}
	if v > vmrsp+e.model.DVSbi(vmrsp) {
		r.raise(Intervention)
		r.sb = true
	}
	if v > vmrsp+e.model.DVEbi(vmrsp) {
		r.raise(Intervention)
		r.eb = true
	}
}

// target evaluates the boundaries of every target. EoA and SvL are compared
// jointly: a boundary counts as crossed when either target's is. Under
// release speed monitoring the authority is supervised by the release speed.
func (e *Engine) target(in Input, r *request, authority bool) {
	eoa, hasEoA := in.Targets.EoA()
	svl, hasSvL := in.Targets.SvL()
	if !authority {
		hasEoA, hasSvL = false, false
	}

	crossed := func(b func(targets.Target) float64) bool {
		return (hasEoA && in.EstFront > b(eoa)) || (hasSvL && in.MaxSafeFront > b(svl))
	}
	if hasEoA || hasSvL {
		if in.Speed > 0 {
			if crossed(func(t targets.Target) float64 { return t.DI }) {
				r.raise(Indication)
			}
			if crossed(func(t targets.Target) float64 { return t.DP }) {
				r.raise(Overspeed)
			}
			if crossed(func(t targets.Target) float64 { return t.DW }) {
				r.raise(Warning)
				r.tco = true
			}
			if crossed(func(t targets.Target) float64 { return t.DSBI1 }) {
				r.raise(Intervention)
				r.sb = true
			}
			if hasSvL && in.MaxSafeFront > svl.DEBI {
				r.raise(Intervention)
				r.eb = true
			}
		}
	}

	for _, t := range in.Targets.Targets {
		if t.Kind == targets.KindEoA || t.Kind == targets.KindSvL || in.Speed <= t.Speed {
			continue
		}
		f := in.MaxSafeFront
		if f >= t.Location {
			continue
		}
		if f > t.DI {
			r.raise(Indication)
		}
		if f > t.DP {
			r.raise(Overspeed)
		}
		var dvw, dvsbi, dvebi float64
		if t.EBDBased() {
			dvw, dvsbi, dvebi = e.model.DVWarning(t.Speed), e.model.DVSbi(t.Speed), e.model.DVEbi(t.Speed)
		}
		if f > t.DW && in.Speed > t.Speed+dvw {
			r.raise(Warning)
			r.tco = true
		}
		if f > t.DSBI2 && in.Speed > t.Speed+dvsbi {
			r.raise(Intervention)
			r.sb = true
		}
		if f > t.DEBI && in.Speed > t.Speed+dvebi {
			r.raise(Intervention)
			r.eb = true
		}
	}
}

// release evaluates the release speed
func (e *Engine) release(in Input, r *request) {
	r.raise(Indication)
	if in.Speed > in.Targets.Release {
		r.raise(Intervention)
		r.eb = true
	}
}

// Update runs one supervision cycle
func (e *Engine) Update(in Input) State {
	e.updateMonitoring(in)

	var r request
	e.ceiling(in, &r)
	switch e.monitoring {
	case TargetSpeed:
		e.target(in, &r, true)
	case ReleaseSpeed:
		e.target(in, &r, false)
		e.release(in, &r)
	}

	before := e.supervision
	escalated := r.status > e.supervision
	if escalated {
		e.supervision = r.status
	}
	if r.sb {
		e.brake.ServiceBrake = true
	}
	if r.eb {
		e.brake.EmergencyBrake = true
	}
	if r.tco {
		e.brake.TractionCutOff = true
	}

	if !escalated {
		e.restore(in, r)
	}

	if e.supervision != before {
		e.logger.Info().
			Str("monitoring", e.monitoring.String()).
			Str("from", before.String()).
			Str("to", e.supervision.String()).
			Float64("speed", in.Speed).
			Msg("Supervision transition")
	}

	return e.state(in)
}

// restore de-escalates directly to the safe state of the current monitoring status
func (e *Engine) restore(in Input, r request) {
	safe := e.monitoring.Safe()

	if in.Speed <= 0 && e.supervision == Intervention {
		e.supervision = safe
		e.brake.ServiceBrake = false
		e.brake.TractionCutOff = false
		if !e.options.HoldEmergencyBrake {
			e.brake.EmergencyBrake = false
		}
		return
	}

	// Speed is back below every permitted boundary
	if r.status >= Overspeed {
		return
	}
	switch e.supervision {
	case Overspeed, Warning:
		e.supervision = safe
		e.brake.TractionCutOff = false
	case Intervention:
		if !e.brake.EmergencyBrake || e.options.ReleaseEmergencyBrakeEarly {
			e.supervision = safe
			e.brake.ServiceBrake = false
			e.brake.TractionCutOff = false
			e.brake.EmergencyBrake = false
		}
	case Indication:
		if safe == None {
			e.supervision = None
		}
	}
}

func (e *Engine) state(in Input) State {
	s := State{
		Monitoring:  e.monitoring,
		Supervision: e.supervision,
		Brake:       e.brake,
		Release:     in.Targets.Release,
	}

	vmrsp := in.Targets.Ceiling
	switch e.monitoring {
	case CeilingSpeed:
		s.Permitted = vmrsp
		s.Intervention = vmrsp + e.model.DVSbi(vmrsp)
	case TargetSpeed:
		s.Permitted = vmrsp
		s.Intervention = vmrsp + e.model.DVSbi(vmrsp)
		if e.mrdt != nil {
			s.Permitted = math.Min(vmrsp, e.mrdt.VP)
			s.Intervention = math.Min(s.Intervention, e.mrdt.VSBI)
		}
	case ReleaseSpeed:
		s.Permitted = in.Targets.Release
		s.Intervention = in.Targets.Release
	}

	if e.mrdt != nil {
		m := *e.mrdt
		s.MRDT = &m
		s.TargetSpeed = m.Speed
		s.TargetDist = m.Location - in.EstFront
	} else if e.forced != nil {
		s.TargetSpeed = e.forced.Speed
		s.TargetDist = e.forced.Location - in.EstFront
	}
	return s
}
