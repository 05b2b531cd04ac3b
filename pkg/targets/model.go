package targets

import "math"

// Kind identifies what a target supervises
type Kind int

const (
	KindMRSP Kind = iota
	KindEoA
	KindSvL
	KindLoA
	KindSRDistance
)

func (k Kind) String() string {
	switch k {
	case KindMRSP:
		return "mrsp"
	case KindEoA:
		return "eoa"
	case KindSvL:
		return "svl"
	case KindLoA:
		return "loa"
	case KindSRDistance:
		return "sr_distance"
	}
	return "unknown"
}

// Target is a location where the train must not exceed Speed, with the
// boundaries derived for the current estimated speed
type Target struct {
	Kind     Kind    `json:"kind"`
	Location float64 `json:"location"`
	Speed    float64 `json:"speed"`

	DI    float64 `json:"d_i"`
	DP    float64 `json:"d_p"`
	DW    float64 `json:"d_w"`
	DSBI1 float64 `json:"d_sbi1"`
	DSBI2 float64 `json:"d_sbi2"`
	DEBI  float64 `json:"d_ebi"`

	VP   float64 `json:"v_p"`
	VSBI float64 `json:"v_sbi"`
	VEBI float64 `json:"v_ebi"`
}

// EBDBased reports whether the target is supervised on the emergency braking curve
func (t Target) EBDBased() bool {
	return t.Kind == KindMRSP || t.Kind == KindLoA
}

// Same reports whether two targets designate the same restriction
func (t Target) Same(o Target) bool {
	return t.Kind == o.Kind && t.Location == o.Location && t.Speed == o.Speed
}

// Params holds the fixed and train-specific values of the braking model.
// Times are in seconds, speeds in m/s, distances in metres.
type Params struct {
	TTraction float64 `yaml:"t_traction" validate:"gte=0"`
	TBerem    float64 `yaml:"t_berem" validate:"gte=0"`
	TBS       float64 `yaml:"t_bs" validate:"gte=0"`
	TBS1      float64 `yaml:"t_bs1" validate:"gte=0"`
	TBS2      float64 `yaml:"t_bs2" validate:"gte=0"`
	TDriver   float64 `yaml:"t_driver" validate:"gte=0"`
	TWarning  float64 `yaml:"t_warning" validate:"gte=0,ltefield=TDriver"`

	VUra                float64 `yaml:"v_ura" validate:"gte=0"`
	InhibitCompensation bool    `yaml:"inhibit_compensation"`
	AEst1               float64 `yaml:"a_est1" validate:"gte=0"`
	AEst2               float64 `yaml:"a_est2" validate:"gte=0"`

	DVEbiMin     float64 `yaml:"dv_ebi_min" validate:"gte=0"`
	DVEbiMax     float64 `yaml:"dv_ebi_max" validate:"gtefield=DVEbiMin"`
	VEbiMin      float64 `yaml:"v_ebi_min" validate:"gte=0"`
	VEbiMax      float64 `yaml:"v_ebi_max" validate:"gtfield=VEbiMin"`
	DVSbiMin     float64 `yaml:"dv_sbi_min" validate:"gte=0"`
	DVSbiMax     float64 `yaml:"dv_sbi_max" validate:"gtefield=DVSbiMin"`
	VSbiMin      float64 `yaml:"v_sbi_min" validate:"gte=0"`
	VSbiMax      float64 `yaml:"v_sbi_max" validate:"gtfield=VSbiMin"`
	DVWarningMin float64 `yaml:"dv_warning_min" validate:"gte=0"`
	DVWarningMax float64 `yaml:"dv_warning_max" validate:"gtefield=DVWarningMin"`
	VWarningMin  float64 `yaml:"v_warning_min" validate:"gte=0"`
	VWarningMax  float64 `yaml:"v_warning_max" validate:"gtfield=VWarningMin"`

	AntennaOffset    float64 `yaml:"antenna_offset" validate:"gte=0"`
	LocationAccuracy float64 `yaml:"location_accuracy" validate:"gte=0"`
	TrainLength      float64 `yaml:"train_length" validate:"gt=0"`
	MaxSpeed         float64 `yaml:"max_speed" validate:"gt=0"`
}

const kmh = 1 / 3.6

// DefaultParams returns the fixed values and a typical passenger train
func DefaultParams() Params {
	return Params{
		TTraction:    2,
		TBerem:       1,
		TBS:          3,
		TBS1:         3,
		TBS2:         3,
		TDriver:      4,
		TWarning:     2,
		VUra:         2 * kmh,
		AEst1:        1,
		AEst2:        0.5,
		DVEbiMin:     7.5 * kmh,
		DVEbiMax:     15 * kmh,
		VEbiMin:      110 * kmh,
		VEbiMax:      210 * kmh,
		DVSbiMin:     5.5 * kmh,
		DVSbiMax:     10 * kmh,
		VSbiMin:      110 * kmh,
		VSbiMax:      210 * kmh,
		DVWarningMin: 4 * kmh,
		DVWarningMax: 5 * kmh,
		VWarningMin:  110 * kmh,
		VWarningMax:  140 * kmh,

		AntennaOffset:    3,
		LocationAccuracy: 5,
		TrainLength:      200,
		MaxSpeed:         160 * kmh,
	}
}

// Model derives target boundaries from the train's braking capability
type Model struct {
	Params
	Emergency *Deceleration // A_safe
	Service   *Deceleration // A_expected
}

// NewModel creates a braking model
func NewModel(p Params, emergency, service *Deceleration) *Model {
	return &Model{Params: p, Emergency: emergency, Service: service}
}

func (m *Model) decel(t Target) *Deceleration {
	if t.Kind == KindEoA {
		return m.Service
	}
	return m.Emergency
}

// curveSpeed is the speed t's braking curve ends at. Curves of EBD-based
// targets end at the emergency intervention speed of the target.
func (m *Model) curveSpeed(t Target) float64 {
	if t.EBDBased() {
		return t.Speed + m.DVEbi(t.Speed)
	}
	return t.Speed
}

// DistanceCurve returns the location where t's braking curve is at speed v
func (m *Model) DistanceCurve(t Target, v float64) float64 {
	return m.decel(t).DistanceCurve(t.Location, m.curveSpeed(t), v)
}

// SpeedCurve returns the speed of t's braking curve at location x
func (m *Model) SpeedCurve(t Target, x float64) float64 {
	return m.decel(t).SpeedCurve(t.Location, m.curveSpeed(t), x)
}

// bec returns the speed reached and the distance run before the emergency
// brake is fully built up, starting from v
func (m *Model) bec(v, vTarget float64) (float64, float64) {
	vd0 := m.VUra
	if m.InhibitCompensation {
		vd0 = 0
	}
	vd1 := m.AEst1 * m.TTraction
	vd2 := m.AEst2 * m.TBerem

	vbec := math.Max(v+vd0+vd1, vTarget) + vd2
	dbec := math.Max(v+vd0+vd1/2, vTarget)*m.TTraction + (math.Max(v+vd0+vd1, vTarget)+vd2/2)*m.TBerem
	return vbec, dbec
}

// indicationTime is the time between the indication and permitted boundaries
func (m *Model) indicationTime() float64 {
	return math.Max(0.8*m.TBS, 5) + m.TDriver
}

// Compute returns t with its boundaries derived for the estimated speed v
func (m *Model) Compute(t Target, v float64) Target {
	if t.EBDBased() {
		vbec, dbec := m.bec(v, t.Speed)
		t.DEBI = m.DistanceCurve(t, vbec) - dbec
		t.DSBI2 = t.DEBI - v*m.TBS2
		t.DSBI1 = t.DSBI2
		t.DW = t.DSBI2 - v*m.TWarning
		t.DP = t.DSBI2 - v*m.TDriver
	} else {
		t.DSBI1 = m.DistanceCurve(t, v) - m.TBS1*v
		t.DSBI2 = t.DSBI1
		t.DEBI = t.DSBI1
		t.DW = t.DSBI1 - v*m.TWarning
		t.DP = t.DSBI1 - v*m.TDriver
	}
	t.DI = t.DP - m.indicationTime()*v
	return t
}

// speedAt solves for the speed whose boundary lies exactly at x. Boundaries
// move towards the train as speed grows, so the search is a bisection.
func (m *Model) speedAt(t Target, x float64, boundary func(Target) float64) float64 {
	lo, hi := t.Speed, math.Max(m.MaxSpeed*2, t.Speed+1)
	if boundary(m.Compute(t, lo)) < x {
		return t.Speed
	}
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		if boundary(m.Compute(t, mid)) >= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// Speeds fills the permitted and intervention speeds of t at location x
func (m *Model) Speeds(t Target, x float64) Target {
	t.VP = m.speedAt(t, x, func(c Target) float64 { return c.DP })
	if t.EBDBased() {
		t.VSBI = math.Max(m.speedAt(t, x, func(c Target) float64 { return c.DSBI2 }), t.Speed+m.DVSbi(t.Speed))
		t.VEBI = math.Max(m.speedAt(t, x, func(c Target) float64 { return c.DEBI }), t.Speed+m.DVEbi(t.Speed))
	} else {
		t.VSBI = m.speedAt(t, x, func(c Target) float64 { return c.DSBI1 })
		t.VEBI = t.VSBI
	}
	return t
}

func interpolate(v, vMin, vMax, dMin, dMax float64) float64 {
	if v <= vMin {
		return dMin
	}
	return math.Min(dMin+(dMax-dMin)/(vMax-vMin)*(v-vMin), dMax)
}

// DVEbi is the emergency intervention margin above the ceiling speed v
func (m *Model) DVEbi(v float64) float64 {
	return interpolate(v, m.VEbiMin, m.VEbiMax, m.DVEbiMin, m.DVEbiMax)
}

// DVSbi is the service intervention margin above the ceiling speed v
func (m *Model) DVSbi(v float64) float64 {
	return interpolate(v, m.VSbiMin, m.VSbiMax, m.DVSbiMin, m.DVSbiMax)
}

// DVWarning is the warning margin above the ceiling speed v
func (m *Model) DVWarning(v float64) float64 {
	return interpolate(v, m.VWarningMin, m.VWarningMax, m.DVWarningMin, m.DVWarningMax)
}
