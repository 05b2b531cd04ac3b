// Package supervision evaluates the monitoring and supervision status every
// cycle and derives the brake commands
package supervision

// Monitoring is the monitoring status
type Monitoring int

const (
	CeilingSpeed Monitoring = iota // CSM
	TargetSpeed                    // TSM
	ReleaseSpeed                   // RSM
)

func (m Monitoring) String() string {
	switch m {
	case CeilingSpeed:
		return "CSM"
	case TargetSpeed:
		return "TSM"
	case ReleaseSpeed:
		return "RSM"
	}
	return "unknown"
}

// Status is the supervision status. Values are ordered by severity.
type Status int

const (
	None Status = iota
	Indication
	Overspeed
	Warning
	Intervention
)

func (s Status) String() string {
	switch s {
	case None:
		return "NoS"
	case Indication:
		return "IndS"
	case Overspeed:
		return "OvS"
	case Warning:
		return "WaS"
	case Intervention:
		return "IntS"
	}
	return "unknown"
}

// Safe returns the status supervision returns to when speed is restored
func (m Monitoring) Safe() Status {
	if m == CeilingSpeed {
		return None
	}
	return Indication
}

// Brake is the command sent to the train interface
type Brake struct {
	ServiceBrake   bool `json:"service_brake"`
	EmergencyBrake bool `json:"emergency_brake"`
	TractionCutOff bool `json:"traction_cut_off"`
}

// Any reports whether any brake or cut-off is commanded
func (b Brake) Any() bool {
	return b.ServiceBrake || b.EmergencyBrake || b.TractionCutOff
}

// SpeedModel advances a simulated speed towards the permitted speed
type SpeedModel struct {
	Step   float64 `yaml:"step" validate:"gt=0"`
	Margin float64 `yaml:"margin" validate:"gte=0"`
}

// DefaultSpeedModel returns the display smoothing step of 0.15 m/s per cycle
func DefaultSpeedModel() SpeedModel {
	return SpeedModel{Step: 0.15, Margin: 1}
}

// Advance returns the speed for the next cycle
func (m SpeedModel) Advance(v, permitted float64) float64 {
	if v+m.Margin > permitted {
		v -= m.Step
	} else {
		v += m.Step
	}
	return max(v, 0)
}
