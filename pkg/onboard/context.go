package onboard

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/linking"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/position"
	"github.com/agile-defense/evc/pkg/targets"
)

// Transition is a pending level transition
type Transition struct {
	Level Level   `json:"level"`
	At    float64 `json:"at"` // -Inf for an immediate transition
}

// Immediate returns a transition taking effect in the current cycle
func Immediate(l Level) *Transition {
	return &Transition{Level: l, At: math.Inf(-1)}
}

// EmergencyStop is an emergency stop ordered by a radio block centre
type EmergencyStop struct {
	ID          int     `json:"nid_em"`
	Conditional bool    `json:"conditional"`
	Location    float64 `json:"location,omitempty"`
}

// Emergency stop acknowledgement results (Q_EMERGENCYSTOP)
const (
	StopAcceptedEoAChanged    = 0
	StopAcceptedEoAUnchanged  = 1
	StopAcceptedUnconditional = 2
	StopRejected              = 3
)

// Ack is an acknowledgement to send back to a radio block centre
type Ack struct {
	Session string `json:"session"`
	Message int    `json:"nid_message"`
	ID      int    `json:"nid_em"`
	Result  int    `json:"q_emergencystop"`
}

// LRBG is a balise group usable as location reference
type LRBG struct {
	Group    messages.GroupID   `json:"group"`
	Position position.Position  `json:"position"`
	Dir      position.Direction `json:"dir"`
	At       time.Time          `json:"at"`
}

// NationalValues are the values set by the infrastructure manager
type NationalValues struct {
	Countries []int `yaml:"countries"`
	// ReleaseEmergencyBrakeEarly is Q_NVEMRRLS
	ReleaseEmergencyBrakeEarly bool `yaml:"release_emergency_brake_early"`
}

// Covers reports whether the values apply in a country
func (n NationalValues) Covers(country int) bool {
	for _, c := range n.Countries {
		if c == country {
			return true
		}
	}
	return false
}

// ModeSection is a section of a mode profile in track coordinates
type ModeSection struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Mode  int     `json:"mode"`
	Speed float64 `json:"speed"`
}

// Cover is a virtual balise cover
type Cover struct {
	Country int       `json:"nid_c"`
	Marker  int       `json:"nid_vbcmk"`
	Expiry  time.Time `json:"expiry"`
}

// Covers stores the virtual balise covers set by trackside
type Covers interface {
	Covered(country, marker int, now time.Time) bool
	Set(c Cover) error
	Remove(country, marker int) error
	RetainCountry(country int) error
}

// Demand is the brake demand from fault reactions and trips
type Demand struct {
	ServiceBrake bool     `json:"service_brake"`
	Trip         bool     `json:"trip"`
	Reasons      []string `json:"reasons,omitempty"`
}

// Options configure a new context
type Options struct {
	Mode           Mode
	Level          Level
	Version        int
	AntennaOffset  float64
	MaxSpeed       float64
	AccuracyFixed  float64
	AccuracyRatio  float64
	National       NationalValues
	CabActive      bool
	TrainDataValid bool
	Covers         Covers
}

// Context is the onboard supervision state. It is owned by the cycle driver
// and passed to every component; nothing in it is safe for concurrent use.
type Context struct {
	Mode       Mode
	Level      Level
	Transition *Transition
	Sessions   Sessions
	Version    int

	TripExitAcknowledged bool
	CabActive            bool
	TrainDataValid       bool
	Override             bool
	InhibitRevocableTSR  bool
	PositionValid        bool
	SoM                  string

	National       NationalValues
	EmergencyStops map[int]EmergencyStop

	Linking     *linking.Supervisor
	Track       *targets.Track
	Targets     targets.Set
	Odometer    *position.Odometer
	LRBGs       []LRBG
	RouteGuard  []messages.GroupID
	SRBalises   []messages.GroupID
	ModeProfile []ModeSection
	Covers      Covers

	Demand  Demand
	Faults  []Fault
	Notices []Notice
	Acks    []Ack

	defaults NationalValues
	logger   zerolog.Logger
}

// maxLRBGs bounds the remembered location references
const maxLRBGs = 8

// NewContext creates the context at start of mission
func NewContext(o Options, logger zerolog.Logger) *Context {
	return &Context{
		Mode:           o.Mode,
		Level:          o.Level,
		Version:        o.Version,
		CabActive:      o.CabActive,
		TrainDataValid: o.TrainDataValid,
		National:       o.National,
		EmergencyStops: make(map[int]EmergencyStop),
		Linking:        linking.NewSupervisor(o.AntennaOffset),
		Track:          targets.NewTrack(o.MaxSpeed),
		Odometer:       position.NewOdometer(o.AccuracyFixed, o.AccuracyRatio),
		Covers:         o.Covers,
		defaults:       o.National,
		logger:         logger.With().Str("component", "onboard").Logger(),
	}
}

// Logger returns the context logger
func (c *Context) Logger() zerolog.Logger {
	return c.logger
}

// SetMode changes the operating mode. It reports whether a supervising mode
// was left, in which case the caller resets acquisition and linking.
func (c *Context) SetMode(m Mode) bool {
	if m == c.Mode {
		return false
	}
	left := c.Mode.Supervising() && !m.Supervising()
	c.logger.Info().Str("from", c.Mode.String()).Str("to", m.String()).Msg("Mode change")
	c.Mode = m
	if m == ModeTR {
		c.TripExitAcknowledged = false
	}
	return left
}

// SetLevel changes the level immediately
func (c *Context) SetLevel(l Level) {
	if l == c.Level {
		return
	}
	c.logger.Info().Str("from", c.Level.String()).Str("to", l.String()).Msg("Level change")
	c.Level = l
}

// Reset discards the linking state. Called when a supervising mode is left.
func (c *Context) Reset() {
	c.Linking.Reset()
}

// ResetNationalValues restores the values configured for the train
func (c *Context) ResetNationalValues() {
	c.National = c.defaults
}

// React applies a fault reaction
func (c *Context) React(r linking.Reaction, reason string) {
	switch r {
	case linking.ReactionTrip:
		c.Trip(reason)
	case linking.ReactionBrake:
		if c.Mode.BrakeSuppressed() {
			c.logger.Debug().Str("reason", reason).Str("mode", c.Mode.String()).Msg("Brake reaction suppressed")
			return
		}
		c.logger.Error().Str("reason", reason).Msg("Service brake until standstill")
		c.Demand.ServiceBrake = true
		c.Demand.Reasons = append(c.Demand.Reasons, reason)
	}
}

// Trip switches to trip mode and commands the emergency brake
func (c *Context) Trip(reason string) {
	c.logger.Error().Str("reason", reason).Str("mode", c.Mode.String()).Msg("Train trip")
	c.Demand.Trip = true
	c.Demand.Reasons = append(c.Demand.Reasons, reason)
	c.SetMode(ModeTR)
}

// AcknowledgeTrip moves from trip to post trip once the train stands still
func (c *Context) AcknowledgeTrip() bool {
	if c.Mode != ModeTR || c.Odometer.Speed() > 0 {
		return false
	}
	c.SetMode(ModePT)
	c.Demand.Trip = false
	return true
}

// Standstill releases reactions that apply until the train stops
func (c *Context) Standstill() {
	c.Demand.ServiceBrake = false
	if !c.Demand.Trip {
		c.Demand.Reasons = nil
	}
}

// Report records a fault for the cycle output
func (c *Context) Report(f Fault) {
	c.logger.Warn().
		Str("fault", string(f.Kind)).
		Str("group", f.Group.String()).
		Str("detail", f.Detail).
		Msg("Fault")
	c.Faults = append(c.Faults, f)
}

// Notify records information for the driver display
func (c *Context) Notify(n Notice) {
	c.Notices = append(c.Notices, n)
}

// ApplyLinking reports linking faults and applies their reactions
func (c *Context) ApplyLinking(effects []linking.Effect, group messages.GroupID) {
	for _, e := range effects {
		c.Report(Fault{Kind: FaultKind(e.Fault.String()), Group: group, Reaction: e.Reaction.String(), Detail: "expected " + e.Entry.Group.String()})
		c.React(e.Reaction, e.Fault.String())
	}
}

// Drain returns and clears the faults, notices and acknowledgements of the cycle
func (c *Context) Drain() ([]Fault, []Notice, []Ack) {
	f, n, a := c.Faults, c.Notices, c.Acks
	c.Faults, c.Notices, c.Acks = nil, nil, nil
	return f, n, a
}

// AddLRBG remembers a passed balise group as location reference
func (c *Context) AddLRBG(l LRBG) {
	kept := c.LRBGs[:0]
	for _, old := range c.LRBGs {
		if old.Group != l.Group {
			kept = append(kept, old)
		}
	}
	c.LRBGs = append(kept, l)
	if len(c.LRBGs) > maxLRBGs {
		c.LRBGs = c.LRBGs[len(c.LRBGs)-maxLRBGs:]
	}
}

// LRBG returns the location reference of a passed group
func (c *Context) LRBG(group messages.GroupID) (LRBG, bool) {
	for i := len(c.LRBGs) - 1; i >= 0; i-- {
		if c.LRBGs[i].Group == group {
			return c.LRBGs[i], true
		}
	}
	return LRBG{}, false
}

// TransitionTo reports whether an ongoing transition targets one of the levels
func (c *Context) TransitionTo(levels ...Level) bool {
	if c.Transition == nil {
		return false
	}
	for _, l := range levels {
		if c.Transition.Level == l {
			return true
		}
	}
	return false
}

// CompleteTransition switches level when the transition location is passed.
// It reports whether a transition completed.
func (c *Context) CompleteTransition(estFront float64) bool {
	if c.Transition == nil || estFront < c.Transition.At {
		return false
	}
	c.SetLevel(c.Transition.Level)
	c.Transition = nil
	return true
}

// ShortenAuthority applies a conditional emergency stop location
func (c *Context) ShortenAuthority(location float64) int {
	if c.Track.Authority == nil {
		return StopAcceptedEoAUnchanged
	}
	if location < c.Odometer.EstFront() {
		return StopRejected
	}
	if c.Track.ShortenAuthority(location) {
		return StopAcceptedEoAChanged
	}
	return StopAcceptedEoAUnchanged
}

// InsideModeSection reports whether the maximum safe front is inside a
// mode profile section of the given mode
func (c *Context) InsideModeSection(mode int) bool {
	front := c.Odometer.MaxSafeFront()
	for _, s := range c.ModeProfile {
		if s.Mode == mode && s.Start <= front && front < s.End {
			return true
		}
	}
	return false
}
