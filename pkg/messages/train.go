package messages

import (
	"fmt"
	"strings"
)

// BaliseReading is a telegram read by the antenna, published by the antenna driver
type BaliseReading struct {
	Envelope Envelope `json:"envelope"`

	Telegram Telegram `json:"telegram"`
	Odometer float64  `json:"odometer"` // Odometer position of the read
	ReadAt   int64    `json:"read_at"`  // Milliseconds since epoch
}

func (b *BaliseReading) GetEnvelope() Envelope  { return b.Envelope }
func (b *BaliseReading) SetEnvelope(e Envelope) { b.Envelope = e }

func (b *BaliseReading) Subject() string {
	return fmt.Sprintf("balise.%d.%d", b.Telegram.Group.Country, b.Telegram.Group.Group)
}

// RadioReceived is a message received from a radio block centre
type RadioReceived struct {
	Envelope Envelope     `json:"envelope"`
	Message  RadioMessage `json:"message"`
}

func (r *RadioReceived) GetEnvelope() Envelope  { return r.Envelope }
func (r *RadioReceived) SetEnvelope(e Envelope) { r.Envelope = e }

func (r *RadioReceived) Subject() string {
	return "radio.in." + subjectToken(r.Message.Session)
}

// RadioAck acknowledges a radio message back to the radio block centre
type RadioAck struct {
	Envelope Envelope `json:"envelope"`

	Session string `json:"session"`
	Message int    `json:"nid_message"`
	ID      int    `json:"nid_em,omitempty"`
	Result  int    `json:"q_emergencystop,omitempty"`
}

func (r *RadioAck) GetEnvelope() Envelope  { return r.Envelope }
func (r *RadioAck) SetEnvelope(e Envelope) { r.Envelope = e }

func (r *RadioAck) Subject() string {
	return "radio.out." + subjectToken(r.Session)
}

// DriverCommand is an action taken by the driver on the display
type DriverCommand struct {
	Envelope Envelope `json:"envelope"`

	Action string `json:"action"`
}

func (d *DriverCommand) GetEnvelope() Envelope  { return d.Envelope }
func (d *DriverCommand) SetEnvelope(e Envelope) { d.Envelope = e }

func (d *DriverCommand) Subject() string {
	return "dmi.driver." + subjectToken(d.Action)
}

// OdometryReading is the odometry state published by the train interface
type OdometryReading struct {
	Envelope Envelope `json:"envelope"`

	EstFront float64 `json:"est_front"`
	Speed    float64 `json:"speed"`
	// Simulated readings leave the speed to the onboard speed model
	Simulated bool `json:"simulated,omitempty"`
}

func (o *OdometryReading) GetEnvelope() Envelope  { return o.Envelope }
func (o *OdometryReading) SetEnvelope(e Envelope) { o.Envelope = e }

func (o *OdometryReading) Subject() string {
	return "odometry." + subjectToken(o.Envelope.Source)
}

// BrakeCommand is sent to the train interface every cycle the command changes
type BrakeCommand struct {
	Envelope Envelope `json:"envelope"`

	ServiceBrake   bool     `json:"service_brake"`
	EmergencyBrake bool     `json:"emergency_brake"`
	TractionCutOff bool     `json:"traction_cut_off"`
	Reasons        []string `json:"reasons,omitempty"`
}

func (b *BrakeCommand) GetEnvelope() Envelope  { return b.Envelope }
func (b *BrakeCommand) SetEnvelope(e Envelope) { b.Envelope = e }

func (b *BrakeCommand) Subject() string {
	switch {
	case b.EmergencyBrake:
		return "train.brake.emergency"
	case b.ServiceBrake:
		return "train.brake.service"
	case b.TractionCutOff:
		return "train.brake.traction"
	}
	return "train.brake.released"
}

// TargetInfo describes one supervised target for the driver display
type TargetInfo struct {
	Kind     string  `json:"kind"`
	Location float64 `json:"location"`
	Speed    float64 `json:"speed"`
	Distance float64 `json:"distance"`
}

// SupervisionReport is the status published to the driver display every cycle
type SupervisionReport struct {
	Envelope Envelope `json:"envelope"`

	Mode         string       `json:"mode"`
	Level        string       `json:"level"`
	Monitoring   string       `json:"monitoring"`
	Supervision  string       `json:"supervision"`
	EstFront     float64      `json:"est_front"`
	Speed        float64      `json:"speed"`
	Permitted    float64      `json:"permitted"`
	TargetSpeed  float64      `json:"target_speed"`
	TargetDist   float64      `json:"target_distance"`
	Intervention float64      `json:"intervention"`
	Release      float64      `json:"release"`
	Targets      []TargetInfo `json:"targets,omitempty"`
	Notices      []string     `json:"notices,omitempty"`
}

func (s *SupervisionReport) GetEnvelope() Envelope  { return s.Envelope }
func (s *SupervisionReport) SetEnvelope(e Envelope) { s.Envelope = e }

func (s *SupervisionReport) Subject() string {
	return "dmi.status." + strings.ToLower(s.Monitoring)
}

// FaultReport records a fault for the juridical recorder and the driver display
type FaultReport struct {
	Envelope Envelope `json:"envelope"`

	Kind     string `json:"kind"`
	Group    string `json:"group,omitempty"`
	Reaction string `json:"reaction,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (f *FaultReport) GetEnvelope() Envelope  { return f.Envelope }
func (f *FaultReport) SetEnvelope(e Envelope) { f.Envelope = e }

func (f *FaultReport) Subject() string {
	return "fault." + subjectToken(f.Kind)
}

// subjectToken makes a value safe to use as a NATS subject token
func subjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(strings.ToLower(s))
}
