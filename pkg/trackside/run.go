package trackside

import (
	"math"
	"time"

	"github.com/agile-defense/evc/pkg/messages"
)

// Run advances a scenario tick by tick. It is not safe for concurrent use
// except for Command, which the brake command subscriber calls.
type Run struct {
	scenario *Scenario
	brake    chan messages.BrakeCommand
	command  messages.BrakeCommand

	front   float64
	speed   float64
	elapsed time.Duration
	balise  int
	radio   int
}

// NewRun starts a run at the scenario start position
func NewRun(s *Scenario) *Run {
	return &Run{
		scenario: s,
		brake:    make(chan messages.BrakeCommand, 16),
		front:    s.Train.Start,
	}
}

// Command records the latest brake command from the onboard
func (r *Run) Command(cmd messages.BrakeCommand) {
	select {
	case r.brake <- cmd:
	default:
	}
}

// Done reports whether the train reached the end of the run or stopped
// under an emergency brake
func (r *Run) Done() bool {
	return r.front >= r.scenario.Stop || (r.speed == 0 && r.command.EmergencyBrake && r.elapsed > 0)
}

// Front returns the train front position
func (r *Run) Front() float64 { return r.front }

// Speed returns the train speed
func (r *Run) Speed() float64 { return r.speed }

// Tick moves the train by one tick and returns what the onboard receives:
// the odometry first, then telegrams and radio messages in passing order
func (r *Run) Tick() []messages.Message {
drain:
	for {
		select {
		case cmd := <-r.brake:
			r.command = cmd
		default:
			break drain
		}
	}

	dt := r.scenario.Tick.Seconds()
	r.elapsed += r.scenario.Tick
	prev := r.front
	r.speed = r.accelerate(dt)
	r.front += r.speed * dt

	out := []messages.Message{&messages.OdometryReading{
		EstFront:  r.front,
		Speed:     r.speed,
		Simulated: r.scenario.Train.Simulated,
	}}

	for r.balise < len(r.scenario.Balises) && r.scenario.Balises[r.balise].Position <= r.front {
		b := r.scenario.Balises[r.balise]
		r.balise++
		if b.Position < prev {
			continue
		}
		t := b.telegram
		t.ReadError = b.Fail
		out = append(out, &messages.BaliseReading{
			Telegram: t,
			Odometer: b.Position,
			ReadAt:   r.elapsed.Milliseconds(),
		})
	}

	for r.radio < len(r.scenario.Radio) && r.scenario.Radio[r.radio].Position <= r.front {
		out = append(out, &messages.RadioReceived{Message: r.scenario.Radio[r.radio].message})
		r.radio++
	}
	return out
}

// accelerate returns the speed after dt under the current command
func (r *Run) accelerate(dt float64) float64 {
	t := r.scenario.Train
	switch {
	case r.command.EmergencyBrake:
		return math.Max(0, r.speed-t.Emergency*dt)
	case r.command.ServiceBrake:
		return math.Max(0, r.speed-t.Service*dt)
	case r.command.TractionCutOff:
		return r.speed
	}
	return math.Min(t.Speed, r.speed+t.Accel*dt)
}
