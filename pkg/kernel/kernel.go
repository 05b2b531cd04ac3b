// Package kernel drives the supervision cycle. Inputs from the antenna, the
// radio and the odometry are queued by their producers and drained in arrival
// order at the start of each cycle.
package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agile-defense/evc/pkg/balise"
	"github.com/agile-defense/evc/pkg/information"
	"github.com/agile-defense/evc/pkg/location"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/supervision"
	"github.com/agile-defense/evc/pkg/targets"
)

// Source identifies where an input came from
type Source string

const (
	SourceAntenna  Source = "antenna"
	SourceRadio    Source = "radio"
	SourceOdometry Source = "odometry"
	SourceDriver   Source = "driver"
)

// Odometry is an odometry reading
type Odometry struct {
	EstFront float64
	Speed    float64
	// Simulated leaves the speed to the speed model
	Simulated bool
}

// DriverAction is an acknowledgement given by the driver
type DriverAction string

const (
	AckTrip           DriverAction = "ack_trip"
	AckEmergencyBrake DriverAction = "ack_emergency_brake"
	OverrideOn        DriverAction = "override_on"
	OverrideOff       DriverAction = "override_off"
)

// Input is one queued input. Exactly the field matching Source is set.
type Input struct {
	Source   Source
	Antenna  balise.AntennaEvent
	Radio    messages.RadioMessage
	Odometry Odometry
	Driver   DriverAction
}

// Output is the result of one cycle
type Output struct {
	Cycle    uint64             `json:"cycle"`
	At       time.Time          `json:"at"`
	Mode     string             `json:"mode"`
	Level    string             `json:"level"`
	EstFront float64            `json:"est_front"`
	Speed    float64            `json:"speed"`
	State    supervision.State  `json:"state"`
	Brake    supervision.Brake  `json:"brake"`
	Reasons  []string           `json:"reasons,omitempty"`
	Targets  []targets.Target   `json:"targets,omitempty"`
	LRBG     *onboard.LRBG      `json:"lrbg,omitempty"`
	Faults   []onboard.Fault    `json:"faults,omitempty"`
	Notices  []onboard.Notice   `json:"notices,omitempty"`
	Acks     []onboard.Ack      `json:"acks,omitempty"`
	Passages []location.Passage `json:"passages,omitempty"`
}

// Options configure the kernel
type Options struct {
	Supervision supervision.Options
	SpeedModel  supervision.SpeedModel
}

// Kernel owns the onboard context and runs the components on it. Enqueue and
// Last are safe for concurrent use; Step must be called from one goroutine.
type Kernel struct {
	mu    sync.Mutex
	queue []Input
	last  Output

	ctx         *onboard.Context
	acquisition *balise.Acquisition
	dispatcher  *information.Dispatcher
	tracker     *location.Tracker
	model       *targets.Model
	engine      *supervision.Engine
	options     Options
	metrics     *Metrics
	tracer      trace.Tracer
	logger      zerolog.Logger

	cycle       uint64
	supervising bool
	state       supervision.State
}

// New creates a kernel around a context built at start of mission
func New(c *onboard.Context, model *targets.Model, options Options, metrics *Metrics, logger zerolog.Logger) *Kernel {
	tracker := location.NewTracker(logger)
	dispatcher := information.NewDispatcher(metrics.events(), logger)
	validator := balise.NewValidator(nil, dispatcher, tracker, metrics.groups(), logger)
	return &Kernel{
		ctx:         c,
		acquisition: balise.NewAcquisition(model.AntennaOffset, validator, logger),
		dispatcher:  dispatcher,
		tracker:     tracker,
		model:       model,
		engine:      supervision.NewEngine(model, options.Supervision, logger),
		options:     options,
		metrics:     metrics,
		tracer:      otel.Tracer("github.com/agile-defense/evc/pkg/kernel"),
		logger:      logger.With().Str("component", "kernel").Logger(),
		supervising: c.Mode.Supervising(),
	}
}

// Enqueue adds an input for the next cycle
func (k *Kernel) Enqueue(in Input) {
	k.mu.Lock()
	k.queue = append(k.queue, in)
	k.mu.Unlock()
}

// Last returns the output of the most recent cycle
func (k *Kernel) Last() Output {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.last
}

func (k *Kernel) drain() []Input {
	k.mu.Lock()
	defer k.mu.Unlock()
	q := k.queue
	k.queue = nil
	return q
}

// Step runs one supervision cycle
func (k *Kernel) Step(ctx context.Context, now time.Time) Output {
	_, span := k.tracer.Start(ctx, "kernel.cycle")
	defer span.End()
	started := time.Now()
	k.cycle++
	c := k.ctx

	inputs := k.drain()
	for _, in := range inputs {
		k.apply(c, in)
		k.checkModeExit(c)
	}

	k.acquisition.Poll(c)
	k.checkModeExit(c)

	if c.CompleteTransition(c.Odometer.EstFront()) {
		k.dispatcher.Replay(c)
		k.checkModeExit(c)
	}
	if at := c.Sessions.HandoverAt; at != nil && c.Odometer.EstFront() >= *at {
		c.Sessions.CompleteHandover()
		if s := c.Sessions.Supervising; s != nil {
			k.logger.Info().Str("session", s.ID()).Msg("Radio handover completed")
		}
	}

	k.engine.SetOptions(supervision.Options{
		ReleaseEmergencyBrakeEarly: c.National.ReleaseEmergencyBrakeEarly,
		HoldEmergencyBrake:         k.options.Supervision.HoldEmergencyBrake,
	})

	train := targets.Train{
		Speed:        c.Odometer.Speed(),
		EstFront:     c.Odometer.EstFront(),
		MinSafeFront: c.Odometer.MinSafeFront(),
		MaxSafeFront: c.Odometer.MaxSafeFront(),
		LRBG:         c.Odometer.Reference(),
	}
	c.Targets.Update(c.Track, train.MaxSafeFront)
	snapshot := k.model.Evaluate(&c.Targets, c.Track, train)
	k.state = k.engine.Update(supervision.Input{
		Speed:        train.Speed,
		EstFront:     train.EstFront,
		MinSafeFront: train.MinSafeFront,
		MaxSafeFront: train.MaxSafeFront,
		Targets:      snapshot,
	})

	if train.Speed <= 0 {
		c.Standstill()
	}

	out := k.output(c, now, snapshot)
	span.SetAttributes(
		attribute.Int64("cycle", int64(k.cycle)),
		attribute.Int("inputs", len(inputs)),
		attribute.String("mode", out.Mode),
		attribute.String("supervision", out.State.Supervision.String()),
		attribute.Bool("emergency_brake", out.Brake.EmergencyBrake),
	)
	k.metrics.observe(out, time.Since(started).Seconds())

	k.mu.Lock()
	k.last = out
	k.mu.Unlock()
	return out
}

func (k *Kernel) apply(c *onboard.Context, in Input) {
	k.metrics.input(string(in.Source))
	switch in.Source {
	case SourceAntenna:
		k.acquisition.Receive(c, in.Antenna)
	case SourceRadio:
		k.dispatcher.HandleRadio(c, in.Radio)
	case SourceOdometry:
		speed := in.Odometry.Speed
		if in.Odometry.Simulated {
			speed = k.options.SpeedModel.Advance(c.Odometer.Speed(), k.state.Permitted)
		}
		c.Odometer.Update(in.Odometry.EstFront, speed)
	case SourceDriver:
		k.driver(c, in.Driver)
	default:
		k.logger.Warn().Str("source", string(in.Source)).Msg("Unknown input source")
	}
}

func (k *Kernel) driver(c *onboard.Context, action DriverAction) {
	accepted := true
	switch action {
	case AckTrip:
		accepted = c.AcknowledgeTrip()
	case AckEmergencyBrake:
		accepted = k.engine.AcknowledgeEmergencyBrake(c.Odometer.Speed())
	case OverrideOn:
		c.Override = true
	case OverrideOff:
		c.Override = false
	default:
		accepted = false
	}
	k.logger.Info().Str("action", string(action)).Bool("accepted", accepted).Msg("Driver action")
}

// checkModeExit resets acquisition and linking once a supervising mode is left
func (k *Kernel) checkModeExit(c *onboard.Context) {
	supervising := c.Mode.Supervising()
	if k.supervising && !supervising {
		k.logger.Info().Str("mode", c.Mode.String()).Msg("Supervising mode left, resetting acquisition and linking")
		c.Reset()
		k.acquisition.Reset()
		k.dispatcher.Reset()
	}
	k.supervising = supervising
}

func (k *Kernel) output(c *onboard.Context, now time.Time, snapshot targets.Snapshot) Output {
	faults, notices, acks := c.Drain()
	brake := k.state.Brake
	if c.Mode == onboard.ModeTR || c.Demand.Trip {
		brake.EmergencyBrake = true
	}
	if c.Demand.ServiceBrake {
		brake.ServiceBrake = true
	}

	out := Output{
		Cycle:    k.cycle,
		At:       now,
		Mode:     c.Mode.String(),
		Level:    c.Level.String(),
		EstFront: c.Odometer.EstFront(),
		Speed:    c.Odometer.Speed(),
		State:    k.state,
		Brake:    brake,
		Reasons:  append([]string(nil), c.Demand.Reasons...),
		Targets:  snapshot.Targets,
		Faults:   faults,
		Notices:  notices,
		Acks:     acks,
		Passages: k.tracker.Passages(),
	}
	if n := len(c.LRBGs); n > 0 {
		lrbg := c.LRBGs[n-1]
		out.LRBG = &lrbg
	}
	return out
}

// Run steps the kernel at a fixed period until ctx is done. Every output is
// passed to emit.
func (k *Kernel) Run(ctx context.Context, period time.Duration, emit func(Output)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	k.logger.Info().Dur("period", period).Msg("Supervision cycle started")
	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Uint64("cycles", k.cycle).Msg("Supervision cycle stopped")
			return ctx.Err()
		case now := <-ticker.C:
			emit(k.Step(ctx, now))
		}
	}
}
