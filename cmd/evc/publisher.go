package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/kernel"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/supervision"
)

// publisher sends cycle outputs off the cycle goroutine. Brake commands are
// only sent when they change.
type publisher struct {
	publish  func(ctx context.Context, msg messages.Message) error
	envelope func() messages.Envelope
	outputs  chan kernel.Output
	logger   zerolog.Logger

	brake   supervision.Brake
	started bool
}

func newPublisher(publish func(context.Context, messages.Message) error, envelope func() messages.Envelope, logger zerolog.Logger) *publisher {
	return &publisher{
		publish:  publish,
		envelope: envelope,
		outputs:  make(chan kernel.Output, 32),
		logger:   logger.With().Str("component", "publisher").Logger(),
	}
}

// Emit queues an output. A full queue drops it; the next output carries the
// current brake state.
func (p *publisher) Emit(out kernel.Output) {
	select {
	case p.outputs <- out:
	default:
		p.logger.Warn().Uint64("cycle", out.Cycle).Msg("Publish queue full, dropping cycle output")
	}
}

// Run publishes queued outputs until ctx is done
func (p *publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case out := <-p.outputs:
			for _, msg := range p.messages(out) {
				if err := p.publish(ctx, msg); err != nil {
					p.logger.Error().Err(err).Str("subject", msg.Subject()).Uint64("cycle", out.Cycle).Msg("Failed to publish")
				}
			}
		}
	}
}

// messages lists what one output publishes: the brake command first when it
// changed, then faults, radio acknowledgements and the display status
func (p *publisher) messages(out kernel.Output) []messages.Message {
	var msgs []messages.Message
	if !p.started || out.Brake != p.brake {
		msgs = append(msgs, out.BrakeCommand(p.envelope()))
		if out.Brake.EmergencyBrake && !p.brake.EmergencyBrake {
			p.logger.Warn().Uint64("cycle", out.Cycle).Strs("reasons", out.Reasons).Msg("Emergency brake commanded")
		}
		p.brake = out.Brake
		p.started = true
	}
	for _, f := range out.FaultReports(p.envelope) {
		msgs = append(msgs, f)
	}
	for _, a := range out.RadioAcks(p.envelope) {
		msgs = append(msgs, a)
	}
	msgs = append(msgs, out.Report(p.envelope()))
	return msgs
}
