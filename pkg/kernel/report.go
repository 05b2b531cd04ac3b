package kernel

import (
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/targets"
)

// Report builds the driver display status of a cycle
func (o Output) Report(env messages.Envelope) *messages.SupervisionReport {
	r := &messages.SupervisionReport{
		Envelope:     env.WithCycle(o.Cycle),
		Mode:         o.Mode,
		Level:        o.Level,
		Monitoring:   o.State.Monitoring.String(),
		Supervision:  o.State.Supervision.String(),
		EstFront:     o.EstFront,
		Speed:        o.Speed,
		Permitted:    o.State.Permitted,
		TargetSpeed:  o.State.TargetSpeed,
		TargetDist:   o.State.TargetDist,
		Intervention: o.State.Intervention,
		Release:      o.State.Release,
	}
	for _, t := range o.Targets {
		r.Targets = append(r.Targets, targetInfo(t, o.EstFront))
	}
	for _, n := range o.Notices {
		r.Notices = append(r.Notices, n.Kind)
	}
	return r
}

func targetInfo(t targets.Target, front float64) messages.TargetInfo {
	return messages.TargetInfo{
		Kind:     t.Kind.String(),
		Location: t.Location,
		Speed:    t.Speed,
		Distance: t.Location - front,
	}
}

// BrakeCommand builds the train interface command of a cycle
func (o Output) BrakeCommand(env messages.Envelope) *messages.BrakeCommand {
	return &messages.BrakeCommand{
		Envelope:       env.WithCycle(o.Cycle),
		ServiceBrake:   o.Brake.ServiceBrake,
		EmergencyBrake: o.Brake.EmergencyBrake,
		TractionCutOff: o.Brake.TractionCutOff,
		Reasons:        o.Reasons,
	}
}

// FaultReports builds one report per fault raised in the cycle. env is
// called once per report so each gets its own message ID.
func (o Output) FaultReports(env func() messages.Envelope) []*messages.FaultReport {
	var out []*messages.FaultReport
	for _, f := range o.Faults {
		r := &messages.FaultReport{
			Envelope: env().WithCycle(o.Cycle),
			Kind:     string(f.Kind),
			Reaction: f.Reaction,
			Detail:   f.Detail,
		}
		if f.Group != (messages.GroupID{}) {
			r.Group = f.Group.String()
		}
		out = append(out, r)
	}
	return out
}

// RadioAcks builds the acknowledgements to send back to radio block centres
func (o Output) RadioAcks(env func() messages.Envelope) []*messages.RadioAck {
	var out []*messages.RadioAck
	for _, a := range o.Acks {
		out = append(out, &messages.RadioAck{
			Envelope: env().WithCycle(o.Cycle),
			Session:  a.Session,
			Message:  a.Message,
			ID:       a.ID,
			Result:   a.Result,
		})
	}
	return out
}
