package information

import (
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
)

// Filter outcomes
const (
	outcomeApplied  = "applied"
	outcomeLevel    = "level"
	outcomeSource   = "source"
	outcomeMode     = "mode"
	outcomeBuffered = "buffered"
)

// levelFilter applies the level table. Rejected events may be buffered for
// an ongoing transition to the level they are meant for.
func (d *Dispatcher) levelFilter(c *onboard.Context, ec EventContext, p pending) (bool, string) {
	row := categories[ec.Event.Kind].level
	r := row.balise[c.Level]
	if ec.Event.FromRadio() {
		r = row.radio[c.Level]
	}

	if !r.accept {
		if (r.buffer&bufferLevel1 != 0 && c.TransitionTo(onboard.Level1)) ||
			(r.buffer&bufferLevel23 != 0 && c.TransitionTo(onboard.Level2, onboard.Level3)) {
			d.ring.push(p)
			return false, outcomeBuffered
		}
		return false, outcomeLevel
	}
	return levelConditions(c, ec, r.conds), outcomeLevel
}

func levelConditions(c *onboard.Context, ec EventContext, conds condition) bool {
	if conds&condNoAckPending != 0 && c.Sessions.TrainDataAckPending() {
		return false
	}
	if conds&condProfilesCover != 0 && !profilesCover(c, ec) {
		return false
	}
	if conds&condNoEmergencyStop != 0 && len(c.EmergencyStops) > 0 {
		return false
	}
	if conds&condRevocableAllowed != 0 && c.InhibitRevocableTSR && ec.Packet().Restriction().Revocable() {
		return false
	}
	if conds&condTransitionL23 != 0 && !c.TransitionTo(onboard.Level2, onboard.Level3) {
		return false
	}
	if conds&condNoTransitionOrder != 0 {
		if c.Transition != nil {
			return false
		}
		for _, o := range ec.Others() {
			if o.Kind == KindLevelTransitionOrder {
				return false
			}
		}
	}
	if conds&condTransitionOrder != 0 && !transitionOrdered(ec) {
		return false
	}
	if conds&condNewSession != 0 && !newSession(c, ec) {
		return false
	}
	return true
}

// profilesCover reports whether the static speed profile and the gradient
// are known from the train front to the end of a level 1 authority
func profilesCover(c *onboard.Context, ec EventContext) bool {
	p := ec.Packet()
	if p.ID != messages.PacketLevel1MA {
		return true
	}
	end := ec.Location(p.Authority().Length())
	t := c.Track
	if len(t.Static) == 0 || t.Static[0].Location > c.Odometer.EstFront() {
		return false
	}
	return t.Covered(end)
}

// transitionOrdered reports whether the message also orders a transition
// to level 1, 2 or 3
func transitionOrdered(ec EventContext) bool {
	for _, o := range ec.Others() {
		if o.Kind != KindLevelTransitionOrder && o.Kind != KindConditionalLTO {
			continue
		}
		l, ok := onboard.LevelFromCode(ec.Batch.Packets[o.Packet].Int(messages.FieldLevel))
		if ok && (l == onboard.Level1 || l.Radio()) {
			return true
		}
	}
	return false
}

// newSession rejects a session order towards a centre that is already being
// contacted or that an RBC transition order of the same message names
func newSession(c *onboard.Context, ec EventContext) bool {
	p := ec.Packet()
	if p.Int(messages.FieldSessionOrder) != messages.SessionEstablish {
		return true
	}
	contact := contactOf(p, ec.Event.Group.Country)
	if c.Sessions.Accepting != nil && c.Sessions.Accepting.Contact == contact {
		return false
	}
	for _, o := range ec.Others() {
		if o.Kind == KindRBCTransitionOrder && contactOf(ec.Batch.Packets[o.Packet], o.Group.Country) == contact {
			return false
		}
	}
	return true
}

func contactOf(p messages.Packet, country int) onboard.Contact {
	if p.Has(messages.FieldCountry) {
		country = p.Int(messages.FieldCountry)
	}
	return onboard.Contact{
		Country: country,
		RBC:     p.Int(messages.FieldRBC),
		Radio:   p.Int(messages.FieldRadio),
	}
}

// sourceFilter accepts radio information only from the supervising centre,
// with exceptions for session control during a handover
func (d *Dispatcher) sourceFilter(c *onboard.Context, ev *Event, p pending) (bool, string) {
	if !ev.FromRadio() {
		return true, outcomeSource
	}
	cat := categories[ev.Kind]
	switch c.Sessions.Role(ev.Session) {
	case onboard.RoleSupervising:
		return true, outcomeSource
	case onboard.RoleHandingOver:
		return cat.handover, outcomeSource
	}
	if cat.noBuffer {
		return false, outcomeSource
	}
	if cat.sessionControl {
		return true, outcomeSource
	}
	d.ring.push(p)
	return false, outcomeBuffered
}

// modeFilter applies the mode table. Infill information is only used in full
// and limited supervision.
func (d *Dispatcher) modeFilter(c *onboard.Context, ec EventContext) bool {
	if ec.Event.Infill && c.Mode != onboard.ModeFS && c.Mode != onboard.ModeLS {
		return false
	}
	r := categories[ec.Event.Kind].mode[c.Mode]
	if !r.accept {
		return false
	}
	return modeConditions(c, ec, r.conds)
}

func modeConditions(c *onboard.Context, ec EventContext, conds condition) bool {
	kind := ec.Event.Kind
	immediate := kind == KindLevelTransitionOrder && ec.Packet().Field(messages.FieldLevelDistance) == messages.LevelNow

	if conds&condTripExit != 0 && (c.Level == onboard.Level1 || !c.TripExitAcknowledged) {
		return false
	}
	if conds&condCabActive != 0 && !c.CabActive {
		return false
	}
	if conds&condTrainData != 0 && !c.TrainDataValid {
		return false
	}
	if conds&condDelayedOnly != 0 && (immediate || kind == KindConditionalLTO) {
		return false
	}
	if conds&condNoOverride != 0 && c.Override {
		return false
	}
	if conds&condImmediateOnly != 0 && kind == KindLevelTransitionOrder && !immediate {
		return false
	}
	if conds&condRBCNow != 0 && kind == KindRBCTransitionOrder && ec.Packet().Field(messages.FieldRBCDistance) != 0 {
		return false
	}
	if conds&condInsideLS != 0 && !insideLS(c, ec) {
		return false
	}
	return true
}

// insideLS reports whether the train is inside a limited supervision section
// of a mode profile, either one received with this message or a stored one
func insideLS(c *onboard.Context, ec EventContext) bool {
	front := c.Odometer.MaxSafeFront()
	for _, o := range ec.Others() {
		if o.Kind != KindMALevel1 && o.Kind != KindMALevel23 {
			continue
		}
		for _, i := range o.Attached {
			p := ec.Batch.Packets[i]
			if p.ID != messages.PacketModeProfile {
				continue
			}
			for _, s := range p.ModeSections() {
				start := o.Ref.Add(s.Distance).Value
				if s.Mode == messages.ModeProfileLS && start < front && front < start+s.Length {
					return true
				}
			}
		}
	}
	return c.InsideModeSection(messages.ModeProfileLS)
}
