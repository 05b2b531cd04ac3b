package information

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/position"
)

// Message is an accepted balise group ready for decoding
type Message struct {
	Telegrams []messages.Telegram
	Group     messages.GroupID
	Ref       position.Position
	Dir       position.Direction
	Timestamp int64
	Version   int
}

// Dispatcher decodes information, filters it and applies it to the context
type Dispatcher struct {
	ring   Ring
	events *prometheus.CounterVec
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. events counts the filter outcome per
// kind and may be nil.
func NewDispatcher(events *prometheus.CounterVec, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		events: events,
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Ring returns the replay ring
func (d *Dispatcher) Ring() *Ring {
	return &d.ring
}

// HandleTelegrams decodes and applies an accepted balise group
func (d *Dispatcher) HandleTelegrams(c *onboard.Context, m Message) {
	d.ring.begin(c.Transition != nil)

	if !c.National.Covers(m.Group.Country) {
		c.ResetNationalValues()
		c.Version = m.Version
	}
	if messages.VersionMajor(m.Version) > messages.VersionMajor(c.Version) {
		c.Version = m.Version
	}
	if c.Covers != nil {
		if err := c.Covers.RetainCountry(m.Group.Country); err != nil {
			d.logger.Error().Err(err).Int("country", m.Group.Country).Msg("Failed to drop virtual balise covers")
		}
	}

	b := &Batch{}
	var order []int
	for _, t := range m.Telegrams {
		ref := m.Ref
		infill := false

	packets:
		for _, p := range t.Packets {
			if p.Directional && (!m.Dir.Known() || !p.Dir.Applies(m.Dir)) {
				continue
			}

			idx := -1
			switch p.ID {
			case messages.PacketInfillLocation:
				if !infillAllowed(c) {
					break packets
				}
				d.dispatch(c, b, sortEvents(b, order))
				order = nil

				entry, ok := c.Linking.Pending(infillGroup(p, m.Group.Country))
				if !ok {
					c.Report(onboard.Fault{Kind: onboard.FaultInfillUnresolved, Group: m.Group})
					break packets
				}
				infill = true
				ref = entry.Location
				continue
			case messages.PacketModeProfile, messages.PacketListOfBalisesSH:
				idx = b.addPacket(p)
				b.attachBack(order, idx, KindMALevel1, KindMALevel23)
			}

			kinds := kindsOf(p, nil)
			if len(kinds) == 0 {
				continue
			}
			if idx < 0 {
				idx = b.addPacket(p)
			}
			for _, k := range kinds {
				order = append(order, b.addEvent(Event{
					Kind:      k,
					Ref:       ref,
					Dir:       m.Dir,
					Infill:    infill,
					Version:   m.Version,
					Timestamp: m.Timestamp,
					Group:     m.Group,
					Packet:    idx,
				}))
			}
		}
	}

	d.dispatch(c, b, sortEvents(b, order))
}

// infillAllowed reports whether infill is used: in level 1, or in level 2/3
// during a transition to level 1, and only in full supervision or on sight
func infillAllowed(c *onboard.Context) bool {
	level := c.Level == onboard.Level1 || (c.Level.Radio() && c.TransitionTo(onboard.Level1))
	return level && (c.Mode == onboard.ModeFS || c.Mode == onboard.ModeOS)
}

func infillGroup(p messages.Packet, country int) messages.GroupID {
	if p.Field(messages.FieldNewCountry) != 0 {
		country = p.Int(messages.FieldCountry)
	}
	return messages.GroupID{Country: country, Group: p.Int(messages.FieldGroup)}
}

// HandleRadio decodes and applies a radio message. The reference is the
// location of the message's LRBG; messages referring to an unknown group are
// dropped.
func (d *Dispatcher) HandleRadio(c *onboard.Context, msg messages.RadioMessage) {
	d.ring.begin(c.Transition != nil)

	ref := position.At(c.Odometer.EstFront())
	dir := position.Unknown
	if lrbg, ok := c.LRBG(msg.LRBG); ok {
		ref = lrbg.Position
		dir = lrbg.Dir
	} else if !msg.LRBG.Unknown() {
		c.Report(onboard.Fault{Kind: onboard.FaultUnknownLRBG, Group: msg.LRBG, Detail: msg.Session})
		return
	}

	switch msg.ID {
	case messages.RadioConditionalStop, messages.RadioMAWithShiftedLocation, messages.RadioTAFRequest:
		ref = ref.Add(msg.Field(messages.FieldRefDistance))
	}

	version := msg.Version
	if s := c.Sessions.Session(msg.Session); s != nil && s.Version != 0 {
		version = s.Version
	}
	base := Event{
		Ref:       ref,
		Dir:       dir,
		Session:   msg.Session,
		Version:   version,
		Timestamp: msg.Timestamp,
		Group:     msg.LRBG,
		Packet:    -1,
	}

	b := &Batch{Radio: &msg}
	var order []int
	if kind, ok := radioKinds[msg.ID]; ok && directionApplies(msg, dir) {
		ev := base
		ev.Kind = kind
		order = append(order, b.addEvent(ev))
	}

	infill := false
packets:
	for _, p := range msg.Packets {
		if p.Directional && dir.Known() && !p.Dir.Applies(dir) {
			continue
		}

		idx := -1
		switch p.ID {
		case messages.PacketInfillLocation:
			entry, ok := c.Linking.Pending(infillGroup(p, msg.LRBG.Country))
			if !ok {
				c.Report(onboard.Fault{Kind: onboard.FaultInfillUnresolved, Group: msg.LRBG, Detail: msg.Session})
				break packets
			}
			infill = true
			base.Ref = entry.Location
			continue
		case messages.PacketModeProfile:
			idx = b.addPacket(p)
			b.attachBack(order, idx, KindMALevel1, KindMALevel23)
		case messages.PacketListOfBalisesSH:
			idx = b.addPacket(p)
			b.attachBack(order, idx, KindMALevel1, KindMALevel23, KindSHAuthorised)
		case messages.PacketListOfBalisesSR:
			idx = b.addPacket(p)
			b.attachFront(order, idx, KindSRAuthorisation)
		}

		kinds := kindsOf(p, &msg)
		if len(kinds) == 0 {
			continue
		}
		if idx < 0 {
			idx = b.addPacket(p)
		}
		for _, k := range kinds {
			ev := base
			ev.Kind = k
			ev.Infill = infill
			ev.Packet = idx
			order = append(order, b.addEvent(ev))
		}
	}

	d.dispatch(c, b, sortEvents(b, order))
}

// directionApplies checks the validity direction of a message-level order
func directionApplies(msg messages.RadioMessage, dir position.Direction) bool {
	q, ok := msg.Fields[messages.FieldDirection]
	if !ok || !dir.Known() {
		return true
	}
	return messages.PacketDir(q).Applies(dir)
}

// Replay applies the events buffered during a transition. It is called once
// the transition completes and runs the same filters as the first pass.
func (d *Dispatcher) Replay(c *onboard.Context) int {
	buffered := d.ring.take()
	for _, p := range buffered {
		d.try(c, p)
	}
	if len(buffered) > 0 {
		d.logger.Info().Int("events", len(buffered)).Msg("Replayed buffered information")
	}
	return len(buffered)
}

// Reset discards buffered information
func (d *Dispatcher) Reset() {
	d.ring.take()
}

func (d *Dispatcher) dispatch(c *onboard.Context, b *Batch, order []int) {
	for _, i := range order {
		d.try(c, pending{batch: b, event: i, order: order})
	}
}

// try runs the filters in order and applies the event when all accept it
func (d *Dispatcher) try(c *onboard.Context, p pending) {
	ev := &p.batch.Events[p.event]
	ec := EventContext{Event: ev, Batch: p.batch, order: p.order}

	outcome := outcomeApplied
	if ok, o := d.levelFilter(c, ec, p); !ok {
		outcome = o
	} else if ok, o := d.sourceFilter(c, ev, p); !ok {
		outcome = o
	} else if !d.modeFilter(c, ec) {
		outcome = outcomeMode
	}

	if d.events != nil {
		d.events.WithLabelValues(ev.Kind.String(), outcome).Inc()
	}
	if outcome != outcomeApplied {
		d.logger.Debug().
			Str("kind", ev.Kind.String()).
			Str("outcome", outcome).
			Str("level", c.Level.String()).
			Str("mode", c.Mode.String()).
			Msg("Information not applied")
		return
	}

	if h := handlers[ev.Kind]; h != nil {
		h(ec, c)
	}
}
