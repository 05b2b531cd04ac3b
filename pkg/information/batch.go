package information

import (
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/position"
)

// Batch owns the packets of one dispatch pass. Events refer to packets by
// index and never outlive the batch.
type Batch struct {
	Packets []messages.Packet
	Radio   *messages.RadioMessage
	Events  []Event
}

// Event is one information event
type Event struct {
	Kind      Kind
	Ref       position.Position
	Dir       position.Direction
	Session   string // Empty for balise information
	Infill    bool
	Version   int
	Timestamp int64
	Group     messages.GroupID

	Packet   int   // Index of the originating packet, -1 for a radio message
	Attached []int // Packets linked to the event
}

// FromRadio reports whether the event was received from a radio block centre
func (e *Event) FromRadio() bool {
	return e.Session != ""
}

func (b *Batch) addPacket(p messages.Packet) int {
	b.Packets = append(b.Packets, p)
	return len(b.Packets) - 1
}

func (b *Batch) addEvent(e Event) int {
	b.Events = append(b.Events, e)
	return len(b.Events) - 1
}

// attachBack links a packet to the nearest earlier event of one of the kinds
func (b *Batch) attachBack(order []int, packet int, kinds ...Kind) {
	for i := len(order) - 1; i >= 0; i-- {
		ev := &b.Events[order[i]]
		for _, k := range kinds {
			if ev.Kind == k {
				ev.Attached = append(ev.Attached, packet)
				return
			}
		}
	}
}

// attachFront links a packet to the first event of the kind
func (b *Batch) attachFront(order []int, packet int, kind Kind) {
	for _, i := range order {
		if b.Events[i].Kind == kind {
			b.Events[i].Attached = append(b.Events[i].Attached, packet)
			return
		}
	}
}

// EventContext is the read-only view a handler gets of its event
type EventContext struct {
	Event *Event
	Batch *Batch
	order []int
}

// Packet returns the originating packet
func (ec EventContext) Packet() messages.Packet {
	if ec.Event.Packet < 0 {
		return messages.Packet{}
	}
	return ec.Batch.Packets[ec.Event.Packet]
}

// Attached returns the attached packets of the given type
func (ec EventContext) Attached(id int) []messages.Packet {
	var out []messages.Packet
	for _, i := range ec.Event.Attached {
		if ec.Batch.Packets[i].ID == id {
			out = append(out, ec.Batch.Packets[i])
		}
	}
	return out
}

// Radio returns the radio message the event was decoded from
func (ec EventContext) Radio() *messages.RadioMessage {
	return ec.Batch.Radio
}

// Location returns the track location d metres ahead of the reference
func (ec EventContext) Location(d float64) float64 {
	return ec.Event.Ref.Add(d).Value
}

// Others returns the events of the same message in dispatch order
func (ec EventContext) Others() []*Event {
	out := make([]*Event, 0, len(ec.order))
	for _, i := range ec.order {
		out = append(out, &ec.Batch.Events[i])
	}
	return out
}
