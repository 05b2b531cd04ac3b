package information

// replaySlots is the number of dispatch passes kept for replay
const replaySlots = 3

type pending struct {
	batch *Batch
	event int
	order []int
}

// Ring keeps events rejected during a level or session transition for
// replay once the transition completes. Each slot holds one dispatch pass.
type Ring struct {
	slots [][]pending
}

// begin opens a slot for a new dispatch pass, or clears the ring when no
// transition is ongoing
func (r *Ring) begin(transitionOngoing bool) {
	if !transitionOngoing {
		r.slots = nil
		return
	}
	if len(r.slots) == replaySlots {
		r.slots = r.slots[1:]
	}
	r.slots = append(r.slots, nil)
}

// push buffers an event in the current slot
func (r *Ring) push(p pending) {
	if len(r.slots) == 0 {
		return
	}
	last := len(r.slots) - 1
	r.slots[last] = append(r.slots[last], p)
}

// take empties the ring and returns its content, oldest first
func (r *Ring) take() []pending {
	var out []pending
	for _, s := range r.slots {
		out = append(out, s...)
	}
	r.slots = nil
	return out
}

// Len returns the number of buffered events
func (r *Ring) Len() int {
	n := 0
	for _, s := range r.slots {
		n += len(s)
	}
	return n
}

// Slots returns the number of open slots
func (r *Ring) Slots() int {
	return len(r.slots)
}
