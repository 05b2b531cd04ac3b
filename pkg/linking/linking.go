// Package linking supervises the balise groups announced ahead of the train
package linking

import (
	"sort"

	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/position"
)

// Reaction is the configured reaction to a linking inconsistency (Q_LINKREACTION)
type Reaction int

const (
	ReactionTrip  Reaction = 0
	ReactionBrake Reaction = 1
	ReactionNone  Reaction = 2
)

func (r Reaction) String() string {
	switch r {
	case ReactionTrip:
		return "trip"
	case ReactionBrake:
		return "brake"
	case ReactionNone:
		return "none"
	}
	return "unknown"
}

// Fault classifies a linking inconsistency
type Fault int

const (
	FaultEarly          Fault = iota + 1 // C1: expected group found before its window
	FaultSkipped                         // C2: expected group window passed without a read
	FaultOutOfOrder                      // C3: a later group was read instead
	FaultWrongDirection                  // linked group passed against its orientation
	FaultReversePassage                  // repositioning candidate confirmed in reverse
)

func (f Fault) String() string {
	switch f {
	case FaultEarly:
		return "linking_early"
	case FaultSkipped:
		return "linking_skipped"
	case FaultOutOfOrder:
		return "linking_out_of_order"
	case FaultWrongDirection:
		return "linking_wrong_direction"
	case FaultReversePassage:
		return "linking_reverse_passage"
	}
	return "linking_unknown"
}

// Entry is one expected balise group
type Entry struct {
	Group    messages.GroupID  `json:"group"`
	Location position.Position `json:"location"`
	Accuracy float64           `json:"accuracy"`
	Reverse  bool              `json:"reverse"`
	Reaction Reaction          `json:"reaction"`
}

// Min is the lowest location at which the group may be found
func (e Entry) Min() float64 {
	return e.Location.Min() - e.Accuracy
}

// Max is the highest location at which the group may be found
func (e Entry) Max() float64 {
	return e.Location.Max() + e.Accuracy
}

// Direction is the direction in which the group is expected to be passed
func (e Entry) Direction() position.Direction {
	if e.Reverse {
		return position.Reverse
	}
	return position.Nominal
}

// Effect is a fault detected by a check together with the reaction to apply
type Effect struct {
	Fault    Fault
	Reaction Reaction
	Entry    Entry
}

// Observation is the acquisition state a check is evaluated against
type Observation struct {
	Reading      bool // A group is currently open
	Group        messages.GroupID
	Linked       bool
	RefPassed    bool
	Ref          position.Position
	GroupPassed  bool
	MinSafeFront float64
	Supervising  bool
}

// Supervisor holds the linking list and its forward-only cursor
type Supervisor struct {
	antennaOffset float64

	entries    []Entry
	cursor     int
	lost       int
	suspended  bool
	reposition *Entry
}

// NewSupervisor creates an empty linking supervisor. antennaOffset is the
// distance from the front of the train to the balise antenna.
func NewSupervisor(antennaOffset float64) *Supervisor {
	return &Supervisor{antennaOffset: antennaOffset}
}

// Replace installs a new linking list ordered by location
func (s *Supervisor) Replace(entries []Entry) {
	s.entries = append([]Entry(nil), entries...)
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].Location.Value < s.entries[j].Location.Value
	})
	s.cursor = 0
	s.suspended = false
}

// Entries returns the remaining linking list
func (s *Supervisor) Entries() []Entry {
	return s.entries
}

// Expected returns the next expected entry
func (s *Supervisor) Expected() (Entry, bool) {
	if s.cursor >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[s.cursor], true
}

// Cursor returns the index of the next expected entry
func (s *Supervisor) Cursor() int {
	return s.cursor
}

// Lost returns the number of consecutive lost classifications
func (s *Supervisor) Lost() int {
	return s.lost
}

// Reposition returns the pending repositioning candidate
func (s *Supervisor) Reposition() (Entry, bool) {
	if s.reposition == nil {
		return Entry{}, false
	}
	return *s.reposition, true
}

// Resume re-enables checking after the group that suspended it has passed
func (s *Supervisor) Resume() {
	s.suspended = false
}

// Compact drops the entries already consumed by the cursor
func (s *Supervisor) Compact() {
	s.entries = s.entries[s.cursor:]
	s.cursor = 0
}

// Reset discards the linking list and all supervision state
func (s *Supervisor) Reset() {
	s.entries = nil
	s.cursor = 0
	s.lost = 0
	s.suspended = false
	s.reposition = nil
}

// Find returns the first listed entry matching the group exactly or as a
// wildcard of its country
func (s *Supervisor) Find(group messages.GroupID) (Entry, bool) {
	for _, e := range s.entries {
		if e.Group.Matches(group) {
			return e, true
		}
	}
	return Entry{}, false
}

// Pending returns the first entry at or after the cursor for the group
func (s *Supervisor) Pending(group messages.GroupID) (Entry, bool) {
	for _, e := range s.entries[s.cursor:] {
		if e.Group == group {
			return e, true
		}
	}
	return Entry{}, false
}

// Check classifies the current reading against the expected entry
func (s *Supervisor) Check(o Observation) []Effect {
	var effects []Effect

	if !o.Supervising {
		s.lost = 0
		s.reposition = nil
	}
	if s.reposition != nil && s.reposition.Max() < o.MinSafeFront-s.antennaOffset {
		s.reposition = nil
	}

	for {
		if s.cursor >= len(s.entries) {
			s.lost = 0
			return effects
		}
		if s.suspended {
			return effects
		}

		exp := s.entries[s.cursor]
		match := -1
		if o.Reading {
			for i := s.cursor; i < len(s.entries); i++ {
				if s.entries[i].Group.Matches(o.Group) {
					match = i
					break
				}
			}
		}

		if match == s.cursor && exp.Group.Unknown() {
			if o.Linked && (o.RefPassed || o.GroupPassed) {
				candidate := exp
				s.reposition = &candidate
				s.suspended = true
				s.cursor++
			}
			return effects
		}

		expected := o.Linked && o.RefPassed && match == s.cursor
		c1 := expected && exp.Min() > o.Ref.Max()
		c2 := (!expected || exp.Max() < o.Ref.Min()) && exp.Max() < o.MinSafeFront-s.antennaOffset
		c3 := o.Linked && match > s.cursor

		if c1 || c2 || c3 {
			if o.Supervising {
				fault := FaultSkipped
				if c1 {
					fault = FaultEarly
				} else if c3 {
					fault = FaultOutOfOrder
				}

				reaction := exp.Reaction
				if c2 || c3 {
					s.lost++
					if s.lost > 1 && reaction == ReactionNone {
						reaction = ReactionBrake
					}
				}
				if s.lost > 1 {
					s.lost = 0
				}
				effects = append(effects, Effect{Fault: fault, Reaction: reaction, Entry: exp})
			}

			s.cursor++
			if c3 {
				continue
			}
			if c1 {
				s.suspended = true
			}
			return effects
		}

		if o.Linked && match == s.cursor && (o.RefPassed || o.GroupPassed) {
			s.suspended = true
			if o.RefPassed && o.Ref.Overlaps(exp.Min(), exp.Max()) {
				s.lost = 0
			}
			s.cursor++
		}
		return effects
	}
}

// Accept decides at group passage whether a linked group may be used. It is
// accepted when it matches a listed entry inside its window, or a wildcard
// entry of its country while carrying repositioning information.
func (s *Supervisor) Accept(o Observation, dir position.Direction, repositioning bool) (bool, []Effect) {
	if !o.Linked || !o.RefPassed || len(s.entries) == 0 || !o.Supervising {
		return true, nil
	}

	var effects []Effect
	accepted := false
	for i, e := range s.entries {
		if e.Group == o.Group {
			if dir.Known() && dir != e.Direction() {
				effects = append(effects, Effect{Fault: FaultWrongDirection, Reaction: ReactionTrip, Entry: e})
			}
			s.reposition = nil
			if o.Ref.Overlaps(e.Min(), e.Max()) {
				accepted = true
			}
			break
		}
		if e.Group.Unknown() && e.Group.Country == o.Group.Country {
			if dir.Known() && dir == e.Direction() && repositioning && e.Max() >= o.Ref.Min() {
				if i == 0 || s.entries[i-1].Location.Value <= o.Ref.Max() {
					accepted = true
				}
			}
			break
		}
	}

	if s.reposition != nil && dir.Known() && dir == s.reposition.Direction().Opposite() &&
		repositioning && s.reposition.Max() >= o.Ref.Min() {
		accepted = false
		effects = append(effects, Effect{Fault: FaultReversePassage, Reaction: ReactionBrake, Entry: *s.reposition})
		s.reposition = nil
	}

	return accepted, effects
}
