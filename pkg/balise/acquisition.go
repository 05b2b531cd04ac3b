// Package balise assembles balise telegrams into passed groups, supervises
// them against the linking information and validates them before decoding
package balise

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/linking"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/position"
)

// GroupTimeout is the travel after the last telegram at which an open group
// is considered passed
const GroupTimeout = 12.0

// AntennaEvent is a telegram read by the balise transmission module
type AntennaEvent struct {
	Telegram  messages.Telegram
	Odometer  float64 // Front position when the telegram was read
	Timestamp int64   // Milliseconds
}

// Acquisition accumulates the telegrams of the group under the antenna
type Acquisition struct {
	antennaOffset float64
	validator     *Validator
	logger        zerolog.Logger

	open        bool
	group       messages.GroupID
	telegrams   []messages.Telegram
	lastPassed  float64
	first       int64
	prevPig     int
	linked      bool
	dir         position.Direction
	orientation position.Direction

	refFound  bool
	refMissed bool
	refPassed bool
	ref       position.Position
	dupFound  bool
	dupRef    position.Position
}

// NewAcquisition creates an acquisition that hands passed groups to the validator
func NewAcquisition(antennaOffset float64, validator *Validator, logger zerolog.Logger) *Acquisition {
	a := &Acquisition{
		antennaOffset: antennaOffset,
		validator:     validator,
		logger:        logger.With().Str("component", "acquisition").Logger(),
	}
	a.Reset()
	return a
}

// Reset discards the group being read
func (a *Acquisition) Reset() {
	a.open = false
	a.group = messages.GroupID{Country: -1, Group: -1}
	a.telegrams = nil
	a.prevPig = -1
	a.linked = false
	a.dir = position.Unknown
	a.orientation = position.Unknown
	a.refFound = false
	a.refMissed = false
	a.refPassed = false
	a.ref = position.Position{}
	a.dupFound = false
	a.dupRef = position.Position{}
}

// Open reports whether a group is being read
func (a *Acquisition) Open() bool {
	return a.open
}

// RefMissed reports whether the reference telegram of the open group was missed
func (a *Acquisition) RefMissed() bool {
	return a.refMissed
}

func (a *Acquisition) observation(c *onboard.Context, groupPassed bool) linking.Observation {
	return linking.Observation{
		Reading:      a.open,
		Group:        a.group,
		Linked:       a.linked,
		RefPassed:    a.refPassed,
		Ref:          a.ref,
		GroupPassed:  groupPassed,
		MinSafeFront: c.Odometer.MinSafeFront(),
		Supervising:  c.Mode.Supervising(),
	}
}

func (a *Acquisition) check(c *onboard.Context, groupPassed bool) {
	c.ApplyLinking(c.Linking.Check(a.observation(c, groupPassed)), a.group)
}

// Receive adds a telegram to the open group
func (a *Acquisition) Receive(c *onboard.Context, ev AntennaEvent) {
	t := ev.Telegram
	passed := ev.Odometer - a.antennaOffset

	if t.ReadError {
		a.lastPassed = passed
		a.open = true
		a.telegrams = append(a.telegrams, t)
		a.substitute(c)
		return
	}

	if a.open && a.group.Group >= 0 && a.group != t.Group {
		a.complete(c)
	}
	prev := a.lastPassed
	a.lastPassed = passed
	if a.group != t.Group {
		a.first = ev.Timestamp
	}
	a.open = true
	a.group = t.Group
	a.linked = t.Linked

	if a.prevPig >= 0 {
		if !a.dir.Known() {
			a.dir = position.Nominal
			if a.prevPig > t.Pig {
				a.dir = position.Reverse
			}
		}
		if !a.orientation.Known() {
			a.orientation = position.Nominal
			if passed < prev {
				a.orientation = position.Reverse
			}
		}
		if t.Pig > a.prevPig && !a.refFound {
			a.refMissed = true
		}
	}
	a.prevPig = t.Pig

	if t.Pig == 1 && t.Dup == messages.DuplicateOfPrev {
		a.dupFound = true
		a.dupRef = c.Odometer.Locate(passed)
	}
	if t.Pig == 0 {
		a.refFound = true
		a.ref = c.Odometer.Locate(passed)
		a.refPassed = true
		a.check(c, false)
	}

	a.telegrams = append(a.telegrams, t)
	if (a.dir == position.Nominal && t.Pig == t.Total) || (a.dir == position.Reverse && t.Pig == 0) {
		a.complete(c)
		return
	}
	a.substitute(c)
}

// substitute uses the duplicate of the reference once the reference is known
// to be missed
func (a *Acquisition) substitute(c *onboard.Context) {
	if a.refMissed && a.dupFound && !a.refPassed {
		a.ref = a.dupRef
		a.refPassed = true
		a.check(c, false)
	}
}

// Poll runs the periodic linking check and closes the open group once the
// train ran GroupTimeout beyond the last telegram
func (a *Acquisition) Poll(c *onboard.Context) {
	a.check(c, false)
	if !a.open {
		return
	}
	if math.Abs(c.Odometer.EstFront()-a.antennaOffset-a.lastPassed) > GroupTimeout {
		a.complete(c)
	}
}

// complete closes the open group, runs the linking checks for the passage
// and hands the group to the validator unless linking rejects it
func (a *Acquisition) complete(c *onboard.Context) {
	if !a.refFound {
		a.refMissed = true
		if a.dupFound {
			a.ref = a.dupRef
			a.refPassed = true
		}
	}
	a.check(c, true)

	accepted := true
	if a.refFound {
		var effects []linking.Effect
		accepted, effects = c.Linking.Accept(a.observation(c, true), a.dir, a.repositioning())
		c.ApplyLinking(effects, a.group)
	}

	if accepted {
		a.validator.Validate(c, Group{
			Telegrams:   a.telegrams,
			Ref:         a.ref,
			Linked:      a.linked,
			Orientation: a.orientation,
			Timestamp:   a.first,
		})
	} else {
		a.logger.Warn().Str("group", a.group.String()).Msg("Group rejected by linking")
	}

	c.Linking.Compact()
	c.Linking.Resume()
	a.Reset()
}

// repositioning reports whether the group carries repositioning information
// for the running direction
func (a *Acquisition) repositioning() bool {
	for _, t := range a.telegrams {
		for _, p := range t.Packets {
			if p.ID == messages.PacketRepositioning && p.Dir.Applies(a.dir) {
				return true
			}
		}
	}
	return false
}
