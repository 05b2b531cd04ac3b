// Package location keeps the location references of passed balise groups and
// the geographical passages reported to the driver display
package location

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/linking"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/position"
)

// maxPassages bounds the remembered geographical passages
const maxPassages = 16

// Reference is an accepted balise group to be used as location reference
type Reference struct {
	Group    messages.GroupID
	Dir      position.Direction
	Position position.Position
	Linked   bool
	Link     *linking.Entry // Matching linking entry, if any
	At       time.Time
}

// Passage is a confirmed group passage in a known direction
type Passage struct {
	Group    messages.GroupID `json:"group"`
	Location float64          `json:"location"`
	Reverse  bool             `json:"reverse"`
}

// Tracker updates the location reference of the context and tracks passages
type Tracker struct {
	passages []Passage
	logger   zerolog.Logger
}

// NewTracker creates a tracker
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{logger: logger.With().Str("component", "location").Logger()}
}

// Update makes the group the last relevant balise group. The odometer
// confidence interval is anchored at its position.
func (t *Tracker) Update(c *onboard.Context, r Reference) position.Position {
	pos := r.Position
	c.Odometer.Relocate(pos.Value)
	c.AddLRBG(onboard.LRBG{Group: r.Group, Position: pos, Dir: r.Dir, At: r.At})

	ev := t.logger.Debug().
		Str("group", r.Group.String()).
		Str("dir", r.Dir.String()).
		Float64("location", pos.Value)
	if r.Link != nil {
		ev = ev.Float64("link_offset", pos.Value-r.Link.Location.Value)
	}
	ev.Msg("Location reference")
	return pos
}

// Passed records a passage confirmed in a known direction
func (t *Tracker) Passed(group messages.GroupID, ref position.Position, reverse bool) {
	t.passages = append(t.passages, Passage{Group: group, Location: ref.Value, Reverse: reverse})
	if len(t.passages) > maxPassages {
		t.passages = t.passages[len(t.passages)-maxPassages:]
	}
}

// Passages returns the recorded passages, oldest first
func (t *Tracker) Passages() []Passage {
	return append([]Passage(nil), t.passages...)
}

// Last returns the most recent passage
func (t *Tracker) Last() (Passage, bool) {
	if len(t.passages) == 0 {
		return Passage{}, false
	}
	return t.passages[len(t.passages)-1], true
}

// Reset forgets the recorded passages
func (t *Tracker) Reset() {
	t.passages = nil
}
