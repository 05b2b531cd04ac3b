package linking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/position"
)

func group(n int) messages.GroupID {
	return messages.GroupID{Country: 1, Group: n}
}

func entry(n int, at, acc float64, reaction Reaction) Entry {
	return Entry{Group: group(n), Location: position.At(at), Accuracy: acc, Reaction: reaction}
}

func passed(n int, at float64) Observation {
	return Observation{
		Reading:      true,
		Group:        group(n),
		Linked:       true,
		RefPassed:    true,
		Ref:          position.WithMargins(at, 2, 2),
		MinSafeFront: at,
		Supervising:  true,
	}
}

func TestCheckCleanMatch(t *testing.T) {
	s := NewSupervisor(0)
	s.Replace([]Entry{entry(1, 100, 5, ReactionTrip), entry(2, 200, 5, ReactionTrip)})

	effects := s.Check(passed(1, 101))

	assert.Empty(t, effects)
	assert.Equal(t, 1, s.Cursor())
	assert.Equal(t, 0, s.Lost())

	// Suspended until the group has passed
	assert.Empty(t, s.Check(passed(1, 101)))
	assert.Equal(t, 1, s.Cursor())
}

func TestCheckSkippedEscalation(t *testing.T) {
	s := NewSupervisor(0)
	s.Replace([]Entry{
		entry(1, 110, 10, ReactionNone),
		entry(2, 210, 10, ReactionNone),
		entry(3, 310, 10, ReactionNone),
	})

	// Window [100,120], group position reference 150
	effects := s.Check(passed(1, 150))
	require.Len(t, effects, 1)
	assert.Equal(t, FaultSkipped, effects[0].Fault)
	assert.Equal(t, ReactionNone, effects[0].Reaction)
	assert.Equal(t, 1, s.Lost())
	s.Resume()

	// Second consecutive loss is promoted to a brake reaction and resets the counter
	effects = s.Check(passed(2, 250))
	require.Len(t, effects, 1)
	assert.Equal(t, FaultSkipped, effects[0].Fault)
	assert.Equal(t, ReactionBrake, effects[0].Reaction)
	assert.Equal(t, 0, s.Lost())
	s.Resume()

	effects = s.Check(passed(3, 350))
	require.Len(t, effects, 1)
	assert.Equal(t, ReactionNone, effects[0].Reaction)
	assert.Equal(t, 1, s.Lost())
}

func TestCheckSkippedByDistance(t *testing.T) {
	s := NewSupervisor(3)
	s.Replace([]Entry{entry(1, 100, 5, ReactionBrake)})

	// Not yet beyond the antenna offset
	assert.Empty(t, s.Check(Observation{MinSafeFront: 107, Supervising: true}))
	assert.Equal(t, 0, s.Cursor())

	effects := s.Check(Observation{MinSafeFront: 109, Supervising: true})
	require.Len(t, effects, 1)
	assert.Equal(t, FaultSkipped, effects[0].Fault)
	assert.Equal(t, ReactionBrake, effects[0].Reaction)
	assert.Equal(t, 1, s.Cursor())
}

func TestCheckOutOfOrderPointsAtMatch(t *testing.T) {
	s := NewSupervisor(0)
	s.Replace([]Entry{
		entry(1, 100, 5, ReactionNone),
		entry(2, 200, 5, ReactionNone),
		entry(3, 300, 5, ReactionNone),
	})

	o := passed(3, 300)
	o.RefPassed = false
	o.MinSafeFront = 150

	effects := s.Check(o)
	require.Len(t, effects, 2)
	assert.Equal(t, FaultOutOfOrder, effects[0].Fault)
	assert.Equal(t, group(1), effects[0].Entry.Group)
	assert.Equal(t, FaultOutOfOrder, effects[1].Fault)
	assert.Equal(t, group(2), effects[1].Entry.Group)

	exp, ok := s.Expected()
	require.True(t, ok)
	assert.Equal(t, group(3), exp.Group, "cursor must point at the matched entry")
}

func TestCheckEarlySuspends(t *testing.T) {
	s := NewSupervisor(0)
	s.Replace([]Entry{entry(1, 300, 5, ReactionTrip), entry(2, 400, 5, ReactionTrip)})

	effects := s.Check(passed(1, 200))
	require.Len(t, effects, 1)
	assert.Equal(t, FaultEarly, effects[0].Fault)
	assert.Equal(t, ReactionTrip, effects[0].Reaction)
	assert.Equal(t, 0, s.Lost(), "early reads are not counted as lost")

	// Further checks wait until the group passes
	assert.Empty(t, s.Check(passed(2, 200)))
	s.Resume()
	assert.NotEmpty(t, s.Check(passed(2, 200)))
}

func TestCheckOutsideSupervisingMode(t *testing.T) {
	s := NewSupervisor(0)
	s.Replace([]Entry{entry(1, 100, 5, ReactionTrip)})

	o := passed(1, 150)
	o.Supervising = false

	assert.Empty(t, s.Check(o))
	assert.Equal(t, 1, s.Cursor())
	assert.Equal(t, 0, s.Lost())
}

func TestCursorNeverMovesBackward(t *testing.T) {
	s := NewSupervisor(0)
	var entries []Entry
	for i := 1; i <= 10; i++ {
		entries = append(entries, entry(i, float64(i*100), 5, ReactionNone))
	}
	s.Replace(entries)

	observations := []Observation{
		passed(2, 200), passed(2, 205), passed(1, 100), passed(5, 480),
		{MinSafeFront: 650, Supervising: true}, passed(7, 700), passed(3, 300),
		passed(9, 910), {MinSafeFront: 1200, Supervising: true},
	}

	last := s.Cursor()
	for _, o := range observations {
		s.Check(o)
		assert.GreaterOrEqual(t, s.Cursor(), last)
		last = s.Cursor()
		s.Resume()
	}
	assert.Equal(t, len(entries), s.Cursor())
}

func TestWildcardRepositioning(t *testing.T) {
	s := NewSupervisor(0)
	wildcard := Entry{
		Group:    messages.GroupID{Country: 1, Group: messages.UnknownGroup},
		Location: position.At(100),
		Accuracy: 10,
		Reaction: ReactionBrake,
	}
	s.Replace([]Entry{wildcard})

	assert.Empty(t, s.Check(passed(42, 102)))
	candidate, ok := s.Reposition()
	require.True(t, ok)
	assert.Equal(t, wildcard.Group, candidate.Group)

	accepted, effects := s.Accept(passed(42, 102), position.Nominal, true)
	assert.True(t, accepted)
	assert.Empty(t, effects)

	// A repositioning group confirmed in the reverse direction reacts once
	accepted, effects = s.Accept(passed(42, 102), position.Reverse, true)
	assert.False(t, accepted)
	require.Len(t, effects, 1)
	assert.Equal(t, FaultReversePassage, effects[0].Fault)
	assert.Equal(t, ReactionBrake, effects[0].Reaction)

	_, ok = s.Reposition()
	assert.False(t, ok)
}

func TestRepositionCandidateLeftBehind(t *testing.T) {
	s := NewSupervisor(0)
	s.Replace([]Entry{{
		Group:    messages.GroupID{Country: 1, Group: messages.UnknownGroup},
		Location: position.At(100),
		Accuracy: 10,
	}})
	s.Check(passed(42, 100))
	_, ok := s.Reposition()
	require.True(t, ok)

	s.Check(Observation{MinSafeFront: 111, Supervising: true})
	_, ok = s.Reposition()
	assert.False(t, ok)
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name     string
		obs      Observation
		dir      position.Direction
		accepted bool
		fault    Fault
	}{
		{name: "inside window", obs: passed(1, 102), dir: position.Nominal, accepted: true},
		{name: "outside window", obs: passed(1, 150), dir: position.Nominal, accepted: false},
		{name: "not listed", obs: passed(9, 100), dir: position.Nominal, accepted: false},
		{name: "wrong direction", obs: passed(1, 100), dir: position.Reverse, accepted: true, fault: FaultWrongDirection},
		{
			name:     "unlinked group",
			obs:      Observation{Reading: true, Group: group(9), RefPassed: true, Supervising: true},
			dir:      position.Nominal,
			accepted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupervisor(0)
			s.Replace([]Entry{entry(1, 100, 5, ReactionBrake)})

			accepted, effects := s.Accept(tt.obs, tt.dir, false)
			assert.Equal(t, tt.accepted, accepted)
			if tt.fault != 0 {
				require.Len(t, effects, 1)
				assert.Equal(t, tt.fault, effects[0].Fault)
				assert.Equal(t, ReactionTrip, effects[0].Reaction)
			} else {
				assert.Empty(t, effects)
			}
		})
	}
}

func TestCompactKeepsExpected(t *testing.T) {
	s := NewSupervisor(0)
	s.Replace([]Entry{entry(1, 100, 5, ReactionNone), entry(2, 200, 5, ReactionNone)})
	s.Check(passed(1, 100))
	s.Compact()

	exp, ok := s.Expected()
	require.True(t, ok)
	assert.Equal(t, group(2), exp.Group)
	assert.Len(t, s.Entries(), 1)
}
