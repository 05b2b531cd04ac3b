package balise

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/information"
	"github.com/agile-defense/evc/pkg/linking"
	"github.com/agile-defense/evc/pkg/location"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/position"
)

// Group is a passed balise group as assembled by acquisition
type Group struct {
	Telegrams   []messages.Telegram
	Ref         position.Position
	Linked      bool
	Orientation position.Direction
	Timestamp   int64 // Milliseconds, first telegram of the group
}

// Validation outcomes
const (
	OutcomeAccepted   = "accepted"
	OutcomeReduced    = "reduced"
	OutcomeReadError  = "read_error"
	OutcomeVersion    = "version_unsupported"
	OutcomeNotLinked  = "not_linked"
	OutcomeIncomplete = "incomplete"
)

// Validator checks passed groups and hands accepted ones to the dispatcher
type Validator struct {
	translator Translator
	dispatcher *information.Dispatcher
	tracker    *location.Tracker
	groups     *prometheus.CounterVec
	logger     zerolog.Logger
}

// NewValidator creates a validator. groups counts validation outcomes and may be nil.
func NewValidator(translator Translator, dispatcher *information.Dispatcher, tracker *location.Tracker, groups *prometheus.CounterVec, logger zerolog.Logger) *Validator {
	if translator == nil {
		translator = VersionTranslator{}
	}
	return &Validator{
		translator: translator,
		dispatcher: dispatcher,
		tracker:    tracker,
		groups:     groups,
		logger:     logger.With().Str("component", "validator").Logger(),
	}
}

func (v *Validator) count(outcome string) {
	if v.groups != nil {
		v.groups.WithLabelValues(outcome).Inc()
	}
}

// Validate checks a passed group. It returns the validation outcome.
func (v *Validator) Validate(c *onboard.Context, g Group) string {
	var read []messages.Telegram
	var id messages.GroupID
	version, total := 0, -1
	dir := position.Unknown
	for _, t := range g.Telegrams {
		if t.ReadError {
			continue
		}
		version, id, total = t.Version, t.Group, t.Total
		if len(read) > 0 {
			dir = position.Nominal
			if t.Pig < read[0].Pig {
				dir = position.Reverse
			}
		}
		read = append(read, t)
	}

	if len(read) == 0 || messages.VersionMajor(version) == 0 {
		c.Report(onboard.Fault{Kind: onboard.FaultReadError, Group: id})
		v.count(OutcomeReadError)
		return OutcomeReadError
	}
	if !versionKnown(version) {
		c.Report(onboard.Fault{Kind: onboard.FaultVersionUnsupported, Group: id})
		v.count(OutcomeVersion)
		return OutcomeVersion
	}
	if c.RouteGuard != nil && !listed(c.RouteGuard, id) && !c.Override {
		c.Report(onboard.Fault{Kind: onboard.FaultOutOfRoute, Group: id})
	}

	if dir == position.Reverse {
		reversed := make([]messages.Telegram, len(read))
		for i, t := range read {
			reversed[len(read)-1-i] = t
		}
		read = reversed
	}

	ref := g.Ref
	if g.Orientation == position.Reverse {
		switch c.Mode {
		case onboard.ModeSH, onboard.ModePS, onboard.ModeSL:
			ref = ref.Reversed()
		default:
			if dir.Known() {
				dir = dir.Opposite()
			}
		}
	}

	supervising := c.Mode.Supervising()
	link, wildcard := lookupLink(c.Linking.Entries(), id)
	if g.Linked && len(c.Linking.Entries()) > 0 && link == nil && !wildcard && supervising {
		v.logger.Debug().Str("group", id.String()).Msg("Linked group not in linking information")
		v.count(OutcomeNotLinked)
		return OutcomeNotLinked
	}
	linkMatched := link != nil && supervising

	complete := total >= 0
	for pig := 0; complete && pig <= total; pig++ {
		complete = covered(read, pig, linkMatched || dir.Known())
	}

	message := buildMessage(c, read, id, dir, time.UnixMilli(g.Timestamp))
	valid := v.translate(c, message, id, version)

	consistent := valid
	mcount := -1
	for _, t := range message {
		switch t.MCount {
		case messages.MCountFitsNever:
			consistent = false
		case messages.MCountFitsAll:
		default:
			if mcount == -1 {
				mcount = t.MCount
			} else if mcount != t.MCount {
				consistent = false
			}
		}
	}

	outcome := OutcomeAccepted
	if !complete || !consistent {
		switch {
		case linkMatched:
			c.Report(onboard.Fault{Kind: onboard.FaultGroupIncomplete, Group: id, Reaction: link.Reaction.String()})
			c.React(link.Reaction, string(onboard.FaultGroupIncomplete))
			v.count(OutcomeIncomplete)
			return OutcomeIncomplete
		case consistent && inhibited(message, dir):
			outcome = OutcomeReduced
		default:
			c.Report(onboard.Fault{Kind: onboard.FaultGroupIncomplete, Group: id, Reaction: linking.ReactionBrake.String()})
			c.React(linking.ReactionBrake, string(onboard.FaultGroupIncomplete))
			v.count(OutcomeIncomplete)
			return OutcomeIncomplete
		}
	}

	if !dir.Known() && linkMatched {
		dir = link.Direction()
	}
	if !dir.Known() && !g.Orientation.Known() {
		ref.Orientation = 0
	}
	ref = v.tracker.Update(c, location.Reference{
		Group:    id,
		Dir:      dir,
		Position: ref,
		Linked:   g.Linked,
		Link:     link,
		At:       time.UnixMilli(g.Timestamp),
	})

	v.dispatcher.HandleTelegrams(c, information.Message{
		Telegrams: message,
		Group:     id,
		Ref:       ref,
		Dir:       dir,
		Timestamp: g.Timestamp,
		Version:   version,
	})
	if dir.Known() {
		v.tracker.Passed(id, ref, dir == position.Reverse)
	}

	v.logger.Debug().
		Str("group", id.String()).
		Str("dir", dir.String()).
		Int("telegrams", len(message)).
		Str("outcome", outcome).
		Msg("Balise group accepted")
	v.count(outcome)
	return outcome
}

// versionKnown reports whether the major version is not above every
// supported one
func versionKnown(version int) bool {
	for _, s := range messages.SupportedVersions {
		if messages.VersionMajor(s) >= messages.VersionMajor(version) {
			return true
		}
	}
	return false
}

func listed(groups []messages.GroupID, id messages.GroupID) bool {
	for _, g := range groups {
		if g == id {
			return true
		}
	}
	return false
}

// lookupLink finds the linking entry of a group and whether a wildcard entry
// of its country exists
func lookupLink(entries []linking.Entry, id messages.GroupID) (*linking.Entry, bool) {
	var link *linking.Entry
	wildcard := false
	for i, e := range entries {
		if e.Group.Unknown() && e.Group.Country == id.Country {
			wildcard = true
		}
		if e.Group == id {
			link = &entries[i]
		}
	}
	return link, wildcard
}

// covered reports whether a pig is read directly or through a duplicate.
// A duplicate only counts when the position of the group is unambiguous:
// a known direction, a linking match or no direction-dependent packet.
func covered(read []messages.Telegram, pig int, unambiguous bool) bool {
	for _, t := range read {
		if t.Pig == pig {
			return true
		}
		if (t.Dup == messages.DuplicateOfNext && t.Pig+1 == pig) || (t.Dup == messages.DuplicateOfPrev && t.Pig == pig+1) {
			return unambiguous || !directional(t)
		}
	}
	return false
}

func directional(t messages.Telegram) bool {
	for _, p := range t.Packets {
		if p.Directional && p.Dir != messages.DirBoth {
			return true
		}
	}
	return false
}

// buildMessage keeps one telegram per pig. Of a read duplicate pair the
// other telegram is used unless it is a default telegram. Telegrams behind
// a covered virtual balise marker are dropped.
func buildMessage(c *onboard.Context, read []messages.Telegram, id messages.GroupID, dir position.Direction, now time.Time) []messages.Telegram {
	var out []messages.Telegram
	for i, t := range read {
		if marker, ok := t.VBCMarker(); ok && c.Covers != nil && c.Covers.Covered(id.Country, marker, now) {
			continue
		}
		nextDup := t.Dup == messages.DuplicateOfNext && i+1 < len(read) && t.Pig+1 == read[i+1].Pig
		prevDup := t.Dup == messages.DuplicateOfPrev && i > 0 && t.Pig == read[i-1].Pig+1

		if t.Dup == messages.NoDuplicates || !(nextDup || prevDup) {
			out = append(out, t)
		}
		if (nextDup && dir == position.Nominal) || (prevDup && dir == position.Reverse) {
			var other messages.Telegram
			if nextDup {
				other = read[i+1]
			} else {
				other = read[i-1]
			}
			if other.Default() {
				out = append(out, t)
			} else {
				out = append(out, other)
			}
		}
	}
	return out
}

// translate re-decodes the packets of every telegram. It reports whether all
// telegrams translated.
func (v *Validator) translate(c *onboard.Context, message []messages.Telegram, id messages.GroupID, version int) bool {
	var all []messages.Packet
	for _, t := range message {
		all = append(all, t.Packets...)
	}

	valid := true
	for i := range message {
		packets := make([]messages.Packet, 0, len(message[i].Packets))
		for _, p := range message[i].Packets {
			tp, err := v.translator.Translate(p, all, version)
			switch {
			case errors.Is(err, ErrDropped):
				continue
			case err != nil:
				valid = false
				c.Report(onboard.Fault{Kind: onboard.FaultTranslation, Group: id, Detail: err.Error()})
				continue
			}
			packets = append(packets, tp)
		}
		message[i].Packets = packets
	}
	return valid
}

// inhibited reports whether a packet 145 for the running direction allows
// the readable telegrams to be used
func inhibited(message []messages.Telegram, dir position.Direction) bool {
	for _, t := range message {
		for _, p := range t.Packets {
			if p.ID == messages.PacketInhibitConsistency && p.Dir.Applies(dir) {
				return true
			}
		}
	}
	return false
}
