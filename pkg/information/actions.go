package information

import (
	"time"

	"github.com/agile-defense/evc/pkg/linking"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/targets"
)

// handler applies an accepted event to the context
type handler func(ec EventContext, c *onboard.Context)

// handlers is indexed by kind. Kinds without an entry only pass the filters.
var handlers [kindCount]handler

func init() {
	handlers = [kindCount]handler{
		KindVersionOrder:         handleVersionOrder,
		KindNationalValues:       handleNationalValues,
		KindLinking:              handleLinking,
		KindVBCOrder:             handleVBCOrder,
		KindMALevel1:             handleAuthority,
		KindMALevel23:            handleAuthority,
		KindMAShortening:         handleShortening,
		KindRepositioning:        handleRepositioning,
		KindGradient:             handleGradient,
		KindStaticSpeedProfile:   handleStaticSpeedProfile,
		KindLevelTransitionOrder: handleLevelTransition,
		KindConditionalLTO:       handleConditionalTransition,
		KindSessionManagement:    handleSession,
		KindTSR:                  handleTSR,
		KindTSRRevocation:        handleTSRRevocation,
		KindRBCTransitionOrder:   handleRBCTransition,
		KindDangerForSH:          handleDangerForSH,
		KindStopIfInSR:           handleStopIfInSR,
		KindSRAuthorisation:      handleSRAuthorisation,
		KindTripExitAck:          handleTripExitAck,
		KindTrainDataAck:         handleTrainDataAck,
		KindConditionalStop:      handleConditionalStop,
		KindUnconditionalStop:    handleUnconditionalStop,
		KindStopRevocation:       handleStopRevocation,
		KindSHAuthorised:         handleSHAuthorised,
		KindTrainAccepted:        handleSoM("accepted"),
		KindTrainRejected:        handleSoM("rejected"),
		KindSoMPositionConfirmed: handleSoMPosition,
	}
	for k := KindNone + 1; k < kindCount; k++ {
		if handlers[k] == nil {
			handlers[k] = handleNotice
		}
	}
}

func handleVersionOrder(ec EventContext, c *onboard.Context) {
	v := ec.Packet().Int(messages.FieldVersion)
	if !messages.VersionSupported(v) {
		c.Report(onboard.Fault{Kind: onboard.FaultVersionUnsupported, Group: ec.Event.Group, Detail: "version order"})
		return
	}
	c.Version = v
}

func handleNationalValues(ec EventContext, c *onboard.Context) {
	p := ec.Packet()
	first := ec.Event.Group.Country
	if p.Has(messages.FieldCountry) {
		first = p.Int(messages.FieldCountry)
	}
	countries := []int{first}
	for _, e := range p.Elements {
		if v, ok := e[messages.FieldCountry]; ok {
			countries = append(countries, int(v))
		}
	}
	c.National = onboard.NationalValues{
		Countries:                  countries,
		ReleaseEmergencyBrakeEarly: p.Int(messages.FieldReleaseEB) == 1,
	}
}

func handleLinking(ec EventContext, c *onboard.Context) {
	links := ec.Packet().Links(ec.Event.Group.Country)
	entries := make([]linking.Entry, 0, len(links))
	for _, l := range links {
		entries = append(entries, linking.Entry{
			Group:    l.Group,
			Location: ec.Event.Ref.Add(l.Distance),
			Accuracy: l.Accuracy,
			Reverse:  l.Reverse,
			Reaction: linking.Reaction(l.Reaction),
		})
	}
	c.Linking.Replace(entries)
}

func handleVBCOrder(ec EventContext, c *onboard.Context) {
	if c.Covers == nil {
		return
	}
	p := ec.Packet()
	country := ec.Event.Group.Country
	if p.Has(messages.FieldCountry) {
		country = p.Int(messages.FieldCountry)
	}
	marker := p.Int(messages.FieldVBCMarker)

	var err error
	switch p.Int(messages.FieldVBCOrder) {
	case messages.VBCSet:
		days := time.Duration(p.Field(messages.FieldVBCValidity)) * 24 * time.Hour
		err = c.Covers.Set(onboard.Cover{
			Country: country,
			Marker:  marker,
			Expiry:  time.UnixMilli(ec.Event.Timestamp).Add(days),
		})
	case messages.VBCRemove:
		err = c.Covers.Remove(country, marker)
	}
	if err != nil {
		logger := c.Logger()
		logger.Error().Err(err).Int("country", country).Int("marker", marker).Msg("Failed to apply virtual balise cover order")
	}
}

func handleAuthority(ec EventContext, c *onboard.Context) {
	a := ec.Packet().Authority()
	eoa := ec.Location(a.Length())
	svl := eoa + a.DangerPoint
	if a.LoASpeed > 0 {
		svl = eoa
	}
	c.Track.Authority = &targets.Authority{
		EoA:          eoa,
		SvL:          svl,
		LoASpeed:     a.LoASpeed,
		ReleaseSpeed: a.ReleaseSpeed,
		Start:        ec.Event.Ref.Value,
	}

	c.ModeProfile = nil
	for _, mp := range ec.Attached(messages.PacketModeProfile) {
		for _, s := range mp.ModeSections() {
			start := ec.Location(s.Distance)
			c.ModeProfile = append(c.ModeProfile, onboard.ModeSection{
				Start: start,
				End:   start + s.Length,
				Mode:  s.Mode,
				Speed: s.Speed,
			})
		}
	}

	c.RouteGuard = nil
	for _, lb := range ec.Attached(messages.PacketListOfBalisesSH) {
		c.RouteGuard = append(c.RouteGuard, lb.Groups(ec.Event.Group.Country)...)
	}

	logger := c.Logger()
	logger.Info().
		Str("kind", ec.Event.Kind.String()).
		Float64("eoa", eoa).
		Float64("svl", svl).
		Float64("loa_speed", a.LoASpeed).
		Msg("Movement authority")
}

func handleShortening(ec EventContext, c *onboard.Context) {
	a := ec.Packet().Authority()
	eoa := ec.Location(a.Length())
	if c.Track.ShortenAuthority(eoa) {
		c.Track.Authority.SvL = eoa + a.DangerPoint
	}
}

// handleRepositioning sets the end of authority from the length of the
// section up to it, now that the route is known
func handleRepositioning(ec EventContext, c *onboard.Context) {
	auth := c.Track.Authority
	if auth == nil {
		return
	}
	danger := auth.SvL - auth.EoA
	auth.EoA = ec.Location(ec.Packet().Field(messages.FieldSectionLength))
	auth.SvL = auth.EoA + danger
}

func handleGradient(ec EventContext, c *onboard.Context) {
	c.Track.GradientEnd = ec.Location(ec.Packet().Coverage())
}

func handleStaticSpeedProfile(ec EventContext, c *onboard.Context) {
	p := ec.Packet()
	var steps []targets.Step
	for _, s := range p.SpeedSteps() {
		steps = append(steps, targets.Step{Location: ec.Location(s.Distance), Speed: s.Speed})
	}
	c.Track.SetStatic(ec.Event.Ref.Value, steps, ec.Location(p.Coverage()))
}

func handleTSR(ec EventContext, c *onboard.Context) {
	r := ec.Packet().Restriction()
	start := ec.Location(r.Distance)
	c.Track.AddRestriction(targets.Restriction{
		ID:        r.ID,
		Start:     start,
		End:       start + r.Length,
		Speed:     r.Speed,
		Revocable: r.Revocable(),
	})
}

func handleTSRRevocation(ec EventContext, c *onboard.Context) {
	c.Track.RevokeRestriction(ec.Packet().Int(messages.FieldTSRID))
}

// handleLevelTransition announces a transition to the first listed level
func handleLevelTransition(ec EventContext, c *onboard.Context) {
	p := ec.Packet()
	l, ok := onboard.LevelFromCode(p.Levels()[0])
	if !ok || (l == c.Level && c.Transition == nil) {
		return
	}
	d := p.Field(messages.FieldLevelDistance)
	if d == messages.LevelNow {
		c.Transition = onboard.Immediate(l)
	} else {
		c.Transition = &onboard.Transition{Level: l, At: ec.Location(d)}
	}
	logger := c.Logger()
	logger.Info().Str("level", l.String()).Float64("at", c.Transition.At).Msg("Level transition ordered")
}

// handleConditionalTransition switches immediately to the first listed level
// when it differs from the current one
func handleConditionalTransition(ec EventContext, c *onboard.Context) {
	l, ok := onboard.LevelFromCode(ec.Packet().Levels()[0])
	if !ok || l == c.Level {
		return
	}
	c.Transition = onboard.Immediate(l)
}

func handleSession(ec EventContext, c *onboard.Context) {
	p := ec.Packet()
	contact := contactOf(p, ec.Event.Group.Country)
	logger := c.Logger()

	if p.Int(messages.FieldSessionOrder) == messages.SessionTerminate {
		if c.Sessions.Terminate(contact) {
			logger.Info().Str("session", contact.ID()).Msg("Session terminated")
		}
		return
	}
	if c.Sessions.Session(contact.ID()) != nil {
		return
	}
	s := &onboard.Session{Contact: contact, TrainDataAckPending: true, Version: ec.Event.Version}
	if c.Sessions.Supervising == nil {
		c.Sessions.Supervising = s
	} else {
		c.Sessions.Accepting = s
	}
	logger.Info().Str("session", contact.ID()).Msg("Session established")
}

func handleRBCTransition(ec EventContext, c *onboard.Context) {
	p := ec.Packet()
	contact := contactOf(p, ec.Event.Group.Country)
	at := ec.Location(p.Field(messages.FieldRBCDistance))
	if c.Sessions.Accepting == nil || c.Sessions.Accepting.Contact != contact {
		c.Sessions.Accepting = &onboard.Session{Contact: contact, TrainDataAckPending: true, Version: ec.Event.Version}
	}
	c.Sessions.HandoverAt = &at
}

func handleDangerForSH(ec EventContext, c *onboard.Context) {
	if c.Mode == onboard.ModeSH && ec.Packet().Int(messages.FieldAspect) == messages.AspectStop {
		c.Trip("danger for shunting")
	}
}

// handleStopIfInSR trips in staff responsible unless the group is one the
// train was authorised to pass
func handleStopIfInSR(ec EventContext, c *onboard.Context) {
	if c.Mode != onboard.ModeSR || ec.Packet().Int(messages.FieldSRStop) != messages.AspectStop {
		return
	}
	for _, g := range c.SRBalises {
		if g == ec.Event.Group {
			return
		}
	}
	c.Trip("stop if in staff responsible")
}

func handleSRAuthorisation(ec EventContext, c *onboard.Context) {
	if r := ec.Radio(); r != nil {
		d := ec.Location(r.Field(messages.FieldSRDistance))
		c.Track.SRDistance = &d
	}
	c.SRBalises = nil
	for _, lb := range ec.Attached(messages.PacketListOfBalisesSR) {
		c.SRBalises = append(c.SRBalises, lb.Groups(ec.Event.Group.Country)...)
	}
}

func handleTripExitAck(_ EventContext, c *onboard.Context) {
	c.TripExitAcknowledged = true
}

func handleTrainDataAck(ec EventContext, c *onboard.Context) {
	if s := c.Sessions.Session(ec.Event.Session); s != nil {
		s.TrainDataAckPending = false
	}
}

func emergencyID(ec EventContext) int {
	if r := ec.Radio(); r != nil {
		return int(r.Field(messages.FieldEmergencyID))
	}
	return 0
}

func handleConditionalStop(ec EventContext, c *onboard.Context) {
	id := emergencyID(ec)
	var loc float64
	if r := ec.Radio(); r != nil {
		loc = ec.Location(r.Field(messages.FieldStopDistance))
	}
	result := c.ShortenAuthority(loc)
	if result != onboard.StopRejected {
		c.EmergencyStops[id] = onboard.EmergencyStop{ID: id, Conditional: true, Location: loc}
	}
	c.Acks = append(c.Acks, onboard.Ack{Session: ec.Event.Session, Message: messages.RadioEmergencyStopAck, ID: id, Result: result})
}

func handleUnconditionalStop(ec EventContext, c *onboard.Context) {
	id := emergencyID(ec)
	c.EmergencyStops[id] = onboard.EmergencyStop{ID: id}
	c.Trip("unconditional emergency stop")
	c.Acks = append(c.Acks, onboard.Ack{Session: ec.Event.Session, Message: messages.RadioEmergencyStopAck, ID: id, Result: onboard.StopAcceptedUnconditional})
}

func handleStopRevocation(ec EventContext, c *onboard.Context) {
	delete(c.EmergencyStops, emergencyID(ec))
}

func handleSHAuthorised(ec EventContext, c *onboard.Context) {
	c.RouteGuard = nil
	for _, lb := range ec.Attached(messages.PacketListOfBalisesSH) {
		c.RouteGuard = append(c.RouteGuard, lb.Groups(ec.Event.Group.Country)...)
	}
	c.SetMode(onboard.ModeSH)
}

func handleSoM(result string) handler {
	return func(_ EventContext, c *onboard.Context) {
		c.SoM = result
	}
}

func handleSoMPosition(_ EventContext, c *onboard.Context) {
	c.PositionValid = true
}

// noticeDistance names the field locating an informational packet
var noticeDistance = map[Kind]string{
	KindPlainText:      messages.FieldTextDistance,
	KindFixedText:      messages.FieldTextDistance,
	KindLevelCrossing:  messages.FieldLXDistance,
	KindTrackCondition: messages.FieldConditionDist,
	KindTAFLevel23:     messages.FieldTAFDistance,
}

// handleNotice passes informational events on to the driver display
func handleNotice(ec EventContext, c *onboard.Context) {
	n := onboard.Notice{Kind: ec.Event.Kind.String()}
	if f, ok := noticeDistance[ec.Event.Kind]; ok {
		n.Location = ec.Location(ec.Packet().Field(f))
	} else {
		n.Location = ec.Event.Ref.Value
	}
	c.Notify(n)
}
