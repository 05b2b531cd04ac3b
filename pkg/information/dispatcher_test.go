package information

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/evc/pkg/linking"
	"github.com/agile-defense/evc/pkg/messages"
	"github.com/agile-defense/evc/pkg/onboard"
	"github.com/agile-defense/evc/pkg/position"
)

var (
	groupA = messages.GroupID{Country: 1, Group: 10}
	groupB = messages.GroupID{Country: 1, Group: 20}
)

func testContext(mode onboard.Mode, level onboard.Level) *onboard.Context {
	return onboard.NewContext(onboard.Options{
		Mode:           mode,
		Level:          level,
		Version:        messages.Version20,
		AntennaOffset:  3,
		MaxSpeed:       44,
		AccuracyFixed:  5,
		AccuracyRatio:  0.05,
		National:       onboard.NationalValues{Countries: []int{1}},
		CabActive:      true,
		TrainDataValid: true,
	}, zerolog.Nop())
}

func gradient(end float64) messages.Packet {
	return messages.Packet{
		ID:     messages.PacketGradient,
		Fields: map[string]float64{messages.FieldProfileEnd: end},
	}
}

func balise(ref float64, packets ...messages.Packet) Message {
	return Message{
		Telegrams: []messages.Telegram{{Group: groupA, Version: messages.Version20, Packets: packets}},
		Group:     groupA,
		Ref:       position.At(ref),
		Dir:       position.Nominal,
		Version:   messages.Version20,
	}
}

func withSupervisor(c *onboard.Context) string {
	s := &onboard.Session{Contact: onboard.Contact{Country: 1, RBC: 7, Radio: 1}, Version: messages.Version20}
	c.Sessions.Supervising = s
	c.AddLRBG(onboard.LRBG{Group: groupA, Position: position.At(100), Dir: position.Nominal})
	return s.ID()
}

func TestKindsOf(t *testing.T) {
	tests := []struct {
		name   string
		packet messages.Packet
		radio  *messages.RadioMessage
		want   []Kind
	}{
		{"level 1 MA yields two events", messages.Packet{ID: messages.PacketLevel1MA}, nil, []Kind{KindMALevel1, KindSignalling}},
		{"special track condition yields two events", messages.Packet{ID: messages.PacketTrackConditionSpecial}, nil, []Kind{KindTrackCondition, KindTrackConditionStation}},
		{"level 2/3 MA", messages.Packet{ID: messages.PacketLevel23MA}, &messages.RadioMessage{ID: messages.RadioMovementAuthority}, []Kind{KindMALevel23}},
		{"shortening", messages.Packet{ID: messages.PacketLevel23MA}, &messages.RadioMessage{ID: messages.RadioShortenMA}, []Kind{KindMAShortening}},
		{"LS display off", messages.Packet{ID: messages.PacketLSSMAToggle, Fields: map[string]float64{messages.FieldLSSMA: 0}}, nil, []Kind{KindLSSMAOff}},
		{"LS display on", messages.Packet{ID: messages.PacketLSSMAToggle, Fields: map[string]float64{messages.FieldLSSMA: 1}}, nil, []Kind{KindLSSMAOn}},
		{"mode profile has no event", messages.Packet{ID: messages.PacketModeProfile}, nil, nil},
		{"unknown packet", messages.Packet{ID: 300}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, kindsOf(tt.packet, tt.radio))
		})
	}
}

func TestEveryKindHasCategoryAndHandler(t *testing.T) {
	for k := KindNone + 1; k < kindCount; k++ {
		assert.NotEmpty(t, categories[k].name, "kind %d", k)
		assert.NotNil(t, handlers[k], "kind %s", k)
	}
}

func TestEventOrder(t *testing.T) {
	b := &Batch{Events: []Event{
		{Kind: KindMALevel1},
		{Kind: KindGradient},
		{Kind: KindLinking},
		{Kind: KindLevelTransitionOrder},
	}}
	got := sortEvents(b, []int{0, 1, 2, 3})
	if diff := cmp.Diff([]int{3, 2, 1, 0}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventOrderOnlyLevel1AuthorityLast(t *testing.T) {
	b := &Batch{Events: []Event{
		{Kind: KindMALevel1},
		{Kind: KindTSRRevocation},
		{Kind: KindGradient},
	}}
	assert.False(t, before(&b.Events[2], &b.Events[1]))
	assert.True(t, before(&b.Events[1], &b.Events[0]))

	if diff := cmp.Diff([]int{1, 2, 0}, sortEvents(b, []int{0, 1, 2})); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventOrderDependsOnArrival(t *testing.T) {
	// An infill transition order and a plain gradient each precede the other
	b := &Batch{Events: []Event{
		{Kind: KindLevelTransitionOrder, Infill: true},
		{Kind: KindGradient},
	}}
	require.True(t, before(&b.Events[0], &b.Events[1]))
	require.True(t, before(&b.Events[1], &b.Events[0]))

	if diff := cmp.Diff([]int{1, 0}, sortEvents(b, []int{0, 1})); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 1}, sortEvents(b, []int{1, 0})); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventOrderKeepsArrivalForTies(t *testing.T) {
	b := &Batch{Events: []Event{
		{Kind: KindGradient},
		{Kind: KindStaticSpeedProfile},
		{Kind: KindTSR},
		{Kind: KindPlainText},
		{Kind: KindGradient, Infill: true},
	}}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, sortEvents(b, []int{0, 1, 2, 3, 4})); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 2, 1, 0, 4}, sortEvents(b, []int{4, 3, 2, 1, 0})); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRingBounded(t *testing.T) {
	var r Ring
	for i := 0; i < 5; i++ {
		r.begin(true)
		r.push(pending{event: i})
	}
	assert.Equal(t, replaySlots, r.Slots())
	assert.Equal(t, 3, r.Len())

	got := r.take()
	require.Len(t, got, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{got[0].event, got[1].event, got[2].event})
	assert.Zero(t, r.Len())

	r.begin(true)
	r.push(pending{})
	r.begin(false)
	assert.Zero(t, r.Slots())
	r.push(pending{})
	assert.Zero(t, r.Len())
}

func TestLevelFilterBuffersForTransition(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level2)
	c.Transition = &onboard.Transition{Level: onboard.Level1, At: 500}
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleTelegrams(c, balise(100, gradient(400)))
	assert.Zero(t, c.Track.GradientEnd)
	assert.Equal(t, 1, d.Ring().Len())

	require.True(t, c.CompleteTransition(600))
	assert.Equal(t, onboard.Level1, c.Level)
	assert.Equal(t, 1, d.Replay(c))
	assert.Equal(t, 500.0, c.Track.GradientEnd)
	assert.Zero(t, d.Ring().Len())
}

func TestLevelFilterRejectsWithoutTransition(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level2)
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleTelegrams(c, balise(100, gradient(400)))
	assert.Zero(t, c.Track.GradientEnd)
	assert.Zero(t, d.Ring().Len())
}

func TestDirectionalPacketSkipped(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level1)
	d := NewDispatcher(nil, zerolog.Nop())

	p := gradient(400)
	p.Directional = true
	p.Dir = messages.DirReverse
	d.HandleTelegrams(c, balise(100, p))
	assert.Zero(t, c.Track.GradientEnd)

	p.Dir = messages.DirNominal
	d.HandleTelegrams(c, balise(100, p))
	assert.Equal(t, 500.0, c.Track.GradientEnd)
}

func infillTelegram(group int) []messages.Packet {
	return []messages.Packet{
		gradient(200),
		{ID: messages.PacketInfillLocation, Fields: map[string]float64{messages.FieldGroup: float64(group)}},
		gradient(300),
	}
}

func TestInfill(t *testing.T) {
	tests := []struct {
		name     string
		mode     onboard.Mode
		group    int
		gradient float64
		faults   int
	}{
		{"infill applied in FS", onboard.ModeFS, 20, 1800, 0},
		{"infill not used in OS", onboard.ModeOS, 20, 1200, 0},
		{"unresolved infill drops the remainder", onboard.ModeFS, 99, 1200, 1},
		{"infill location ignored in SR", onboard.ModeSR, 20, 1200, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testContext(tt.mode, onboard.Level1)
			c.Linking.Replace([]linking.Entry{{Group: groupB, Location: position.At(1500)}})
			d := NewDispatcher(nil, zerolog.Nop())

			d.HandleTelegrams(c, balise(1000, infillTelegram(tt.group)...))
			assert.Equal(t, tt.gradient, c.Track.GradientEnd)
			assert.Len(t, c.Faults, tt.faults)
		})
	}
}

func TestModeProfileAttachedToAuthority(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level2)
	session := withSupervisor(c)
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleRadio(c, messages.RadioMessage{
		ID:      messages.RadioMovementAuthority,
		Session: session,
		LRBG:    groupA,
		Packets: []messages.Packet{
			{ID: messages.PacketLevel23MA, Fields: map[string]float64{
				messages.FieldEndSection:  900,
				messages.FieldDangerPoint: 50,
			}},
			{ID: messages.PacketModeProfile, Elements: []map[string]float64{
				{messages.FieldModeDistance: 300, messages.FieldMode: messages.ModeProfileOS, messages.FieldModeLength: 200, messages.FieldModeSpeed: 8},
			}},
			gradient(900),
		},
	})

	require.NotNil(t, c.Track.Authority)
	assert.Equal(t, 1000.0, c.Track.Authority.EoA)
	assert.Equal(t, 1050.0, c.Track.Authority.SvL)
	assert.Equal(t, 1000.0, c.Track.GradientEnd)
	want := []onboard.ModeSection{{Start: 400, End: 600, Mode: messages.ModeProfileOS, Speed: 8}}
	if diff := cmp.Diff(want, c.ModeProfile); diff != "" {
		t.Errorf("mode profile mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceFilter(t *testing.T) {
	tsr := messages.Packet{ID: messages.PacketTSR, Fields: map[string]float64{
		messages.FieldTSRID:       3,
		messages.FieldTSRDistance: 100,
		messages.FieldTSRLength:   200,
		messages.FieldTSRSpeed:    10,
	}}
	ma := messages.Packet{ID: messages.PacketLevel23MA, Fields: map[string]float64{messages.FieldEndSection: 900}}

	c := testContext(onboard.ModeFS, onboard.Level2)
	withSupervisor(c)
	c.Transition = &onboard.Transition{Level: onboard.Level3, At: 5000}
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleRadio(c, messages.RadioMessage{
		ID:      messages.RadioMovementAuthority,
		Session: "rbc-1-8",
		LRBG:    groupA,
		Packets: []messages.Packet{ma, tsr},
	})
	assert.Nil(t, c.Track.Authority, "MA from an unknown centre is never buffered")
	assert.Empty(t, c.Track.Restrictions)
	assert.Equal(t, 1, d.Ring().Len())

	c.Sessions.Supervising = &onboard.Session{Contact: onboard.Contact{Country: 1, RBC: 8}}
	require.True(t, c.CompleteTransition(6000))
	d.Replay(c)
	require.Contains(t, c.Track.Restrictions, 3)
	assert.Equal(t, 200.0, c.Track.Restrictions[3].Start)
	assert.Equal(t, 400.0, c.Track.Restrictions[3].End)
}

func TestUnknownLRBGDropsMessage(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level2)
	session := withSupervisor(c)
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleRadio(c, messages.RadioMessage{
		ID:      messages.RadioMovementAuthority,
		Session: session,
		LRBG:    groupB,
		Packets: []messages.Packet{gradient(100)},
	})
	assert.Zero(t, c.Track.GradientEnd)
	require.Len(t, c.Faults, 1)
	assert.Equal(t, onboard.FaultUnknownLRBG, c.Faults[0].Kind)
}

func TestEmergencyStops(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level2)
	session := withSupervisor(c)
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleRadio(c, messages.RadioMessage{
		ID:      messages.RadioMovementAuthority,
		Session: session,
		LRBG:    groupA,
		Packets: []messages.Packet{{ID: messages.PacketLevel23MA, Fields: map[string]float64{messages.FieldEndSection: 1900}}},
	})
	require.NotNil(t, c.Track.Authority)

	d.HandleRadio(c, messages.RadioMessage{
		ID:      messages.RadioConditionalStop,
		Session: session,
		LRBG:    groupA,
		Fields: map[string]float64{
			messages.FieldEmergencyID:  4,
			messages.FieldStopDistance: 500,
		},
	})
	assert.Equal(t, 600.0, c.Track.Authority.EoA)
	assert.Contains(t, c.EmergencyStops, 4)
	assert.Equal(t, []onboard.Ack{{Session: session, Message: messages.RadioEmergencyStopAck, ID: 4, Result: onboard.StopAcceptedEoAChanged}}, c.Acks)

	d.HandleRadio(c, messages.RadioMessage{
		ID:      messages.RadioUnconditionalStop,
		Session: session,
		LRBG:    groupA,
		Fields:  map[string]float64{messages.FieldEmergencyID: 5},
	})
	assert.Equal(t, onboard.ModeTR, c.Mode)
	assert.True(t, c.Demand.Trip)
	require.Len(t, c.Acks, 2)
	assert.Equal(t, onboard.StopAcceptedUnconditional, c.Acks[1].Result)
}

func TestLevelTransitionOrder(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level1)
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleTelegrams(c, balise(100, messages.Packet{
		ID: messages.PacketLevelTransitionOrder,
		Fields: map[string]float64{
			messages.FieldLevelDistance: 250,
			messages.FieldLevel:         messages.LevelCode2,
		},
	}))
	require.NotNil(t, c.Transition)
	assert.Equal(t, onboard.Level2, c.Transition.Level)
	assert.Equal(t, 350.0, c.Transition.At)
	assert.False(t, c.CompleteTransition(300))
	assert.True(t, c.CompleteTransition(350))
	assert.Equal(t, onboard.Level2, c.Level)
}

func TestStopIfInSR(t *testing.T) {
	stop := messages.Packet{ID: messages.PacketStopIfInSR, Fields: map[string]float64{messages.FieldSRStop: messages.AspectStop}}

	c := testContext(onboard.ModeSR, onboard.Level1)
	c.SRBalises = []messages.GroupID{groupA}
	d := NewDispatcher(nil, zerolog.Nop())
	d.HandleTelegrams(c, balise(100, stop))
	assert.Equal(t, onboard.ModeSR, c.Mode)

	c.SRBalises = nil
	d.HandleTelegrams(c, balise(100, stop))
	assert.Equal(t, onboard.ModeTR, c.Mode)
}

func TestNoticesForInformation(t *testing.T) {
	c := testContext(onboard.ModeFS, onboard.Level1)
	d := NewDispatcher(nil, zerolog.Nop())

	d.HandleTelegrams(c, balise(100, messages.Packet{
		ID:     messages.PacketLevelCrossing,
		Fields: map[string]float64{messages.FieldLXDistance: 40},
	}))
	require.Len(t, c.Notices, 1)
	assert.Equal(t, onboard.Notice{Kind: "level_crossing", Location: 140}, c.Notices[0])
}
