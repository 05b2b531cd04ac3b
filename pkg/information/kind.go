// Package information decodes accepted balise and radio data into information
// events, filters them by level, source and mode, and applies them to the
// onboard context in priority order
package information

import "github.com/agile-defense/evc/pkg/messages"

// Kind is the category of an information event
type Kind int

const (
	KindNone Kind = iota

	// Packets
	KindVersionOrder
	KindNationalValues
	KindLinking
	KindVBCOrder
	KindMALevel1
	KindSignalling
	KindMALevel23
	KindMAShortening
	KindRepositioning
	KindGradient
	KindStaticSpeedProfile
	KindTrackCondition
	KindTrackConditionStation
	KindBigMetal
	KindRouteSuitability
	KindLevelTransitionOrder
	KindConditionalLTO
	KindSessionManagement
	KindPermittedBraking
	KindMARequestParameters
	KindPositionReportParameters
	KindTSR
	KindTSRRevocation
	KindTSRGradient
	KindPlainText
	KindFixedText
	KindGeographicalPosition
	KindLevelCrossing
	KindTAFLevel23
	KindRBCTransitionOrder
	KindDangerForSH
	KindStopIfInSR
	KindTrainRunningNumber
	KindLSSMAOn
	KindLSSMAOff
	KindGenericLSMarker

	// Radio messages with an inline action
	KindSRAuthorisation
	KindTripExitAck
	KindTrainDataAck
	KindConditionalStop
	KindUnconditionalStop
	KindStopRevocation
	KindSHRefused
	KindSHAuthorised
	KindTAFRequest
	KindTrainRejected
	KindTrainAccepted
	KindSoMPositionConfirmed

	kindCount
)

func (k Kind) String() string {
	if k <= KindNone || k >= kindCount {
		return "none"
	}
	return categories[k].name
}

// packetKinds maps a packet type to the events it yields. Packet 15 from a
// shortening message is resolved by the radio decoder.
var packetKinds = [256][2]Kind{
	messages.PacketVersionOrder:          {KindVersionOrder},
	messages.PacketNationalValues:        {KindNationalValues},
	messages.PacketLinking:               {KindLinking},
	messages.PacketVBCOrder:              {KindVBCOrder},
	messages.PacketLevel1MA:              {KindMALevel1, KindSignalling},
	messages.PacketLevel23MA:             {KindMALevel23},
	messages.PacketRepositioning:         {KindRepositioning},
	messages.PacketGradient:              {KindGradient},
	messages.PacketStaticSpeedProfile:    {KindStaticSpeedProfile},
	messages.PacketTrackCondition:        {KindTrackCondition},
	messages.PacketCurrentConsumption:    {KindTrackCondition},
	messages.PacketLevelTransitionOrder:  {KindLevelTransitionOrder},
	messages.PacketSessionManagement:     {KindSessionManagement},
	messages.PacketConditionalLTO:        {KindConditionalLTO},
	messages.PacketPermittedBraking:      {KindPermittedBraking},
	messages.PacketMARequestParameters:   {KindMARequestParameters},
	messages.PacketPositionReportParams:  {KindPositionReportParameters},
	messages.PacketTSR:                   {KindTSR},
	messages.PacketTSRRevocation:         {KindTSRRevocation},
	messages.PacketBigMetal:              {KindBigMetal},
	messages.PacketTrackConditionSpecial: {KindTrackCondition, KindTrackConditionStation},
	messages.PacketStationPlatform:       {KindTrackCondition},
	messages.PacketRouteSuitability:      {KindRouteSuitability},
	messages.PacketPlainText:             {KindPlainText},
	messages.PacketFixedText:             {KindFixedText},
	messages.PacketGeographicalPosition:  {KindGeographicalPosition},
	messages.PacketLevelCrossing:         {KindLevelCrossing},
	messages.PacketTAFLevel23:            {KindTAFLevel23},
	messages.PacketRBCTransitionOrder:    {KindRBCTransitionOrder},
	messages.PacketDangerForSH:           {KindDangerForSH},
	messages.PacketStopIfInSR:            {KindStopIfInSR},
	messages.PacketTrainRunningNumber:    {KindTrainRunningNumber},
	messages.PacketTSRGradient:           {KindTSRGradient},
	messages.PacketGenericLSMarker:       {KindGenericLSMarker},
}

// kindsOf returns the events yielded by a packet
func kindsOf(p messages.Packet, radio *messages.RadioMessage) []Kind {
	if p.ID < 0 || p.ID >= len(packetKinds) {
		return nil
	}
	switch {
	case p.ID == messages.PacketLevel23MA && radio != nil && radio.ID == messages.RadioShortenMA:
		return []Kind{KindMAShortening}
	case p.ID == messages.PacketLSSMAToggle:
		if p.Int(messages.FieldLSSMA) == messages.LSSMAToggleOff {
			return []Kind{KindLSSMAOff}
		}
		return []Kind{KindLSSMAOn}
	}
	kinds := packetKinds[p.ID]
	switch {
	case kinds[0] == KindNone:
		return nil
	case kinds[1] == KindNone:
		return kinds[:1]
	}
	return kinds[:]
}

// radioKinds maps radio messages carrying an inline action to their event
var radioKinds = map[int]Kind{
	messages.RadioSRAuthorisation:      KindSRAuthorisation,
	messages.RadioTripExitAck:          KindTripExitAck,
	messages.RadioTrainDataAck:         KindTrainDataAck,
	messages.RadioConditionalStop:      KindConditionalStop,
	messages.RadioUnconditionalStop:    KindUnconditionalStop,
	messages.RadioStopRevocation:       KindStopRevocation,
	messages.RadioSHRefused:            KindSHRefused,
	messages.RadioSHAuthorised:         KindSHAuthorised,
	messages.RadioTAFRequest:           KindTAFRequest,
	messages.RadioTrainRejected:        KindTrainRejected,
	messages.RadioTrainAccepted:        KindTrainAccepted,
	messages.RadioSoMPositionConfirmed: KindSoMPositionConfirmed,
}
