package information

import "github.com/agile-defense/evc/pkg/onboard"

// condition is an extra requirement attached to an accepting rule
type condition uint16

const (
	// Level conditions
	condNoAckPending      condition = 1 << iota // Train data acknowledged by the supervising centre
	condProfilesCover                           // Static profile and gradient cover the whole authority
	condNoEmergencyStop                         // No emergency stop is in force
	condRevocableAllowed                        // Revocable restrictions are not inhibited
	condTransitionL23                           // A transition to level 2 or 3 is ongoing
	condNoTransitionOrder                       // No transition ongoing and no order in the same message
	condTransitionOrder                         // A transition order in the same message
	condNewSession                              // The session is not already being established

	// Mode conditions
	condTripExit      // Trip exit acknowledged, not in level 1
	condCabActive     // A cab is active
	condTrainData     // Train data are valid
	condDelayedOnly   // Level transitions not immediate and not conditional
	condNoOverride    // No override is active
	condImmediateOnly // Level transitions immediate only
	condRBCNow        // RBC transition at the current location only
	condInsideLS      // The train is inside a limited supervision section
)

// buffer selects the transitions a rejected event is kept for
type buffer uint8

const (
	bufferLevel1 buffer = 1 << iota
	bufferLevel23
)

// rule is one cell of a filter table
type rule struct {
	accept bool
	conds  condition
	buffer buffer
}

func acc(c ...condition) rule {
	r := rule{accept: true}
	for _, v := range c {
		r.conds |= v
	}
	return r
}

var (
	ac  = rule{accept: true}
	rj  = rule{}
	r1  = rule{buffer: bufferLevel1}
	r2  = rule{buffer: bufferLevel23}
	r12 = rule{buffer: bufferLevel1 | bufferLevel23}
)

// levelRow holds the level filter cells indexed by level, for onboard
// (balise) and radio origin
type levelRow struct {
	balise [onboard.LevelCount]rule
	radio  [onboard.LevelCount]rule
}

// modeRow holds the mode filter cells indexed by mode
type modeRow [onboard.ModeCount]rule

// category is the static description of a kind
type category struct {
	name  string
	level levelRow
	mode  modeRow

	// Ordering
	early      bool
	transition bool
	last       bool

	// Source filter
	noBuffer       bool
	sessionControl bool
	handover       bool
}

var (
	levelTrackside = levelRow{
		balise: [...]rule{r1, r1, ac, r1, r1},
		radio:  [...]rule{r2, r2, r2, acc(condNoAckPending), acc(condNoAckPending)},
	}
	levelMA1 = levelRow{
		balise: [...]rule{r1, r1, acc(condProfilesCover), r1, r1},
	}
	levelMA23 = levelRow{
		radio: [...]rule{r2, r2, r2,
			acc(condNoAckPending, condNoEmergencyStop),
			acc(condNoAckPending, condNoEmergencyStop)},
	}
	levelShortening = levelRow{
		radio: [...]rule{rj, rj, rj, acc(condNoAckPending), acc(condNoAckPending)},
	}
	levelSignalling = levelRow{
		balise: [...]rule{r1, r1, ac, r1, r1},
	}
	levelRepositioning = levelRow{
		balise: [...]rule{rj, rj, ac, rj, rj},
	}
	levelAlways = levelRow{
		balise: [...]rule{ac, ac, ac, ac, ac},
		radio:  [...]rule{ac, ac, ac, ac, ac},
	}
	levelNational = levelRow{
		balise: [...]rule{ac, r12, ac, ac, ac},
		radio:  [...]rule{r2, r2, r2, acc(condNoAckPending), acc(condNoAckPending)},
	}
	levelConditionalLTO = levelRow{
		balise: [...]rule{acc(condNoTransitionOrder), acc(condNoTransitionOrder), acc(condNoTransitionOrder),
			acc(condNoTransitionOrder), acc(condNoTransitionOrder)},
	}
	levelSession = levelRow{
		balise: [...]rule{acc(condTransitionOrder), acc(condTransitionOrder), ac, acc(condNewSession), acc(condNewSession)},
		radio:  [...]rule{ac, ac, ac, ac, ac},
	}
	levelTSR = levelRow{
		balise: [...]rule{ac, r12, ac, acc(condRevocableAllowed), acc(condRevocableAllowed)},
		radio:  [...]rule{r2, r2, r2, acc(condNoAckPending), acc(condNoAckPending)},
	}
	levelTSRRevocation = levelRow{
		balise: [...]rule{ac, r12, ac, ac, ac},
		radio:  [...]rule{r2, r2, r2, acc(condNoAckPending), acc(condNoAckPending)},
	}
	levelRBCTransition = levelRow{
		balise: [...]rule{acc(condTransitionL23), acc(condTransitionL23), acc(condTransitionL23), ac, ac},
		radio:  [...]rule{r2, r2, r2, ac, ac},
	}
	levelBaliseOrder = levelRow{
		balise: [...]rule{ac, r12, ac, ac, ac},
	}
	levelNotice = levelRow{
		balise: [...]rule{ac, ac, ac, ac, ac},
		radio:  [...]rule{r2, r2, r2, ac, ac},
	}
	levelRadio = levelRow{
		radio: [...]rule{rj, rj, rj, ac, ac},
	}
	levelRadioAck = levelRow{
		radio: [...]rule{rj, rj, rj, acc(condNoAckPending), acc(condNoAckPending)},
	}
	levelRadioAlways = levelRow{
		radio: [...]rule{ac, ac, ac, ac, ac},
	}
)

// Mode rows, columns NP SB PS SH FS LS SR OS SL NL UN TR PT SF IS SN RV
var (
	modeAuthority = modeRow{rj, acc(condCabActive, condTrainData), rj, rj, ac, ac, ac, ac, rj, rj, ac, rj, acc(condTripExit), rj, rj, ac, rj}
	modeInfo      = modeRow{rj, acc(condCabActive), rj, rj, ac, ac, ac, ac, rj, rj, ac, ac, acc(condTripExit), rj, rj, ac, rj}
	modeLevel     = modeRow{rj, acc(condCabActive), acc(condImmediateOnly), acc(condImmediateOnly), ac, ac, ac, ac, ac, ac, ac, ac, acc(condTripExit, condDelayedOnly), rj, rj, ac, rj}
	modeHandover  = modeRow{rj, acc(condCabActive, condTrainData), acc(condRBCNow), acc(condRBCNow), ac, ac, ac, ac, ac, ac, rj, ac, acc(condTripExit), rj, rj, rj, rj}
	modeSession   = modeRow{rj, ac, ac, ac, ac, ac, ac, ac, ac, ac, ac, ac, acc(condTripExit), rj, rj, ac, ac}
	modeAlways    = modeRow{rj, ac, ac, ac, ac, ac, ac, ac, ac, ac, ac, ac, ac, rj, rj, ac, ac}
	modeSR        = modeRow{rj, rj, rj, rj, rj, rj, acc(condNoOverride), rj, rj, rj, rj, rj, rj, rj, rj, rj, rj}
	modeSH        = modeRow{rj, rj, rj, ac, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj}
	modeSRAuth    = modeRow{rj, acc(condCabActive, condTrainData), rj, rj, rj, rj, ac, rj, rj, rj, rj, rj, acc(condTripExit), rj, rj, rj, rj}
	modeStop      = modeRow{rj, rj, rj, rj, ac, ac, ac, ac, rj, rj, ac, rj, rj, rj, rj, ac, rj}
	modeCondStop  = modeRow{rj, rj, rj, rj, ac, ac, rj, ac, rj, rj, rj, rj, rj, rj, rj, rj, rj}
	modeDialog    = modeRow{rj, acc(condCabActive), rj, rj, ac, ac, ac, ac, rj, rj, ac, rj, acc(condTripExit), rj, rj, ac, rj}
	modeTrip      = modeRow{rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, ac, ac, rj, rj, rj, rj}
	modeSoM       = modeRow{rj, ac, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj, rj}
	modeLS        = modeRow{rj, rj, rj, rj, acc(condInsideLS), ac, acc(condInsideLS), acc(condInsideLS), rj, rj, acc(condInsideLS), rj, rj, rj, rj, acc(condInsideLS), rj}
)

// categories is the static category table indexed by kind
var categories = [kindCount]category{
	KindVersionOrder:             {name: "version_order", level: levelAlways, mode: modeAlways},
	KindNationalValues:           {name: "national_values", level: levelNational, mode: modeAlways},
	KindLinking:                  {name: "linking", level: levelTrackside, mode: modeAuthority, early: true},
	KindVBCOrder:                 {name: "vbc_order", level: levelBaliseOrder, mode: modeAlways},
	KindMALevel1:                 {name: "ma_level1", level: levelMA1, mode: modeAuthority, last: true},
	KindSignalling:               {name: "signalling", level: levelSignalling, mode: modeInfo},
	KindMALevel23:                {name: "ma_level23", level: levelMA23, mode: modeAuthority, noBuffer: true},
	KindMAShortening:             {name: "ma_shortening", level: levelShortening, mode: modeAuthority},
	KindRepositioning:            {name: "repositioning", level: levelRepositioning, mode: modeAuthority},
	KindGradient:                 {name: "gradient", level: levelTrackside, mode: modeAuthority},
	KindStaticSpeedProfile:       {name: "static_speed_profile", level: levelTrackside, mode: modeAuthority},
	KindTrackCondition:           {name: "track_condition", level: levelTrackside, mode: modeInfo},
	KindTrackConditionStation:    {name: "track_condition_station", level: levelTrackside, mode: modeInfo},
	KindBigMetal:                 {name: "big_metal", level: levelTrackside, mode: modeInfo},
	KindRouteSuitability:         {name: "route_suitability", level: levelTrackside, mode: modeInfo},
	KindLevelTransitionOrder:     {name: "level_transition_order", level: levelAlways, mode: modeLevel, transition: true},
	KindConditionalLTO:           {name: "conditional_level_transition_order", level: levelConditionalLTO, mode: modeLevel, transition: true},
	KindSessionManagement:        {name: "session_management", level: levelSession, mode: modeSession, sessionControl: true},
	KindPermittedBraking:         {name: "permitted_braking_distance", level: levelTrackside, mode: modeInfo},
	KindMARequestParameters:      {name: "ma_request_parameters", level: levelRadio, mode: modeInfo},
	KindPositionReportParameters: {name: "position_report_parameters", level: levelNotice, mode: modeInfo},
	KindTSR:                      {name: "tsr", level: levelTSR, mode: modeAuthority},
	KindTSRRevocation:            {name: "tsr_revocation", level: levelTSRRevocation, mode: modeAuthority},
	KindTSRGradient:              {name: "tsr_gradient", level: levelTSR, mode: modeAuthority},
	KindPlainText:                {name: "plain_text", level: levelNotice, mode: modeInfo},
	KindFixedText:                {name: "fixed_text", level: levelNotice, mode: modeInfo},
	KindGeographicalPosition:     {name: "geographical_position", level: levelNotice, mode: modeInfo},
	KindLevelCrossing:            {name: "level_crossing", level: levelTrackside, mode: modeInfo},
	KindTAFLevel23:               {name: "taf_level23", level: levelBaliseOrder, mode: modeInfo},
	KindRBCTransitionOrder:       {name: "rbc_transition_order", level: levelRBCTransition, mode: modeHandover, sessionControl: true, handover: true},
	KindDangerForSH:              {name: "danger_for_sh", level: levelBaliseOrder, mode: modeSH},
	KindStopIfInSR:               {name: "stop_if_in_sr", level: levelBaliseOrder, mode: modeSR},
	KindTrainRunningNumber:       {name: "train_running_number", level: levelNotice, mode: modeInfo},
	KindLSSMAOn:                  {name: "lssma_display_on", level: levelNotice, mode: modeLS},
	KindLSSMAOff:                 {name: "lssma_display_off", level: levelNotice, mode: modeLS},
	KindGenericLSMarker:          {name: "generic_ls_marker", level: levelNotice, mode: modeLS},

	KindSRAuthorisation:      {name: "sr_authorisation", level: levelRadio, mode: modeSRAuth},
	KindTripExitAck:          {name: "trip_exit_ack", level: levelRadio, mode: modeTrip},
	KindTrainDataAck:         {name: "train_data_ack", level: levelRadioAlways, mode: modeAlways},
	KindConditionalStop:      {name: "conditional_emergency_stop", level: levelRadioAck, mode: modeCondStop},
	KindUnconditionalStop:    {name: "unconditional_emergency_stop", level: levelRadio, mode: modeStop},
	KindStopRevocation:       {name: "emergency_stop_revocation", level: levelRadio, mode: modeDialog, noBuffer: true},
	KindSHRefused:            {name: "sh_refused", level: levelRadio, mode: modeDialog},
	KindSHAuthorised:         {name: "sh_authorised", level: levelRadio, mode: modeDialog},
	KindTAFRequest:           {name: "taf_request", level: levelRadio, mode: modeDialog},
	KindTrainRejected:        {name: "train_rejected", level: levelRadioAlways, mode: modeSoM},
	KindTrainAccepted:        {name: "train_accepted", level: levelRadioAlways, mode: modeSoM},
	KindSoMPositionConfirmed: {name: "som_position_confirmed", level: levelRadioAlways, mode: modeSoM},
}
