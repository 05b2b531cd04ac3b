package messages

// Field names used by the packet views
const (
	FieldCountry        = "nid_c"
	FieldGroup          = "nid_bg"
	FieldNewCountry     = "q_newcountry"
	FieldLinkDistance   = "d_link"
	FieldLinkReverse    = "q_linkorientation"
	FieldLinkReaction   = "q_linkreaction"
	FieldLocationAcc    = "q_locacc"
	FieldSectionLength  = "l_section"
	FieldEndSection     = "l_endsection"
	FieldDangerPoint    = "d_dp"
	FieldReleaseDP      = "v_releasedp"
	FieldLoASpeed       = "v_loa"
	FieldMainSpeed      = "v_main"
	FieldStaticDistance = "d_static"
	FieldStaticSpeed    = "v_static"
	FieldGradientDist   = "d_gradient"
	FieldGradient       = "g_a"
	FieldProfileEnd     = "d_end"
	FieldTSRID          = "nid_tsr"
	FieldTSRDistance    = "d_tsr"
	FieldTSRLength      = "l_tsr"
	FieldTSRSpeed       = "v_tsr"
	FieldLevelDistance  = "d_leveltr"
	FieldLevel          = "m_leveltr"
	FieldRBCDistance    = "d_rbctr"
	FieldRBC            = "nid_rbc"
	FieldRadio          = "nid_radio"
	FieldSessionOrder   = "q_rbc"
	FieldModeDistance   = "d_mamode"
	FieldMode           = "m_mamode"
	FieldModeLength     = "l_mamode"
	FieldModeSpeed      = "v_mamode"
	FieldVBCOrder       = "q_vbco"
	FieldVBCMarker      = "nid_vbcmk"
	FieldVBCValidity    = "t_vbc"
	FieldReleaseEB      = "q_nvemrrls"
	FieldVersion        = "m_version"
	FieldEmergencyID    = "nid_em"
	FieldStopDistance   = "d_emergencystop"
	FieldSRDistance     = "d_sr"
	FieldSRStop         = "q_srstop"
	FieldLSSMA          = "q_lssma"
	FieldText           = "x_text"
	FieldTextDistance   = "d_text"
	FieldTrainRunning   = "nid_operational"
	FieldRefDistance    = "d_ref"
	FieldTAFDistance    = "d_tafdisplay"
	FieldTAFLength      = "l_tafdisplay"
	FieldDirection      = "q_dir"
	FieldLXDistance     = "d_lx"
	FieldConditionDist  = "d_trackcond"
	FieldAspect         = "q_aspect"
)

// Q_RBC values of a session management packet
const (
	SessionTerminate = 0
	SessionEstablish = 1
)

// Q_VBCO values
const (
	VBCRemove = 0
	VBCSet    = 1
)

// Q_LSSMA values
const (
	LSSMAToggleOff = 0
	LSSMAToggleOn  = 1
)

// Aspects of the danger-for-shunting and stop-if-in-SR packets
const (
	AspectStop = 0
	AspectGo   = 1
)

// LevelNow is the transition distance meaning "immediately"
const LevelNow = 0

// M_LEVELTR codes
const (
	LevelCodeNTC = 0
	LevelCode0   = 1
	LevelCode1   = 2
	LevelCode2   = 3
	LevelCode3   = 4
)

// TSRNotRevocable is the TSR identifier of restrictions that cannot be revoked
const TSRNotRevocable = 255

// LinkElement is one expected balise group from a linking packet
type LinkElement struct {
	Distance float64 // Offset from the reference group
	Group    GroupID
	Reverse  bool
	Reaction int
	Accuracy float64
}

// Links decodes a linking packet. D_LINK is incremental; a group without a new
// country inherits the country of the reference group.
func (p Packet) Links(country int) []LinkElement {
	links := make([]LinkElement, 0, len(p.Elements))
	var dist float64
	for _, e := range p.Elements {
		dist += e[FieldLinkDistance]
		c := country
		if e[FieldNewCountry] != 0 {
			c = int(e[FieldCountry])
		}
		links = append(links, LinkElement{
			Distance: dist,
			Group:    GroupID{Country: c, Group: int(e[FieldGroup])},
			Reverse:  e[FieldLinkReverse] != 0,
			Reaction: int(e[FieldLinkReaction]),
			Accuracy: e[FieldLocationAcc],
		})
	}
	return links
}

// Authority is the decoded content of a movement authority packet
type Authority struct {
	Sections     []float64 // Section lengths before the end section
	EndSection   float64
	DangerPoint  float64 // Distance from EoA to SvL
	ReleaseSpeed float64 // Zero when the release speed is calculated onboard
	LoASpeed     float64 // Non-zero for a limit of authority
	MainSpeed    float64
}

// Length returns the distance from the reference to the end of authority
func (a Authority) Length() float64 {
	l := a.EndSection
	for _, s := range a.Sections {
		l += s
	}
	return l
}

// Authority decodes a level 1 or level 2/3 movement authority packet
func (p Packet) Authority() Authority {
	a := Authority{
		EndSection:   p.Field(FieldEndSection),
		DangerPoint:  p.Field(FieldDangerPoint),
		ReleaseSpeed: p.Field(FieldReleaseDP),
		LoASpeed:     p.Field(FieldLoASpeed),
		MainSpeed:    p.Field(FieldMainSpeed),
	}
	for _, e := range p.Elements {
		a.Sections = append(a.Sections, e[FieldSectionLength])
	}
	return a
}

// SpeedStep is a speed valid from an offset onward
type SpeedStep struct {
	Distance float64
	Speed    float64
}

// SpeedSteps decodes a static speed profile; distances are incremental
func (p Packet) SpeedSteps() []SpeedStep {
	steps := make([]SpeedStep, 0, len(p.Elements))
	var dist float64
	for _, e := range p.Elements {
		dist += e[FieldStaticDistance]
		steps = append(steps, SpeedStep{Distance: dist, Speed: e[FieldStaticSpeed]})
	}
	return steps
}

// Coverage returns how far ahead of the reference a profile packet is valid.
// Without an explicit end the last element bounds it.
func (p Packet) Coverage() float64 {
	if p.Has(FieldProfileEnd) {
		return p.Field(FieldProfileEnd)
	}
	var dist float64
	for _, e := range p.Elements {
		dist += e[FieldStaticDistance] + e[FieldGradientDist]
	}
	return dist
}

// Restriction is a temporary speed restriction
type Restriction struct {
	ID       int
	Distance float64
	Length   float64
	Speed    float64
}

// Revocable reports whether the restriction can be revoked
func (r Restriction) Revocable() bool {
	return r.ID != TSRNotRevocable
}

// Restriction decodes a TSR packet
func (p Packet) Restriction() Restriction {
	return Restriction{
		ID:       p.Int(FieldTSRID),
		Distance: p.Field(FieldTSRDistance),
		Length:   p.Field(FieldTSRLength),
		Speed:    p.Field(FieldTSRSpeed),
	}
}

// ModeSection is one element of a mode profile
type ModeSection struct {
	Distance float64
	Mode     int // 0 on-sight, 1 shunting, 2 limited supervision
	Length   float64
	Speed    float64
}

// Mode profile section modes
const (
	ModeProfileOS = 0
	ModeProfileSH = 1
	ModeProfileLS = 2
)

// ModeSections decodes a mode profile packet
func (p Packet) ModeSections() []ModeSection {
	var sections []ModeSection
	var dist float64
	for _, e := range p.Elements {
		dist += e[FieldModeDistance]
		sections = append(sections, ModeSection{
			Distance: dist,
			Mode:     int(e[FieldMode]),
			Length:   e[FieldModeLength],
			Speed:    e[FieldModeSpeed],
		})
	}
	return sections
}

// Levels decodes the levels of a level transition order in order of priority.
// The first level is carried in the fields, further ones in the elements.
func (p Packet) Levels() []int {
	levels := []int{p.Int(FieldLevel)}
	for _, e := range p.Elements {
		if v, ok := e[FieldLevel]; ok {
			levels = append(levels, int(v))
		}
	}
	return levels
}

// Groups decodes a list of balise groups. A group without a new country
// inherits the given country.
func (p Packet) Groups(country int) []GroupID {
	groups := make([]GroupID, 0, len(p.Elements))
	for _, e := range p.Elements {
		c := country
		if e[FieldNewCountry] != 0 {
			c = int(e[FieldCountry])
		}
		groups = append(groups, GroupID{Country: c, Group: int(e[FieldGroup])})
	}
	return groups
}
