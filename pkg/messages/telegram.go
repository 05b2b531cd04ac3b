package messages

import (
	"fmt"

	"github.com/agile-defense/evc/pkg/position"
)

// UnknownGroup is the group number used as a wildcard in linking information
const UnknownGroup = 16383

// Message counter values with a special meaning
const (
	MCountFitsAll   = 254
	MCountFitsNever = 255
)

// Packet type identifiers interpreted by the kernel
const (
	PacketVBCMarker             = 0
	PacketVersionOrder          = 2
	PacketNationalValues        = 3
	PacketLinking               = 5
	PacketVBCOrder              = 6
	PacketLevel1MA              = 12
	PacketLevel23MA             = 15
	PacketRepositioning         = 16
	PacketGradient              = 21
	PacketStaticSpeedProfile    = 27
	PacketTrackCondition        = 39
	PacketCurrentConsumption    = 40
	PacketLevelTransitionOrder  = 41
	PacketSessionManagement     = 42
	PacketConditionalLTO        = 46
	PacketListOfBalisesSH       = 49
	PacketPermittedBraking      = 52
	PacketMARequestParameters   = 57
	PacketPositionReportParams  = 58
	PacketListOfBalisesSR       = 63
	PacketTSR                   = 65
	PacketTSRRevocation         = 66
	PacketBigMetal              = 67
	PacketTrackConditionSpecial = 68
	PacketStationPlatform       = 69
	PacketRouteSuitability      = 70
	PacketPlainText             = 72
	PacketFixedText             = 76
	PacketGeographicalPosition  = 79
	PacketModeProfile           = 80
	PacketLevelCrossing         = 88
	PacketTAFLevel23            = 90
	PacketRBCTransitionOrder    = 131
	PacketDangerForSH           = 132
	PacketInfillLocation        = 136
	PacketStopIfInSR            = 137
	PacketTrainRunningNumber    = 140
	PacketTSRGradient           = 141
	PacketInhibitConsistency    = 145
	PacketLSSMAToggle           = 180
	PacketGenericLSMarker       = 181
	PacketDefault               = 254
	PacketEnd                   = 255
)

// GroupID identifies a balise group
type GroupID struct {
	Country int `json:"nid_c"`
	Group   int `json:"nid_bg"`
}

// Unknown reports whether the id is the wildcard "unknown group"
func (g GroupID) Unknown() bool {
	return g.Group == UnknownGroup
}

// Matches reports whether g equals other, or g is the wildcard of the same country
func (g GroupID) Matches(other GroupID) bool {
	return g == other || (g.Unknown() && g.Country == other.Country)
}

func (g GroupID) String() string {
	return fmt.Sprintf("%d:%d", g.Country, g.Group)
}

// Duplicate is the duplicate role of a telegram within its group (M_DUP)
type Duplicate int

const (
	NoDuplicates    Duplicate = 0
	DuplicateOfNext Duplicate = 1
	DuplicateOfPrev Duplicate = 2
)

// PacketDir is the validity direction of a directional packet (Q_DIR)
type PacketDir int

const (
	DirReverse PacketDir = 0
	DirNominal PacketDir = 1
	DirBoth    PacketDir = 2
)

// Applies reports whether a packet with this validity direction applies to a
// train running in direction d
func (q PacketDir) Applies(d position.Direction) bool {
	switch q {
	case DirBoth:
		return true
	case DirNominal:
		return d == position.Nominal
	case DirReverse:
		return d == position.Reverse
	}
	return false
}

// Packet is a decoded packet with named fields, already converted to metres,
// metres per second and seconds. Repeated iterations are carried in Elements.
type Packet struct {
	ID          int                  `json:"nid_packet"`
	Directional bool                 `json:"directional,omitempty"`
	Dir         PacketDir            `json:"q_dir"`
	Fields      map[string]float64   `json:"fields,omitempty"`
	Elements    []map[string]float64 `json:"elements,omitempty"`
}

// Field returns a field value or zero
func (p Packet) Field(name string) float64 {
	return p.Fields[name]
}

// FieldOr returns a field value, or def when the field is absent
func (p Packet) FieldOr(name string, def float64) float64 {
	if v, ok := p.Fields[name]; ok {
		return v
	}
	return def
}

// Int returns a field value truncated to an integer
func (p Packet) Int(name string) int {
	return int(p.Fields[name])
}

// Has reports whether the field is present
func (p Packet) Has(name string) bool {
	_, ok := p.Fields[name]
	return ok
}

// Telegram is a decoded balise telegram
type Telegram struct {
	Group     GroupID   `json:"group"`
	Pig       int       `json:"n_pig"`
	Total     int       `json:"n_total"`
	Dup       Duplicate `json:"m_dup"`
	Version   int       `json:"m_version"`
	Linked    bool      `json:"q_link"`
	MCount    int       `json:"m_mcount"`
	Packets   []Packet  `json:"packets,omitempty"`
	ReadError bool      `json:"read_error,omitempty"`
}

// HasPacket reports whether the telegram carries a packet of the given type
func (t *Telegram) HasPacket(id int) bool {
	for _, p := range t.Packets {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Default reports whether this is a default telegram
func (t *Telegram) Default() bool {
	return t.HasPacket(PacketDefault)
}

// VBCMarker returns the virtual balise cover marker leading the telegram
func (t *Telegram) VBCMarker() (int, bool) {
	if len(t.Packets) == 0 || t.Packets[0].ID != PacketVBCMarker {
		return 0, false
	}
	return t.Packets[0].Int(FieldVBCMarker), true
}

// Radio message types handled by the kernel
const (
	RadioSRAuthorisation       = 2
	RadioMovementAuthority     = 3
	RadioTripExitAck           = 6
	RadioTrainDataAck          = 8
	RadioShortenMA             = 9
	RadioConditionalStop       = 15
	RadioUnconditionalStop     = 16
	RadioStopRevocation        = 18
	RadioGeneralMessage        = 24
	RadioSHRefused             = 27
	RadioSHAuthorised          = 28
	RadioSystemVersion         = 32
	RadioMAWithShiftedLocation = 33
	RadioTAFRequest            = 34
	RadioTrainRejected         = 40
	RadioTrainAccepted         = 41
	RadioSoMPositionConfirmed  = 43

	// Train to track
	RadioEmergencyStopAck = 147
)

// M_VERSION values of the supported system versions
const (
	Version10 = 16
	Version11 = 17
	Version20 = 32
	Version21 = 33
)

// SupportedVersions lists the system versions the onboard operates
var SupportedVersions = []int{Version10, Version11, Version20, Version21}

// VersionMajor returns the major number X of system version X.Y
func VersionMajor(v int) int {
	return v >> 4
}

// VersionSupported reports whether the onboard can operate version v
func VersionSupported(v int) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// RadioMessage is a decoded message received from a radio block centre
type RadioMessage struct {
	ID        int                `json:"nid_message"`
	Session   string             `json:"session"`
	LRBG      GroupID            `json:"nid_lrbg"`
	Timestamp int64              `json:"t_train"`
	Version   int                `json:"m_version"`
	Fields    map[string]float64 `json:"fields,omitempty"`
	Packets   []Packet           `json:"packets,omitempty"`
}

// Field returns a field value or zero
func (m RadioMessage) Field(name string) float64 {
	return m.Fields[name]
}
