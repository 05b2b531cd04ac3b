// Package onboard holds the supervision context shared by the kernel components
package onboard

import "github.com/agile-defense/evc/pkg/messages"

// Mode is the operating mode
type Mode int

const (
	ModeNP Mode = iota // No power
	ModeSB             // Stand by
	ModePS             // Passive shunting
	ModeSH             // Shunting
	ModeFS             // Full supervision
	ModeLS             // Limited supervision
	ModeSR             // Staff responsible
	ModeOS             // On sight
	ModeSL             // Sleeping
	ModeNL             // Non leading
	ModeUN             // Unfitted
	ModeTR             // Trip
	ModePT             // Post trip
	ModeSF             // System failure
	ModeIS             // Isolation
	ModeSN             // National system
	ModeRV             // Reversing
)

// ModeCount is the number of operating modes
const ModeCount = int(ModeRV) + 1

var modeNames = [ModeCount]string{"NP", "SB", "PS", "SH", "FS", "LS", "SR", "OS", "SL", "NL", "UN", "TR", "PT", "SF", "IS", "SN", "RV"}

func (m Mode) String() string {
	if m < 0 || int(m) >= ModeCount {
		return "unknown"
	}
	return modeNames[m]
}

// ParseMode returns the mode with the given abbreviation
func ParseMode(s string) (Mode, bool) {
	for i, n := range modeNames {
		if n == s {
			return Mode(i), true
		}
	}
	return 0, false
}

// Supervising reports whether linking and balise consistency are supervised in m
func (m Mode) Supervising() bool {
	return m == ModeFS || m == ModeOS || m == ModeLS
}

// BrakeSuppressed reports whether the apply-brake reaction is ignored in m
func (m Mode) BrakeSuppressed() bool {
	switch m {
	case ModeSL, ModePT, ModeNL, ModeRV, ModePS:
		return true
	}
	return false
}

// Shunting reports whether m is one of the shunting-like modes
func (m Mode) Shunting() bool {
	return m == ModeSH || m == ModePS || m == ModeSL
}

// Level is the ETCS application level
type Level int

const (
	Level0 Level = iota
	LevelNTC
	Level1
	Level2
	Level3
)

// LevelCount is the number of levels
const LevelCount = int(Level3) + 1

func (l Level) String() string {
	switch l {
	case Level0:
		return "N0"
	case LevelNTC:
		return "NTC"
	case Level1:
		return "N1"
	case Level2:
		return "N2"
	case Level3:
		return "N3"
	}
	return "unknown"
}

// ParseLevel returns the level with the given name
func ParseLevel(s string) (Level, bool) {
	for l := Level0; l <= Level3; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// Radio reports whether the level is supervised by a radio block centre
func (l Level) Radio() bool {
	return l == Level2 || l == Level3
}

// LevelFromCode converts an M_LEVELTR value
func LevelFromCode(code int) (Level, bool) {
	switch code {
	case messages.LevelCodeNTC:
		return LevelNTC, true
	case messages.LevelCode0:
		return Level0, true
	case messages.LevelCode1:
		return Level1, true
	case messages.LevelCode2:
		return Level2, true
	case messages.LevelCode3:
		return Level3, true
	}
	return 0, false
}
