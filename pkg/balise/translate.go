package balise

import (
	"errors"
	"fmt"

	"github.com/agile-defense/evc/pkg/messages"
)

var (
	// ErrUnknownPacket is returned for a packet type the version does not define
	ErrUnknownPacket = errors.New("unknown packet")
	// ErrMissingContext is returned for a packet whose companion packet is absent
	ErrMissingContext = errors.New("missing companion packet")
	// ErrDropped is returned for a packet that is ignored in the version
	ErrDropped = errors.New("packet dropped")
)

// Translator re-decodes a packet of a group with the context of all packets of
// the same message and the protocol version of the group
type Translator interface {
	Translate(p messages.Packet, message []messages.Packet, version int) (messages.Packet, error)
}

// TranslatorFunc adapts a function to a Translator
type TranslatorFunc func(p messages.Packet, message []messages.Packet, version int) (messages.Packet, error)

// Translate calls f
func (f TranslatorFunc) Translate(p messages.Packet, message []messages.Packet, version int) (messages.Packet, error) {
	return f(p, message, version)
}

// baseline2 holds the packets that only exist from version 2.0 on
var baseline2 = map[int]bool{
	messages.PacketTSRGradient:     true,
	messages.PacketLSSMAToggle:     true,
	messages.PacketGenericLSMarker: true,
}

// VersionTranslator is the default translator. Packets introduced with
// version 2.0 are dropped from 1.x groups.
type VersionTranslator struct{}

// Translate implements Translator
func (VersionTranslator) Translate(p messages.Packet, message []messages.Packet, version int) (messages.Packet, error) {
	if p.ID < 0 || p.ID > messages.PacketEnd {
		return p, fmt.Errorf("failed to translate packet %d: %w", p.ID, ErrUnknownPacket)
	}
	if messages.VersionMajor(version) == 1 && baseline2[p.ID] {
		return p, ErrDropped
	}
	if p.ID == messages.PacketTSRGradient && !contains(message, messages.PacketTSR) {
		return p, fmt.Errorf("failed to translate packet %d: %w", p.ID, ErrMissingContext)
	}
	return p, nil
}

func contains(packets []messages.Packet, id int) bool {
	for _, p := range packets {
		if p.ID == id {
			return true
		}
	}
	return false
}
