package onboard

import "github.com/agile-defense/evc/pkg/messages"

// FaultKind classifies faults reported by the kernel
type FaultKind string

const (
	FaultReadError          FaultKind = "balise_read_error"
	FaultGroupIncomplete    FaultKind = "group_incomplete"
	FaultVersionUnsupported FaultKind = "version_unsupported"
	FaultOutOfRoute         FaultKind = "out_of_route"
	FaultTranslation        FaultKind = "translation"
	FaultInfillUnresolved   FaultKind = "infill_unresolved"
	FaultUnknownLRBG        FaultKind = "unknown_lrbg"
)

// Fault is a fault detected during a cycle
type Fault struct {
	Kind     FaultKind        `json:"kind"`
	Group    messages.GroupID `json:"group"`
	Reaction string           `json:"reaction,omitempty"`
	Detail   string           `json:"detail,omitempty"`
}

// Notice is information for the driver display
type Notice struct {
	Kind     string  `json:"kind"`
	Text     string  `json:"text,omitempty"`
	Location float64 `json:"location,omitempty"`
}
