package onboard

import "fmt"

// Contact identifies a radio block centre
type Contact struct {
	Country int `json:"nid_c"`
	RBC     int `json:"nid_rbc"`
	Radio   int `json:"nid_radio"`
}

// ID is the session identifier used on the radio subjects
func (c Contact) ID() string {
	return fmt.Sprintf("rbc-%d-%d", c.Country, c.RBC)
}

// Session is a communication session with a radio block centre
type Session struct {
	Contact             Contact `json:"contact"`
	TrainDataAckPending bool    `json:"train_data_ack_pending"`
	Version             int     `json:"version"`
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.Contact.ID()
}

// Sessions are the radio sessions known to the onboard
type Sessions struct {
	Supervising *Session
	HandingOver *Session
	Accepting   *Session
	// HandoverAt is the location where the accepting centre takes over
	HandoverAt *float64
}

// Role is the role of a session a message was received on
type Role int

const (
	RoleNone Role = iota
	RoleSupervising
	RoleHandingOver
	RoleAccepting
)

// Role returns the role of the session with the given identifier
func (s *Sessions) Role(id string) Role {
	switch {
	case s.Supervising != nil && s.Supervising.ID() == id:
		return RoleSupervising
	case s.HandingOver != nil && s.HandingOver.ID() == id:
		return RoleHandingOver
	case s.Accepting != nil && s.Accepting.ID() == id:
		return RoleAccepting
	}
	return RoleNone
}

// Session returns the session with the given identifier
func (s *Sessions) Session(id string) *Session {
	for _, sess := range []*Session{s.Supervising, s.HandingOver, s.Accepting} {
		if sess != nil && sess.ID() == id {
			return sess
		}
	}
	return nil
}

// TrainDataAckPending reports whether the supervising centre has not yet
// acknowledged the train data
func (s *Sessions) TrainDataAckPending() bool {
	return s.Supervising != nil && s.Supervising.TrainDataAckPending
}

// CompleteHandover makes the accepting centre the supervising one. The
// previous centre keeps its session as handing-over centre until it is
// terminated.
func (s *Sessions) CompleteHandover() {
	if s.Accepting == nil {
		return
	}
	s.HandingOver = s.Supervising
	s.Supervising = s.Accepting
	s.Accepting = nil
	s.HandoverAt = nil
}

// Terminate closes the session with the given contact
func (s *Sessions) Terminate(c Contact) bool {
	switch {
	case s.Supervising != nil && s.Supervising.Contact == c:
		s.Supervising = nil
	case s.HandingOver != nil && s.HandingOver.Contact == c:
		s.HandingOver = nil
	case s.Accepting != nil && s.Accepting.Contact == c:
		s.Accepting = nil
		s.HandoverAt = nil
	default:
		return false
	}
	return true
}
