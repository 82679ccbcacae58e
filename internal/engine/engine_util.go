package engine

import (
	"fmt"
	"slices"
	"strings"
)

func NewState(room Room) State {
	if room.Status == "" {
		room.Status = StatusWaiting
	}
	return State{Room: room, Members: []Member{}}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func (s State) Clone() State {
	out := State{Room: s.Room, Members: make([]Member, len(s.Members))}
	for i, m := range s.Members {
		m.Player.Roles = slices.Clone(m.Player.Roles)
		out.Members[i] = m
	}
	return out
}

// Member returns the membership of participantID.
func (s State) Member(participantID string) (Member, bool) {
	i, ok := s.indexOf(participantID)
	if !ok {
		return Member{}, false
	}
	return s.Members[i], true
}

func (s State) indexOf(participantID string) (int, bool) {
	for i, m := range s.Members {
		if m.ParticipantID == participantID {
			return i, true
		}
	}
	return -1, false
}

func (s State) SideCount(side Side) int {
	n := 0
	for _, m := range s.Members {
		if m.Side == side {
			n++
		}
	}
	return n
}

// Rosters returns the participant ids on each side in join order.
func (s State) Rosters() (radiant, dire []string) {
	for _, m := range s.Members {
		switch m.Side {
		case SideRadiant:
			radiant = append(radiant, m.ParticipantID)
		case SideDire:
			dire = append(dire, m.ParticipantID)
		}
	}
	return radiant, dire
}

func (s *State) setStatus(to Status) Event {
	from := s.Room.Status
	s.Room.Status = to
	return Event{Type: EvtStatusChanged, From: from, To: to}
}

func (side Side) Valid() bool {
	return side == SideRadiant || side == SideDire
}

func (side Side) Opponent() Side {
	switch side {
	case SideRadiant:
		return SideDire
	case SideDire:
		return SideRadiant
	default:
		return SideNone
	}
}

// ParseSide accepts "", "radiant" and "dire" in any case.
func ParseSide(s string) (Side, error) {
	switch side := Side(strings.ToLower(strings.TrimSpace(s))); side {
	case SideNone, SideRadiant, SideDire:
		return side, nil
	default:
		return SideNone, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCarry, RoleMid, RoleOfflane, RoleSupport:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
	}
}
