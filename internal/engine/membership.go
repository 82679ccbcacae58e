package engine

import (
	"slices"
	"time"
)

func join(s *State, cmd Command) ([]Event, error) {
	if _, ok := s.indexOf(cmd.Actor); ok {
		return nil, ErrAlreadyMember
	}
	if s.Room.Status != StatusWaiting {
		return nil, ErrRoomNotJoinable
	}
	if len(s.Members) >= MaxMembers {
		return nil, ErrRoomFull
	}

	order := 0
	for _, m := range s.Members {
		if m.JoinOrder >= order {
			order = m.JoinOrder + 1
		}
	}
	s.Members = append(s.Members, Member{
		ParticipantID: cmd.Actor,
		JoinOrder:     order,
		Player:        cmd.Player,
	})
	return []Event{{Type: EvtMemberJoined, ParticipantID: cmd.Actor, Value: order}}, nil
}

// leave removes participantID. Captaincies do not survive a change of the
// roster, and the host role passes to the earliest remaining joiner.
func leave(s *State, participantID string) ([]Event, error) {
	i, ok := s.indexOf(participantID)
	if !ok {
		return nil, nil
	}
	if s.Room.Status != StatusWaiting {
		return nil, ErrWrongPhase
	}

	var events []Event
	if hasCaptains(*s) {
		for j := range s.Members {
			s.Members[j].Captain = false
			s.Members[j].Side = SideNone
		}
		events = append(events, Event{Type: EvtCaptainsRevoked})
	}

	s.Members = slices.Delete(s.Members, i, i+1)
	events = append(events, Event{Type: EvtMemberLeft, ParticipantID: participantID})

	if len(s.Members) == 0 {
		return append(events, Event{Type: EvtRoomClosed}), nil
	}
	if s.Room.HostID == participantID {
		s.Room.HostID = s.Members[0].ParticipantID
		events = append(events, Event{Type: EvtHostChanged, ParticipantID: s.Room.HostID})
	}
	return events, nil
}

// expire empties a room whose horizon has passed, whatever its phase.
func expire(s *State, now time.Time) []Event {
	if now.Before(s.Room.ExpiresAt) {
		return nil
	}
	events := make([]Event, 0, len(s.Members)+1)
	for _, m := range s.Members {
		events = append(events, Event{Type: EvtMemberLeft, ParticipantID: m.ParticipantID})
	}
	s.Members = s.Members[:0]
	return append(events, Event{Type: EvtRoomClosed})
}

// Expired reports whether the room is past its horizon at now.
func (s State) Expired(now time.Time) bool {
	return !now.Before(s.Room.ExpiresAt)
}
