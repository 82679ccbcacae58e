package engine

import (
	"cmp"
	"slices"
)

func roll(s *State, cmd Command) ([]Event, error) {
	if s.Room.Status != StatusWaiting {
		return nil, ErrWrongPhase
	}
	i, ok := s.indexOf(cmd.Actor)
	if !ok {
		return nil, ErrNotMember
	}
	if s.Members[i].Roll != 0 {
		return nil, nil
	}
	if cmd.Value < RollMin || cmd.Value > RollMax {
		return nil, ErrInvalidRoll
	}

	s.Members[i].Roll = cmd.Value
	s.Members[i].Ready = true
	events := []Event{{Type: EvtRolled, ParticipantID: cmd.Actor, Value: cmd.Value}}

	Derive(s)
	if CaptainsEligible(*s) && !CaptainsAssigned(*s) {
		captains, err := assignCaptains(s)
		if err != nil {
			return nil, err
		}
		events = append(events, captains...)
	}
	return events, nil
}

func reroll(s *State, participantID string) ([]Event, error) {
	if s.Room.Status != StatusWaiting {
		return nil, ErrWrongPhase
	}
	i, ok := s.indexOf(participantID)
	if !ok {
		return nil, ErrNotMember
	}
	Derive(s)
	if !s.Members[i].MustReroll {
		return nil, ErrRerollNotAllowed
	}
	s.Members[i].Roll = 0
	s.Members[i].Ready = false
	return []Event{{Type: EvtRollCleared, ParticipantID: participantID}}, nil
}

// Ranked returns the members that have rolled, highest first. Equal rolls
// stay in join order for display; that order never decides a captaincy.
func Ranked(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Roll > 0 {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b Member) int {
		return cmp.Compare(b.Roll, a.Roll)
	})
	return out
}

// TiedForCaptain returns the members who must roll again before captains can
// be chosen: everyone sharing the highest roll, or, when the highest is
// unique, everyone sharing the second highest distinct roll.
func TiedForCaptain(members []Member) []string {
	ranked := Ranked(members)
	if len(ranked) < 2 {
		return nil
	}

	counts := make(map[int]int)
	var distinct []int
	for _, m := range ranked {
		if counts[m.Roll] == 0 {
			distinct = append(distinct, m.Roll)
		}
		counts[m.Roll]++
	}

	var tied int
	switch {
	case counts[distinct[0]] > 1:
		tied = distinct[0]
	case len(distinct) > 1 && counts[distinct[1]] > 1:
		tied = distinct[1]
	default:
		return nil
	}

	var ids []string
	for _, m := range ranked {
		if m.Roll == tied {
			ids = append(ids, m.ParticipantID)
		}
	}
	return ids
}

// Derive recomputes MustReroll. It is never stored.
func Derive(s *State) {
	tied := TiedForCaptain(s.Members)
	for i := range s.Members {
		s.Members[i].MustReroll = slices.Contains(tied, s.Members[i].ParticipantID)
	}
}
