package engine

func startDraft(s *State, actor string) ([]Event, error) {
	if actor != s.Room.HostID {
		return nil, ErrNotHost
	}
	if s.Room.Status != StatusWaiting {
		return nil, ErrWrongPhase
	}
	if len(s.Members) != MaxMembers || !CaptainsAssigned(*s) {
		return nil, ErrNotReady
	}
	for _, m := range s.Members {
		if m.Roll == 0 {
			return nil, ErrNotReady
		}
	}
	return []Event{s.setStatus(StatusDrafting)}, nil
}

// pick moves target onto the acting captain's side. Turn order is up to the
// captains; only the team size is enforced.
func pick(s *State, actor, target string) ([]Event, error) {
	if s.Room.Status != StatusDrafting {
		return nil, ErrWrongPhase
	}
	ci, ok := s.indexOf(actor)
	if !ok || !s.Members[ci].Captain || !s.Members[ci].Side.Valid() {
		return nil, ErrNotCaptain
	}
	ti, ok := s.indexOf(target)
	if !ok {
		return nil, ErrNotMember
	}
	if s.Members[ti].Side != SideNone {
		return nil, ErrAlreadyAssigned
	}

	side := s.Members[ci].Side
	if s.SideCount(side) >= TeamSize {
		return nil, ErrTeamFull
	}
	s.Members[ti].Side = side
	return []Event{{Type: EvtPlayerPicked, ParticipantID: target, Side: side}}, nil
}

func setPreference(s *State, actor string, side Side) ([]Event, error) {
	if side != SideNone && !side.Valid() {
		return nil, ErrInvalidSide
	}
	i, ok := s.indexOf(actor)
	if !ok {
		return nil, ErrNotMember
	}
	if s.Members[i].PreferredSide == side {
		return nil, nil
	}
	s.Members[i].PreferredSide = side
	return []Event{{Type: EvtPreferenceSet, ParticipantID: actor, Side: side}}, nil
}

func startMatch(s *State, actor string) ([]Event, error) {
	if actor != s.Room.HostID {
		return nil, ErrNotHost
	}
	if s.Room.Status != StatusDrafting {
		return nil, ErrWrongPhase
	}
	if s.SideCount(SideRadiant) != TeamSize || s.SideCount(SideDire) != TeamSize {
		return nil, ErrTeamsNotFull
	}
	return []Event{s.setStatus(StatusGaming)}, nil
}
