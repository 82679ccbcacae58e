package engine

// finishMatch records the result on every member and puts the room back into
// waiting with the same roster. Preferred sides survive the reset.
func finishMatch(s *State, actor string, winner Side) ([]Event, error) {
	if actor != s.Room.HostID {
		return nil, ErrNotHost
	}
	if s.Room.Status != StatusGaming {
		return nil, ErrWrongPhase
	}
	if !winner.Valid() {
		return nil, ErrInvalidSide
	}
	radiant, dire := s.Rosters()
	if len(radiant) != TeamSize || len(dire) != TeamSize {
		return nil, ErrTeamsNotFull
	}

	for i := range s.Members {
		m := &s.Members[i]
		switch m.Side {
		case winner:
			m.Player.Wins++
		case winner.Opponent():
			m.Player.Losses++
		}
		m.Roll = 0
		m.Ready = false
		m.Captain = false
		m.Side = SideNone
	}

	return []Event{
		{Type: EvtMatchFinished, Side: winner, Radiant: radiant, Dire: dire},
		{Type: EvtRoomReset},
		s.setStatus(StatusWaiting),
	}, nil
}
