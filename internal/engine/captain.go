package engine

// CaptainsEligible reports whether the roster can produce two captains: a
// full waiting room where everyone rolled and nobody is tied.
func CaptainsEligible(s State) bool {
	if s.Room.Status != StatusWaiting || len(s.Members) != MaxMembers {
		return false
	}
	for _, m := range s.Members {
		if !m.Ready || m.Roll == 0 || m.MustReroll {
			return false
		}
	}
	return true
}

// CaptainsAssigned reports whether both sides have a captain.
func CaptainsAssigned(s State) bool {
	var radiant, dire bool
	for _, m := range s.Members {
		if !m.Captain {
			continue
		}
		switch m.Side {
		case SideRadiant:
			radiant = true
		case SideDire:
			dire = true
		}
	}
	return radiant && dire
}

func hasCaptains(s State) bool {
	for _, m := range s.Members {
		if m.Captain {
			return true
		}
	}
	return false
}

func selectCaptains(s *State) ([]Event, error) {
	if CaptainsAssigned(*s) {
		return nil, nil
	}
	Derive(s)
	if !CaptainsEligible(*s) {
		return nil, ErrNotReady
	}
	return assignCaptains(s)
}

// assignCaptains gives the highest roll radiant and the second highest dire.
// A member that already holds the other side means the state was written by
// someone else in between.
func assignCaptains(s *State) ([]Event, error) {
	ranked := Ranked(s.Members)
	if len(ranked) < 2 {
		return nil, ErrNotReady
	}

	var events []Event
	for _, c := range []struct {
		id   string
		side Side
	}{
		{ranked[0].ParticipantID, SideRadiant},
		{ranked[1].ParticipantID, SideDire},
	} {
		i, _ := s.indexOf(c.id)
		m := &s.Members[i]
		switch {
		case m.Captain && m.Side == c.side:
			continue
		case m.Side != SideNone:
			return nil, ErrConflict
		}
		m.Captain = true
		m.Side = c.side
		events = append(events, Event{Type: EvtCaptainAssigned, ParticipantID: c.id, Side: c.side})
	}
	return append(events, Event{Type: EvtCaptainsReady}), nil
}
