package engine

import (
	"time"
)

const (
	MaxMembers = 10
	TeamSize   = 5
	RollMin    = 1
	RollMax    = 100
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusDrafting Status = "drafting"
	StatusGaming   Status = "gaming"
)

type Side string

const (
	SideNone    Side = ""
	SideRadiant Side = "radiant"
	SideDire    Side = "dire"
)

type Role string

const (
	RoleCarry   Role = "carry"
	RoleMid     Role = "mid"
	RoleOfflane Role = "offlane"
	RoleSupport Role = "support"
)

// Player is the participant projection carried on every membership.
type Player struct {
	Name         string `json:"name"`
	Roles        []Role `json:"roles,omitempty"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	StatsVisible bool   `json:"stats_visible"`
}

type Room struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	HostID      string    `json:"host_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	MemberCount int       `json:"member_count"`
	Version     int       `json:"version"`
}

type Member struct {
	ParticipantID string `json:"participant_id"`
	JoinOrder     int    `json:"join_order"`
	Roll          int    `json:"roll,omitempty"` // 0 until rolled
	Ready         bool   `json:"ready"`
	Captain       bool   `json:"captain"`
	Side          Side   `json:"side,omitempty"`
	PreferredSide Side   `json:"preferred_side,omitempty"`
	MustReroll    bool   `json:"must_reroll"`
	Player        Player `json:"player"`
}

// State is one room and its members in join order.
type State struct {
	Room    Room     `json:"room"`
	Members []Member `json:"members"`
}

type CommandType string

const (
	CmdJoin           CommandType = "Join"
	CmdLeave          CommandType = "Leave"
	CmdKick           CommandType = "Kick"
	CmdExpire         CommandType = "Expire"
	CmdRoll           CommandType = "Roll"
	CmdReroll         CommandType = "Reroll"
	CmdAssignCaptains CommandType = "AssignCaptains"
	CmdStartDraft     CommandType = "StartDraft"
	CmdPick           CommandType = "Pick"
	CmdSetPreference  CommandType = "SetPreference"
	CmdStartMatch     CommandType = "StartMatch"
	CmdFinishMatch    CommandType = "FinishMatch"
)

/*
	CmdJoin           -> EvtMemberJoined
	CmdLeave, CmdKick -> [EvtCaptainsRevoked] -> EvtMemberLeft -> EvtHostChanged | EvtRoomClosed
	CmdExpire         -> EvtMemberLeft... -> EvtRoomClosed
	CmdRoll           -> EvtRolled -> [EvtCaptainAssigned x2 -> EvtCaptainsReady]
	CmdReroll         -> EvtRollCleared
	CmdAssignCaptains -> EvtCaptainAssigned x2 -> EvtCaptainsReady
	CmdStartDraft     -> EvtStatusChanged (waiting -> drafting)
	CmdPick           -> EvtPlayerPicked
	CmdSetPreference  -> EvtPreferenceSet
	CmdStartMatch     -> EvtStatusChanged (drafting -> gaming)
	CmdFinishMatch    -> EvtMatchFinished -> EvtRoomReset -> EvtStatusChanged (gaming -> waiting)
*/

type Command struct {
	Type   CommandType
	Actor  string
	Target string
	Side   Side
	Value  int
	Player Player    // joiner projection for CmdJoin
	Now    time.Time // CmdExpire only
}

type EventType string

const (
	EvtMemberJoined    EventType = "MemberJoined"
	EvtMemberLeft      EventType = "MemberLeft"
	EvtHostChanged     EventType = "HostChanged"
	EvtRoomClosed      EventType = "RoomClosed"
	EvtRolled          EventType = "Rolled"
	EvtRollCleared     EventType = "RollCleared"
	EvtCaptainAssigned EventType = "CaptainAssigned"
	EvtCaptainsReady   EventType = "CaptainsReady"
	EvtCaptainsRevoked EventType = "CaptainsRevoked"
	EvtStatusChanged   EventType = "StatusChanged"
	EvtPlayerPicked    EventType = "PlayerPicked"
	EvtPreferenceSet   EventType = "PreferenceSet"
	EvtMatchFinished   EventType = "MatchFinished"
	EvtRoomReset       EventType = "RoomReset"
)

type Event struct {
	Type          EventType
	ParticipantID string
	Side          Side
	Value         int
	From          Status
	To            Status
	Radiant       []string
	Dire          []string
}

// Apply validates cmd against s and returns the resulting events and state.
// s is never modified. A nil event slice with a nil error means the command
// was a no-op (already left, already rolled, ...).
func Apply(s State, cmd Command) ([]Event, State, error) {
	next := s.Clone()

	var (
		events []Event
		err    error
	)

	switch cmd.Type {
	case CmdJoin:
		events, err = join(&next, cmd)
	case CmdLeave:
		events, err = leave(&next, cmd.Actor)
	case CmdKick:
		if cmd.Actor != s.Room.HostID {
			return nil, s, ErrNotHost
		}
		events, err = leave(&next, cmd.Target)
	case CmdExpire:
		events = expire(&next, cmd.Now)
	case CmdRoll:
		events, err = roll(&next, cmd)
	case CmdReroll:
		events, err = reroll(&next, cmd.Actor)
	case CmdAssignCaptains:
		events, err = selectCaptains(&next)
	case CmdStartDraft:
		events, err = startDraft(&next, cmd.Actor)
	case CmdPick:
		events, err = pick(&next, cmd.Actor, cmd.Target)
	case CmdSetPreference:
		events, err = setPreference(&next, cmd.Actor, cmd.Side)
	case CmdStartMatch:
		events, err = startMatch(&next, cmd.Actor)
	case CmdFinishMatch:
		events, err = finishMatch(&next, cmd.Actor, cmd.Side)
	default:
		return nil, s, ErrUnsupportedCmd
	}

	if err != nil {
		return nil, s, err
	}
	if len(events) == 0 {
		return nil, s, nil
	}

	next.Room.MemberCount = len(next.Members)
	next.Room.Version++
	Derive(&next)
	return events, next, nil
}

// Reduce replays events onto s. It is the inverse view of Apply used by
// tests and by anything holding an event log.
func Reduce(s State, events []Event) State {
	next := s.Clone()
	for _, e := range events {
		switch e.Type {
		case EvtMemberJoined:
			next.Members = append(next.Members, Member{ParticipantID: e.ParticipantID, JoinOrder: e.Value})
		case EvtMemberLeft:
			if i, ok := next.indexOf(e.ParticipantID); ok {
				next.Members = append(next.Members[:i], next.Members[i+1:]...)
			}
		case EvtHostChanged:
			next.Room.HostID = e.ParticipantID
		case EvtRolled:
			if i, ok := next.indexOf(e.ParticipantID); ok {
				next.Members[i].Roll = e.Value
				next.Members[i].Ready = true
			}
		case EvtRollCleared:
			if i, ok := next.indexOf(e.ParticipantID); ok {
				next.Members[i].Roll = 0
				next.Members[i].Ready = false
			}
		case EvtCaptainAssigned:
			if i, ok := next.indexOf(e.ParticipantID); ok {
				next.Members[i].Captain = true
				next.Members[i].Side = e.Side
			}
		case EvtCaptainsRevoked:
			for i := range next.Members {
				next.Members[i].Captain = false
				next.Members[i].Side = SideNone
			}
		case EvtPlayerPicked:
			if i, ok := next.indexOf(e.ParticipantID); ok {
				next.Members[i].Side = e.Side
			}
		case EvtPreferenceSet:
			if i, ok := next.indexOf(e.ParticipantID); ok {
				next.Members[i].PreferredSide = e.Side
			}
		case EvtStatusChanged:
			next.Room.Status = e.To
		case EvtMatchFinished:
			for i, m := range next.Members {
				switch m.Side {
				case e.Side:
					next.Members[i].Player.Wins++
				case e.Side.Opponent():
					next.Members[i].Player.Losses++
				}
			}
		case EvtRoomReset:
			for i := range next.Members {
				next.Members[i].Roll = 0
				next.Members[i].Ready = false
				next.Members[i].Captain = false
				next.Members[i].Side = SideNone
			}
		}
	}
	next.Room.MemberCount = len(next.Members)
	Derive(&next)
	return next
}
