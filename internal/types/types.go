package types

import "github.com/debulol/dota2-inhouse/internal/engine"

const (
	MsgRoll          = "Roll"
	MsgReroll        = "Reroll"
	MsgPick          = "Pick"
	MsgSetPreference = "SetPreference"
	MsgResync        = "Resync"

	MsgStateSnapshot = "StateSnapshot"
	MsgChange        = "Change"
	MsgError         = "Error"
)

type ClientMessage struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"` // participant id for Pick
	Side   string `json:"side,omitempty"`   // for SetPreference; empty clears
}

// Notification is one committed mutation of a room. Version is the room
// version after the mutation.
type Notification struct {
	RoomID  string          `json:"room_id"`
	Version int             `json:"version"`
	Changes []engine.Change `json:"changes"`
}

// Deleted reports whether the notification removes the room.
func (n Notification) Deleted() bool {
	for _, c := range n.Changes {
		if c.Entity == engine.EntityRoom && c.Op == engine.OpDelete {
			return true
		}
	}
	return false
}

type ServerMessage struct {
	Type         string        `json:"type"` // "StateSnapshot" | "Change" | "Error"
	Version      int           `json:"version,omitempty"`
	State        *engine.State `json:"state,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	Error        string        `json:"error,omitempty"`
	Code         string        `json:"code,omitempty"`
}
