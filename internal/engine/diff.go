package engine

import (
	"slices"
	"time"
)

type Entity string

const (
	EntityRoom       Entity = "room"
	EntityMembership Entity = "membership"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one row level change between two snapshots of a room.
type Change struct {
	Entity        Entity  `json:"entity"`
	Op            Op      `json:"event"`
	Room          *Room   `json:"room,omitempty"`
	Member        *Member `json:"member,omitempty"`
	ParticipantID string  `json:"participant_id,omitempty"`
}

// Diff lists the changes that turn before into after. A zero Room on either
// side stands for a room that does not exist (created or deleted).
func Diff(before, after State) []Change {
	var changes []Change

	for _, m := range before.Members {
		if _, ok := after.indexOf(m.ParticipantID); !ok {
			changes = append(changes, Change{Entity: EntityMembership, Op: OpDelete, ParticipantID: m.ParticipantID})
		}
	}
	for _, m := range after.Members {
		m := m
		i, ok := before.indexOf(m.ParticipantID)
		switch {
		case !ok:
			changes = append(changes, Change{Entity: EntityMembership, Op: OpInsert, Member: &m, ParticipantID: m.ParticipantID})
		case !memberEqual(before.Members[i], m):
			changes = append(changes, Change{Entity: EntityMembership, Op: OpUpdate, Member: &m, ParticipantID: m.ParticipantID})
		}
	}

	switch {
	case before.Room.ID == "" && after.Room.ID != "":
		r := after.Room
		changes = append(changes, Change{Entity: EntityRoom, Op: OpInsert, Room: &r})
	case before.Room.ID != "" && after.Room.ID == "":
		r := before.Room
		changes = append(changes, Change{Entity: EntityRoom, Op: OpDelete, Room: &r})
	case !roomEqual(before.Room, after.Room):
		r := after.Room
		changes = append(changes, Change{Entity: EntityRoom, Op: OpUpdate, Room: &r})
	}
	return changes
}

// Patch applies changes produced by Diff to s.
func Patch(s State, changes []Change) State {
	next := s.Clone()
	for _, c := range changes {
		switch c.Entity {
		case EntityRoom:
			switch c.Op {
			case OpDelete:
				return State{}
			default:
				if c.Room != nil {
					next.Room = *c.Room
				}
			}
		case EntityMembership:
			i, ok := next.indexOf(c.ParticipantID)
			switch {
			case c.Op == OpDelete:
				if ok {
					next.Members = slices.Delete(next.Members, i, i+1)
				}
			case c.Member == nil:
			case ok:
				next.Members[i] = *c.Member
			default:
				next.Members = append(next.Members, *c.Member)
			}
		}
	}
	slices.SortStableFunc(next.Members, func(a, b Member) int { return a.JoinOrder - b.JoinOrder })
	return next
}

func roomEqual(a, b Room) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) || !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	a.ExpiresAt, b.ExpiresAt = time.Time{}, time.Time{}
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	return a == b
}

func memberEqual(a, b Member) bool {
	pa, pb := a.Player, b.Player
	if pa.Name != pb.Name || pa.Wins != pb.Wins || pa.Losses != pb.Losses ||
		pa.StatsVisible != pb.StatsVisible || !slices.Equal(pa.Roles, pb.Roles) {
		return false
	}
	return a.ParticipantID == b.ParticipantID &&
		a.JoinOrder == b.JoinOrder &&
		a.Roll == b.Roll &&
		a.Ready == b.Ready &&
		a.Captain == b.Captain &&
		a.Side == b.Side &&
		a.PreferredSide == b.PreferredSide &&
		a.MustReroll == b.MustReroll
}
