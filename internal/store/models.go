package store

import (
	"strings"
	"time"

	"github.com/debulol/dota2-inhouse/internal/engine"
)

type roomRow struct {
	ID          string `gorm:"primaryKey"`
	Code        string
	Name        string
	Status      string
	HostID      string
	MemberCount int
	Version     int
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

func (roomRow) TableName() string { return "rooms" }

type participantRow struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	Roles         string // comma separated
	Wins          int
	Losses        int
	StatsVisible  bool
	CurrentRoomID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (participantRow) TableName() string { return "participants" }

type membershipRow struct {
	RoomID        string `gorm:"primaryKey"`
	ParticipantID string `gorm:"primaryKey"`
	JoinOrder     int
	Roll          *int
	Ready         bool
	Captain       bool
	Side          *string
	PreferredSide *string
}

func (membershipRow) TableName() string { return "memberships" }

// memberView is a membership joined with its participant.
type memberView struct {
	RoomID        string
	ParticipantID string
	JoinOrder     int
	Roll          *int
	Ready         bool
	Captain       bool
	Side          *string
	PreferredSide *string

	Name         string
	Roles        string
	Wins         int
	Losses       int
	StatsVisible bool
}

type matchRow struct {
	ID        string `gorm:"primaryKey"`
	RoomID    string
	RoomCode  string
	RoomName  string
	Winner    string
	CreatedAt time.Time
}

func (matchRow) TableName() string { return "matches" }

type matchPlayerRow struct {
	MatchID       string `gorm:"primaryKey"`
	ParticipantID string `gorm:"primaryKey"`
	Side          string
}

func (matchPlayerRow) TableName() string { return "match_players" }

// Participant is the profile a player registers once and keeps across rooms.
type Participant struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Roles         []engine.Role `json:"roles"`
	Wins          int           `json:"wins"`
	Losses        int           `json:"losses"`
	StatsVisible  bool          `json:"stats_visible"`
	CurrentRoomID string        `json:"current_room_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ParticipantUpdate carries the profile fields to change; nil means keep.
type ParticipantUpdate struct {
	Name         *string       `json:"name,omitempty"`
	Roles        []engine.Role `json:"roles,omitempty"`
	StatsVisible *bool         `json:"stats_visible,omitempty"`
}

// MatchRecord is a finished match with both rosters.
type MatchRecord struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"room_id"`
	RoomCode  string      `json:"room_code"`
	RoomName  string      `json:"room_name"`
	Winner    engine.Side `json:"winner"`
	Radiant   []string    `json:"radiant"`
	Dire      []string    `json:"dire"`
	CreatedAt time.Time   `json:"created_at"`
}

func (r roomRow) toEngine() engine.Room {
	return engine.Room{
		ID:          r.ID,
		Code:        r.Code,
		Name:        r.Name,
		Status:      engine.Status(r.Status),
		HostID:      r.HostID,
		ExpiresAt:   r.ExpiresAt.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
		MemberCount: r.MemberCount,
		Version:     r.Version,
	}
}

func (v memberView) toEngine() engine.Member {
	m := engine.Member{
		ParticipantID: v.ParticipantID,
		JoinOrder:     v.JoinOrder,
		Ready:         v.Ready,
		Captain:       v.Captain,
		Player: engine.Player{
			Name:         v.Name,
			Roles:        decodeRoles(v.Roles),
			Wins:         v.Wins,
			Losses:       v.Losses,
			StatsVisible: v.StatsVisible,
		},
	}
	if v.Roll != nil {
		m.Roll = *v.Roll
	}
	if v.Side != nil {
		m.Side = engine.Side(*v.Side)
	}
	if v.PreferredSide != nil {
		m.PreferredSide = engine.Side(*v.PreferredSide)
	}
	return m
}

func (p participantRow) toParticipant() Participant {
	out := Participant{
		ID:           p.ID,
		Name:         p.Name,
		Roles:        decodeRoles(p.Roles),
		Wins:         p.Wins,
		Losses:       p.Losses,
		StatsVisible: p.StatsVisible,
		CreatedAt:    p.CreatedAt.UTC(),
	}
	if p.CurrentRoomID != nil {
		out.CurrentRoomID = *p.CurrentRoomID
	}
	return out
}

func (p participantRow) player() engine.Player {
	return engine.Player{
		Name:         p.Name,
		Roles:        decodeRoles(p.Roles),
		Wins:         p.Wins,
		Losses:       p.Losses,
		StatsVisible: p.StatsVisible,
	}
}

func encodeRoles(roles []engine.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func decodeRoles(s string) []engine.Role {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := make([]engine.Role, len(parts))
	for i, p := range parts {
		roles[i] = engine.Role(p)
	}
	return roles
}

func sidePtr(side engine.Side) *string {
	if side == engine.SideNone {
		return nil
	}
	s := string(side)
	return &s
}
