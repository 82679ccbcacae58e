package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/debulol/dota2-inhouse/internal/engine"
)

func command(cmd engine.Command) buildFunc {
	return func(*gorm.DB, engine.State) (engine.Command, error) { return cmd, nil }
}

// SubmitRoll rolls for participantID and returns the stored value. A member
// who already rolled this cycle gets the existing value back. Captains are
// assigned in the same transaction once the roster allows it.
func (s *Store) SubmitRoll(ctx context.Context, roomID, participantID string) (int, error) {
	out, err := s.mutate(ctx, roomID, command(engine.Command{
		Type:  engine.CmdRoll,
		Actor: participantID,
		Value: s.roll(),
	}))
	if err != nil {
		return 0, err
	}
	m, _ := out.after.Member(participantID)
	if engine.ContainsEvent(out.events, engine.EvtCaptainsReady) {
		s.log.Info("captains assigned", zap.String("room_id", roomID))
	}
	return m.Roll, nil
}

// Reroll clears the roll of a member caught in a captain tie.
func (s *Store) Reroll(ctx context.Context, roomID, participantID string) error {
	_, err := s.mutate(ctx, roomID, command(engine.Command{Type: engine.CmdReroll, Actor: participantID}))
	return err
}

// AssignCaptains is the explicit trigger for captain selection. It does
// nothing when both captains are already in place.
func (s *Store) AssignCaptains(ctx context.Context, roomID string) error {
	_, err := s.mutate(ctx, roomID, command(engine.Command{Type: engine.CmdAssignCaptains}))
	return err
}

func (s *Store) StartDraft(ctx context.Context, roomID, hostID string) error {
	_, err := s.mutate(ctx, roomID, command(engine.Command{Type: engine.CmdStartDraft, Actor: hostID}))
	return err
}

func (s *Store) PickPlayer(ctx context.Context, roomID, captainID, targetID string) error {
	_, err := s.mutate(ctx, roomID, command(engine.Command{Type: engine.CmdPick, Actor: captainID, Target: targetID}))
	return err
}

// SetPreference records an advisory side; an empty side clears it.
func (s *Store) SetPreference(ctx context.Context, roomID, participantID, side string) error {
	parsed, err := engine.ParseSide(side)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, roomID, command(engine.Command{Type: engine.CmdSetPreference, Actor: participantID, Side: parsed}))
	return err
}

func (s *Store) StartMatch(ctx context.Context, roomID, hostID string) error {
	_, err := s.mutate(ctx, roomID, command(engine.Command{Type: engine.CmdStartMatch, Actor: hostID}))
	return err
}

// FinishMatch records the result, updates standings and returns the room to
// waiting with the same members.
func (s *Store) FinishMatch(ctx context.Context, roomID, winner, hostID string) (string, error) {
	side, err := engine.ParseSide(winner)
	if err != nil {
		return "", err
	}
	if !side.Valid() {
		return "", engine.ErrInvalidSide
	}
	out, err := s.mutate(ctx, roomID, command(engine.Command{Type: engine.CmdFinishMatch, Actor: hostID, Side: side}))
	if err != nil {
		return "", err
	}
	s.log.Info("match finished",
		zap.String("room_id", roomID),
		zap.String("match_id", out.matchID),
		zap.String("winner", string(side)),
	)
	return out.matchID, nil
}

func (s *Store) Match(ctx context.Context, matchID string) (MatchRecord, error) {
	var row matchRow
	err := s.db.WithContext(ctx).Where("id = ?", matchID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MatchRecord{}, engine.ErrMatchNotFound
	}
	if err != nil {
		return MatchRecord{}, fmt.Errorf("load match: %w", err)
	}

	var players []matchPlayerRow
	if err := s.db.WithContext(ctx).Where("match_id = ?", matchID).Order("participant_id").Find(&players).Error; err != nil {
		return MatchRecord{}, fmt.Errorf("load match players: %w", err)
	}

	rec := MatchRecord{
		ID:        row.ID,
		RoomID:    row.RoomID,
		RoomCode:  row.RoomCode,
		RoomName:  row.RoomName,
		Winner:    engine.Side(row.Winner),
		CreatedAt: row.CreatedAt.UTC(),
	}
	for _, p := range players {
		switch engine.Side(p.Side) {
		case engine.SideRadiant:
			rec.Radiant = append(rec.Radiant, p.ParticipantID)
		case engine.SideDire:
			rec.Dire = append(rec.Dire, p.ParticipantID)
		}
	}
	return rec, nil
}
