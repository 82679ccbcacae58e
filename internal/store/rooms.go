package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/debulol/dota2-inhouse/internal/constants"
	"github.com/debulol/dota2-inhouse/internal/engine"
)

var joinCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NormalizeCode uppercases a user supplied join code and checks its shape.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !joinCodePattern.MatchString(code) {
		return "", engine.ErrInvalidJoinCode
	}
	return code, nil
}

// CreateRoom opens a waiting room with hostID as its first member.
func (s *Store) CreateRoom(ctx context.Context, hostID, name string) (string, string, error) {
	if err := s.releaseExpired(ctx, hostID); err != nil {
		return "", "", err
	}

	for attempt := 1; attempt <= constants.CodeAttempts; attempt++ {
		out, err := s.createRoom(ctx, hostID, name)
		switch {
		case err == nil:
			s.publish(out)
			s.log.Info("room created",
				zap.String("room_id", out.after.Room.ID),
				zap.String("code", out.after.Room.Code),
				zap.String("host_id", hostID),
			)
			return out.after.Room.ID, out.after.Room.Code, nil
		case errors.Is(err, engine.ErrCodeConflict):
			s.log.Debug("join code taken, retrying", zap.Int("attempt", attempt))
			continue
		default:
			return "", "", err
		}
	}
	return "", "", engine.ErrRoomsUnavailable
}

func (s *Store) createRoom(ctx context.Context, hostID, name string) (outcome, error) {
	code, err := s.newCode()
	if err != nil {
		return outcome{}, fmt.Errorf("generate join code: %w", err)
	}

	var out outcome
	var purged []outcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		host, err := s.lockParticipant(tx, hostID)
		if err != nil {
			return err
		}
		if host.CurrentRoomID != nil {
			return engine.ErrInvalidHost
		}

		// An expired room may still hold the code until the sweeper runs.
		var holder roomRow
		err = tx.Where("code = ?", code).Take(&holder).Error
		switch {
		case err == nil:
			if !holder.ExpiresAt.After(s.now()) {
				p, err := s.expireLocked(tx, holder.ID)
				if err != nil {
					return err
				}
				purged = append(purged, p)
			} else {
				return engine.ErrCodeConflict
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("check join code: %w", err)
		}

		if strings.TrimSpace(name) == "" {
			name = host.Name + "'s room"
		}
		now := s.now()
		row := roomRow{
			ID:        uuid.NewString(),
			Code:      code,
			Name:      strings.TrimSpace(name),
			Status:    string(engine.StatusWaiting),
			HostID:    hostID,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return engine.ErrCodeConflict
			}
			return fmt.Errorf("insert room: %w", err)
		}

		out, err = s.apply(tx, engine.NewState(row.toEngine()), engine.Command{
			Type:   engine.CmdJoin,
			Actor:  hostID,
			Player: host.player(),
		})
		if errors.Is(err, engine.ErrAlreadyMember) {
			return engine.ErrInvalidHost
		}
		return err
	})
	if err != nil {
		return outcome{}, err
	}

	for _, p := range purged {
		s.publish(p)
	}
	out.before = engine.State{}
	return out, nil
}

// JoinRoom adds participantID to the room with the given join code.
func (s *Store) JoinRoom(ctx context.Context, code, participantID string) (string, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return "", err
	}
	if err := s.releaseExpired(ctx, participantID); err != nil {
		return "", err
	}

	var room roomRow
	err = s.db.WithContext(ctx).Where("code = ?", code).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", engine.ErrRoomNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find room: %w", err)
	}

	_, err = s.mutate(ctx, room.ID, func(tx *gorm.DB, st engine.State) (engine.Command, error) {
		p, err := s.lockParticipant(tx, participantID)
		if err != nil {
			return engine.Command{}, err
		}
		if p.CurrentRoomID != nil && *p.CurrentRoomID != room.ID {
			return engine.Command{}, engine.ErrAlreadyMember
		}
		return engine.Command{Type: engine.CmdJoin, Actor: participantID, Player: p.player()}, nil
	})
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

// LeaveRoom removes participantID from the room. Leaving a room one is not
// in, or one that no longer exists, succeeds.
func (s *Store) LeaveRoom(ctx context.Context, roomID, participantID string) error {
	_, err := s.mutate(ctx, roomID, func(*gorm.DB, engine.State) (engine.Command, error) {
		return engine.Command{Type: engine.CmdLeave, Actor: participantID}, nil
	})
	if errors.Is(err, engine.ErrRoomNotFound) {
		return nil
	}
	return err
}

func (s *Store) KickPlayer(ctx context.Context, roomID, hostID, targetID string) error {
	_, err := s.mutate(ctx, roomID, func(*gorm.DB, engine.State) (engine.Command, error) {
		return engine.Command{Type: engine.CmdKick, Actor: hostID, Target: targetID}, nil
	})
	return err
}

// Snapshot returns the room with its members in join order.
func (s *Store) Snapshot(ctx context.Context, roomID string) (engine.State, error) {
	var st engine.State
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		st, err = s.load(tx, roomID, false)
		return err
	})
	if err != nil {
		return engine.State{}, err
	}
	if st.Expired(s.now()) {
		return engine.State{}, engine.ErrRoomNotFound
	}
	return st, nil
}

func (s *Store) SnapshotByCode(ctx context.Context, code string) (engine.State, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return engine.State{}, err
	}
	var room roomRow
	err = s.db.WithContext(ctx).Select("id").Where("code = ?", code).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, engine.ErrRoomNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("find room: %w", err)
	}
	return s.Snapshot(ctx, room.ID)
}

// ListRooms returns live rooms, newest first.
func (s *Store) ListRooms(ctx context.Context) ([]engine.Room, error) {
	var rows []roomRow
	err := s.db.WithContext(ctx).
		Where("expires_at > ?", s.now()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := make([]engine.Room, len(rows))
	for i, r := range rows {
		rooms[i] = r.toEngine()
	}
	return rooms, nil
}

// SweepExpired deletes every room past its horizon and returns how many.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&roomRow{}).
		Where("expires_at <= ?", s.now()).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("find expired rooms: %w", err)
	}

	swept := 0
	for _, id := range ids {
		err := s.expire(ctx, id)
		switch {
		case err == nil:
			swept++
		case errors.Is(err, engine.ErrRoomNotFound), errors.Is(err, engine.ErrConflict):
			// deleted or touched by someone else meanwhile
		default:
			return swept, err
		}
	}
	return swept, nil
}

// RunSweeper calls SweepExpired every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("expired rooms swept", zap.Int("rooms", n))
			}
		}
	}
}

func (s *Store) expire(ctx context.Context, roomID string) error {
	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.expireLocked(tx, roomID)
		return err
	})
	if err != nil {
		return err
	}
	if len(out.events) == 0 {
		return engine.ErrConflict
	}
	s.publish(out)
	return nil
}

func (s *Store) expireLocked(tx *gorm.DB, roomID string) (outcome, error) {
	st, err := s.load(tx, roomID, true)
	if err != nil {
		return outcome{}, err
	}
	return s.apply(tx, st, engine.Command{Type: engine.CmdExpire, Now: s.now()})
}

// releaseExpired purges the participant's current room if it has expired, so
// that an abandoned room never blocks creating or joining another.
func (s *Store) releaseExpired(ctx context.Context, participantID string) error {
	var p participantRow
	err := s.db.WithContext(ctx).Select("id", "current_room_id").Where("id = ?", participantID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.ErrParticipantNotFound
	}
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}
	if p.CurrentRoomID == nil {
		return nil
	}

	var room roomRow
	err = s.db.WithContext(ctx).Select("id", "expires_at").Where("id = ?", *p.CurrentRoomID).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load current room: %w", err)
	}
	if room.ExpiresAt.After(s.now()) {
		return nil
	}
	if err := s.expire(ctx, room.ID); err != nil && !errors.Is(err, engine.ErrRoomNotFound) && !errors.Is(err, engine.ErrConflict) {
		return err
	}
	return nil
}

func (s *Store) lockParticipant(tx *gorm.DB, participantID string) (participantRow, error) {
	var p participantRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", participantID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return participantRow{}, engine.ErrParticipantNotFound
	}
	if err != nil {
		return participantRow{}, fmt.Errorf("load participant: %w", err)
	}
	return p, nil
}
