package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/debulol/dota2-inhouse/internal/engine"
)

const maxNameLength = 32

func validateProfile(name *string, roles []engine.Role) error {
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" || len([]rune(n)) > maxNameLength {
			return fmt.Errorf("%w: name must be 1-%d characters", engine.ErrValidation, maxNameLength)
		}
		*name = n
	}
	for _, r := range roles {
		if _, err := engine.ParseRole(string(r)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateParticipant(ctx context.Context, name string, roles []engine.Role, statsVisible bool) (Participant, error) {
	if err := validateProfile(&name, roles); err != nil {
		return Participant{}, err
	}
	row := participantRow{
		ID:           uuid.NewString(),
		Name:         name,
		Roles:        encodeRoles(roles),
		StatsVisible: statsVisible,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Participant{}, fmt.Errorf("insert participant: %w", err)
	}
	return row.toParticipant(), nil
}

func (s *Store) Participant(ctx context.Context, id string) (Participant, error) {
	var row participantRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Participant{}, engine.ErrParticipantNotFound
	}
	if err != nil {
		return Participant{}, fmt.Errorf("load participant: %w", err)
	}
	return row.toParticipant(), nil
}

// UpdateParticipant changes profile fields. Members of a room see the new
// projection through a regular room notification.
func (s *Store) UpdateParticipant(ctx context.Context, id string, upd ParticipantUpdate) (Participant, error) {
	if err := validateProfile(upd.Name, upd.Roles); err != nil {
		return Participant{}, err
	}
	current, err := s.Participant(ctx, id)
	if err != nil {
		return Participant{}, err
	}

	fields := map[string]any{"updated_at": s.now()}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Roles != nil {
		fields["roles"] = encodeRoles(upd.Roles)
	}
	if upd.StatsVisible != nil {
		fields["stats_visible"] = *upd.StatsVisible
	}

	var (
		out     outcome
		updated participantRow
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Room first, then participant: the same lock order as joins.
		var before engine.State
		if current.CurrentRoomID != "" {
			st, err := s.load(tx, current.CurrentRoomID, true)
			if err != nil && !errors.Is(err, engine.ErrRoomNotFound) {
				return err
			}
			before = st
		}

		res := tx.Model(&participantRow{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("update participant: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return engine.ErrParticipantNotFound
		}
		if err := tx.Where("id = ?", id).Take(&updated).Error; err != nil {
			return fmt.Errorf("reload participant: %w", err)
		}

		if before.Room.ID == "" {
			return nil
		}
		if _, ok := before.Member(id); !ok {
			return nil
		}
		after, err := s.load(tx, before.Room.ID, false)
		if err != nil {
			return err
		}
		after.Room.Version = before.Room.Version + 1
		res = tx.Model(&roomRow{}).
			Where("id = ? AND version = ?", before.Room.ID, before.Room.Version).
			Update("version", after.Room.Version)
		if res.Error != nil {
			return fmt.Errorf("bump room version: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return engine.ErrConflict
		}
		out = outcome{before: before, after: after}
		return nil
	})
	if err != nil {
		return Participant{}, err
	}

	s.publish(out)
	return updated.toParticipant(), nil
}

// DeleteParticipant removes a profile. A participant occupying a live room
// must leave it first.
func (s *Store) DeleteParticipant(ctx context.Context, id string) error {
	if err := s.releaseExpired(ctx, id); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("id = ? AND current_room_id IS NULL", id).Delete(&participantRow{})
	if res.Error != nil {
		return fmt.Errorf("delete participant: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return engine.ErrParticipantInRoom
	}
	return nil
}
