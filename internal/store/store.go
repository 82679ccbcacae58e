package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/debulol/dota2-inhouse/internal/constants"
	"github.com/debulol/dota2-inhouse/internal/database"
	"github.com/debulol/dota2-inhouse/internal/engine"
	"github.com/debulol/dota2-inhouse/internal/types"
)

// Publisher receives one notification per committed room mutation.
type Publisher interface {
	Publish(types.Notification)
}

type nopPublisher struct{}

func (nopPublisher) Publish(types.Notification) {}

// Store is the authoritative room state. Every mutation runs the engine
// reducer inside one transaction and publishes after commit.
type Store struct {
	db      *gorm.DB
	log     *zap.Logger
	pub     Publisher
	roll    func() int
	newCode func() (string, error)
	now     func() time.Time
	ttl     time.Duration
}

type Option func(*Store)

func WithPublisher(p Publisher) Option { return func(s *Store) { s.pub = p } }

// WithRoller replaces the uniform [1,100] roll source.
func WithRoller(roll func() int) Option { return func(s *Store) { s.roll = roll } }

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.newCode = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = func() time.Time { return now().UTC().Truncate(time.Second) } }
}

func WithRoomTTL(ttl time.Duration) Option { return func(s *Store) { s.ttl = ttl } }

func New(db *gorm.DB, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		db:   db,
		log:  log.Named("store"),
		pub:  nopPublisher{},
		roll: func() int { return rand.Intn(engine.RollMax) + engine.RollMin },
		newCode: func() (string, error) {
			return gonanoid.Generate(constants.JoinCodeAlphabet, constants.JoinCodeLength)
		},
		now: database.Now,
		ttl: constants.DefaultRoomTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome is what one applied command did.
type outcome struct {
	before  engine.State
	after   engine.State
	events  []engine.Event
	matchID string
	expired bool
}

type buildFunc func(tx *gorm.DB, st engine.State) (engine.Command, error)

// mutate locks the room, builds a command from the locked state and applies
// it. An expired room is purged instead and reported as not found.
func (s *Store) mutate(ctx context.Context, roomID string, build buildFunc) (outcome, error) {
	var out outcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := s.load(tx, roomID, true)
		if err != nil {
			return err
		}

		cmd := engine.Command{Type: engine.CmdExpire, Now: s.now()}
		if !st.Expired(cmd.Now) {
			if cmd, err = build(tx, st); err != nil {
				return err
			}
		}

		out, err = s.apply(tx, st, cmd)
		return err
	})
	if err != nil {
		return outcome{}, err
	}

	s.publish(out)
	if out.expired {
		return out, engine.ErrRoomNotFound
	}
	return out, nil
}

func (s *Store) apply(tx *gorm.DB, st engine.State, cmd engine.Command) (outcome, error) {
	events, next, err := engine.Apply(st, cmd)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{before: st, after: next, events: events, expired: cmd.Type == engine.CmdExpire}
	if len(events) == 0 {
		return out, nil
	}
	if out.matchID, err = s.persist(tx, st, next, events); err != nil {
		return outcome{}, err
	}
	return out, nil
}

// load reads one consistent snapshot of a room. lock takes the row lock used
// to serialize writers on postgres; sqlite ignores it.
func (s *Store) load(tx *gorm.DB, roomID string, lock bool) (engine.State, error) {
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var room roomRow
	if err := q.Where("id = ?", roomID).Take(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.State{}, engine.ErrRoomNotFound
		}
		return engine.State{}, fmt.Errorf("load room: %w", err)
	}

	var views []memberView
	err := tx.Table("memberships AS m").
		Select("m.room_id, m.participant_id, m.join_order, m.roll, m.ready, m.captain, m.side, m.preferred_side, " +
			"p.name, p.roles, p.wins, p.losses, p.stats_visible").
		Joins("JOIN participants AS p ON p.id = m.participant_id").
		Where("m.room_id = ?", roomID).
		Order("m.join_order").
		Scan(&views).Error
	if err != nil {
		return engine.State{}, fmt.Errorf("load members: %w", err)
	}

	st := engine.NewState(room.toEngine())
	for _, v := range views {
		st.Members = append(st.Members, v.toEngine())
	}
	engine.Derive(&st)
	return st, nil
}

// persist writes events with guarded statements and bumps the room version.
// Any guard that matches no row means another writer got there first.
func (s *Store) persist(tx *gorm.DB, before, after engine.State, events []engine.Event) (string, error) {
	roomID := before.Room.ID
	now := s.now()
	var matchID string

	guard := func(res *gorm.DB, what string) error {
		if res.Error != nil {
			return fmt.Errorf("%s: %w", what, res.Error)
		}
		if res.RowsAffected == 0 {
			return engine.ErrConflict
		}
		return nil
	}
	member := func(participantID string) *gorm.DB {
		return tx.Model(&membershipRow{}).Where("room_id = ? AND participant_id = ?", roomID, participantID)
	}

	for _, e := range events {
		var err error
		switch e.Type {
		case engine.EvtMemberJoined:
			row := membershipRow{RoomID: roomID, ParticipantID: e.ParticipantID, JoinOrder: e.Value}
			if err = tx.Create(&row).Error; err != nil {
				if isUniqueViolation(err) {
					return "", engine.ErrAlreadyMember
				}
				return "", fmt.Errorf("insert membership: %w", err)
			}
			res := tx.Model(&participantRow{}).
				Where("id = ? AND current_room_id IS NULL", e.ParticipantID).
				Updates(map[string]any{"current_room_id": roomID, "updated_at": now})
			if res.Error == nil && res.RowsAffected == 0 {
				return "", engine.ErrAlreadyMember
			}
			err = guard(res, "claim participant")

		case engine.EvtMemberLeft:
			err = guard(member(e.ParticipantID).Delete(&membershipRow{}), "delete membership")
			if err == nil {
				err = tx.Model(&participantRow{}).
					Where("id = ? AND current_room_id = ?", e.ParticipantID, roomID).
					Updates(map[string]any{"current_room_id": nil, "updated_at": now}).Error
			}

		case engine.EvtRolled:
			err = guard(member(e.ParticipantID).Where("roll IS NULL").
				Updates(map[string]any{"roll": e.Value, "ready": true}), "store roll")

		case engine.EvtRollCleared:
			err = guard(member(e.ParticipantID).Where("roll IS NOT NULL").
				Updates(map[string]any{"roll": nil, "ready": false}), "clear roll")

		case engine.EvtCaptainAssigned:
			err = guard(member(e.ParticipantID).Where("side IS NULL").
				Updates(map[string]any{"captain": true, "side": string(e.Side)}), "assign captain")

		case engine.EvtCaptainsRevoked:
			err = tx.Model(&membershipRow{}).Where("room_id = ?", roomID).
				Updates(map[string]any{"captain": false, "side": nil}).Error

		case engine.EvtPlayerPicked:
			err = guard(member(e.ParticipantID).Where("side IS NULL").
				Update("side", string(e.Side)), "pick player")

		case engine.EvtPreferenceSet:
			err = guard(member(e.ParticipantID).
				Update("preferred_side", sidePtr(e.Side)), "set preference")

		case engine.EvtMatchFinished:
			matchID, err = s.recordMatch(tx, before.Room, e, now)

		case engine.EvtRoomReset:
			err = tx.Model(&membershipRow{}).Where("room_id = ?", roomID).
				Updates(map[string]any{"roll": nil, "ready": false, "captain": false, "side": nil}).Error

		case engine.EvtHostChanged, engine.EvtStatusChanged, engine.EvtCaptainsReady, engine.EvtRoomClosed:
			// room row, written below
		}
		if err != nil {
			return "", err
		}
	}

	if engine.ContainsEvent(events, engine.EvtRoomClosed) {
		res := tx.Where("id = ? AND version = ?", roomID, before.Room.Version).Delete(&roomRow{})
		return matchID, guard(res, "delete room")
	}

	res := tx.Model(&roomRow{}).
		Where("id = ? AND version = ?", roomID, before.Room.Version).
		Updates(map[string]any{
			"status":       string(after.Room.Status),
			"host_id":      after.Room.HostID,
			"member_count": len(after.Members),
			"version":      after.Room.Version,
		})
	return matchID, guard(res, "bump room version")
}

func (s *Store) recordMatch(tx *gorm.DB, room engine.Room, e engine.Event, now time.Time) (string, error) {
	match := matchRow{
		ID:        uuid.NewString(),
		RoomID:    room.ID,
		RoomCode:  room.Code,
		RoomName:  room.Name,
		Winner:    string(e.Side),
		CreatedAt: now,
	}
	if err := tx.Create(&match).Error; err != nil {
		return "", fmt.Errorf("insert match: %w", err)
	}

	players := make([]matchPlayerRow, 0, len(e.Radiant)+len(e.Dire))
	for _, id := range e.Radiant {
		players = append(players, matchPlayerRow{MatchID: match.ID, ParticipantID: id, Side: string(engine.SideRadiant)})
	}
	for _, id := range e.Dire {
		players = append(players, matchPlayerRow{MatchID: match.ID, ParticipantID: id, Side: string(engine.SideDire)})
	}
	if err := tx.Create(&players).Error; err != nil {
		return "", fmt.Errorf("insert match players: %w", err)
	}

	winners, losers := e.Radiant, e.Dire
	if e.Side == engine.SideDire {
		winners, losers = losers, winners
	}
	if err := tx.Model(&participantRow{}).Where("id IN ?", winners).
		Updates(map[string]any{"wins": gorm.Expr("wins + 1"), "updated_at": now}).Error; err != nil {
		return "", fmt.Errorf("count wins: %w", err)
	}
	if err := tx.Model(&participantRow{}).Where("id IN ?", losers).
		Updates(map[string]any{"losses": gorm.Expr("losses + 1"), "updated_at": now}).Error; err != nil {
		return "", fmt.Errorf("count losses: %w", err)
	}
	return match.ID, nil
}

// publish announces a committed outcome. Outcomes that did not move the
// room version changed nothing.
func (s *Store) publish(out outcome) {
	if out.after.Room.Version == out.before.Room.Version {
		return
	}
	after := out.after
	if engine.ContainsEvent(out.events, engine.EvtRoomClosed) {
		after = engine.State{}
	}
	roomID := out.before.Room.ID
	if roomID == "" {
		roomID = out.after.Room.ID
	}
	n := types.Notification{
		RoomID:  roomID,
		Version: out.after.Room.Version,
		Changes: engine.Diff(out.before, after),
	}
	s.log.Debug("room changed",
		zap.String("room_id", roomID),
		zap.Int("version", n.Version),
		zap.Int("changes", len(n.Changes)),
	)
	s.pub.Publish(n)
}

// isUniqueViolation recognises unique constraint failures from either driver,
// translated or not.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
