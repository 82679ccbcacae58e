// Package replica keeps a client side copy of one room in step with the
// server's notifications.
package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/engine"
	"github.com/debulol/dota2-inhouse/internal/types"
)

type Phase int

const (
	Disconnected Phase = iota
	Syncing
	Live
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Syncing:
		return "syncing"
	case Live:
		return "live"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Source fetches an authoritative snapshot of a room.
type Source interface {
	Snapshot(ctx context.Context, roomID string) (engine.State, error)
}

// ErrRoomDeleted is returned once the server reports the room gone.
var ErrRoomDeleted = errors.New("replica: room deleted")

// Session is a read-only cache of a room. Mutations always go to the server;
// the cache only changes through snapshots and notifications.
type Session struct {
	mu      sync.Mutex
	roomID  string
	source  Source
	phase   Phase
	state   engine.State
	pending []types.Notification
	log     *zap.Logger
}

func NewSession(roomID string, source Source, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		roomID: roomID,
		source: source,
		log:    log.Named("replica").With(zap.String("room_id", roomID)),
	}
}

// Connect fetches a snapshot and goes live. Notifications that arrive
// meanwhile are held and replayed on top of the snapshot.
func (s *Session) Connect(ctx context.Context) error {
	for {
		s.mu.Lock()
		s.phase = Syncing
		s.state = engine.State{}
		s.pending = nil
		s.mu.Unlock()

		st, err := s.source.Snapshot(ctx, s.roomID)
		if err != nil {
			s.Disconnect()
			if engine.KindOf(err) == engine.KindNotFound {
				return ErrRoomDeleted
			}
			return fmt.Errorf("fetch snapshot: %w", err)
		}

		s.mu.Lock()
		if s.phase != Syncing {
			// disconnected while fetching
			s.mu.Unlock()
			return nil
		}
		s.install(st)
		gap, deleted := false, false
		for _, n := range s.pending {
			if n.Deleted() {
				deleted = true
				break
			}
			if gap = s.apply(n); gap {
				break
			}
		}
		s.pending = nil
		s.mu.Unlock()

		switch {
		case deleted:
			s.Disconnect()
			return ErrRoomDeleted
		case !gap:
			return nil
		}
	}
}

// Install replaces the cache with a snapshot received from the socket.
func (s *Session) Install(st engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(st)
}

func (s *Session) install(st engine.State) {
	s.state = st.Clone()
	s.phase = Live
	s.log.Debug("snapshot installed", zap.Int("version", st.Room.Version))
}

// Apply folds a notification into the cache. A notification that skips a
// version triggers a resync through the source.
func (s *Session) Apply(ctx context.Context, n types.Notification) error {
	if n.RoomID != s.roomID {
		return nil
	}

	s.mu.Lock()
	switch s.phase {
	case Disconnected:
		s.mu.Unlock()
		return nil
	case Syncing:
		s.pending = append(s.pending, n)
		s.mu.Unlock()
		return nil
	}

	if n.Deleted() {
		s.phase = Disconnected
		s.state = engine.State{}
		s.mu.Unlock()
		s.log.Info("room deleted")
		return ErrRoomDeleted
	}

	gap := s.apply(n)
	s.mu.Unlock()

	if gap {
		s.log.Info("version gap, resyncing", zap.Int("version", n.Version))
		return s.Connect(ctx)
	}
	return nil
}

// apply reports true on a gap. Callers hold mu.
func (s *Session) apply(n types.Notification) bool {
	local := s.state.Room.Version
	switch {
	case n.Version <= local:
		return false
	case n.Version == local+1:
		s.state = engine.Patch(s.state, n.Changes)
		return false
	default:
		return true
	}
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = Disconnected
	s.state = engine.State{}
	s.pending = nil
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// State returns a copy of the cache; ok is false unless the session is live.
func (s *Session) State() (engine.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Live {
		return engine.State{}, false
	}
	return s.state.Clone(), true
}
