package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/constants"
	"github.com/debulol/dota2-inhouse/internal/engine"
	"github.com/debulol/dota2-inhouse/internal/types"
)

// Rooms is the part of the store a socket client may drive.
type Rooms interface {
	Snapshot(ctx context.Context, roomID string) (engine.State, error)
	SubmitRoll(ctx context.Context, roomID, participantID string) (int, error)
	Reroll(ctx context.Context, roomID, participantID string) error
	PickPlayer(ctx context.Context, roomID, captainID, targetID string) error
	SetPreference(ctx context.Context, roomID, participantID, side string) error
}

type Broker interface {
	Subscribe(ctx context.Context, roomID, clientID string, outbox chan types.Notification) error
	Unsubscribe(roomID, clientID string)
}

type Options struct {
	// OriginPatterns are passed to websocket.Accept; empty allows same origin only.
	OriginPatterns []string
}

type session struct {
	conn          *websocket.Conn
	rooms         Rooms
	roomID        string
	participantID string
	frames        chan types.ServerMessage
	log           *zap.Logger
}

// Handler serves /ws?room=<id>&participant=<id>. The socket receives a
// StateSnapshot frame followed by Change frames for every later version.
func Handler(rooms Rooms, broker Broker, opts Options, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		participantID := r.URL.Query().Get("participant")
		if roomID == "" || participantID == "" {
			http.Error(w, "missing room or participant", http.StatusBadRequest)
			return
		}

		st, err := rooms.Snapshot(r.Context(), roomID)
		if err != nil {
			rejectHandshake(w, err)
			return
		}
		if _, ok := st.Member(participantID); !ok {
			rejectHandshake(w, engine.ErrNotMember)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		clientID := uuid.NewString()
		outbox := make(chan types.Notification, constants.SubscriberBuffer)
		// Subscribe before taking the snapshot so no version falls in between.
		if err := broker.Subscribe(ctx, roomID, clientID, outbox); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "subscription unavailable")
			return
		}
		defer broker.Unsubscribe(roomID, clientID)

		s := &session{
			conn:          conn,
			rooms:         rooms,
			roomID:        roomID,
			participantID: participantID,
			frames:        make(chan types.ServerMessage, 8),
			log:           log.With(zap.String("room_id", roomID), zap.String("participant_id", participantID)),
		}
		s.log.Debug("client connected", zap.String("client_id", clientID))

		// The first frame is always the snapshot; changes queued meanwhile
		// wait in the outbox and are filtered by version.
		st, err = rooms.Snapshot(ctx, roomID)
		if errors.Is(err, engine.ErrRoomNotFound) {
			conn.Close(websocket.StatusNormalClosure, "room closed")
			return
		}
		if err != nil {
			s.log.Error("initial snapshot", zap.Error(err))
			conn.Close(websocket.StatusInternalError, "snapshot unavailable")
			return
		}
		if err := s.write(ctx, snapshotFrame(st)); err != nil {
			return
		}

		go func() {
			defer cancel()
			s.readLoop(ctx)
		}()
		s.writeLoop(ctx, outbox, st.Room.Version)
	}
}

func snapshotFrame(st engine.State) types.ServerMessage {
	return types.ServerMessage{Type: types.MsgStateSnapshot, Version: st.Room.Version, State: &st}
}

// writeLoop owns every write to the connection.
func (s *session) writeLoop(ctx context.Context, outbox <-chan types.Notification, last int) {
	for {
		select {
		case <-ctx.Done():
			s.conn.Close(websocket.StatusNormalClosure, "")
			return

		case msg := <-s.frames:
			if msg.Type == types.MsgStateSnapshot {
				if msg.Version < last {
					// older than a change already sent
					st, err := s.rooms.Snapshot(ctx, s.roomID)
					if err != nil {
						continue
					}
					msg = snapshotFrame(st)
				}
				last = msg.Version
			}
			if err := s.write(ctx, msg); err != nil {
				return
			}

		case n, ok := <-outbox:
			if !ok {
				s.conn.Close(websocket.StatusGoingAway, "subscription ended")
				return
			}
			if n.Version <= last {
				continue
			}
			last = n.Version
			if err := s.write(ctx, types.ServerMessage{Type: types.MsgChange, Version: n.Version, Notification: &n}); err != nil {
				return
			}
			if n.Deleted() {
				s.conn.Close(websocket.StatusNormalClosure, "room closed")
				return
			}
		}
	}
}

func (s *session) write(ctx context.Context, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("encode frame", zap.Error(err))
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, constants.WSWriteTimeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		s.log.Debug("write failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					s.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			s.fail(ctx, engine.ErrValidation)
			continue
		}
		if err := s.handle(ctx, cm); err != nil {
			s.fail(ctx, err)
		}
	}
}

func (s *session) handle(ctx context.Context, cm types.ClientMessage) error {
	cctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	switch cm.Type {
	case types.MsgRoll:
		_, err := s.rooms.SubmitRoll(cctx, s.roomID, s.participantID)
		return err
	case types.MsgReroll:
		return s.rooms.Reroll(cctx, s.roomID, s.participantID)
	case types.MsgPick:
		return s.rooms.PickPlayer(cctx, s.roomID, s.participantID, cm.Target)
	case types.MsgSetPreference:
		return s.rooms.SetPreference(cctx, s.roomID, s.participantID, cm.Side)
	case types.MsgResync:
		s.snapshot(cctx)
		return nil
	default:
		return engine.ErrUnsupportedCmd
	}
}

// snapshot queues the current state for the writer. It reports false when
// the room is gone.
func (s *session) snapshot(ctx context.Context) bool {
	st, err := s.rooms.Snapshot(ctx, s.roomID)
	if errors.Is(err, engine.ErrRoomNotFound) {
		return false
	}
	if err != nil {
		s.fail(ctx, err)
		return true
	}
	s.queue(ctx, snapshotFrame(st))
	return true
}

// fail reports err to this client only.
func (s *session) fail(ctx context.Context, err error) {
	msg := types.ServerMessage{Type: types.MsgError, Code: engine.CodeOf(err), Error: err.Error()}
	if engine.KindOf(err) == engine.KindInternal {
		s.log.Error("command failed", zap.Error(err))
		msg.Error = "internal error"
	}
	s.queue(ctx, msg)
}

func (s *session) queue(ctx context.Context, msg types.ServerMessage) {
	select {
	case s.frames <- msg:
	case <-ctx.Done():
	}
}

func rejectHandshake(w http.ResponseWriter, err error) {
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		http.Error(w, engine.CodeOf(err), http.StatusNotFound)
	case engine.KindValidation:
		http.Error(w, engine.CodeOf(err), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
