package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/lobby"
	"github.com/debulol/dota2-inhouse/internal/types"
)

var ErrClosed = errors.New("hub: closed")

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

type EnsureLobby struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

// RemoveLobby stops the room's lobby. With IfIdle set it only does so when
// no subscriber is left.
type RemoveLobby struct {
	RoomID string
	IfIdle bool
}

// PublishMsg routes a notification to the room's lobby, if anyone listens.
type PublishMsg struct {
	Notification types.Notification
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (PublishMsg) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub owns one lobby per observed room, keyed by room id.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		log:     log.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.live(msg.RoomID) // May be nil

			case EnsureLobby:
				if lb := h.live(msg.RoomID); lb != nil {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.RoomID, h.log)
				h.lobbies[msg.RoomID] = lb
				msg.Reply <- lb

			case RemoveLobby:
				lb := h.lobbies[msg.RoomID]
				if lb == nil || (msg.IfIdle && !idle(lb)) {
					break
				}
				lb.Send(lobby.Shutdown{})
				delete(h.lobbies, msg.RoomID)

			case PublishMsg:
				n := msg.Notification
				lb := h.live(n.RoomID)
				if lb == nil {
					break
				}
				lb.Send(lobby.Publish{Notification: n})
				if n.Deleted() {
					delete(h.lobbies, n.RoomID)
				}

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

// live returns the room's lobby unless it has already stopped.
func (h *Hub) live(roomID string) *lobby.Lobby {
	lb := h.lobbies[roomID]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, roomID)
		return nil
	default:
		return lb
	}
}

// idle asks lb for its subscriber count. A stopped lobby counts as idle.
func idle(lb *lobby.Lobby) bool {
	reply := make(chan lobby.View, 1)
	if !lb.Send(lobby.GetState{Reply: reply}) {
		return true
	}
	select {
	case v := <-reply:
		return v.NumClients == 0
	case <-lb.Done():
		return true
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(lobby.Shutdown{})
	}
	clear(h.lobbies)
}

func (h *Hub) send(m HubMsg) error {
	if h.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	}
}

// Publish implements store.Publisher.
func (h *Hub) Publish(n types.Notification) {
	if err := h.send(PublishMsg{Notification: n}); err != nil {
		h.log.Debug("notification dropped", zap.String("room_id", n.RoomID), zap.Error(err))
	}
}

// Subscribe registers outbox for the room's notifications. The outbox is
// closed when the subscriber is dropped, the room is deleted or the hub stops.
func (h *Hub) Subscribe(ctx context.Context, roomID, clientID string, outbox chan types.Notification) error {
	// An idle lobby may be removed between lookup and join; the next
	// EnsureLobby then starts a fresh one.
	for attempt := 0; attempt < 3; attempt++ {
		reply := make(chan *lobby.Lobby, 1)
		if err := h.send(EnsureLobby{RoomID: roomID, Reply: reply}); err != nil {
			return err
		}

		var lb *lobby.Lobby
		select {
		case lb = <-reply:
		case <-ctx.Done():
			return ctx.Err()
		case <-h.ctx.Done():
			return ErrClosed
		}
		if lb.Send(lobby.Join{ClientID: clientID, Outbox: outbox}) {
			return nil
		}
	}
	return ErrClosed
}

func (h *Hub) Unsubscribe(roomID, clientID string) {
	reply := make(chan *lobby.Lobby, 1)
	if h.send(GetLobby{RoomID: roomID, Reply: reply}) != nil {
		return
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return
		}
		lb.Send(lobby.Leave{ClientID: clientID})
		_ = h.send(RemoveLobby{RoomID: roomID, IfIdle: true})
	case <-h.ctx.Done():
	}
}

// Shutdown stops every lobby and the hub itself.
func (h *Hub) Shutdown() {
	_ = h.send(ShutdownHub{})
}
