package lobby

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/types"
)

type Msg interface{ isLobbyMsg() }

// Publish fans a committed notification out to every subscriber.
type Publish struct {
	Notification types.Notification
}

func (Publish) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan types.Notification // where this client wants to receive notifications
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	RoomID     string
	Version    int // highest version seen
	NumClients int
}

// Lobby is the per-room fan-out actor. It holds no room state of its own;
// subscribers reconcile by version against snapshots read from the store.
type Lobby struct {
	roomID  string
	inbox   chan Msg
	version int
	clients map[string]chan types.Notification
	log     *zap.Logger

	mu     sync.RWMutex // guards closed against Send
	closed bool

	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLobby(parent context.Context, roomID string, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		roomID:  roomID,
		inbox:   make(chan Msg, 64),
		clients: make(map[string]chan types.Notification),
		log:     log.With(zap.String("room_id", roomID)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox

			case Leave:
				delete(l.clients, msg.ClientID)

			case Publish:
				n := msg.Notification
				if n.Version > l.version {
					l.version = n.Version
				}
				l.broadcast(n)
				if n.Deleted() {
					l.log.Debug("room deleted, closing lobby")
					l.shutdown()
					return
				}

			case GetState:
				msg.Reply <- View{
					RoomID:     l.roomID,
					Version:    l.version,
					NumClients: len(l.clients),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// shutdown closes every outbox, including those of joins still queued in the
// inbox, so no subscriber waits on a stopped lobby.
func (l *Lobby) shutdown() {
	l.cancel() // unblocks Send calls waiting on a full inbox
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	closed := make(map[chan types.Notification]struct{}, len(l.clients))
	for id, ch := range l.clients {
		close(ch) // no more notifications for this room
		closed[ch] = struct{}{}
		delete(l.clients, id)
	}
	for {
		select {
		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				if _, ok := closed[msg.Outbox]; !ok {
					close(msg.Outbox)
					closed[msg.Outbox] = struct{}{}
				}
			case GetState:
				select {
				case msg.Reply <- View{RoomID: l.roomID, Version: l.version}:
				default:
				}
			}
		default:
			return
		}
	}
}

func (l *Lobby) broadcast(n types.Notification) {
	for id, ch := range l.clients {
		select {
		case ch <- n:
		default:
			// Client is slow/full - drop them. It resyncs on reconnect.
			l.log.Info("dropping slow subscriber", zap.String("client_id", id))
			close(ch)
			delete(l.clients, id)
		}
	}
}

// Inbox exposes the inbox so the hub and tests can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers m unless the lobby has stopped.
func (l *Lobby) Send(m Msg) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed once the lobby has shut down.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) RoomID() string { return l.roomID }
