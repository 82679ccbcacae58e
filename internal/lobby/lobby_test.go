package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debulol/dota2-inhouse/internal/engine"
	"github.com/debulol/dota2-inhouse/internal/types"
)

// helper: receive one notification with a timeout so tests never hang
func recvNotification(t *testing.T, ch <-chan types.Notification, within time.Duration) types.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return n
	case <-time.After(within):
		t.Fatalf("timed out waiting for notification")
		return types.Notification{} // unreachable
	}
}

func recvClosed(t *testing.T, ch <-chan types.Notification, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("expected outbox to be closed within %v", within)
		}
	}
}

func recvView(t *testing.T, l *Lobby, within time.Duration) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func update(version int) types.Notification {
	return types.Notification{
		RoomID:  "room-1",
		Version: version,
		Changes: []engine.Change{{Entity: engine.EntityRoom, Op: engine.OpUpdate, Room: &engine.Room{ID: "room-1", Version: version}}},
	}
}

func TestLobby_Publish_FansOutToAllClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room-1", nil)

	a := make(chan types.Notification, 2)
	b := make(chan types.Notification, 2)
	l.Inbox() <- Join{ClientID: "a", Outbox: a}
	l.Inbox() <- Join{ClientID: "b", Outbox: b}

	l.Inbox() <- Publish{Notification: update(1)}

	assert.Equal(t, 1, recvNotification(t, a, 100*time.Millisecond).Version)
	assert.Equal(t, 1, recvNotification(t, b, 100*time.Millisecond).Version)

	view := recvView(t, l, 100*time.Millisecond)
	assert.Equal(t, 1, view.Version)
	assert.Equal(t, 2, view.NumClients)

	l.Inbox() <- Shutdown{}
	recvClosed(t, a, 100*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room-1", nil)

	slow := make(chan types.Notification, 1)
	l.Inbox() <- Join{ClientID: "slow", Outbox: slow}

	l.Inbox() <- Publish{Notification: update(1)}
	l.Inbox() <- Publish{Notification: update(2)}

	view := recvView(t, l, 100*time.Millisecond)
	assert.Equal(t, 0, view.NumClients, "expected slow client to be dropped")
	assert.Equal(t, 2, view.Version)

	assert.Equal(t, 1, recvNotification(t, slow, 100*time.Millisecond).Version)
	recvClosed(t, slow, 100*time.Millisecond)
}

func TestLobby_Leave_StopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room-1", nil)

	out := make(chan types.Notification, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	l.Inbox() <- Leave{ClientID: "c1"}
	l.Inbox() <- Publish{Notification: update(1)}

	view := recvView(t, l, 100*time.Millisecond)
	assert.Equal(t, 0, view.NumClients)
	assert.Empty(t, out)
}

func TestLobby_RoomDeleted_ShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, "room-1", nil)

	out := make(chan types.Notification, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	deleted := types.Notification{
		RoomID:  "room-1",
		Version: 7,
		Changes: []engine.Change{{Entity: engine.EntityRoom, Op: engine.OpDelete, Room: &engine.Room{ID: "room-1"}}},
	}
	l.Inbox() <- Publish{Notification: deleted}

	n := recvNotification(t, out, 100*time.Millisecond)
	require.True(t, n.Deleted())
	recvClosed(t, out, 100*time.Millisecond)

	select {
	case <-l.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("lobby did not stop after room deletion")
	}
	assert.False(t, l.Send(Publish{Notification: update(8)}))
}

func TestLobby_ParentCancel_ClosesOutboxes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	l := NewLobby(ctx, "room-1", nil)
	out := make(chan types.Notification, 1)
	require.True(t, l.Send(Join{ClientID: "c1", Outbox: out}))

	cancel()
	recvClosed(t, out, 200*time.Millisecond)
}

func TestLobby_QueuedJoinClosedOnShutdown(t *testing.T) {
	deleted := types.Notification{
		RoomID:  "room-1",
		Version: 2,
		Changes: []engine.Change{{Entity: engine.EntityRoom, Op: engine.OpDelete, Room: &engine.Room{ID: "room-1"}}},
	}

	for i := 0; i < 50; i++ {
		l := NewLobby(context.Background(), "room-1", nil)
		out := make(chan types.Notification, 4)

		// The join lands behind the delete, or is refused outright.
		l.Send(Publish{Notification: deleted})
		if !l.Send(Join{ClientID: "late", Outbox: out}) {
			continue
		}
		recvClosed(t, out, 200*time.Millisecond)
	}
}

func TestLobby_ParentCancel_RacingJoins(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		l := NewLobby(ctx, "room-1", nil)
		out := make(chan types.Notification, 1)

		go cancel()
		if l.Send(Join{ClientID: "c1", Outbox: out}) {
			recvClosed(t, out, 200*time.Millisecond)
		}
		<-l.Done()
	}
}
