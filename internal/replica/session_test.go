package replica

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debulol/dota2-inhouse/internal/engine"
	"github.com/debulol/dota2-inhouse/internal/types"
)

type fakeSource struct {
	states []engine.State
	calls  int
	err    error
}

func (f *fakeSource) Snapshot(context.Context, string) (engine.State, error) {
	f.calls++
	if f.err != nil {
		return engine.State{}, f.err
	}
	st := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return st, nil
}

func roomAt(version int, members ...string) engine.State {
	st := engine.NewState(engine.Room{ID: "room-1", Code: "ABC123", Version: version, MemberCount: len(members)})
	for i, id := range members {
		st.Members = append(st.Members, engine.Member{ParticipantID: id, JoinOrder: i + 1})
	}
	return st
}

func joined(version int, id string, order int) types.Notification {
	m := engine.Member{ParticipantID: id, JoinOrder: order}
	r := engine.Room{ID: "room-1", Code: "ABC123", Status: engine.StatusWaiting, Version: version, MemberCount: order}
	return types.Notification{
		RoomID:  "room-1",
		Version: version,
		Changes: []engine.Change{
			{Entity: engine.EntityMembership, Op: engine.OpInsert, Member: &m, ParticipantID: id},
			{Entity: engine.EntityRoom, Op: engine.OpUpdate, Room: &r},
		},
	}
}

func deleted(version int) types.Notification {
	return types.Notification{
		RoomID:  "room-1",
		Version: version,
		Changes: []engine.Change{{Entity: engine.EntityRoom, Op: engine.OpDelete}},
	}
}

func TestConnectGoesLive(t *testing.T) {
	src := &fakeSource{states: []engine.State{roomAt(2, "p1", "p2")}}
	s := NewSession("room-1", src, nil)
	assert.Equal(t, Disconnected, s.Phase())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, Live, s.Phase())

	st, ok := s.State()
	require.True(t, ok)
	assert.Equal(t, 2, st.Room.Version)
	assert.Len(t, st.Members, 2)
}

func TestApplyNotifications(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		sequence    []types.Notification
		wantVersion int
		wantMembers int
		wantFetches int
	}{
		{
			name:        "next version applied",
			sequence:    []types.Notification{joined(3, "p3", 3)},
			wantVersion: 3,
			wantMembers: 3,
			wantFetches: 1,
		},
		{
			name:        "duplicate ignored",
			sequence:    []types.Notification{joined(3, "p3", 3), joined(3, "p3", 3), joined(2, "p2", 2)},
			wantVersion: 3,
			wantMembers: 3,
			wantFetches: 1,
		},
		{
			name:        "gap resyncs",
			sequence:    []types.Notification{joined(5, "p5", 5)},
			wantVersion: 5,
			wantMembers: 4,
			wantFetches: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{states: []engine.State{roomAt(2, "p1", "p2"), roomAt(5, "p1", "p2", "p4", "p5")}}
			s := NewSession("room-1", src, nil)
			require.NoError(t, s.Connect(ctx))

			for _, n := range tt.sequence {
				require.NoError(t, s.Apply(ctx, n))
			}

			st, ok := s.State()
			require.True(t, ok)
			assert.Equal(t, tt.wantVersion, st.Room.Version)
			assert.Len(t, st.Members, tt.wantMembers)
			assert.Equal(t, tt.wantFetches, src.calls)
		})
	}
}

func TestRoomDeleteClearsCache(t *testing.T) {
	src := &fakeSource{states: []engine.State{roomAt(2, "p1")}}
	s := NewSession("room-1", src, nil)
	require.NoError(t, s.Connect(context.Background()))

	err := s.Apply(context.Background(), deleted(3))
	assert.ErrorIs(t, err, ErrRoomDeleted)
	assert.Equal(t, Disconnected, s.Phase())
	_, ok := s.State()
	assert.False(t, ok)
}

func TestOtherRoomsIgnored(t *testing.T) {
	src := &fakeSource{states: []engine.State{roomAt(2, "p1")}}
	s := NewSession("room-1", src, nil)
	require.NoError(t, s.Connect(context.Background()))

	n := joined(3, "p3", 2)
	n.RoomID = "room-2"
	require.NoError(t, s.Apply(context.Background(), n))
	st, _ := s.State()
	assert.Equal(t, 2, st.Room.Version)
}

func TestConnectFailures(t *testing.T) {
	s := NewSession("room-1", &fakeSource{err: engine.ErrRoomNotFound}, nil)
	assert.ErrorIs(t, s.Connect(context.Background()), ErrRoomDeleted)
	assert.Equal(t, Disconnected, s.Phase())

	boom := errors.New("boom")
	s = NewSession("room-1", &fakeSource{err: boom}, nil)
	assert.ErrorIs(t, s.Connect(context.Background()), boom)
	assert.Equal(t, Disconnected, s.Phase())
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1", r.Header.Get("X-Participant-ID"))
		switch r.URL.Path {
		case "/api/v1/rooms/room-1":
			_ = json.NewEncoder(w).Encode(roomAt(7, "p1"))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"room_not_found"}`))
		}
	}))
	defer srv.Close()

	src := HTTPSource{BaseURL: srv.URL, ParticipantID: "p1"}
	st, err := src.Snapshot(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 7, st.Room.Version)

	_, err = src.Snapshot(context.Background(), "room-2")
	assert.ErrorIs(t, err, engine.ErrRoomNotFound)
}

func TestClientFollowsSocket(t *testing.T) {
	frames := []types.ServerMessage{
		{Type: types.MsgStateSnapshot, Version: 2, State: ptr(roomAt(2, "p1", "p2"))},
		{Type: types.MsgChange, Version: 3, Notification: ptr(joined(3, "p3", 3))},
		{Type: types.MsgError, Code: "not_captain"},
		{Type: types.MsgChange, Version: 4, Notification: ptr(deleted(4))},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "room-1", r.URL.Query().Get("room"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for _, f := range frames {
			payload, _ := json.Marshal(f)
			if err := conn.Write(r.Context(), websocket.MessageText, payload); err != nil {
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "room closed")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := NewSession("room-1", &fakeSource{err: errors.New("unused")}, nil)
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), "p1", s, nil)
	require.NoError(t, err)
	require.NoError(t, c.Run(ctx))
	assert.Equal(t, Disconnected, s.Phase())
}

func ptr[T any](v T) *T { return &v }
