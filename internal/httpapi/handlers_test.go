package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/debulol/dota2-inhouse/internal/database"
	"github.com/debulol/dota2-inhouse/internal/engine"
	"github.com/debulol/dota2-inhouse/internal/hub"
	"github.com/debulol/dota2-inhouse/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(context.Background(), "sqlite", dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	h := hub.NewHub(context.Background(), nil)
	t.Cleanup(h.Shutdown)

	var (
		mu   sync.Mutex
		next = 100
	)
	s := store.New(db, nil, store.WithPublisher(h), store.WithRoller(func() int {
		mu.Lock()
		defer mu.Unlock()
		v := next
		next -= 10
		return v
	}))

	srv := httptest.NewServer(New(s, h, nil).Routes([]string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, actorID string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actorID != "" {
		req.Header.Set(participantHeader, actorID)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeInto[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func participants(t *testing.T, srv *httptest.Server, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		status, data := call(t, srv, http.MethodPost, "/api/v1/participants", "", map[string]any{
			"name":  fmt.Sprintf("player%d", i),
			"roles": []string{"support"},
		})
		require.Equal(t, http.StatusCreated, status, string(data))
		ids[i] = decodeInto[store.Participant](t, data).ID
	}
	return ids
}

func TestFullMatchOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	ids := participants(t, srv, engine.MaxMembers)

	status, data := call(t, srv, http.MethodPost, "/api/v1/rooms", ids[0], map[string]string{"name": "friday"})
	require.Equal(t, http.StatusCreated, status, string(data))
	created := decodeInto[roomCreated](t, data)
	base := "/api/v1/rooms/" + created.RoomID

	for _, id := range ids[1:] {
		status, data := call(t, srv, http.MethodPost, "/api/v1/rooms/join", id, joinRequest{Code: created.Code})
		require.Equal(t, http.StatusOK, status, string(data))
	}
	for _, id := range ids {
		status, data := call(t, srv, http.MethodPost, base+"/roll", id, nil)
		require.Equal(t, http.StatusOK, status, string(data))
	}

	status, data = call(t, srv, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, status)
	st := decodeInto[engine.State](t, data)
	require.True(t, engine.CaptainsAssigned(st))

	require.Equal(t, http.StatusNoContent, first(call(t, srv, http.MethodPost, base+"/draft", ids[0], nil)))
	for i := 2; i < len(ids); i++ {
		status, data := call(t, srv, http.MethodPost, base+"/picks", ids[i%2], targetRequest{ParticipantID: ids[i]})
		require.Equal(t, http.StatusNoContent, status, string(data))
	}
	require.Equal(t, http.StatusNoContent, first(call(t, srv, http.MethodPost, base+"/match", ids[0], nil)))

	status, data = call(t, srv, http.MethodPost, base+"/match/finish", ids[0], winnerRequest{Winner: "dire"})
	require.Equal(t, http.StatusOK, status, string(data))
	matchID := decodeInto[map[string]string](t, data)["match_id"]

	status, data = call(t, srv, http.MethodGet, "/api/v1/matches/"+matchID, "", nil)
	require.Equal(t, http.StatusOK, status)
	rec := decodeInto[store.MatchRecord](t, data)
	assert.Equal(t, engine.SideDire, rec.Winner)
	assert.Len(t, rec.Radiant, engine.TeamSize)
	assert.Len(t, rec.Dire, engine.TeamSize)

	status, data = call(t, srv, http.MethodGet, "/api/v1/participants/"+ids[1], "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decodeInto[store.Participant](t, data).Wins)

	status, data = call(t, srv, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, engine.StatusWaiting, decodeInto[engine.State](t, data).Room.Status)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	ids := participants(t, srv, 3)

	_, data := call(t, srv, http.MethodPost, "/api/v1/rooms", ids[0], nil)
	created := decodeInto[roomCreated](t, data)
	base := "/api/v1/rooms/" + created.RoomID
	require.Equal(t, http.StatusOK, first(call(t, srv, http.MethodPost, "/api/v1/rooms/join", ids[1], joinRequest{Code: created.Code})))

	tests := []struct {
		name       string
		method     string
		path       string
		actor      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"empty name", http.MethodPost, "/api/v1/participants", "", map[string]any{"name": " "}, http.StatusBadRequest, "invalid_input"},
		{"unknown role", http.MethodPost, "/api/v1/participants", "", map[string]any{"name": "x", "roles": []string{"jungle"}}, http.StatusBadRequest, "invalid_input"},
		{"missing header", http.MethodPost, "/api/v1/rooms", "", nil, http.StatusBadRequest, "invalid_input"},
		{"bad join code", http.MethodPost, "/api/v1/rooms/join", ids[2], joinRequest{Code: "ab"}, http.StatusBadRequest, "invalid_join_code"},
		{"unknown join code", http.MethodPost, "/api/v1/rooms/join", ids[2], joinRequest{Code: "ZZZZZZ"}, http.StatusNotFound, "room_not_found"},
		{"host already in room", http.MethodPost, "/api/v1/rooms", ids[1], nil, http.StatusPreconditionFailed, "invalid_host"},
		{"kick by non-host", http.MethodPost, base + "/kick", ids[1], targetRequest{ParticipantID: ids[0]}, http.StatusPreconditionFailed, "not_host"},
		{"draft before ready", http.MethodPost, base + "/draft", ids[0], nil, http.StatusPreconditionFailed, "not_ready"},
		{"bad side", http.MethodPut, base + "/preference", ids[1], sideRequest{Side: "north"}, http.StatusBadRequest, "invalid_side"},
		{"unknown room", http.MethodGet, "/api/v1/rooms/nope", "", nil, http.StatusNotFound, "room_not_found"},
		{"unknown match", http.MethodGet, "/api/v1/matches/nope", "", nil, http.StatusNotFound, "match_not_found"},
		{"delete while in room", http.MethodDelete, "/api/v1/participants/" + ids[1], "", nil, http.StatusPreconditionFailed, "participant_in_room"},
		{"captains by outsider", http.MethodPost, base + "/captains", ids[2], nil, http.StatusNotFound, "not_member"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := call(t, srv, tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.wantStatus, status, string(data))
			assert.Equal(t, tt.wantCode, decodeInto[errorBody](t, data).Error)
		})
	}
}

func TestLeaveAndListRooms(t *testing.T) {
	srv := newTestServer(t)
	ids := participants(t, srv, 2)

	_, data := call(t, srv, http.MethodPost, "/api/v1/rooms", ids[0], createRoomRequest{Name: "scrims"})
	created := decodeInto[roomCreated](t, data)

	status, data := call(t, srv, http.MethodGet, "/api/v1/rooms/code/"+created.Code, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "scrims", decodeInto[engine.State](t, data).Room.Name)

	status, data = call(t, srv, http.MethodGet, "/api/v1/rooms", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeInto[[]engine.Room](t, data), 1)

	require.Equal(t, http.StatusNoContent, first(call(t, srv, http.MethodPost, "/api/v1/rooms/"+created.RoomID+"/leave", ids[0], nil)))
	// leaving again is harmless
	require.Equal(t, http.StatusNoContent, first(call(t, srv, http.MethodPost, "/api/v1/rooms/"+created.RoomID+"/leave", ids[0], nil)))

	status, data = call(t, srv, http.MethodGet, "/api/v1/rooms", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeInto[[]engine.Room](t, data))

	require.Equal(t, http.StatusNoContent, first(call(t, srv, http.MethodDelete, "/api/v1/participants/"+ids[0], "", nil)))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	status, _ := call(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func first(status int, _ []byte) int { return status }
