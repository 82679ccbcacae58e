package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/debulol/dota2-inhouse/internal/engine"
	"github.com/debulol/dota2-inhouse/internal/store"
)

const participantHeader = "X-Participant-ID"

// Rooms is the store surface the HTTP API drives.
type Rooms interface {
	CreateParticipant(ctx context.Context, name string, roles []engine.Role, statsVisible bool) (store.Participant, error)
	Participant(ctx context.Context, id string) (store.Participant, error)
	UpdateParticipant(ctx context.Context, id string, upd store.ParticipantUpdate) (store.Participant, error)
	DeleteParticipant(ctx context.Context, id string) error

	CreateRoom(ctx context.Context, hostID, name string) (string, string, error)
	JoinRoom(ctx context.Context, code, participantID string) (string, error)
	LeaveRoom(ctx context.Context, roomID, participantID string) error
	KickPlayer(ctx context.Context, roomID, hostID, targetID string) error
	Snapshot(ctx context.Context, roomID string) (engine.State, error)
	SnapshotByCode(ctx context.Context, code string) (engine.State, error)
	ListRooms(ctx context.Context) ([]engine.Room, error)

	SubmitRoll(ctx context.Context, roomID, participantID string) (int, error)
	Reroll(ctx context.Context, roomID, participantID string) error
	AssignCaptains(ctx context.Context, roomID string) error
	StartDraft(ctx context.Context, roomID, hostID string) error
	PickPlayer(ctx context.Context, roomID, captainID, targetID string) error
	SetPreference(ctx context.Context, roomID, participantID, side string) error
	StartMatch(ctx context.Context, roomID, hostID string) error
	FinishMatch(ctx context.Context, roomID, winner, hostID string) (string, error)
	Match(ctx context.Context, matchID string) (store.MatchRecord, error)
}

func actor(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(participantHeader))
	if id == "" {
		return "", fmt.Errorf("%w: missing %s header", engine.ErrValidation, participantHeader)
	}
	return id, nil
}

type createParticipantRequest struct {
	Name         string        `json:"name"`
	Roles        []engine.Role `json:"roles"`
	StatsVisible *bool         `json:"stats_visible"`
}

func (a *API) createParticipant(w http.ResponseWriter, r *http.Request) {
	var req createParticipantRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	visible := true
	if req.StatsVisible != nil {
		visible = *req.StatsVisible
	}
	p, err := a.rooms.CreateParticipant(r.Context(), req.Name, req.Roles, visible)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) getParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := a.rooms.Participant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updateParticipant(w http.ResponseWriter, r *http.Request) {
	var upd store.ParticipantUpdate
	if err := decode(r, &upd); err != nil {
		a.writeError(w, r, err)
		return
	}
	p, err := a.rooms.UpdateParticipant(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deleteParticipant(w http.ResponseWriter, r *http.Request) {
	if err := a.rooms.DeleteParticipant(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createRoomRequest struct {
	Name string `json:"name"`
}

type roomCreated struct {
	RoomID string `json:"room_id"`
	Code   string `json:"code"`
}

func (a *API) createRoom(w http.ResponseWriter, r *http.Request) {
	hostID, err := actor(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req createRoomRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	roomID, code, err := a.rooms.CreateRoom(r.Context(), hostID, req.Name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomCreated{RoomID: roomID, Code: code})
}

func (a *API) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.rooms.ListRooms(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (a *API) getRoom(w http.ResponseWriter, r *http.Request) {
	st, err := a.rooms.Snapshot(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) getRoomByCode(w http.ResponseWriter, r *http.Request) {
	st, err := a.rooms.SnapshotByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type joinRequest struct {
	Code string `json:"code"`
}

func (a *API) joinRoom(w http.ResponseWriter, r *http.Request) {
	participantID, err := actor(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req joinRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	roomID, err := a.rooms.JoinRoom(r.Context(), req.Code, participantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roomCreated{RoomID: roomID, Code: strings.ToUpper(strings.TrimSpace(req.Code))})
}

type targetRequest struct {
	ParticipantID string `json:"participant_id"`
}

type sideRequest struct {
	Side string `json:"side"`
}

type winnerRequest struct {
	Winner string `json:"winner"`
}

// roomAction adapts an operation that needs the room id and the acting
// participant and returns nothing but an error.
func (a *API) roomAction(fn func(ctx context.Context, roomID, actorID string, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, err := actor(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if err := fn(r.Context(), chi.URLParam(r, "roomID"), actorID, r); err != nil {
			a.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) leave(ctx context.Context, roomID, actorID string, _ *http.Request) error {
	return a.rooms.LeaveRoom(ctx, roomID, actorID)
}

func (a *API) kick(ctx context.Context, roomID, actorID string, r *http.Request) error {
	var req targetRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	return a.rooms.KickPlayer(ctx, roomID, actorID, req.ParticipantID)
}

func (a *API) reroll(ctx context.Context, roomID, actorID string, _ *http.Request) error {
	return a.rooms.Reroll(ctx, roomID, actorID)
}

// assignCaptains only needs a member to trigger it; selection itself is
// deterministic.
func (a *API) assignCaptains(ctx context.Context, roomID, actorID string, _ *http.Request) error {
	st, err := a.rooms.Snapshot(ctx, roomID)
	if err != nil {
		return err
	}
	if _, ok := st.Member(actorID); !ok {
		return engine.ErrNotMember
	}
	return a.rooms.AssignCaptains(ctx, roomID)
}

func (a *API) startDraft(ctx context.Context, roomID, actorID string, _ *http.Request) error {
	return a.rooms.StartDraft(ctx, roomID, actorID)
}

func (a *API) pick(ctx context.Context, roomID, actorID string, r *http.Request) error {
	var req targetRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	return a.rooms.PickPlayer(ctx, roomID, actorID, req.ParticipantID)
}

func (a *API) setPreference(ctx context.Context, roomID, actorID string, r *http.Request) error {
	var req sideRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	return a.rooms.SetPreference(ctx, roomID, actorID, req.Side)
}

func (a *API) startMatch(ctx context.Context, roomID, actorID string, _ *http.Request) error {
	return a.rooms.StartMatch(ctx, roomID, actorID)
}

func (a *API) roll(w http.ResponseWriter, r *http.Request) {
	participantID, err := actor(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	value, err := a.rooms.SubmitRoll(r.Context(), chi.URLParam(r, "roomID"), participantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"roll": value})
}

func (a *API) finishMatch(w http.ResponseWriter, r *http.Request) {
	hostID, err := actor(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req winnerRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	matchID, err := a.rooms.FinishMatch(r.Context(), chi.URLParam(r, "roomID"), req.Winner, hostID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"match_id": matchID})
}

func (a *API) getMatch(w http.ResponseWriter, r *http.Request) {
	rec, err := a.rooms.Match(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
