package engine

import "errors"

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindPrecondition Kind = "precondition_failed"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindCapacity     Kind = "capacity"
	KindInternal     Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrValidation          = newError(KindValidation, "invalid_input", "invalid input")
	ErrInvalidJoinCode     = newError(KindValidation, "invalid_join_code", "join code must be 6 letters or digits")
	ErrInvalidSide         = newError(KindValidation, "invalid_side", "unknown side")
	ErrInvalidRoll         = newError(KindValidation, "invalid_roll", "roll out of range")
	ErrUnsupportedCmd      = newError(KindValidation, "unsupported_command", "unsupported command")
	ErrInvalidHost         = newError(KindPrecondition, "invalid_host", "host already occupies a room")
	ErrRoomNotJoinable     = newError(KindPrecondition, "room_not_joinable", "room is not accepting players")
	ErrAlreadyMember       = newError(KindPrecondition, "already_member", "participant already occupies a room")
	ErrNotHost             = newError(KindPrecondition, "not_host", "only the host can do that")
	ErrNotCaptain          = newError(KindPrecondition, "not_captain", "only a captain can pick")
	ErrNotReady            = newError(KindPrecondition, "not_ready", "room needs 10 rolled players and two captains")
	ErrWrongPhase          = newError(KindPrecondition, "wrong_phase", "action not allowed in the current phase")
	ErrAlreadyAssigned     = newError(KindPrecondition, "already_assigned", "player already has a side")
	ErrTeamFull            = newError(KindPrecondition, "team_full", "side already has five players")
	ErrTeamsNotFull        = newError(KindPrecondition, "teams_not_full", "both sides need five players")
	ErrRerollNotAllowed    = newError(KindPrecondition, "reroll_not_allowed", "only tied players may reroll")
	ErrParticipantInRoom   = newError(KindPrecondition, "participant_in_room", "participant occupies a room")
	ErrConflict            = newError(KindConflict, "conflict", "concurrent update, retry")
	ErrCodeConflict        = newError(KindConflict, "code_conflict", "join code already taken")
	ErrRoomNotFound        = newError(KindNotFound, "room_not_found", "room not found or expired")
	ErrNotMember           = newError(KindNotFound, "not_member", "participant is not in this room")
	ErrParticipantNotFound = newError(KindNotFound, "participant_not_found", "participant not found")
	ErrMatchNotFound       = newError(KindNotFound, "match_not_found", "match not found")
	ErrRoomFull            = newError(KindCapacity, "room_full", "room is full")
	ErrRoomsUnavailable    = newError(KindCapacity, "rooms_unavailable", "could not allocate a join code")
)

// KindOf reports the Kind of err, or KindInternal for anything that is not an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine readable code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}
