package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffPatchRoundTrip(t *testing.T) {
	s := roomWith(100, 90, 80, 70, 60, 50, 40, 30, 20, 0)
	cmds := []Command{
		{Type: CmdJoin, Actor: "late"},
		{Type: CmdLeave, Actor: "p4"},
		{Type: CmdJoin, Actor: "p10"},
		{Type: CmdRoll, Actor: "p9", Value: 11},
		{Type: CmdRoll, Actor: "p10", Value: 9},
		{Type: CmdLeave, Actor: "p0"},
	}
	for _, cmd := range cmds {
		_, next, err := Apply(s, cmd)
		if err != nil {
			continue
		}
		assert.Equal(t, next, Patch(s, Diff(s, next)), string(cmd.Type)+" "+cmd.Actor)
		s = next
	}
}

func TestDiffRoomLifecycle(t *testing.T) {
	empty := State{}
	created := roomWith(0)

	changes := Diff(empty, created)
	require.Len(t, changes, 2)
	assert.Equal(t, Change{Entity: EntityMembership, Op: OpInsert, Member: &created.Members[0], ParticipantID: "p0"}, changes[0])
	assert.Equal(t, EntityRoom, changes[1].Entity)
	assert.Equal(t, OpInsert, changes[1].Op)

	changes = Diff(created, empty)
	require.Len(t, changes, 2)
	assert.Equal(t, OpDelete, changes[0].Op)
	assert.Equal(t, "p0", changes[0].ParticipantID)
	assert.Equal(t, OpDelete, changes[1].Op)
	assert.Equal(t, State{}, Patch(created, changes))
}

func TestDiffUnchanged(t *testing.T) {
	s := roomWith(10, 20)
	assert.Empty(t, Diff(s, s.Clone()))
}
