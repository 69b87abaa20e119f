package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomJoinAndMembers(t *testing.T) {
	r := NewRoomRegistry()

	r.Join("c1", "r1")
	r.Join("c2", "r1")
	r.Join("c3", "r2")

	assert.ElementsMatch(t, []string{"c1", "c2"}, r.Members("r1"))
	assert.ElementsMatch(t, []string{"c3"}, r.Members("r2"))
	assert.True(t, r.InRoom("c1", "r1"))
	assert.False(t, r.InRoom("c3", "r1"))
}

func TestRoomLeave(t *testing.T) {
	r := NewRoomRegistry()
	r.Join("c1", "r1")
	r.Join("c2", "r1")

	r.Leave("c1", "r1")

	assert.ElementsMatch(t, []string{"c2"}, r.Members("r1"))
	assert.False(t, r.InRoom("c1", "r1"))

	// Leaving a room never joined is a no-op.
	r.Leave("c1", "r9")
}

func TestRoomLeaveAll(t *testing.T) {
	r := NewRoomRegistry()
	r.Join("c1", "r1")
	r.Join("c1", "r2")
	r.Join("c2", "r1")

	left := r.LeaveAll("c1")

	assert.ElementsMatch(t, []string{"r1", "r2"}, left)
	assert.ElementsMatch(t, []string{"c2"}, r.Members("r1"))
	assert.Empty(t, r.Members("r2"))

	assert.Empty(t, r.LeaveAll("c1"), "second LeaveAll finds nothing")
}
