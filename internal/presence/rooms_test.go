package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Join_IsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	r.Connect(identity("u1"), "c1")

	// When u1 joins r1 twice
	first := r.Join("u1", "r1")
	second := r.Join("u1", "r1")

	// Then the second call only acknowledges
	req.Equal(Joined, first)
	req.Equal(AlreadyJoined, second)
	req.Len(r.MembersOf("r1"), 1)
	req.Equal([]string{"r1"}, r.RoomsOf("u1"))
}

func TestRegistry_Join_RequiresPresence(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	req.Equal(NotConnected, r.Join("ghost", "r1"))
	req.Empty(r.MembersOf("r1"))
	req.Zero(r.Stats().TotalRooms)
}

func TestRegistry_Leave(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	r.Connect(identity("u1"), "c1")
	r.Join("u1", "r1")

	req.True(r.Leave("u1", "r1"))
	req.False(r.Leave("u1", "r1"))
	req.False(r.IsMember("u1", "r1"))
	req.Empty(r.MembersOf("r1"))
	req.Zero(r.Stats().TotalRooms)
}

func TestRegistry_MembersOf_ResolvesConnection(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	r.Connect(identity("u2"), "c2")
	r.Connect(identity("u1"), "c1")
	r.Join("u2", "r1")
	r.Join("u1", "r1")

	members := r.MembersOf("r1")

	req.Len(members, 2)
	req.Equal("u1", members[0].UserID)
	req.Equal("c1", members[0].ConnectionID)
	req.Equal("user-u1", members[0].User.Username)
	req.Equal("u2", members[1].UserID)
}

func TestRegistry_Snapshot(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)
	r.Connect(identity("u2"), "c2")
	r.Connect(identity("u1"), "c1")
	r.Join("u1", "r1")
	r.Join("u2", "r1")
	r.Join("u2", "r2")

	snap := r.Snapshot()

	req.Equal(Stats{TotalUsers: 2, TotalRooms: 2, TotalConnections: 2}, snap.Stats)
	req.Len(snap.Users, 2)
	req.Equal("u1", snap.Users[0].UserID)
	req.Equal([]string{"r1", "r2"}, snap.Users[1].Rooms)
	req.Equal([]string{"u1", "u2"}, snap.Rooms["r1"])
}
