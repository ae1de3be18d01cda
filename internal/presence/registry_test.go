package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"realtime-chat/internal/models"
)

func identity(id string) models.Identity {
	return models.Identity{ID: id, Username: "user-" + id, Email: id + "@example.com"}
}

func TestRegistry_Connect_NewUser(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	// When a user connects for the first time
	info, notices := r.Connect(identity("u1"), "c1")

	// Then no reconnection and no notices
	req.False(info.IsReconnection)
	req.Empty(info.PreviousConnectionID)
	req.Empty(info.RoomIDs)
	req.Empty(notices)

	req.True(r.IsOnline("u1"))
	conn, ok := r.ConnectionOf("u1")
	req.True(ok)
	req.Equal("c1", conn)
	req.Equal(Stats{TotalUsers: 1, TotalConnections: 1}, r.Stats())
}

func TestRegistry_Connect_SupersedesAndPreservesRooms(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	// Given u1 is connected via c1 and joined two rooms
	r.Connect(identity("u1"), "c1")
	req.Equal(Joined, r.Join("u1", "r2"))
	req.Equal(Joined, r.Join("u1", "r1"))

	// When u1 connects again via c2 without disconnecting c1
	info, notices := r.Connect(identity("u1"), "c2")

	// Then c2 inherits the rooms held under c1
	req.True(info.IsReconnection)
	req.Equal("c1", info.PreviousConnectionID)
	req.Equal([]string{"r1", "r2"}, info.RoomIDs)

	// And both connections are told about the takeover
	req.Len(notices, 2)
	req.Equal("c1", notices[0].ConnectionID)
	req.Equal(models.EventAccountSuperseded, notices[0].Event)
	req.Equal("c2", notices[0].Payload.(models.AccountSuperseded).NewConnectionID)
	req.Equal("c2", notices[1].ConnectionID)
	req.Equal(models.EventAccountAlreadyLoggedIn, notices[1].Event)
	req.Equal("c1", notices[1].Payload.(models.AccountAlreadyLoggedIn).PreviousConnectionID)

	// And exactly one entry exists, bound to c2
	conn, _ := r.ConnectionOf("u1")
	req.Equal("c2", conn)
	req.Equal(Stats{TotalUsers: 1, TotalRooms: 2, TotalConnections: 1}, r.Stats())
	_, stale := r.UserOf("c1")
	req.False(stale)
}

func TestRegistry_Disconnect_StaleHandleIsNoop(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	// Given c2 superseded c1
	r.Connect(identity("u1"), "c1")
	r.Join("u1", "r1")
	r.Connect(identity("u1"), "c2")

	// When the superseded connection disconnects
	_, removed := r.Disconnect("c1")

	// Then nothing changes
	req.False(removed)
	req.True(r.IsOnline("u1"))
	req.True(r.IsMember("u1", "r1"))
	req.Len(r.MembersOf("r1"), 1)
}

func TestRegistry_Disconnect_CleansRooms(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	r.Connect(identity("u1"), "c1")
	r.Connect(identity("u2"), "c2")
	r.Join("u1", "r1")
	r.Join("u2", "r1")
	r.Join("u1", "r2")

	userID, removed := r.Disconnect("c1")

	req.True(removed)
	req.Equal("u1", userID)
	req.False(r.IsOnline("u1"))
	req.Len(r.MembersOf("r1"), 1)
	req.Equal("u2", r.MembersOf("r1")[0].UserID)
	req.Empty(r.MembersOf("r2"))
	req.Equal(Stats{TotalUsers: 1, TotalRooms: 1, TotalConnections: 1}, r.Stats())
}

func TestRegistry_Disconnect_UnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)

	_, removed := r.Disconnect("nope")

	require.False(t, removed)
}

func TestRegistry_AtMostOneEntryPerUser(t *testing.T) {
	req := require.New(t)
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			r.Connect(identity("u1"), conn)
			r.Join("u1", "r1")
			if i%3 == 0 {
				r.Disconnect(conn)
			}
		}(i)
	}
	wg.Wait()

	stats := r.Stats()
	req.LessOrEqual(stats.TotalUsers, 1)
	req.Equal(stats.TotalUsers, stats.TotalConnections)
	if stats.TotalUsers == 0 {
		req.Empty(r.MembersOf("r1"))
	}
}
