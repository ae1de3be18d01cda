package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"realtime-chat/internal/models"
)

func seedUsers(t *testing.T, db *MemoryDB, names ...string) []*models.User {
	t.Helper()
	var users []*models.User
	for _, name := range names {
		u, err := db.CreateUser(context.Background(), &models.User{
			Username:     name,
			Email:        name + "@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		users = append(users, u)
	}
	return users
}

func TestOrderedPair(t *testing.T) {
	req := require.New(t)

	a, b := orderedPair("u2", "u1")
	req.Equal("u1", a)
	req.Equal("u2", b)

	a, b = orderedPair("u1", "u2")
	req.Equal("u1", a)
	req.Equal("u2", b)
}

func TestMemoryDB_Users(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := NewMemoryDB()
	users := seedUsers(t, db, "alice")

	// Given a registered user
	// When it is looked up by email and id
	byEmail, err := db.GetUserByEmail(ctx, "ALICE@example.com")
	req.NoError(err)
	byID, err := db.GetUserByID(ctx, users[0].ID)
	req.NoError(err)

	// Then the hash is only exposed through the email lookup used for login
	req.Equal("hash", byEmail.PasswordHash)
	req.Empty(byID.PasswordHash)

	_, err = db.CreateUser(ctx, &models.User{Username: "dup", Email: "alice@example.com"})
	req.ErrorIs(err, ErrConflict)

	_, err = db.GetUserByID(ctx, "missing")
	req.ErrorIs(err, ErrNotFound)
}

func TestMemoryDB_DirectRoomIsIdempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := NewMemoryDB()
	users := seedUsers(t, db, "alice", "bob")

	first, err := db.GetOrCreateDirectRoom(ctx, users[1].ID, users[0].ID)
	req.NoError(err)
	second, err := db.GetOrCreateDirectRoom(ctx, users[0].ID, users[1].ID)
	req.NoError(err)

	req.Equal(first.ID, second.ID)
	req.True(first.IsDirect())
	req.Len(first.Participants, 2)
	req.True(first.Participants[0] < first.Participants[1])
}

func TestMemoryDB_ListUserRooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := NewMemoryDB()
	users := seedUsers(t, db, "alice", "bob", "carol")

	public, err := db.CreateRoom(ctx, &models.CreateRoomRequest{Name: "general", IsPublic: true}, users[0].ID)
	req.NoError(err)
	private, err := db.CreateRoom(ctx, &models.CreateRoomRequest{Name: "secret"}, users[0].ID)
	req.NoError(err)
	direct, err := db.GetOrCreateDirectRoom(ctx, users[0].ID, users[1].ID)
	req.NoError(err)

	rooms, err := db.ListUserRooms(ctx, users[2].ID)
	req.NoError(err)
	req.Len(rooms, 1)
	req.Equal(public.ID, rooms[0].ID)

	rooms, err = db.ListUserRooms(ctx, users[0].ID)
	req.NoError(err)
	ids := []string{}
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	req.ElementsMatch([]string{public.ID, private.ID, direct.ID}, ids)

	ok, err := db.IsMember(ctx, users[0].ID, private.ID)
	req.NoError(err)
	req.True(ok)
}

func TestMemoryDB_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := NewMemoryDB()
	users := seedUsers(t, db, "alice", "bob")
	room, err := db.GetOrCreateDirectRoom(ctx, users[0].ID, users[1].ID)
	req.NoError(err)

	_, err = db.GetLastMessage(ctx, room.ID)
	req.ErrorIs(err, ErrNotFound)

	_, err = db.CreateMessage(ctx, &models.NewMessage{RoomID: room.ID, SenderID: users[0].ID, Body: "one"})
	req.NoError(err)
	msg, err := db.CreateMessage(ctx, &models.NewMessage{RoomID: room.ID, SenderID: users[1].ID, Body: "two"})
	req.NoError(err)
	req.NotEmpty(msg.ID)
	req.Equal("bob", msg.Sender.Username)
	req.Equal(models.MessageStatusUnread, msg.Status)

	last, err := db.GetLastMessage(ctx, room.ID)
	req.NoError(err)
	req.Equal("two", last.Body)

	_, err = db.CreateMessage(ctx, &models.NewMessage{RoomID: "nope", SenderID: users[0].ID, Body: "x"})
	req.ErrorIs(err, ErrNotFound)
}
