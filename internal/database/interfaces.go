package database

import (
	"context"
	"errors"

	"realtime-chat/internal/models"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record clashes with a unique key.
	ErrConflict = errors.New("already exists")
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}

type RoomRepository interface {
	CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID string) (*models.Room, error)
	GetOrCreateDirectRoom(ctx context.Context, userA, userB string) (*models.Room, error)
	GetRoomByID(ctx context.Context, id string) (*models.Room, error)
	ListUserRooms(ctx context.Context, userID string) ([]*models.Room, error)
}

type MessageRepository interface {
	// CreateMessage persists msg and returns it with the sender profile
	// attached. It either fully succeeds or leaves nothing behind.
	CreateMessage(ctx context.Context, msg *models.NewMessage) (*models.Message, error)
	GetLastMessage(ctx context.Context, roomID string) (*models.Message, error)
}

type MembershipRepository interface {
	AddMembership(ctx context.Context, userID, roomID string) error
	RemoveMembership(ctx context.Context, userID, roomID string) error
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	GetRoomMembers(ctx context.Context, roomID string) ([]*models.Member, error)
}

type Database interface {
	UserRepository
	RoomRepository
	MessageRepository
	MembershipRepository
	Close() error
}

// orderedPair returns the two ids of a direct room with the lower one first.
func orderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
