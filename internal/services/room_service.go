package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"realtime-chat/internal/database"
	"realtime-chat/internal/models"
	"realtime-chat/internal/presence"
)

var ErrForbidden = errors.New("forbidden")

const privateRoomPrefix = "user:"

// LiveMembers is the read side of the room membership index.
type LiveMembers interface {
	MembersOf(roomID string) []presence.Member
}

type RoomService struct {
	db   database.Database
	live LiveMembers
}

func NewRoomService(db database.Database, live LiveMembers) *RoomService {
	return &RoomService{db: db, live: live}
}

func (s *RoomService) CreateRoom(ctx context.Context, req *models.CreateRoomRequest, ownerID string) (*models.Room, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("room name is required")
	}

	return s.db.CreateRoom(ctx, req, ownerID)
}

// CreateDirectRoom returns the bilateral room between userID and peerID,
// creating it on first use.
func (s *RoomService) CreateDirectRoom(ctx context.Context, userID, peerID string) (*models.Room, error) {
	if peerID == "" || peerID == userID {
		return nil, fmt.Errorf("a direct room needs two distinct users")
	}
	if _, err := s.db.GetUserByID(ctx, peerID); err != nil {
		return nil, err
	}

	return s.db.GetOrCreateDirectRoom(ctx, userID, peerID)
}

func (s *RoomService) ListUserRooms(ctx context.Context, userID string) ([]*models.Room, error) {
	return s.db.ListUserRooms(ctx, userID)
}

// GetRoom resolves roomID. The private room of a user is not stored and is
// synthesized here.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if owner, ok := strings.CutPrefix(roomID, privateRoomPrefix); ok && owner != "" {
		return &models.Room{
			ID:      roomID,
			Kind:    models.RoomKindChannel,
			OwnerID: owner,
			Status:  models.RoomStatusActive,
		}, nil
	}

	return s.db.GetRoomByID(ctx, roomID)
}

// Participants returns the two identities of a direct room.
func (s *RoomService) Participants(ctx context.Context, room *models.Room) ([]models.Identity, error) {
	if !room.IsDirect() {
		return nil, fmt.Errorf("room %s is not a direct room", room.ID)
	}
	users, err := s.db.GetUsersByIDs(ctx, room.Participants)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u *models.User, _ int) models.Identity { return u.Identity() }), nil
}

// CanUserAccessRoom reports whether userID holds a standing membership of
// roomID: participant of a direct room, owner of a private room, or member
// of a non-public channel.
func (s *RoomService) CanUserAccessRoom(ctx context.Context, userID, roomID string) (bool, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}

	switch {
	case strings.HasPrefix(room.ID, privateRoomPrefix):
		return room.OwnerID == userID, nil
	case room.IsDirect():
		return room.HasParticipant(userID), nil
	case room.IsPublic:
		return true, nil
	}

	return s.db.IsMember(ctx, userID, roomID)
}

func (s *RoomService) InviteUser(ctx context.Context, roomID, inviterID, email string) error {
	room, err := s.db.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsDirect() {
		return fmt.Errorf("%w: direct rooms have exactly two participants", ErrForbidden)
	}

	// Check if inviter has permission
	if !room.IsPublic && room.OwnerID != inviterID {
		isMember, err := s.db.IsMember(ctx, inviterID, roomID)
		if err != nil {
			return err
		}
		if !isMember {
			return fmt.Errorf("%w: not authorized to invite to this room", ErrForbidden)
		}
	}

	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	return s.db.AddMembership(ctx, user.ID, roomID)
}

func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID string) error {
	isMember, err := s.db.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !isMember {
		return fmt.Errorf("%w: not a member of this room", ErrForbidden)
	}

	return s.db.RemoveMembership(ctx, userID, roomID)
}

func (s *RoomService) GetRoomMembers(ctx context.Context, roomID, userID string) ([]*models.Member, error) {
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}

	return s.db.GetRoomMembers(ctx, roomID)
}

// GetLastMessage returns the most recent persisted message of the room.
func (s *RoomService) GetLastMessage(ctx context.Context, roomID, userID string) (*models.Message, error) {
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}

	return s.db.GetLastMessage(ctx, roomID)
}

// GetOnlineMembers returns the users currently receiving live events for the room.
func (s *RoomService) GetOnlineMembers(ctx context.Context, roomID, userID string) ([]presence.Member, error) {
	if err := s.authorize(ctx, userID, roomID); err != nil {
		return nil, err
	}

	return s.live.MembersOf(roomID), nil
}

func (s *RoomService) authorize(ctx context.Context, userID, roomID string) error {
	ok, err := s.CanUserAccessRoom(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
