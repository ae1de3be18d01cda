package models

import "time"

type RoomKind string

const (
	// RoomKindDirect is a bilateral conversation between exactly two users.
	RoomKindDirect RoomKind = "direct"
	// RoomKindChannel is a multi-member channel.
	RoomKindChannel RoomKind = "channel"
)

type RoomStatus string

const RoomStatusActive RoomStatus = "active"

type Room struct {
	ID        string     `json:"id" bson:"_id"`
	Name      string     `json:"name,omitempty" bson:"name,omitempty"`
	Kind      RoomKind   `json:"kind" bson:"kind"`
	IsPublic  bool       `json:"is_public" bson:"is_public"`
	OwnerID   string     `json:"owner_id,omitempty" bson:"owner_id,omitempty"`
	Status    RoomStatus `json:"status" bson:"status"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`

	// Participants holds both user ids of a direct room, lower id first.
	// Empty for channels.
	Participants []string `json:"participants,omitempty" bson:"participants,omitempty"`
}

func (r *Room) IsDirect() bool {
	return r.Kind == RoomKindDirect
}

// HasParticipant reports whether userID is one of the two sides of a direct room.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

type CreateRoomRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=80"`
	IsPublic bool   `json:"is_public"`
}

type CreateDirectRoomRequest struct {
	PeerID string `json:"peer_id" validate:"required"`
}

type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
