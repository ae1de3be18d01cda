package models

import "time"

// NewMessage is what the dispatcher hands to the persistence layer.
type NewMessage struct {
	RoomID   string
	SenderID string
	Body     string
	Image    string
	ImageKey string
}

type MessageStatus string

const (
	MessageStatusUnread MessageStatus = "unread"
	MessageStatusRead   MessageStatus = "read"
)

// Message is the canonical persisted record, with the sender profile attached.
type Message struct {
	ID        string        `json:"_id" bson:"_id"`
	RoomID    string        `json:"roomId" bson:"room_id"`
	Body      string        `json:"body" bson:"body"`
	Image     string        `json:"image,omitempty" bson:"image,omitempty"`
	ImageKey  string        `json:"imageKey,omitempty" bson:"image_key,omitempty"`
	Status    MessageStatus `json:"status" bson:"status"`
	Sender    Identity      `json:"senderId" bson:"-"`
	CreatedAt time.Time     `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updated_at"`
}
