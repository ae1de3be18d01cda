package models

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound events.
const (
	EventJoinRoom    EventType = "join-room"
	EventLeaveRoom   EventType = "leave-room"
	EventSendMessage EventType = "send-message"
)

// Outbound events.
const (
	EventAck                    EventType = "ack"
	EventMessageDelivered       EventType = "message-delivered"
	EventMessageSentAck         EventType = "message-sent-ack"
	EventMessageConfirmed       EventType = "message-confirmed"
	EventMessageFailed          EventType = "message-failed"
	EventReconnected            EventType = "reconnected"
	EventAccountSuperseded      EventType = "account-superseded"
	EventAccountAlreadyLoggedIn EventType = "account-already-logged-in"
)

// InboundFrame is the raw envelope read from a connection before the payload
// is decoded into one of the known variants.
type InboundFrame struct {
	Type    EventType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type OutboundFrame struct {
	Type    EventType `json:"type"`
	ID      string    `json:"id,omitempty"`
	Payload any       `json:"payload,omitempty"`
}

type RoomPayload struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

type SendMessagePayload struct {
	RoomID    string `json:"roomId" validate:"required,roomid"`
	SenderID  string `json:"senderId,omitempty"`
	Body      string `json:"body" validate:"required_without=Image,max=4000"`
	Image     string `json:"image,omitempty" validate:"omitempty,url"`
	Filename  string `json:"filename,omitempty"`
	Timestamp string `json:"timeStamp,omitempty"`
}

type EnvelopeStatus string

const (
	EnvelopePending   EnvelopeStatus = "pending"
	EnvelopeConfirmed EnvelopeStatus = "confirmed"
	EnvelopeFailed    EnvelopeStatus = "failed"
)

// Envelope is the optimistic, never persisted, form of a message in flight.
type Envelope struct {
	TempID       string         `json:"tempId"`
	RoomID       string         `json:"roomId"`
	Body         string         `json:"body"`
	Image        string         `json:"image,omitempty"`
	ImageKey     string         `json:"imageKey,omitempty"`
	Sender       Identity       `json:"senderId"`
	Status       EnvelopeStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	IsOptimistic bool           `json:"isOptimistic"`
}

type MessageConfirmed struct {
	Message
	TempID      string `json:"tempId"`
	IsConfirmed bool   `json:"isConfirmed"`
}

type MessageFailed struct {
	TempID string `json:"tempId"`
	Error  string `json:"error"`
}

type Reconnected struct {
	Rooms                []string `json:"rooms"`
	PreviousConnectionID string   `json:"previousConnectionId"`
}

type AccountSuperseded struct {
	NewConnectionID string    `json:"newConnectionId"`
	UserID          string    `json:"userId"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

type AccountAlreadyLoggedIn struct {
	PreviousConnectionID string    `json:"previousConnectionId"`
	UserID               string    `json:"userId"`
	Message              string    `json:"message"`
	Timestamp            time.Time `json:"timestamp"`
}

type AckTiming struct {
	EmitMs    int64 `json:"emitMs"`
	PersistMs int64 `json:"persistMs"`
}

type DeliveryStats struct {
	Online              int `json:"online"`
	Offline             int `json:"offline"`
	NotificationsQueued int `json:"notificationsQueued"`
}

type Ack struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Data     any            `json:"data,omitempty"`
	Timing   *AckTiming     `json:"timing,omitempty"`
	Delivery *DeliveryStats `json:"delivery,omitempty"`
}
