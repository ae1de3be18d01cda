// Package notify informs offline users about messages they missed.
package notify

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"realtime-chat/internal/models"
)

const DefaultPreviewLength = 100

type MessageType string

const (
	MessageTypeRoom    MessageType = "room"
	MessageTypeChannel MessageType = "channel"
)

// Summary is the part of a persisted message an offline user is told about.
type Summary struct {
	MessageID string
	RoomID    string
	Body      string
	Image     string
	CreatedAt time.Time
	Type      MessageType
}

type Notifier interface {
	Notify(ctx context.Context, recipient, sender models.Identity, summary Summary) error
}

// Notification is the payload handed to a delivery backend.
type Notification struct {
	RecipientID    string      `json:"recipientId"`
	RecipientEmail string      `json:"recipientEmail"`
	RecipientName  string      `json:"recipientName"`
	SenderID       string      `json:"senderId"`
	SenderName     string      `json:"senderName"`
	SenderEmail    string      `json:"senderEmail"`
	RoomID         string      `json:"roomId"`
	MessageID      string      `json:"messageId"`
	MessagePreview string      `json:"messagePreview"`
	MessageType    MessageType `json:"messageType"`
	Timestamp      time.Time   `json:"timestamp"`
	HasImage       bool        `json:"hasImage"`
}

func Build(recipient, sender models.Identity, summary Summary, previewLength int) Notification {
	ts := summary.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	typ := summary.Type
	if typ == "" {
		typ = MessageTypeRoom
	}
	return Notification{
		RecipientID:    recipient.ID,
		RecipientEmail: recipient.Email,
		RecipientName:  recipient.Username,
		SenderID:       sender.ID,
		SenderName:     sender.Username,
		SenderEmail:    sender.Email,
		RoomID:         summary.RoomID,
		MessageID:      summary.MessageID,
		MessagePreview: Preview(summary.Body, previewLength),
		MessageType:    typ,
		Timestamp:      ts,
		HasImage:       summary.Image != "",
	}
}

// Preview truncates body to max runes, appending "..." when cut.
func Preview(body string, max int) string {
	if body == "" {
		return "New message"
	}
	if max <= 0 {
		max = DefaultPreviewLength
	}
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	return string(runes[:max]) + "..."
}

// ShouldNotify reports whether recipientID is to be told about a message from senderID.
func ShouldNotify(recipientID, senderID string) bool {
	return recipientID != senderID
}

// MailJob is the email description queued for the mail worker.
type MailJob struct {
	To           string       `json:"to"`
	Subject      string       `json:"subject"`
	Text         string       `json:"text"`
	Notification Notification `json:"notification"`
}

func NewMailJob(n Notification) MailJob {
	text := fmt.Sprintf("%s sent you a message: %s", n.SenderName, n.MessagePreview)
	if n.HasImage {
		text += " [image]"
	}
	return MailJob{
		To:           n.RecipientEmail,
		Subject:      fmt.Sprintf("New message from %s", n.SenderName),
		Text:         text,
		Notification: n,
	}
}
