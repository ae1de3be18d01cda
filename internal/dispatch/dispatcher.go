// Package dispatch delivers a chat message to the live members of a room
// before it is persisted, then confirms or fails it once the store answers,
// and falls back to notifications for participants who are offline.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"realtime-chat/internal/database"
	"realtime-chat/internal/models"
	"realtime-chat/internal/notify"
	"realtime-chat/internal/presence"
	"realtime-chat/pkg/logger"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotParticipant = errors.New("sender is not a participant of the room")
)

const failedToSave = "Failed to save message"

// Emitter pushes an outbound event to one connection. Emitting to a
// connection that is gone must be a silent no-op.
type Emitter interface {
	Emit(connID string, event models.EventType, payload any)
}

// Presence is the read side of the presence registry the dispatcher needs.
type Presence interface {
	ConnectionOf(userID string) (string, bool)
	MembersOf(roomID string) []presence.Member
}

type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.NewMessage) (*models.Message, error)
}

type RoomResolver interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	Participants(ctx context.Context, room *models.Room) ([]models.Identity, error)
	CanUserAccessRoom(ctx context.Context, userID, roomID string) (bool, error)
}

type Config struct {
	PersistTimeout time.Duration
	NotifyTimeout  time.Duration
	ImageKeySuffix string
}

type Dispatcher struct {
	presence Presence
	emitter  Emitter
	store    MessageStore
	rooms    RoomResolver
	notifier notify.Notifier
	cfg      Config
	log      *logger.Logger

	now       func() time.Time
	newTempID func() string
	inflight  sync.WaitGroup
}

func New(p Presence, emitter Emitter, store MessageStore, rooms RoomResolver, notifier notify.Notifier, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	return &Dispatcher{
		presence:  p,
		emitter:   emitter,
		store:     store,
		rooms:     rooms,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		newTempID: func() string { return "temp_" + uuid.NewString() },
	}
}

// Request is one send-message operation.
type Request struct {
	RoomID       string
	Sender       models.Identity
	SenderConnID string
	Body         string
	Image        string
	Filename     string
	Timestamp    string
}

// Send runs the optimistic half of the protocol synchronously: participants
// are resolved, online ones receive message-delivered and the sender gets
// message-sent-ack. Persistence, confirmation and offline notifications then
// continue in the background and are reported through the returned Delivery.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Delivery, error) {
	start := d.now()

	if !models.ValidRoomID(req.RoomID) {
		return nil, fmt.Errorf("%w: malformed room id", ErrInvalidMessage)
	}
	if models.IsPrivateRoomID(req.RoomID) {
		return nil, fmt.Errorf("%w: private rooms do not take messages", ErrInvalidMessage)
	}
	if strings.TrimSpace(req.Body) == "" && req.Image == "" {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}

	room, err := d.rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to fetch room %s: %w", req.RoomID, err)
	}

	participants, msgType, err := d.resolveParticipants(ctx, room, req.Sender.ID)
	if err != nil {
		return nil, err
	}

	env := models.Envelope{
		TempID:       d.newTempID(),
		RoomID:       room.ID,
		Body:         req.Body,
		Image:        req.Image,
		ImageKey:     d.imageKey(req.Filename, req.Timestamp),
		Sender:       req.Sender,
		Status:       models.EnvelopePending,
		CreatedAt:    start.UTC(),
		IsOptimistic: true,
	}

	delivery := &Delivery{
		Envelope:    env,
		messageType: msgType,
		done:        make(chan struct{}),
	}

	for _, p := range participants {
		if p.ID == req.Sender.ID {
			continue
		}
		connID, online := d.presence.ConnectionOf(p.ID)
		if !online {
			delivery.Offline = append(delivery.Offline, p)
			continue
		}
		d.emitter.Emit(connID, models.EventMessageDelivered, env)
		delivery.Online = append(delivery.Online, p.ID)
	}
	d.emitter.Emit(req.SenderConnID, models.EventMessageSentAck, env)

	delivery.emitDuration = d.now().Sub(start)
	d.log.Debug("message %s emitted to room %s in %s: %d online, %d offline",
		env.TempID, room.ID, delivery.emitDuration, len(delivery.Online), len(delivery.Offline))

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.persist(req, delivery, start)
	}()

	return delivery, nil
}

func (d *Dispatcher) resolveParticipants(ctx context.Context, room *models.Room, senderID string) ([]models.Identity, notify.MessageType, error) {
	if room.IsDirect() {
		if !room.HasParticipant(senderID) {
			return nil, "", ErrNotParticipant
		}
		participants, err := d.rooms.Participants(ctx, room)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve participants of room %s: %w", room.ID, err)
		}
		return lo.UniqBy(participants, func(p models.Identity) string { return p.ID }), notify.MessageTypeRoom, nil
	}

	ok, err := d.rooms.CanUserAccessRoom(ctx, senderID, room.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check access to room %s: %w", room.ID, err)
	}
	if !ok {
		return nil, "", ErrNotParticipant
	}
	members := lo.Map(d.presence.MembersOf(room.ID), func(m presence.Member, _ int) models.Identity {
		return m.User
	})
	return members, notify.MessageTypeChannel, nil
}

func (d *Dispatcher) persist(req Request, delivery *Delivery, start time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PersistTimeout)
	defer cancel()

	env := delivery.Envelope
	msg, err := d.store.CreateMessage(ctx, &models.NewMessage{
		RoomID:   env.RoomID,
		SenderID: req.Sender.ID,
		Body:     env.Body,
		Image:    env.Image,
		ImageKey: env.ImageKey,
	})

	outcome := Outcome{
		Envelope:     env,
		Online:       len(delivery.Online),
		Offline:      len(delivery.Offline),
		EmitDuration: delivery.emitDuration,
	}

	if err != nil {
		d.log.Error("failed to persist message %s in room %s: %v", env.TempID, env.RoomID, err)
		failed := models.MessageFailed{TempID: env.TempID, Error: failedToSave}
		d.emitToOnline(delivery.Online, models.EventMessageFailed, failed)
		d.emitToSender(req, models.EventMessageFailed, failed)

		outcome.Envelope.Status = models.EnvelopeFailed
		outcome.Err = err
		outcome.PersistDuration = d.now().Sub(start)
		delivery.finish(outcome)
		return
	}

	if msg.Sender.ID == "" {
		msg.Sender = req.Sender
	}
	confirmed := models.MessageConfirmed{Message: *msg, TempID: env.TempID, IsConfirmed: true}
	d.emitToOnline(delivery.Online, models.EventMessageConfirmed, confirmed)
	d.emitToSender(req, models.EventMessageConfirmed, confirmed)

	outcome.Envelope.Status = models.EnvelopeConfirmed
	outcome.Message = msg
	outcome.PersistDuration = d.now().Sub(start)
	outcome.NotificationsQueued = d.notifyOffline(req.Sender, delivery, msg)

	d.log.Debug("message %s confirmed as %s in %s", env.TempID, msg.ID, outcome.PersistDuration)
	delivery.finish(outcome)
}

// emitToOnline re-resolves each connection so a recipient that reconnected in
// the meantime still gets the event on its current connection.
func (d *Dispatcher) emitToOnline(userIDs []string, event models.EventType, payload any) {
	for _, userID := range userIDs {
		if connID, ok := d.presence.ConnectionOf(userID); ok {
			d.emitter.Emit(connID, event, payload)
		}
	}
}

func (d *Dispatcher) emitToSender(req Request, event models.EventType, payload any) {
	connID, ok := d.presence.ConnectionOf(req.Sender.ID)
	if !ok {
		connID = req.SenderConnID
	}
	d.emitter.Emit(connID, event, payload)
}

// notifyOffline fires one notification per distinct offline participant and
// returns how many were started. Failures are logged only.
func (d *Dispatcher) notifyOffline(sender models.Identity, delivery *Delivery, msg *models.Message) int {
	if d.notifier == nil {
		return 0
	}
	summary := notify.Summary{
		MessageID: msg.ID,
		RoomID:    msg.RoomID,
		Body:      msg.Body,
		Image:     msg.Image,
		CreatedAt: msg.CreatedAt,
		Type:      delivery.messageType,
	}

	queued := 0
	for _, recipient := range lo.UniqBy(delivery.Offline, func(p models.Identity) string { return p.ID }) {
		if !notify.ShouldNotify(recipient.ID, sender.ID) {
			continue
		}
		queued++
		d.inflight.Add(1)
		go func(recipient models.Identity) {
			defer d.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.NotifyTimeout)
			defer cancel()
			if err := d.notifier.Notify(ctx, recipient, sender, summary); err != nil {
				d.log.Error("offline notification for %s failed: %v", recipient.ID, err)
				return
			}
			d.log.Debug("offline notification queued for %s", recipient.ID)
		}(recipient)
	}
	return queued
}

var whitespace = regexp.MustCompile(`\s+`)

func (d *Dispatcher) imageKey(filename, timestamp string) string {
	if strings.TrimSpace(filename) == "" || timestamp == "" {
		return ""
	}
	safe := whitespace.ReplaceAllString(filename, "_")
	return fmt.Sprintf("%s-%s-%s", safe, timestamp, d.cfg.ImageKeySuffix)
}

// Wait blocks until every in-flight persist and notification has finished or
// ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
