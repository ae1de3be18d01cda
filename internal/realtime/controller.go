// Package realtime runs the lifecycle of one live connection: registration
// at handshake, inbound frame handling and teardown on disconnect.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"realtime-chat/internal/config"
	"realtime-chat/internal/database"
	"realtime-chat/internal/dispatch"
	"realtime-chat/internal/models"
	"realtime-chat/internal/presence"
	"realtime-chat/internal/services"
	"realtime-chat/pkg/logger"
)

// Transport delivers outbound frames. Both methods are no-ops for
// connections that are already gone.
type Transport interface {
	dispatch.Emitter
	Reply(connID, ackID string, ack models.Ack)
}

type Sender interface {
	Send(ctx context.Context, req dispatch.Request) (*dispatch.Delivery, error)
}

type Access interface {
	CanUserAccessRoom(ctx context.Context, userID, roomID string) (bool, error)
}

type Config struct {
	// AckMode is config.AckModePersisted or config.AckModeOptimistic.
	AckMode    string
	AckTimeout time.Duration
}

type Controller struct {
	registry  *presence.Registry
	transport Transport
	sender    Sender
	access    Access
	cfg       Config
	log       *logger.Logger

	pending sync.WaitGroup
}

func NewController(registry *presence.Registry, transport Transport, sender Sender, access Access, cfg Config, log *logger.Logger) *Controller {
	if cfg.AckMode == "" {
		cfg.AckMode = config.AckModePersisted
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 15 * time.Second
	}
	return &Controller{
		registry:  registry,
		transport: transport,
		sender:    sender,
		access:    access,
		cfg:       cfg,
		log:       log,
	}
}

// Open registers an authenticated connection. A previous connection of the
// same user is superseded and its rooms carry over.
func (c *Controller) Open(identity models.Identity, connID string) {
	info, notices := c.registry.Connect(identity, connID)
	for _, n := range notices {
		c.transport.Emit(n.ConnectionID, n.Event, n.Payload)
	}

	c.registry.Join(identity.ID, models.PrivateRoomID(identity.ID))

	if info.IsReconnection {
		c.transport.Emit(connID, models.EventReconnected, models.Reconnected{
			Rooms:                info.RoomIDs,
			PreviousConnectionID: info.PreviousConnectionID,
		})
		c.log.Info("user %s reconnected on %s, %d rooms restored", identity.ID, connID, len(info.RoomIDs))
	} else {
		c.log.Info("user %s connected on %s", identity.ID, connID)
	}
}

// Close tears down the presence held by connID. A connection that was
// already superseded leaves the newer registration untouched.
func (c *Controller) Close(connID string) {
	userID, removed := c.registry.Disconnect(connID)
	if removed {
		c.log.Info("user %s disconnected from %s", userID, connID)
	}
}

// Handle processes one raw inbound frame and answers it with an ack.
func (c *Controller) Handle(ctx context.Context, identity models.Identity, connID string, raw []byte) {
	ackID, frame, err := Decode(raw)
	if err != nil {
		c.fail(connID, ackID, err)
		return
	}
	if owner, ok := c.registry.UserOf(connID); !ok || owner != identity.ID {
		c.fail(connID, ackID, ErrSuperseded)
		return
	}

	switch f := frame.(type) {
	case JoinRoom:
		c.join(ctx, identity, connID, ackID, f.RoomID)
	case LeaveRoom:
		c.leave(identity, connID, ackID, f.RoomID)
	case SendMessage:
		c.send(ctx, identity, connID, ackID, f)
	}
}

func (c *Controller) join(ctx context.Context, identity models.Identity, connID, ackID, roomID string) {
	data := map[string]string{"roomId": roomID}
	if c.registry.IsMember(identity.ID, roomID) {
		c.transport.Reply(connID, ackID, models.Ack{Success: true, Message: "Already in room", Data: data})
		return
	}

	ok, err := c.access.CanUserAccessRoom(ctx, identity.ID, roomID)
	if err != nil {
		c.fail(connID, ackID, err)
		return
	}
	if !ok {
		c.fail(connID, ackID, services.ErrForbidden)
		return
	}

	switch c.registry.Join(identity.ID, roomID) {
	case presence.Joined:
		c.transport.Reply(connID, ackID, models.Ack{Success: true, Message: "Joined room", Data: data})
	case presence.AlreadyJoined:
		c.transport.Reply(connID, ackID, models.Ack{Success: true, Message: "Already in room", Data: data})
	default:
		c.fail(connID, ackID, ErrSuperseded)
	}
}

func (c *Controller) leave(identity models.Identity, connID, ackID, roomID string) {
	if roomID == models.PrivateRoomID(identity.ID) {
		c.fail(connID, ackID, ErrPrivateRoom)
		return
	}
	data := map[string]string{"roomId": roomID}
	if c.registry.Leave(identity.ID, roomID) {
		c.transport.Reply(connID, ackID, models.Ack{Success: true, Message: "Left room", Data: data})
		return
	}
	c.transport.Reply(connID, ackID, models.Ack{Success: true, Message: "Not in room", Data: data})
}

func (c *Controller) send(ctx context.Context, identity models.Identity, connID, ackID string, f SendMessage) {
	if f.SenderID != "" && f.SenderID != identity.ID {
		c.fail(connID, ackID, dispatch.ErrNotParticipant)
		return
	}

	delivery, err := c.sender.Send(ctx, dispatch.Request{
		RoomID:       f.RoomID,
		Sender:       identity,
		SenderConnID: connID,
		Body:         f.Body,
		Image:        f.Image,
		Filename:     f.Filename,
		Timestamp:    f.Timestamp,
	})
	if err != nil {
		c.fail(connID, ackID, err)
		return
	}

	if c.cfg.AckMode == config.AckModeOptimistic {
		c.transport.Reply(connID, ackID, models.Ack{
			Success: true,
			Message: "Message sent",
			Data:    delivery.Envelope,
		})
		return
	}

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.replyWhenPersisted(connID, ackID, delivery)
	}()
}

func (c *Controller) replyWhenPersisted(connID, ackID string, delivery *dispatch.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.AckTimeout)
	defer cancel()

	outcome, err := delivery.Wait(ctx)
	if err != nil {
		c.log.Warn("no outcome for message %s after %s", delivery.Envelope.TempID, c.cfg.AckTimeout)
		c.transport.Reply(connID, ackID, models.Ack{
			Success: false,
			Error:   "Timed out waiting for message to be saved",
			Data:    models.MessageFailed{TempID: delivery.Envelope.TempID},
		})
		return
	}

	timing := &models.AckTiming{
		EmitMs:    outcome.EmitDuration.Milliseconds(),
		PersistMs: outcome.PersistDuration.Milliseconds(),
	}
	stats := &models.DeliveryStats{
		Online:              outcome.Online,
		Offline:             outcome.Offline,
		NotificationsQueued: outcome.NotificationsQueued,
	}

	if !outcome.Confirmed() {
		c.transport.Reply(connID, ackID, models.Ack{
			Success:  false,
			Error:    "Failed to save message",
			Data:     models.MessageFailed{TempID: outcome.Envelope.TempID, Error: "Failed to save message"},
			Timing:   timing,
			Delivery: stats,
		})
		return
	}

	c.transport.Reply(connID, ackID, models.Ack{
		Success: true,
		Message: "Message sent",
		Data: models.MessageConfirmed{
			Message:     *outcome.Message,
			TempID:      outcome.Envelope.TempID,
			IsConfirmed: true,
		},
		Timing:   timing,
		Delivery: stats,
	})
}

func (c *Controller) fail(connID, ackID string, err error) {
	msg := errorMessage(err)
	if msg == internalError {
		c.log.Error("frame on %s failed: %v", connID, err)
	} else {
		c.log.Debug("frame on %s rejected: %v", connID, err)
	}
	c.transport.Reply(connID, ackID, models.Ack{Success: false, Error: msg})
}

const internalError = "Internal error"

func errorMessage(err error) string {
	switch {
	case errors.Is(err, ErrMalformedFrame), errors.Is(err, ErrUnknownFrame),
		errors.Is(err, ErrInvalidRoomID), errors.Is(err, dispatch.ErrInvalidMessage):
		return err.Error()
	case errors.Is(err, dispatch.ErrRoomNotFound), errors.Is(err, database.ErrNotFound):
		return "Room not found"
	case errors.Is(err, dispatch.ErrNotParticipant), errors.Is(err, services.ErrForbidden):
		return "Not authorized for this room"
	case errors.Is(err, ErrSuperseded), errors.Is(err, ErrPrivateRoom):
		return err.Error()
	}
	return internalError
}

// Wait blocks until every pending persisted-mode ack has been sent or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
