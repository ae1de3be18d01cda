package dispatch

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"realtime-chat/internal/database"
	"realtime-chat/internal/models"
	"realtime-chat/internal/notify"
	"realtime-chat/internal/presence"
	"realtime-chat/pkg/logger"
)

type emitted struct {
	connID  string
	event   models.EventType
	payload any
}

type fakeEmitter struct {
	mu     sync.Mutex
	frames []emitted
}

func (f *fakeEmitter) Emit(connID string, event models.EventType, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, emitted{connID: connID, event: event, payload: payload})
}

func (f *fakeEmitter) to(connID string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.frames {
		if e.connID == connID {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeEmitter) events(connID string) []models.EventType {
	var out []models.EventType
	for _, e := range f.to(connID) {
		out = append(out, e.event)
	}
	return out
}

// fakeStore persists in memory; when gate is set every call waits on it.
type fakeStore struct {
	gate chan struct{}
	err  error

	mu    sync.Mutex
	saved []*models.NewMessage
}

func (s *fakeStore) CreateMessage(ctx context.Context, msg *models.NewMessage) (*models.Message, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	now := time.Now()
	return &models.Message{
		ID:        "msg-1",
		RoomID:    msg.RoomID,
		Body:      msg.Body,
		Image:     msg.Image,
		ImageKey:  msg.ImageKey,
		Status:    models.MessageStatusUnread,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type fakeRooms struct {
	rooms        map[string]*models.Room
	participants map[string][]models.Identity
	access       map[string]bool // userID|roomID
}

func (f *fakeRooms) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return room, nil
}

func (f *fakeRooms) Participants(_ context.Context, room *models.Room) ([]models.Identity, error) {
	return f.participants[room.ID], nil
}

func (f *fakeRooms) CanUserAccessRoom(_ context.Context, userID, roomID string) (bool, error) {
	return f.access[userID+"|"+roomID], nil
}

type fakeNotifier struct {
	err error

	mu    sync.Mutex
	calls []models.Identity
	last  notify.Summary
}

func (n *fakeNotifier) Notify(_ context.Context, recipient, _ models.Identity, summary notify.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recipient)
	n.last = summary
	return n.err
}

var (
	alice = models.Identity{ID: "alice", Username: "alice", Email: "alice@example.com"}
	bob   = models.Identity{ID: "bob", Username: "bob", Email: "bob@example.com"}
	carol = models.Identity{ID: "carol", Username: "carol", Email: "carol@example.com"}
)

type fixture struct {
	registry   *presence.Registry
	emitter    *fakeEmitter
	store      *fakeStore
	rooms      *fakeRooms
	notifier   *fakeNotifier
	dispatcher *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.New(io.Discard, "debug", "json")
	require.NoError(t, err)

	f := &fixture{
		registry: presence.NewRegistry(nil),
		emitter:  &fakeEmitter{},
		store:    &fakeStore{},
		rooms: &fakeRooms{
			rooms: map[string]*models.Room{
				"dm-ab":   {ID: "dm-ab", Kind: models.RoomKindDirect, Participants: []string{"alice", "bob"}},
				"dm-ac":   {ID: "dm-ac", Kind: models.RoomKindDirect, Participants: []string{"alice", "carol"}},
				"general": {ID: "general", Kind: models.RoomKindChannel, IsPublic: true},
				"staff":   {ID: "staff", Kind: models.RoomKindChannel},
			},
			participants: map[string][]models.Identity{
				"dm-ab": {alice, bob},
				"dm-ac": {alice, carol, carol},
			},
			access: map[string]bool{
				"alice|general": true,
				"bob|general":   true,
			},
		},
		notifier: &fakeNotifier{},
	}
	f.dispatcher = New(f.registry, f.emitter, f.store, f.rooms, f.notifier, Config{ImageKeySuffix: "chat"}, log)
	return f
}

func (f *fixture) wait(t *testing.T, d *Delivery) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := d.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Wait(ctx))
	return outcome
}

func TestSend_Rejects(t *testing.T) {
	f := newFixture(t)
	f.registry.Connect(alice, "ca")

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"malformed room id", Request{RoomID: "a b", Sender: alice, Body: "x"}, ErrInvalidMessage},
		{"empty body", Request{RoomID: "dm-ab", Sender: alice, Body: "   "}, ErrInvalidMessage},
		{"own private room", Request{RoomID: "user:alice", Sender: alice, Body: "x"}, ErrInvalidMessage},
		{"unknown room", Request{RoomID: "missing", Sender: alice, Body: "x"}, ErrRoomNotFound},
		{"outsider in direct room", Request{RoomID: "dm-ab", Sender: carol, Body: "x"}, ErrNotParticipant},
		{"no access to channel", Request{RoomID: "staff", Sender: alice, Body: "x"}, ErrNotParticipant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)

			delivery, err := f.dispatcher.Send(context.Background(), tc.req)

			req.ErrorIs(err, tc.want)
			req.Nil(delivery)
		})
	}

	require.Empty(t, f.emitter.events("ca"))
	require.Empty(t, f.store.saved)
}

func TestSend_DeliversBeforePersisting(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.store.gate = make(chan struct{})
	f.registry.Connect(alice, "ca")
	f.registry.Connect(bob, "cb")

	// When alice sends while the store is still busy
	delivery, err := f.dispatcher.Send(context.Background(), Request{RoomID: "dm-ab", Sender: alice, SenderConnID: "ca", Body: "hello"})
	req.NoError(err)

	// Then bob already has the optimistic copy and alice the sent-ack
	req.Equal([]models.EventType{models.EventMessageDelivered}, f.emitter.events("cb"))
	req.Equal([]models.EventType{models.EventMessageSentAck}, f.emitter.events("ca"))
	env := f.emitter.to("cb")[0].payload.(models.Envelope)
	req.Contains(env.TempID, "temp_")
	req.True(env.IsOptimistic)
	req.Equal(models.EnvelopePending, env.Status)
	req.Equal(alice, env.Sender)
	req.Equal([]string{"bob"}, delivery.Online)
	req.Empty(delivery.Offline)

	select {
	case <-delivery.Done():
		t.Fatal("delivery finished before the store answered")
	default:
	}

	// When the store answers
	close(f.store.gate)
	outcome := f.wait(t, delivery)

	// Then both sides receive the confirmation with the same temp id
	req.True(outcome.Confirmed())
	req.Equal(models.EnvelopeConfirmed, outcome.Envelope.Status)
	for _, conn := range []string{"ca", "cb"} {
		frames := f.emitter.to(conn)
		req.Len(frames, 2)
		req.Equal(models.EventMessageConfirmed, frames[1].event)
		confirmed := frames[1].payload.(models.MessageConfirmed)
		req.Equal(env.TempID, confirmed.TempID)
		req.Equal("msg-1", confirmed.ID)
		req.Equal(alice, confirmed.Sender)
	}
	req.Empty(f.notifier.calls)
}

func TestSend_PersistFailure(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.store.err = errors.New("disk full")
	f.registry.Connect(alice, "ca")
	f.registry.Connect(bob, "cb")

	delivery, err := f.dispatcher.Send(context.Background(), Request{RoomID: "dm-ab", Sender: alice, SenderConnID: "ca", Body: "hello"})
	req.NoError(err)
	outcome := f.wait(t, delivery)

	req.False(outcome.Confirmed())
	req.Error(outcome.Err)
	req.Equal(models.EnvelopeFailed, outcome.Envelope.Status)

	req.Equal([]models.EventType{models.EventMessageDelivered, models.EventMessageFailed}, f.emitter.events("cb"))
	req.Equal([]models.EventType{models.EventMessageSentAck, models.EventMessageFailed}, f.emitter.events("ca"))
	failed := f.emitter.to("cb")[1].payload.(models.MessageFailed)
	req.Equal(delivery.Envelope.TempID, failed.TempID)
	req.Equal("Failed to save message", failed.Error)
	req.Empty(f.notifier.calls)
}

func TestSend_NotifiesOfflineParticipantsOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.registry.Connect(alice, "ca")

	// Given carol is offline and listed twice by the room
	delivery, err := f.dispatcher.Send(context.Background(), Request{RoomID: "dm-ac", Sender: alice, SenderConnID: "ca", Body: "are you there?"})
	req.NoError(err)
	outcome := f.wait(t, delivery)

	// Then she is notified exactly once, after the message was stored
	req.True(outcome.Confirmed())
	req.Equal(1, outcome.NotificationsQueued)
	req.Equal([]models.Identity{carol}, f.notifier.calls)
	req.Equal("msg-1", f.notifier.last.MessageID)
	req.Equal(notify.MessageTypeRoom, f.notifier.last.Type)
}

func TestSend_NotificationFailureIsNotFatal(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.notifier.err = errors.New("queue down")
	f.registry.Connect(alice, "ca")

	delivery, err := f.dispatcher.Send(context.Background(), Request{RoomID: "dm-ac", Sender: alice, SenderConnID: "ca", Body: "hi"})
	req.NoError(err)
	outcome := f.wait(t, delivery)

	req.True(outcome.Confirmed())
	req.Len(f.notifier.calls, 1)
	req.Contains(f.emitter.events("ca"), models.EventMessageConfirmed)
}

func TestSend_ChannelGoesToLiveMembers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.registry.Connect(alice, "ca")
	f.registry.Connect(bob, "cb")
	f.registry.Connect(carol, "cc")
	f.registry.Join("alice", "general")
	f.registry.Join("bob", "general")

	delivery, err := f.dispatcher.Send(context.Background(), Request{RoomID: "general", Sender: alice, SenderConnID: "ca", Body: "hi all"})
	req.NoError(err)
	outcome := f.wait(t, delivery)

	req.True(outcome.Confirmed())
	req.Equal([]string{"bob"}, delivery.Online)
	req.Empty(f.emitter.to("cc"))
	req.Empty(f.notifier.calls)
}

func TestSend_ImageKey(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.registry.Connect(alice, "ca")

	delivery, err := f.dispatcher.Send(context.Background(), Request{
		RoomID:       "dm-ab",
		Sender:       alice,
		SenderConnID: "ca",
		Image:        "https://cdn.example.com/cat.png",
		Filename:     "my  cat.png",
		Timestamp:    "1700000000",
	})
	req.NoError(err)
	f.wait(t, delivery)

	req.Equal("my_cat.png-1700000000-chat", delivery.Envelope.ImageKey)
	req.Equal("my_cat.png-1700000000-chat", f.store.saved[0].ImageKey)
	req.Empty(f.store.saved[0].Body)
}

func TestSend_FollowsReconnectionsDuringPersist(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.store.gate = make(chan struct{})
	f.registry.Connect(alice, "ca1")
	f.registry.Connect(bob, "cb")

	delivery, err := f.dispatcher.Send(context.Background(), Request{RoomID: "dm-ab", Sender: alice, SenderConnID: "ca1", Body: "hello"})
	req.NoError(err)

	// While the message is being stored alice moves to a new connection
	// and bob goes away
	f.registry.Connect(alice, "ca2")
	f.registry.Disconnect("cb")
	close(f.store.gate)
	f.wait(t, delivery)

	req.Equal([]models.EventType{models.EventMessageSentAck}, f.emitter.events("ca1"))
	req.Equal([]models.EventType{models.EventMessageConfirmed}, f.emitter.events("ca2"))
	req.Equal([]models.EventType{models.EventMessageDelivered}, f.emitter.events("cb"))
}
