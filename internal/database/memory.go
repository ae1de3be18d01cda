package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"realtime-chat/internal/models"
)

// MemoryDB keeps every record in process memory. It backs STORE_DRIVER=memory
// and the package tests of the layers above the store.
type MemoryDB struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	rooms       map[string]*models.Room
	memberships map[string]map[string]struct{} // roomID -> userIDs
	messages    map[string][]*models.Message   // roomID -> oldest first
	now         func() time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:       make(map[string]*models.User),
		rooms:       make(map[string]*models.Room),
		memberships: make(map[string]map[string]struct{}),
		messages:    make(map[string][]*models.Message),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryDB) Close() error { return nil }

func (m *MemoryDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryDB) CreateUser(_ context.Context, in *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, in.Email) {
			return nil, fmt.Errorf("email %q: %w", in.Email, ErrConflict)
		}
	}
	user := *in
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = m.now()
	m.users[user.ID] = &user

	cp := user
	return &cp, nil
}

func (m *MemoryDB) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	cp.PasswordHash = ""
	return &cp, nil
}

func (m *MemoryDB) GetUsersByIDs(_ context.Context, ids []string) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []*models.User
	for _, id := range lo.Uniq(ids) {
		if u, ok := m.users[id]; ok {
			cp := *u
			cp.PasswordHash = ""
			users = append(users, &cp)
		}
	}
	slices.SortFunc(users, func(a, b *models.User) int { return strings.Compare(a.ID, b.ID) })
	return users, nil
}

func (m *MemoryDB) CreateRoom(_ context.Context, req *models.CreateRoomRequest, ownerID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rooms {
		if r.Kind == models.RoomKindChannel && r.Name == req.Name {
			return nil, fmt.Errorf("failed to create room: name %q already taken", req.Name)
		}
	}
	room := &models.Room{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Kind:      models.RoomKindChannel,
		IsPublic:  req.IsPublic,
		OwnerID:   ownerID,
		Status:    models.RoomStatusActive,
		CreatedAt: m.now(),
	}
	m.rooms[room.ID] = room
	m.addMembershipLocked(ownerID, room.ID)

	cp := *room
	return &cp, nil
}

func (m *MemoryDB) GetOrCreateDirectRoom(_ context.Context, userA, userB string) (*models.Room, error) {
	a, b := orderedPair(userA, userB)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rooms {
		if r.IsDirect() && slices.Equal(r.Participants, []string{a, b}) {
			cp := *r
			return &cp, nil
		}
	}
	room := &models.Room{
		ID:           uuid.NewString(),
		Kind:         models.RoomKindDirect,
		Status:       models.RoomStatusActive,
		CreatedAt:    m.now(),
		Participants: []string{a, b},
	}
	m.rooms[room.ID] = room

	cp := *room
	return &cp, nil
}

// PutRoom stores room as is, replacing any room with the same id.
func (m *MemoryDB) PutRoom(room *models.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *room
	m.rooms[room.ID] = &cp
}

func (m *MemoryDB) GetRoomByID(_ context.Context, id string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryDB) ListUserRooms(_ context.Context, userID string) ([]*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rooms []*models.Room
	for _, r := range m.rooms {
		_, member := m.memberships[r.ID][userID]
		visible := r.IsDirect() && r.HasParticipant(userID) ||
			!r.IsDirect() && (r.IsPublic || member)
		if visible {
			cp := *r
			rooms = append(rooms, &cp)
		}
	}
	slices.SortFunc(rooms, func(a, b *models.Room) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return rooms, nil
}

func (m *MemoryDB) CreateMessage(_ context.Context, in *models.NewMessage) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.users[in.SenderID]
	if !ok {
		return nil, fmt.Errorf("failed to create message: sender: %w", ErrNotFound)
	}
	if _, ok := m.rooms[in.RoomID]; !ok {
		return nil, fmt.Errorf("failed to create message: room: %w", ErrNotFound)
	}

	now := m.now()
	msg := &models.Message{
		ID:        uuid.NewString(),
		RoomID:    in.RoomID,
		Body:      in.Body,
		Image:     in.Image,
		ImageKey:  in.ImageKey,
		Status:    models.MessageStatusUnread,
		Sender:    sender.Identity(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.messages[in.RoomID] = append(m.messages[in.RoomID], msg)

	cp := *msg
	return &cp, nil
}

func (m *MemoryDB) GetLastMessage(_ context.Context, roomID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[roomID]
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	cp := *msgs[len(msgs)-1]
	return &cp, nil
}

func (m *MemoryDB) AddMembership(_ context.Context, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addMembershipLocked(userID, roomID)
	return nil
}

func (m *MemoryDB) addMembershipLocked(userID, roomID string) {
	members, ok := m.memberships[roomID]
	if !ok {
		members = make(map[string]struct{})
		m.memberships[roomID] = members
	}
	members[userID] = struct{}{}
}

func (m *MemoryDB) RemoveMembership(_ context.Context, userID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.memberships[roomID], userID)
	return nil
}

func (m *MemoryDB) IsMember(_ context.Context, userID, roomID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.memberships[roomID][userID]
	return ok, nil
}

func (m *MemoryDB) GetRoomMembers(_ context.Context, roomID string) ([]*models.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var members []*models.Member
	for id := range m.memberships[roomID] {
		if u, ok := m.users[id]; ok {
			members = append(members, &models.Member{ID: u.ID, Username: u.Username, Email: u.Email})
		}
	}
	slices.SortFunc(members, func(a, b *models.Member) int { return strings.Compare(a.Username, b.Username) })
	return members, nil
}
