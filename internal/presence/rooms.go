package presence

import (
	"slices"

	"github.com/samber/lo"

	"realtime-chat/internal/models"
)

type JoinResult int

const (
	Joined JoinResult = iota
	AlreadyJoined
	// NotConnected means the user has no presence entry; nothing changed.
	NotConnected
)

func (j JoinResult) String() string {
	switch j {
	case Joined:
		return "joined"
	case AlreadyJoined:
		return "already joined"
	default:
		return "not connected"
	}
}

// Member is a live member of a room.
type Member struct {
	UserID       string          `json:"userId"`
	ConnectionID string          `json:"connectionId"`
	User         models.Identity `json:"user"`
}

// Join adds userID to roomID. Joining twice is a no-op reported as AlreadyJoined.
func (r *Registry) Join(userID, roomID string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok {
		r.debug("user %s not connected, cannot join room %s", userID, roomID)
		return NotConnected
	}
	if _, in := e.rooms[roomID]; in {
		return AlreadyJoined
	}

	e.rooms[roomID] = struct{}{}
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[userID] = struct{}{}

	r.debug("user %s joined room %s", userID, roomID)
	return Joined
}

// Leave removes userID from roomID and reports whether it was a member.
func (r *Registry) Leave(userID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasMember := false
	if e, ok := r.users[userID]; ok {
		if _, in := e.rooms[roomID]; in {
			delete(e.rooms, roomID)
			wasMember = true
		}
	}
	r.removeFromRoom(userID, roomID)

	if wasMember {
		r.debug("user %s left room %s", userID, roomID)
	}
	return wasMember
}

// MembersOf resolves the live members of roomID, ordered by user id.
func (r *Registry) MembersOf(roomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userIDs := sortedKeys(r.rooms[roomID])
	members := make([]Member, 0, len(userIDs))
	for _, userID := range userIDs {
		e, ok := r.users[userID]
		if !ok {
			continue
		}
		members = append(members, Member{
			UserID:       userID,
			ConnectionID: e.connID,
			User:         e.identity,
		})
	}
	return members
}

func (r *Registry) IsMember(userID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[userID]
	if !ok {
		return false
	}
	_, in := e.rooms[roomID]
	return in
}

// RoomsOf lists the rooms userID is currently joined to.
func (r *Registry) RoomsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[userID]
	if !ok {
		return []string{}
	}
	return sortedKeys(e.rooms)
}

// removeFromRoom must be called with the write lock held. Empty rooms are dropped.
func (r *Registry) removeFromRoom(userID, roomID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := lo.Keys(set)
	slices.Sort(keys)
	return keys
}
