// Package presence is the in-memory source of truth for which users are
// connected, through which connection, and which rooms they receive live
// events for.
//
// All mutations run under a single registry-wide mutex so that the
// presence entries and the room index can never be observed out of sync.
package presence

import (
	"sync"
	"time"

	"realtime-chat/internal/models"
	"realtime-chat/pkg/logger"
)

type entry struct {
	connID      string
	identity    models.Identity
	connectedAt time.Time
	rooms       map[string]struct{}
}

type Registry struct {
	mu    sync.RWMutex
	users map[string]*entry              // userID -> presence entry
	conns map[string]string              // connID -> userID, current connections only
	rooms map[string]map[string]struct{} // roomID -> userIDs
	now   func() time.Time
	log   *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		users: make(map[string]*entry),
		conns: make(map[string]string),
		rooms: make(map[string]map[string]struct{}),
		now:   time.Now,
		log:   log,
	}
}

// ConnectionInfo describes the outcome of Connect.
type ConnectionInfo struct {
	ConnectionID         string
	UserID               string
	ConnectedAt          time.Time
	IsReconnection       bool
	PreviousConnectionID string
	// RoomIDs are the memberships inherited from the superseded entry.
	RoomIDs []string
}

// Notice is an outbound side effect the caller must deliver. The registry
// never talks to a transport itself.
type Notice struct {
	ConnectionID string
	Event        models.EventType
	Payload      any
}

// Connect registers connID as the current connection of identity.ID.
//
// If the user already has a presence entry the new connection supersedes the
// old one: room memberships carry over, the old connection id is dropped from
// the registry, and two notices are returned (one for each connection).
func (r *Registry) Connect(identity models.Identity, connID string) (ConnectionInfo, []Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	userID := identity.ID
	info := ConnectionInfo{
		ConnectionID: connID,
		UserID:       userID,
		ConnectedAt:  now,
	}

	existing, ok := r.users[userID]
	if !ok {
		r.users[userID] = &entry{
			connID:      connID,
			identity:    identity,
			connectedAt: now,
			rooms:       make(map[string]struct{}),
		}
		r.conns[connID] = userID
		info.RoomIDs = []string{}
		r.debug("user %s connected with %s", userID, connID)
		return info, nil
	}

	info.RoomIDs = sortedKeys(existing.rooms)

	if existing.connID == connID {
		// Same connection registering twice; nothing to supersede.
		return info, nil
	}

	previous := existing.connID
	delete(r.conns, previous)

	existing.connID = connID
	existing.identity = identity
	existing.connectedAt = now
	r.conns[connID] = userID

	info.IsReconnection = true
	info.PreviousConnectionID = previous

	r.debug("user %s reconnected: %s supersedes %s, preserving %d rooms", userID, connID, previous, len(info.RoomIDs))

	notices := []Notice{
		{
			ConnectionID: previous,
			Event:        models.EventAccountSuperseded,
			Payload: models.AccountSuperseded{
				NewConnectionID: connID,
				UserID:          userID,
				Message:         "Someone logged into your account from another device",
				Timestamp:       now,
			},
		},
		{
			ConnectionID: connID,
			Event:        models.EventAccountAlreadyLoggedIn,
			Payload: models.AccountAlreadyLoggedIn{
				PreviousConnectionID: previous,
				UserID:               userID,
				Message:              "This account is already logged in from another device",
				Timestamp:            now,
			},
		},
	}
	return info, notices
}

// Disconnect removes the presence entry owning connID, together with every
// room membership of that user. Stale or unknown connection ids are ignored.
// It returns the user id and whether an entry was removed.
func (r *Registry) Disconnect(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.conns[connID]
	if !ok {
		r.debug("disconnect for unknown connection %s ignored", connID)
		return "", false
	}
	delete(r.conns, connID)

	e, ok := r.users[userID]
	if !ok || e.connID != connID {
		return userID, false
	}

	for roomID := range e.rooms {
		r.removeFromRoom(userID, roomID)
	}
	delete(r.users, userID)

	r.debug("user %s disconnected (%s)", userID, connID)
	return userID, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[userID]
	return ok
}

// ConnectionOf returns the current connection id of userID.
func (r *Registry) ConnectionOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[userID]
	if !ok {
		return "", false
	}
	return e.connID, true
}

// UserOf returns the user owning connID if connID is still current.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.conns[connID]
	return userID, ok
}

func (r *Registry) debug(format string, v ...interface{}) {
	if r.log != nil {
		r.log.Debug(format, v...)
	}
}
