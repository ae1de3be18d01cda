package presence

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Stats struct {
	TotalUsers       int `json:"totalUsers"`
	TotalRooms       int `json:"totalRooms"`
	TotalConnections int `json:"totalConnections"`
}

type UserRooms struct {
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	ConnectionID string    `json:"connectionId"`
	ConnectedAt  time.Time `json:"connectedAt"`
	Rooms        []string  `json:"rooms"`
}

// Snapshot is a read-only copy of the registry for operational inspection.
type Snapshot struct {
	Stats
	Users []UserRooms         `json:"users"`
	Rooms map[string][]string `json:"rooms"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.statsLocked()
}

func (r *Registry) statsLocked() Stats {
	return Stats{
		TotalUsers:       len(r.users),
		TotalRooms:       len(r.rooms),
		TotalConnections: len(r.conns),
	}
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := lo.MapToSlice(r.users, func(userID string, e *entry) UserRooms {
		return UserRooms{
			UserID:       userID,
			Username:     e.identity.Username,
			Email:        e.identity.Email,
			ConnectionID: e.connID,
			ConnectedAt:  e.connectedAt,
			Rooms:        sortedKeys(e.rooms),
		}
	})
	slices.SortFunc(users, func(a, b UserRooms) int {
		return strings.Compare(a.UserID, b.UserID)
	})

	rooms := make(map[string][]string, len(r.rooms))
	for roomID, members := range r.rooms {
		rooms[roomID] = sortedKeys(members)
	}

	return Snapshot{
		Stats: r.statsLocked(),
		Users: users,
		Rooms: rooms,
	}
}
