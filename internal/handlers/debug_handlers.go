package handlers

import (
	"net/http"

	"realtime-chat/internal/presence"
	ws "realtime-chat/internal/websocket"
)

type DebugHandlers struct {
	registry *presence.Registry
	hub      *ws.Hub
}

func NewDebugHandlers(registry *presence.Registry, hub *ws.Hub) *DebugHandlers {
	return &DebugHandlers{registry: registry, hub: hub}
}

// Presence dumps the registry: counters, every online user with its rooms,
// and every room with its live members.
func (h *DebugHandlers) Presence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"presence":    h.registry.Snapshot(),
		"connections": h.hub.Count(),
	})
}

// User reports where one user is connected and which rooms it is live in.
func (h *DebugHandlers) User(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	connID, online := h.registry.ConnectionOf(userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":       userID,
		"online":       online,
		"connectionId": connID,
		"rooms":        h.registry.RoomsOf(userID),
	})
}

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
