package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/database"
	"realtime-chat/internal/models"
	"realtime-chat/internal/services"
	"realtime-chat/pkg/logger"
)

type RoomHandlers struct {
	roomService *services.RoomService
	authService *auth.Service
}

func NewRoomHandlers(roomService *services.RoomService, authService *auth.Service) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		authService: authService,
	}
}

func (h *RoomHandlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req models.CreateRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := models.Validate(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), &req, user.ID)
	if err != nil {
		logger.Error("Create room error: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// CreateDirectRoom returns the bilateral room between the caller and peer_id.
func (h *RoomHandlers) CreateDirectRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req models.CreateDirectRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := models.Validate(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PeerID == user.ID {
		http.Error(w, "cannot open a direct room with yourself", http.StatusBadRequest)
		return
	}

	room, err := h.roomService.CreateDirectRoom(r.Context(), user.ID, req.PeerID)
	if err != nil {
		writeError(w, "Create direct room", err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	rooms, err := h.roomService.ListUserRooms(r.Context(), user.ID)
	if err != nil {
		writeError(w, "List rooms", err)
		return
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}

	writeJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandlers) InviteUser(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req models.InviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := models.Validate(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.roomService.InviteUser(r.Context(), r.PathValue("id"), user.ID, req.Email); err != nil {
		writeError(w, "Invite user", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user invited to room"})
}

func (h *RoomHandlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.roomService.LeaveRoom(r.Context(), user.ID, r.PathValue("id")); err != nil {
		writeError(w, "Leave room", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "left room successfully"})
}

func (h *RoomHandlers) GetRoomMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	members, err := h.roomService.GetRoomMembers(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		writeError(w, "Get room members", err)
		return
	}
	if members == nil {
		members = []*models.Member{}
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *RoomHandlers) GetLastMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	msg, err := h.roomService.GetLastMessage(r.Context(), r.PathValue("id"), user.ID)
	if err != nil {
		writeError(w, "Get last message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// GetOnlineMembers lists the users currently receiving live events for the room.
func (h *RoomHandlers) GetOnlineMembers(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	roomID := r.PathValue("id")
	members, err := h.roomService.GetOnlineMembers(r.Context(), roomID, user.ID)
	if err != nil {
		writeError(w, "Get online members", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id": roomID,
		"online":  members,
		"count":   len(members),
	})
}

func (h *RoomHandlers) authenticate(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	identity, err := h.authService.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return models.Identity{}, false
	}
	return identity, true
}

func writeError(w http.ResponseWriter, op string, err error) {
	var invalid validator.ValidationErrors
	switch {
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, database.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &invalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("%s error: %v", op, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}
