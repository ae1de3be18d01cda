package handlers

import "net/http"

type Routes struct {
	Auth      *AuthHandlers
	Rooms     *RoomHandlers
	WebSocket *WebSocketHandlers
	// Debug is optional; nil disables /debug endpoints.
	Debug *DebugHandlers
}

func (rt Routes) Handler() http.Handler {
	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("POST /login", rt.Auth.Login)
	mux.HandleFunc("POST /register", rt.Auth.Register)

	// Room routes
	mux.HandleFunc("GET /rooms", rt.Rooms.ListRooms)
	mux.HandleFunc("POST /rooms", rt.Rooms.CreateRoom)
	mux.HandleFunc("POST /rooms/direct", rt.Rooms.CreateDirectRoom)
	mux.HandleFunc("GET /rooms/{id}/members", rt.Rooms.GetRoomMembers)
	mux.HandleFunc("POST /rooms/{id}/invite", rt.Rooms.InviteUser)
	mux.HandleFunc("DELETE /rooms/{id}/leave", rt.Rooms.LeaveRoom)
	mux.HandleFunc("GET /rooms/{id}/messages/last", rt.Rooms.GetLastMessage)
	mux.HandleFunc("GET /rooms/{id}/online", rt.Rooms.GetOnlineMembers)

	// WebSocket route
	mux.HandleFunc("GET /ws", rt.WebSocket.HandleWebSocket)

	mux.HandleFunc("GET /health", Health)
	if rt.Debug != nil {
		mux.HandleFunc("GET /debug/presence", rt.Debug.Presence)
		mux.HandleFunc("GET /debug/presence/{id}", rt.Debug.User)
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
