package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"realtime-chat/internal/auth"
	"realtime-chat/internal/models"
	ws "realtime-chat/internal/websocket"
	"realtime-chat/pkg/logger"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

type WebSocketHandlers struct {
	auth     Authenticator
	hub      *ws.Hub
	handler  ws.Handler
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(authenticator Authenticator, hub *ws.Hub, handler ws.Handler) *WebSocketHandlers {
	return &WebSocketHandlers{
		auth:    authenticator,
		hub:     hub,
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket authenticates before upgrading: a connection without a
// valid identity is refused and never reaches the presence registry.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		logger.Debug("WebSocket handshake refused: %v", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	h.hub.Serve(conn, identity, h.handler)
}
