package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"realtime-chat/internal/config"
	"realtime-chat/internal/models"
	"realtime-chat/pkg/logger"
)

// Hub owns every live connection of the process, keyed by connection id,
// and is the outbound transport of the realtime layer.
type Hub struct {
	cfg     config.WebSocketConfig
	clients map[string]*Client
	mutex   sync.RWMutex
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:     cfg,
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Serve takes ownership of an upgraded connection: it assigns a connection
// id, registers the client, opens it on handler and starts both pumps.
func (h *Hub) Serve(conn *websocket.Conn, identity models.Identity, handler Handler) *Client {
	client := &Client{
		hub:      h,
		conn:     conn,
		id:       uuid.NewString(),
		identity: identity,
		handler:  handler,
		send:     make(chan []byte, h.cfg.SendBuffer),
		limiter:  newRateLimiter(h.cfg.RateLimitBurst, h.cfg.RateLimitInterval),
		done:     make(chan struct{}),
	}

	// Registered before Open so that events emitted during Open reach it.
	if !h.register(client) {
		conn.Close()
		return nil
	}

	go func() {
		defer h.wg.Done()
		client.WritePump()
	}()

	handler.Open(identity, client.id)

	go func() {
		defer h.wg.Done()
		client.ReadPump(h.ctx)
	}()

	logger.Debug("Connection %s opened for user %s", client.id, identity.ID)
	return client
}

func (h *Hub) register(c *Client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.ctx.Err() != nil {
		return false
	}
	h.clients[c.id] = c
	h.wg.Add(2)
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if current, ok := h.clients[c.id]; ok && current == c {
		delete(h.clients, c.id)
	}
}

// Emit sends an event to one connection. Unknown connections are ignored.
func (h *Hub) Emit(connID string, event models.EventType, payload any) {
	h.write(connID, models.OutboundFrame{Type: event, Payload: payload})
}

// Reply sends the ack of the inbound frame ackID.
func (h *Hub) Reply(connID, ackID string, ack models.Ack) {
	h.write(connID, models.OutboundFrame{Type: models.EventAck, ID: ackID, Payload: ack})
}

func (h *Hub) write(connID string, frame models.OutboundFrame) {
	h.mutex.RLock()
	client, ok := h.clients[connID]
	h.mutex.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("Error marshaling %s frame: %v", frame.Type, err)
		return
	}

	if !client.enqueue(data) {
		// Slow consumer: drop the connection rather than block the sender.
		logger.Warn("Send buffer of %s full, closing connection", connID)
		client.Close()
	}
}

func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown closes every connection and waits for their pumps to finish.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mutex.Lock()
	h.cancel()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.Unlock()

	for _, c := range clients {
		c.Close()
	}
	logger.Info("Closing %d client connections", len(clients))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
