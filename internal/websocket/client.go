package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"realtime-chat/internal/models"
	"realtime-chat/pkg/logger"
)

// Handler receives the lifecycle of every connection served by the hub.
type Handler interface {
	Open(identity models.Identity, connID string)
	Handle(ctx context.Context, identity models.Identity, connID string, raw []byte)
	Close(connID string)
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	id       string
	identity models.Identity
	handler  Handler
	send     chan []byte
	limiter  *rate.Limiter

	closeOnce sync.Once
	done      chan struct{}
}

// enqueue hands msg to the write pump without blocking.
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close asks the write pump to send a close frame and drop the connection,
// which in turn ends the read pump. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.handler.Close(c.id)
		c.Close()
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	// Set read deadline and pong handler for connection health
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error on %s: %v", c.id, err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.Reply(c.id, frameID(message), models.Ack{Success: false, Error: "rate limit exceeded"})
			continue
		}

		c.handler.Handle(ctx, c.identity, c.id, message)
	}
}

// frameID extracts the ack id of a raw frame, empty when it cannot be read.
func frameID(raw []byte) string {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return ""
	}
	return frame.ID
}

func (c *Client) WritePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Write error on %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
