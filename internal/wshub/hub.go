// Package wshub tracks live WebSocket connections and pumps outbound
// messages to them. Room logic never touches a socket directly; it only
// writes envelopes into a client's Send channel.
package wshub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"

	"keyracer/internal/protocol"
)

const pingInterval = 25 * time.Second

// Client is a single connected participant.
type Client struct {
	PID  string
	Conn *websocket.Conn
	Send chan protocol.ServerMessage
}

func NewClient(pid string, conn *websocket.Conn) *Client {
	return &Client{
		PID:  pid,
		Conn: conn,
		Send: make(chan protocol.ServerMessage, 64),
	}
}

// Reply queues a message for this client only, dropping it if the client
// cannot keep up.
func (c *Client) Reply(msg protocol.ServerMessage) {
	select {
	case c.Send <- msg:
	default:
	}
}

// WritePump drains the Send channel onto the socket and keeps the
// connection alive with periodic pings. It returns when the channel closes,
// the context ends, or a write fails.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.Send:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[WSHub] marshal error: %v", err)
				continue
			}
			if err := c.Conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Hub holds every live connection by pid.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.PID] = c
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(pid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[pid]; ok {
		close(c.Send)
		delete(h.clients, pid)
	}
}

func (h *Hub) Get(pid string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[pid]
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
