// Package streaming pushes game updates to WebSocket clients: recorded
// events, balance changes, substitutions, and match state from the live
// poller.
package streaming

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventType represents the type of streaming event.
type EventType string

const (
	EventTypeGameEvent    EventType = "event"
	EventTypeBalances     EventType = "balances"
	EventTypeSubstitution EventType = "substitution"
	EventTypeSession      EventType = "session"
	EventTypeMatch        EventType = "match"
	EventTypeError        EventType = "error"
	EventTypeHeartbeat    EventType = "heartbeat"
)

// Event is a streaming event sent to clients. SessionID scopes the event;
// clients watching a specific session only receive its events.
type Event struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Hub manages WebSocket connections and broadcasts events.
type Hub struct {
	log *logrus.Entry

	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	upgrader websocket.Upgrader
}

// Client represents a WebSocket client connection. A client watches either
// every session or one session chosen with a watch message.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	watchMu sync.RWMutex
	watch   string // session id; empty means all sessions
}

// NewHub creates a new streaming hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:        log.WithField("component", "streaming"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // the API layer owns CORS policy
			},
		},
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithField("clients", total).Debug("client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.WithField("clients", total).Debug("client disconnected")

		case event := <-h.broadcast:
			h.broadcastEvent(event)

		case <-heartbeat.C:
			h.Broadcast(Event{
				Type:      EventTypeHeartbeat,
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"clients": h.ClientCount()},
			})
		}
	}
}

func (h *Hub) broadcastEvent(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.watching(event.SessionID) {
			continue
		}

		select {
		case client.send <- data:
		default:
			// Client buffer full, close connection
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Broadcast sends an event to all clients watching its session.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("broadcast channel full, dropping event")
	}
}

// BroadcastGameEvent broadcasts a recorded game event with its balance
// deltas.
func (h *Hub) BroadcastGameEvent(sessionID string, event interface{}) {
	h.Broadcast(Event{
		Type:      EventTypeGameEvent,
		SessionID: sessionID,
		Data:      event,
	})
}

// BroadcastBalances broadcasts the full balance table of a session.
func (h *Hub) BroadcastBalances(sessionID string, balances interface{}) {
	h.Broadcast(Event{
		Type:      EventTypeBalances,
		SessionID: sessionID,
		Data:      balances,
	})
}

// BroadcastSubstitution broadcasts a roster swap.
func (h *Hub) BroadcastSubstitution(sessionID string, sub interface{}) {
	h.Broadcast(Event{
		Type:      EventTypeSubstitution,
		SessionID: sessionID,
		Data:      sub,
	})
}

// BroadcastSession broadcasts a session lifecycle change.
func (h *Hub) BroadcastSession(sessionID string, status string) {
	h.Broadcast(Event{
		Type:      EventTypeSession,
		SessionID: sessionID,
		Data:      map[string]interface{}{"status": status},
	})
}

// BroadcastMatch broadcasts live match state from the poller.
func (h *Hub) BroadcastMatch(sessionID string, match interface{}) {
	h.Broadcast(Event{
		Type:      EventTypeMatch,
		SessionID: sessionID,
		Data:      match,
	})
}

// BroadcastError broadcasts an error event.
func (h *Hub) BroadcastError(sessionID string, err error, context string) {
	h.Broadcast(Event{
		Type:      EventTypeError,
		SessionID: sessionID,
		Data: map[string]interface{}{
			"error":   err.Error(),
			"context": context,
		},
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles WebSocket upgrade requests. An optional ?session= query
// parameter narrows the stream to one session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		watch: r.URL.Query().Get("session"),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// watching reports whether the client should receive events for a session.
// Heartbeats and other unscoped events go to everyone.
func (c *Client) watching(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	c.watchMu.RLock()
	defer c.watchMu.RUnlock()
	return c.watch == "" || c.watch == sessionID
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Debug("read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// handleMessage processes incoming client messages. The only supported
// message switches which session the client watches.
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type    string `json:"type"`
		Session string `json:"session"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	if msg.Type == "watch" {
		c.watchMu.Lock()
		c.watch = msg.Session
		c.watchMu.Unlock()
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Write queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
