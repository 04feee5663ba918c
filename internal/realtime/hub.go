// Package realtime pushes "table changed" notices to browsers over websockets using the
// Phoenix channel framing that Supabase Realtime clients speak. Events carry only the table,
// change type and row id; clients reload the affected list.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"

	TopicPrefix = "realtime:public:"
	// TopicAll subscribes to every table.
	TopicAll = TopicPrefix + "*"

	sendBuffer   = 32
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 50 * time.Second
	maxReadBytes = 4096
)

// Event describes one committed write. ClientID limits delivery to staff and that client's users.
type Event struct {
	Table    string `json:"table"`
	Type     string `json:"type"`
	ID       string `json:"id"`
	ClientID string `json:"clientId,omitempty"`
}

// Message is a Phoenix channel frame.
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

// Scope decides which events a connection may see.
type Scope struct {
	UserID   string
	ClientID string
	Staff    bool
}

func (s Scope) allows(e Event) bool {
	if s.Staff || s.ClientID == "" || e.ClientID == "" {
		return true
	}
	return s.ClientID == e.ClientID
}

type conn struct {
	ws     *websocket.Conn
	scope  Scope
	send   chan []byte
	mu     sync.Mutex
	topics map[string]struct{}
	once   sync.Once
}

func (c *conn) joined(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.topics[topic]
	if !ok {
		_, ok = c.topics[TopicAll]
	}
	return ok
}

func (c *conn) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	broker   Broker
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

func NewHub(broker Broker, logger *zap.Logger) *Hub {
	return &Hub{
		broker: broker,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*conn]struct{}),
	}
}

// Run consumes the broker until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.broker.Subscribe(ctx, h.broadcast)
}

// Publish sends an event through the broker. Failures are logged; a missed reload is harmless.
func (h *Hub) Publish(ctx context.Context, table, eventType, id, clientID string) {
	e := Event{Table: table, Type: eventType, ID: id, ClientID: clientID}
	if err := h.broker.Publish(ctx, e); err != nil {
		h.logger.Warn("publish realtime event", zap.String("table", table), zap.Error(err))
	}
}

// Connections reports how many sockets are open.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) broadcast(e Event) {
	topic := TopicPrefix + e.Table
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Message{Topic: topic, Event: e.Type, Payload: payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	var slow []*conn
	for c := range h.conns {
		if !c.scope.allows(e) || !c.joined(topic) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Info("dropping slow realtime subscriber", zap.String("user_id", c.scope.UserID))
		h.remove(c)
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.close()
}

// ServeWS upgrades the request and serves the connection until either side closes it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, scope Scope) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &conn{ws: ws, scope: scope, send: make(chan []byte, sendBuffer), topics: map[string]struct{}{}}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *conn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(maxReadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		status := "ok"
		switch msg.Event {
		case "phx_join":
			if !strings.HasPrefix(msg.Topic, TopicPrefix) {
				status = "error"
				break
			}
			c.mu.Lock()
			c.topics[msg.Topic] = struct{}{}
			c.mu.Unlock()
		case "phx_leave":
			c.mu.Lock()
			delete(c.topics, msg.Topic)
			c.mu.Unlock()
		case "heartbeat":
		default:
			status = "error"
		}
		if msg.Ref == nil {
			continue
		}
		reply, err := json.Marshal(Message{
			Topic:   msg.Topic,
			Event:   "phx_reply",
			Payload: json.RawMessage(`{"status":"` + status + `","response":{}}`),
			Ref:     msg.Ref,
			JoinRef: msg.JoinRef,
		})
		if err != nil {
			continue
		}
		if !h.enqueue(c, reply) {
			return
		}
	}
}

// enqueue queues frame unless the connection was already dropped or its buffer is full.
func (h *Hub) enqueue(c *conn, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.conns[c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
