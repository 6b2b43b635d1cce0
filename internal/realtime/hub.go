package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ridehail/internal/domain"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Identity is what the handshake token resolves to.
type Identity struct {
	UserID string
	Role   string
}

// AuthFunc validates a bearer token presented at handshake.
type AuthFunc func(token string) (Identity, error)

// MessageHandler handles one inbound event. A returned error is sent back to
// the client as an "error" event; the connection stays open.
type MessageHandler func(ctx context.Context, c *Client, event string, data json.RawMessage) error

// DisconnectHandler runs after a client's connection is gone.
type DisconnectHandler func(c *Client)

// Client is one authenticated websocket connection.
type Client struct {
	ID     string
	UserID string
	Role   string

	topics []string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

var (
	errClientGone = errors.New("client disconnected")
	errBufferFull = errors.New("send buffer full")
)

// Send queues an event for this connection only.
func (c *Client) Send(event string, payload any) error {
	if c.hub == nil {
		return errClientGone
	}
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.ID]; !ok {
		return errClientGone
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errBufferFull
	}
}

// Hub tracks live connections by topic and fans events out to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	byTopic  map[string]map[string]*Client
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	auth         AuthFunc
	onMessage    MessageHandler
	onDisconnect DisconnectHandler
	logger       *zap.Logger
}

// NewHub creates a Hub. Run must be started before connections are served.
func NewHub(auth AuthFunc, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		byTopic: make(map[string]map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
		auth:       auth,
		logger:     logger,
	}
}

// SetMessageHandler installs the inbound event handler.
func (h *Hub) SetMessageHandler(fn MessageHandler) { h.onMessage = fn }

// SetDisconnectHandler installs the disconnect callback.
func (h *Hub) SetDisconnectHandler(fn DisconnectHandler) { h.onDisconnect = fn }

// Run owns registration until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.byTopic = make(map[string]map[string]*Client)
			h.mu.Unlock()
			h.logger.Info("hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			for _, t := range c.topics {
				if h.byTopic[t] == nil {
					h.byTopic[t] = make(map[string]*Client)
				}
				h.byTopic[t][c.ID] = c
			}
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("client_id", c.ID), zap.String("user_id", c.UserID), zap.String("role", c.Role))

		case c := <-h.unregister:
			if h.remove(c) && h.onDisconnect != nil {
				go h.onDisconnect(c)
			}
		}
	}
}

// remove drops c from every index. Reports whether it was still registered.
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return false
	}
	delete(h.clients, c.ID)
	for _, t := range c.topics {
		delete(h.byTopic[t], c.ID)
		if len(h.byTopic[t]) == 0 {
			delete(h.byTopic, t)
		}
	}
	close(c.send)
	h.logger.Debug("client unregistered", zap.String("client_id", c.ID))
	return true
}

// Publish delivers an event to local subscribers of topic.
func (h *Hub) Publish(ctx context.Context, topic, event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}
	h.Deliver(topic, msg)
	return nil
}

// Deliver sends an already encoded envelope to local subscribers of topic.
// Slow consumers are skipped rather than blocking the publisher.
func (h *Hub) Deliver(topic string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.byTopic[topic] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping message for slow client", zap.String("client_id", c.ID), zap.String("topic", topic))
		}
	}
}

// Connected reports whether userID has at least one live connection here.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTopic[UserTopic(userID)]) > 0
}

// ServeHTTP authenticates the handshake, upgrades it and starts the pumps.
// The token is read from the "token" query parameter or a Bearer header.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	id, err := h.auth(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		ID:     uuid.New().String(),
		UserID: id.UserID,
		Role:   id.Role,
		topics: topicsFor(id),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func topicsFor(id Identity) []string {
	topics := []string{UserTopic(id.UserID)}
	switch id.Role {
	case string(domain.RoleDriver):
		topics = append(topics, DriverTopic(id.UserID))
	case string(domain.RoleAdmin):
		topics = append(topics, AdminTopic)
	}
	return topics
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			_ = c.Send(EventError, map[string]string{"message": "malformed message"})
			continue
		}
		if c.hub.onMessage == nil {
			continue
		}
		if err := c.hub.onMessage(context.Background(), c, env.Type, env.Data); err != nil {
			_ = c.Send(EventError, map[string]string{"event": env.Type, "message": err.Error()})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
