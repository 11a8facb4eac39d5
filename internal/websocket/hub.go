package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"p2p/internal/model"
	"p2p/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
	queueSize      = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for dev simplicity
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenParser resolves the token query parameter to an actor.
type TokenParser func(token string) (model.Actor, error)

// Client represents a single connected WebSocket client
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	Actor model.Actor
}

// Authorizer answers whether a role may view a request or order in a given status.
type Authorizer interface {
	Allowed(role, action, status string, isOwner bool) bool
}

type envelope struct {
	event   model.WorkflowEvent
	payload []byte
}

// Hub maintains the set of active clients and fans workflow events out to them.
// A client receives an event only when its role may view the entity in the event's status.
type Hub struct {
	authz      Authorizer
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *logrus.Entry
}

// NewHub initializes a new WS Hub instance
func NewHub(authz Authorizer, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		authz:      authz,
		broadcast:  make(chan envelope, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger.WithField("component", "websocket"),
	}
}

// Publish queues event for delivery. It never blocks; events are dropped when the queue is full.
func (h *Hub) Publish(event model.WorkflowEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode workflow event")
		return
	}
	select {
	case h.broadcast <- envelope{event: event, payload: payload}:
	default:
		h.logger.WithField("type", event.Type).Warn("event queue full, dropping workflow event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) wants(c *Client, e model.WorkflowEvent) bool {
	// The actor always hears about the outcome of its own action.
	if c.Actor.UserID == e.ActorID {
		return true
	}
	isOwner := c.Actor.UserID == e.Requester
	if !e.IsOrderEvent() {
		return h.authz.Allowed(c.Actor.Role, policy.ActionViewRequest, e.Status, isOwner)
	}
	if h.authz.Allowed(c.Actor.Role, policy.ActionViewOrder, e.Status, isOwner) {
		return true
	}
	if c.Actor.Role != model.RoleApproverLevel1 && c.Actor.Role != model.RoleApproverLevel2 {
		return false
	}
	for _, id := range e.Approvers {
		if id == c.Actor.UserID {
			return true
		}
	}
	return false
}

// Run starts the core dispatch loop for WebSocket events. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.WithField("user_id", client.Actor.UserID).Debug("client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.WithField("user_id", client.Actor.UserID).Debug("client disconnected")
			}
			h.mu.Unlock()
		case e := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !h.wants(client, e.event) {
					continue
				}
				select {
				case client.Send <- e.payload:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Clients only listen; reads keep the connection alive
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Warn("websocket read failed")
			}
			break
		}
	}
}

// ServeWs handles websocket requests from the peer
func ServeWs(hub *Hub, c *gin.Context, parse TokenParser) {
	tokenString := c.Query("token")
	if tokenString == "" {
		hub.logger.Debug("connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	actor, err := parse(tokenString)
	if err != nil {
		hub.logger.WithError(err).Debug("connection rejected: invalid token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBufferSize), Actor: actor}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}
