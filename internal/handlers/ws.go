package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to a client.
	writeWait = 10 * time.Second
	// sendBuffer is how many events may queue for a client before it is dropped.
	sendBuffer = 32
)

// wsClient is one open connection. Only its writer goroutine writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump delivers queued events until send is closed, then closes the
// connection.
func (c *wsClient) writePump(logger *log.Logger) {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Debug("websocket write failed", "err", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// WSHub fans task changes out to every open connection of the task's owner.
type WSHub struct {
	connections map[uuid.UUID]map[*wsClient]bool
	mutex       sync.Mutex
	logger      *log.Logger
}

func NewWSHub(logger *log.Logger) *WSHub {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHub{
		connections: make(map[uuid.UUID]map[*wsClient]bool),
		logger:      logger,
	}
}

type taskEvent struct {
	Event tasks.Event  `json:"event"`
	Task  *models.Task `json:"task"`
}

// TaskChanged implements tasks.Notifier. It never blocks on a client: one
// whose queue is full is disconnected.
func (hub *WSHub) TaskChanged(ownerID uuid.UUID, event tasks.Event, task *models.Task) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	clients, exists := hub.connections[ownerID]
	if !exists {
		return
	}

	message, err := json.Marshal(taskEvent{Event: event, Task: task})
	if err != nil {
		hub.logger.Error("marshal task event", "err", err)
		return
	}

	for client := range clients {
		select {
		case client.send <- message:
		default:
			hub.logger.Info("dropping slow websocket", "owner", ownerID)
			hub.dropLocked(ownerID, client)
		}
	}
}

// CloseOwner disconnects every connection of the owner, e.g. after its tokens
// are revoked.
func (hub *WSHub) CloseOwner(ownerID uuid.UUID) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	for client := range hub.connections[ownerID] {
		hub.dropLocked(ownerID, client)
	}
}

func (hub *WSHub) add(ownerID uuid.UUID, conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if hub.connections[ownerID] == nil {
		hub.connections[ownerID] = make(map[*wsClient]bool)
	}
	hub.connections[ownerID][client] = true
	return client
}

func (hub *WSHub) remove(ownerID uuid.UUID, client *wsClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.dropLocked(ownerID, client)
}

// dropLocked unregisters client and stops its writer. hub.mutex must be held;
// send is only ever closed here, after the client leaves the map.
func (hub *WSHub) dropLocked(ownerID uuid.UUID, client *wsClient) {
	clients := hub.connections[ownerID]
	if !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(hub.connections, ownerID)
	}
	close(client.send)
}

// Count returns the number of open connections for the owner.
func (hub *WSHub) Count(ownerID uuid.UUID) int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.connections[ownerID])
}

// GET /api/ws
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger().Info("websocket upgrade failed", "err", err)
		return
	}
	client := h.WSHub.add(user.ID, conn)
	go client.writePump(h.logger())
	h.logger().Debug("websocket connected", "user", user.ID)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.WSHub.remove(user.ID, client)
			return
		}
	}
}

// checkOrigin accepts same-host requests, requests without an Origin header
// and origins listed in AllowedOrigins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// tokenFromQuery lets browser websocket clients, which cannot set headers,
// pass the bearer token as ?token=.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}
