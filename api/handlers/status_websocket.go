package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatusMessage is sent to status stream clients
type StatusMessage struct {
	Type  string   `json:"type"` // status, directory
	Lines []string `json:"lines,omitempty"`
	Path  string   `json:"path,omitempty"`
}

type statusClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StatusHub fans queue status and directory changes out to websocket
// clients. It is registered as a listener on the queue and directory
// managers and never blocks them: a client that falls behind is dropped.
type StatusHub struct {
	current func() []string
	logger  *zap.Logger
	mu      sync.RWMutex
	clients map[*statusClient]bool
}

// NewStatusHub creates a hub. current supplies the snapshot sent to newly
// connected clients.
func NewStatusHub(current func() []string, logger *zap.Logger) *StatusHub {
	return &StatusHub{
		current: current,
		logger:  logger,
		clients: make(map[*statusClient]bool),
	}
}

// OnStatus implements domain.StatusListener
func (h *StatusHub) OnStatus(lines []string) {
	h.broadcast(StatusMessage{Type: "status", Lines: lines})
}

// OnDirectoryChange implements domain.StatusListener
func (h *StatusHub) OnDirectoryChange(path string) {
	h.broadcast(StatusMessage{Type: "directory", Path: path})
}

// ClientCount returns the number of connected clients
func (h *StatusHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles GET /api/v1/status/ws
func (h *StatusHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}

	client := &statusClient{conn: conn, send: make(chan []byte, 16)}
	if data, err := json.Marshal(StatusMessage{Type: "status", Lines: h.current()}); err == nil {
		client.send <- data
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	h.logger.Debug("Status client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	go h.writePump(client)
	h.readPump(client)
}

func (h *StatusHub) broadcast(msg StatusMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal status message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *StatusHub) unregister(client *statusClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
}

// readPump discards client messages and unregisters the client once the
// connection closes
func (h *StatusHub) readPump(client *statusClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StatusHub) writePump(client *statusClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
