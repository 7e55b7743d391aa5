package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/freshness-monitor/backend/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// WebSocket message types for the live reading feed
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeReading   = "reading"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

// clientBuffer is how many messages may queue for a slow client before it
// is disconnected.
const clientBuffer = 32

// WSMessage is the envelope of every websocket message.
type WSMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// WSErrorResponse is the payload of an error message.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub pushes every evaluated result to connected dashboard clients. It
// implements monitor.Sink.
type Hub struct {
	upgrader     websocket.Upgrader
	maxMessageKB int
	log          logrus.FieldLogger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates a hub. maxMessageKB limits inbound message size.
func NewHub(maxMessageKB int, log logrus.FieldLogger) *Hub {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		maxMessageKB: maxMessageKB,
		log:          log.WithField("component", "websocket"),
		clients:      make(map[*wsClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues result for every client. Clients whose queue is full are
// dropped rather than slowing evaluation down.
func (h *Hub) Publish(_ context.Context, result *models.Result) error {
	data, err := encodeMessage(MsgTypeReading, result)
	if err != nil {
		return err
	}

	var slow []*wsClient
	h.mu.RLock()
	for cl := range h.clients {
		select {
		case cl.send <- data:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.log.Warn("dropping slow client")
		h.remove(cl)
	}
	return nil
}

// HandleWebSocket upgrades the connection and streams results until the
// client goes away.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	ws.SetReadLimit(int64(h.maxMessageKB) * 1024)

	cl := &wsClient{conn: ws, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("remote", c.RealIP()).Info("client connected")

	go h.writeLoop(cl)
	h.enqueue(cl, MsgTypeConnected, nil)

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("connection error")
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			h.enqueue(cl, MsgTypePong, nil)
		default:
			h.enqueue(cl, MsgTypeError, WSErrorResponse{
				Message: "Unknown message type: " + msg.Type,
				Code:    "INVALID_TYPE",
			})
		}
	}

	h.remove(cl)
	h.log.Info("client disconnected")
	return nil
}

// writeLoop is the only writer of cl.conn.
func (h *Hub) writeLoop(cl *wsClient) {
	defer cl.conn.Close()
	for data := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.WithError(err).Debug("failed to send message")
			return
		}
	}
	cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) enqueue(cl *wsClient, msgType string, payload interface{}) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		h.log.WithError(err).Error("failed to encode message")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	select {
	case cl.send <- data:
	default:
	}
}

// remove unregisters cl and closes its queue. It is safe to call twice.
func (h *Hub) remove(cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}

func encodeMessage(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}
