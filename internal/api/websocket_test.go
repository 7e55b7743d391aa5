package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/freshness-monitor/backend/internal/logging"
	"github.com/freshness-monitor/backend/internal/models"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	e := echo.New()
	e.GET("/api/ws/readings", hub.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/readings"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg wsEnvelope
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_StreamsResults(t *testing.T) {
	hub := NewHub(64, logging.Discard())
	conn := dialHub(t, hub)

	assert.Equal(t, MsgTypeConnected, readEnvelope(t, conn).Type)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	result := &models.Result{
		ID:     "r1",
		Values: models.ChannelValues{27, 65, 45, 30, 40},
		Status: models.StatusAcceptable,
	}
	require.NoError(t, hub.Publish(context.Background(), result))

	msg := readEnvelope(t, conn)
	require.Equal(t, MsgTypeReading, msg.Type)
	var got models.Result
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, 27.0, got.Values[models.ChannelTemperature])
}

func TestHub_PingPong(t *testing.T) {
	hub := NewHub(64, logging.Discard())
	conn := dialHub(t, hub)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readEnvelope(t, conn).Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "upload"}))
	msg := readEnvelope(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "INVALID_TYPE")
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(64, logging.Discard())
	conn := dialHub(t, hub)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Publishing with nobody listening is fine.
	assert.NoError(t, hub.Publish(context.Background(), &models.Result{ID: "r2"}))
}
