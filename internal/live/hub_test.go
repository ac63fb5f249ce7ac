package live

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/share-your-sound/internal/domain"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_PublishDeliversEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialHub(t, hub)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	hub.Publish(domain.Event{Type: domain.EventPostReported, PostID: 7, Reports: 3, At: at})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, domain.EventPostReported, msg.Type)
	assert.Equal(t, int64(7), msg.PostID)
	assert.Equal(t, 3, msg.Reports)
	assert.True(t, at.Equal(msg.At))
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialHub(t, hub)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	assert.NotPanics(t, func() {
		hub.Publish(domain.Event{Type: domain.EventPostCreated, PostID: 1})
	})
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_DropsSlowClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &client{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	hub.Publish(domain.Event{Type: domain.EventPostCreated, PostID: 1})
	assert.Equal(t, 1, hub.ClientCount())

	hub.Publish(domain.Event{Type: domain.EventPostCreated, PostID: 2})
	assert.Equal(t, 0, hub.ClientCount())

	_, ok := <-c.send
	assert.True(t, ok, "first event stays buffered")
	_, ok = <-c.send
	assert.False(t, ok, "channel is closed after drop")
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := dialHub(t, hub)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closes the connection")
}

func TestHub_RejectsPlainHTTP(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/posts/live", nil)

	hub.ServeHTTP(rec, req)

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, 0, hub.ClientCount())
}
