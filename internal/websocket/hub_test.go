package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, allowedOrigins []string) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	hub.Start()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(NewHandler(hub, allowedOrigins, nil))
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestClientReceivesWelcomeAndRunEvents(t *testing.T) {
	hub, url := startServer(t, nil)
	conn := dial(t, url)

	welcome := readMessage(t, conn)
	assert.Equal(t, TypeConnection, welcome.Type)
	assert.Equal(t, 1, hub.ClientCount())

	hub.BroadcastUpdate("run:snapshot", "run-1", "running", map[string]interface{}{"current_step": "load"})

	msg := readMessage(t, conn)
	assert.Equal(t, "run:snapshot", msg.Type)
	assert.Equal(t, "run-1", msg.Step)
	assert.Equal(t, "running", msg.Status)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "load", data["current_step"])
	assert.NotEmpty(t, msg.Timestamp)
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub, url := startServer(t, nil)
	first := dial(t, url)
	second := dial(t, url)
	readMessage(t, first)
	readMessage(t, second)

	hub.BroadcastUpdate("run:complete", "run-2", "completed", nil)

	assert.Equal(t, "run:complete", readMessage(t, first).Type)
	assert.Equal(t, "run:complete", readMessage(t, second).Type)
	assert.EqualValues(t, 2, hub.Stats()["total_connections"])
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, url := startServer(t, nil)
	conn := dial(t, url)
	readMessage(t, conn)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStopClosesClients(t *testing.T) {
	hub, url := startServer(t, nil)
	conn := dial(t, url)
	readMessage(t, conn)

	hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(nil)

	done := make(chan struct{})
	go func() {
		// Not started: the queue fills and later events are dropped
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.BroadcastUpdate("run:snapshot", "run", "running", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked")
	}
	assert.EqualValues(t, 10, hub.Stats()["messages_dropped"])
}

func TestOriginCheck(t *testing.T) {
	_, url := startServer(t, []string{"http://localhost:8080"})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:8080"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
