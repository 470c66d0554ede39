package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MineSafetyAPI/internal/alerting"
	"MineSafetyAPI/internal/logger"
	"MineSafetyAPI/internal/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	log := logger.NewNop()
	hub := NewHub(log)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, log)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m Message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func TestBroadcastRespectsZoneFilter(t *testing.T) {
	hub, srv := startHub(t)

	all := dial(t, srv, "")
	kolar := dial(t, srv, "?zone_id=kolar-l3")
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("alert.created", "jharia-a", map[string]string{"id": "a-1"})
	hub.Broadcast("alert.created", "kolar-l3", map[string]string{"id": "a-2"})

	first := readMessage(t, all)
	assert.Equal(t, "jharia-a", first.ZoneID)
	second := readMessage(t, all)
	assert.Equal(t, "kolar-l3", second.ZoneID)

	only := readMessage(t, kolar)
	assert.Equal(t, "kolar-l3", only.ZoneID)
	assert.Equal(t, "alert.created", only.Type)
}

func TestForwardAlertEvents(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	events := make(chan alerting.Event, 1)
	events <- alerting.Event{
		Type:  alerting.EventEscalated,
		Alert: models.Alert{ID: "a-9", ZoneID: "odisha-bauxite", Severity: models.SeverityCritical},
		At:    time.Now(),
	}
	close(events)
	hub.Forward(context.Background(), events)

	m := readMessage(t, conn)
	assert.Equal(t, "alert.escalated", m.Type)
	payload, ok := m.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a-9", payload["id"])
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast("alert.created", "z", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked after hub stopped")
	}
}
