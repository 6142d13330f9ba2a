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

func TestHubBroadcastOnlyReachesOwner(t *testing.T) {
	hub := NewHub(nil)
	owner := &Client{send: make(chan []byte, 1)}
	other := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", owner)
	hub.Register("user-2", other)

	hub.BroadcastBalance("user-1", BalanceUpdate{AccountID: "acc-1", Balance: "749.50", Currency: "USD"})

	require.Len(t, owner.send, 1)
	assert.JSONEq(t, `{"account_id":"acc-1","balance":749.50,"currency":"USD"}`, string(<-owner.send))
	assert.Empty(t, other.send)
}

func TestHubBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)

	hub.BroadcastBalance("user-1", BalanceUpdate{Balance: "1.00"})
	hub.BroadcastBalance("user-1", BalanceUpdate{Balance: "2.00"})

	assert.Len(t, client.send, 1)
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub(nil)
	client := &Client{send: make(chan []byte, 1)}
	hub.Register("user-1", client)
	assert.Equal(t, 1, hub.Connections("user-1"))

	hub.Unregister("user-1", client)
	hub.Unregister("user-1", client)
	assert.Zero(t, hub.Connections("user-1"))
}

func TestServeWSDeliversUpdates(t *testing.T) {
	hub := NewHub(nil)
	upgrader := NewUpgrader([]string{"*"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(w, r, upgrader, hub, "user-1")
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connections("user-1") == 1 }, time.Second, 10*time.Millisecond)
	hub.BroadcastBalance("user-1", BalanceUpdate{AccountID: "acc-1", Balance: "1250.50", Currency: "USD", Reference: "TRF-1"})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	var update BalanceUpdate
	require.NoError(t, json.Unmarshal(message, &update))
	assert.Equal(t, "TRF-1", update.Reference)
	assert.Equal(t, json.Number("1250.50"), update.Balance)
}

func TestUpgraderChecksOrigin(t *testing.T) {
	upgrader := NewUpgrader([]string{"https://app.example.com"})
	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://app.example.com")
	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example.com")

	assert.True(t, upgrader.CheckOrigin(allowed))
	assert.False(t, upgrader.CheckOrigin(denied))
}
