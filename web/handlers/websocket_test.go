package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram/internal/storage"
)

func newRunningHub(t *testing.T) *WebSocketHub {
	t.Helper()
	hub := NewWebSocketHub(7411)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := newRunningHub(t)

	client := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(client)

	event := NewActivityEvent("memory_stored", storage.Scope{OwnerID: "owner-1", PersonaID: "persona-1"}, nil)
	hub.Broadcast(event)

	select {
	case data := <-client.SendChan:
		var got ActivityEvent
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "memory_stored", got.Type)
		assert.Equal(t, "owner-1", got.OwnerID)
		assert.Equal(t, "persona-1", got.PersonaID)
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHubEvictsSlowClients(t *testing.T) {
	hub := newRunningHub(t)

	// An unbuffered channel that is never drained simulates a stuck client.
	slow := &MockClient{SendChan: make(chan []byte)}
	healthy := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(slow)
	hub.Register(healthy)

	hub.Broadcast(NewActivityEvent("memory_reinforced", storage.Scope{OwnerID: "o", PersonaID: "p"}, nil))

	select {
	case <-healthy.SendChan:
	case <-time.After(time.Second):
		t.Fatal("healthy client did not receive the event")
	}

	// The slow client's channel was closed on eviction.
	select {
	case _, open := <-slow.SendChan:
		assert.False(t, open, "slow client channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("slow client was not evicted")
	}

	// A second broadcast still reaches the healthy client.
	hub.Broadcast(NewActivityEvent("memory_reinforced", storage.Scope{OwnerID: "o", PersonaID: "p"}, nil))
	select {
	case <-healthy.SendChan:
	case <-time.After(time.Second):
		t.Fatal("healthy client did not receive the second event")
	}
}

func TestHubUnregister(t *testing.T) {
	hub := newRunningHub(t)

	client := &MockClient{SendChan: make(chan []byte, 8)}
	hub.Register(client)
	hub.Unregister(client)

	select {
	case _, open := <-client.SendChan:
		assert.False(t, open, "unregistered client channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("unregister did not close the send channel")
	}
}

func TestHubRegisterAfterStopDoesNotBlock(t *testing.T) {
	// No Run loop: the hub has already shut down, so nothing drains the
	// register channel.
	hub := NewWebSocketHub(7411)
	hub.Stop()

	client := &MockClient{SendChan: make(chan []byte, 1)}
	done := make(chan struct{})
	go func() {
		hub.Register(client)
		hub.Unregister(client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Register/Unregister blocked after Stop")
	}

	// The stopped hub closes the rejected client's channel.
	_, open := <-client.SendChan
	assert.False(t, open, "rejected client channel should be closed")
}

func TestServeHTTPRejectsUpgradeAfterStop(t *testing.T) {
	hub := NewWebSocketHub(7411)
	hub.Stop()

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServeHTTPRejectsBadOrigin(t *testing.T) {
	hub := NewWebSocketHub(7411)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://evil.example.com")
	hub.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
