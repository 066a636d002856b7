package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, h *Hub, backlog ...Message) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(h, conn)
		for _, msg := range backlog {
			client.Send(msg)
		}
		client.Run()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastReachesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("events", nil)
	go h.Run(ctx)

	url := newTestServer(t, h, Text([]byte(`{"backlog":true}`)))

	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		conns = append(conns, conn)
	}
	waitForClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"label": "500"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	h.BroadcastBinary([]byte{0xFF, 0xD8})

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read backlog: %v", i, err)
		}
		if string(data) != `{"backlog":true}` {
			t.Errorf("client %d backlog = %s", i, data)
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		var got map[string]string
		if msgType != websocket.TextMessage || json.Unmarshal(data, &got) != nil || got["label"] != "500" {
			t.Errorf("client %d got type %d %s", i, msgType, data)
		}

		msgType, data, err = conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read binary: %v", i, err)
		}
		if msgType != websocket.BinaryMessage || len(data) != 2 {
			t.Errorf("client %d binary = type %d len %d", i, msgType, len(data))
		}
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("events", nil)
	go h.Run(ctx)
	url := newTestServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("events", nil)
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	url := newTestServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, h, 1)

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if h.IsRunning() {
		t.Error("hub should not be running")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close")
	}
}

func TestHub_BroadcastDropsWhenQueueFull(t *testing.T) {
	h := New("events", nil) // Run never started
	for i := 0; i < cap(h.broadcast)+3; i++ {
		h.Broadcast(Text([]byte("{}")))
	}
	if got := h.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("events", nil)
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}
