package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/savory/internal/auth"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID int64) *Client {
	return &Client{hub: hub, userID: userID, send: make(chan []byte, sendBufferSize)}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
	}
	return Message{}
}

func TestRegisterUnregister(t *testing.T) {
	hub := testHub()
	a1, a2, b := mockClient(hub, 1), mockClient(hub, 1), mockClient(hub, 2)
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)

	if hub.ClientCount() != 3 || hub.UserCount() != 2 {
		t.Fatalf("clients = %d users = %d", hub.ClientCount(), hub.UserCount())
	}
	hub.Unregister(a1)
	hub.Unregister(a1)
	if hub.ClientCount() != 2 || hub.UserCount() != 2 {
		t.Fatalf("after unregister: clients = %d users = %d", hub.ClientCount(), hub.UserCount())
	}
	hub.Unregister(a2)
	if hub.UserCount() != 1 {
		t.Fatalf("users = %d, want 1", hub.UserCount())
	}
	hub.Unregister(b)
	if hub.ClientCount() != 0 {
		t.Fatalf("clients = %d, want 0", hub.ClientCount())
	}
}

func TestSendToUser(t *testing.T) {
	hub := testHub()
	a1, a2, b := mockClient(hub, 1), mockClient(hub, 1), mockClient(hub, 2)
	for _, c := range []*Client{a1, a2, b} {
		hub.Register(c)
	}

	n := hub.SendToUser(1, NewMessage("pantry_item", "created", 42, map[string]any{"ingredient_id": float64(7)}))
	if n != 2 {
		t.Errorf("delivered to %d clients, want 2", n)
	}
	for _, c := range []*Client{a1, a2} {
		got := receive(t, c)
		if got.Type != "pantry_item_created" || got.ID != 42 || got.Extra["ingredient_id"] != float64(7) {
			t.Errorf("message = %+v", got)
		}
	}
	select {
	case <-b.send:
		t.Error("other user received the message")
	default:
	}

	if n := hub.SendToUser(99, NewMessage("pantry_item", "deleted", 1, nil)); n != 0 {
		t.Errorf("delivered %d messages to a user with no connections", n)
	}
}

func TestBroadcast(t *testing.T) {
	hub := testHub()
	a, b := mockClient(hub, 1), mockClient(hub, 2)
	hub.Register(a)
	hub.Register(b)
	if n := hub.Broadcast(NewMessage("recipes", "changed", 0, nil)); n != 2 {
		t.Errorf("broadcast reached %d, want 2", n)
	}
	if got := receive(t, b); got.Type != "recipes_changed" {
		t.Errorf("type = %s", got.Type)
	}
}

func TestSendFullBuffer(t *testing.T) {
	hub := testHub()
	c := mockClient(hub, 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.SendToUser(1, NewMessage("shopping_item", "toggled", int64(i), nil))
	}
	if n := hub.SendToUser(1, NewMessage("shopping_item", "toggled", 999, nil)); n != 0 {
		t.Errorf("expected the overflow message to be dropped, delivered %d", n)
	}
	if len(c.send) != sendBufferSize {
		t.Errorf("buffered %d, want %d", len(c.send), sendBufferSize)
	}
	hub.Unregister(c)
}

func TestConcurrentAccess(t *testing.T) {
	hub := testHub()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			c := mockClient(hub, uid)
			hub.Register(c)
			hub.SendToUser(uid, NewMessage("test", "concurrent", 0, nil))
			hub.Broadcast(NewMessage("test", "all", 0, nil))
			hub.Unregister(c)
		}(int64(i % 4))
	}
	wg.Wait()
	if hub.ClientCount() != 0 || hub.UserCount() != 0 {
		t.Errorf("clients = %d users = %d after concurrent test", hub.ClientCount(), hub.UserCount())
	}
}

func TestHandleWebSocket(t *testing.T) {
	hub := testHub()
	h := HandleWebSocket(hub, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("anon") == "" {
			r = r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{UserID: 5}))
		}
		h(w, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, resp, err := ws.Dial(ctx, url+"?anon=1", nil); err == nil {
		t.Fatal("expected anonymous dial to fail")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", resp.StatusCode)
	}

	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.SendToUser(5, NewMessage("pantry_item", "deleted", 3, nil)) != 1 {
		t.Fatal("client was not registered")
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != "pantry_item_deleted" || got.ID != 3 {
		t.Errorf("message = %+v", got)
	}

	conn.Close(ws.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Error("client still registered after close")
	}
}
