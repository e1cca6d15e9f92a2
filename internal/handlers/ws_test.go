package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chepyr/go-todo-tree/internal/models"
	"github.com/chepyr/go-todo-tree/internal/tasks"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// dialWS opens /api/ws with the token in the query string and waits until
// the hub has registered the connection.
func dialWS(t *testing.T, env *testEnv, server *httptest.Server, userID uuid.UUID, authz string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + strings.TrimPrefix(authz, "Bearer ")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.h.WSHub.Count(userID) == 0 {
		if time.Now().After(deadline) {
			conn.Close()
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func TestWebSocket_ReceivesOwnTaskEvents(t *testing.T) {
	env := setupHTTP(t)
	aliceID, alice := newUser(t, env, "alice@example.com")
	_, bob := newUser(t, env, "bob@example.com")

	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, env, server, aliceID, alice)
	defer conn.Close()

	// bob's change must not reach alice
	createTask(t, env, bob, `{"title":"bob's","priority":"low"}`)
	task := createTask(t, env, alice, `{"title":"alice's","priority":"low"}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event struct {
		Event tasks.Event `json:"event"`
		Task  struct {
			ID uuid.UUID `json:"id"`
		} `json:"task"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("decode %s: %v", message, err)
	}
	if event.Event != tasks.EventCreated || event.Task.ID != task.ID {
		t.Errorf("event = %+v, want task_created for %s", event, task.ID)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := setupHTTP(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := &Handler{AllowedOrigins: []string{"https://app.example.com"}}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://api.example.com", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "http://api.example.com/api/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

// a client that never reads must not stall mutations; it gets disconnected
func TestWSHub_SlowClientIsDropped(t *testing.T) {
	env := setupHTTP(t)
	userID, authz := newUser(t, env, "slow@example.com")
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, env, server, userID, authz)
	defer conn.Close()

	big := &models.Task{ID: uuid.New(), OwnerID: userID, Title: "big",
		Description: strings.Repeat("x", 1<<20)}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 4*sendBuffer; i++ {
			env.h.WSHub.TaskChanged(userID, tasks.EventUpdated, big)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("TaskChanged blocked on a client that does not read")
	}
	if n := env.h.WSHub.Count(userID); n != 0 {
		t.Errorf("slow client still registered, count = %d", n)
	}

	// other owners are unaffected
	_, other := newUser(t, env, "fast@example.com")
	createTask(t, env, other, `{"title":"still works","priority":"low"}`)
}

func TestWebSocket_LogoutClosesConnections(t *testing.T) {
	env := setupHTTP(t)
	userID, authz := newUser(t, env, "leaving@example.com")
	server := httptest.NewServer(env.router)
	defer server.Close()

	conn := dialWS(t, env, server, userID, authz)
	defer conn.Close()

	if rec := env.do(t, http.MethodPost, "/api/logout", authz, ""); rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d body=%s", rec.Code, rec.Body.String())
	}
	if n := env.h.WSHub.Count(userID); n != 0 {
		t.Errorf("connections after logout = %d, want 0", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read after logout = %v, want a normal close", err)
	}
}
