package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"quiz-client/internal/app"
	"quiz-client/internal/infra/memory"
)

func TestWebSocketRejectsForeignOrigins(t *testing.T) {
	session := app.NewSessionManager(memory.NewTokenStore(), nil, app.SessionConfig{})
	defer session.Close()
	server := httptest.NewServer(http.HandlerFunc(NewWSHandler(session, app.NewBroadcaster()).ServeWS))
	defer server.Close()
	u := "ws" + server.URL[len("http"):]

	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatalf("expected foreign origin to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}

	for _, origin := range []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://[::1]:5173"} {
		conn, _, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {origin}})
		if err != nil {
			t.Fatalf("%s: dial: %v", origin, err)
		}
		conn.Close()
	}
}

func TestWebSocketActivityAndEvents(t *testing.T) {
	store := memory.NewTokenStore()
	events := app.NewBroadcaster()
	session := app.NewSessionManager(store, nil, app.SessionConfig{Notifier: events, Navigator: events})
	defer session.Close()
	ctx := context.Background()
	if err := session.Initialize(ctx); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := session.Login(ctx, "tok", regularUser()); err != nil {
		t.Fatalf("login: %v", err)
	}
	session.StartInactivity()

	r := chi.NewRouter()
	r.Get("/ws", NewWSHandler(session, events).ServeWS)
	server := httptest.NewServer(r)
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// session state first
	_, payload := readNext(conn, t, "session")
	if payload["authenticated"] != true {
		t.Fatalf("expected authenticated snapshot, got %v", payload)
	}

	activity := map[string]any{
		"type":    "activity",
		"payload": map[string]any{"event": "keydown"},
	}
	if err := conn.WriteJSON(activity); err != nil {
		t.Fatalf("write activity: %v", err)
	}
	_, payload = readNext(conn, t, "activity")
	if payload["reset"] != true {
		t.Fatalf("expected keydown to reset inactivity, got %v", payload)
	}

	ignored := map[string]any{
		"type":    "activity",
		"payload": map[string]any{"event": "scroll"},
	}
	if err := conn.WriteJSON(ignored); err != nil {
		t.Fatalf("write activity: %v", err)
	}
	if _, payload = readNext(conn, t, "activity"); payload["reset"] != false {
		t.Fatalf("expected scroll to be ignored, got %v", payload)
	}

	events.Notify(app.Notification{Kind: app.NoticeInfo, Title: "Hi", Message: "there"})
	_, payload = readNext(conn, t, "notification")
	note, _ := payload["notification"].(map[string]any)
	if note["title"] != "Hi" {
		t.Fatalf("expected notification payload, got %v", payload)
	}

	events.Navigate(app.RouteLogin)
	if _, payload = readNext(conn, t, "navigate"); payload["to"] != app.RouteLogin {
		t.Fatalf("expected navigate to login, got %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
