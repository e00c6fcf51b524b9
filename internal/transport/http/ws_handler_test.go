package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/chatlink-relay/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, testConfig())

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body.Status != "ok" || body.Timestamp == "" || body.ActiveUsers != 0 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestWebSocketRoomRoundTrip(t *testing.T) {
	env := startTestServer(t, testConfig())

	alice := env.dial(t)
	bob := env.dial(t)

	roster := authenticate(t, alice, "a", "alice", "r1")
	if len(roster.Users) != 1 || roster.Users[0].ID != "a" || roster.Users[0].Status != "online" {
		t.Fatalf("unexpected roster: %+v", roster)
	}

	roster = authenticate(t, bob, "b", "bob", "r1")
	if len(roster.Users) != 2 {
		t.Fatalf("unexpected roster for bob: %+v", roster)
	}

	expectEvent(t, alice, "room-users-updated", nil)
	var joined proto.EventPresence
	expectEvent(t, alice, "user-joined", &joined)
	if joined.UserID != "b" || joined.DisplayName != "bob" || joined.Timestamp == 0 {
		t.Fatalf("unexpected user-joined: %+v", joined)
	}

	send(t, alice, proto.InboundTypeSendMessage, proto.SendMessageData{
		RoomID:  "r1",
		Content: "watch https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	})
	for _, conn := range []*websocket.Conn{alice, bob} {
		var msg proto.EventMessage
		expectEvent(t, conn, "new-message", &msg)
		if msg.SenderID != "a" || msg.Kind != "text" || msg.ID == "" {
			t.Fatalf("unexpected message: %+v", msg)
		}
		if msg.LinkPreview == nil || msg.LinkPreview.Provider != "YouTube" {
			t.Fatalf("expected youtube preview, got %+v", msg.LinkPreview)
		}
	}

	send(t, bob, proto.InboundTypeTypingStart, proto.TypingData{RoomID: "r1"})
	var typing proto.EventTyping
	expectEvent(t, alice, "user-typing", &typing)
	if !typing.IsTyping || typing.UserID != "b" {
		t.Fatalf("unexpected typing: %+v", typing)
	}

	bob.Close(websocket.StatusNormalClosure, "bye")

	var users proto.EventRoomUsers
	expectEvent(t, alice, "room-users-updated", &users)
	if len(users.Users) != 1 || users.Users[0].ID != "a" {
		t.Fatalf("unexpected roster after leave: %+v", users)
	}
	var left proto.EventPresence
	expectEvent(t, alice, "user-left", &left)
	if left.UserID != "b" {
		t.Fatalf("unexpected user-left: %+v", left)
	}
}

func TestWebSocketMessageErrors(t *testing.T) {
	env := startTestServer(t, testConfig())
	conn := env.dial(t)

	send(t, conn, proto.InboundTypeSendMessage, proto.SendMessageData{RoomID: "r1", Content: "hi"})
	var msgErr proto.EventMessageError
	expectEvent(t, conn, "message-error", &msgErr)
	if msgErr.Code != "not_authenticated" || msgErr.Reason == "" {
		t.Fatalf("unexpected message-error: %+v", msgErr)
	}

	authenticate(t, conn, "a", "alice", "r1")
	send(t, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{UserID: "a", RoomID: "r2"})
	expectEvent(t, conn, "message-error", &msgErr)
	if msgErr.Code != "already_bound" {
		t.Fatalf("expected already_bound, got %+v", msgErr)
	}
}

func TestWebSocketProtocolErrorsKeepConnectionOpen(t *testing.T) {
	env := startTestServer(t, testConfig())
	conn := env.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectProtocolError(t, conn, "invalid_message")

	send(t, conn, "dance", map[string]string{})
	expectProtocolError(t, conn, "invalid_message")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"send-message","data":{"content":42}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectProtocolError(t, conn, "invalid_message")

	// Still usable afterwards.
	authenticate(t, conn, "a", "alice", "r1")
}

func TestWebSocketRequireToken(t *testing.T) {
	cfg := testConfig()
	cfg.RequireToken = true
	env := startTestServer(t, cfg)

	conn := env.dial(t)
	send(t, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{UserID: "1", RoomID: "r1"})
	expectProtocolError(t, conn, "unauthorized")

	send(t, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{UserID: "1", RoomID: "r1", Token: "garbage"})
	expectProtocolError(t, conn, "unauthorized")

	sess, err := env.auth.Register(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	userID := strconv.FormatInt(sess.User.ID, 10)

	send(t, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{UserID: "someone-else", RoomID: "r1", Token: sess.Token})
	expectProtocolError(t, conn, "unauthorized")

	send(t, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{RoomID: "r1", Token: sess.Token})
	var roster proto.EventRoomUsers
	expectEvent(t, conn, "room-users-updated", &roster)
	if len(roster.Users) != 1 || roster.Users[0].ID != userID || roster.Users[0].DisplayName != "alice" {
		t.Fatalf("token identity not applied: %+v", roster)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	env := startTestServer(t, cfg)

	conn := env.dial(t)
	authenticate(t, conn, "a", "alice", "r1")
	send(t, conn, proto.InboundTypeTypingStart, proto.TypingData{RoomID: "r1"})
	send(t, conn, proto.InboundTypeTypingStart, proto.TypingData{RoomID: "r1"})
	expectProtocolError(t, conn, "rate_limited")
}
