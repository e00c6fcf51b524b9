package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink-relay/internal/auth"
	"github.com/vovakirdan/chatlink-relay/internal/config"
	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/proto"
	"github.com/vovakirdan/chatlink-relay/internal/store"
	"github.com/vovakirdan/chatlink-relay/internal/store/sqlite"
)

const testSecret = "test-secret"

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
	return auth.NewService(st, jwtConfig)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.JWTSecret = testSecret
	return cfg
}

type testEnv struct {
	hub    *core.Hub
	auth   *auth.Service
	store  store.Store
	server *httptest.Server
}

func startTestServer(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st)

	hub := core.NewHub(core.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	disabledLogger := zerolog.Nop()
	server := NewServer(hub, authService, st, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{hub: hub, auth: authService, store: st, server: ts}
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// wireOutbound mirrors proto.Outbound with the payload left undecoded.
type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func read(t *testing.T, conn *websocket.Conn) wireOutbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out wireOutbound
	if err := wsjson.Read(ctx, conn, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	return out
}

// expectEvent reads the next envelope and decodes its data into dst.
func expectEvent(t *testing.T, conn *websocket.Conn, event string, dst any) {
	t.Helper()

	out := read(t, conn)
	if out.Type != proto.OutboundTypeEvent || out.Event != event {
		t.Fatalf("expected event %s, got %+v (data %s)", event, out, out.Data)
	}
	if dst != nil {
		if err := json.Unmarshal(out.Data, dst); err != nil {
			t.Fatalf("decode %s: %v", event, err)
		}
	}
}

func expectProtocolError(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()

	out := read(t, conn)
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != code {
		t.Fatalf("expected protocol error %s, got %+v", code, out)
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, user, name, room string) proto.EventRoomUsers {
	t.Helper()

	send(t, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{UserID: user, DisplayName: name, RoomID: room})
	var roster proto.EventRoomUsers
	expectEvent(t, conn, "room-users-updated", &roster)
	return roster
}
