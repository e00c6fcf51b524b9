package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/vovakirdan/chatlink-relay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "tester", "user id to authenticate as")
	name := flag.String("name", "", "display name (defaults to user id)")
	room := flag.String("room", "general", "room id")
	token := flag.String("token", "", "optional JWT")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *name == "" {
		*name = *user
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(kind string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", kind, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: kind, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", kind, err)
		}
		return nil
	}

	auth := proto.AuthenticateData{UserID: *user, DisplayName: *name, RoomID: *room, Token: *token}
	if err := send(proto.InboundTypeAuthenticate, auth); err != nil {
		return err
	}
	if err := send(proto.InboundTypeSendMessage, proto.SendMessageData{RoomID: *room, Content: *text}); err != nil {
		return err
	}

	for {
		var outbound struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if outbound.Type == proto.OutboundTypeError && outbound.Error != nil {
			return fmt.Errorf("server error %s: %s", outbound.Error.Code, outbound.Error.Msg)
		}
		fmt.Printf("event=%s\n", outbound.Event)

		switch outbound.Event {
		case "room-users-updated":
			var evt proto.EventRoomUsers
			if err := json.Unmarshal(outbound.Data, &evt); err == nil {
				fmt.Printf("Roster: room=%s users=%d\n", evt.RoomID, len(evt.Users))
			}
		case "message-error":
			var evt proto.EventMessageError
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				return fmt.Errorf("unmarshal message-error: %w", err)
			}
			return fmt.Errorf("message rejected: %s (%s)", evt.Reason, evt.Code)
		case "new-message":
			var evt proto.EventMessage
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				fmt.Printf("Raw data: %s\n", string(outbound.Data))
				return fmt.Errorf("unmarshal message: %w", err)
			}
			fmt.Printf("Message: id=%s room=%s sender=%s content=%q ts=%d\n",
				evt.ID, evt.RoomID, evt.SenderName, evt.Content, evt.Timestamp)
			return nil
		}
	}
}
