package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/vovakirdan/chatlink-relay/internal/proto"
)

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "user id")
	name := flag.String("name", "", "display name (defaults to user id)")
	room := flag.String("room", "general", "room to join")
	token := flag.String("token", "", "optional JWT")
	flag.Parse()

	if *name == "" {
		*name = *user
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	auth := proto.AuthenticateData{UserID: *user, DisplayName: *name, RoomID: *room, Token: *token}
	if err := send(ctx, conn, proto.InboundTypeAuthenticate, auth); err != nil {
		return err
	}

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *name, *room)
	fmt.Println("Type messages and press Enter to send. /typing toggles the typing indicator. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func send(ctx context.Context, conn *websocket.Conn, kind string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: kind, Data: payload}); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}
		printFrame(frame)
	}
}

func printFrame(frame outboundFrame) {
	if frame.Type == proto.OutboundTypeError && frame.Error != nil {
		fmt.Printf("! %s: %s\n", frame.Error.Code, frame.Error.Msg)
		return
	}

	switch frame.Event {
	case "new-message":
		var evt proto.EventMessage
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			log.Printf("unmarshal new-message: %v", err)
			return
		}
		fmt.Printf("[%s] %s: %s\n", evt.RoomID, evt.SenderName, evt.Content)
		if evt.LinkPreview != nil {
			fmt.Printf("    %s: %s\n", evt.LinkPreview.Provider, evt.LinkPreview.Title)
		}
	case "user-joined", "user-left":
		var evt proto.EventPresence
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			log.Printf("unmarshal %s: %v", frame.Event, err)
			return
		}
		verb := "joined"
		if frame.Event == "user-left" {
			verb = "left"
		}
		fmt.Printf("[room %s] %s %s\n", evt.RoomID, evt.DisplayName, verb)
	case "room-users-updated":
		var evt proto.EventRoomUsers
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			log.Printf("unmarshal room-users-updated: %v", err)
			return
		}
		names := make([]string, 0, len(evt.Users))
		for _, u := range evt.Users {
			names = append(names, u.DisplayName)
		}
		fmt.Printf("[room %s] online: %s\n", evt.RoomID, strings.Join(names, ", "))
	case "user-typing":
		var evt proto.EventTyping
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			return
		}
		if evt.IsTyping {
			fmt.Printf("[room %s] %s is typing...\n", evt.RoomID, evt.DisplayName)
		}
	case "message-error":
		var evt proto.EventMessageError
		if err := json.Unmarshal(frame.Data, &evt); err != nil {
			return
		}
		fmt.Printf("! rejected: %s\n", evt.Reason)
	default:
		fmt.Printf("event=%s data=%s\n", frame.Event, string(frame.Data))
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	typing := false
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			if text == "/typing" {
				kind := proto.InboundTypeTypingStart
				if typing {
					kind = proto.InboundTypeTypingStop
				}
				typing = !typing
				err = send(ctx, conn, kind, proto.TypingData{RoomID: room})
			} else {
				err = send(ctx, conn, proto.InboundTypeSendMessage, proto.SendMessageData{RoomID: room, Content: text})
			}
			if err != nil {
				log.Printf("%v", err)
				return
			}
		}
	}
}
