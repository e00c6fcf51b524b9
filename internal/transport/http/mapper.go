package http

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/chatlink-relay/internal/auth"
	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/proto"
)

const errCodeInvalidMessage = "invalid_message"

// TokenValidator checks bearer tokens carried by authenticate.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// mapper turns wire envelopes into core commands and core events into wire
// envelopes. tokens may be nil, in which case tokens are never checked.
type mapper struct {
	tokens       TokenValidator
	requireToken bool
}

func decodeData(inbound proto.Inbound, dst any) *proto.Error {
	if len(inbound.Data) == 0 {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: inbound.Type + ": data is required"}
	}
	if err := json.Unmarshal(inbound.Data, dst); err != nil {
		return &proto.Error{Code: errCodeInvalidMessage, Msg: fmt.Sprintf("%s: %v", inbound.Type, err)}
	}
	return nil
}

// inboundToCommand maps an envelope to a command, or to a protocol error to
// be sent back to the client without closing the connection.
func (m mapper) inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeAuthenticate:
		var data proto.AuthenticateData
		if perr := decodeData(inbound, &data); perr != nil {
			return nil, perr
		}
		cmd := &core.Command{
			Kind:        core.CommandAuthenticate,
			Room:        data.RoomID,
			UserID:      data.UserID,
			DisplayName: data.DisplayName,
		}
		if perr := m.checkToken(cmd, data.Token); perr != nil {
			return nil, perr
		}
		return cmd, nil
	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if perr := decodeData(inbound, &data); perr != nil {
			return nil, perr
		}
		cmd := &core.Command{
			Kind:        core.CommandSendMessage,
			Room:        data.RoomID,
			Content:     data.Content,
			MessageKind: core.MessageKind(data.Kind),
		}
		if data.FileURL != "" {
			cmd.File = &core.FileRef{URL: data.FileURL, Name: data.FileName, Size: data.FileSize}
		}
		return cmd, nil
	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		var data proto.TypingData
		if len(inbound.Data) > 0 {
			if perr := decodeData(inbound, &data); perr != nil {
				return nil, perr
			}
		}
		kind := core.CommandTypingStart
		if inbound.Type == proto.InboundTypeTypingStop {
			kind = core.CommandTypingStop
		}
		return &core.Command{Kind: kind, Room: data.RoomID}, nil
	case proto.InboundTypeAddReaction:
		var data proto.AddReactionData
		if perr := decodeData(inbound, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind:      core.CommandAddReaction,
			Room:      data.RoomID,
			MessageID: data.MessageID,
			Reaction:  data.Reaction,
		}, nil
	default:
		return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "unknown message type " + inbound.Type}
	}
}

// checkToken validates an authenticate token. A valid token decides the
// user id and display name; a present but invalid one is always rejected.
func (m mapper) checkToken(cmd *core.Command, token string) *proto.Error {
	if token == "" {
		if m.requireToken {
			return &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"}
		}
		return nil
	}
	if m.tokens == nil {
		return nil
	}

	claims, err := m.tokens.ValidateToken(token)
	if err != nil {
		return &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}
	}
	if cmd.UserID != "" && cmd.UserID != claims.WireID() {
		return &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token does not match user_id"}
	}
	cmd.UserID = claims.WireID()
	cmd.DisplayName = claims.Username
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}

	switch event.Kind {
	case core.EventUserJoined, core.EventUserLeft:
		out.Data = proto.EventPresence{
			RoomID:      event.Room,
			UserID:      event.User.UserID,
			DisplayName: event.User.DisplayName,
			Timestamp:   event.At.UnixMilli(),
		}
	case core.EventRoomUsersUpdated:
		users := make([]proto.RosterUser, 0, len(event.Roster))
		for _, e := range event.Roster {
			users = append(users, proto.RosterUser{ID: e.ID, DisplayName: e.DisplayName, Status: e.Status})
		}
		out.Data = proto.EventRoomUsers{RoomID: event.Room, Users: users}
	case core.EventNewMessage:
		if event.Message != nil {
			out.Data = messageToProto(event.Message)
		}
	case core.EventUserTyping:
		out.Data = proto.EventTyping{
			RoomID:      event.Room,
			UserID:      event.User.UserID,
			DisplayName: event.User.DisplayName,
			IsTyping:    event.Typing,
		}
	case core.EventReactionAdded:
		if event.Reaction != nil {
			out.Data = reactionToProto(event.Reaction)
		}
	case core.EventError:
		if event.Error == nil {
			out.Data = proto.EventMessageError{Code: "unknown", Reason: "unknown error"}
			break
		}
		out.Data = proto.EventMessageError{Code: event.Error.Code, Reason: event.Error.Message}
	default:
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: "unknown", Msg: "unknown event"},
		}
	}
	return out
}

func messageToProto(msg *core.Message) proto.EventMessage {
	out := proto.EventMessage{
		ID:         msg.ID,
		RoomID:     msg.Room,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Kind:       string(msg.Kind),
		Reactions:  make([]proto.Reaction, 0, len(msg.Reactions)),
		Timestamp:  msg.CreatedAt.UnixMilli(),
	}
	if msg.File != nil {
		out.File = &proto.FileInfo{URL: msg.File.URL, Name: msg.File.Name, Size: msg.File.Size}
	}
	if p := msg.LinkPreview; p != nil {
		out.LinkPreview = &proto.LinkPreview{
			URL:         p.URL,
			Title:       p.Title,
			Description: p.Description,
			Image:       p.Image,
			Provider:    p.Provider,
		}
	}
	for i := range msg.Reactions {
		out.Reactions = append(out.Reactions, reactionToProto(&msg.Reactions[i]))
	}
	return out
}

func reactionToProto(r *core.Reaction) proto.Reaction {
	return proto.Reaction{
		MessageID:   r.MessageID,
		RoomID:      r.Room,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Reaction:    r.Reaction,
		Timestamp:   r.CreatedAt.UnixMilli(),
	}
}
