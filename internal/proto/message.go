package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeAuthenticate = "authenticate"
	InboundTypeSendMessage  = "send-message"
	InboundTypeTypingStart  = "typing-start"
	InboundTypeTypingStop   = "typing-stop"
	InboundTypeAddReaction  = "add-reaction"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// AuthenticateData binds the connection to a user and a room.
type AuthenticateData struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	RoomID      string `json:"room_id"`
	Token       string `json:"token,omitempty"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	RoomID   string `json:"room_id"`
	Content  string `json:"content"`
	Kind     string `json:"kind,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// TypingData carries typing-start and typing-stop.
type TypingData struct {
	RoomID string `json:"room_id"`
}

// AddReactionData reacts to a message.
type AddReactionData struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
	Reaction  string `json:"reaction"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventPresence is the payload of user-joined and user-left.
type EventPresence struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Timestamp   int64  `json:"timestamp"`
}

// RosterUser is one entry of a room roster.
type RosterUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// EventRoomUsers is the payload of room-users-updated.
type EventRoomUsers struct {
	RoomID string       `json:"room_id"`
	Users  []RosterUser `json:"users"`
}

// LinkPreview describes a recognized media link.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Provider    string `json:"provider"`
}

// FileInfo describes an attachment.
type FileInfo struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Reaction is one reaction on a message.
type Reaction struct {
	MessageID   string `json:"message_id"`
	RoomID      string `json:"room_id,omitempty"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Reaction    string `json:"reaction"`
	Timestamp   int64  `json:"timestamp"`
}

// EventMessage is the payload of new-message and of message history.
type EventMessage struct {
	ID          string       `json:"id"`
	RoomID      string       `json:"room_id"`
	SenderID    string       `json:"sender_id"`
	SenderName  string       `json:"sender_name"`
	Content     string       `json:"content"`
	Kind        string       `json:"kind"`
	File        *FileInfo    `json:"file,omitempty"`
	LinkPreview *LinkPreview `json:"link_preview,omitempty"`
	Reactions   []Reaction   `json:"reactions"`
	Timestamp   int64        `json:"timestamp"`
}

// EventTyping is the payload of user-typing.
type EventTyping struct {
	RoomID      string `json:"room_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
}

// EventMessageError is the payload of message-error.
type EventMessageError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
