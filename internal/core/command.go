package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandAuthenticate binds the connection to an identity and a room.
	CommandAuthenticate CommandKind = iota
	// CommandSendMessage delivers a chat message to room participants.
	CommandSendMessage
	// CommandTypingStart tells other participants the user started typing.
	CommandTypingStart
	// CommandTypingStop tells other participants the user stopped typing.
	CommandTypingStop
	// CommandAddReaction relays a reaction on a message.
	CommandAddReaction
)

func (k CommandKind) String() string {
	switch k {
	case CommandAuthenticate:
		return "authenticate"
	case CommandSendMessage:
		return "send-message"
	case CommandTypingStart:
		return "typing-start"
	case CommandTypingStop:
		return "typing-stop"
	case CommandAddReaction:
		return "add-reaction"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// Room is optional for everything except CommandAuthenticate; when set it
// must match the room the connection is bound to.
type Command struct {
	Kind CommandKind
	Room string

	// authenticate
	UserID      string
	DisplayName string

	// send-message
	Content     string
	MessageKind MessageKind
	File        *FileRef

	// add-reaction
	MessageID string
	Reaction  string
}
