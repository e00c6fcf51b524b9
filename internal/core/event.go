package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUserJoined notifies other members that a user joined the room.
	EventUserJoined EventKind = iota
	// EventUserLeft notifies remaining members that a user left the room.
	EventUserLeft
	// EventRoomUsersUpdated carries the current roster of a room.
	EventRoomUsersUpdated
	// EventNewMessage carries a relayed chat message.
	EventNewMessage
	// EventUserTyping notifies other members about typing state.
	EventUserTyping
	// EventReactionAdded carries a reaction on a message.
	EventReactionAdded
	// EventError notifies the offending client about a rejected command.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventUserJoined:
		return "user-joined"
	case EventUserLeft:
		return "user-left"
	case EventRoomUsersUpdated:
		return "room-users-updated"
	case EventNewMessage:
		return "new-message"
	case EventUserTyping:
		return "user-typing"
	case EventReactionAdded:
		return "reaction-added"
	case EventError:
		return "message-error"
	default:
		return "unknown"
	}
}

// StatusOnline is the only presence status the relay reports.
const StatusOnline = "online"

// RosterEntry is one present user in a room.
type RosterEntry struct {
	ID          string
	DisplayName string
	Status      string
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	User     Identity // subject of joined/left/typing/reaction events
	Typing   bool
	Roster   []RosterEntry
	Message  *Message
	Reaction *Reaction
	Error    *CoreError
	At       time.Time
}
