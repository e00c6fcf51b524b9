package core

import "context"

// Archiver receives accepted traffic for durable storage.
// Calls happen on the hub's job worker, never on the relay path.
type Archiver interface {
	ArchiveMessage(ctx context.Context, msg *Message) error
	ArchiveReaction(ctx context.Context, reaction *Reaction) error
}

// PresenceMirror exports room rosters to observers outside this process.
// An empty roster means the room has no one present.
type PresenceMirror interface {
	MirrorRoster(ctx context.Context, room string, roster []RosterEntry) error
}
