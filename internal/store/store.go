package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a looked up record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated.
	ErrConflict = errors.New("already exists")
)

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	CreatedAt    time.Time
}

// Room represents a chat room. The id is the same string clients use as
// room_id on the websocket.
type Room struct {
	ID          string
	Name        string
	Description string
	Type        RoomType
	InviteCode  string
	OwnerID     *int64
	CreatedAt   time.Time
}

// RoomType defines different types of rooms.
type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
)

// Message represents a persisted chat message.
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderName string
	Content    string
	Kind       string
	FileURL    string
	FileName   string
	FileSize   int64
	CreatedAt  time.Time
	Preview    *LinkPreview
	Reactions  []*Reaction
}

// LinkPreview is the media preview computed when the message was relayed.
type LinkPreview struct {
	URL         string
	Title       string
	Description string
	Image       string
	Provider    string
}

// Reaction is a single user's reaction to a message.
type Reaction struct {
	MessageID   string
	UserID      string
	DisplayName string
	Reaction    string
	CreatedAt   time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserBySessionID(ctx context.Context, sessionID string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom creates a room with a fresh id and invite code and makes the
	// owner, if any, its first member.
	CreateRoom(ctx context.Context, name, description string, roomType RoomType, ownerID *int64) (*Room, error)

	GetRoomByID(ctx context.Context, id string) (*Room, error)
	GetRoomByInviteCode(ctx context.Context, code string) (*Room, error)

	// ListRooms lists public rooms plus every room the user belongs to.
	ListRooms(ctx context.Context, userID int64) ([]*Room, error)

	// AddMember is idempotent.
	AddMember(ctx context.Context, userID int64, roomID string) error
	IsMember(ctx context.Context, userID int64, roomID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message. Saving the same id twice is a no-op.
	SaveMessage(ctx context.Context, msg *Message) error

	// SaveReaction records a reaction. Returns ErrNotFound when the message
	// does not exist; a repeated reaction is a no-op.
	SaveReaction(ctx context.Context, r *Reaction) error

	// ListMessages returns up to limit messages of a room in chronological
	// order, each with its reactions. When beforeID is set only messages
	// older than it are returned.
	ListMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
