package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/chatlink-relay/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass Migrate to get a ready in-memory database.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Columns added after the first release. CREATE TABLE IF NOT EXISTS leaves
// older databases without them.
var addedColumns = []struct{ table, column, decl string }{
	{"messages", "preview_url", "TEXT NOT NULL DEFAULT ''"},
	{"messages", "preview_title", "TEXT NOT NULL DEFAULT ''"},
	{"messages", "preview_description", "TEXT NOT NULL DEFAULT ''"},
	{"messages", "preview_image", "TEXT NOT NULL DEFAULT ''"},
	{"messages", "preview_provider", "TEXT NOT NULL DEFAULT ''"},
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, c := range addedColumns {
		has, err := hasColumn(db, c.table, c.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := db.Exec(`ALTER TABLE ` + c.table + ` ADD COLUMN ` + c.column + ` ` + c.decl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM pragma_table_info(?) WHERE name = ?)`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", table, err)
	}
	return exists, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// ==== UserStore implementation ====

const userColumns = `id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at`

func scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_guest, created_at)
		VALUES (?, ?, 0, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, s.now())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	if len(sessionID) < 8 {
		return nil, fmt.Errorf("guest session id too short")
	}
	query := `
		INSERT INTO users (username, password_hash, is_guest, session_id, created_at)
		VALUES (?, '', 1, ?, ?)
	`
	guestUsername := "guest_" + sessionID[:8]

	result, err := s.db.ExecContext(ctx, query, guestUsername, sessionID, s.now())
	if err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a registered (non-guest) user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ? AND is_guest = 0`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

// GetUserBySessionID retrieves a guest user by session ID.
func (s *SQLiteStore) GetUserBySessionID(ctx context.Context, sessionID string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE session_id = ? AND is_guest = 1`
	return scanUser(s.db.QueryRowContext(ctx, query, sessionID))
}

// ==== RoomStore implementation ====

const roomColumns = `r.id, r.name, r.description, r.type, r.invite_code, r.owner_id, r.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*store.Room, error) {
	var (
		room    store.Room
		ownerID sql.NullInt64
	)
	if err := row.Scan(&room.ID, &room.Name, &room.Description, &room.Type, &room.InviteCode, &ownerID, &room.CreatedAt); err != nil {
		return nil, err
	}
	if ownerID.Valid {
		room.OwnerID = &ownerID.Int64
	}
	return &room, nil
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// CreateRoom creates a room and adds the owner as its first member.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name, description string, roomType store.RoomType, ownerID *int64) (*store.Room, error) {
	room := &store.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Type:        roomType,
		InviteCode:  newInviteCode(),
		OwnerID:     ownerID,
		CreatedAt:   s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, name, description, type, invite_code, owner_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, room.ID, room.Name, room.Description, room.Type, room.InviteCode, ownerID, room.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert room %q: %w", name, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	if ownerID != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)
		`, room.ID, *ownerID, room.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("add owner: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit room: %w", err)
	}
	return room, nil
}

func (s *SQLiteStore) getRoom(ctx context.Context, where string, arg any) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r WHERE ` + where
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	return s.getRoom(ctx, "r.id = ?", id)
}

// GetRoomByInviteCode retrieves a room by invite code, case-insensitively.
func (s *SQLiteStore) GetRoomByInviteCode(ctx context.Context, code string) (*store.Room, error) {
	return s.getRoom(ctx, "r.invite_code = ?", strings.ToUpper(strings.TrimSpace(code)))
}

// ListRooms lists public rooms and the rooms the user is a member of.
func (s *SQLiteStore) ListRooms(ctx context.Context, userID int64) ([]*store.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms r
		LEFT JOIN room_members m ON m.room_id = r.id AND m.user_id = ?
		WHERE r.type = ? OR m.user_id IS NOT NULL
		ORDER BY r.rowid
	`
	rows, err := s.db.QueryContext(ctx, query, userID, store.RoomTypePublic)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// AddMember adds a user to a room.
func (s *SQLiteStore) AddMember(ctx context.Context, userID int64, roomID string) error {
	query := `INSERT OR IGNORE INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, roomID, userID, s.now()); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// IsMember checks if user is a member of the room.
func (s *SQLiteStore) IsMember(ctx context.Context, userID int64, roomID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?)`
	if err := s.db.QueryRowContext(ctx, query, roomID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return exists, nil
}

// ListMembers lists all members of a room in join order.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM room_members WHERE room_id = ? ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT OR IGNORE INTO messages
			(id, room_id, sender_id, sender_name, content, kind, file_url, file_name, file_size, created_at,
			 preview_url, preview_title, preview_description, preview_image, preview_provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var preview store.LinkPreview
	if msg.Preview != nil {
		preview = *msg.Preview
	}
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, msg.Kind,
		msg.FileURL, msg.FileName, msg.FileSize, msg.CreatedAt.UTC(),
		preview.URL, preview.Title, preview.Description, preview.Image, preview.Provider,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// SaveReaction records a reaction on an existing message.
func (s *SQLiteStore) SaveReaction(ctx context.Context, r *store.Reaction) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = ?)`, r.MessageID).Scan(&exists); err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if !exists {
		return fmt.Errorf("message %s: %w", r.MessageID, store.ErrNotFound)
	}

	query := `
		INSERT OR IGNORE INTO message_reactions (message_id, user_id, display_name, reaction, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, r.MessageID, r.UserID, r.DisplayName, r.Reaction, r.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	return nil
}

// ListMessages retrieves messages from a room with pagination.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, limit int, beforeID string) ([]*store.Message, error) {
	const columns = `m.id, m.room_id, m.sender_id, m.sender_name, m.content, m.kind, m.file_url, m.file_name, m.file_size,
		m.created_at, m.preview_url, m.preview_title, m.preview_description, m.preview_image, m.preview_provider`

	var (
		query string
		args  []any
	)
	if beforeID != "" {
		// Keyset on (created_at, id) so messages sharing the cursor's
		// timestamp are still reachable.
		query = `
			SELECT ` + columns + `
			FROM messages m
			JOIN messages c ON c.id = ?
			WHERE m.room_id = ?
				AND (m.created_at < c.created_at OR (m.created_at = c.created_at AND m.id < c.id))
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT ?
		`
		args = []any{beforeID, roomID, limit}
	} else {
		query = `
			SELECT ` + columns + `
			FROM messages m
			WHERE m.room_id = ?
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT ?
		`
		args = []any{roomID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	byID := make(map[string]*store.Message)
	for rows.Next() {
		var (
			msg     store.Message
			preview store.LinkPreview
		)
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.Kind,
			&msg.FileURL, &msg.FileName, &msg.FileSize, &msg.CreatedAt,
			&preview.URL, &preview.Title, &preview.Description, &preview.Image, &preview.Provider,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if preview.URL != "" {
			msg.Preview = &preview
		}
		msg.Reactions = []*store.Reaction{}
		messages = append(messages, &msg)
		byID[msg.ID] = &msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to get chronological order
	for i := 0; i < len(messages)/2; i++ {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	if err := s.attachReactions(ctx, byID); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *SQLiteStore) attachReactions(ctx context.Context, byID map[string]*store.Message) error {
	if len(byID) == 0 {
		return nil
	}

	args := make([]any, 0, len(byID))
	for id := range byID {
		args = append(args, id)
	}
	query := `
		SELECT message_id, user_id, display_name, reaction, created_at
		FROM message_reactions
		WHERE message_id IN (?` + strings.Repeat(", ?", len(args)-1) + `)
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r store.Reaction
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.DisplayName, &r.Reaction, &r.CreatedAt); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		msg := byID[r.MessageID]
		msg.Reactions = append(msg.Reactions, &r)
	}
	return rows.Err()
}
