package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink-relay/internal/linkpreview"
)

const (
	defaultMaxContentLength = 2000
	defaultJobQueue         = 256
	drainTimeout            = 5 * time.Second
)

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	Logger           *zerolog.Logger
	Archiver         Archiver
	Mirror           PresenceMirror
	MaxContentLength int
	JobQueue         int
	Now              func() time.Time
	NewMessageID     func() string
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Connections   int
	Authenticated int
	Rooms         int
	Dropped       int64
}

type job func(ctx context.Context)

// Hub coordinates presence and fan-out for every live connection.
// Registry and Membership share one lock so a binding and its room
// membership always change together.
type Hub struct {
	mu      sync.RWMutex
	conns   *Registry
	members *Membership

	log        zerolog.Logger
	archiver   Archiver
	mirror     PresenceMirror
	jobs       chan job
	maxContent int
	now        func() time.Time
	newID      func() string

	dropped atomic.Int64
}

// NewHub creates a hub with empty registry and membership.
func NewHub(opts Options) *Hub {
	h := &Hub{
		conns:      NewRegistry(),
		members:    NewMembership(),
		log:        zerolog.Nop(),
		archiver:   opts.Archiver,
		mirror:     opts.Mirror,
		maxContent: opts.MaxContentLength,
		now:        opts.Now,
		newID:      opts.NewMessageID,
	}
	if opts.Logger != nil {
		h.log = opts.Logger.With().Str("component", "hub").Logger()
	}
	if h.maxContent <= 0 {
		h.maxContent = defaultMaxContentLength
	}
	queue := opts.JobQueue
	if queue <= 0 {
		queue = defaultJobQueue
	}
	h.jobs = make(chan job, queue)
	if h.now == nil {
		h.now = time.Now
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	return h
}

// Run drains the side-effect queue (archiving, presence mirroring) until ctx
// is cancelled, then flushes what is left with a short deadline.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case j := <-h.jobs:
			j(ctx)
		case <-ctx.Done():
			h.drain(ctx)
			return
		}
	}
}

func (h *Hub) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	for {
		select {
		case j := <-h.jobs:
			j(drainCtx)
		default:
			return
		}
	}
}

// RegisterClient records a new connection and starts consuming its commands.
func (h *Hub) RegisterClient(c *Client) error {
	h.mu.Lock()
	ok := h.conns.Open(c)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("register %s: duplicate connection id", c.ID)
	}

	h.log.Debug().Str("conn_id", c.ID).Msg("connection opened")
	go h.serve(c)
	return nil
}

// UnregisterClient stops admitting commands for c. Cleanup runs once every
// already admitted command has been processed; wait on c.Done() for it.
func (h *Hub) UnregisterClient(c *Client) {
	c.Close()
}

func (h *Hub) serve(c *Client) {
	defer close(c.done)

	for cmd := range c.Commands {
		if cmd == nil {
			continue
		}
		h.handle(c, cmd)
	}
	h.disconnect(c)
}

func (h *Hub) handle(c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandAuthenticate:
		h.authenticate(c, cmd)
	case CommandSendMessage:
		h.sendMessage(c, cmd)
	case CommandTypingStart:
		h.typing(c, cmd, true)
	case CommandTypingStop:
		h.typing(c, cmd, false)
	case CommandAddReaction:
		h.addReaction(c, cmd)
	default:
		h.reject(c, cmd, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) authenticate(c *Client, cmd *Command) {
	id := Identity{
		UserID:      strings.TrimSpace(cmd.UserID),
		DisplayName: strings.TrimSpace(cmd.DisplayName),
	}
	room := strings.TrimSpace(cmd.Room)
	if id.UserID == "" || room == "" {
		h.reject(c, cmd, coreError(ErrCodeBadRequest, "user id and room are required"))
		return
	}
	if id.DisplayName == "" {
		id.DisplayName = id.UserID
	}

	now := h.now()
	dropped := 0
	mirrored := make(map[string][]RosterEntry, 2)

	h.mu.Lock()
	if _, bound := h.conns.Lookup(c.ID); bound {
		h.mu.Unlock()
		h.reject(c, cmd, errorFor(ErrAlreadyBound))
		return
	}
	if !h.conns.Has(c.ID) {
		h.mu.Unlock()
		h.reject(c, cmd, errorFor(ErrUnknownConnection))
		return
	}

	// The same user on a new connection takes over the roster slot.
	prevClient, prev, superseded := h.conns.UserConn(id.UserID)
	if superseded {
		h.conns.Unbind(prevClient.ID)
		if prev.Room != room && h.members.Leave(prev.Room, id.UserID) {
			mirrored[prev.Room] = h.publishLocked(prev.Room, now, &dropped)
			rs, _ := h.membersLocked(prev.Room)
			dropped += h.fanout(rs, &Event{Kind: EventUserLeft, Room: prev.Room, User: prev.Identity, At: now}, nil)
		}
	}

	// Cannot fail: the connection is known and unbound.
	_ = h.conns.Bind(c.ID, id, room)
	joined := h.members.Join(room, id.UserID)
	mirrored[room] = h.publishLocked(room, now, &dropped)
	if joined {
		rs, _ := h.membersLocked(room)
		dropped += h.fanout(rs, &Event{Kind: EventUserJoined, Room: room, User: id, At: now}, c)
	}
	h.mu.Unlock()

	if superseded {
		deliver(prevClient, &Event{
			Kind:  EventError,
			Room:  prev.Room,
			Error: coreError(ErrCodeSessionSuperseded, "signed in from another connection"),
			At:    now,
		})
		h.log.Info().Str("user_id", id.UserID).Str("old_conn_id", prevClient.ID).
			Str("conn_id", c.ID).Msg("binding superseded")
	}

	h.log.Info().Str("conn_id", c.ID).Str("user_id", id.UserID).Str("room_id", room).
		Bool("joined", joined).Msg("user authenticated")
	h.logDrops(dropped, "authenticate")
	for r, roster := range mirrored {
		h.mirrorRoster(r, roster)
	}
}

func (h *Hub) sendMessage(c *Client, cmd *Command) {
	b, rs, ok := h.bindingAndRecipients(c)
	if !ok {
		h.reject(c, cmd, errorFor(ErrNotAuthenticated))
		return
	}
	if cmd.Room != "" && cmd.Room != b.Room {
		h.reject(c, cmd, coreError(ErrCodeNotInRoom, "not a member of room "+cmd.Room))
		return
	}

	kind := cmd.MessageKind
	if kind == "" {
		kind = MessageKindText
	}
	switch {
	case !kind.Valid():
		h.reject(c, cmd, coreError(ErrCodeBadRequest, "unknown message kind "+string(kind)))
		return
	case kind == MessageKindText && strings.TrimSpace(cmd.Content) == "":
		h.reject(c, cmd, errorFor(ErrEmptyContent))
		return
	case kind != MessageKindText && (cmd.File == nil || cmd.File.URL == ""):
		h.reject(c, cmd, coreError(ErrCodeBadRequest, "file url is required for "+string(kind)+" messages"))
		return
	case utf8.RuneCountInString(cmd.Content) > h.maxContent:
		h.reject(c, cmd, coreError(ErrCodeContentTooLong, fmt.Sprintf("content exceeds %d characters", h.maxContent)))
		return
	}

	msg := &Message{
		ID:         h.newID(),
		Room:       b.Room,
		SenderID:   b.Identity.UserID,
		SenderName: b.Identity.DisplayName,
		Content:    cmd.Content,
		Kind:       kind,
		CreatedAt:  h.now(),
		File:       cmd.File,
		Reactions:  []Reaction{},
	}
	if kind == MessageKindText {
		msg.LinkPreview = linkpreview.Resolve(msg.Content)
	}

	// Queued before anyone can see the message, so its archive job always
	// precedes jobs for reactions to it.
	if h.archiver != nil {
		h.enqueue("archive message", func(ctx context.Context) error {
			return h.archiver.ArchiveMessage(ctx, msg)
		})
	}

	dropped := h.fanout(rs, &Event{Kind: EventNewMessage, Room: b.Room, User: b.Identity, Message: msg, At: msg.CreatedAt}, nil)
	h.logDrops(dropped, "new-message")
	h.log.Debug().Str("conn_id", c.ID).Str("room_id", b.Room).Str("message_id", msg.ID).
		Int("recipients", len(rs)).Msg("message relayed")
}

func (h *Hub) typing(c *Client, cmd *Command, typing bool) {
	b, rs, ok := h.bindingAndRecipients(c)
	if !ok || (cmd.Room != "" && cmd.Room != b.Room) {
		h.log.Debug().Str("conn_id", c.ID).Str("command", cmd.Kind.String()).Msg("typing event dropped")
		return
	}
	dropped := h.fanout(rs, &Event{Kind: EventUserTyping, Room: b.Room, User: b.Identity, Typing: typing, At: h.now()}, c)
	h.logDrops(dropped, "user-typing")
}

func (h *Hub) addReaction(c *Client, cmd *Command) {
	b, rs, ok := h.bindingAndRecipients(c)
	if !ok {
		h.reject(c, cmd, errorFor(ErrNotAuthenticated))
		return
	}
	if cmd.Room != "" && cmd.Room != b.Room {
		h.reject(c, cmd, coreError(ErrCodeNotInRoom, "not a member of room "+cmd.Room))
		return
	}
	if strings.TrimSpace(cmd.MessageID) == "" || strings.TrimSpace(cmd.Reaction) == "" {
		h.reject(c, cmd, coreError(ErrCodeBadRequest, "message id and reaction are required"))
		return
	}

	// Whether the message exists is the archive's concern.
	reaction := &Reaction{
		MessageID:   cmd.MessageID,
		Room:        b.Room,
		Reaction:    cmd.Reaction,
		UserID:      b.Identity.UserID,
		DisplayName: b.Identity.DisplayName,
		CreatedAt:   h.now(),
	}
	dropped := h.fanout(rs, &Event{Kind: EventReactionAdded, Room: b.Room, User: b.Identity, Reaction: reaction, At: reaction.CreatedAt}, nil)
	h.logDrops(dropped, "reaction-added")

	if h.archiver != nil {
		h.enqueue("archive reaction", func(ctx context.Context) error {
			return h.archiver.ArchiveReaction(ctx, reaction)
		})
	}
}

func (h *Hub) disconnect(c *Client) {
	now := h.now()
	dropped := 0
	var roster []RosterEntry

	h.mu.Lock()
	b, bound := h.conns.Close(c.ID)
	left := bound && h.members.Leave(b.Room, b.Identity.UserID)
	if left {
		roster = h.publishLocked(b.Room, now, &dropped)
		rs, _ := h.membersLocked(b.Room)
		dropped += h.fanout(rs, &Event{Kind: EventUserLeft, Room: b.Room, User: b.Identity, At: now}, nil)
	}
	h.mu.Unlock()

	h.logDrops(dropped, "disconnect")
	if !bound {
		h.log.Debug().Str("conn_id", c.ID).Msg("connection closed before authenticate")
		return
	}
	h.log.Info().Str("conn_id", c.ID).Str("user_id", b.Identity.UserID).Str("room_id", b.Room).Msg("user disconnected")
	if left {
		h.mirrorRoster(b.Room, roster)
	}
}

// publishLocked emits the room's roster to everyone bound to it. Called with
// h.mu held so consecutive rosters reach receivers in commit order.
func (h *Hub) publishLocked(room string, at time.Time, dropped *int) []RosterEntry {
	rs, roster := h.membersLocked(room)
	*dropped += h.fanout(rs, &Event{Kind: EventRoomUsersUpdated, Room: room, Roster: roster, At: at}, nil)
	return roster
}

// membersLocked resolves the room's member ids into their connections and
// roster entries. Requires h.mu (read or write).
func (h *Hub) membersLocked(room string) (recipients, []RosterEntry) {
	ids := h.members.Members(room)
	rs := make(recipients, 0, len(ids))
	roster := make([]RosterEntry, 0, len(ids))
	for _, uid := range ids {
		client, b, ok := h.conns.UserConn(uid)
		if !ok || b.Room != room {
			continue
		}
		rs = append(rs, client)
		roster = append(roster, RosterEntry{ID: uid, DisplayName: b.Identity.DisplayName, Status: StatusOnline})
	}
	return rs, roster
}

func (h *Hub) bindingAndRecipients(c *Client) (Binding, recipients, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b, ok := h.conns.Lookup(c.ID)
	if !ok {
		return Binding{}, nil, false
	}
	rs, _ := h.membersLocked(b.Room)
	return b, rs, true
}

func (h *Hub) fanout(rs recipients, event *Event, skip *Client) int {
	n := rs.broadcast(event, skip)
	if n > 0 {
		h.dropped.Add(int64(n))
	}
	return n
}

func (h *Hub) reject(c *Client, cmd *Command, err *CoreError) {
	h.log.Debug().Str("conn_id", c.ID).Str("command", cmd.Kind.String()).
		Str("code", err.Code).Msg("command rejected")
	if !deliver(c, &Event{Kind: EventError, Room: cmd.Room, Error: err, At: h.now()}) {
		h.dropped.Add(1)
		h.logDrops(1, "message-error")
	}
}

func (h *Hub) logDrops(n int, what string) {
	if n == 0 {
		return
	}
	h.log.Warn().Int("dropped", n).Str("event", what).Msg("slow consumer, events dropped")
}

func (h *Hub) mirrorRoster(room string, roster []RosterEntry) {
	if h.mirror == nil {
		return
	}
	h.enqueue("mirror roster", func(ctx context.Context) error {
		return h.mirror.MirrorRoster(ctx, room, roster)
	})
}

func (h *Hub) enqueue(name string, fn func(ctx context.Context) error) {
	j := func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			h.log.Warn().Err(err).Str("job", name).Msg("side effect failed")
		}
	}
	select {
	case h.jobs <- j:
	default:
		h.log.Warn().Str("job", name).Msg("job queue full, dropping")
	}
}

// Lookup returns the binding of a connection.
func (h *Hub) Lookup(connID string) (Binding, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conns.Lookup(connID)
}

// Members returns the user ids present in a room, in join order.
func (h *Hub) Members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.members.Members(room)
}

// Roster returns the current roster of a room.
func (h *Hub) Roster(room string) []RosterEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, roster := h.membersLocked(room)
	return roster
}

// Stats returns connection and room counts.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	open, bound := h.conns.Stats()
	rooms := h.members.Rooms()
	h.mu.RUnlock()

	return Stats{
		Connections:   open,
		Authenticated: bound,
		Rooms:         rooms,
		Dropped:       h.dropped.Load(),
	}
}
