package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/proto"
	"github.com/vovakirdan/chatlink-relay/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// RoomHandlers provides HTTP handlers for room management endpoints.
type RoomHandlers struct {
	store store.Store
	hub   *core.Hub
	log   *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(st store.Store, hub *core.Hub, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store: st,
		hub:   hub,
		log:   logger,
	}
}

// CreateRoomRequest represents the create room request body.
type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=64"`
	Description string `json:"description" binding:"max=256"`
	Private     bool   `json:"private"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	InviteCode  string `json:"invite_code"`
	OwnerID     *int64 `json:"owner_id,omitempty"`
	Online      int    `json:"online"`
	CreatedAt   string `json:"created_at"`
}

func (h *RoomHandlers) roomResponse(room *store.Room) RoomResponse {
	return RoomResponse{
		ID:          room.ID,
		Name:        room.Name,
		Description: room.Description,
		Type:        string(room.Type),
		InviteCode:  room.InviteCode,
		OwnerID:     room.OwnerID,
		Online:      len(h.hub.Members(room.ID)),
		CreatedAt:   room.CreatedAt.Format(time.RFC3339),
	}
}

// CreateRoom handles room creation.
// POST /api/rooms
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	uid, ok := userIDFromContext(c, h.log)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create room request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	roomType := store.RoomTypePublic
	if req.Private {
		roomType = store.RoomTypePrivate
	}

	room, err := h.store.CreateRoom(c.Request.Context(), req.Name, req.Description, roomType, &uid)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "room with this name already exists"})
			return
		}
		h.log.Error().Err(err).Str("room_name", req.Name).Msg("failed to create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_name", room.Name).Str("room_id", room.ID).Int64("owner_id", uid).Msg("room created successfully")
	c.JSON(http.StatusCreated, h.roomResponse(room))
}

// ListRooms handles listing accessible rooms with their live presence counts.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	uid, ok := userIDFromContext(c, h.log)
	if !ok {
		return
	}

	rooms, err := h.store.ListRooms(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list rooms")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, h.roomResponse(room))
	}

	h.log.Debug().Int64("user_id", uid).Int("room_count", len(rooms)).Msg("rooms listed successfully")
	c.JSON(http.StatusOK, response)
}

// JoinByInvite adds the user to the room behind an invite code.
// POST /api/rooms/join/:invite
func (h *RoomHandlers) JoinByInvite(c *gin.Context) {
	uid, ok := userIDFromContext(c, h.log)
	if !ok {
		return
	}

	room, err := h.store.GetRoomByInviteCode(c.Request.Context(), c.Param("invite"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid invite code"})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve invite")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if err := h.store.AddMember(c.Request.Context(), uid, room.ID); err != nil {
		h.log.Error().Err(err).Str("room_id", room.ID).Int64("user_id", uid).Msg("failed to join room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("room_id", room.ID).Int64("user_id", uid).Msg("joined room by invite")
	c.JSON(http.StatusOK, h.roomResponse(room))
}

// RoomInfoResponse is the public view of a room behind an invite code.
type RoomInfoResponse struct {
	RoomResponse
	MemberCount int `json:"member_count"`
}

// RoomByInvite describes the room behind an invite code without joining it.
// GET /api/rooms/invite/:invite
func (h *RoomHandlers) RoomByInvite(c *gin.Context) {
	ctx := c.Request.Context()
	room, err := h.store.GetRoomByInviteCode(ctx, c.Param("invite"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "invalid invite code"})
			return
		}
		h.log.Error().Err(err).Msg("failed to resolve invite")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	members, err := h.store.ListMembers(ctx, room.ID)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", room.ID).Msg("failed to list members")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, RoomInfoResponse{RoomResponse: h.roomResponse(room), MemberCount: len(members)})
}

// ListMessages returns persisted history of a room, oldest first.
// GET /api/rooms/:id/messages?limit=50&before=<message id>
func (h *RoomHandlers) ListMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c, h.log)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	roomID := c.Param("id")

	room, err := h.store.GetRoomByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
			return
		}
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to load room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if room.Type != store.RoomTypePublic {
		member, err := h.store.IsMember(ctx, uid, room.ID)
		if err != nil {
			h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to check membership")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a member of this room"})
			return
		}
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	messages, err := h.store.ListMessages(ctx, room.ID, limit, c.Query("before"))
	if err != nil {
		h.log.Error().Err(err).Str("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.EventMessage, 0, len(messages))
	for _, msg := range messages {
		response = append(response, storedMessageToProto(msg))
	}
	c.JSON(http.StatusOK, response)
}

func storedMessageToProto(msg *store.Message) proto.EventMessage {
	out := proto.EventMessage{
		ID:         msg.ID,
		RoomID:     msg.RoomID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Kind:       msg.Kind,
		Reactions:  make([]proto.Reaction, 0, len(msg.Reactions)),
		Timestamp:  msg.CreatedAt.UnixMilli(),
	}
	if msg.FileURL != "" {
		out.File = &proto.FileInfo{URL: msg.FileURL, Name: msg.FileName, Size: msg.FileSize}
	}
	if p := msg.Preview; p != nil {
		out.LinkPreview = &proto.LinkPreview{
			URL:         p.URL,
			Title:       p.Title,
			Description: p.Description,
			Image:       p.Image,
			Provider:    p.Provider,
		}
	}
	for _, r := range msg.Reactions {
		out.Reactions = append(out.Reactions, proto.Reaction{
			MessageID:   r.MessageID,
			RoomID:      msg.RoomID,
			UserID:      r.UserID,
			DisplayName: r.DisplayName,
			Reaction:    r.Reaction,
			Timestamp:   r.CreatedAt.UnixMilli(),
		})
	}
	return out
}
