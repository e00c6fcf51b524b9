package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatlink-relay/internal/core"
)

// Publisher is the part of *nats.Conn the archiver needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSArchiver publishes every relayed message and reaction as JSON on
// <prefix>.rooms.<room>.messages and <prefix>.rooms.<room>.reactions.
type NATSArchiver struct {
	pub    Publisher
	prefix string
}

// NewNATSArchiver creates an archiver publishing through pub.
func NewNATSArchiver(pub Publisher, prefix string) *NATSArchiver {
	if prefix == "" {
		prefix = "chatlink"
	}
	return &NATSArchiver{pub: pub, prefix: prefix}
}

// Connect dials NATS and keeps reconnecting in the background.
func Connect(url string, logger *zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("chatlink-relay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

type messageRecord struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Kind       string    `json:"kind"`
	FileURL    string    `json:"file_url,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	LinkPreview *previewRecord `json:"link_preview,omitempty"`
}

type previewRecord struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Provider    string `json:"provider"`
}

type reactionRecord struct {
	MessageID   string    `json:"message_id"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Reaction    string    `json:"reaction"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArchiveMessage implements core.Archiver.
func (a *NATSArchiver) ArchiveMessage(_ context.Context, msg *core.Message) error {
	record := messageRecord{
		ID:         msg.ID,
		RoomID:     msg.Room,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Content:    msg.Content,
		Kind:       string(msg.Kind),
		CreatedAt:  msg.CreatedAt,
	}
	if msg.File != nil {
		record.FileURL = msg.File.URL
		record.FileName = msg.File.Name
		record.FileSize = msg.File.Size
	}
	if p := msg.LinkPreview; p != nil {
		record.LinkPreview = &previewRecord{
			URL:         p.URL,
			Title:       p.Title,
			Description: p.Description,
			Image:       p.Image,
			Provider:    p.Provider,
		}
	}
	return a.publish(a.subject(msg.Room, "messages"), record)
}

// ArchiveReaction implements core.Archiver.
func (a *NATSArchiver) ArchiveReaction(_ context.Context, r *core.Reaction) error {
	return a.publish(a.subject(r.Room, "reactions"), reactionRecord{
		MessageID:   r.MessageID,
		RoomID:      r.Room,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Reaction:    r.Reaction,
		CreatedAt:   r.CreatedAt,
	})
}

func (a *NATSArchiver) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	if err := a.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

func (a *NATSArchiver) subject(room, kind string) string {
	return a.prefix + ".rooms." + subjectReplacer.Replace(room) + "." + kind
}
