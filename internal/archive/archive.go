// Package archive holds the core.Archiver implementations: durable history in
// the SQL store and a NATS feed for downstream consumers.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/store"
)

// StoreArchiver persists relayed messages and reactions.
type StoreArchiver struct {
	store store.MessageStore
}

// NewStoreArchiver creates an archiver backed by st.
func NewStoreArchiver(st store.MessageStore) *StoreArchiver {
	return &StoreArchiver{store: st}
}

// ArchiveMessage implements core.Archiver.
func (a *StoreArchiver) ArchiveMessage(ctx context.Context, msg *core.Message) error {
	record := &store.Message{
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
		record.Preview = &store.LinkPreview{
			URL:         p.URL,
			Title:       p.Title,
			Description: p.Description,
			Image:       p.Image,
			Provider:    p.Provider,
		}
	}
	if err := a.store.SaveMessage(ctx, record); err != nil {
		return fmt.Errorf("archive message %s: %w", msg.ID, err)
	}
	return nil
}

// ArchiveReaction implements core.Archiver. Reactions to messages the store
// never saw are reported as store.ErrNotFound.
func (a *StoreArchiver) ArchiveReaction(ctx context.Context, r *core.Reaction) error {
	err := a.store.SaveReaction(ctx, &store.Reaction{
		MessageID:   r.MessageID,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		Reaction:    r.Reaction,
		CreatedAt:   r.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("archive reaction on %s: %w", r.MessageID, err)
	}
	return nil
}

// Multi forwards to every archiver in order and joins their errors.
type Multi []core.Archiver

// ArchiveMessage implements core.Archiver.
func (m Multi) ArchiveMessage(ctx context.Context, msg *core.Message) error {
	var errs []error
	for _, a := range m {
		if err := a.ArchiveMessage(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ArchiveReaction implements core.Archiver.
func (m Multi) ArchiveReaction(ctx context.Context, r *core.Reaction) error {
	var errs []error
	for _, a := range m {
		if err := a.ArchiveReaction(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
