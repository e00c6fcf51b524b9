package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatlink-relay/internal/core"
	"github.com/vovakirdan/chatlink-relay/internal/linkpreview"
	"github.com/vovakirdan/chatlink-relay/internal/store"
	"github.com/vovakirdan/chatlink-relay/internal/store/sqlite"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func sampleMessage() *core.Message {
	return &core.Message{
		ID:         "m1",
		Room:       "lobby",
		SenderID:   "a",
		SenderName: "alice",
		Content:    "",
		Kind:       core.MessageKindImage,
		File:       &core.FileRef{URL: "/uploads/cat.png", Name: "cat.png", Size: 42},
		CreatedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func sampleReaction(messageID string) *core.Reaction {
	return &core.Reaction{
		MessageID:   messageID,
		Room:        "lobby",
		Reaction:    "👍",
		UserID:      "b",
		DisplayName: "bob",
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC),
	}
}

func TestStoreArchiver(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	a := NewStoreArchiver(st)
	ctx := context.Background()

	require.NoError(t, a.ArchiveMessage(ctx, sampleMessage()))
	require.NoError(t, a.ArchiveReaction(ctx, sampleReaction("m1")))

	err = a.ArchiveReaction(ctx, sampleReaction("ghost"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	msgs, err := st.ListMessages(ctx, "lobby", 10, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "image", msgs[0].Kind)
	assert.Equal(t, "/uploads/cat.png", msgs[0].FileURL)
	assert.Equal(t, int64(42), msgs[0].FileSize)
	require.Len(t, msgs[0].Reactions, 1)
	assert.Equal(t, "bob", msgs[0].Reactions[0].DisplayName)
}

func TestStoreArchiverKeepsLinkPreview(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	msg := sampleMessage()
	msg.Kind = core.MessageKindText
	msg.File = nil
	msg.Content = "see https://youtu.be/abc"
	msg.LinkPreview = linkpreview.Resolve(msg.Content)
	require.NotNil(t, msg.LinkPreview)

	ctx := context.Background()
	require.NoError(t, NewStoreArchiver(st).ArchiveMessage(ctx, msg))

	msgs, err := st.ListMessages(ctx, "lobby", 10, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Preview)
	assert.Equal(t, linkpreview.ProviderYouTube, msgs[0].Preview.Provider)
	assert.Equal(t, "https://youtu.be/abc", msgs[0].Preview.URL)
	assert.Equal(t, msg.LinkPreview.Image, msgs[0].Preview.Image)
}

func TestNATSArchiverSubjectsAndPayload(t *testing.T) {
	pub := &fakePublisher{}
	a := NewNATSArchiver(pub, "test")
	ctx := context.Background()

	require.NoError(t, a.ArchiveMessage(ctx, sampleMessage()))
	reaction := sampleReaction("m1")
	reaction.Room = "team.alpha *"
	require.NoError(t, a.ArchiveReaction(ctx, reaction))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "test.rooms.lobby.messages", pub.msgs[0].subject)
	assert.Equal(t, "test.rooms.team_alpha__.reactions", pub.msgs[1].subject)

	var record messageRecord
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &record))
	assert.Equal(t, "m1", record.ID)
	assert.Equal(t, "cat.png", record.FileName)
	assert.Nil(t, record.LinkPreview)

	text := sampleMessage()
	text.Kind = core.MessageKindText
	text.File = nil
	text.LinkPreview = linkpreview.Resolve("https://youtu.be/abc")
	require.NoError(t, a.ArchiveMessage(ctx, text))
	var withPreview messageRecord
	require.NoError(t, json.Unmarshal(pub.msgs[2].data, &withPreview))
	require.NotNil(t, withPreview.LinkPreview)
	assert.Equal(t, linkpreview.ProviderYouTube, withPreview.LinkPreview.Provider)

	var rr reactionRecord
	require.NoError(t, json.Unmarshal(pub.msgs[1].data, &rr))
	assert.Equal(t, "team.alpha *", rr.RoomID, "payload keeps the original room id")
}

func TestNATSArchiverPublishError(t *testing.T) {
	boom := errors.New("boom")
	a := NewNATSArchiver(&fakePublisher{err: boom}, "")

	err := a.ArchiveMessage(context.Background(), sampleMessage())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "chatlink.rooms.lobby.messages")
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &fakePublisher{}
	multi := Multi{
		NewNATSArchiver(&fakePublisher{err: boom}, "x"),
		NewNATSArchiver(ok, "y"),
	}

	err := multi.ArchiveReaction(context.Background(), sampleReaction("m1"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.msgs, 1, "later archivers still run after a failure")

	assert.NoError(t, Multi{}.ArchiveMessage(context.Background(), sampleMessage()))
}

func TestNATSArchiverLive(t *testing.T) {
	nc, err := nats.Connect(nats.DefaultURL, nats.Timeout(500*time.Millisecond))
	if err != nil {
		t.Skipf("NATS not available at %s: %v", nats.DefaultURL, err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("livetest.rooms.lobby.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	a := NewNATSArchiver(nc, "livetest")
	require.NoError(t, a.ArchiveMessage(context.Background(), sampleMessage()))
	require.NoError(t, nc.Flush())

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "livetest.rooms.lobby.messages", msg.Subject)
}
