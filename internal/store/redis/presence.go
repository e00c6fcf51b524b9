// Package redis mirrors live room rosters into Redis so other services can
// read who is online without talking to the relay.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vovakirdan/chatlink-relay/internal/core"
)

const defaultKeyPrefix = "chatlink"

// PresenceMirror implements core.PresenceMirror on a Redis hash per room:
// field = user id, value = JSON roster entry.
type PresenceMirror struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

type entry struct {
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// NewPresenceMirror creates a mirror. A non-positive ttl keeps keys until the
// room empties.
func NewPresenceMirror(rdb *goredis.Client, prefix string, ttl time.Duration) *PresenceMirror {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &PresenceMirror{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Connect opens a client and checks the server answers.
func Connect(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (m *PresenceMirror) key(room string) string {
	return fmt.Sprintf("%s:rooms:%s:online", m.prefix, room)
}

// MirrorRoster replaces the stored roster of room atomically. An empty
// roster deletes the key.
func (m *PresenceMirror) MirrorRoster(ctx context.Context, room string, roster []core.RosterEntry) error {
	key := m.key(room)

	pipe := m.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(roster) > 0 {
		fields := make([]any, 0, len(roster)*2)
		for _, e := range roster {
			b, err := json.Marshal(entry{DisplayName: e.DisplayName, Status: e.Status})
			if err != nil {
				return fmt.Errorf("encode roster entry: %w", err)
			}
			fields = append(fields, e.ID, b)
		}
		pipe.HSet(ctx, key, fields...)
		if m.ttl > 0 {
			pipe.Expire(ctx, key, m.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror roster %s: %w", room, err)
	}
	return nil
}

// Online reads a mirrored roster back, ordered by user id.
func (m *PresenceMirror) Online(ctx context.Context, room string) ([]core.RosterEntry, error) {
	raw, err := m.rdb.HGetAll(ctx, m.key(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", room, err)
	}

	roster := make([]core.RosterEntry, 0, len(raw))
	for id, value := range raw {
		var e entry
		if err := json.Unmarshal([]byte(value), &e); err != nil {
			return nil, fmt.Errorf("decode roster entry %s: %w", id, err)
		}
		roster = append(roster, core.RosterEntry{ID: id, DisplayName: e.DisplayName, Status: e.Status})
	}
	slices.SortFunc(roster, func(a, b core.RosterEntry) int {
		return strings.Compare(a.ID, b.ID)
	})
	return roster, nil
}
