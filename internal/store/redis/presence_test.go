package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/chatlink-relay/internal/core"
)

// Requires Redis running on localhost:6379.
const testRedisAddr = "localhost:6379"

func setupMirror(t *testing.T) (*PresenceMirror, *goredis.Client) {
	t.Helper()

	ctx := context.Background()
	rdb, err := Connect(ctx, testRedisAddr)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	prefix := "chatlink-test-" + t.Name()
	t.Cleanup(func() {
		keys, _ := rdb.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(ctx, keys...)
		}
		_ = rdb.Close()
	})
	return NewPresenceMirror(rdb, prefix, time.Minute), rdb
}

func TestMirrorRosterReplacesAndExpires(t *testing.T) {
	m, rdb := setupMirror(t)
	ctx := context.Background()

	roster := []core.RosterEntry{
		{ID: "b", DisplayName: "bob", Status: core.StatusOnline},
		{ID: "a", DisplayName: "alice", Status: core.StatusOnline},
	}
	require.NoError(t, m.MirrorRoster(ctx, "r1", roster))

	got, err := m.Online(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []core.RosterEntry{roster[1], roster[0]}, got)

	ttl, err := rdb.TTL(ctx, m.key("r1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// A smaller roster replaces the previous one instead of merging.
	require.NoError(t, m.MirrorRoster(ctx, "r1", roster[1:]))
	got, err = m.Online(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []core.RosterEntry{roster[1]}, got)
}

func TestMirrorEmptyRosterDeletesKey(t *testing.T) {
	m, rdb := setupMirror(t)
	ctx := context.Background()

	require.NoError(t, m.MirrorRoster(ctx, "r1", []core.RosterEntry{{ID: "a", DisplayName: "alice", Status: core.StatusOnline}}))
	require.NoError(t, m.MirrorRoster(ctx, "r1", nil))

	n, err := rdb.Exists(ctx, m.key("r1")).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := m.Online(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyLayout(t *testing.T) {
	m := NewPresenceMirror(nil, "", 0)
	assert.Equal(t, "chatlink:rooms:lobby:online", m.key("lobby"))
}
