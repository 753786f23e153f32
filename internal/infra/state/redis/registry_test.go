package redisstate_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstate "doccraft-collab/internal/infra/state/redis"
)

func newTestRegistry(t *testing.T) *redisstate.RedisRegistry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisstate.NewRedisRegistry(client, "test:")
}

func TestRedisRegistry_JoinTwice_SingleRecord(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Join(ctx, "room1", "u1", "Alice", "#FF0000")
	require.NoError(t, err)
	_, err = reg.Join(ctx, "room1", "u1", "Alice", "#FF0000")
	require.NoError(t, err)

	sessions, err := reg.ListActive(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u1", sessions[0].UserID)
	assert.Equal(t, "Alice", sessions[0].DisplayName)
	assert.True(t, sessions[0].IsActive)
}

func TestRedisRegistry_LeaveUnknownUser_NoOp(t *testing.T) {
	reg := newTestRegistry(t)

	_, found, err := reg.Leave(context.Background(), "room1", "ghost")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisRegistry_OnCloseRemovesEmptyRoom(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Join(ctx, "roomA", "u1", "Alice", "#FF0000")
	require.NoError(t, err)

	exists, err := reg.HasRoom(ctx, "roomA")
	require.NoError(t, err)
	require.True(t, exists)

	_, found, err := reg.OnClose(ctx, "roomA", "u1")
	require.NoError(t, err)
	assert.True(t, found)

	exists, err = reg.HasRoom(ctx, "roomA")
	require.NoError(t, err)
	assert.False(t, exists, "room key must be deleted once no session is active")
}

func TestRedisRegistry_OnCloseKeepsRoomWithOtherActiveSessions(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Join(ctx, "room1", "u1", "Alice", "#FF0000")
	require.NoError(t, err)
	_, err = reg.Join(ctx, "room1", "u2", "Bob", "#00FF00")
	require.NoError(t, err)

	_, _, err = reg.OnClose(ctx, "room1", "u1")
	require.NoError(t, err)

	sessions, err := reg.ListActive(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u2", sessions[0].UserID)

	exists, err := reg.HasRoom(ctx, "room1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRedisRegistry_ListActive_FiltersInactive(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Join(ctx, "room1", "u1", "Alice", "#FF0000")
	require.NoError(t, err)
	_, err = reg.Join(ctx, "room1", "u2", "Bob", "#00FF00")
	require.NoError(t, err)

	_, found, err := reg.Leave(ctx, "room1", "u1")
	require.NoError(t, err)
	require.True(t, found)

	sessions, err := reg.ListActive(ctx, "room1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "u2", sessions[0].UserID)
}

func TestRedisRegistry_ListActive_UnknownRoomIsEmpty(t *testing.T) {
	reg := newTestRegistry(t)

	sessions, err := reg.ListActive(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
