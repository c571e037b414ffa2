package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/engagement-ledger/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestReplayGuard_FirstSeen(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	guard := NewReplayGuardWithPrefix(client, "test:replay:"+uuid.NewString()+":")
	ctx := context.Background()

	first, err := guard.FirstSeen(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := guard.FirstSeen(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, again, "second delivery of the same token is a replay")

	other, err := guard.FirstSeen(ctx, "jti-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestReplayGuard_Forget(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	guard := NewReplayGuardWithPrefix(client, "test:replay:"+uuid.NewString()+":")
	ctx := context.Background()

	_, err := guard.FirstSeen(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, guard.Forget(ctx, "jti-1"))

	first, err := guard.FirstSeen(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestReplayGuard_Expires(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	guard := NewReplayGuardWithPrefix(client, "test:replay:"+uuid.NewString()+":")
	ctx := context.Background()

	_, err := guard.FirstSeen(ctx, "jti-1", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)

	first, err := guard.FirstSeen(ctx, "jti-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first, "keys expire with their ttl")
}

func TestReplayGuard_Validation(t *testing.T) {
	guard := NewReplayGuard(nil)
	_, err := guard.FirstSeen(context.Background(), "", time.Minute)
	require.Error(t, err)
	_, err = guard.FirstSeen(context.Background(), "k", 0)
	require.Error(t, err)
	assert.NoError(t, guard.Forget(context.Background(), ""))
}
