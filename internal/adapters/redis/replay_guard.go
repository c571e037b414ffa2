// Package redis provides Redis-backed adapters for the ledger service.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/engagement-ledger/internal/core"
)

const defaultReplayPrefix = "ledger:callback:"

// ReplayGuard records gateway callback token ids with SET NX so a replayed
// callback is recognised before it reaches the ledger.
type ReplayGuard struct {
	client redis.UniversalClient
	prefix string
}

var _ core.ReplayGuard = (*ReplayGuard)(nil)

// NewReplayGuard creates a replay guard with the default key prefix.
func NewReplayGuard(client redis.UniversalClient) *ReplayGuard {
	return NewReplayGuardWithPrefix(client, defaultReplayPrefix)
}

// NewReplayGuardWithPrefix creates a replay guard with a custom key prefix.
func NewReplayGuardWithPrefix(client redis.UniversalClient, prefix string) *ReplayGuard {
	return &ReplayGuard{client: client, prefix: prefix}
}

// FirstSeen stores key for ttl and reports whether it was absent.
func (g *ReplayGuard) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("replay key cannot be empty")
	}
	if ttl <= 0 {
		return false, errors.New("replay ttl must be positive")
	}
	ok, err := g.client.SetNX(ctx, g.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Forget removes key so the callback it belongs to can be delivered again. It
// is used when the ledger rejected a callback for a transient reason.
func (g *ReplayGuard) Forget(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
