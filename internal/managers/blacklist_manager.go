package managers

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const revokedKeyPrefix = "revoked:"

// BlacklistMgr is the revocation set for token identifiers (jti).
// Insert is monotonic: a revoked identifier is never un-revoked, entries
// only leave the set once their TTL has passed and the token could no
// longer validate anyway. Implementations must be safe for concurrent use.
type BlacklistMgr interface {
	Insert(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

// MemoryBlacklist keeps the revocation set in process memory.
// Expired entries are pruned lazily on insert.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryBlacklist creates an empty in-memory revocation set.
func NewMemoryBlacklist() *MemoryBlacklist {
	log.Info("Initializing in-memory token blacklist")
	return &MemoryBlacklist{entries: make(map[string]time.Time)}
}

func (b *MemoryBlacklist) Insert(_ context.Context, jti string, ttl time.Duration) error {
	now := time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, expiresAt := range b.entries {
		if now.After(expiresAt) {
			delete(b.entries, id)
		}
	}

	b.entries[jti] = now.Add(ttl)
	return nil
}

func (b *MemoryBlacklist) Contains(_ context.Context, jti string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	expiresAt, ok := b.entries[jti]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiresAt), nil
}

// RedisBlacklist persists the revocation set in Redis, so that revocations
// survive restarts and are shared between replicas. The TTL delegates
// pruning to Redis.
type RedisBlacklist struct {
	rdb *redis.Client
}

// NewRedisBlacklist creates a Redis-backed revocation set.
func NewRedisBlacklist(rdb *redis.Client) *RedisBlacklist {
	log.Info("Initializing redis token blacklist")
	return &RedisBlacklist{rdb: rdb}
}

func (b *RedisBlacklist) Insert(ctx context.Context, jti string, ttl time.Duration) error {
	return b.rdb.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

func (b *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
