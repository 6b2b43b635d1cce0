package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still held by this owner.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis. Each store instance has
// its own owner token, so one process cannot release another's lock.
type LockStore struct {
	client *redis.Client
	owner  string
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client, owner: uuid.NewString()}
}

// Acquire attempts to take the named lock for ttl.
// Returns true if the lock was acquired, false if already held elsewhere.
func (s *LockStore) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, "lock:"+name, s.owner, ttl).Result()
}

// Release releases the named lock if this store holds it.
func (s *LockStore) Release(ctx context.Context, name string) error {
	return releaseScript.Run(ctx, s.client, []string{"lock:" + name}, s.owner).Err()
}
