package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes KEYS[1] only while it still holds the caller's token.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockPollInterval = 25 * time.Millisecond

var ErrLockTimeout = errors.New("lock_timeout")

// mutex is a single-key Redis lock. Holders are identified by a random
// token so an expired holder cannot release a successor's lock.
type mutex struct {
	client *redis.Client
	unlock *redis.Script
}

// held is an acquired lock.
type held struct {
	m     *mutex
	key   string
	token string
}

func newMutex(client *redis.Client) *mutex {
	return &mutex{client: client, unlock: redis.NewScript(unlockScript)}
}

func (m *mutex) tryLock(ctx context.Context, key string, ttl time.Duration) (*held, error) {
	if key == "" || ttl <= 0 {
		return nil, errors.New("lock key and ttl are required")
	}
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, err
	}
	return &held{m: m, key: key, token: token}, nil
}

// lock polls tryLock until the key is free, wait elapses or ctx ends.
func (m *mutex) lock(ctx context.Context, key string, ttl, wait time.Duration) (*held, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		h, err := m.tryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (h *held) release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.m.unlock.Run(ctx, h.m.client, []string{h.key}, h.token).Err()
}
