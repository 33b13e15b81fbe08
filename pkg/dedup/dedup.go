// Package dedup remembers webhook message ids so a redelivered notification
// is handled once.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// Store reports whether a key was already seen and marks it seen.
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Memory is a process-local Store. Expired keys are swept on write.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if exp, ok := m.keys[key]; ok && now.Before(exp) {
		return true, nil
	}
	for k, exp := range m.keys {
		if !now.Before(exp) {
			delete(m.keys, k)
		}
	}
	m.keys[key] = now.Add(m.ttl)
	return false, nil
}

// Redis shares seen ids between bot replicas through SET NX.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to url (redis://...) and pings it.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisClient(client, ttl), nil
}

func NewRedisClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: "weighbot:msg:", ttl: ttl}
}

func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	fresh, err := r.client.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

func (r *Redis) Close() error { return r.client.Close() }
