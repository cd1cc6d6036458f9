package chat

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which users hold a live connection.
type Presence interface {
	Touch(ctx context.Context, userID string) error
	Leave(ctx context.Context, userID string) error
	Online(ctx context.Context) ([]string, error)
}

const (
	presencePrefix = "presence:"
	presenceSet    = "presence:online"
)

// RedisPresence stores presence:<id> keys with a TTL and mirrors their expiry in a sorted set for listing.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisPresence{client: client, ttl: ttl}
}

func (p *RedisPresence) Touch(ctx context.Context, userID string) error {
	expires := time.Now().Add(p.ttl).Unix()
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, presencePrefix+userID, expires, p.ttl)
	pipe.ZAdd(ctx, presenceSet, redis.Z{Score: float64(expires), Member: userID})
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Leave(ctx context.Context, userID string) error {
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, presencePrefix+userID)
	pipe.ZRem(ctx, presenceSet, userID)
	_, err := pipe.Exec(ctx)
	return err
}

// Online drops expired members before listing the rest.
func (p *RedisPresence) Online(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := p.client.ZRemRangeByScore(ctx, presenceSet, "-inf", "("+now).Err(); err != nil {
		return nil, err
	}
	ids, err := p.client.ZRangeByScore(ctx, presenceSet, &redis.ZRangeBy{Min: now, Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryPresence is the single-node equivalent of RedisPresence.
type MemoryPresence struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires map[string]time.Time
}

func NewMemoryPresence(ttl time.Duration) *MemoryPresence {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryPresence{ttl: ttl, now: time.Now, expires: map[string]time.Time{}}
}

func (p *MemoryPresence) Touch(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expires[userID] = p.now().Add(p.ttl)
	return nil
}

func (p *MemoryPresence) Leave(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.expires, userID)
	return nil
}

func (p *MemoryPresence) Online(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	ids := []string{}
	for id, exp := range p.expires {
		if exp.Before(now) {
			delete(p.expires, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
