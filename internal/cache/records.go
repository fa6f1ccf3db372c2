package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"walletwise/internal/core"
)

// LocalRecordCache is a RecordCache over an in-process LRU.
type LocalRecordCache struct {
	lru *LRUCache[core.Expense]
}

var (
	_ RecordCache = (*LocalRecordCache)(nil)
	_ RecordCache = (*RedisRecordCache)(nil)
	_ Cleaner     = (*LocalRecordCache)(nil)
)

func NewLocalRecordCache(maxSize int, ttl time.Duration) *LocalRecordCache {
	return &LocalRecordCache{lru: NewLRUCache[core.Expense](maxSize, ttl)}
}

func (c *LocalRecordCache) Get(_ context.Context, key string) (core.Expense, bool, error) {
	e, ok := c.lru.Get(key)
	return e, ok, nil
}

func (c *LocalRecordCache) Set(_ context.Context, key string, e core.Expense) error {
	c.lru.Set(key, e)
	return nil
}

// CleanExpired lets a Manager sweep the underlying LRU.
func (c *LocalRecordCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

const redisKeyPrefix = "walletwise:expense:key:"

// RedisRecordCache shares records between server instances through Redis.
type RedisRecordCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRecordCache connects to redisURL (redis:// or rediss://) and pings it.
func NewRedisRecordCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisRecordCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisRecordCacheFromClient(client, ttl), nil
}

func NewRedisRecordCacheFromClient(client *redis.Client, ttl time.Duration) *RedisRecordCache {
	return &RedisRecordCache{client: client, ttl: ttl}
}

type cachedExpense struct {
	ID             int64     `json:"id"`
	AmountCents    int64     `json:"amount_cents"`
	Category       string    `json:"category"`
	Description    string    `json:"description"`
	Date           string    `json:"date"`
	CreatedAt      time.Time `json:"created_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func (c *RedisRecordCache) Get(ctx context.Context, key string) (core.Expense, bool, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Expense{}, false, nil
	}
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("redis get: %w", err)
	}

	var ce cachedExpense
	if err := json.Unmarshal(data, &ce); err != nil {
		return core.Expense{}, false, fmt.Errorf("decode cached expense: %w", err)
	}
	date, err := core.ParseDate(ce.Date)
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("decode cached expense date: %w", err)
	}
	return core.Expense{
		ID:             ce.ID,
		Amount:         core.Money{Cents: ce.AmountCents},
		Category:       core.Category(ce.Category),
		Description:    ce.Description,
		Date:           date,
		CreatedAt:      ce.CreatedAt,
		IdempotencyKey: ce.IdempotencyKey,
	}, true, nil
}

// Set never stores mirror bookkeeping; only the immutable record is cached.
func (c *RedisRecordCache) Set(ctx context.Context, key string, e core.Expense) error {
	data, err := json.Marshal(cachedExpense{
		ID:             e.ID,
		AmountCents:    e.Amount.Cents,
		Category:       string(e.Category),
		Description:    e.Description,
		Date:           e.Date.String(),
		CreatedAt:      e.CreatedAt,
		IdempotencyKey: e.IdempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("encode expense: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisRecordCache) Close() error {
	return c.client.Close()
}
