package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"foneai-widget/internal/chat"
)

const redisKeyPrefix = "foneai:transcript:"

// RedisOptions configures the shared transcript store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL is refreshed on every append; 0 keeps transcripts forever.
	TTL         time.Duration
	MaxMessages int
}

// RedisStore keeps one list per session so several widget servers can share
// transcripts.
type RedisStore struct {
	inner       *redis.Client
	ttl         time.Duration
	maxMessages int
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{inner: client, ttl: opts.TTL, maxMessages: opts.MaxMessages}, nil
}

func redisKey(sessionID string) string { return redisKeyPrefix + sessionID }

func (r *RedisStore) Append(ctx context.Context, sessionID string, msg chat.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := redisKey(sessionID)
	pipe := r.inner.TxPipeline()
	pipe.RPush(ctx, key, b)
	if r.maxMessages > 0 {
		pipe.LTrim(ctx, key, int64(-r.maxMessages), -1)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (r *RedisStore) Messages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	raw, err := r.inner.LRange(ctx, redisKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read: %w", err)
	}
	msgs := make([]chat.Message, 0, len(raw))
	for _, s := range raw {
		var m chat.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.inner.Del(ctx, redisKey(sessionID)).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	if r == nil || r.inner == nil {
		return nil
	}
	return r.inner.Close()
}
