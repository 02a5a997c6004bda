package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "poolmarket:session:"
	nonceKeyPrefix   = "poolmarket:nonce:"
)

// RedisStore keeps sessions in Redis with a TTL.
type RedisStore struct {
	rdb      *redis.Client
	ttl      time.Duration
	nonceTTL time.Duration
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, opts *redis.Options, ttl, nonceTTL time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl, nonceTTL: nonceTTL}, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Create(ctx context.Context, sess *Session) error {
	return s.put(ctx, sess, s.ttl)
}

// Update rewrites a session and keeps its remaining lifetime.
func (s *RedisStore) Update(ctx context.Context, sess *Session) error {
	ttl, err := s.rdb.TTL(ctx, sessionKeyPrefix+sess.ID).Result()
	if err != nil {
		return fmt.Errorf("redis: ttl: %w", err)
	}
	if ttl <= 0 {
		return ErrNotFound
	}
	return s.put(ctx, sess, ttl)
}

func (s *RedisStore) put(ctx context.Context, sess *Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+sess.ID, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	b, err := s.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+id).Err()
}

func (s *RedisStore) IssueNonce(ctx context.Context, wallet string) (string, error) {
	nonce := newNonce()
	if err := s.rdb.Set(ctx, nonceKeyPrefix+strings.ToLower(wallet), nonce, s.nonceTTL).Err(); err != nil {
		return "", fmt.Errorf("redis: set nonce: %w", err)
	}
	return nonce, nil
}

func (s *RedisStore) ConsumeNonce(ctx context.Context, wallet string) (string, error) {
	nonce, err := s.rdb.GetDel(ctx, nonceKeyPrefix+strings.ToLower(wallet)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: get nonce: %w", err)
	}
	return nonce, nil
}
