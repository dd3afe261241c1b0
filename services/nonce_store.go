package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceStore keeps the pending sign-in message per wallet. Take removes the
// nonce and returns "" when none is outstanding.
type NonceStore interface {
	Put(ctx context.Context, address, nonce string, ttl time.Duration) error
	Take(ctx context.Context, address string) (string, error)
}

type memoryNonce struct {
	value   string
	expires time.Time
}

type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]memoryNonce
	now    Clock
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]memoryNonce)}
}

func (s *MemoryNonceStore) Put(_ context.Context, address, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now.now()
	for addr, n := range s.nonces {
		if now.After(n.expires) {
			delete(s.nonces, addr)
		}
	}
	s.nonces[strings.ToLower(address)] = memoryNonce{value: nonce, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) Take(_ context.Context, address string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(address)
	n, ok := s.nonces[key]
	if !ok {
		return "", nil
	}
	delete(s.nonces, key)
	if s.now.now().After(n.expires) {
		return "", nil
	}
	return n.value, nil
}

type RedisNonceStore struct {
	rdb *redis.Client
}

// NewRedisNonceStore connects using a redis:// URL.
func NewRedisNonceStore(ctx context.Context, url string) (*RedisNonceStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisNonceStore{rdb: rdb}, nil
}

func nonceKey(address string) string {
	return "briefly:nonce:" + strings.ToLower(address)
}

func (s *RedisNonceStore) Put(ctx context.Context, address, nonce string, ttl time.Duration) error {
	return s.rdb.Set(ctx, nonceKey(address), nonce, ttl).Err()
}

func (s *RedisNonceStore) Take(ctx context.Context, address string) (string, error) {
	v, err := s.rdb.GetDel(ctx, nonceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *RedisNonceStore) Close() error {
	return s.rdb.Close()
}
