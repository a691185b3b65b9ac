package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "dv:"

// RedisStore shares cached listings between server instances. Each
// namespace keeps a set of its member keys so eviction needs no SCAN.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewRedisStore connects to url (redis://...) and pings the server.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration, log zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb, ttl: ttl, log: log.With().Str("component", "cache.redis").Logger()}, nil
}

func dataKey(ns, key string) string { return keyPrefix + ns + ":" + key }
func memberSet(ns string) string    { return keyPrefix + "ns:" + ns }

// Get treats Redis errors as misses so a cache outage degrades to
// recomputation.
func (s *RedisStore) Get(ctx context.Context, ns, key string) ([]byte, bool) {
	b, err := s.rdb.Get(ctx, dataKey(ns, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("ns", ns).Msg("cache get failed")
		}
		return nil, false
	}
	return b, true
}

func (s *RedisStore) Put(ctx context.Context, ns, key string, value []byte) error {
	k := dataKey(ns, key)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, k, value, s.ttl)
		p.SAdd(ctx, memberSet(ns), k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache put %s: %w", k, err)
	}
	return nil
}

func (s *RedisStore) EvictAll(ctx context.Context, namespaces ...string) error {
	for _, ns := range namespaces {
		set := memberSet(ns)
		keys, err := s.rdb.SMembers(ctx, set).Result()
		if err != nil {
			return fmt.Errorf("list cache namespace %s: %w", ns, err)
		}
		if err := s.rdb.Del(ctx, append(keys, set)...).Err(); err != nil {
			return fmt.Errorf("evict cache namespace %s: %w", ns, err)
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
