package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/voxelkit/slicecache/cacheerr"
)

// Redis is a Redis-backed Store. Unlike an in-process read tier, the
// durable store must report failures: every Redis error surfaces as a
// storage-unavailable error so the engine can roll back accounting.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed store. Records live under
// "<storeName>/<key>"; the namespace schema version is kept under
// "<storeName>!schema" and a mismatch on open wipes the namespace.
func NewRedis(addr, password string, db int, storeName string, schemaVersion uint32) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	s := &Redis{rdb: rdb, prefix: storeName + "/"}

	ctx := context.Background()
	schemaField := storeName + "!schema"
	stored, err := rdb.Get(ctx, schemaField).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		_ = rdb.Close()
		return nil, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "read schema version")
	}
	want := strconv.FormatUint(uint64(schemaVersion), 10)
	if err == nil && stored != want {
		if err := s.Clear(ctx); err != nil {
			_ = rdb.Close()
			return nil, err
		}
	}
	if err := rdb.Set(ctx, schemaField, want, 0).Err(); err != nil {
		_ = rdb.Close()
		return nil, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "write schema version")
	}
	return s, nil
}

// Get returns the record stored under key.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rec, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "redis get")
	}
	return rec, true, nil
}

// Put stores rec under key with no TTL; expiry is the engine's concern.
func (s *Redis) Put(ctx context.Context, key string, rec []byte) error {
	err := s.rdb.Set(ctx, s.prefix+key, rec, 0).Err()
	return cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "redis put")
}

// Delete removes the record under key.
func (s *Redis) Delete(ctx context.Context, key string) error {
	err := s.rdb.Del(ctx, s.prefix+key).Err()
	return cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "redis delete")
}

// Keys lists every key in the namespace via SCAN.
func (s *Redis) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "redis scan")
	}
	return keys, nil
}

// Clear removes every record in the namespace.
func (s *Redis) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return cacheerr.Wrap(cacheerr.CodeStorageUnavailable, s.rdb.Del(ctx, full...).Err(), "redis clear")
}

// Ping checks the Redis connection.
func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (s *Redis) Close() error {
	return s.rdb.Close()
}
