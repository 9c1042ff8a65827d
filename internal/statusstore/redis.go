// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package statusstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hash fields of a stored document.
const (
	fieldVersion = "v"
	fieldDoc     = "d"
)

// setScript bumps the version and replaces the document atomically.
// ARGV: doc, ttl in ms (0 = persist).
var setScript = redis.NewScript(`
local v = redis.call('HINCRBY', KEYS[1], 'v', 1)
redis.call('HSET', KEYS[1], 'd', ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return v
`)

// incrementScript adds ARGV[2] to integer field ARGV[1] of the JSON document.
// ARGV[3] is an optional token recorded as hash field "t:<token>"; a token
// seen before returns the current value. ARGV[4] is the limit (0 = none).
var incrementScript = redis.NewScript(`
local d = redis.call('HGET', KEYS[1], 'd')
if not d then
  return redis.error_reply('NOTFOUND')
end
local doc = cjson.decode(d)
local cur = tonumber(doc[ARGV[1]]) or 0
local token = ARGV[3]
if token ~= '' and redis.call('HEXISTS', KEYS[1], 't:' .. token) == 1 then
  return cur
end
local n = cur + tonumber(ARGV[2])
local limit = tonumber(ARGV[4])
if limit > 0 and n > limit then
  return redis.error_reply('LIMIT')
end
doc[ARGV[1]] = n
redis.call('HSET', KEYS[1], 'd', cjson.encode(doc))
redis.call('HINCRBY', KEYS[1], 'v', 1)
if token ~= '' then
  redis.call('HSET', KEYS[1], 't:' .. token, 1)
end
return n
`)

// RedisStore keeps status records in Redis hashes so several processes can
// share one status store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects using a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url, keyPrefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, wrapErr("open", "", fmt.Errorf("parse redis url: %w", err))
	}
	s := NewRedisStore(redis.NewClient(opts), keyPrefix)
	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (r *RedisStore) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return ttl.Milliseconds()
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	vals, err := r.client.HMGet(ctx, r.key(key), fieldVersion, fieldDoc).Result()
	if err != nil {
		return Entry{}, wrapErr("get", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, wrapErr("get", key, ErrNotFound)
	}
	version, err := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return Entry{}, wrapErr("get", key, fmt.Errorf("corrupt version: %w", err))
	}
	return Entry{Value: []byte(fmt.Sprint(vals[1])), Version: version}, nil
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (int64, error) {
	v, err := setScript.Run(ctx, r.client, []string{r.key(key)}, value, ttlMillis(ttl)).Int64()
	if err != nil {
		return 0, wrapErr("set", key, err)
	}
	return v, nil
}

// CompareAndSwap implements Store using WATCH/MULTI on the record's hash.
func (r *RedisStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte, ttl time.Duration) (int64, error) {
	k := r.key(key)
	next := expectedVersion + 1

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, k, fieldVersion).Int64()
		switch {
		case errors.Is(err, redis.Nil):
			current = 0
		case err != nil:
			return err
		}
		if current != expectedVersion {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldVersion, next, fieldDoc, value)
			if ttl > 0 {
				pipe.PExpire(ctx, k, ttl)
			} else {
				pipe.Persist(ctx, k)
			}
			return nil
		})
		return err
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		err = ErrVersionConflict
	}
	if err != nil {
		return 0, wrapErr("cas", key, err)
	}
	return next, nil
}

// IncrementField implements Store with a Lua script. Tokens are fields of
// the record's hash, so they expire with it and survive CAS rewrites.
func (r *RedisStore) IncrementField(ctx context.Context, key string, inc Increment) (int64, error) {
	n, err := incrementScript.Run(ctx, r.client, []string{r.key(key)}, inc.Field, inc.Delta, inc.Token, inc.Limit).Int64()
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "NOTFOUND"):
			err = ErrNotFound
		case strings.Contains(err.Error(), "LIMIT"):
			err = fmt.Errorf("%w: %s, limit %d", ErrLimitExceeded, inc.Field, inc.Limit)
		}
		return 0, wrapErr("increment", key, err)
	}
	return n, nil
}

// IncrWindow implements Store with INCR and EXPIRE NX in one pipeline.
func (r *RedisStore) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := r.key(key)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		if ttl > 0 {
			pipe.ExpireNX(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, wrapErr("incr_window", key, err)
	}
	return incr.Val(), nil
}

// Ping implements Store.
func (r *RedisStore) Ping(ctx context.Context) error {
	return wrapErr("ping", "", r.client.Ping(ctx).Err())
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return wrapErr("close", "", r.client.Close())
}
