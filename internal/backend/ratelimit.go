/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"plotmap/internal/auth"
)

// tokenBucketScript refills by whole intervals and takes one token.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
  local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
  if intervals > 0 then
    tokens = math.min(capacity, tokens + intervals * refill_tokens)
    last_refill = last_refill + intervals * interval_ms
  end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

// RedisLimiter is an auth.Limiter shared by every server instance.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
	cfg    auth.BucketConfig
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisLimiter keeps buckets under prefix. Idle buckets expire after ttl
// (the time to refill a full bucket when zero).
func NewRedisLimiter(rdb redis.Scripter, prefix string, cfg auth.BucketConfig, ttl time.Duration) *RedisLimiter {
	cfg = cfg.Normalize()
	if ttl <= 0 {
		ttl = time.Duration(cfg.Capacity) * cfg.RefillInterval
	}
	if prefix == "" {
		prefix = "plotmap:rl"
	}
	return &RedisLimiter{rdb: rdb, prefix: prefix, cfg: cfg, ttl: ttl, now: time.Now}
}

// NewRedisClient returns a client with short timeouts so an absent Redis
// fails fast and the fallback limiter takes over.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   0,
	})
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ttl := int64(l.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	vals, err := tokenBucketScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key},
		l.now().UnixMilli(), l.cfg.Capacity, l.cfg.RefillTokens, l.cfg.RefillInterval.Milliseconds(), ttl,
	).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	arr, ok := vals.([]any)
	if !ok || len(arr) != 3 {
		return false, fmt.Errorf("rate limit script: unexpected result %#v", vals)
	}
	return asInt64(arr[0]) == 1, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

var _ auth.Limiter = (*RedisLimiter)(nil)
