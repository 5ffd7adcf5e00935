/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package auth

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether another attempt for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// BucketConfig describes a token bucket: Capacity attempts, refilled by
// RefillTokens every RefillInterval.
type BucketConfig struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
}

// DefaultLoginBucket allows a burst of 5 attempts and one more every 30s.
var DefaultLoginBucket = BucketConfig{Capacity: 5, RefillTokens: 1, RefillInterval: 30 * time.Second}

// Normalize applies the lower bounds for every field.
func (c BucketConfig) Normalize() BucketConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	return c
}

type bucket struct {
	tokens int
	last   time.Time
}

// LocalLimiter is an in-process token bucket per key.
type LocalLimiter struct {
	mu      sync.Mutex
	cfg     BucketConfig
	buckets map[string]*bucket
	now     func() time.Time
}

func NewLocalLimiter(cfg BucketConfig) *LocalLimiter {
	return &LocalLimiter{cfg: cfg.Normalize(), buckets: map[string]*bucket{}, now: time.Now}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Capacity, last: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.last); elapsed > 0 {
		intervals := int(elapsed / l.cfg.RefillInterval)
		if intervals > 0 {
			b.tokens = min(l.cfg.Capacity, b.tokens+intervals*l.cfg.RefillTokens)
			b.last = b.last.Add(time.Duration(intervals) * l.cfg.RefillInterval)
		}
	}
	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// FallbackLimiter asks Primary and switches to Secondary when Primary errors.
type FallbackLimiter struct {
	Primary   Limiter
	Secondary Limiter
}

func (f FallbackLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.Primary != nil {
		ok, err := f.Primary.Allow(ctx, key)
		if err == nil {
			return ok, nil
		}
	}
	if f.Secondary == nil {
		return true, nil
	}
	return f.Secondary.Allow(ctx, key)
}
