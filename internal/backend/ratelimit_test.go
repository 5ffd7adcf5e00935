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
	"testing"
	"time"

	"plotmap/internal/auth"
)

func TestRedisLimiter_ErrorsWhenRedisUnavailable(t *testing.T) {
	rdb := NewRedisClient("127.0.0.1:1")
	defer func() { _ = rdb.Close() }()
	lim := NewRedisLimiter(rdb, "", auth.BucketConfig{Capacity: 1}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := lim.Allow(ctx, "login:1.2.3.4"); err == nil {
		t.Fatalf("expected error without redis")
	}
}

func TestFallbackToLocalLimiter(t *testing.T) {
	rdb := NewRedisClient("127.0.0.1:1")
	defer func() { _ = rdb.Close() }()
	cfg := auth.BucketConfig{Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour}
	lim := auth.FallbackLimiter{Primary: NewRedisLimiter(rdb, "t", cfg, 0), Secondary: auth.NewLocalLimiter(cfg)}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := lim.Allow(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := lim.Allow(ctx, "k"); ok {
		t.Fatalf("third attempt must be limited by the local bucket")
	}
}

func TestNewRedisLimiterDefaults(t *testing.T) {
	lim := NewRedisLimiter(nil, "", auth.BucketConfig{Capacity: 4, RefillInterval: 10 * time.Second}, 0)
	if lim.prefix != "plotmap:rl" {
		t.Fatalf("prefix %q", lim.prefix)
	}
	if lim.ttl != 40*time.Second {
		t.Fatalf("ttl %v", lim.ttl)
	}
}

func TestAsInt64(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{int64(1), 1}, {3, 3}, {2.0, 2}, {"7", 7}, {"x", 0}, {nil, 0},
	}
	for _, c := range cases {
		if got := asInt64(c.in); got != c.want {
			t.Fatalf("asInt64(%#v)=%d want %d", c.in, got, c.want)
		}
	}
}
