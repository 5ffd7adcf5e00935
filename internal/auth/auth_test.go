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
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"plotmap/internal/domain"
	"plotmap/internal/storage"
)

func newTestService(t *testing.T, lim Limiter) (*Service, *storage.MemStore) {
	t.Helper()
	st := storage.NewMemStore()
	s, err := NewService(st, Options{Secret: []byte("test-secret"), BcryptCost: bcrypt.MinCost, Limiter: lim})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := s.CreateUser(context.Background(), "asha", "s3cret", domain.RoleSales); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return s, st
}

func TestNewServiceNeedsSecret(t *testing.T) {
	if _, err := NewService(storage.NewMemStore(), Options{}); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestLoginAndVerify(t *testing.T) {
	s, st := newTestService(t, nil)
	u, _ := st.User(context.Background(), "asha")
	if u.PasswordHash == "s3cret" || !VerifyPassword(u.PasswordHash, "s3cret") {
		t.Fatalf("password must be stored as bcrypt hash")
	}
	sess, err := s.Login(context.Background(), "127.0.0.1", "asha", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token == "" || sess.Role != domain.RoleSales {
		t.Fatalf("unexpected session: %+v", sess)
	}
	c, err := s.Verify(sess.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.Subject != "asha" || c.Role != domain.RoleSales {
		t.Fatalf("unexpected claims: %+v", c)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s, _ := newTestService(t, nil)
	if _, err := s.Login(context.Background(), "k", "asha", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := s.Login(context.Background(), "k", "nobody", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	s, _ := newTestService(t, nil)
	sess, err := s.Issue(domain.User{Username: "asha", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	s.now = func() time.Time { return time.Now().Add(DefaultTokenTTL + time.Hour) }
	if _, err := s.Verify(sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: got %v", err)
	}

	other, _ := NewService(storage.NewMemStore(), Options{Secret: []byte("other")})
	sess2, _ := other.Issue(domain.User{Username: "x", Role: domain.RoleAdmin})
	s.now = time.Now
	if _, err := s.Verify(sess2.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token: got %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	lim := NewLocalLimiter(BucketConfig{Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute})
	s, _ := newTestService(t, lim)
	for i := 0; i < 2; i++ {
		if _, err := s.Login(context.Background(), "ip", "asha", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}
	if _, err := s.Login(context.Background(), "ip", "asha", "s3cret"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third attempt must be limited, got %v", err)
	}
	if _, err := s.Login(context.Background(), "other-ip", "asha", "s3cret"); err != nil {
		t.Fatalf("other key must pass: %v", err)
	}
}
