/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package auth implements the dashboard login gate: bcrypt password hashes,
// signed session tokens and a login attempt limiter.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"plotmap/internal/domain"
	applog "plotmap/internal/log"
	"plotmap/internal/storage"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned when too many login attempts were made.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrInvalidToken is returned when a session token fails verification.
	ErrInvalidToken = errors.New("invalid session token")
)

const (
	DefaultTokenTTL   = 12 * time.Hour
	DefaultBcryptCost = bcrypt.DefaultCost
	issuer            = "plotmap"
)

// Claims carried in a session token.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session is the result of a successful login.
type Session struct {
	Token   string
	Expires time.Time
	User    string
	Role    domain.Role
}

// Options configure a Service. Zero values take defaults.
type Options struct {
	Secret     []byte
	TokenTTL   time.Duration
	BcryptCost int
	Limiter    Limiter
}

// Service checks credentials against a UserStore and issues tokens.
type Service struct {
	users   storage.UserStore
	secret  []byte
	ttl     time.Duration
	cost    int
	limiter Limiter
	now     func() time.Time
	log     *slog.Logger
}

func NewService(users storage.UserStore, opts Options) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &Service{
		users:   users,
		secret:  opts.Secret,
		ttl:     opts.TokenTTL,
		cost:    opts.BcryptCost,
		limiter: opts.Limiter,
		now:     time.Now,
		log:     applog.WithComponent("auth"),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.cost == 0 {
		s.cost = DefaultBcryptCost
	}
	return s, nil
}

// HashPassword returns a bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// CreateUser hashes password and stores the account.
func (s *Service) CreateUser(ctx context.Context, username, password string, role domain.Role) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password required", storage.ErrInvalid)
	}
	h, err := HashPassword(password, s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.SaveUser(ctx, domain.User{Username: username, PasswordHash: h, Role: role})
}

// Login verifies the credentials and returns a signed session. key identifies
// the caller for rate limiting (client address or username).
func (s *Service) Login(ctx context.Context, key, username, password string) (Session, error) {
	l := applog.WithOperation(s.log, "login").With(slog.String("user", username))
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "login:"+key)
		if err != nil {
			l.Warn("limiter failed, allowing attempt", slog.Any("err", err))
		} else if !ok {
			l.Warn("login rate limited", slog.String("key", key))
			return Session{}, ErrRateLimited
		}
	}
	u, err := s.users.User(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			l.Info("login failed")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !VerifyPassword(u.PasswordHash, password) {
		l.Info("login failed")
		return Session{}, ErrInvalidCredentials
	}
	sess, err := s.Issue(u)
	if err != nil {
		return Session{}, err
	}
	l.Info("login ok", slog.String("role", string(u.Role)))
	return sess, nil
}

// Issue signs an HS256 token for u.
func (s *Service) Issue(u domain.User) (Session, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, Expires: exp, User: u.Username, Role: u.Role}, nil
}

// Verify parses and validates a session token.
func (s *Service) Verify(raw string) (*Claims, error) {
	var c Claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &c, nil
}
