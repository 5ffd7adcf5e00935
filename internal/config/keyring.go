/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service/keys for the OS keyring.
const (
	keyringService = "Plotmap"
	keyringToken   = "session_token"
	keyringSecret  = "jwt_secret"
)

// ErrSecretNotFound is returned when no secret is stored.
var ErrSecretNotFound = errors.New("secret not found")

// TokenStore abstracts the keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the keyring backend and returns a restore func.
func SetTokenStore(ts TokenStore) (restore func()) {
	old := tokenStore
	tokenStore = ts
	return func() { tokenStore = old }
}

// osKeyring implements TokenStore using github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	return v, err
}

func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }

func (osKeyring) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// MemTokenStore is an in-memory TokenStore.
type MemTokenStore struct{ m map[string]string }

func NewMemTokenStore() *MemTokenStore { return &MemTokenStore{m: map[string]string{}} }

func (s *MemTokenStore) Get(service, key string) (string, error) {
	v, ok := s.m[service+"/"+key]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (s *MemTokenStore) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}

func (s *MemTokenStore) Delete(service, key string) error {
	delete(s.m, service+"/"+key)
	return nil
}

// ClearToken forgets the remembered session token.
func ClearToken() error { return tokenStore.Delete(keyringService, keyringToken) }

// JWTSecret returns the token signing secret: PLM_JWT_SECRET when set,
// otherwise the keyring value, generated and stored on first use.
func JWTSecret() ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		return []byte(v), nil
	}
	v, err := tokenStore.Get(keyringService, keyringSecret)
	if err == nil && v != "" {
		return []byte(v), nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return nil, fmt.Errorf("read secret: %w", err)
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	v = hex.EncodeToString(b)
	if err := tokenStore.Set(keyringService, keyringSecret, v); err != nil {
		return nil, fmt.Errorf("store secret: %w", err)
	}
	return []byte(v), nil
}
