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
	"errors"
	"fmt"
	"log/slog"

	"plotmap/internal/auth"
	applog "plotmap/internal/log"
	"plotmap/internal/storage"
)

// RunConfig wires a server process. DSN selects PostgreSQL; without it the
// SQLite file at SQLitePath is served.
type RunConfig struct {
	Addr       string
	DSN        string
	SQLitePath string
	RedisAddr  string
	AMQPURL    string
	Queue      string
	Secret     []byte
	Login      auth.BucketConfig
}

// Run opens the store and its collaborators and serves until ctx is done.
func Run(ctx context.Context, cfg RunConfig) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "run")
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	var st storage.Store
	switch {
	case cfg.DSN != "":
		pg, err := OpenPG(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		st = pg
	case cfg.SQLitePath != "":
		lite, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		st = lite
	default:
		return errors.New("backend: no store configured")
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.Warn("store close", slog.Any("err", err))
		}
	}()

	var limiter auth.Limiter = auth.NewLocalLimiter(cfg.Login)
	if cfg.RedisAddr != "" {
		rdb := NewRedisClient(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		limiter = auth.FallbackLimiter{Primary: NewRedisLimiter(rdb, "", cfg.Login, 0), Secondary: limiter}
		l.Info("login limiter uses redis", slog.String("addr", cfg.RedisAddr))
	}

	var events Publisher = NopPublisher{}
	if cfg.AMQPURL != "" {
		pub := NewAMQPPublisher(cfg.AMQPURL, cfg.Queue)
		defer func() { _ = pub.Close() }()
		events = pub
	}

	svc, err := auth.NewService(st, auth.Options{Secret: cfg.Secret, Limiter: limiter})
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	srv, err := NewServer(Options{Store: st, Auth: svc, Events: events, Logger: l})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, cfg.Addr)
}
