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
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"plotmap/internal/domain"
	applog "plotmap/internal/log"
	"plotmap/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PGStore is a storage.Store on PostgreSQL, shared by several sales seats.
type PGStore struct {
	db *sql.DB
}

// OpenPG connects to dsn, checks the connection and applies pending migrations.
func OpenPG(ctx context.Context, dsn string) (*PGStore, error) {
	l := applog.WithOperation(applog.WithComponent("backend"), "pg_open")
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.Info("postgres store ready")
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an open handle. Migrations are not applied.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) PingContext(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *PGStore) Close() error { return s.db.Close() }

// applyMigrations applies embedded SQL migrations in filename order and records
// each version in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("backend"), "migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
		l.Info("migration applied", slog.String("file", fname))
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

const plotColumns = `id, visible_id, title, plot_num, stamp_num, price, length, width, sqft, facing, status`

type rowScanner interface{ Scan(dest ...any) error }

func scanPlot(r rowScanner) (domain.Plot, error) {
	var p domain.Plot
	var vis sql.NullString
	var st string
	if err := r.Scan(&p.ID, &vis, &p.Title, &p.PlotNum, &p.StampNum, &p.Price, &p.Length, &p.Width, &p.Sqft, &p.Facing, &st); err != nil {
		return p, err
	}
	p.VisibleID = vis.String
	parsed, err := domain.ParseStatus(st)
	if err != nil {
		return p, fmt.Errorf("plot %s: %w", p.ID, err)
	}
	p.Status = parsed
	return p, nil
}

func (s *PGStore) All(ctx context.Context) ([]domain.Plot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+plotColumns+` FROM plots ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query plots: %w", err)
	}
	defer rows.Close()
	var out []domain.Plot
	for rows.Next() {
		p, err := scanPlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plot: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, id string) (domain.Plot, error) {
	p, err := scanPlot(s.db.QueryRowContext(ctx, `SELECT `+plotColumns+` FROM plots WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plot{}, fmt.Errorf("plot %s: %w", id, storage.ErrNotFound)
	}
	return p, err
}

func (s *PGStore) Status(ctx context.Context, id string) (domain.Status, error) {
	p, err := s.Get(ctx, id)
	return p.Status, err
}

func (s *PGStore) SavePlot(ctx context.Context, p domain.Plot) error {
	if err := storage.ValidatePlot(p); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO plots(id, visible_id, title, plot_num, stamp_num, price, length, width, sqft, facing, status)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT(id) DO UPDATE SET visible_id=excluded.visible_id, title=excluded.title, plot_num=excluded.plot_num,
			stamp_num=excluded.stamp_num, price=excluded.price, length=excluded.length, width=excluded.width,
			sqft=excluded.sqft, facing=excluded.facing, status=excluded.status`,
		p.ID, nullString(p.VisibleID), p.Title, p.PlotNum, p.StampNum, p.Price, p.Length, p.Width, p.Sqft, p.Facing, p.Status.String())
	if err != nil {
		return fmt.Errorf("save plot %s: %w", p.ID, err)
	}
	return nil
}

func (s *PGStore) SetStatus(ctx context.Context, id string, st domain.Status, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	var cur string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM plots WHERE id=$1 FOR UPDATE`, id).Scan(&cur); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("plot %s: %w", id, storage.ErrNotFound)
		}
		return fmt.Errorf("read status: %w", err)
	}
	from, _ := domain.ParseStatus(cur)
	if from == st {
		return tx.Rollback()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plots SET status=$1 WHERE id=$2`, st.String(), id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update status: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO status_history(plot_id, from_st, to_st, actor) VALUES($1,$2,$3,$4)`,
		id, from.String(), st.String(), nullString(actor)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record history: %w", err)
	}
	return tx.Commit()
}

func (s *PGStore) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_st, to_st, at, actor FROM status_history WHERE plot_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []domain.StatusChange
	for rows.Next() {
		var from, to string
		var actor sql.NullString
		h := domain.StatusChange{PlotID: id}
		if err := rows.Scan(&from, &to, &h.At, &actor); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.From, _ = domain.ParseStatus(from)
		h.To, _ = domain.ParseStatus(to)
		h.Actor = actor.String
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PGStore) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	p, err := s.Get(ctx, c.PlotID)
	if err != nil && c.PlotID != "" {
		return err
	}
	if err := storage.PrepareCustomer(c, p.Price, time.Now()); err != nil {
		return err
	}
	inst, err := json.Marshal(c.Installments)
	if err != nil {
		return fmt.Errorf("marshal installments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO customers(id, plot_id, name, phone, mediator, booking_price, use_plot_price, closure_date, installments, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT(id) DO UPDATE SET plot_id=excluded.plot_id, name=excluded.name, phone=excluded.phone,
			mediator=excluded.mediator, booking_price=excluded.booking_price, use_plot_price=excluded.use_plot_price,
			closure_date=excluded.closure_date, installments=excluded.installments`,
		c.ID, c.PlotID, c.Name, nullString(c.Phone), nullString(c.Mediator), c.BookingPrice, c.UsePlotPrice,
		nullString(c.ClosureDate), string(inst), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save customer: %w", err)
	}
	return nil
}

func (s *PGStore) Customers(ctx context.Context, plotID string) ([]domain.Customer, error) {
	q := `SELECT id, plot_id, name, phone, mediator, booking_price, use_plot_price, closure_date, installments, created_at FROM customers`
	var args []any
	if plotID != storage.AllCustomers {
		q += ` WHERE plot_id=$1`
		args = append(args, plotID)
	}
	q += ` ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()
	var out []domain.Customer
	for rows.Next() {
		var c domain.Customer
		var phone, med, closure sql.NullString
		var inst []byte
		if err := rows.Scan(&c.ID, &c.PlotID, &c.Name, &phone, &med, &c.BookingPrice, &c.UsePlotPrice, &closure, &inst, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.Phone, c.Mediator, c.ClosureDate = phone.String, med.String, closure.String
		if err := json.Unmarshal(inst, &c.Installments); err != nil {
			return nil, fmt.Errorf("customer %s installments: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) Mediators(ctx context.Context) ([]domain.Mediator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, phone FROM mediators ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query mediators: %w", err)
	}
	defer rows.Close()
	var out []domain.Mediator
	for rows.Next() {
		var m domain.Mediator
		var phone sql.NullString
		if err := rows.Scan(&m.Name, &phone); err != nil {
			return nil, fmt.Errorf("scan mediator: %w", err)
		}
		m.Phone = phone.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) SaveMediator(ctx context.Context, m domain.Mediator) error {
	if err := storage.ValidateMediator(m); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO mediators(name, phone) VALUES($1,$2)
		ON CONFLICT(name) DO UPDATE SET phone=excluded.phone`, strings.TrimSpace(m.Name), nullString(m.Phone))
	if err != nil {
		return fmt.Errorf("save mediator: %w", err)
	}
	return nil
}

func (s *PGStore) User(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT username, password_hash, role FROM users WHERE username=$1`, username).
		Scan(&u.Username, &u.PasswordHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", username, storage.ErrNotFound)
	}
	if err != nil {
		return u, fmt.Errorf("read user: %w", err)
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (s *PGStore) SaveUser(ctx context.Context, u domain.User) error {
	if err := storage.ValidateUser(u); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(username, password_hash, role) VALUES($1,$2,$3)
		ON CONFLICT(username) DO UPDATE SET password_hash=excluded.password_hash, role=excluded.role`,
		u.Username, u.PasswordHash, string(u.Role))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *PGStore) Users(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password_hash, role FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		var u domain.User
		var role string
		if err := rows.Scan(&u.Username, &u.PasswordHash, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = domain.Role(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ storage.Store = (*PGStore)(nil)
