/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"plotmap/internal/domain"
	applog "plotmap/internal/log"
	"plotmap/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// schemaVersion tracks the SQLite schema. Bump it together with a new step in runMigrations.
const schemaVersion = 2

// SQLiteStore is a Store backed by an embedded SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path, enables WAL mode
// and brings the schema up to date.
func OpenSQLite(path string) (*SQLiteStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(
		slog.String("path", path),
	)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.Error("create data dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("store ready")
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema so migrations can run
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS plots (
			id         TEXT PRIMARY KEY,
			seq        INTEGER NOT NULL,
			visible_id TEXT,
			title      TEXT NOT NULL DEFAULT '',
			plot_num   INTEGER NOT NULL DEFAULT 0,
			stamp_num  INTEGER NOT NULL DEFAULT 0,
			price      REAL NOT NULL DEFAULT 0,
			length     REAL NOT NULL DEFAULT 0,
			width      REAL NOT NULL DEFAULT 0,
			sqft       REAL NOT NULL DEFAULT 0,
			facing     TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'Available'
		);`,
		`CREATE TABLE IF NOT EXISTS customers (
			id             TEXT PRIMARY KEY,
			plot_id        TEXT NOT NULL REFERENCES plots(id) ON DELETE CASCADE,
			name           TEXT NOT NULL,
			phone          TEXT,
			mediator       TEXT,
			booking_price  REAL NOT NULL DEFAULT 0,
			use_plot_price INTEGER NOT NULL DEFAULT 0,
			closure_date   TEXT,
			installments   TEXT NOT NULL DEFAULT '[]',
			created_at     TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_customers_plot ON customers(plot_id);`,
		`CREATE TABLE IF NOT EXISTS mediators (
			name  TEXT PRIMARY KEY,
			phone TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS users (
			username      TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS status_history (
			id       INTEGER PRIMARY KEY,
			plot_id  TEXT NOT NULL,
			from_st  TEXT NOT NULL,
			to_st    TEXT NOT NULL,
			at       TEXT NOT NULL,
			actor    TEXT
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// newer database; do not downgrade
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_status_history_plot ON status_history(plot_id, at);`,
				`CREATE INDEX IF NOT EXISTS idx_customers_mediator ON customers(mediator);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// CheckIntegrity runs PRAGMA quick_check and reports whether the database is healthy.
func (s *SQLiteStore) CheckIntegrity(ctx context.Context) (bool, error) {
	var chk string
	if err := s.db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil {
		return false, fmt.Errorf("quick_check: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(chk), "ok"), nil
}

// Backup copies the database file into a timestamped file in <dir>/backups.
func (s *SQLiteStore) Backup(ctx context.Context) (string, error) {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(FULL);`); err != nil {
		return "", fmt.Errorf("checkpoint: %w", err)
	}
	bdir := filepath.Join(filepath.Dir(s.path), BackupsDirName)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(s.path), stamp))
	if err := copyFile(s.path, bak); err != nil {
		return "", fmt.Errorf("backup database: %w", err)
	}
	return bak, nil
}

// DB exposes the handle for maintenance commands.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

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

func (s *SQLiteStore) All(ctx context.Context) ([]domain.Plot, error) {
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

func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Plot, error) {
	p, err := scanPlot(s.db.QueryRowContext(ctx, `SELECT `+plotColumns+` FROM plots WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Plot{}, fmt.Errorf("plot %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (s *SQLiteStore) Status(ctx context.Context, id string) (domain.Status, error) {
	p, err := s.Get(ctx, id)
	return p.Status, err
}

func (s *SQLiteStore) SavePlot(ctx context.Context, p domain.Plot) error {
	if err := ValidatePlot(p); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO plots(id, seq, visible_id, title, plot_num, stamp_num, price, length, width, sqft, facing, status)
		VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM plots), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET visible_id=excluded.visible_id, title=excluded.title, plot_num=excluded.plot_num,
			stamp_num=excluded.stamp_num, price=excluded.price, length=excluded.length, width=excluded.width,
			sqft=excluded.sqft, facing=excluded.facing, status=excluded.status`,
		p.ID, nullString(p.VisibleID), p.Title, p.PlotNum, p.StampNum, p.Price, p.Length, p.Width, p.Sqft, p.Facing, p.Status.String())
	if err != nil {
		return fmt.Errorf("save plot %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, st domain.Status, actor string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	var cur string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM plots WHERE id=?`, id).Scan(&cur); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("plot %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("read status: %w", err)
	}
	from, _ := domain.ParseStatus(cur)
	if from == st {
		return tx.Rollback()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE plots SET status=? WHERE id=?`, st.String(), id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update status: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO status_history(plot_id, from_st, to_st, at, actor) VALUES(?,?,?,?,?)`,
		id, from.String(), st.String(), s.now().UTC().Format(time.RFC3339Nano), nullString(actor)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_st, to_st, at, actor FROM status_history WHERE plot_id=? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	var out []domain.StatusChange
	for rows.Next() {
		var from, to, at string
		var actor sql.NullString
		if err := rows.Scan(&from, &to, &at, &actor); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h := domain.StatusChange{PlotID: id, Actor: actor.String}
		h.From, _ = domain.ParseStatus(from)
		h.To, _ = domain.ParseStatus(to)
		h.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveCustomer(ctx context.Context, c *domain.Customer) error {
	var price float64
	if c.PlotID != "" {
		p, err := s.Get(ctx, c.PlotID)
		if err != nil {
			return err
		}
		price = p.Price
	}
	if err := PrepareCustomer(c, price, s.now()); err != nil {
		return err
	}
	inst, err := json.Marshal(c.Installments)
	if err != nil {
		return fmt.Errorf("marshal installments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO customers(id, plot_id, name, phone, mediator, booking_price, use_plot_price, closure_date, installments, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET plot_id=excluded.plot_id, name=excluded.name, phone=excluded.phone,
			mediator=excluded.mediator, booking_price=excluded.booking_price, use_plot_price=excluded.use_plot_price,
			closure_date=excluded.closure_date, installments=excluded.installments`,
		c.ID, c.PlotID, c.Name, nullString(c.Phone), nullString(c.Mediator), c.BookingPrice, c.UsePlotPrice,
		nullString(c.ClosureDate), string(inst), c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save customer: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Customers(ctx context.Context, plotID string) ([]domain.Customer, error) {
	q := `SELECT id, plot_id, name, phone, mediator, booking_price, use_plot_price, closure_date, installments, created_at FROM customers`
	var args []any
	if plotID != AllCustomers {
		q += ` WHERE plot_id=?`
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
		var inst, created string
		if err := rows.Scan(&c.ID, &c.PlotID, &c.Name, &phone, &med, &c.BookingPrice, &c.UsePlotPrice, &closure, &inst, &created); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.Phone, c.Mediator, c.ClosureDate = phone.String, med.String, closure.String
		if err := json.Unmarshal([]byte(inst), &c.Installments); err != nil {
			return nil, fmt.Errorf("customer %s installments: %w", c.ID, err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Mediators(ctx context.Context) ([]domain.Mediator, error) {
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

func (s *SQLiteStore) SaveMediator(ctx context.Context, m domain.Mediator) error {
	if err := ValidateMediator(m); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO mediators(name, phone) VALUES(?,?)
		ON CONFLICT(name) DO UPDATE SET phone=excluded.phone`, strings.TrimSpace(m.Name), nullString(m.Phone))
	if err != nil {
		return fmt.Errorf("save mediator: %w", err)
	}
	return nil
}

func (s *SQLiteStore) User(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT username, password_hash, role FROM users WHERE username=?`, username).
		Scan(&u.Username, &u.PasswordHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return u, fmt.Errorf("read user: %w", err)
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (s *SQLiteStore) SaveUser(ctx context.Context, u domain.User) error {
	if err := ValidateUser(u); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(username, password_hash, role) VALUES(?,?,?)
		ON CONFLICT(username) DO UPDATE SET password_hash=excluded.password_hash, role=excluded.role`,
		u.Username, u.PasswordHash, string(u.Role))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Users(ctx context.Context) ([]domain.User, error) {
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
