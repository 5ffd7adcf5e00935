/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points the config at a temp dir and stubs the keyring.
func isolate(t *testing.T) (string, *MemTokenStore) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigPath, filepath.Join(dir, "config.yaml"))
	t.Setenv(EnvJWTSecret, "")
	ts := NewMemTokenStore()
	t.Cleanup(SetTokenStore(ts))
	t.Chdir(dir)
	return dir, ts
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, tok, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if tok != "" {
		t.Fatalf("unexpected token %q", tok)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Map.MaxScale != 3 || cfg.Map.MinScale != 0.8 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	t.Setenv(EnvBackendURL, "https://example.test:8443")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Server.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Server.BaseURL = %q, want %q", got, want)
	}
	if name, ok := EnvOverrideFor("server.base_url"); !ok || name != EnvBackendURL {
		t.Fatalf("EnvOverrideFor = %q %v", name, ok)
	}
	if _, ok := EnvOverrideFor("store.path"); ok {
		t.Fatalf("store.path reported as overridden")
	}
}

func TestEnvOverridesTelemetry(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "yes")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
}

func TestDotEnvLoadedFromWorkingDir(t *testing.T) {
	dir, _ := isolate(t)
	t.Setenv(EnvScene, "")
	_ = os.Unsetenv(EnvScene)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PLM_SCENE=plans/block-a.svg\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Map.Scene != "plans/block-a.svg" {
		t.Fatalf("scene = %q", cfg.Map.Scene)
	}
}

func TestSaveLoadRoundTripAndToken(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.Map.Scene = "https://example.test/plan.svg"
	cfg.Map.MaxScale = 5
	cfg.Store.Driver = "postgres"
	cfg.Store.DSN = "postgres://x"
	if err := Save(cfg, "tok-123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "tok-123" {
		t.Fatalf("token %q", tok)
	}
	if got.Map.Scene != cfg.Map.Scene || got.Map.Limits().MaxScale != 5 || got.Store.DSN != "postgres://x" {
		t.Fatalf("round trip: %+v", got)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, tok, _ = Load(); tok != "" {
		t.Fatalf("token not cleared")
	}
}

func TestMigrateVersion1(t *testing.T) {
	dir, _ := isolate(t)
	v1 := "config_version: 1\ngeneral:\n  db_path: /srv/plots.db\n  theme: dark\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(v1), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigVersion != CurrentVersion || cfg.StorePath() != "/srv/plots.db" || cfg.General.Theme != "dark" {
		t.Fatalf("migration: %+v", cfg)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	dir, _ := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("map: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := AppConfig{Logging: LoggingConfig{Level: " DEBUG ", Format: "json", Source: true, File: "/tmp/plm.log"}}
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/plm.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	if dst.Map.ZoomSpeed != Defaults().Map.ZoomSpeed {
		t.Fatalf("zero map values must keep defaults")
	}
}

func TestMapAndServerHelpers(t *testing.T) {
	m := MapConfig{MinScale: 2, MaxScale: 1}
	if l := m.Limits(); l.MinScale != 0.8 || l.MaxScale != 3 {
		t.Fatalf("inverted limits must fall back: %+v", l)
	}
	g := MapConfig{ClickThreshold: 8}.Gesture()
	if g.ClickThreshold != 8 || g.ZoomSpeed != 0.0015 {
		t.Fatalf("gesture: %+v", g)
	}
	b := ServerConfig{LoginBurst: 3, LoginRefillSeconds: 10}.LoginBucket()
	if b.Capacity != 3 || b.RefillInterval != 10*time.Second {
		t.Fatalf("bucket: %+v", b)
	}
}

func TestValidate(t *testing.T) {
	c := Defaults()
	c.Store.Driver = "postgres"
	if err := c.Validate(); err == nil {
		t.Fatalf("postgres without dsn must fail")
	}
	c.Store.Driver = "mysql"
	if err := c.Validate(); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}

func TestJWTSecretGeneratedOnce(t *testing.T) {
	_, ts := isolate(t)
	a, err := JWTSecret()
	if err != nil || len(a) != 64 {
		t.Fatalf("secret: %q %v", a, err)
	}
	b, _ := JWTSecret()
	if string(a) != string(b) {
		t.Fatalf("secret regenerated")
	}
	if v, _ := ts.Get(keyringService, keyringSecret); v != string(a) {
		t.Fatalf("secret not stored in keyring")
	}
	t.Setenv(EnvJWTSecret, "from-env")
	if c, _ := JWTSecret(); string(c) != "from-env" {
		t.Fatalf("env override ignored: %q", c)
	}
}
