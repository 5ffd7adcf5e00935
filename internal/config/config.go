/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"plotmap/internal/auth"
	"plotmap/internal/gesture"
	"plotmap/internal/viewport"
)

// CurrentVersion is the config_version written by Save.
// Version 1 files had no map section and kept the store path under general.
const CurrentVersion = 2

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	DataDir        string `yaml:"data_dir"`
	// LegacyStorePath is the version 1 location of store.path.
	LegacyStorePath string `yaml:"db_path,omitempty"`
}

// MapConfig tunes the floor-plan interaction.
type MapConfig struct {
	Scene          string  `yaml:"scene"` // file path or http(s) URL
	MinScale       float64 `yaml:"min_scale"`
	MaxScale       float64 `yaml:"max_scale"`
	ZoomSpeed      float64 `yaml:"zoom_speed"`
	ClickThreshold float64 `yaml:"click_threshold"`
	FitPadding     float64 `yaml:"fit_padding"`
	KeyPanFraction float64 `yaml:"key_pan_fraction"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BaseURL   string `yaml:"base_url"` // used by desktop seats talking to a server
	RedisAddr string `yaml:"redis_addr"`
	AMQPURL   string `yaml:"amqp_url"`
	Queue     string `yaml:"queue"`
	// Login attempts per client: burst and seconds per refilled attempt.
	LoginBurst         int `yaml:"login_burst"`
	LoginRefillSeconds int `yaml:"login_refill_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the user-editable configuration persisted to a YAML file in the
// user scope. Environment variables are read-only overrides.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Map           MapConfig     `yaml:"map"`
	Store         StoreConfig   `yaml:"store"`
	Server        ServerConfig  `yaml:"server"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	g := gesture.DefaultConfig()
	return AppConfig{
		ConfigVersion: CurrentVersion,
		General:       GeneralConfig{Theme: "system"},
		Map: MapConfig{
			MinScale:       viewport.DefaultLimits.MinScale,
			MaxScale:       viewport.DefaultLimits.MaxScale,
			ZoomSpeed:      g.ZoomSpeed,
			ClickThreshold: g.ClickThreshold,
			FitPadding:     viewport.DefaultFitPadding,
			KeyPanFraction: g.KeyPanFraction,
		},
		Store: StoreConfig{Driver: "sqlite"},
		Server: ServerConfig{
			Addr:               ":8080",
			BaseURL:            "http://localhost:8080",
			LoginBurst:         auth.DefaultLoginBucket.Capacity,
			LoginRefillSeconds: int(auth.DefaultLoginBucket.RefillInterval / time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath     = "PLM_CONFIG"
	EnvDataDir        = "PLM_DATA_DIR"
	EnvTelemetryOptIn = "PLM_TELEMETRY_OPT_IN"
	EnvScene          = "PLM_SCENE"
	EnvStoreDriver    = "PLM_STORE_DRIVER"
	EnvStorePath      = "PLM_STORE_PATH"
	EnvPGDSN          = "PLM_PG_DSN"
	EnvServerAddr     = "PLM_ADDR"
	EnvBackendURL     = "PLM_BACKEND_URL"
	EnvRedisAddr      = "PLM_REDIS_ADDR"
	EnvAMQPURL        = "PLM_AMQP_URL"
	EnvJWTSecret      = "PLM_JWT_SECRET"
	EnvLogLevel       = "PLM_LOG_LEVEL"
	EnvLogFormat      = "PLM_LOG_FORMAT"
	EnvLogSource      = "PLM_LOG_SOURCE"
	EnvLogFile        = "PLM_LOG_FILE"
)

// envKeys maps dotted config keys to their override variables.
var envKeys = map[string]string{
	"general.data_dir":         EnvDataDir,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"map.scene":                EnvScene,
	"store.driver":             EnvStoreDriver,
	"store.path":               EnvStorePath,
	"store.dsn":                EnvPGDSN,
	"server.addr":              EnvServerAddr,
	"server.base_url":          EnvBackendURL,
	"server.redis_addr":        EnvRedisAddr,
	"server.amqp_url":          EnvAMQPURL,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

func appDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Plotmap")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Plotmap")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "plotmap")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path, or PLM_CONFIG when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	base, err := appDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir is where the database, backups and crash reports live.
func (c AppConfig) DataDir() string {
	if c.General.DataDir != "" {
		return c.General.DataDir
	}
	if p, err := ConfigPath(); err == nil {
		return filepath.Join(filepath.Dir(p), "data")
	}
	return "data"
}

// StorePath is the SQLite file, defaulting to plotmap.db in the data dir.
func (c AppConfig) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir(), "plotmap.db")
}

// Limits returns the zoom bounds, falling back to defaults for unusable values.
func (m MapConfig) Limits() viewport.Limits {
	l := viewport.DefaultLimits
	if m.MinScale > 0 && m.MaxScale >= m.MinScale {
		l = viewport.Limits{MinScale: m.MinScale, MaxScale: m.MaxScale}
	}
	return l
}

// Gesture returns the router tuning with the configured overrides.
func (m MapConfig) Gesture() gesture.Config {
	g := gesture.DefaultConfig()
	if m.ZoomSpeed > 0 {
		g.ZoomSpeed = m.ZoomSpeed
	}
	if m.ClickThreshold > 0 {
		g.ClickThreshold = m.ClickThreshold
	}
	if m.KeyPanFraction > 0 {
		g.KeyPanFraction = m.KeyPanFraction
	}
	return g
}

// LoginBucket returns the login rate limit.
func (s ServerConfig) LoginBucket() auth.BucketConfig {
	b := auth.DefaultLoginBucket
	if s.LoginBurst > 0 {
		b.Capacity = s.LoginBurst
	}
	if s.LoginRefillSeconds > 0 {
		b.RefillInterval = time.Duration(s.LoginRefillSeconds) * time.Second
	}
	return b
}

// Load reads .env from the working directory, then the user config file (if
// present), migrates it, applies defaults and merges environment overrides.
// The remembered session token is read from the keyring and returned separately.
func Load() (AppConfig, string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Defaults(), "", fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		migrate(&fileCfg)
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read config: %w", err)
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg.ConfigVersion = CurrentVersion
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// migrate upgrades an older file layout in place.
func migrate(c *AppConfig) {
	if c.ConfigVersion == 0 {
		c.ConfigVersion = 1
	}
	if c.ConfigVersion < 2 {
		if c.Store.Path == "" && c.General.LegacyStorePath != "" {
			c.Store.Path = c.General.LegacyStorePath
		}
		c.General.LegacyStorePath = ""
		c.ConfigVersion = 2
	}
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setString(&dst.General.DataDir, src.General.DataDir)

	setString(&dst.Map.Scene, src.Map.Scene)
	setFloat(&dst.Map.MinScale, src.Map.MinScale)
	setFloat(&dst.Map.MaxScale, src.Map.MaxScale)
	setFloat(&dst.Map.ZoomSpeed, src.Map.ZoomSpeed)
	setFloat(&dst.Map.ClickThreshold, src.Map.ClickThreshold)
	setFloat(&dst.Map.FitPadding, src.Map.FitPadding)
	setFloat(&dst.Map.KeyPanFraction, src.Map.KeyPanFraction)

	if d := strings.ToLower(strings.TrimSpace(src.Store.Driver)); d != "" {
		dst.Store.Driver = d
	}
	setString(&dst.Store.Path, src.Store.Path)
	setString(&dst.Store.DSN, src.Store.DSN)

	setString(&dst.Server.Addr, src.Server.Addr)
	setString(&dst.Server.BaseURL, src.Server.BaseURL)
	setString(&dst.Server.RedisAddr, src.Server.RedisAddr)
	setString(&dst.Server.AMQPURL, src.Server.AMQPURL)
	setString(&dst.Server.Queue, src.Server.Queue)
	if src.Server.LoginBurst > 0 {
		dst.Server.LoginBurst = src.Server.LoginBurst
	}
	if src.Server.LoginRefillSeconds > 0 {
		dst.Server.LoginRefillSeconds = src.Server.LoginRefillSeconds
	}

	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	setString(&dst.Logging.File, src.Logging.File)
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	get := func(k string) string { return strings.TrimSpace(os.Getenv(k)) }
	if v := get(EnvDataDir); v != "" {
		cfg.General.DataDir = v
	}
	if v := get(EnvTelemetryOptIn); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := get(EnvScene); v != "" {
		cfg.Map.Scene = v
	}
	if v := get(EnvStoreDriver); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := get(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
	if v := get(EnvPGDSN); v != "" {
		cfg.Store.DSN = v
	}
	if v := get(EnvServerAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := get(EnvBackendURL); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := get(EnvRedisAddr); v != "" {
		cfg.Server.RedisAddr = v
	}
	if v := get(EnvAMQPURL); v != "" {
		cfg.Server.AMQPURL = v
	}
	if v := get(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := get(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := get(EnvLogSource); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := get(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Validate reports settings that cannot work together.
func (c AppConfig) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.driver postgres needs store.dsn")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Map.MinScale > c.Map.MaxScale {
		return fmt.Errorf("map.min_scale %s exceeds max_scale %s",
			strconv.FormatFloat(c.Map.MinScale, 'g', -1, 64), strconv.FormatFloat(c.Map.MaxScale, 'g', -1, 64))
	}
	return nil
}
