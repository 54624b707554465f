/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
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

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable client configuration persisted to a YAML file
// in the user scope. Environment variables are read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	Server        ServerConfig   `yaml:"server"`
	Canvas        CanvasConfig   `yaml:"canvas"`
	Persist       PersistConfig  `yaml:"persist"`
	Realtime      RealtimeConfig `yaml:"realtime"`
	Session       SessionConfig  `yaml:"session"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// ServerConfig points the client at the backing store.
type ServerConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// The session token is not stored on disk; it lives in the OS keychain.
}

// CanvasConfig holds viewport limits.
type CanvasConfig struct {
	MinScale       float64 `yaml:"min_scale"`
	MaxScale       float64 `yaml:"max_scale"`
	Mobile         bool    `yaml:"mobile"`
	MobileMinScale float64 `yaml:"mobile_min_scale"`
	MobileMaxScale float64 `yaml:"mobile_max_scale"`
	RectCacheMs    int     `yaml:"rect_cache_ms"`
	CullMarginPx   float64 `yaml:"cull_margin_px"`
}

// PersistConfig holds write scheduling windows.
type PersistConfig struct {
	DebounceMs    int `yaml:"debounce_ms"`
	BatchWindowMs int `yaml:"batch_window_ms"`
	BatchParallel int `yaml:"batch_parallel"`
	EchoWindowMs  int `yaml:"echo_window_ms"`
}

// RealtimeConfig holds change-feed subscription timing.
type RealtimeConfig struct {
	ActivationDelayMs int `yaml:"activation_delay_ms"`
	BackoffMinMs      int `yaml:"backoff_min_ms"`
	BackoffMaxMs      int `yaml:"backoff_max_ms"`
}

// SessionConfig holds session cache and expiry timing.
type SessionConfig struct {
	ExpiryCheckSec int `yaml:"expiry_check_sec"`
	CacheTTLHours  int `yaml:"cache_ttl_hours"`

	// OwnersMayEdit lets signed-in non-admins place items and edit their own.
	OwnersMayEdit bool `yaml:"owners_may_edit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Server:        ServerConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Canvas: CanvasConfig{
			MinScale: 0.05, MaxScale: 5,
			MobileMinScale: 0.1, MobileMaxScale: 3,
			RectCacheMs: 16, CullMarginPx: 200,
		},
		Persist:  PersistConfig{DebounceMs: 300, BatchWindowMs: 300, BatchParallel: 8, EchoWindowMs: 1000},
		Realtime: RealtimeConfig{ActivationDelayMs: 1000, BackoffMinMs: 500, BackoffMaxMs: 30000},
		Session:  SessionConfig{ExpiryCheckSec: 300, CacheTTLHours: 24},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvServerURL       = "IC_SERVER_URL"
	EnvServerTimeoutMs = "IC_SERVER_TIMEOUT_MS"
	EnvMobile          = "IC_MOBILE"
	EnvDebounceMs      = "IC_DEBOUNCE_MS"
	EnvBatchWindowMs   = "IC_BATCH_WINDOW_MS"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "IC_LOG_LEVEL"
	EnvLogFormat = "IC_LOG_FORMAT"
	EnvLogSource = "IC_LOG_SOURCE"
	EnvLogFile   = "IC_LOG_FILE"
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "InfiniCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "InfiniCanvas")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "infinicanvas")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "infinicanvas")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides. The cached session token is read from the keyring
// and returned separately.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		return cfg, "", err
	}
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// LoadFrom reads a specific YAML file. A missing file yields defaults; a
// malformed file is reported.
func LoadFrom(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML and persists the token into the OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := SaveTo(path, cfg); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("store token: %w", err)
		}
	}
	return nil
}

// SaveTo writes cfg as YAML to path.
func SaveTo(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.Server.BaseURL != "" {
		dst.Server.BaseURL = strings.TrimRight(src.Server.BaseURL, "/")
	}
	if src.Server.TimeoutMs != 0 {
		dst.Server.TimeoutMs = src.Server.TimeoutMs
	}
	// canvas
	if src.Canvas.MinScale > 0 {
		dst.Canvas.MinScale = src.Canvas.MinScale
	}
	if src.Canvas.MaxScale > 0 {
		dst.Canvas.MaxScale = src.Canvas.MaxScale
	}
	if src.Canvas.MobileMinScale > 0 {
		dst.Canvas.MobileMinScale = src.Canvas.MobileMinScale
	}
	if src.Canvas.MobileMaxScale > 0 {
		dst.Canvas.MobileMaxScale = src.Canvas.MobileMaxScale
	}
	dst.Canvas.Mobile = src.Canvas.Mobile
	if src.Canvas.RectCacheMs > 0 {
		dst.Canvas.RectCacheMs = src.Canvas.RectCacheMs
	}
	if src.Canvas.CullMarginPx > 0 {
		dst.Canvas.CullMarginPx = src.Canvas.CullMarginPx
	}
	// persist
	if src.Persist.DebounceMs > 0 {
		dst.Persist.DebounceMs = src.Persist.DebounceMs
	}
	if src.Persist.BatchWindowMs > 0 {
		dst.Persist.BatchWindowMs = src.Persist.BatchWindowMs
	}
	if src.Persist.BatchParallel > 0 {
		dst.Persist.BatchParallel = src.Persist.BatchParallel
	}
	if src.Persist.EchoWindowMs > 0 {
		dst.Persist.EchoWindowMs = src.Persist.EchoWindowMs
	}
	// realtime
	if src.Realtime.ActivationDelayMs > 0 {
		dst.Realtime.ActivationDelayMs = src.Realtime.ActivationDelayMs
	}
	if src.Realtime.BackoffMinMs > 0 {
		dst.Realtime.BackoffMinMs = src.Realtime.BackoffMinMs
	}
	if src.Realtime.BackoffMaxMs > 0 {
		dst.Realtime.BackoffMaxMs = src.Realtime.BackoffMaxMs
	}
	// session
	if src.Session.ExpiryCheckSec > 0 {
		dst.Session.ExpiryCheckSec = src.Session.ExpiryCheckSec
	}
	if src.Session.CacheTTLHours > 0 {
		dst.Session.CacheTTLHours = src.Session.CacheTTLHours
	}
	dst.Session.OwnersMayEdit = src.Session.OwnersMayEdit
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		cfg.Server.BaseURL = strings.TrimRight(v, "/")
	}
	envInt(EnvServerTimeoutMs, &cfg.Server.TimeoutMs)
	if v := os.Getenv(EnvMobile); v != "" {
		cfg.Canvas.Mobile = truthy(v)
	}
	envInt(EnvDebounceMs, &cfg.Persist.DebounceMs)
	envInt(EnvBatchWindowMs, &cfg.Persist.BatchWindowMs)
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLogSource); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"server.base_url":      EnvServerURL,
		"server.timeout_ms":    EnvServerTimeoutMs,
		"canvas.mobile":        EnvMobile,
		"persist.debounce_ms":  EnvDebounceMs,
		"persist.batch_window": EnvBatchWindowMs,
		"logging.level":        EnvLogLevel,
		"logging.format":       EnvLogFormat,
		"logging.source":       EnvLogSource,
		"logging.file":         EnvLogFile,
	}
	if env, ok := names[key]; ok && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Timeout returns the HTTP timeout, falling back to the default for non-positive values.
func (s ServerConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return ms(Defaults().Server.TimeoutMs)
	}
	return ms(s.TimeoutMs)
}

// ScaleRange returns the clamp range for the current form factor.
func (c CanvasConfig) ScaleRange() (min, max float64) {
	if c.Mobile {
		return c.MobileMinScale, c.MobileMaxScale
	}
	return c.MinScale, c.MaxScale
}

func (c CanvasConfig) RectCacheTTL() time.Duration { return ms(c.RectCacheMs) }

func (p PersistConfig) Debounce() time.Duration    { return ms(p.DebounceMs) }
func (p PersistConfig) BatchWindow() time.Duration { return ms(p.BatchWindowMs) }
func (p PersistConfig) EchoWindow() time.Duration  { return ms(p.EchoWindowMs) }

func (r RealtimeConfig) ActivationDelay() time.Duration { return ms(r.ActivationDelayMs) }
func (r RealtimeConfig) BackoffMin() time.Duration      { return ms(r.BackoffMinMs) }
func (r RealtimeConfig) BackoffMax() time.Duration      { return ms(r.BackoffMaxMs) }

func (s SessionConfig) ExpiryCheck() time.Duration {
	return time.Duration(s.ExpiryCheckSec) * time.Second
}
func (s SessionConfig) CacheTTL() time.Duration { return time.Duration(s.CacheTTLHours) * time.Hour }
