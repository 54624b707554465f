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
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerEnv is the configuration of the `serve` command. It is read from
// IC_* environment variables, optionally seeded from .env files.
type ServerEnv struct {
	Addr           string
	DSN            string // "sqlite:<path>" or a postgres:// URL
	UploadDir      string
	AuthSecret     string
	AdminPassword  string
	AllowedOrigins []string
	MaxUploadBytes int64
	SessionTTL     time.Duration
	// AuthRatePerSec and AuthBurst bound per-IP auth attempts.
	AuthRatePerSec float64
	AuthBurst      int
	// OwnersMayEdit lets non-admin users write rows they own.
	OwnersMayEdit bool
}

const (
	EnvAddr           = "IC_ADDR"
	EnvDSN            = "IC_DB_DSN"
	EnvUploadDir      = "IC_UPLOAD_DIR"
	EnvAuthSecret     = "IC_AUTH_SECRET"
	EnvAdminPassword  = "IC_ADMIN_PASSWORD"
	EnvAllowedOrigins = "IC_ALLOWED_ORIGINS"
	EnvMaxUploadBytes = "IC_MAX_UPLOAD_BYTES"
	EnvSessionTTL     = "IC_SESSION_TTL"
	EnvAuthRate       = "IC_AUTH_RATE"
	EnvAuthBurst      = "IC_AUTH_BURST"
	EnvOwnersMayEdit  = "IC_OWNERS_MAY_EDIT"
)

// ServerDefaults returns the values used when a variable is unset.
func ServerDefaults() ServerEnv {
	return ServerEnv{
		Addr:           ":8080",
		DSN:            "sqlite:canvas.db",
		UploadDir:      "uploads",
		AllowedOrigins: []string{"*"},
		MaxUploadBytes: 50 << 20,
		SessionTTL:     24 * time.Hour,
		AuthRatePerSec: 5,
		AuthBurst:      30,
	}
}

// LoadServer loads the given .env files (missing files are skipped) and
// builds a ServerEnv. Variables already present in the process environment win
// over .env values.
func LoadServer(files ...string) (ServerEnv, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ServerEnv{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	env := ServerDefaults()
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		env.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDSN)); v != "" {
		env.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUploadDir)); v != "" {
		env.UploadDir = v
	}
	env.AuthSecret = os.Getenv(EnvAuthSecret)
	env.AdminPassword = os.Getenv(EnvAdminPassword)
	if v := strings.TrimSpace(os.Getenv(EnvAllowedOrigins)); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		env.AllowedOrigins = origins
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxUploadBytes)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return env, fmt.Errorf("%s: invalid byte count %q", EnvMaxUploadBytes, v)
		}
		env.MaxUploadBytes = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvSessionTTL)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return env, fmt.Errorf("%s: invalid duration %q", EnvSessionTTL, v)
		}
		env.SessionTTL = d
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthRate)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			env.AuthRatePerSec = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthBurst)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			env.AuthBurst = n
		}
	}
	env.OwnersMayEdit = truthy(os.Getenv(EnvOwnersMayEdit))
	if env.AuthSecret == "" {
		return env, fmt.Errorf("%s is required", EnvAuthSecret)
	}
	return env, nil
}
