// Package config resolves client settings from .env files, the environment and flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Base URL defaults per environment.
const (
	DevBaseURL  = "http://localhost:3005/api"
	ProdBaseURL = "https://examtest.top/api"
)

// Config holds client settings.
type Config struct {
	Env         string        `env:"EXAM_ENV,default=development"`
	BaseURL     string        `env:"EXAM_API_BASE_URL"`
	HTTPTimeout time.Duration `env:"EXAM_HTTP_TIMEOUT,default=30s"`
	ConfigDir   string        `env:"EXAM_CONFIG_DIR"`
	Verbose     bool          `env:"EXAM_VERBOSE,default=false"`
}

// Load reads optional .env files (missing files are ignored), then the environment,
// and resolves the base URL once.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	cfg.BaseURL = ResolveBaseURL(cfg.Env, cfg.BaseURL)
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &cfg, nil
}

// ResolveBaseURL picks the explicit override, otherwise the default for env.
func ResolveBaseURL(env, override string) string {
	if v := strings.TrimRight(strings.TrimSpace(override), "/"); v != "" {
		return v
	}
	if IsProduction(env) {
		return ProdBaseURL
	}
	return DevBaseURL
}

// IsProduction reports whether env names a production deployment.
func IsProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return true
	}
	return false
}

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }
