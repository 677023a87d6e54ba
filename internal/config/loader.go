package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix = "ROUTEDATA_"
	EnvFile   = "ROUTEDATA_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ROUTEDATA_CONFIG is set
//  3. env (prefix ROUTEDATA_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// ROUTEDATA_API_VERSION -> api_version. Underscores are kept to match
	// the koanf tags, so only flat keys can be set from the environment.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and fills derived defaults.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.APIVersion == "" {
		return fmt.Errorf("%w: api_version must not be empty", ErrInvalidConfig)
	}
	if len(c.APIVersions) == 0 {
		c.APIVersions = []string{c.APIVersion}
	}
	if !slices.Contains(c.APIVersions, c.APIVersion) {
		return fmt.Errorf("%w: api_version %q is not listed in api_versions", ErrInvalidConfig, c.APIVersion)
	}
	if c.RequestTimeoutMS < 0 {
		return fmt.Errorf("%w: request_timeout_ms must not be negative", ErrInvalidConfig)
	}

	if c.RemoteRateLimit < 0 {
		return fmt.Errorf("%w: remote_rate_limit must not be negative", ErrInvalidConfig)
	}
	if c.RemoteRateLimit > 0 && c.RemoteRateBurst < 1 {
		return fmt.Errorf("%w: remote_rate_burst must be at least 1", ErrInvalidConfig)
	}

	switch c.Backend {
	case BackendMemory:
		if c.FixturesPath == "" {
			return fmt.Errorf("%w: fixtures_path is required for the memory backend", ErrInvalidConfig)
		}
	case BackendRemote:
		if c.ContentAPIURL == "" {
			return fmt.Errorf("%w: content_api_url is required for the remote backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	for name, route := range c.Routes {
		for field, d := range route.Data {
			if d.Type != "" && !d.Type.Valid() {
				return fmt.Errorf("%w: route %q data %q: unknown type %q", ErrInvalidConfig, name, field, d.Type)
			}
		}
	}
	return nil
}
