// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"github.com/okian/routedata/internal/domain/query"
)

// Backends that can serve content queries.
const (
	BackendMemory = "memory"
	BackendRemote = "remote"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// APIVersion is the content API version used when a request names none.
	APIVersion string `koanf:"api_version"`

	// APIVersions lists every version the registry serves. Defaults to APIVersion.
	APIVersions []string `koanf:"api_versions"`

	// EnableDeveloperExperiments scopes queries to the requesting member.
	EnableDeveloperExperiments bool `koanf:"enable_developer_experiments"`

	// CancelOnFailure cancels in-flight sibling queries once one fails.
	CancelOnFailure bool `koanf:"cancel_on_failure"`

	// Backend selects the content source: memory or remote.
	Backend string `koanf:"backend"`

	// FixturesPath is the YAML fixture file for the memory backend.
	FixturesPath string `koanf:"fixtures_path"`

	// ContentAPIURL is the base URL of the remote content API.
	ContentAPIURL string `koanf:"content_api_url"`

	// ContentAPIKey is sent as the key query parameter to the remote API.
	ContentAPIKey string `koanf:"content_api_key"`

	// RemoteRateLimit caps remote calls per second. Zero disables the limit.
	RemoteRateLimit float64 `koanf:"remote_rate_limit"`

	// RemoteRateBurst is the limiter burst size.
	RemoteRateBurst int `koanf:"remote_rate_burst"`

	// MemberJWTSecret verifies member bearer tokens on the preview endpoint.
	// Empty disables token authentication.
	MemberJWTSecret string `koanf:"member_jwt_secret"`

	// RequestTimeoutMS bounds a single remote call and a preview request.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`

	// Routes maps route names to the data they need.
	Routes map[string]Route `koanf:"routes"`
}

// Route is the configured data requirement of one route.
type Route struct {
	Filter string                      `koanf:"filter"`
	Order  string                      `koanf:"order"`
	Limit  *int                        `koanf:"limit"`
	Data   map[string]query.Descriptor `koanf:"data"`
}

// RouterOptions converts the route into composer input.
func (r Route) RouterOptions() *query.RouterOptions {
	return &query.RouterOptions{Filter: r.Filter, Order: r.Order, Data: r.Data}
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		Addr:             ":9080",
		APIVersion:       "v2",
		Backend:          BackendMemory,
		FixturesPath:     "fixtures/content.yaml",
		RequestTimeoutMS: 5000,
		RemoteRateBurst:  1,
	}
}
