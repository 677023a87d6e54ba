// Package service wires configuration, a content backend and the composer
// into the operations the HTTP API and the CLI expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/routedata/internal/adapters/content/memory"
	"github.com/okian/routedata/internal/adapters/content/remote"
	"github.com/okian/routedata/internal/config"
	"github.com/okian/routedata/internal/domain/composer"
	"github.com/okian/routedata/internal/domain/contentapi"
	"github.com/okian/routedata/internal/domain/query"
	"github.com/okian/routedata/pkg/logger"
	"github.com/okian/routedata/pkg/metrics"
)

// Service errors.
var (
	ErrUnknownRoute = errors.New("unknown route")
	ErrNotStarted   = errors.New("service not started")
)

// RouteInfo describes a configured route.
type RouteInfo struct {
	Name   string                      `json:"name"`
	Filter string                      `json:"filter,omitempty"`
	Order  string                      `json:"order,omitempty"`
	Limit  *int                        `json:"limit,omitempty"`
	Data   map[string]query.Descriptor `json:"data,omitempty"`
}

// Service runs route data fetches against the configured backend.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	registry *contentapi.Registry
	composer *composer.Composer
	store    *memory.Store

	started      bool
	instrumented bool

	fetches     atomic.Int64
	fetchErrors atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults to config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithRegistry supplies a prepared registry instead of building a backend
// from the configuration.
func WithRegistry(r *contentapi.Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service. Start must be called before Fetch.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the backend, registers it for every API version and creates
// the composer.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	s.logger.Info(ctx, "starting route data service...",
		logger.String("backend", s.cfg.Backend),
		logger.String("apiVersion", s.cfg.APIVersion),
	)

	if s.registry == nil {
		reg, err := s.buildRegistry(ctx)
		if err != nil {
			return err
		}
		s.registry = reg
	}
	if !s.instrumented {
		s.registry.Use(s.instrument)
		s.instrumented = true
	}

	s.composer = composer.New(s.registry,
		composer.WithDeveloperExperiments(s.cfg.EnableDeveloperExperiments),
		composer.WithCancelOnFailure(s.cfg.CancelOnFailure),
	)

	s.started = true
	s.logger.Info(ctx, "route data service started",
		logger.Strings("versions", s.registry.Versions()),
		logger.Int("routes", len(s.cfg.Routes)),
		logger.Bool("developerExperiments", s.cfg.EnableDeveloperExperiments),
		logger.Bool("cancelOnFailure", s.cfg.CancelOnFailure),
	)
	return nil
}

func (s *Service) buildRegistry(ctx context.Context) (*contentapi.Registry, error) {
	reg := contentapi.NewRegistry()
	versions := s.cfg.APIVersions
	if len(versions) == 0 {
		versions = []string{s.cfg.APIVersion}
	}

	switch s.cfg.Backend {
	case config.BackendMemory:
		store, err := memory.Open(s.cfg.FixturesPath)
		if err != nil {
			return nil, fmt.Errorf("open fixtures: %w", err)
		}
		s.store = store
		for _, v := range versions {
			reg.Register(v, store.Surface())
		}
		s.logger.Info(ctx, "using fixture backend", logger.String("path", s.cfg.FixturesPath))
	case config.BackendRemote:
		client, err := remote.New(s.cfg.ContentAPIURL,
			remote.WithTimeout(time.Duration(s.cfg.RequestTimeoutMS)*time.Millisecond),
			remote.WithKey(s.cfg.ContentAPIKey),
			remote.WithRateLimit(s.cfg.RemoteRateLimit, s.cfg.RemoteRateBurst),
		)
		if err != nil {
			return nil, err
		}
		for _, v := range versions {
			reg.Register(v, client.Surface(v))
		}
		s.logger.Info(ctx, "using remote backend", logger.String("url", s.cfg.ContentAPIURL))
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, s.cfg.Backend)
	}
	return reg, nil
}

// instrument records per-capability metrics and debug logs.
func (s *Service) instrument(c contentapi.Capability, next contentapi.QueryFunc) contentapi.QueryFunc {
	return func(ctx context.Context, opts query.Options) (query.Result, error) {
		start := time.Now()
		metrics.QueryStarted()
		defer metrics.QueryFinished()

		res, err := next(ctx, opts)

		elapsed := time.Since(start)
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		metrics.RecordQuery(c.Controller, string(c.Type), outcome, float64(elapsed.Milliseconds()))
		fields := []logger.Field{
			logger.String("capability", c.String()),
			logger.Duration("elapsed", elapsed),
		}
		if err != nil {
			fields = append(fields, logger.Error(err))
		}
		s.logger.Debug(ctx, "query finished", fields...)
		return res, err
	}
}

// Stop marks the service stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "route data service stopped")
}

func (s *Service) ready() (*composer.Composer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.composer, nil
}

// Fetch runs the data queries of the named route. A route limit fills
// path.Limit when the path does not set one, and an empty API version
// falls back to the configured one.
func (s *Service) Fetch(ctx context.Context, routeName string, path query.PathOptions, locals query.Locals) (query.Result, error) {
	route, ok := s.cfg.Routes[routeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, routeName)
	}
	if path.Limit == nil && route.Limit != nil {
		path.Limit = query.Int(*route.Limit)
	}
	return s.FetchData(ctx, &path, route.RouterOptions(), locals)
}

// FetchData runs an ad hoc route definition.
func (s *Service) FetchData(ctx context.Context, path *query.PathOptions, router *query.RouterOptions, locals query.Locals) (query.Result, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	if locals.APIVersion == "" {
		locals.APIVersion = s.cfg.APIVersion
	}
	queries := 1
	if router != nil {
		queries += len(router.Data)
	}

	fetchID := uuid.NewString()
	log := s.logger.With(logger.String("fetchId", fetchID))
	log.Debug(ctx, "fetch started",
		logger.String("apiVersion", locals.APIVersion),
		logger.Int("queries", queries),
	)

	start := time.Now()
	res, err := c.FetchData(ctx, path, router, locals)
	elapsed := time.Since(start)

	s.fetches.Add(1)
	if err != nil {
		s.fetchErrors.Add(1)
		metrics.RecordFetch(metrics.OutcomeError, float64(elapsed.Milliseconds()), queries)
		log.Warn(ctx, "fetch failed", logger.Duration("elapsed", elapsed), logger.Error(err))
		return nil, err
	}
	metrics.RecordFetch(metrics.OutcomeSuccess, float64(elapsed.Milliseconds()), queries)
	log.Debug(ctx, "fetch finished", logger.Duration("elapsed", elapsed))
	return res, nil
}

// ProcessQuery runs a single descriptor for slug.
func (s *Service) ProcessQuery(ctx context.Context, q query.Descriptor, slug string, locals query.Locals) (query.Result, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	if locals.APIVersion == "" {
		locals.APIVersion = s.cfg.APIVersion
	}
	return c.ProcessQuery(ctx, q, slug, locals)
}

// Routes lists configured routes sorted by name.
func (s *Service) Routes() []RouteInfo {
	out := make([]RouteInfo, 0, len(s.cfg.Routes))
	for name, r := range s.cfg.Routes {
		out = append(out, RouteInfo{Name: name, Filter: r.Filter, Order: r.Order, Limit: r.Limit, Data: r.Data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Capabilities lists what version serves.
func (s *Service) Capabilities(version string) ([]contentapi.Capability, error) {
	s.mu.RLock()
	reg := s.registry
	s.mu.RUnlock()
	if reg == nil {
		return nil, ErrNotStarted
	}
	if version == "" {
		version = s.cfg.APIVersion
	}
	surface, err := reg.Surface(version)
	if err != nil {
		return nil, err
	}
	return surface.Capabilities(), nil
}

// Reload re-reads the fixture file of the memory backend. It is a no-op
// for other backends.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return nil
	}
	if err := store.Reload(s.cfg.FixturesPath); err != nil {
		s.logger.Error(ctx, "fixture reload failed", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "fixtures reloaded", logger.Any("counts", store.Counts()))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"backend":     s.cfg.Backend,
		"apiVersion":  s.cfg.APIVersion,
		"routes":      len(s.cfg.Routes),
		"fetches":     s.fetches.Load(),
		"fetchErrors": s.fetchErrors.Load(),
	}
	if s.registry != nil {
		stats["versions"] = s.registry.Versions()
	}
	if s.store != nil {
		stats["content"] = s.store.Counts()
	}
	return stats
}
