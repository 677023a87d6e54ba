// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/routedata/internal/adapters/http/swagger"
	service "github.com/okian/routedata/internal/app"
	"github.com/okian/routedata/internal/domain/query"
	"github.com/okian/routedata/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Fetch runs the data queries of a configured route.
	Fetch(ctx context.Context, routeName string, path query.PathOptions, locals query.Locals) (query.Result, error)

	// Routes lists configured routes.
	Routes() []RouteInfo

	// Reload refreshes backend content where supported.
	Reload(ctx context.Context) error
}

// RouteInfo mirrors the route listing shape.
type RouteInfo = service.RouteInfo

// Server wires HTTP routes for the preview API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	routesHandler *RoutesHandler
	reloadHandler *ReloadHandler

	logger logger.Logger
}

// Option configures a Server.
type Option func(*serverSettings)

type serverSettings struct {
	memberSecret string
	timeout      time.Duration
	logger       logger.Logger
}

// WithMemberSecret enables bearer token authentication of members.
func WithMemberSecret(secret string) Option {
	return func(s *serverSettings) { s.memberSecret = secret }
}

// WithRequestTimeout bounds each preview fetch. Zero leaves it unbounded.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *serverSettings) { s.timeout = d }
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *serverSettings) { s.logger = l }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	settings := serverSettings{}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.logger == nil {
		settings.logger = logger.Named("http")
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		routesHandler: NewRoutesHandler(deps, NewMemberResolver(settings.memberSecret), settings.timeout),
		reloadHandler: NewReloadHandler(deps),
		logger:        settings.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/reload", MetricsMiddleware(s.reloadHandler.HandleReload, "reload"))
	mux.HandleFunc("/routes", MetricsMiddleware(s.routesHandler.HandleList, "routes"))
	mux.HandleFunc("/routes/", MetricsMiddleware(s.routesHandler.HandlePreview, "route_preview"))
	swagger.Register(mux)
}

// Handler returns a mux with every route registered, wrapped in request
// logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return RequestLogMiddleware(s.logger, mux)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
