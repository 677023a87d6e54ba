// Package contentapi maps (controller, type) pairs to the query functions a
// content backend exposes, per API version.
package contentapi

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/routedata/internal/domain/query"
)

// QueryFunc executes one query against a backend.
type QueryFunc func(ctx context.Context, opts query.Options) (query.Result, error)

// Capability identifies a query function.
type Capability struct {
	Controller string
	Type       query.Type
}

// String returns "controller.type".
func (c Capability) String() string {
	return c.Controller + "." + string(c.Type)
}

// Middleware decorates a query function. It is applied at lookup time.
type Middleware func(c Capability, next QueryFunc) QueryFunc

// Surface is the set of capabilities one API version offers.
type Surface struct {
	handlers map[Capability]QueryFunc
}

// NewSurface returns an empty surface.
func NewSurface() *Surface {
	return &Surface{handlers: make(map[Capability]QueryFunc)}
}

// Handle registers fn for controller and type, replacing any previous one.
func (s *Surface) Handle(controller string, t query.Type, fn QueryFunc) *Surface {
	s.handlers[Capability{Controller: controller, Type: t}] = fn
	return s
}

// Lookup returns the function serving controller and type.
func (s *Surface) Lookup(controller string, t query.Type) (QueryFunc, bool) {
	fn, ok := s.handlers[Capability{Controller: controller, Type: t}]
	return fn, ok
}

// Capabilities lists registered capabilities sorted by controller then type.
func (s *Surface) Capabilities() []Capability {
	out := make([]Capability, 0, len(s.handlers))
	for c := range s.handlers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Controller != out[j].Controller {
			return out[i].Controller < out[j].Controller
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Registry indexes surfaces by API version.
type Registry struct {
	mu         sync.RWMutex
	surfaces   map[string]*Surface
	middleware []Middleware
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{surfaces: make(map[string]*Surface)}
}

// Register binds surface to version.
func (r *Registry) Register(version string, surface *Surface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surfaces[version] = surface
}

// Use appends middleware applied to every looked up function, outermost first.
func (r *Registry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Surface returns the surface registered for version.
func (r *Registry) Surface(version string) (*Surface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return s, nil
}

// Versions lists registered versions in sorted order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.surfaces))
	for v := range r.surfaces {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves version, controller and type to a decorated query function.
func (r *Registry) Lookup(version, controller string, t query.Type) (QueryFunc, error) {
	s, err := r.Surface(version)
	if err != nil {
		return nil, err
	}
	c := Capability{Controller: controller, Type: t}
	fn, ok := s.Lookup(controller, t)
	if !ok {
		return nil, unsupported(version, c)
	}

	r.mu.RLock()
	mw := r.middleware
	r.mu.RUnlock()
	for i := len(mw) - 1; i >= 0; i-- {
		fn = mw[i](c, fn)
	}
	return fn, nil
}
