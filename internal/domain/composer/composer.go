// Package composer builds the queries a route needs, runs them
// concurrently and merges their results into one response.
package composer

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/routedata/internal/domain/contentapi"
	"github.com/okian/routedata/internal/domain/query"
)

// PrimaryName is the key of the primary posts query.
const PrimaryName = "posts"

// DataField is the response field holding auxiliary results.
const DataField = "data"

// Resolver finds the query function for a version, controller and type.
type Resolver interface {
	Lookup(version, controller string, t query.Type) (contentapi.QueryFunc, error)
}

// Composer turns route configuration into downstream queries.
type Composer struct {
	resolver             Resolver
	developerExperiments bool
	cancelOnFailure      bool
}

// New constructs a Composer over resolver.
func New(resolver Resolver, opts ...Option) *Composer {
	c := &Composer{resolver: resolver}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call is a prepared query ready for dispatch.
type call struct {
	name string
	desc query.Descriptor
	fn   contentapi.QueryFunc
}

// ProcessQuery prepares q for slug and locals and runs it. The result is
// returned as the backend produced it; backend errors are not wrapped.
func (c *Composer) ProcessQuery(ctx context.Context, q query.Descriptor, slug string, locals query.Locals) (query.Result, error) {
	cl, err := c.prepare("", q, slug, locals)
	if err != nil {
		return nil, err
	}
	return cl.fn(ctx, cl.desc.Options)
}

// FetchData runs the primary posts query plus every query in router.Data
// concurrently and merges the results. The first failing query fails the
// whole fetch with its own error.
func (c *Composer) FetchData(ctx context.Context, path *query.PathOptions, router *query.RouterOptions, locals query.Locals) (query.Result, error) {
	if path == nil {
		path = &query.PathOptions{}
	}
	if router == nil {
		router = &query.RouterOptions{}
	}

	// Everything is resolved before anything is dispatched.
	calls := make([]call, 0, 1+len(router.Data))
	primary, err := c.prepare(PrimaryName, PostQuery(path, router), path.Slug, locals)
	if err != nil {
		return nil, err
	}
	calls = append(calls, primary)

	names := make([]string, 0, len(router.Data))
	for name := range router.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cl, err := c.prepare(name, router.Data[name], path.Slug, locals)
		if err != nil {
			return nil, err
		}
		calls = append(calls, cl)
	}

	results, err := c.gather(ctx, calls)
	if err != nil {
		return nil, err
	}
	return merge(calls, results)
}

// PostQuery builds the primary posts descriptor for a request.
func PostQuery(path *query.PathOptions, router *query.RouterOptions) query.Descriptor {
	q := query.DefaultPostQuery()
	if router != nil {
		if router.Filter != "" {
			q.Options[query.OptionFilter] = router.Filter
		}
		if router.Order != "" {
			q.Options[query.OptionOrder] = router.Order
		}
	}
	if path != nil {
		if path.Page != nil {
			q.Options[query.OptionPage] = *path.Page
		}
		if path.Limit != nil {
			q.Options[query.OptionLimit] = *path.Limit
		}
	}
	return q
}

func (c *Composer) prepare(name string, q query.Descriptor, slug string, locals query.Locals) (call, error) {
	d, err := query.Prepare(q, slug)
	if err != nil {
		return call{}, err
	}
	if c.developerExperiments {
		d.Options[query.OptionContext] = query.Context{Member: locals.Member}
	}
	fn, err := c.resolver.Lookup(locals.APIVersion, d.Controller, d.Type)
	if err != nil {
		return call{}, err
	}
	return call{name: name, desc: d, fn: fn}, nil
}

type outcome struct {
	index  int
	result query.Result
	err    error
}

// gather dispatches every call at once and waits for all of them, or for
// the first failure. The channel is buffered so late finishers never block.
func (c *Composer) gather(ctx context.Context, calls []call) ([]query.Result, error) {
	dispatchCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.cancelOnFailure {
		dispatchCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome, len(calls))
	for i, cl := range calls {
		go func(i int, cl call) {
			defer func() {
				if r := recover(); r != nil {
					done <- outcome{index: i, err: fmt.Errorf("query %s (%s.%s) panicked: %v", cl.name, cl.desc.Controller, cl.desc.Type, r)}
				}
			}()
			res, err := cl.fn(dispatchCtx, cl.desc.Options)
			done <- outcome{index: i, result: res, err: err}
		}(i, cl)
	}

	results := make([]query.Result, len(calls))
	for range calls {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case o := <-done:
			if o.err != nil {
				return nil, o.err
			}
			results[o.index] = o.result
		}
	}
	return results, nil
}

// merge clones the primary result and attaches auxiliary results under
// "data". Browse results are stored whole, read results are unwrapped to
// their resource field.
func merge(calls []call, results []query.Result) (query.Result, error) {
	response, err := results[0].Clone()
	if err != nil {
		return nil, err
	}
	if len(calls) == 1 {
		return response, nil
	}

	data := make(map[string]any, len(calls)-1)
	for i, cl := range calls[1:] {
		res := results[i+1]
		if cl.desc.Type == query.Browse {
			data[cl.name] = res
			continue
		}
		data[cl.name] = res[cl.desc.Resource]
	}
	response[DataField] = data
	return response, nil
}
