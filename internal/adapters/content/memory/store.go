// Package memory serves content API capabilities from an in-process
// fixture set. It implements the subset of browse and read semantics the
// composer relies on: filter, order, pagination, include and formats.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/okian/routedata/internal/domain/contentapi"
	"github.com/okian/routedata/internal/domain/query"
)

// Controllers served by the store.
const (
	ControllerPosts   = "posts"
	ControllerPages   = "pages"
	ControllerTags    = "tags"
	ControllerAuthors = "authors"
	ControllerUsers   = "users"
)

const (
	postOrder   = "published_at desc"
	entityOrder = "name asc"
)

// Store holds one content snapshot and swaps it atomically on reload.
type Store struct {
	mu      sync.RWMutex
	content *content
}

// New indexes f and returns a store serving it.
func New(f *Fixtures) (*Store, error) {
	s := &Store{}
	if err := s.Replace(f); err != nil {
		return nil, err
	}
	return s, nil
}

// Open loads fixtures from path.
func Open(path string) (*Store, error) {
	f, err := LoadFixtures(path)
	if err != nil {
		return nil, err
	}
	return New(f)
}

// Reload re-reads path. The current snapshot stays in place on error.
func (s *Store) Reload(path string) error {
	f, err := LoadFixtures(path)
	if err != nil {
		return err
	}
	return s.Replace(f)
}

// Replace swaps in a new fixture set.
func (s *Store) Replace(f *Fixtures) error {
	if f == nil {
		f = &Fixtures{}
	}
	c, err := f.build()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.content = c
	s.mu.Unlock()
	return nil
}

// Counts reports the number of records per controller.
func (s *Store) Counts() map[string]int {
	c := s.snapshot()
	return map[string]int{
		ControllerPosts:   len(c.posts),
		ControllerPages:   len(c.pages),
		ControllerTags:    len(c.tags),
		ControllerAuthors: len(c.authors),
	}
}

func (s *Store) snapshot() *content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

// Surface registers every capability the store serves. The users
// controller is an alias of authors and answers under the authors key.
func (s *Store) Surface() *contentapi.Surface {
	return contentapi.NewSurface().
		Handle(ControllerPosts, query.Browse, s.browsePosts(ControllerPosts, false)).
		Handle(ControllerPosts, query.Read, s.readPost(ControllerPosts, false)).
		Handle(ControllerPages, query.Browse, s.browsePosts(ControllerPages, true)).
		Handle(ControllerPages, query.Read, s.readPost(ControllerPages, true)).
		Handle(ControllerTags, query.Browse, s.browseTags).
		Handle(ControllerTags, query.Read, s.readTag).
		Handle(ControllerAuthors, query.Browse, s.browseAuthors(ControllerAuthors)).
		Handle(ControllerAuthors, query.Read, s.readAuthor(ControllerAuthors)).
		Handle(ControllerUsers, query.Browse, s.browseAuthors(ControllerAuthors)).
		Handle(ControllerUsers, query.Read, s.readAuthor(ControllerAuthors))
}

func (c *content) published(pages bool) []post {
	src := c.posts
	if pages {
		src = c.pages
	}
	out := make([]post, 0, len(src))
	for _, p := range src {
		if p.Status == statusPublished {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) browsePosts(resource string, pages bool) contentapi.QueryFunc {
	return func(ctx context.Context, opts query.Options) (query.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := parseBrowse(opts, postOrder)
		if err != nil {
			return nil, err
		}
		items, err := apply(s.snapshot().published(pages), p.filter)
		if err != nil {
			return nil, err
		}
		if err := sortItems(items, p.order); err != nil {
			return nil, err
		}
		window, meta := paginate(items, p)
		out := make([]Post, len(window))
		for i, it := range window {
			out[i] = it.render(p.include, p.formats, p.member)
		}
		return query.Result{resource: out, "meta": meta}, nil
	}
}

func (s *Store) readPost(resource string, pages bool) contentapi.QueryFunc {
	return func(ctx context.Context, opts query.Options) (query.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		field, value, err := readKey(opts)
		if err != nil {
			return nil, err
		}
		inc, formats, err := shape(opts)
		if err != nil {
			return nil, err
		}
		for _, it := range s.snapshot().published(pages) {
			if got, _ := it.field(field); len(got) == 1 && strings.EqualFold(got[0], value) {
				return query.Result{resource: it.render(inc, formats, member(opts))}, nil
			}
		}
		return nil, &contentapi.NotFoundError{Resource: resource, Key: value}
	}
}

func (s *Store) browseTags(ctx context.Context, opts query.Options) (query.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return browseEntities(opts, ControllerTags, s.snapshot().tags, func(t Tag) string { return t.Visibility })
}

func (s *Store) readTag(ctx context.Context, opts query.Options) (query.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readEntity(opts, ControllerTags, s.snapshot().tags, func(t Tag) string { return t.Visibility })
}

func (s *Store) browseAuthors(resource string) contentapi.QueryFunc {
	return func(ctx context.Context, opts query.Options) (query.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return browseEntities(opts, resource, s.snapshot().authors, func(a Author) string { return a.Visibility })
	}
}

func (s *Store) readAuthor(resource string) contentapi.QueryFunc {
	return func(ctx context.Context, opts query.Options) (query.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return readEntity(opts, resource, s.snapshot().authors, func(a Author) string { return a.Visibility })
	}
}

func browseEntities[T fielder](opts query.Options, resource string, src []T, visibility func(T) string) (query.Result, error) {
	p, err := parseBrowse(opts, entityOrder)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(src))
	for _, it := range src {
		if visible(opts, visibility(it)) {
			items = append(items, it)
		}
	}
	if items, err = apply(items, p.filter); err != nil {
		return nil, err
	}
	if err := sortItems(items, p.order); err != nil {
		return nil, err
	}
	window, meta := paginate(items, p)
	return query.Result{resource: append([]T{}, window...), "meta": meta}, nil
}

func readEntity[T fielder](opts query.Options, resource string, src []T, visibility func(T) string) (query.Result, error) {
	field, value, err := readKey(opts)
	if err != nil {
		return nil, err
	}
	for _, it := range src {
		got, _ := it.field(field)
		if len(got) == 1 && strings.EqualFold(got[0], value) && visible(opts, visibility(it)) {
			return query.Result{resource: it}, nil
		}
	}
	return nil, &contentapi.NotFoundError{Resource: resource, Key: value}
}
