package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/routedata/internal/domain/composer"
	"github.com/okian/routedata/internal/domain/contentapi"
	"github.com/okian/routedata/internal/domain/query"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join("testdata", "content.yaml"))
	require.NoError(t, err)
	return s
}

func call(t *testing.T, s *Store, controller string, typ query.Type, opts query.Options) (query.Result, error) {
	t.Helper()
	fn, ok := s.Surface().Lookup(controller, typ)
	require.True(t, ok, "missing capability %s.%s", controller, typ)
	return fn(context.Background(), opts)
}

func slugs(posts []Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Slug
	}
	return out
}

func TestStore_Counts(t *testing.T) {
	s := openStore(t)
	assert.Equal(t, map[string]int{"posts": 4, "pages": 1, "tags": 3, "authors": 2}, s.Counts())
	assert.Len(t, s.Surface().Capabilities(), 10)
}

func TestBrowsePosts_Defaults(t *testing.T) {
	s := openStore(t)
	res, err := call(t, s, ControllerPosts, query.Browse, query.Options{})
	require.NoError(t, err)

	posts := res["posts"].([]Post)
	assert.Equal(t, []string{"members-only", "channels", "welcome"}, slugs(posts))

	meta := res["meta"].(Meta)
	assert.Equal(t, 1, meta.Pagination.Page)
	assert.Equal(t, 15, meta.Pagination.Limit)
	assert.Equal(t, 1, meta.Pagination.Pages)
	assert.Equal(t, 3, meta.Pagination.Total)
	assert.Nil(t, meta.Pagination.Next)
	assert.Nil(t, meta.Pagination.Prev)
}

func TestBrowsePosts_Pagination(t *testing.T) {
	s := openStore(t)

	res, err := call(t, s, ControllerPosts, query.Browse, query.Options{"page": "2", "limit": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"welcome"}, slugs(res["posts"].([]Post)))
	pg := res["meta"].(Meta).Pagination
	assert.Equal(t, 2, pg.Pages)
	assert.Nil(t, pg.Next)
	require.NotNil(t, pg.Prev)
	assert.Equal(t, 1, *pg.Prev)

	res, err = call(t, s, ControllerPosts, query.Browse, query.Options{"page": 9, "limit": 2})
	require.NoError(t, err)
	assert.Empty(t, res["posts"].([]Post))

	res, err = call(t, s, ControllerPosts, query.Browse, query.Options{"limit": "all"})
	require.NoError(t, err)
	assert.Len(t, res["posts"].([]Post), 3)
	assert.Equal(t, "all", res["meta"].(Meta).Pagination.Limit)
}

func TestBrowsePosts_InvalidOptions(t *testing.T) {
	s := openStore(t)
	for name, opts := range map[string]query.Options{
		"zero page":        {"page": 0},
		"text limit":       {"limit": "lots"},
		"unknown filter":   {"filter": "colour:red"},
		"broken filter":    {"filter": "tag"},
		"bad direction":    {"order": "title sideways"},
		"unknown order":    {"order": "colour asc"},
		"unknown format":   {"formats": "mobiledoc"},
		"unterminated set": {"filter": "tag:[go,news"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := call(t, s, ControllerPosts, query.Browse, opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, contentapi.ErrInvalidOption), err.Error())
		})
	}
}

func TestBrowsePosts_Filter(t *testing.T) {
	s := openStore(t)
	cases := map[string][]string{
		"tag:go":                       {"members-only", "channels"},
		"tag:-go":                      {"welcome"},
		"featured:true":                {"welcome"},
		"tag:[go,news]+author:ada":     {"channels", "welcome"},
		"primary_author:brian":         {"members-only", "channels"},
		"slug:welcome,slug:'channels'": {"channels", "welcome"},
	}
	for filter, want := range cases {
		t.Run(filter, func(t *testing.T) {
			res, err := call(t, s, ControllerPosts, query.Browse, query.Options{"filter": filter})
			require.NoError(t, err)
			assert.Equal(t, want, slugs(res["posts"].([]Post)))
		})
	}
}

func TestBrowsePosts_Order(t *testing.T) {
	s := openStore(t)
	res, err := call(t, s, ControllerPosts, query.Browse, query.Options{"order": "title asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"channels", "members-only", "welcome"}, slugs(res["posts"].([]Post)))
}

func TestBrowsePosts_IncludeAndFormats(t *testing.T) {
	s := openStore(t)

	res, err := call(t, s, ControllerPosts, query.Browse, query.Options{"filter": "slug:channels"})
	require.NoError(t, err)
	plain := res["posts"].([]Post)[0]
	assert.Nil(t, plain.Tags)
	assert.Nil(t, plain.PrimaryAuthor)
	assert.Equal(t, "<p>chan</p>", plain.HTML)

	res, err = call(t, s, ControllerPosts, query.Browse, query.Options{
		"filter":  "slug:welcome",
		"include": "tags,authors,author",
		"formats": []string{"plaintext"},
	})
	require.NoError(t, err)
	p := res["posts"].([]Post)[0]
	require.NotNil(t, p.PrimaryTag)
	assert.Equal(t, "news", p.PrimaryTag.Slug)
	require.NotNil(t, p.PrimaryAuthor)
	assert.Equal(t, "ada", p.PrimaryAuthor.Slug)
	assert.Equal(t, p.PrimaryAuthor, p.Author)
	assert.Empty(t, p.HTML)
	assert.Equal(t, "hello", p.Plaintext)
}

func TestBrowsePosts_MemberGating(t *testing.T) {
	s := openStore(t)
	opts := query.Options{"filter": "slug:members-only"}

	res, err := call(t, s, ControllerPosts, query.Browse, opts)
	require.NoError(t, err)
	assert.Empty(t, res["posts"].([]Post)[0].HTML)

	opts["context"] = query.Context{Member: &query.Member{ID: "m1"}}
	res, err = call(t, s, ControllerPosts, query.Browse, opts)
	require.NoError(t, err)
	assert.Equal(t, "<p>secret</p>", res["posts"].([]Post)[0].HTML)
}

func TestReadPost(t *testing.T) {
	s := openStore(t)

	res, err := call(t, s, ControllerPosts, query.Read, query.Options{"slug": "welcome"})
	require.NoError(t, err)
	assert.Equal(t, "p1", res["posts"].(Post).ID)

	res, err = call(t, s, ControllerPosts, query.Read, query.Options{"slug": "WELCOME"})
	require.NoError(t, err)
	assert.Equal(t, "p1", res["posts"].(Post).ID)

	res, err = call(t, s, ControllerPosts, query.Read, query.Options{"id": "p2"})
	require.NoError(t, err)
	assert.Equal(t, "channels", res["posts"].(Post).Slug)

	_, err = call(t, s, ControllerPosts, query.Read, query.Options{"slug": "draft"})
	var nf *contentapi.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "posts", nf.Resource)
	assert.ErrorIs(t, err, contentapi.ErrNotFound)

	_, err = call(t, s, ControllerPosts, query.Read, query.Options{})
	assert.ErrorIs(t, err, contentapi.ErrInvalidOption)

	res, err = call(t, s, ControllerPages, query.Read, query.Options{"slug": "about"})
	require.NoError(t, err)
	assert.True(t, res["pages"].(Post).Page)
}

func TestTagsAndAuthors(t *testing.T) {
	s := openStore(t)

	res, err := call(t, s, ControllerTags, query.Browse, query.Options{"visibility": "public"})
	require.NoError(t, err)
	tags := res["tags"].([]Tag)
	require.Len(t, tags, 2)
	assert.Equal(t, "Go", tags[0].Name)
	assert.Equal(t, "News", tags[1].Name)

	res, err = call(t, s, ControllerTags, query.Browse, query.Options{"limit": "all"})
	require.NoError(t, err)
	assert.Len(t, res["tags"].([]Tag), 3)

	_, err = call(t, s, ControllerTags, query.Read, query.Options{"slug": "hash-internal", "visibility": "public"})
	assert.ErrorIs(t, err, contentapi.ErrNotFound)

	res, err = call(t, s, ControllerUsers, query.Read, query.Options{"slug": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", res["authors"].(Author).Name)
	assert.NotContains(t, res, "users")

	res, err = call(t, s, ControllerUsers, query.Browse, query.Options{})
	require.NoError(t, err)
	assert.Len(t, res["authors"].([]Author), 2)

	res, err = call(t, s, ControllerAuthors, query.Browse, query.Options{"filter": "slug:brian"})
	require.NoError(t, err)
	assert.Len(t, res["authors"].([]Author), 1)
}

func TestUsersAliasThroughComposer(t *testing.T) {
	reg := contentapi.NewRegistry()
	reg.Register("v2", openStore(t).Surface())

	res, err := composer.New(reg).FetchData(context.Background(),
		&query.PathOptions{Slug: "ada"},
		&query.RouterOptions{Data: map[string]query.Descriptor{
			"author":  {Type: query.Read, Resource: "authors", Controller: "users", Options: query.Options{"slug": "%s"}},
			"authors": {Type: query.Browse, Resource: "authors", Controller: "users"},
		}},
		query.Locals{APIVersion: "v2"},
	)
	require.NoError(t, err)

	data := res["data"].(map[string]any)
	require.NotNil(t, data["author"])
	assert.Equal(t, "Ada", data["author"].(Author).Name)
	assert.Len(t, data["authors"].(query.Result)["authors"], 2)
}

func TestStore_CanceledContext(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, c := range s.Surface().Capabilities() {
		fn, _ := s.Surface().Lookup(c.Controller, c.Type)
		_, err := fn(ctx, query.Options{"slug": "welcome"})
		assert.ErrorIs(t, err, context.Canceled, c.String())
	}
}

func TestStore_ReloadKeepsSnapshotOnError(t *testing.T) {
	s := openStore(t)
	require.Error(t, s.Reload(filepath.Join("testdata", "missing.yaml")))
	assert.Equal(t, 4, s.Counts()["posts"])

	require.NoError(t, s.Replace(nil))
	assert.Equal(t, 0, s.Counts()["posts"])
}

func TestFixtures_Validation(t *testing.T) {
	_, err := ParseFixtures([]byte("posts: [\n"))
	require.Error(t, err)

	f, err := ParseFixtures([]byte(`
posts:
  - id: x
    slug: orphan
    tags: [nope]
`))
	require.NoError(t, err)
	_, err = New(f)
	assert.ErrorContains(t, err, `unknown tag "nope"`)

	f, err = ParseFixtures([]byte(`
posts:
  - id: x
    slug: bad-date
    published_at: yesterday
`))
	require.NoError(t, err)
	_, err = New(f)
	assert.ErrorContains(t, err, "published_at")
}

func TestParseFilter(t *testing.T) {
	expr, err := parseFilter("tag:[a, 'b c']+featured:-true,slug:x")
	require.NoError(t, err)
	require.Len(t, expr, 2)
	require.Len(t, expr[0], 2)
	assert.Equal(t, []string{"a", "b c"}, expr[0][0].values)
	assert.True(t, expr[0][1].negate)
	assert.Equal(t, "slug", expr[1][0].key)

	expr, err = parseFilter("  ")
	require.NoError(t, err)
	assert.Nil(t, expr)
}
