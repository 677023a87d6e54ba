package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/routedata/internal/adapters/content/memory"
	service "github.com/okian/routedata/internal/app"
	"github.com/okian/routedata/internal/config"
	"github.com/okian/routedata/internal/domain/contentapi"
	"github.com/okian/routedata/internal/domain/query"
	"github.com/okian/routedata/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func testConfig() *config.Config {
	cfg := config.New()
	cfg.FixturesPath = "../../fixtures/content.yaml"
	cfg.Routes = map[string]config.Route{
		"index": {Limit: query.Int(2)},
		"tag": {
			Filter: "tags:'%s'",
			Data: map[string]query.Descriptor{
				"tag": {
					Type:       query.Read,
					Resource:   "tags",
					Controller: "tags",
					Options:    query.Options{"slug": "%s", "visibility": "public"},
				},
			},
		},
		"engineering": {Filter: "tag:engineering"},
	}
	return cfg
}

func startService(cfg *config.Config, opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{service.WithConfig(cfg)}, opts...)...)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	So(svc.Start(ctx), ShouldBeNil)
	return svc
}

func slugs(res query.Result) []string {
	posts := res["posts"].([]memory.Post)
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Slug
	}
	return out
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New(service.WithConfig(testConfig()))

		Convey("When fetching before starting", func() {
			_, err := svc.Fetch(context.Background(), "index", query.PathOptions{}, query.Locals{})

			Convey("Then it should refuse", func() {
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Convey("When starting and stopping", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["versions"], ShouldResemble, []string{"v2"})
			So(stats["content"].(map[string]int)["posts"], ShouldEqual, 6)

			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a missing fixture file", t, func() {
		cfg := testConfig()
		cfg.FixturesPath = "does-not-exist.yaml"
		svc := service.New(service.WithConfig(cfg))

		Convey("Then start should fail", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})
}

func TestService_Fetch(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService(testConfig())
		defer svc.Stop()
		ctx := context.Background()

		Convey("When fetching the tag route for a slug", func() {
			res, err := svc.Fetch(ctx, "tag", query.PathOptions{Slug: "news"}, query.Locals{})

			Convey("Then posts are filtered by the slug and the tag is attached", func() {
				So(err, ShouldBeNil)
				So(slugs(res), ShouldResemble, []string{"subscriber-digest", "release-notes", "welcome"})
				data := res["data"].(map[string]any)
				So(data["tag"].(memory.Tag).Name, ShouldEqual, "News")
			})

			Convey("And posts carry the default includes", func() {
				posts := res["posts"].([]memory.Post)
				So(posts[0].PrimaryTag, ShouldNotBeNil)
				So(posts[0].PrimaryAuthor, ShouldNotBeNil)
				So(posts[0].Author, ShouldNotBeNil)
			})
		})

		Convey("When the route has a limit", func() {
			res, err := svc.Fetch(ctx, "index", query.PathOptions{}, query.Locals{})
			So(err, ShouldBeNil)
			So(len(slugs(res)), ShouldEqual, 2)
			So(res["meta"].(memory.Meta).Pagination.Pages, ShouldEqual, 3)

			Convey("Then an explicit path limit wins", func() {
				res, err := svc.Fetch(ctx, "index", query.PathOptions{Page: query.Int(2), Limit: query.Int(4)}, query.Locals{})
				So(err, ShouldBeNil)
				So(len(slugs(res)), ShouldEqual, 1)
				So(res, ShouldNotContainKey, "data")
			})
		})

		Convey("When the slug matches no tag", func() {
			_, err := svc.Fetch(ctx, "tag", query.PathOptions{Slug: "missing"}, query.Locals{})

			Convey("Then the fetch fails with not found", func() {
				So(errors.Is(err, contentapi.ErrNotFound), ShouldBeTrue)
				So(svc.GetStats()["fetchErrors"], ShouldEqual, int64(1))
			})
		})

		Convey("When fetching an unknown route", func() {
			_, err := svc.Fetch(ctx, "nope", query.PathOptions{}, query.Locals{})
			So(errors.Is(err, service.ErrUnknownRoute), ShouldBeTrue)
		})

		Convey("When requesting an unknown api version", func() {
			_, err := svc.Fetch(ctx, "index", query.PathOptions{}, query.Locals{APIVersion: "v9"})
			So(errors.Is(err, contentapi.ErrUnknownVersion), ShouldBeTrue)
		})

		Convey("When running a single query", func() {
			res, err := svc.ProcessQuery(ctx, query.Descriptor{
				Type:       query.Read,
				Resource:   "authors",
				Controller: "authors",
				Options:    query.Options{"slug": "%s"},
			}, "jamie", query.Locals{})
			So(err, ShouldBeNil)
			So(res["authors"].(memory.Author).Name, ShouldEqual, "Jamie Larson")
		})
	})
}

func TestService_MemberScoping(t *testing.T) {
	Convey("Given developer experiments", t, func() {
		member := &query.Member{ID: "m1", Status: "free"}
		body := func(enabled bool) string {
			cfg := testConfig()
			cfg.EnableDeveloperExperiments = enabled
			svc := startService(cfg)
			defer svc.Stop()
			res, err := svc.Fetch(context.Background(), "engineering", query.PathOptions{}, query.Locals{Member: member})
			So(err, ShouldBeNil)
			for _, p := range res["posts"].([]memory.Post) {
				if p.Slug == "scaling-the-api" {
					return p.HTML
				}
			}
			return "missing"
		}

		Convey("Then a member sees members-only content when enabled", func() {
			So(body(true), ShouldEqual, "<p>Caching and fan-out.</p>")
		})

		Convey("Then the member is ignored when disabled", func() {
			So(body(false), ShouldEqual, "")
		})
	})
}

func TestService_InjectedRegistry(t *testing.T) {
	Convey("Given a registry whose posts browse fails", t, func() {
		boom := errors.New("boom")
		reg := contentapi.NewRegistry()
		reg.Register("v2", contentapi.NewSurface().Handle("posts", query.Browse,
			func(context.Context, query.Options) (query.Result, error) { return nil, boom }))

		cfg := testConfig()
		svc := startService(cfg, service.WithRegistry(reg))
		defer svc.Stop()

		Convey("Then the fetch returns the backend error unchanged", func() {
			_, err := svc.Fetch(context.Background(), "index", query.PathOptions{}, query.Locals{})
			So(err, ShouldEqual, boom)
		})

		Convey("Then capabilities come from the injected surface", func() {
			caps, err := svc.Capabilities("")
			So(err, ShouldBeNil)
			So(len(caps), ShouldEqual, 1)

			_, err = svc.Capabilities("v9")
			So(errors.Is(err, contentapi.ErrUnknownVersion), ShouldBeTrue)
		})

		Convey("Then reload is a no-op", func() {
			So(svc.Reload(context.Background()), ShouldBeNil)
		})
	})
}

func TestService_Routes(t *testing.T) {
	Convey("Given configured routes", t, func() {
		svc := service.New(service.WithConfig(testConfig()))

		Convey("Then they are listed by name", func() {
			routes := svc.Routes()
			So(len(routes), ShouldEqual, 3)
			So(routes[0].Name, ShouldEqual, "engineering")
			So(routes[1].Name, ShouldEqual, "index")
			So(*routes[1].Limit, ShouldEqual, 2)
			So(routes[2].Data, ShouldContainKey, "tag")
		})
	})
}

func TestService_Reload(t *testing.T) {
	Convey("Given a memory backed service", t, func() {
		svc := startService(testConfig())
		defer svc.Stop()

		Convey("Then reloading the fixtures succeeds", func() {
			So(svc.Reload(context.Background()), ShouldBeNil)
		})
	})
}
