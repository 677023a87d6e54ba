package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/routedata/internal/config"
)

const testConfig = `
log_level: error
backend: memory
fixtures_path: ../fixtures/content.yaml
routes:
  index:
    limit: 5
  tag:
    filter: tags:'%s'
    data:
      tag:
        type: read
        resource: tags
        controller: tags
        options:
          slug: "%s"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchCommand(t *testing.T) {
	t.Setenv(config.EnvFile, "")
	cfgPath := writeConfig(t, testConfig)

	Convey("Given a memory backed configuration", t, func() {
		Convey("When fetching a tag route with a selector", func() {
			out, err := run("--config", cfgPath, "fetch", "tag", "news", "--select", "$.posts[*].slug")

			Convey("Then only the selected values are printed", func() {
				So(err, ShouldBeNil)
				var slugs []string
				So(json.Unmarshal([]byte(out), &slugs), ShouldBeNil)
				So(slugs, ShouldResemble, []string{"subscriber-digest", "release-notes", "welcome"})
			})
		})

		Convey("When the limit flag is set", func() {
			out, err := run("--config", cfgPath, "fetch", "index", "--limit", "2", "--select", "$.meta.pagination.limit")
			So(err, ShouldBeNil)
			So(strings.TrimSpace(out), ShouldEqual, "[2]")
		})

		Convey("When the route limit applies", func() {
			out, err := run("--config", cfgPath, "fetch", "index", "--select", "$.meta.pagination.limit")
			So(err, ShouldBeNil)
			So(strings.TrimSpace(out), ShouldEqual, "[5]")
		})

		Convey("When fetching without a selector", func() {
			out, err := run("--config", cfgPath, "fetch", "tag", "news", "--pretty")
			So(err, ShouldBeNil)
			var res map[string]any
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
			So(res, ShouldContainKey, "posts")
			So(res, ShouldContainKey, "meta")
			So(res["data"].(map[string]any)["tag"].(map[string]any)["slug"], ShouldEqual, "news")
		})

		Convey("When the route is unknown", func() {
			_, err := run("--config", cfgPath, "fetch", "missing")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "unknown route")
		})

		Convey("When the selector does not parse", func() {
			_, err := run("--config", cfgPath, "fetch", "index", "--select", "$.posts[")
			So(err, ShouldNotBeNil)
		})

		Convey("When no route is named", func() {
			_, err := run("--config", cfgPath, "fetch")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRoutesCommand(t *testing.T) {
	t.Setenv(config.EnvFile, "")
	cfgPath := writeConfig(t, testConfig)

	Convey("Given configured routes", t, func() {
		Convey("When listing them as a table", func() {
			out, err := run("--config", cfgPath, "routes")
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(out), "\n")
			So(lines, ShouldHaveLength, 3)
			So(lines[0], ShouldStartWith, "NAME")
			So(lines[1], ShouldStartWith, "index")
			So(lines[2], ShouldContainSubstring, "tags:'%s'")
		})

		Convey("When listing them as JSON", func() {
			out, err := run("--config", cfgPath, "routes", "--json")
			So(err, ShouldBeNil)
			var res struct {
				Routes []struct {
					Name string `json:"name"`
				} `json:"routes"`
			}
			So(json.Unmarshal([]byte(out), &res), ShouldBeNil)
			So(res.Routes, ShouldHaveLength, 2)
			So(res.Routes[1].Name, ShouldEqual, "tag")
		})
	})
}

func TestTokenCommand(t *testing.T) {
	t.Setenv(config.EnvFile, "")

	Convey("Given a token command", t, func() {
		Convey("When no secret is configured", func() {
			_, err := run("--config", writeConfig(t, testConfig), "token", "m1")
			So(err, ShouldEqual, errNoSecret)
		})

		Convey("When a secret is configured", func() {
			path := writeConfig(t, testConfig+"member_jwt_secret: s3cret\n")
			out, err := run("--config", path, "token", "m1", "--status", "paid")
			So(err, ShouldBeNil)
			So(strings.Count(strings.TrimSpace(out), "."), ShouldEqual, 2)
		})
	})
}

func TestRootCommand(t *testing.T) {
	t.Setenv(config.EnvFile, "")

	Convey("Given the root command", t, func() {
		Convey("When an explicit env file is missing", func() {
			_, err := run("--env-file", filepath.Join(t.TempDir(), "none.env"), "routes")
			So(err, ShouldNotBeNil)
		})

		Convey("When the env file sets the config path", func() {
			// Existing variables are never overridden by the env file.
			So(os.Unsetenv(config.EnvFile), ShouldBeNil)
			envPath := filepath.Join(t.TempDir(), "test.env")
			cfgPath := writeConfig(t, testConfig)
			So(os.WriteFile(envPath, []byte(config.EnvFile+"="+cfgPath+"\n"), 0o600), ShouldBeNil)

			out, err := run("--env-file", envPath, "routes", "--json")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"tag"`)
		})

		Convey("When the configuration is invalid", func() {
			_, err := run("--config", writeConfig(t, "backend: ftp\n"), "routes")
			So(err, ShouldNotBeNil)
		})
	})
}
