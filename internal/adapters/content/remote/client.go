// Package remote serves content API capabilities by calling an HTTP content
// API. Browse goes to {base}/{version}/content/{controller}/ and read to
// .../{controller}/slug/{slug}/ or .../{controller}/{id}/.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"github.com/okian/routedata/internal/domain/contentapi"
	"github.com/okian/routedata/internal/domain/query"
)

// DefaultTimeout bounds a single request when no client is supplied.
const DefaultTimeout = 5 * time.Second

// Controllers exposed by the remote surface.
var Controllers = []string{"posts", "pages", "tags", "authors"}

// Aliases maps controllers served through another controller's endpoint.
var Aliases = map[string]string{"users": "authors"}

// maxErrorBody caps how much of an error response is kept as message.
const maxErrorBody = 512

// Client calls a remote content API.
type Client struct {
	base    *url.URL
	key     string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithKey sends key as the key query parameter on every call.
func WithKey(key string) Option {
	return func(c *Client) { c.key = key }
}

// WithRateLimit caps outgoing calls to rps per second. Zero disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("content api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("content api url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Surface returns the capabilities of version, browse and read for every
// controller in Controllers and Aliases.
func (c *Client) Surface(version string) *contentapi.Surface {
	s := contentapi.NewSurface()
	for _, controller := range Controllers {
		s.Handle(controller, query.Browse, c.browse(version, controller))
		s.Handle(controller, query.Read, c.read(version, controller))
	}
	for alias, target := range Aliases {
		s.Handle(alias, query.Browse, c.browse(version, target))
		s.Handle(alias, query.Read, c.read(version, target))
	}
	return s
}

func (c *Client) browse(version, controller string) contentapi.QueryFunc {
	return func(ctx context.Context, opts query.Options) (query.Result, error) {
		return c.get(ctx, controller, c.endpoint(version, controller), opts)
	}
}

func (c *Client) read(version, controller string) contentapi.QueryFunc {
	return func(ctx context.Context, opts query.Options) (query.Result, error) {
		var suffix []string
		switch {
		case opts.String("id") != "":
			suffix = []string{opts.String("id")}
		case opts.String("slug") != "":
			suffix = []string{"slug", opts.String("slug")}
		default:
			return nil, &contentapi.OptionError{Option: "slug", Value: "", Reason: "read requires slug or id"}
		}
		rest := make(query.Options, len(opts))
		for k, v := range opts {
			if k != "id" && k != "slug" {
				rest[k] = v
			}
		}
		res, err := c.get(ctx, controller, c.endpoint(version, controller, suffix...), rest)
		if err != nil {
			return nil, err
		}
		// Reads answer with a one element list; expose the entity itself.
		if list, ok := res[controller].([]any); ok {
			if len(list) == 0 {
				return nil, &contentapi.NotFoundError{Resource: controller, Key: suffix[len(suffix)-1]}
			}
			res[controller] = list[0]
		}
		return res, nil
	}
}

func (c *Client) endpoint(version, controller string, parts ...string) *url.URL {
	segs := append([]string{version, "content", controller}, parts...)
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.base
	prefix := strings.TrimRight(u.EscapedPath(), "/")
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(segs, "/") + "/"
	u.RawPath = prefix + "/" + strings.Join(escaped, "/") + "/"
	return &u
}

func (c *Client) get(ctx context.Context, controller string, u *url.URL, opts query.Options) (query.Result, error) {
	params, err := encode(opts)
	if err != nil {
		return nil, err
	}
	if c.key != "" {
		params.Set("key", c.key)
	}
	u.RawQuery = params.Encode()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content api %s: %w", controller, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &contentapi.APIError{Controller: controller, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}

	var out query.Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("content api %s: decode: %w", controller, err)
	}
	if out == nil {
		out = query.Result{}
	}
	return out, nil
}

// encode turns scalar options into query parameters. Lists are joined with
// commas; nested maps and the member context are not sent.
func encode(opts query.Options) (url.Values, error) {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := url.Values{}
	for _, k := range keys {
		v := opts[k]
		if v == nil || k == query.OptionContext {
			continue
		}
		switch tv := v.(type) {
		case map[string]any:
			continue
		case []any, []string:
			list, err := cast.ToStringSliceE(tv)
			if err != nil {
				return nil, &contentapi.OptionError{Option: k, Value: v, Reason: "list values must be scalars"}
			}
			params.Set(k, strings.Join(list, ","))
		default:
			s, err := cast.ToStringE(tv)
			if err != nil {
				return nil, &contentapi.OptionError{Option: k, Value: v, Reason: "not a scalar"}
			}
			params.Set(k, s)
		}
	}
	return params, nil
}

// errorMessage extracts {"errors":[{"message":...}]} or falls back to the
// raw body prefix.
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return ""
	}
	var envelope struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Errors) > 0 {
		return envelope.Errors[0].Message
	}
	return strings.TrimSpace(string(raw))
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
