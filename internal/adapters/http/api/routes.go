package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/routedata/internal/domain/query"
)

// RoutesHandler lists routes and previews their data.
type RoutesHandler struct {
	deps    Dependencies
	members *MemberResolver
	timeout time.Duration
}

// NewRoutesHandler creates a routes handler. A zero timeout leaves fetches
// bounded only by the request context.
func NewRoutesHandler(deps Dependencies, members *MemberResolver, timeout time.Duration) *RoutesHandler {
	if members == nil {
		members = NewMemberResolver("")
	}
	return &RoutesHandler{deps: deps, members: members, timeout: timeout}
}

// HandleList handles GET /routes requests.
func (h *RoutesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": h.deps.Routes()})
}

// HandlePreview handles GET /routes/{name} requests. Query parameters slug,
// page, limit and version shape the fetch; the member comes from the
// request headers.
func (h *RoutesHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/routes/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	path, err := pathOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	member, err := h.members.Resolve(r)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	locals := query.Locals{APIVersion: r.URL.Query().Get("version"), Member: member}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.deps.Fetch(ctx, name, path, locals)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathOptions(r *http.Request) (query.PathOptions, error) {
	q := r.URL.Query()
	path := query.PathOptions{Slug: q.Get("slug")}
	for _, p := range []struct {
		key string
		dst **int
	}{{"page", &path.Page}, {"limit", &path.Limit}} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return path, fmt.Errorf("%w: %s must be a positive integer", ErrBadRequest, p.key)
		}
		*p.dst = query.Int(n)
	}
	return path, nil
}
