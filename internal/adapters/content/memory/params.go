package memory

import (
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/okian/routedata/internal/domain/contentapi"
	"github.com/okian/routedata/internal/domain/query"
)

const (
	defaultPage  = 1
	defaultLimit = 15
	limitAll     = "all"

	optionSlug       = "slug"
	optionID         = "id"
	optionVisibility = "visibility"
)

type set map[string]struct{}

func (s set) has(v string) bool {
	_, ok := s[v]
	return ok
}

// csv parses a comma separated option into a set.
func csv(opts query.Options, key, def string) (set, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		raw = def
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		if list, lerr := cast.ToStringSliceE(raw); lerr == nil {
			s = strings.Join(list, ",")
		} else {
			return nil, &contentapi.OptionError{Option: key, Value: raw, Reason: "not a list"}
		}
	}
	out := set{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out[strings.ToLower(part)] = struct{}{}
		}
	}
	return out, nil
}

type orderTerm struct {
	field string
	desc  bool
}

func parseOrder(opts query.Options, def string) ([]orderTerm, error) {
	raw := opts.String(query.OptionOrder)
	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	var terms []orderTerm
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 0:
			continue
		case 1:
			terms = append(terms, orderTerm{field: fields[0]})
		case 2:
			dir := strings.ToLower(fields[1])
			if dir != "asc" && dir != "desc" {
				return nil, &contentapi.OptionError{Option: query.OptionOrder, Value: raw, Reason: "direction must be asc or desc"}
			}
			terms = append(terms, orderTerm{field: fields[0], desc: dir == "desc"})
		default:
			return nil, &contentapi.OptionError{Option: query.OptionOrder, Value: raw, Reason: "expected field [asc|desc]"}
		}
	}
	return terms, nil
}

// sortItems sorts in place, stable for ties.
func sortItems[T fielder](items []T, terms []orderTerm) error {
	if len(items) == 0 || len(terms) == 0 {
		return nil
	}
	for _, t := range terms {
		if _, ok := items[0].field(t.field); !ok {
			return &contentapi.OptionError{Option: query.OptionOrder, Value: t.field, Reason: "unknown field"}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		for _, t := range terms {
			a, _ := items[i].field(t.field)
			b, _ := items[j].field(t.field)
			av, bv := strings.Join(a, ","), strings.Join(b, ",")
			if av == bv {
				continue
			}
			if t.desc {
				return av > bv
			}
			return av < bv
		}
		return false
	})
	return nil
}

// browseParams is the decoded form of browse options.
type browseParams struct {
	page    int
	limit   int
	all     bool
	filter  filterExpr
	order   []orderTerm
	include set
	formats set
	member  *query.Member
}

func parseBrowse(opts query.Options, defaultOrder string) (browseParams, error) {
	p := browseParams{page: defaultPage, limit: defaultLimit}

	if raw, ok := opts[query.OptionPage]; ok && raw != nil {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 1 {
			return p, &contentapi.OptionError{Option: query.OptionPage, Value: raw, Reason: "must be a positive integer"}
		}
		p.page = n
	}
	if raw, ok := opts[query.OptionLimit]; ok && raw != nil {
		if s, isStr := raw.(string); isStr && strings.EqualFold(s, limitAll) {
			p.all = true
		} else {
			n, err := cast.ToIntE(raw)
			if err != nil || n < 1 {
				return p, &contentapi.OptionError{Option: query.OptionLimit, Value: raw, Reason: "must be a positive integer or all"}
			}
			p.limit = n
		}
	}

	var err error
	if p.filter, err = parseFilter(opts.String(query.OptionFilter)); err != nil {
		return p, err
	}
	if p.order, err = parseOrder(opts, defaultOrder); err != nil {
		return p, err
	}
	if p.include, p.formats, err = shape(opts); err != nil {
		return p, err
	}
	p.member = member(opts)
	return p, nil
}

// shape decodes include and formats.
func shape(opts query.Options) (set, set, error) {
	inc, err := csv(opts, query.OptionInclude, "")
	if err != nil {
		return nil, nil, err
	}
	formats, err := csv(opts, query.OptionFormats, "html")
	if err != nil {
		return nil, nil, err
	}
	for f := range formats {
		if f != "html" && f != "plaintext" {
			return nil, nil, &contentapi.OptionError{Option: query.OptionFormats, Value: f, Reason: "unsupported format"}
		}
	}
	return inc, formats, nil
}

// member extracts the member attached by the composer, if any.
func member(opts query.Options) *query.Member {
	switch c := opts[query.OptionContext].(type) {
	case query.Context:
		return c.Member
	case *query.Context:
		if c != nil {
			return c.Member
		}
	}
	return nil
}

// readKey returns the lookup field and value for a read query.
func readKey(opts query.Options) (string, string, error) {
	if id := opts.String(optionID); id != "" {
		return optionID, id, nil
	}
	if slug := opts.String(optionSlug); slug != "" {
		return optionSlug, slug, nil
	}
	return "", "", &contentapi.OptionError{Option: optionSlug, Value: "", Reason: "read requires slug or id"}
}

// visible applies the visibility option; "all" or unset keeps everything.
func visible(opts query.Options, v string) bool {
	want := opts.String(optionVisibility)
	return want == "" || want == "all" || strings.EqualFold(want, v)
}

// Pagination mirrors the meta block of browse responses.
type Pagination struct {
	Page  int  `json:"page"`
	Limit any  `json:"limit"`
	Pages int  `json:"pages"`
	Total int  `json:"total"`
	Next  *int `json:"next"`
	Prev  *int `json:"prev"`
}

// Meta wraps pagination for browse responses.
type Meta struct {
	Pagination Pagination `json:"pagination"`
}

// paginate slices items to the requested page.
func paginate[T any](items []T, p browseParams) ([]T, Meta) {
	total := len(items)
	pg := Pagination{Page: p.page, Total: total}

	if p.all {
		pg.Limit = limitAll
		pg.Pages = 1
		if p.page > 1 {
			items = items[:0]
		}
	} else {
		pg.Limit = p.limit
		pg.Pages = int(math.Max(1, math.Ceil(float64(total)/float64(p.limit))))
		start := (p.page - 1) * p.limit
		end := start + p.limit
		switch {
		case start >= total:
			items = items[:0]
		case end > total:
			items = items[start:]
		default:
			items = items[start:end]
		}
	}
	if p.page < pg.Pages {
		pg.Next = query.Int(p.page + 1)
	}
	if p.page > 1 {
		pg.Prev = query.Int(p.page - 1)
	}
	return items, Meta{Pagination: pg}
}
