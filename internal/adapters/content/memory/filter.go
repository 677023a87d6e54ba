package memory

import (
	"fmt"
	"strings"

	"github.com/okian/routedata/internal/domain/contentapi"
)

// filterExpr is a disjunction of conjunctions: a:1+b:2,c:3 is (a AND b) OR c.
type filterExpr [][]clause

// clause matches when any value stored under key equals any of values.
type clause struct {
	key    string
	values []string
	negate bool
}

// fielder exposes the values a filter or order key resolves to.
type fielder interface {
	field(key string) ([]string, bool)
}

// parseFilter parses the subset of the filter language the fixtures support:
// key:value, key:-value, key:[a,b], key:'quoted', joined with + (and) and , (or).
func parseFilter(src string) (filterExpr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}

	var expr filterExpr
	for _, group := range splitTop(src, ',') {
		var conj []clause
		for _, raw := range splitTop(group, '+') {
			c, err := parseClause(raw)
			if err != nil {
				return nil, &contentapi.OptionError{Option: "filter", Value: src, Reason: err.Error()}
			}
			conj = append(conj, c)
		}
		expr = append(expr, conj)
	}
	return expr, nil
}

func parseClause(raw string) (clause, error) {
	key, value, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || key == "" {
		return clause{}, fmt.Errorf("clause %q is not key:value", raw)
	}
	c := clause{key: strings.TrimSpace(key)}
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "-") {
		c.negate = true
		value = value[1:]
	}
	if strings.HasPrefix(value, "[") {
		if !strings.HasSuffix(value, "]") {
			return clause{}, fmt.Errorf("unterminated list in %q", raw)
		}
		for _, v := range strings.Split(value[1:len(value)-1], ",") {
			c.values = append(c.values, unquote(v))
		}
	} else {
		c.values = []string{unquote(value)}
	}
	if len(c.values) == 0 || (len(c.values) == 1 && c.values[0] == "") {
		return clause{}, fmt.Errorf("clause %q has no value", raw)
	}
	return c, nil
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// splitTop splits s on sep outside brackets and quotes.
func splitTop(s string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// match reports whether item satisfies the expression. An empty expression
// matches everything.
func (e filterExpr) match(item fielder) (bool, error) {
	if len(e) == 0 {
		return true, nil
	}
	for _, conj := range e {
		ok, err := matchAll(conj, item)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchAll(conj []clause, item fielder) (bool, error) {
	for _, c := range conj {
		have, known := item.field(c.key)
		if !known {
			return false, &contentapi.OptionError{Option: "filter", Value: c.key, Reason: "unknown field"}
		}
		if anyEqual(have, c.values) == c.negate {
			return false, nil
		}
	}
	return true, nil
}

func anyEqual(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// apply filters items, keeping their order.
func apply[T fielder](items []T, expr filterExpr) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, it := range items {
		ok, err := expr.match(it)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}
	return out, nil
}
