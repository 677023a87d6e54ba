// Package query models the descriptors a route hands to the composer and the
// per-request values that shape them.
package query

import (
	"fmt"
	"strings"

	"github.com/mitchellh/copystructure"
)

// Type selects the downstream operation of a capability.
type Type string

// Supported query types.
const (
	Browse Type = "browse"
	Read   Type = "read"
)

// Valid reports whether t names a known query type.
func (t Type) Valid() bool {
	return t == Browse || t == Read
}

// Default descriptor values.
const (
	DefaultType       = Browse
	DefaultResource   = "posts"
	DefaultController = "posts"

	// SlugPlaceholder is replaced by the current slug in string options.
	SlugPlaceholder = "%s"
)

// Option keys the composer writes itself.
const (
	OptionFilter  = "filter"
	OptionOrder   = "order"
	OptionPage    = "page"
	OptionLimit   = "limit"
	OptionInclude = "include"
	OptionFormats = "formats"
	OptionContext = "context"
)

// Options is the free-form option bag sent to a capability.
type Options map[string]any

// Clone returns a deep copy of o. A nil bag clones to an empty one.
func (o Options) Clone() (Options, error) {
	if o == nil {
		return Options{}, nil
	}
	out, err := copystructure.Copy(map[string]any(o))
	if err != nil {
		return nil, fmt.Errorf("clone options: %w", err)
	}
	return Options(out.(map[string]any)), nil
}

// String returns the string value stored under key, or "".
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Result is the envelope a capability returns: {<resource>: value, meta?: {...}}.
type Result map[string]any

// Clone returns a deep copy of r.
func (r Result) Clone() (Result, error) {
	if r == nil {
		return Result{}, nil
	}
	out, err := copystructure.Copy(map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("clone result: %w", err)
	}
	return Result(out.(map[string]any)), nil
}

// Descriptor describes one downstream query.
type Descriptor struct {
	Type       Type    `koanf:"type" yaml:"type" json:"type"`
	Resource   string  `koanf:"resource" yaml:"resource" json:"resource"`
	Controller string  `koanf:"controller" yaml:"controller" json:"controller"`
	Options    Options `koanf:"options" yaml:"options" json:"options"`
}

// Clone returns a deep copy of d.
func (d Descriptor) Clone() (Descriptor, error) {
	opts, err := d.Options.Clone()
	if err != nil {
		return Descriptor{}, err
	}
	d.Options = opts
	return d, nil
}

// WithDefaults fills every empty field from the default descriptor.
// Explicit fields always win, so applying it twice is a no-op.
func (d Descriptor) WithDefaults() Descriptor {
	if d.Type == "" {
		d.Type = DefaultType
	}
	if d.Resource == "" {
		d.Resource = DefaultResource
	}
	if d.Controller == "" {
		d.Controller = DefaultController
	}
	if d.Options == nil {
		d.Options = Options{}
	}
	return d
}

// Defaults returns a fresh default descriptor.
func Defaults() Descriptor {
	return Descriptor{}.WithDefaults()
}

// DefaultPostQuery returns a fresh descriptor for the primary posts query.
// The deprecated "author" include is kept until consumers move to "authors".
func DefaultPostQuery() Descriptor {
	d := Defaults()
	d.Options[OptionInclude] = "author,authors,tags"
	d.Options[OptionFormats] = "html"
	return d
}

// Substitute replaces every placeholder in string options with slug.
// Non-string values are left untouched.
func (d Descriptor) Substitute(slug string) Descriptor {
	for name, v := range d.Options {
		if s, ok := v.(string); ok {
			d.Options[name] = strings.ReplaceAll(s, SlugPlaceholder, slug)
		}
	}
	return d
}

// Prepare clones q, applies defaults and substitutes slug. The caller's
// descriptor is never modified.
func Prepare(q Descriptor, slug string) (Descriptor, error) {
	d, err := q.Clone()
	if err != nil {
		return Descriptor{}, err
	}
	return d.WithDefaults().Substitute(slug), nil
}
