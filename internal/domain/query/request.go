package query

// PathOptions are derived from the matched URL. A nil Page or Limit is
// absent and leaves any default untouched; a non-nil pointer is copied
// even when it points at zero.
type PathOptions struct {
	Slug  string
	Page  *int
	Limit *int
}

// RouterOptions are supplied per route.
type RouterOptions struct {
	Filter string                `koanf:"filter" yaml:"filter" json:"filter,omitempty"`
	Order  string                `koanf:"order" yaml:"order" json:"order,omitempty"`
	Data   map[string]Descriptor `koanf:"data" yaml:"data" json:"data,omitempty"`
}

// Member is the session identity used to scope queries to what the
// current visitor may see.
type Member struct {
	ID     string `json:"id"`
	UUID   string `json:"uuid,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// Context is stored under Options["context"] when member scoping is on.
type Context struct {
	Member *Member `json:"member"`
}

// Locals is request scoped state.
type Locals struct {
	APIVersion string
	Member     *Member
}

// Int returns a pointer to v, for PathOptions literals.
func Int(v int) *int { return &v }
