package memory

import (
	"strconv"
	"time"

	"github.com/okian/routedata/internal/domain/query"
)

const (
	statusPublished   = "published"
	visibilityPublic  = "public"
	visibilityMembers = "members"
	visibilityPaid    = "paid"
	memberStatusPaid  = "paid"

	// sortableTime orders lexicographically for UTC times.
	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

// Tag is the public shape of a tag.
type Tag struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility"`
}

func (t Tag) field(key string) ([]string, bool) {
	switch key {
	case "id":
		return []string{t.ID}, true
	case "slug":
		return []string{t.Slug}, true
	case "name":
		return []string{t.Name}, true
	case "visibility":
		return []string{t.Visibility}, true
	}
	return nil, false
}

// Author is the public shape of an author.
type Author struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	Bio          string `json:"bio,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
	Visibility   string `json:"visibility"`
}

func (a Author) field(key string) ([]string, bool) {
	switch key {
	case "id":
		return []string{a.ID}, true
	case "slug":
		return []string{a.Slug}, true
	case "name":
		return []string{a.Name}, true
	case "email":
		return []string{a.Email}, true
	case "visibility":
		return []string{a.Visibility}, true
	}
	return nil, false
}

// Post is the public shape of a post or page. Relations are only set when
// requested through the include option.
type Post struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	HTML          string    `json:"html,omitempty"`
	Plaintext     string    `json:"plaintext,omitempty"`
	Excerpt       string    `json:"excerpt,omitempty"`
	Featured      bool      `json:"featured"`
	Page          bool      `json:"page"`
	Status        string    `json:"status"`
	Visibility    string    `json:"visibility"`
	PublishedAt   time.Time `json:"published_at"`
	Tags          []Tag     `json:"tags,omitempty"`
	Authors       []Author  `json:"authors,omitempty"`
	PrimaryTag    *Tag      `json:"primary_tag,omitempty"`
	PrimaryAuthor *Author   `json:"primary_author,omitempty"`
	// Author mirrors PrimaryAuthor for consumers of the deprecated include.
	Author *Author `json:"author,omitempty"`
}

// post is the stored form of a Post with resolved relations.
type post struct {
	Post
	tags    []Tag
	authors []Author
}

func (p post) field(key string) ([]string, bool) {
	switch key {
	case "id":
		return []string{p.ID}, true
	case "slug":
		return []string{p.Slug}, true
	case "title":
		return []string{p.Title}, true
	case "status":
		return []string{p.Status}, true
	case "visibility":
		return []string{p.Visibility}, true
	case "featured":
		return []string{strconv.FormatBool(p.Featured)}, true
	case "page":
		return []string{strconv.FormatBool(p.Page)}, true
	case "published_at":
		return []string{p.PublishedAt.UTC().Format(sortableTime)}, true
	case "tag", "tags":
		return tagSlugs(p.tags), true
	case "primary_tag":
		return tagSlugs(first(p.tags)), true
	case "author", "authors":
		return authorSlugs(p.authors), true
	case "primary_author":
		return authorSlugs(first(p.authors)), true
	}
	return nil, false
}

// render projects the stored post onto the requested shape.
func (p post) render(inc set, formats set, member *query.Member) Post {
	out := p.Post
	if inc.has("tags") && len(p.tags) > 0 {
		out.Tags = append([]Tag(nil), p.tags...)
		primary := p.tags[0]
		out.PrimaryTag = &primary
	}
	if inc.has("authors") && len(p.authors) > 0 {
		out.Authors = append([]Author(nil), p.authors...)
		primary := p.authors[0]
		out.PrimaryAuthor = &primary
	}
	if inc.has("author") && len(p.authors) > 0 {
		primary := p.authors[0]
		out.Author = &primary
	}
	if !formats.has("html") {
		out.HTML = ""
	}
	if !formats.has("plaintext") {
		out.Plaintext = ""
	}
	if !canAccess(p.Visibility, member) {
		out.HTML = ""
		out.Plaintext = ""
	}
	return out
}

// canAccess gates post bodies by visibility.
func canAccess(visibility string, member *query.Member) bool {
	switch visibility {
	case visibilityPublic, "":
		return true
	case visibilityMembers:
		return member != nil
	case visibilityPaid:
		return member != nil && member.Status == memberStatusPaid
	}
	return false
}

func first[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	return items[:1]
}

func tagSlugs(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Slug
	}
	return out
}

func authorSlugs(authors []Author) []string {
	out := make([]string, len(authors))
	for i, a := range authors {
		out[i] = a.Slug
	}
	return out
}

// content is one immutable, indexed snapshot of the fixtures.
type content struct {
	tags          []Tag
	authors       []Author
	posts         []post
	pages         []post
	tagsBySlug    map[string]Tag
	authorsBySlug map[string]Author
}
