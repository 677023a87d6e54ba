package memory

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Fixtures is the on-disk content set.
type Fixtures struct {
	Tags    []TagFixture    `yaml:"tags"`
	Authors []AuthorFixture `yaml:"authors"`
	Posts   []PostFixture   `yaml:"posts"`
	Pages   []PostFixture   `yaml:"pages"`
}

// TagFixture is a tag record.
type TagFixture struct {
	ID          string `yaml:"id"`
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Visibility  string `yaml:"visibility"`
}

// AuthorFixture is an author record.
type AuthorFixture struct {
	ID           string `yaml:"id"`
	Slug         string `yaml:"slug"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
	Bio          string `yaml:"bio"`
	ProfileImage string `yaml:"profile_image"`
	Visibility   string `yaml:"visibility"`
}

// PostFixture is a post or page record. Tags and Authors hold slugs; the
// first of each is the primary one.
type PostFixture struct {
	ID          string   `yaml:"id"`
	Slug        string   `yaml:"slug"`
	Title       string   `yaml:"title"`
	HTML        string   `yaml:"html"`
	Plaintext   string   `yaml:"plaintext"`
	Excerpt     string   `yaml:"excerpt"`
	Featured    bool     `yaml:"featured"`
	Status      string   `yaml:"status"`
	Visibility  string   `yaml:"visibility"`
	PublishedAt string   `yaml:"published_at"`
	Tags        []string `yaml:"tags"`
	Authors     []string `yaml:"authors"`
}

// LoadFixtures reads and parses a YAML fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures parses YAML fixture data.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &f, nil
}

// build resolves references and produces the indexed content set.
func (f *Fixtures) build() (*content, error) {
	c := &content{
		tagsBySlug:    make(map[string]Tag, len(f.Tags)),
		authorsBySlug: make(map[string]Author, len(f.Authors)),
	}

	for _, t := range f.Tags {
		if t.Slug == "" {
			return nil, fmt.Errorf("tag %q has no slug", t.ID)
		}
		tag := Tag{ID: t.ID, Slug: t.Slug, Name: t.Name, Description: t.Description, Visibility: orDefault(t.Visibility, visibilityPublic)}
		c.tags = append(c.tags, tag)
		c.tagsBySlug[tag.Slug] = tag
	}
	for _, a := range f.Authors {
		if a.Slug == "" {
			return nil, fmt.Errorf("author %q has no slug", a.ID)
		}
		author := Author{ID: a.ID, Slug: a.Slug, Name: a.Name, Email: a.Email, Bio: a.Bio, ProfileImage: a.ProfileImage, Visibility: orDefault(a.Visibility, visibilityPublic)}
		c.authors = append(c.authors, author)
		c.authorsBySlug[author.Slug] = author
	}

	var err error
	if c.posts, err = c.buildPosts(f.Posts, false); err != nil {
		return nil, err
	}
	if c.pages, err = c.buildPosts(f.Pages, true); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *content) buildPosts(records []PostFixture, page bool) ([]post, error) {
	out := make([]post, 0, len(records))
	for _, r := range records {
		p := post{Post: Post{
			ID:         r.ID,
			Slug:       r.Slug,
			Title:      r.Title,
			HTML:       r.HTML,
			Plaintext:  r.Plaintext,
			Excerpt:    r.Excerpt,
			Featured:   r.Featured,
			Page:       page,
			Status:     orDefault(r.Status, statusPublished),
			Visibility: orDefault(r.Visibility, visibilityPublic),
		}}
		if r.Slug == "" {
			return nil, fmt.Errorf("post %q has no slug", r.ID)
		}
		if r.PublishedAt != "" {
			at, err := time.Parse(time.RFC3339, r.PublishedAt)
			if err != nil {
				return nil, fmt.Errorf("post %q published_at: %w", r.Slug, err)
			}
			p.PublishedAt = at.UTC()
		}
		for _, slug := range r.Tags {
			tag, ok := c.tagsBySlug[slug]
			if !ok {
				return nil, fmt.Errorf("post %q references unknown tag %q", r.Slug, slug)
			}
			p.tags = append(p.tags, tag)
		}
		for _, slug := range r.Authors {
			author, ok := c.authorsBySlug[slug]
			if !ok {
				return nil, fmt.Errorf("post %q references unknown author %q", r.Slug, slug)
			}
			p.authors = append(p.authors, author)
		}
		out = append(out, p)
	}
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
