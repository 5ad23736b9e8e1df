// Package template persists the selector lists of successful fills so a
// later fill of the same form can skip analysis.
package template

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// ErrNotFound is returned when a template name is unknown.
var ErrNotFound = errors.New("template not found")

// Template is a saved field layout for one form.
type Template struct {
	Name string `json:"name"`
	URL  string `json:"url"`

	// URLPattern is an optional glob matched against the full URL; '*'
	// stops at '/', '**' does not.
	URLPattern string `json:"url_pattern,omitempty"`

	Title     string   `json:"title,omitempty"`
	Category  string   `json:"category,omitempty"`
	Selectors []string `json:"selectors"`
	Labels    []string `json:"labels,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps templates in a single JSON file.
type Store struct {
	path      string
	mu        sync.RWMutex
	version   string
	templates map[string]Template
	now       func() time.Time
}

// DefaultPath returns ~/.clippypour/templates.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".clippypour", "templates.json"), nil
}

// NewStore opens the store at path, creating nothing until the first save.
// If path is empty, DefaultPath is used.
func NewStore(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s := &Store{
		path:      path,
		version:   "1.0",
		templates: make(map[string]Template),
		now:       time.Now,
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load templates from %s: %w", path, err)
	}
	return s, nil
}

type fileFormat struct {
	Version   string              `json:"version"`
	Templates map[string]Template `json:"templates"`
}

func (s *Store) load() error {
	var data fileFormat
	if err := readJSON(s.path, &data); err != nil {
		return fmt.Errorf("failed to decode template file: %w", err)
	}
	if data.Version != "" {
		s.version = data.Version
	}
	if data.Templates != nil {
		s.templates = data.Templates
	}
	return nil
}

// persist writes the file atomically. The caller holds s.mu.
func (s *Store) persist() error {
	return writeJSON(s.path, fileFormat{Version: s.version, Templates: s.templates})
}

// Save stores t under its (slugged) name, replacing an existing template
// with the same name but keeping its creation time. It returns the stored
// template.
func (s *Store) Save(t Template) (Template, error) {
	if len(t.Selectors) == 0 {
		return Template{}, fmt.Errorf("template has no selectors")
	}
	if t.URLPattern != "" {
		if _, err := glob.Compile(t.URLPattern, '/'); err != nil {
			return Template{}, fmt.Errorf("invalid url_pattern %q: %w", t.URLPattern, err)
		}
	}

	t.Name = Slug(t.Name)
	if t.Name == "" {
		t.Name = DefaultName(t.URL, t.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	prev, existed := s.templates[t.Name]
	if existed {
		t.CreatedAt = prev.CreatedAt
	}

	s.templates[t.Name] = t
	if err := s.persist(); err != nil {
		if existed {
			s.templates[t.Name] = prev
		} else {
			delete(s.templates, t.Name)
		}
		return Template{}, err
	}
	return t, nil
}

// Get loads a template by name.
func (s *Store) Get(name string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[Slug(name)]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t, nil
}

// Delete removes a template.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Slug(name)
	prev, ok := s.templates[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.templates, key)
	if err := s.persist(); err != nil {
		s.templates[key] = prev
		return err
	}
	return nil
}

// List returns every template sorted by name.
func (s *Store) List() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Find returns the best template for rawURL, trying in order: an exact URL
// match, a url_pattern glob match, the same host with one path a prefix of
// the other (longest template path wins), and finally the same host alone.
// Other ties go to the first template by name.
func (s *Store) Find(rawURL string) (Template, bool) {
	list := s.List()
	target, err := url.Parse(rawURL)
	if err != nil {
		return Template{}, false
	}

	for _, t := range list {
		if t.URL == rawURL {
			return t, true
		}
	}

	for _, t := range list {
		if t.URLPattern == "" {
			continue
		}
		g, err := glob.Compile(t.URLPattern, '/')
		if err == nil && g.Match(rawURL) {
			return t, true
		}
	}

	best, bestLen := -1, -1
	for i, t := range list {
		u, ok := sameHost(t.URL, target)
		if !ok {
			continue
		}
		if strings.HasPrefix(u.Path, target.Path) || strings.HasPrefix(target.Path, u.Path) {
			if n := len(u.Path); n > bestLen {
				best, bestLen = i, n
			}
		}
	}
	if best >= 0 {
		return list[best], true
	}

	for _, t := range list {
		if _, ok := sameHost(t.URL, target); ok {
			return t, true
		}
	}
	return Template{}, false
}

func sameHost(raw string, target *url.URL) (*url.URL, bool) {
	if raw == "" || target.Host == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Host, target.Host) {
		return nil, false
	}
	return u, true
}

var (
	nonWord       = regexp.MustCompile(`[^\w\s-]`)
	separator     = regexp.MustCompile(`[-\s_]+`)
	urlSeparators = strings.NewReplacer("/", " ", ".", " ", ":", " ")
)

// Slug turns a display name into a template key: lowercase, punctuation
// dropped, runs of spaces, dashes, and underscores collapsed to '-'.
func Slug(name string) string {
	s := nonWord.ReplaceAllString(strings.TrimSpace(name), "")
	s = separator.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// DefaultName derives a template name from the form URL, falling back to the
// page title.
func DefaultName(rawURL, title string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		if name := Slug(urlSeparators.Replace(u.Host + u.Path)); name != "" {
			return name
		}
	}
	if name := Slug(title); name != "" {
		return name
	}
	return "template"
}
