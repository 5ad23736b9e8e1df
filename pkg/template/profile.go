package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrProfileNotFound is returned when a profile name is unknown.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is a saved data string, so a recurring fill does not need the
// data on the clipboard.
type Profile struct {
	// Name is the slugged key; Title keeps the name as given.
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`

	// Data is the "||"-delimited data string.
	Data string `json:"data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileStore keeps profiles in a single JSON file, next to the templates.
type ProfileStore struct {
	path     string
	mu       sync.RWMutex
	version  string
	profiles map[string]Profile
	now      func() time.Time
}

type profileFile struct {
	Version  string             `json:"version"`
	Profiles map[string]Profile `json:"profiles"`
}

// NewProfileStore opens the profile file at path, creating nothing until
// the first save.
func NewProfileStore(path string) (*ProfileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("profile store path is required")
	}

	s := &ProfileStore{
		path:     path,
		version:  "1.0",
		profiles: make(map[string]Profile),
		now:      time.Now,
	}

	var data profileFile
	if err := readJSON(path, &data); err != nil {
		return nil, fmt.Errorf("failed to load profiles from %s: %w", path, err)
	}
	if data.Version != "" {
		s.version = data.Version
	}
	if data.Profiles != nil {
		s.profiles = data.Profiles
	}
	return s, nil
}

func (s *ProfileStore) persist() error {
	return writeJSON(s.path, profileFile{Version: s.version, Profiles: s.profiles})
}

// Save stores data under name, replacing an existing profile with the same
// slug but keeping its creation time.
func (s *ProfileStore) Save(name, data string) (Profile, error) {
	key := Slug(name)
	if key == "" {
		return Profile{}, fmt.Errorf("profile name %q is empty after normalization", name)
	}
	data = strings.TrimSpace(data)
	if data == "" {
		return Profile{}, fmt.Errorf("profile %q has no data", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	p := Profile{
		Name:      key,
		Title:     strings.TrimSpace(name),
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	prev, existed := s.profiles[key]
	if existed {
		p.CreatedAt = prev.CreatedAt
	}

	s.profiles[key] = p
	if err := s.persist(); err != nil {
		if existed {
			s.profiles[key] = prev
		} else {
			delete(s.profiles, key)
		}
		return Profile{}, err
	}
	return p, nil
}

// Get loads a profile by name.
func (s *ProfileStore) Get(name string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[Slug(name)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// Delete removes a profile.
func (s *ProfileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Slug(name)
	prev, ok := s.profiles[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(s.profiles, key)
	if err := s.persist(); err != nil {
		s.profiles[key] = prev
		return err
	}
	return nil
}

// List returns every profile sorted by name.
func (s *ProfileStore) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
