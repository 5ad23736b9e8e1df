package browser

import (
	"github.com/google/uuid"
)

// Handle identifies a page opened by a driver.
type Handle struct {
	id    string
	url   string
	title string
}

// NewHandle creates a handle with a fresh id.
func NewHandle(url, title string) *Handle {
	return &Handle{
		id:    uuid.New().String(),
		url:   url,
		title: title,
	}
}

func (h *Handle) ID() string    { return h.id }
func (h *Handle) URL() string   { return h.url }
func (h *Handle) Title() string { return h.title }

// Refreshed returns a copy of h with the same id and an updated url and
// title.
func (h *Handle) Refreshed(url, title string) *Handle {
	return &Handle{id: h.id, url: url, title: title}
}
