// Package static is an offline page driver over parsed HTML. It probes and
// fills the in-memory document, so a fill can be rehearsed against a saved
// page (or any URL fetched once over HTTP) and the result rendered back to
// HTML without a browser.
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/entrhq/clippypour/pkg/browser"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/page"
)

// DefaultFetchTimeout bounds the HTTP fetch done by Open for http(s) URLs.
const DefaultFetchTimeout = 30 * time.Second

type document struct {
	handle      *browser.Handle
	doc         *goquery.Document
	submissions []Submission
}

// Driver implements page.Driver over static documents.
type Driver struct {
	mu     sync.Mutex
	pages  map[string]*document
	client *http.Client
	logger *logging.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithHTTPClient sets the client used to fetch http(s) URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.client = c }
}

// WithLogger sets the driver's logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// NewDriver creates a static driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		pages:  make(map[string]*document),
		client: &http.Client{Timeout: DefaultFetchTimeout},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open loads url: http(s) URLs are fetched, file:// URLs and bare paths are
// read from disk.
func (d *Driver) Open(ctx context.Context, url string) (page.Handle, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return d.fetch(ctx, url)
	}

	path := strings.TrimPrefix(url, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return d.Load(url, f)
}

func (d *Driver) fetch(ctx context.Context, url string) (page.Handle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return d.Load(resp.Request.URL.String(), resp.Body)
}

// Load parses an HTML document read from r and registers it under url.
func (d *Driver) Load(url string, r io.Reader) (page.Handle, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	h := browser.NewHandle(url, squash(doc.Find("title").First().Text()))

	d.mu.Lock()
	d.pages[h.ID()] = &document{handle: h, doc: doc}
	d.mu.Unlock()

	d.logger.Debugf("Loaded %s as page %s", url, h.ID())
	return h, nil
}

func (d *Driver) lookup(h page.Handle) (*document, bool) {
	p, ok := d.pages[h.ID()]
	return p, ok
}

// Probe lists the fillable elements of the page.
func (d *Driver) Probe(ctx context.Context, h page.Handle) ([]page.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.lookup(h)
	if !ok {
		return nil, &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}
	return probe(p.doc), nil
}

// Write sets the value of the element matched by selector in the document.
func (d *Driver) Write(ctx context.Context, h page.Handle, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.lookup(h)
	if !ok {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, page.ErrPageClosed)
	}

	st, sel := state(p.doc, selector)
	plan, err := st.Plan(selector, value)
	if err != nil {
		return err
	}
	apply(p.doc, sel, plan)
	return nil
}

// ReadBack compares the element's current value with want.
func (d *Driver) ReadBack(ctx context.Context, h page.Handle, selector, want string) (page.Readback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.lookup(h)
	if !ok {
		return page.Readback{}, &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}

	st, _ := state(p.doc, selector)
	if !st.Found {
		return page.Readback{}, page.NewWriteError(selector, page.ReasonSelectorNotFound, nil)
	}
	return st.ReadBack(want), nil
}

// HTML renders the current document of h, including every write so far.
func (d *Driver) HTML(h page.Handle) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.lookup(h)
	if !ok {
		return "", &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}
	return p.doc.Html()
}

// Close forgets one page.
func (d *Driver) Close(h page.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pages[h.ID()]; !ok {
		return fmt.Errorf("page %s is not open", h.ID())
	}
	delete(d.pages, h.ID())
	return nil
}

// Shutdown forgets every page.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = make(map[string]*document)
	return nil
}
