// Package rod is a Chrome DevTools page driver built on go-rod. It either
// launches a local headless Chrome or connects to a remote one, which makes
// it the driver of choice when Chrome runs in a sidecar container.
package rod

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/entrhq/clippypour/pkg/browser"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/page"
)

// DefaultTimeout bounds navigation and each script evaluation.
const DefaultTimeout = 30 * time.Second

// Options configures the driver.
type Options struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless applies to locally launched Chrome only.
	Headless bool

	Timeout time.Duration

	Logger *logging.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
}

type tab struct {
	handle *browser.Handle
	page   *rod.Page
}

// Driver implements page.Driver over the Chrome DevTools Protocol.
type Driver struct {
	mu      sync.RWMutex
	opts    Options
	browser *rod.Browser
	lnch    *launcher.Launcher
	tabs    map[string]*tab
}

// NewDriver launches Chrome (or connects to opts.RemoteURL).
func NewDriver(opts Options) (*Driver, error) {
	opts.defaults()
	log := opts.Logger

	d := &Driver{opts: opts, tabs: make(map[string]*tab)}

	wsURL := opts.RemoteURL
	if wsURL != "" {
		log.Infof("Connecting to remote Chrome at %s", wsURL)
	} else {
		l := launcher.New().Headless(opts.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		d.lnch = l
		log.Infof("Launched local Chrome at %s", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if d.lnch != nil {
			d.lnch.Kill()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	d.browser = b
	return d, nil
}

// Open creates a tab, navigates it to url and waits for the load event.
func (d *Driver) Open(ctx context.Context, url string) (page.Handle, error) {
	p, err := d.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	if err := p.Context(navCtx).Navigate(url); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		d.opts.Logger.Warnf("Wait for load of %s timed out: %v", url, err)
	}

	title, current := "", url
	if info, err := p.Info(); err == nil {
		title, current = info.Title, info.URL
	}
	h := browser.NewHandle(current, title)

	d.mu.Lock()
	d.tabs[h.ID()] = &tab{handle: h, page: p}
	d.mu.Unlock()

	d.opts.Logger.Infof("Opened %s as page %s", url, h.ID())
	return h, nil
}

func (d *Driver) lookup(h page.Handle) (*tab, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tabs[h.ID()]
	return t, ok
}

// eval runs script with one argument and returns its string result.
func (d *Driver) eval(ctx context.Context, p *rod.Page, script string, arg interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	opts := rod.Eval(script)
	if arg != nil {
		opts = rod.Eval(script, arg)
	}
	res, err := p.Context(ctx).Evaluate(opts)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// Probe runs the probe script in the tab.
func (d *Driver) Probe(ctx context.Context, h page.Handle) ([]page.Candidate, error) {
	t, ok := d.lookup(h)
	if !ok {
		return nil, &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}

	raw, err := d.eval(ctx, t.page, browser.ProbeScript, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &page.ProbeError{PageID: h.ID(), Err: err}
	}
	return browser.DecodeCandidates(raw)
}

func (d *Driver) state(ctx context.Context, t *tab, selector string) (browser.ElementState, error) {
	raw, err := d.eval(ctx, t.page, browser.StateScript, map[string]interface{}{"selector": selector})
	if err != nil {
		return browser.ElementState{}, err
	}
	return browser.DecodeState(raw)
}

// Write applies the write plan with the in-page write script, which sets the
// value through the native setter and dispatches input and change events.
func (d *Driver) Write(ctx context.Context, h page.Handle, selector, value string) error {
	t, ok := d.lookup(h)
	if !ok {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, page.ErrPageClosed)
	}

	st, err := d.state(ctx, t, selector)
	if err != nil {
		return classify(selector, err)
	}
	plan, err := st.Plan(selector, value)
	if err != nil {
		return err
	}

	res, err := d.eval(ctx, t.page, browser.WriteScript, plan.Args(selector))
	if err != nil {
		return classify(selector, err)
	}
	if res == "not-found" {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, nil)
	}
	return nil
}

func classify(selector string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return page.NewWriteError(selector, page.ReasonTimeout, err)
	}
	return page.NewWriteError(selector, page.ReasonNotInteractable, err)
}

// ReadBack reads the element's current state.
func (d *Driver) ReadBack(ctx context.Context, h page.Handle, selector, want string) (page.Readback, error) {
	t, ok := d.lookup(h)
	if !ok {
		return page.Readback{}, &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}

	st, err := d.state(ctx, t, selector)
	if err != nil {
		return page.Readback{}, fmt.Errorf("read %s: %w", selector, err)
	}
	if !st.Found {
		return page.Readback{}, page.NewWriteError(selector, page.ReasonSelectorNotFound, nil)
	}
	return st.ReadBack(want), nil
}

// Submit submits the form matched by selector, or the one enclosing it,
// then waits for the tab to load. Load timeouts are only logged.
func (d *Driver) Submit(ctx context.Context, h page.Handle, selector string) error {
	t, ok := d.lookup(h)
	if !ok {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, page.ErrPageClosed)
	}

	res, err := d.eval(ctx, t.page, browser.SubmitScript, browser.SubmitArgs(selector))
	if err != nil {
		return classify(selector, err)
	}
	if err := browser.SubmitResult(selector, res); err != nil {
		return err
	}

	loadCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	if err := t.page.Context(loadCtx).WaitLoad(); err != nil {
		d.opts.Logger.Warnf("Wait for load after submitting %s: %v", selector, err)
	}
	d.opts.Logger.Infof("Submitted %s on page %s", selector, h.ID())
	return nil
}

// Close closes one tab.
func (d *Driver) Close(h page.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tabs[h.ID()]
	if !ok {
		return fmt.Errorf("page %q not found", h.ID())
	}
	delete(d.tabs, h.ID())
	return t.page.Close()
}

// Shutdown closes every tab and the browser, and kills a launched Chrome.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for id, t := range d.tabs {
		if err := t.page.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(d.tabs, id)
	}
	if err := d.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if d.lnch != nil {
		d.lnch.Kill()
		d.lnch.Cleanup()
	}
	return errors.Join(errs...)
}
