// Package playwright is the default live page driver, built on
// playwright-go. It launches one Chromium instance and opens every page in
// its own browser context.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/clippypour/pkg/browser"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/page"
)

// Default values for driver options.
const (
	DefaultTimeout        = 30000.0 // milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxPages       = 5
)

// Options configures the driver.
type Options struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// Timeout is the default timeout for navigation and writes, in
	// milliseconds.
	Timeout float64

	// ViewportWidth and ViewportHeight size every new page.
	ViewportWidth  int
	ViewportHeight int

	// MaxPages limits how many pages may be open at once.
	MaxPages int

	// SkipInstall assumes the Playwright driver and browsers are already
	// installed.
	SkipInstall bool

	Logger *logging.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ViewportWidth <= 0 {
		o.ViewportWidth = DefaultViewportWidth
	}
	if o.ViewportHeight <= 0 {
		o.ViewportHeight = DefaultViewportHeight
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
}

// session is one open page with its isolated browser context.
type session struct {
	handle  *browser.Handle
	context playwright.BrowserContext
	page    playwright.Page
}

// Driver implements page.Driver with Playwright.
type Driver struct {
	mu       sync.RWMutex
	opts     Options
	pw       *playwright.Playwright
	browser  playwright.Browser
	sessions map[string]*session

	// pending counts slots reserved by Opens still navigating.
	pending int
}

// NewDriver installs (unless told not to) and starts Playwright, then
// launches Chromium.
func NewDriver(opts Options) (*Driver, error) {
	opts.defaults()

	// Keep Playwright's installer quiet so it does not interleave with CLI
	// output.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if !opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	opts.Logger.Infof("Launched Chromium (headless=%v)", opts.Headless)
	return &Driver{
		opts:     opts,
		pw:       pw,
		browser:  b,
		sessions: make(map[string]*session),
	}, nil
}

// Open navigates a new page to url and waits for the load event. The
// driver lock is not held while the page loads, so other pages keep
// working during slow navigations. Canceling ctx abandons the navigation.
func (d *Driver) Open(ctx context.Context, url string) (page.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.reserve(); err != nil {
		return nil, err
	}
	registered := false
	defer func() {
		if !registered {
			d.release()
		}
	}()

	bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  d.opts.ViewportWidth,
			Height: d.opts.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	p, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	p.SetDefaultTimeout(d.opts.Timeout)

	waitUntil := playwright.WaitUntilState("load")
	err = navigate(ctx, func() error {
		_, err := p.Goto(url, playwright.PageGotoOptions{WaitUntil: &waitUntil})
		return err
	}, func() {
		_ = bctx.Close()
	})
	if err != nil {
		_ = bctx.Close()
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	title, _ := p.Title()
	h := browser.NewHandle(p.URL(), title)

	d.mu.Lock()
	d.pending--
	d.sessions[h.ID()] = &session{handle: h, context: bctx, page: p}
	registered = true
	d.mu.Unlock()

	d.opts.Logger.Infof("Opened %s as page %s", url, h.ID())
	return h, nil
}

// reserve claims a page slot. Slots held by in-flight navigations count
// against MaxPages.
func (d *Driver) reserve() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sessions)+d.pending >= d.opts.MaxPages {
		return fmt.Errorf("maximum number of pages (%d) reached", d.opts.MaxPages)
	}
	d.pending++
	return nil
}

func (d *Driver) release() {
	d.mu.Lock()
	d.pending--
	d.mu.Unlock()
}

// navigate runs load in the background and waits for it or for ctx. On
// cancellation abort is called to unblock load, and navigate returns only
// once load has returned.
func navigate(ctx context.Context, load func() error, abort func()) error {
	done := make(chan error, 1)
	go func() {
		done <- load()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		abort()
		<-done
		return ctx.Err()
	}
}

func (d *Driver) lookup(h page.Handle) (*session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[h.ID()]
	if !ok || s.page.IsClosed() {
		return nil, false
	}
	return s, true
}

func evalString(p playwright.Page, script string, arg interface{}) (string, error) {
	var (
		v   interface{}
		err error
	)
	if arg == nil {
		v, err = p.Evaluate(script)
	} else {
		v, err = p.Evaluate(script, arg)
	}
	if err != nil {
		return "", err
	}
	raw, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("script returned %T, want string", v)
	}
	return raw, nil
}

// Probe runs the probe script in the page.
func (d *Driver) Probe(ctx context.Context, h page.Handle) ([]page.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := d.lookup(h)
	if !ok {
		return nil, &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}

	raw, err := evalString(s.page, browser.ProbeScript, nil)
	if err != nil {
		return nil, &page.ProbeError{PageID: h.ID(), Err: err}
	}
	return browser.DecodeCandidates(raw)
}

func (d *Driver) state(s *session, selector string) (browser.ElementState, error) {
	raw, err := evalString(s.page, browser.StateScript, map[string]interface{}{"selector": selector})
	if err != nil {
		return browser.ElementState{}, err
	}
	return browser.DecodeState(raw)
}

// Write fills, selects, or checks the element matched by selector using
// Playwright's actionability checks.
func (d *Driver) Write(ctx context.Context, h page.Handle, selector, value string) error {
	s, ok := d.lookup(h)
	if !ok {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, page.ErrPageClosed)
	}

	st, err := d.state(s, selector)
	if err != nil {
		return page.NewWriteError(selector, page.ReasonNotInteractable, err)
	}
	plan, err := st.Plan(selector, value)
	if err != nil {
		return err
	}

	timeout := d.opts.Timeout
	loc := s.page.Locator(selector).First()
	switch plan.Action {
	case browser.ActionCheck:
		err = loc.SetChecked(plan.Checked, playwright.LocatorSetCheckedOptions{Timeout: &timeout})
	case browser.ActionSelect:
		_, err = loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{plan.Value}},
			playwright.LocatorSelectOptionOptions{Timeout: &timeout})
	default:
		err = loc.Fill(plan.Value, playwright.LocatorFillOptions{Timeout: &timeout})
	}
	if err != nil {
		return classify(selector, err)
	}
	return nil
}

func classify(selector string, err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return page.NewWriteError(selector, page.ReasonTimeout, err)
	}
	return page.NewWriteError(selector, page.ReasonNotInteractable, err)
}

// ReadBack reads the element's current state.
func (d *Driver) ReadBack(ctx context.Context, h page.Handle, selector, want string) (page.Readback, error) {
	s, ok := d.lookup(h)
	if !ok {
		return page.Readback{}, &page.ProbeError{PageID: h.ID(), Err: page.ErrPageClosed}
	}

	st, err := d.state(s, selector)
	if err != nil {
		return page.Readback{}, fmt.Errorf("read %s: %w", selector, err)
	}
	if !st.Found {
		return page.Readback{}, page.NewWriteError(selector, page.ReasonSelectorNotFound, nil)
	}
	return st.ReadBack(want), nil
}

// Submit submits the form matched by selector, or the one enclosing it,
// then waits briefly for the resulting navigation to load. A form that
// submits without navigating is not an error.
func (d *Driver) Submit(ctx context.Context, h page.Handle, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, ok := d.lookup(h)
	if !ok {
		return page.NewWriteError(selector, page.ReasonSelectorNotFound, page.ErrPageClosed)
	}

	res, err := evalString(s.page, browser.SubmitScript, browser.SubmitArgs(selector))
	if err != nil {
		return classify(selector, err)
	}
	if err := browser.SubmitResult(selector, res); err != nil {
		return err
	}

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: playwright.Float(d.opts.Timeout),
	}); err != nil {
		d.opts.Logger.Warnf("Wait for load after submitting %s: %v", selector, err)
	}
	d.opts.Logger.Infof("Submitted %s on page %s", selector, h.ID())
	return nil
}

// Close closes one page and its context.
func (d *Driver) Close(h page.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[h.ID()]
	if !ok {
		return fmt.Errorf("page %q not found", h.ID())
	}

	_ = s.page.Close()    // Ignore errors, continue cleanup
	_ = s.context.Close() // Ignore errors, continue cleanup
	delete(d.sessions, h.ID())
	return nil
}

// Shutdown closes every page, the browser, and Playwright.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for id, s := range d.sessions {
		if err := s.page.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.context.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(d.sessions, id)
	}
	if err := d.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}
