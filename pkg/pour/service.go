// Package pour is the application service behind the CLI and the HTTP API.
// It opens pages through a driver, runs analysis and fill sessions, and
// wires in templates, history, and session artifacts.
package pour

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/clippypour/pkg/fill"
	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/history"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/page"
	"github.com/entrhq/clippypour/pkg/report"
	"github.com/entrhq/clippypour/pkg/template"
)

// DefaultFillTimeout bounds asynchronous sessions started with Start.
const DefaultFillTimeout = 5 * time.Minute

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrProfilesDisabled is returned when a request names a profile but
	// the service has no profile store.
	ErrProfilesDisabled = errors.New("profiles are disabled")
)

// AnalyzeRequest asks for the forms on a page.
type AnalyzeRequest struct {
	FormURL string `json:"form_url"`
}

// FillRequest asks for one fill session.
type FillRequest struct {
	FormURL string `json:"form_url"`
	Data    string `json:"data"`

	// Profile names a saved profile to use as Data. It cannot be combined
	// with Data.
	Profile string `json:"profile,omitempty"`

	// Selectors skips analysis and fills these fields in order.
	Selectors []string `json:"selectors,omitempty"`

	// Mode is strict or lenient; empty uses the service default.
	Mode string `json:"mode,omitempty"`

	// Verify overrides the service default when set.
	Verify *bool `json:"verify,omitempty"`

	FormIndex int `json:"form_index,omitempty"`

	// Template names the template to fill with, or to save a successful
	// analyzed fill under. Empty looks a template up by URL and derives
	// the saved name from the URL.
	Template string `json:"template,omitempty"`

	// NoTemplate disables template lookup for this request.
	NoTemplate bool `json:"no_template,omitempty"`

	// Submit overrides the service default when set. Only sessions that
	// end in Done are submitted.
	Submit *bool `json:"submit,omitempty"`

	Confirm fill.ConfirmFunc `json:"-"`
}

// FillResult is a finished (or, from Start, just started) session plus what
// the service did around it.
type FillResult struct {
	fill.Snapshot

	// Template is the template whose selectors were used.
	Template string `json:"template,omitempty"`

	// SavedTemplate is the template written after a successful fill.
	SavedTemplate string `json:"saved_template,omitempty"`

	// ArtifactDir holds session.json and summary.md when artifacts are on.
	ArtifactDir string `json:"artifact_dir,omitempty"`

	// Profile is the profile the data came from.
	Profile string `json:"profile,omitempty"`

	// Submitted reports that the form was submitted after the session.
	// SubmitError explains a submission that was wanted but failed.
	Submitted   bool   `json:"submitted,omitempty"`
	SubmitError string `json:"submit_error,omitempty"`
}

// Service runs analyses and fills against one page driver.
type Service struct {
	driver   page.Driver
	analyzer *form.Analyzer
	orch     *fill.Orchestrator
	logger   *logging.Logger

	templates     *template.Store
	useTemplates  bool
	saveTemplates bool
	profiles      *template.ProfileStore
	history       *history.Store
	artifacts     *report.ArtifactWriter

	mode        fill.Mode
	verify      bool
	submit      bool
	fillTimeout time.Duration

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	extras map[string]FillResult

	closers []func() error
}

// Option configures a Service.
type Option func(*Service)

// WithTemplates enables template lookup (use) and saving (save).
func WithTemplates(store *template.Store, use, save bool) Option {
	return func(s *Service) {
		s.templates, s.useTemplates, s.saveTemplates = store, use, save
	}
}

// WithProfiles lets requests name a saved profile instead of data.
func WithProfiles(store *template.ProfileStore) Option {
	return func(s *Service) { s.profiles = store }
}

// WithSubmit sets whether sessions that end in Done are submitted when a
// request does not say.
func WithSubmit(submit bool) Option {
	return func(s *Service) { s.submit = submit }
}

// WithHistory records every finished session.
func WithHistory(h *history.Store) Option {
	return func(s *Service) { s.history = h }
}

// WithArtifacts writes session artifacts for every finished session.
func WithArtifacts(w *report.ArtifactWriter) Option {
	return func(s *Service) { s.artifacts = w }
}

// WithDefaults sets the mode and verify flag used when a request has none.
func WithDefaults(mode fill.Mode, verify bool) Option {
	return func(s *Service) { s.mode, s.verify = mode, verify }
}

// WithFillTimeout bounds asynchronous sessions.
func WithFillTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fillTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service. The orchestrator must have been built over
// the same driver.
func NewService(driver page.Driver, analyzer *form.Analyzer, orch *fill.Orchestrator, opts ...Option) *Service {
	s := &Service{
		driver:      driver,
		analyzer:    analyzer,
		orch:        orch,
		logger:      logging.Discard(),
		mode:        fill.ModeLenient,
		verify:      true,
		fillTimeout: DefaultFillTimeout,
		extras:      make(map[string]FillResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base, s.stop = context.WithCancel(context.Background())
	return s
}

// Analyze opens the page, analyzes it, and closes it again.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) ([]form.FormDescriptor, error) {
	if req.FormURL == "" {
		return nil, fmt.Errorf("form_url is required")
	}

	h, err := s.driver.Open(ctx, req.FormURL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.FormURL, err)
	}
	defer s.closePage(h)

	return s.analyzer.Analyze(ctx, h)
}

// Fill runs a session to completion on a freshly opened page. Page
// failures and conflicts are errors; everything else is in the result.
func (s *Service) Fill(ctx context.Context, req FillRequest) (FillResult, error) {
	h, sess, res, err := s.begin(ctx, req)
	if err != nil {
		return FillResult{}, err
	}
	defer s.closePage(h)

	snap := s.orch.Run(ctx, sess)
	return s.complete(context.WithoutCancel(ctx), h, snap, req, res), nil
}

// Start opens the page and starts the session in the background, returning
// its first snapshot. The session outlives ctx and is bounded by the fill
// timeout instead; use Cancel to stop it.
func (s *Service) Start(ctx context.Context, req FillRequest) (FillResult, error) {
	h, sess, res, err := s.begin(ctx, req)
	if err != nil {
		return FillResult{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.closePage(h)

		runCtx, cancel := context.WithTimeout(s.base, s.fillTimeout)
		defer cancel()

		snap := s.orch.Run(runCtx, sess)
		s.complete(context.WithoutCancel(runCtx), h, snap, req, res)
	}()

	res.Snapshot = sess.Snapshot()
	return res, nil
}

func (s *Service) begin(ctx context.Context, req FillRequest) (page.Handle, *fill.Session, FillResult, error) {
	var res FillResult
	if req.FormURL == "" {
		return nil, nil, res, fmt.Errorf("form_url is required")
	}

	mode := s.mode
	if req.Mode != "" {
		m, err := fill.ParseMode(req.Mode)
		if err != nil {
			return nil, nil, res, err
		}
		mode = m
	}
	verify := s.verify
	if req.Verify != nil {
		verify = *req.Verify
	}

	data := req.Data
	if req.Profile != "" {
		if req.Data != "" {
			return nil, nil, res, fmt.Errorf("data and profile are mutually exclusive")
		}
		if s.profiles == nil {
			return nil, nil, res, ErrProfilesDisabled
		}
		p, err := s.profiles.Get(req.Profile)
		if err != nil {
			return nil, nil, res, err
		}
		data = p.Data
		res.Profile = p.Name
	}

	selectors := req.Selectors
	if len(selectors) == 0 && !req.NoTemplate {
		if tpl, ok := s.lookupTemplate(req); ok {
			selectors = tpl.Selectors
			res.Template = tpl.Name
			s.logger.Infof("Using template %q for %s", tpl.Name, req.FormURL)
		}
	}

	h, err := s.driver.Open(ctx, req.FormURL)
	if err != nil {
		return nil, nil, res, fmt.Errorf("open %s: %w", req.FormURL, err)
	}

	sess, err := s.orch.Begin(h, fill.Request{
		FormURL:   req.FormURL,
		Data:      data,
		Selectors: selectors,
		Mode:      mode,
		Verify:    verify,
		FormIndex: req.FormIndex,
		Confirm:   req.Confirm,
	})
	if err != nil {
		s.closePage(h)
		return nil, nil, res, err
	}

	s.mu.Lock()
	s.extras[sess.ID()] = res
	s.mu.Unlock()
	return h, sess, res, nil
}

func (s *Service) lookupTemplate(req FillRequest) (template.Template, bool) {
	if s.templates == nil {
		return template.Template{}, false
	}
	if req.Template != "" {
		tpl, err := s.templates.Get(req.Template)
		if err != nil {
			s.logger.Warnf("Template %q not found, analyzing the page instead", req.Template)
			return template.Template{}, false
		}
		return tpl, true
	}
	if !s.useTemplates {
		return template.Template{}, false
	}
	return s.templates.Find(req.FormURL)
}

// complete runs the post-session steps. Their failures are logged and never
// change the session outcome.
func (s *Service) complete(ctx context.Context, h page.Handle, snap fill.Snapshot, req FillRequest, res FillResult) FillResult {
	res.Snapshot = snap

	submit := s.submit
	if req.Submit != nil {
		submit = *req.Submit
	}
	if submit && snap.Status == fill.StatusDone {
		if err := s.submitForm(ctx, h, snap); err != nil {
			res.SubmitError = err.Error()
			s.logger.Warnf("Failed to submit %s: %v", snap.FormURL, err)
		} else {
			res.Submitted = true
		}
	}

	analyzed := len(req.Selectors) == 0 && res.Template == ""
	if s.templates != nil && s.saveTemplates && analyzed && snap.Status == fill.StatusDone && snap.Form != nil {
		tpl, err := s.templates.Save(template.Template{
			Name:      req.Template,
			URL:       snap.FormURL,
			Title:     snap.Form.Title,
			Category:  snap.Form.Category,
			Selectors: snap.Form.Selectors(),
			Labels:    labels(snap.Form),
		})
		if err != nil {
			s.logger.Warnf("Failed to save template for %s: %v", snap.FormURL, err)
		} else {
			res.SavedTemplate = tpl.Name
			s.logger.Infof("Saved template %q", tpl.Name)
		}
	}

	if s.history != nil {
		if err := s.history.Record(ctx, snap); err != nil {
			s.logger.Warnf("Failed to record session %s: %v", snap.ID, err)
		}
	}

	if s.artifacts != nil {
		if err := s.artifacts.WriteAll(snap); err != nil {
			s.logger.Warnf("Failed to write artifacts for %s: %v", snap.ID, err)
		} else {
			res.ArtifactDir = s.artifacts.Dir(snap)
		}
	}

	s.mu.Lock()
	s.extras[snap.ID] = res
	for id := range s.extras {
		if _, ok := s.orch.Registry().Get(id); !ok {
			delete(s.extras, id)
		}
	}
	s.mu.Unlock()
	return res
}

// submitForm submits the filled form: its container when analysis found
// one, otherwise the form enclosing the first field.
func (s *Service) submitForm(ctx context.Context, h page.Handle, snap fill.Snapshot) error {
	sub, ok := s.driver.(page.Submitter)
	if !ok {
		return fmt.Errorf("driver %T cannot submit forms", s.driver)
	}
	if snap.Form == nil {
		return fmt.Errorf("session has no form to submit")
	}
	target := snap.Form.Selector
	if target == "" {
		if len(snap.Form.Fields) == 0 {
			return fmt.Errorf("session has no form to submit")
		}
		target = snap.Form.Fields[0].Selector
	}
	if err := sub.Submit(ctx, h, target); err != nil {
		return err
	}
	s.logger.Infof("Submitted %s on %s", target, snap.FormURL)
	return nil
}

func labels(d *form.FormDescriptor) []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Label
	}
	return out
}

func (s *Service) closePage(h page.Handle) {
	if err := s.driver.Close(h); err != nil {
		s.logger.Warnf("Failed to close page %s: %v", h.ID(), err)
	}
}

// Session returns the current state of a session this process knows.
func (s *Service) Session(id string) (FillResult, error) {
	sess, ok := s.orch.Registry().Get(id)
	if !ok {
		return FillResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.result(sess.Snapshot()), nil
}

// Sessions lists known sessions, oldest first.
func (s *Service) Sessions() []FillResult {
	snaps := s.orch.Registry().List()
	out := make([]FillResult, len(snaps))
	for i, snap := range snaps {
		out[i] = s.result(snap)
	}
	return out
}

func (s *Service) result(snap fill.Snapshot) FillResult {
	s.mu.Lock()
	res := s.extras[snap.ID]
	s.mu.Unlock()
	res.Snapshot = snap
	return res
}

// Cancel asks a running session to stop. It reports false when the session
// had already finished.
func (s *Service) Cancel(id string) (bool, error) {
	sess, ok := s.orch.Registry().Get(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Cancel(), nil
}

// Templates returns the template store, or nil.
func (s *Service) Templates() *template.Store {
	return s.templates
}

// Profiles returns the profile store, or nil.
func (s *Service) Profiles() *template.ProfileStore {
	return s.profiles
}

// History returns the history store, or nil.
func (s *Service) History() *history.Store {
	return s.history
}

// Close cancels background sessions, waits for them to finish, and closes
// the stores New opened.
func (s *Service) Close() error {
	s.stop()
	s.wg.Wait()
	return closeAll(s.closers)
}

// Wait blocks until every background session has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
