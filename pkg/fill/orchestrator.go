// Package fill drives a page through analysis, mapping, and sequential
// field writes, recording every attempt in a FillSession.
package fill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/clippypour/pkg/form"
	"github.com/entrhq/clippypour/pkg/logging"
	"github.com/entrhq/clippypour/pkg/mapping"
	"github.com/entrhq/clippypour/pkg/page"
	"github.com/entrhq/clippypour/pkg/types"
)

// Defaults for the pacing policy.
const (
	DefaultRetryLimit = 2
	DefaultRetryDelay = 250 * time.Millisecond
	DefaultPacing     = 500 * time.Millisecond
)

// Analyzer produces form descriptors for a page.
type Analyzer interface {
	Analyze(ctx context.Context, h page.Handle) ([]form.FormDescriptor, error)
}

// Mapper aligns segments to fields.
type Mapper interface {
	Map(ctx context.Context, segments []mapping.Segment, fields []form.FieldDescriptor) (*mapping.Result, error)
}

// ConfirmFunc is asked to approve a mapping that is not entirely positional.
// Returning false aborts the session before any field is written.
type ConfirmFunc func(ctx context.Context, snap Snapshot) (bool, error)

// Observer receives session events. It is called synchronously and must
// not block.
type Observer func(*types.FillEvent)

// Request describes one fill operation.
type Request struct {
	FormURL string
	Data    string

	// Selectors bypasses analysis: they become a synthetic form in this order.
	Selectors []string

	Mode Mode

	// Verify reads every written field back before the session ends.
	Verify bool

	// FormIndex picks which analyzed form to fill when a page has several.
	FormIndex int

	Confirm ConfirmFunc
}

// Orchestrator runs fill sessions. It is safe for concurrent use; sessions
// against different pages run independently.
type Orchestrator struct {
	analyzer   Analyzer
	mapper     Mapper
	writer     page.Writer
	reader     page.Reader
	clock      Clock
	registry   *Registry
	observer   Observer
	logger     *logging.Logger
	newID      func() string
	retryLimit int
	retryDelay time.Duration
	pacing     time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReader enables read-back verification.
func WithReader(r page.Reader) Option {
	return func(o *Orchestrator) { o.reader = r }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithRegistry shares a session registry between orchestrators.
func WithRegistry(r *Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithObserver sets the event observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithRetryLimit sets how many extra attempts a failing field gets.
func WithRetryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retryLimit = n
		}
	}
}

// WithRetryDelay sets the fixed delay between attempts on one field.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.retryDelay = d }
}

// WithPacing sets the fixed delay between consecutive fields.
func WithPacing(d time.Duration) Option {
	return func(o *Orchestrator) { o.pacing = d }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(analyzer Analyzer, mapper Mapper, writer page.Writer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		analyzer:   analyzer,
		mapper:     mapper,
		writer:     writer,
		clock:      RealClock{},
		logger:     logging.Discard(),
		newID:      func() string { return uuid.New().String() },
		retryLimit: DefaultRetryLimit,
		retryDelay: DefaultRetryDelay,
		pacing:     DefaultPacing,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = NewRegistry(DefaultKeepFinished)
	}
	return o
}

// Registry returns the orchestrator's session registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Fill runs a session to completion. The only error returned is
// *SessionConflictError; every other failure is a terminal status in the
// returned snapshot.
func (o *Orchestrator) Fill(ctx context.Context, h page.Handle, req Request) (Snapshot, error) {
	s, err := o.Begin(h, req)
	if err != nil {
		return Snapshot{}, err
	}
	return o.Run(ctx, s), nil
}

// Begin registers a new session for h without running it, failing fast
// when the page already has an active session.
func (o *Orchestrator) Begin(h page.Handle, req Request) (*Session, error) {
	if req.Mode == "" {
		req.Mode = ModeLenient
	}

	s := newSession(o.newID(), h, req, o.clock.Now())
	if err := o.registry.acquire(s); err != nil {
		o.logger.Warnf("Refusing fill on %s: %v", h.ID(), err)
		return nil, err
	}

	o.emit(types.NewSessionStartEvent(s.ID(), s.PageID()).
		WithMetadata("form_url", req.FormURL).
		WithMetadata("mode", string(req.Mode)))
	return s, nil
}

// Run drives a session obtained from Begin until it is terminal.
func (o *Orchestrator) Run(ctx context.Context, s *Session) Snapshot {
	defer o.registry.release(s)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setCancel(cancel)

	o.run(ctx, s)

	snap := s.Snapshot()
	o.logger.Infof("Session %s finished %s: %d/%d field(s) written", snap.ID, snap.Status, snap.Completed(), len(snap.Attempts))
	o.emit(types.NewSessionEndEvent(snap.ID, string(snap.Status)))
	return snap
}

func (o *Orchestrator) run(ctx context.Context, s *Session) {
	req := s.req

	descriptor, ok := o.describe(ctx, s)
	if !ok {
		return
	}

	result, ok := o.mapSegments(ctx, s, descriptor, req.Data)
	if !ok {
		return
	}

	if req.Confirm != nil && !result.AllHigh() {
		approved, err := req.Confirm(ctx, s.Snapshot())
		if err != nil || !approved {
			msg := "mapping rejected"
			if err != nil {
				msg = fmt.Sprintf("mapping confirmation failed: %v", err)
			}
			o.finish(s, StatusAborted, &Failure{Kind: FailureRejected, Message: msg, Err: err}, ctx.Err() != nil)
			return
		}
	}

	if !o.fillFields(ctx, s, descriptor, result) {
		return
	}

	o.verify(ctx, s)
}

// describe resolves the form to fill, either from explicit selectors or by
// analyzing the page.
func (o *Orchestrator) describe(ctx context.Context, s *Session) (form.FormDescriptor, bool) {
	req := s.req
	if len(req.Selectors) > 0 {
		d := form.Synthetic(req.FormURL, req.Selectors)
		_ = s.update(func(snap *Snapshot) { snap.Form = &d })
		return d, true
	}

	o.to(s, StatusAnalyzing)
	forms, err := o.analyzer.Analyze(ctx, s.handle)
	if err != nil {
		if ctx.Err() != nil {
			o.abortCanceled(s, ctx.Err())
			return form.FormDescriptor{}, false
		}

		failure := &Failure{Kind: FailureAnalysis, Message: err.Error(), Err: err}
		var probeErr *page.ProbeError
		if errors.As(err, &probeErr) {
			failure.Kind = FailureProbe
		}
		o.logger.Errorf("Analysis of %s failed: %v", req.FormURL, err)
		o.finish(s, StatusAnalysisFailed, failure, false)
		return form.FormDescriptor{}, false
	}

	if req.FormIndex < 0 || req.FormIndex >= len(forms) {
		err := &form.AnalysisError{
			URL:    req.FormURL,
			Reason: fmt.Sprintf("form index %d out of range (%d form(s) found)", req.FormIndex, len(forms)),
		}
		o.finish(s, StatusAnalysisFailed, &Failure{Kind: FailureAnalysis, Message: err.Error(), Err: err}, false)
		return form.FormDescriptor{}, false
	}

	d := forms[req.FormIndex]
	_ = s.update(func(snap *Snapshot) { snap.Form = &d })
	return d, true
}

func (o *Orchestrator) mapSegments(ctx context.Context, s *Session, d form.FormDescriptor, data string) (*mapping.Result, bool) {
	segments := mapping.Split(data)
	result, err := o.mapper.Map(ctx, segments, d.Fields)
	if err != nil {
		var mappingErr *mapping.MappingError
		if !errors.As(err, &mappingErr) && ctx.Err() != nil {
			o.abortCanceled(s, ctx.Err())
			return nil, false
		}

		// Report the excess on whichever side is longer so the caller can
		// see exactly what did not line up.
		unmatched := &mapping.Result{}
		if len(segments) > len(d.Fields) {
			unmatched.UnmatchedSegments = segments[len(d.Fields):]
		} else {
			unmatched.UnmatchedFields = d.Fields[len(segments):]
		}
		failure := &Failure{Kind: FailureMapping, Message: err.Error(), Err: err}
		if mappingErr != nil {
			failure.Reason = mappingErr.Reason
		}
		_ = s.update(func(snap *Snapshot) { snap.Mapping = unmatched })
		o.logger.Warnf("Mapping failed for session %s: %v", s.ID(), err)
		o.finish(s, StatusMappingFailed, failure, false)
		return nil, false
	}

	_ = s.update(func(snap *Snapshot) { snap.Mapping = result })
	o.to(s, StatusMapped)
	o.emit(types.NewMappingReadyEvent(s.ID(), len(result.Pairs)).
		WithMetadata("unmatched_segments", len(result.UnmatchedSegments)).
		WithMetadata("unmatched_fields", len(result.UnmatchedFields)))
	return result, true
}

// fillFields writes every field in page order. Fields without a pair are
// recorded as skipped. It returns false when the session was aborted.
func (o *Orchestrator) fillFields(ctx context.Context, s *Session, d form.FormDescriptor, result *mapping.Result) bool {
	o.to(s, StatusFilling)

	pending := make(map[string][]mapping.Pair)
	for _, p := range result.Pairs {
		pending[p.Field.Selector] = append(pending[p.Field.Selector], p)
	}

	written := 0
	for _, field := range d.Fields {
		if err := ctx.Err(); err != nil {
			o.abortCanceled(s, err)
			return false
		}
		queue := pending[field.Selector]
		if len(queue) == 0 {
			o.record(s, Attempt{Selector: field.Selector, Label: field.Label, Outcome: OutcomeSkipped, Reason: ReasonUnmatched})
			continue
		}
		pair := queue[0]
		pending[field.Selector] = queue[1:]

		if written > 0 {
			if err := o.clock.Sleep(ctx, o.pacing); err != nil {
				o.abortCanceled(s, err)
				return false
			}
		}
		if err := ctx.Err(); err != nil {
			o.abortCanceled(s, err)
			return false
		}

		attempt, canceled := o.writeField(ctx, s, field, pair.Segment.Value)
		o.record(s, attempt)
		written++

		if canceled {
			o.abortCanceled(s, ctx.Err())
			return false
		}
		if attempt.Outcome == OutcomeFailed && s.req.Mode == ModeStrict {
			o.finish(s, StatusAborted, &Failure{
				Kind:     FailureWrite,
				Message:  fmt.Sprintf("field %s failed: %s; %d field(s) completed before stopping", field.Selector, attempt.Reason, s.Snapshot().Completed()),
				Reason:   attempt.Reason,
				Selector: field.Selector,
			}, false)
			return false
		}
	}
	return true
}

// writeField writes one value with bounded retries. In-flight writes run on
// a context that ignores cancellation; cancellation is only observed while
// waiting between attempts.
func (o *Orchestrator) writeField(ctx context.Context, s *Session, field form.FieldDescriptor, value string) (Attempt, bool) {
	attempt := Attempt{Selector: field.Selector, Label: field.Label, Value: value}
	writeCtx := context.WithoutCancel(ctx)

	for {
		err := o.writer.Write(writeCtx, s.handle, field.Selector, value)
		if err == nil {
			attempt.Outcome = OutcomeSucceeded
			return attempt, false
		}

		reason := string(page.ReasonOf(err))
		if attempt.RetryCount >= o.retryLimit {
			o.logger.Warnf("Field %s failed after %d retries: %v", field.Selector, attempt.RetryCount, err)
			attempt.Outcome = OutcomeFailed
			attempt.Reason = reason
			return attempt, false
		}

		attempt.RetryCount++
		o.logger.Debugf("Retrying %s (%d/%d): %v", field.Selector, attempt.RetryCount, o.retryLimit, err)
		o.emit(types.NewFieldRetryEvent(s.ID(), field.Selector, reason, attempt.RetryCount))

		if err := o.clock.Sleep(ctx, o.retryDelay); err != nil {
			attempt.Outcome = OutcomeFailed
			attempt.Reason = ReasonCanceled
			return attempt, true
		}
	}
}

// verify reads back every succeeded field and settles the final status.
func (o *Orchestrator) verify(ctx context.Context, s *Session) {
	o.to(s, StatusVerifying)

	if s.req.Verify && o.reader != nil {
		attempts := s.Snapshot().Attempts
		for i, a := range attempts {
			if a.Outcome != OutcomeSucceeded {
				continue
			}
			if err := ctx.Err(); err != nil {
				o.abortCanceled(s, err)
				return
			}

			rb, err := o.reader.ReadBack(context.WithoutCancel(ctx), s.handle, a.Selector, a.Value)
			if err == nil && rb.Matches {
				continue
			}

			reason := ReasonVerifyMismatch
			if err != nil {
				reason = ReasonVerifyError
				o.logger.Warnf("Read-back of %s failed: %v", a.Selector, err)
			} else {
				o.logger.Warnf("Read-back of %s mismatched: want %q, got %q", a.Selector, a.Value, rb.Actual)
			}

			idx := i
			_ = s.update(func(snap *Snapshot) {
				snap.Attempts[idx].Outcome = OutcomeFailed
				snap.Attempts[idx].Reason = reason
			})
			o.emit(types.NewAttemptRecordedEvent(s.ID(), a.Selector, string(OutcomeFailed), reason, a.RetryCount))

			if s.req.Mode == ModeStrict {
				o.finish(s, StatusAborted, &Failure{
					Kind:     FailureVerify,
					Message:  fmt.Sprintf("field %s did not hold its value: %s", a.Selector, reason),
					Reason:   reason,
					Selector: a.Selector,
					Err:      err,
				}, false)
				return
			}
		}
	}

	snap := s.Snapshot()
	for _, a := range snap.Attempts {
		if a.Outcome != OutcomeSucceeded {
			o.finish(s, StatusPartiallyFilled, &Failure{
				Kind:    FailureWrite,
				Message: fmt.Sprintf("%d of %d field(s) not filled", len(snap.Attempts)-snap.Completed(), len(snap.Attempts)),
			}, false)
			return
		}
	}
	o.finish(s, StatusDone, nil, false)
}

func (o *Orchestrator) record(s *Session, a Attempt) {
	_ = s.update(func(snap *Snapshot) { snap.Attempts = append(snap.Attempts, a) })
	o.emit(types.NewAttemptRecordedEvent(s.ID(), a.Selector, string(a.Outcome), a.Reason, a.RetryCount))
}

func (o *Orchestrator) abortCanceled(s *Session, err error) {
	if err == nil {
		err = context.Canceled
	}
	o.logger.Infof("Session %s canceled: %v", s.ID(), err)
	o.finish(s, StatusAborted, &Failure{Kind: FailureCanceled, Message: "session canceled", Reason: ReasonCanceled, Err: err}, true)
}

// finish stores the failure detail and moves the session to a terminal state.
func (o *Orchestrator) finish(s *Session, status Status, failure *Failure, canceled bool) {
	_ = s.update(func(snap *Snapshot) {
		snap.Failure = failure
		snap.Canceled = canceled
	})
	o.to(s, status)
}

func (o *Orchestrator) to(s *Session, status Status) {
	from, err := s.transition(status, o.clock.Now())
	if err != nil {
		o.logger.Errorf("%v", err)
		return
	}
	o.logger.Debugf("Session %s: %s -> %s", s.ID(), from, status)
	o.emit(types.NewStateChangeEvent(s.ID(), string(from), string(status)))
}

func (o *Orchestrator) emit(e *types.FillEvent) {
	if o.observer == nil {
		return
	}
	e.Time = o.clock.Now()
	o.observer(e)
}
