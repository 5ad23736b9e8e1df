package fill

import "fmt"

// Status is a fill session state.
type Status string

const (
	StatusIdle            Status = "Idle"
	StatusAnalyzing       Status = "Analyzing"
	StatusMapped          Status = "Mapped"
	StatusFilling         Status = "Filling"
	StatusVerifying       Status = "Verifying"
	StatusDone            Status = "Done"
	StatusAnalysisFailed  Status = "AnalysisFailed"
	StatusMappingFailed   Status = "MappingFailed"
	StatusAborted         Status = "Aborted"
	StatusPartiallyFilled Status = "PartiallyFilled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusAnalysisFailed, StatusMappingFailed, StatusAborted, StatusPartiallyFilled:
		return true
	}
	return false
}

// transitions lists the allowed next states. Idle may jump straight to
// Mapped (or MappingFailed) when the caller supplied explicit selectors.
var transitions = map[Status][]Status{
	StatusIdle:      {StatusAnalyzing, StatusMapped, StatusMappingFailed, StatusAborted},
	StatusAnalyzing: {StatusMapped, StatusMappingFailed, StatusAnalysisFailed, StatusAborted},
	StatusMapped:    {StatusFilling, StatusAborted},
	StatusFilling:   {StatusVerifying, StatusAborted},
	StatusVerifying: {StatusDone, StatusPartiallyFilled, StatusAborted},
}

func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode controls how a write failure affects the rest of the session.
type Mode string

const (
	// ModeLenient records failures and keeps filling.
	ModeLenient Mode = "lenient"

	// ModeStrict aborts on the first field that fails after retries.
	ModeStrict Mode = "strict"
)

// ParseMode parses a mode name. The empty string is lenient.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeLenient:
		return ModeLenient, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown fill mode %q (want strict or lenient)", s)
	}
}

// Outcome is the final result of one field attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Attempt reasons that do not come from a page.WriteError.
const (
	ReasonVerifyMismatch = "verify-mismatch"
	ReasonVerifyError    = "verify-error"
	ReasonCanceled       = "canceled"
	ReasonUnmatched      = "unmatched"
)

// Attempt records what happened to one field. There is at most one attempt
// per field per session, appended in field order.
type Attempt struct {
	Selector   string  `json:"selector"`
	Label      string  `json:"label,omitempty"`
	Value      string  `json:"value"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason,omitempty"`
	RetryCount int     `json:"retry_count"`
}

func (a Attempt) String() string {
	if a.Reason != "" {
		return fmt.Sprintf("%s(%s)", a.Outcome, a.Reason)
	}
	return string(a.Outcome)
}

// FailureKind classifies why a session did not end in Done.
type FailureKind string

const (
	FailureAnalysis FailureKind = "analysis"
	FailureProbe    FailureKind = "probe"
	FailureMapping  FailureKind = "mapping"
	FailureWrite    FailureKind = "write"
	FailureVerify   FailureKind = "verify"
	FailureCanceled FailureKind = "canceled"
	FailureRejected FailureKind = "rejected"
)

// Failure carries the structured detail of a non-Done terminal state.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`

	// Reason is the sub-reason, e.g. count-mismatch or timeout.
	Reason string `json:"reason,omitempty"`

	// Selector names the field that stopped a strict session.
	Selector string `json:"selector,omitempty"`

	// Err is the underlying typed error (*form.AnalysisError,
	// *page.ProbeError, *mapping.MappingError, *page.WriteError).
	Err error `json:"-"`
}
