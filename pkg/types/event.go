package types

import "time"

// FillEventType defines the type of event emitted during a fill session.
type FillEventType string

const (
	EventTypeSessionStart    FillEventType = "session_start"    // EventTypeSessionStart indicates a fill session was created.
	EventTypeStateChange     FillEventType = "state_change"     // EventTypeStateChange indicates the session moved to a new status.
	EventTypeMappingReady    FillEventType = "mapping_ready"    // EventTypeMappingReady indicates segments were aligned to fields.
	EventTypeFieldRetry      FillEventType = "field_retry"      // EventTypeFieldRetry indicates a field write failed and will be retried.
	EventTypeAttemptRecorded FillEventType = "attempt_recorded" // EventTypeAttemptRecorded indicates a field attempt reached its final outcome.
	EventTypeSessionEnd      FillEventType = "session_end"      // EventTypeSessionEnd indicates the session reached a terminal status.
)

// FillEvent is emitted by the orchestrator while a session runs.
type FillEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	Time time.Time

	// Type indicates the kind of event.
	Type FillEventType

	SessionID string
	PageID    string

	// Status is the session status after the event (state change and end events).
	Status string

	// Previous is the status before a state change.
	Previous string

	// Selector, Outcome, Reason and RetryCount describe a field attempt.
	Selector   string
	Outcome    string
	Reason     string
	RetryCount int

	// Pairs is the number of aligned pairs (mapping events).
	Pairs int
}

// NewSessionStartEvent creates a session start event.
func NewSessionStartEvent(sessionID, pageID string) *FillEvent {
	return &FillEvent{
		Type:      EventTypeSessionStart,
		SessionID: sessionID,
		PageID:    pageID,
		Metadata:  make(map[string]interface{}),
	}
}

// NewStateChangeEvent creates a state change event.
func NewStateChangeEvent(sessionID, from, to string) *FillEvent {
	return &FillEvent{
		Type:      EventTypeStateChange,
		SessionID: sessionID,
		Previous:  from,
		Status:    to,
		Metadata:  make(map[string]interface{}),
	}
}

// NewMappingReadyEvent creates a mapping event.
func NewMappingReadyEvent(sessionID string, pairs int) *FillEvent {
	return &FillEvent{
		Type:      EventTypeMappingReady,
		SessionID: sessionID,
		Pairs:     pairs,
		Metadata:  make(map[string]interface{}),
	}
}

// NewFieldRetryEvent creates a retry event for selector.
func NewFieldRetryEvent(sessionID, selector, reason string, retry int) *FillEvent {
	return &FillEvent{
		Type:       EventTypeFieldRetry,
		SessionID:  sessionID,
		Selector:   selector,
		Reason:     reason,
		RetryCount: retry,
		Metadata:   make(map[string]interface{}),
	}
}

// NewAttemptRecordedEvent creates an attempt event.
func NewAttemptRecordedEvent(sessionID, selector, outcome, reason string, retries int) *FillEvent {
	return &FillEvent{
		Type:       EventTypeAttemptRecorded,
		SessionID:  sessionID,
		Selector:   selector,
		Outcome:    outcome,
		Reason:     reason,
		RetryCount: retries,
		Metadata:   make(map[string]interface{}),
	}
}

// NewSessionEndEvent creates a session end event.
func NewSessionEndEvent(sessionID, status string) *FillEvent {
	return &FillEvent{
		Type:      EventTypeSessionEnd,
		SessionID: sessionID,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *FillEvent) WithMetadata(key string, value interface{}) *FillEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsTerminal reports whether the event closes a session.
func (e *FillEvent) IsTerminal() bool {
	return e.Type == EventTypeSessionEnd
}

// IsAttempt reports whether the event carries a field attempt.
func (e *FillEvent) IsAttempt() bool {
	return e.Type == EventTypeAttemptRecorded || e.Type == EventTypeFieldRetry
}
