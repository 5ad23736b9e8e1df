package types

import (
	"testing"
)

func TestFillEventType(t *testing.T) {
	tests := []struct {
		eventType FillEventType
		expected  string
	}{
		{EventTypeSessionStart, "session_start"},
		{EventTypeStateChange, "state_change"},
		{EventTypeMappingReady, "mapping_ready"},
		{EventTypeFieldRetry, "field_retry"},
		{EventTypeAttemptRecorded, "attempt_recorded"},
		{EventTypeSessionEnd, "session_end"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.eventType))
			}
		})
	}
}

func TestNewStateChangeEvent(t *testing.T) {
	event := NewStateChangeEvent("s1", "Mapped", "Filling")

	if event.Type != EventTypeStateChange {
		t.Errorf("Expected type %s, got %s", EventTypeStateChange, event.Type)
	}
	if event.Previous != "Mapped" || event.Status != "Filling" {
		t.Errorf("Unexpected transition %s -> %s", event.Previous, event.Status)
	}
	if event.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if event.IsTerminal() {
		t.Error("State change should not be terminal")
	}
}

func TestNewAttemptRecordedEvent(t *testing.T) {
	event := NewAttemptRecordedEvent("s1", "#email", "failed", "timeout", 2)

	if !event.IsAttempt() {
		t.Error("Expected attempt event")
	}
	if event.Selector != "#email" || event.Outcome != "failed" || event.Reason != "timeout" || event.RetryCount != 2 {
		t.Errorf("Unexpected attempt event: %+v", event)
	}
}

func TestNewFieldRetryEvent(t *testing.T) {
	event := NewFieldRetryEvent("s1", "#name", "not-interactable", 1)
	if !event.IsAttempt() {
		t.Error("Expected retry to count as attempt event")
	}
	if event.RetryCount != 1 {
		t.Errorf("Expected retry 1, got %d", event.RetryCount)
	}
}

func TestNewSessionEndEvent(t *testing.T) {
	event := NewSessionEndEvent("s1", "Done")
	if !event.IsTerminal() {
		t.Error("Expected session end to be terminal")
	}
	if event.Status != "Done" {
		t.Errorf("Expected status Done, got %s", event.Status)
	}
}

func TestFillEvent_WithMetadata(t *testing.T) {
	event := &FillEvent{Type: EventTypeSessionStart}
	event.WithMetadata("url", "https://example.com").WithMetadata("fields", 3)

	if event.Metadata["url"] != "https://example.com" {
		t.Errorf("Expected url metadata, got %v", event.Metadata["url"])
	}
	if event.Metadata["fields"] != 3 {
		t.Errorf("Expected fields metadata 3, got %v", event.Metadata["fields"])
	}
}

func TestMessageConstructors(t *testing.T) {
	if m := NewSystemMessage("s"); m.Role != RoleSystem || m.Content != "s" {
		t.Errorf("Unexpected system message: %+v", m)
	}
	if m := NewUserMessage("u"); m.Role != RoleUser {
		t.Errorf("Unexpected user message: %+v", m)
	}
	if m := NewAssistantMessage("a"); m.Role != RoleAssistant {
		t.Errorf("Unexpected assistant message: %+v", m)
	}
}
