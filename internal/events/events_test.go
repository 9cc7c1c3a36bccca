package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewEvent(t *testing.T) {
	payload := SessionLifecycleEvent{
		SessionID:     "b6a7a0a0-0000-4000-8000-000000000001",
		UserID:        "emp-1",
		SurveyID:      3,
		AttemptNumber: 1,
		Status:        "in_progress",
	}

	event := NewEvent(EventSessionStarted, payload)

	if event.ID == "" {
		t.Error("event ID is empty")
	}
	if event.Type != EventSessionStarted {
		t.Errorf("Type = %s, want %s", event.Type, EventSessionStarted)
	}
	if event.Source != "survey-service" {
		t.Errorf("Source = %s, want survey-service", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("Version = %s, want 1.0", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}

	other := NewEvent(EventSessionStarted, payload)
	if other.ID == event.ID {
		t.Error("event IDs must be unique")
	}
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	event := NewEvent(EventSessionFlagged, SessionFlaggedEvent{
		SessionID:       "b6a7a0a0-0000-4000-8000-000000000002",
		UserID:          "emp-1",
		SurveyID:        3,
		ViolationsCount: 3,
		LastViolation:   "no_face",
	})

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"id", "type", "source", "version", "timestamp", "data"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("envelope missing %q", key)
		}
	}
	payload, ok := decoded["data"].(map[string]interface{})
	if !ok {
		t.Fatal("data is not an object")
	}
	if payload["violations_count"] != float64(3) {
		t.Errorf("violations_count = %v, want 3", payload["violations_count"])
	}
}

func TestMockEventPublisher(t *testing.T) {
	publisher := NewMockEventPublisher(nil)
	ctx := context.Background()

	if err := publisher.Publish(ctx, NewEvent(EventSessionStarted, nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := publisher.Publish(ctx, NewEvent(EventSessionCompleted, nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := publisher.GetPublishedEvents()
	if len(got) != 2 {
		t.Fatalf("recorded %d events, want 2", len(got))
	}
	if got[0].Type != EventSessionStarted || got[1].Type != EventSessionCompleted {
		t.Errorf("event order = %s, %s", got[0].Type, got[1].Type)
	}

	publisher.ClearEvents()
	if len(publisher.GetPublishedEvents()) != 0 {
		t.Error("ClearEvents() left events behind")
	}
}
