package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"assistant_server/core/domain"
	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
)

type fakeCredentialSource struct {
	err error
}

func (f *fakeCredentialSource) Acquire(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "test-token"}, nil
}

type fakeCalendarProvider struct {
	nextID int
	events map[string]*out.ProviderCalendarEvent
}

func newFakeCalendarProvider() *fakeCalendarProvider {
	return &fakeCalendarProvider{events: make(map[string]*out.ProviderCalendarEvent)}
}

func (f *fakeCalendarProvider) CreateEvent(ctx context.Context, token *oauth2.Token, calendarID string, event *out.ProviderCalendarEvent) (*out.ProviderCalendarEvent, error) {
	f.nextID++
	stored := *event
	stored.ID = fmt.Sprintf("evt-%d", f.nextID)
	stored.HTMLLink = "https://calendar.example.com/" + stored.ID
	f.events[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeCalendarProvider) ListEvents(ctx context.Context, token *oauth2.Token, query *out.ProviderCalendarQuery) ([]*out.ProviderCalendarEvent, error) {
	var result []*out.ProviderCalendarEvent
	for _, event := range f.events {
		if event.StartTime.Before(query.TimeMax) && event.EndTime.After(query.TimeMin) {
			result = append(result, event)
		}
	}
	return result, nil
}

func (f *fakeCalendarProvider) UpdateEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string, event *out.ProviderCalendarEvent) (*out.ProviderCalendarEvent, error) {
	existing, ok := f.events[eventID]
	if !ok {
		return nil, apperr.BackendError("404", "event not found", nil)
	}
	if event.Title != "" {
		existing.Title = event.Title
	}
	if event.Location != "" {
		existing.Location = event.Location
	}
	if !event.StartTime.IsZero() {
		existing.StartTime = event.StartTime
	}
	if !event.EndTime.IsZero() {
		existing.EndTime = event.EndTime
	}
	return existing, nil
}

func (f *fakeCalendarProvider) DeleteEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string) (string, error) {
	existing, ok := f.events[eventID]
	if !ok {
		return "", apperr.BackendError("404", "event not found", nil)
	}
	delete(f.events, eventID)
	return existing.HTMLLink, nil
}

func newTestRegistry() (*Registry, *fakeCalendarProvider) {
	provider := newFakeCalendarProvider()
	registry := NewRegistry()
	RegisterCalendarTools(registry, &fakeCredentialSource{}, provider, "America/Los_Angeles")
	return registry, provider
}

func TestCreateThenListIncludesEvent(t *testing.T) {
	registry, _ := newTestRegistry()
	userID := uuid.New()
	ctx := context.Background()

	created, err := registry.Execute(ctx, userID, "create_calendar_event", map[string]any{
		"summary":        "Dentist",
		"start_datetime": "2025-01-26T10:00:00",
		"end_datetime":   "2025-01-26T11:00:00",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created.Success {
		t.Fatalf("create not successful: %s", created.Error)
	}
	if created.Link == "" {
		t.Error("created event should carry a link")
	}

	listed, err := registry.Execute(ctx, userID, "list_calendar_events", map[string]any{
		"start_datetime": "2025-01-26T00:00:00",
		"end_datetime":   "2025-01-26T23:59:59",
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	events, ok := listed.Data.([]*domain.CalendarEvent)
	if !ok {
		t.Fatalf("unexpected list data type %T", listed.Data)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Summary != "Dentist" {
		t.Errorf("event summary = %q, want Dentist", events[0].Summary)
	}
}

func TestDeleteThenListExcludesEvent(t *testing.T) {
	registry, _ := newTestRegistry()
	userID := uuid.New()
	ctx := context.Background()

	created, err := registry.Execute(ctx, userID, "create_calendar_event", map[string]any{
		"summary":        "Standup",
		"start_datetime": "2025-01-26T09:00:00",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !created.Success {
		t.Fatalf("create not successful: %s", created.Error)
	}
	event := created.Data.(*domain.CalendarEvent)

	deleted, err := registry.Execute(ctx, userID, "delete_calendar_event", map[string]any{
		"event_id": event.ID,
	})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !deleted.Success {
		t.Fatalf("delete not successful: %s", deleted.Error)
	}
	if deleted.Link == "" {
		t.Error("delete should return the deleted event's link")
	}

	listed, err := registry.Execute(ctx, userID, "list_calendar_events", map[string]any{
		"start_datetime": "2025-01-26T00:00:00",
		"end_datetime":   "2025-01-26T23:59:59",
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	events := listed.Data.([]*domain.CalendarEvent)
	for _, e := range events {
		if e.ID == event.ID {
			t.Error("deleted event still present in list")
		}
	}
}

func TestCreateDefaultsEndToOneHour(t *testing.T) {
	registry, provider := newTestRegistry()

	result, err := registry.Execute(context.Background(), uuid.New(), "create_calendar_event", map[string]any{
		"summary":        "Walk",
		"start_datetime": "2025-01-26T08:00:00",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("create not successful: %s", result.Error)
	}
	for _, event := range provider.events {
		if got := event.EndTime.Sub(event.StartTime); got != time.Hour {
			t.Errorf("default duration = %v, want 1h", got)
		}
		if len(event.Reminders) != 2 {
			t.Errorf("got %d reminders, want 2", len(event.Reminders))
		}
	}
}

func TestUpdateEventChangesFields(t *testing.T) {
	registry, _ := newTestRegistry()
	userID := uuid.New()
	ctx := context.Background()

	created, _ := registry.Execute(ctx, userID, "create_calendar_event", map[string]any{
		"summary":        "Lunch",
		"start_datetime": "2025-01-26T12:00:00",
	})
	event := created.Data.(*domain.CalendarEvent)

	updated, err := registry.Execute(ctx, userID, "update_calendar_event", map[string]any{
		"event_id": event.ID,
		"summary":  "Team lunch",
		"location": "Cafe",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.Success {
		t.Fatalf("update not successful: %s", updated.Error)
	}
	view := updated.Data.(*domain.CalendarEvent)
	if view.Summary != "Team lunch" || view.Location != "Cafe" {
		t.Errorf("update not applied: %+v", view)
	}
}

func TestMissingRequiredParameter(t *testing.T) {
	registry, _ := newTestRegistry()

	result, err := registry.Execute(context.Background(), uuid.New(), "create_calendar_event", map[string]any{
		"summary": "No start",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected a failed result for a missing required parameter")
	}
	if result.Error != "missing required parameter: start_datetime" {
		t.Errorf("error = %q", result.Error)
	}
}

func TestBackendFailureSurfacesInResult(t *testing.T) {
	registry, _ := newTestRegistry()

	result, err := registry.Execute(context.Background(), uuid.New(), "delete_calendar_event", map[string]any{
		"event_id": "missing",
	})
	if err != nil {
		t.Fatalf("backend failures must not bubble up as errors: %v", err)
	}
	if result.Success {
		t.Error("expected a failed result")
	}
	if result.Error == "" {
		t.Error("failure must carry a user-visible message")
	}
}

func TestCredentialFailureSurfacesInResult(t *testing.T) {
	provider := newFakeCalendarProvider()
	registry := NewRegistry()
	RegisterCalendarTools(registry, &fakeCredentialSource{err: apperr.ConsentRequired("/oauth/url")}, provider, "UTC")

	result, err := registry.Execute(context.Background(), uuid.New(), "list_calendar_events", map[string]any{
		"start_datetime": "2025-01-26T00:00:00",
		"end_datetime":   "2025-01-26T23:59:59",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Error("expected a failed result without credentials")
	}
}

func TestParseTimeFlexibleFormats(t *testing.T) {
	cases := []string{
		"2025-01-26T10:00:00Z",
		"2025-01-26T10:00:00",
		"2025-01-26 10:00:00",
		"2025-01-26T10:00",
		"2025-01-26",
	}
	for _, raw := range cases {
		if _, err := parseTimeFlexible(raw, "America/Los_Angeles"); err != nil {
			t.Errorf("parseTimeFlexible(%q) failed: %v", raw, err)
		}
	}
	if _, err := parseTimeFlexible("tomorrow", "America/Los_Angeles"); err == nil {
		t.Error("expected an error for an unparseable datetime")
	}
}
