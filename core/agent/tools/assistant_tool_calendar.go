package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"assistant_server/core/domain"
	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
)

// CredentialSource hands out a valid backend token for a user, refreshing or
// demanding consent as needed.
type CredentialSource interface {
	Acquire(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error)
}

const defaultCalendarID = "primary"

// Defaults applied to newly created events.
const (
	defaultEventDuration  = time.Hour
	defaultRecurrenceRule = "RRULE:FREQ=DAILY;COUNT=1"
)

type calendarToolBase struct {
	creds    CredentialSource
	provider out.CalendarProviderPort
	timezone string
}

func (b *calendarToolBase) token(ctx context.Context, userID uuid.UUID) (*oauth2.Token, *ToolResult) {
	token, err := b.creds.Acquire(ctx, userID)
	if err != nil {
		return nil, failedResult("calendar access unavailable", err)
	}
	return token, nil
}

// failedResult converts an adapter error into a tool failure the agent can
// relay to the user.
func failedResult(prefix string, err error) *ToolResult {
	if apperr.IsAppError(err) {
		return &ToolResult{Success: false, Error: fmt.Sprintf("%s: %s", prefix, apperr.AsAppError(err).Message)}
	}
	return &ToolResult{Success: false, Error: fmt.Sprintf("%s: %v", prefix, err)}
}

// NewCalendarTools builds the four calendar tools sharing one credential
// source and provider.
func NewCalendarTools(creds CredentialSource, provider out.CalendarProviderPort, timezone string) []Tool {
	base := calendarToolBase{creds: creds, provider: provider, timezone: timezone}
	return []Tool{
		&createEventTool{base},
		&listEventsTool{base},
		&updateEventTool{base},
		&deleteEventTool{base},
	}
}

// RegisterCalendarTools wires the calendar tools into a registry.
func RegisterCalendarTools(r *Registry, creds CredentialSource, provider out.CalendarProviderPort, timezone string) {
	for _, t := range NewCalendarTools(creds, provider, timezone) {
		r.Register(t)
	}
}

type createEventTool struct {
	calendarToolBase
}

func (t *createEventTool) Name() string     { return "create_calendar_event" }
func (t *createEventTool) Category() string { return "calendar" }
func (t *createEventTool) Description() string {
	return "Create a calendar event. Returns a link to the created event."
}

func (t *createEventTool) Parameters() *ToolParameters {
	return &ToolParameters{
		Type: "object",
		Properties: map[string]ParameterProperty{
			"summary":        {Type: "string", Description: "Event title"},
			"location":       {Type: "string", Description: "Where the event takes place"},
			"description":    {Type: "string", Description: "Event details"},
			"start_datetime": {Type: "string", Description: "Start time, e.g. 2025-01-26T10:00:00"},
			"end_datetime":   {Type: "string", Description: "End time; defaults to one hour after start"},
			"attendees": {
				Type:        "array",
				Description: "Attendee email addresses",
				Items:       &ParameterProperty{Type: "string", Description: "Email address"},
			},
		},
		Required: []string{"summary", "start_datetime"},
	}
}

func (t *createEventTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) (*ToolResult, error) {
	token, fail := t.token(ctx, userID)
	if fail != nil {
		return fail, nil
	}

	start, err := parseTimeFlexible(getString(args, "start_datetime"), t.timezone)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid start_datetime: %v", err)}, nil
	}
	end := start.Add(defaultEventDuration)
	if raw := getString(args, "end_datetime"); raw != "" {
		end, err = parseTimeFlexible(raw, t.timezone)
		if err != nil {
			return &ToolResult{Success: false, Error: fmt.Sprintf("invalid end_datetime: %v", err)}, nil
		}
	}
	if !end.After(start) {
		return &ToolResult{Success: false, Error: "end_datetime must be after start_datetime"}, nil
	}

	event := &out.ProviderCalendarEvent{
		CalendarID:  defaultCalendarID,
		Title:       getString(args, "summary"),
		Location:    getString(args, "location"),
		Description: getString(args, "description"),
		StartTime:   start,
		EndTime:     end,
		Timezone:    t.timezone,
		Reminders: []*out.ProviderReminder{
			{Method: "email", Minutes: 24 * 60},
			{Method: "popup", Minutes: 10},
		},
		RecurrenceRule: defaultRecurrenceRule,
	}
	for _, email := range getStringSlice(args, "attendees") {
		event.Attendees = append(event.Attendees, &out.ProviderAttendee{Email: email})
	}

	created, err := t.provider.CreateEvent(ctx, token, defaultCalendarID, event)
	if err != nil {
		return failedResult("failed to create event", err), nil
	}
	return &ToolResult{
		Success: true,
		Data:    eventView(created),
		Link:    created.HTMLLink,
	}, nil
}

type listEventsTool struct {
	calendarToolBase
}

func (t *listEventsTool) Name() string     { return "list_calendar_events" }
func (t *listEventsTool) Category() string { return "calendar" }
func (t *listEventsTool) Description() string {
	return "List calendar events within a time window."
}

func (t *listEventsTool) Parameters() *ToolParameters {
	return &ToolParameters{
		Type: "object",
		Properties: map[string]ParameterProperty{
			"start_datetime": {Type: "string", Description: "Window start, e.g. 2025-01-26T00:00:00"},
			"end_datetime":   {Type: "string", Description: "Window end, e.g. 2025-01-26T23:59:59"},
		},
		Required: []string{"start_datetime", "end_datetime"},
	}
}

func (t *listEventsTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) (*ToolResult, error) {
	token, fail := t.token(ctx, userID)
	if fail != nil {
		return fail, nil
	}

	timeMin, err := parseTimeFlexible(getString(args, "start_datetime"), t.timezone)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid start_datetime: %v", err)}, nil
	}
	timeMax, err := parseTimeFlexible(getString(args, "end_datetime"), t.timezone)
	if err != nil {
		return &ToolResult{Success: false, Error: fmt.Sprintf("invalid end_datetime: %v", err)}, nil
	}

	events, err := t.provider.ListEvents(ctx, token, &out.ProviderCalendarQuery{
		CalendarID: defaultCalendarID,
		TimeMin:    timeMin,
		TimeMax:    timeMax,
	})
	if err != nil {
		return failedResult("failed to list events", err), nil
	}

	views := make([]*domain.CalendarEvent, 0, len(events))
	for _, event := range events {
		views = append(views, eventView(event))
	}
	return &ToolResult{Success: true, Data: views}, nil
}

type updateEventTool struct {
	calendarToolBase
}

func (t *updateEventTool) Name() string     { return "update_calendar_event" }
func (t *updateEventTool) Category() string { return "calendar" }
func (t *updateEventTool) Description() string {
	return "Update fields of an existing calendar event. Returns a link to the updated event."
}

func (t *updateEventTool) Parameters() *ToolParameters {
	return &ToolParameters{
		Type: "object",
		Properties: map[string]ParameterProperty{
			"event_id":       {Type: "string", Description: "Identifier of the event to update"},
			"summary":        {Type: "string", Description: "New event title"},
			"location":       {Type: "string", Description: "New location"},
			"description":    {Type: "string", Description: "New details"},
			"start_datetime": {Type: "string", Description: "New start time"},
			"end_datetime":   {Type: "string", Description: "New end time"},
			"attendees": {
				Type:        "array",
				Description: "Replacement attendee email addresses",
				Items:       &ParameterProperty{Type: "string", Description: "Email address"},
			},
		},
		Required: []string{"event_id"},
	}
}

func (t *updateEventTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) (*ToolResult, error) {
	token, fail := t.token(ctx, userID)
	if fail != nil {
		return fail, nil
	}

	patch := &out.ProviderCalendarEvent{
		CalendarID:  defaultCalendarID,
		Title:       getString(args, "summary"),
		Location:    getString(args, "location"),
		Description: getString(args, "description"),
		Timezone:    t.timezone,
	}
	if raw := getString(args, "start_datetime"); raw != "" {
		start, err := parseTimeFlexible(raw, t.timezone)
		if err != nil {
			return &ToolResult{Success: false, Error: fmt.Sprintf("invalid start_datetime: %v", err)}, nil
		}
		patch.StartTime = start
	}
	if raw := getString(args, "end_datetime"); raw != "" {
		end, err := parseTimeFlexible(raw, t.timezone)
		if err != nil {
			return &ToolResult{Success: false, Error: fmt.Sprintf("invalid end_datetime: %v", err)}, nil
		}
		patch.EndTime = end
	}
	for _, email := range getStringSlice(args, "attendees") {
		patch.Attendees = append(patch.Attendees, &out.ProviderAttendee{Email: email})
	}

	eventID := getString(args, "event_id")
	updated, err := t.provider.UpdateEvent(ctx, token, defaultCalendarID, eventID, patch)
	if err != nil {
		return failedResult("failed to update event", err), nil
	}
	return &ToolResult{
		Success: true,
		Data:    eventView(updated),
		Link:    updated.HTMLLink,
	}, nil
}

type deleteEventTool struct {
	calendarToolBase
}

func (t *deleteEventTool) Name() string     { return "delete_calendar_event" }
func (t *deleteEventTool) Category() string { return "calendar" }
func (t *deleteEventTool) Description() string {
	return "Delete a calendar event by id. Returns the deleted event's link."
}

func (t *deleteEventTool) Parameters() *ToolParameters {
	return &ToolParameters{
		Type: "object",
		Properties: map[string]ParameterProperty{
			"event_id": {Type: "string", Description: "Identifier of the event to delete"},
		},
		Required: []string{"event_id"},
	}
}

func (t *deleteEventTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) (*ToolResult, error) {
	token, fail := t.token(ctx, userID)
	if fail != nil {
		return fail, nil
	}

	eventID := getString(args, "event_id")
	link, err := t.provider.DeleteEvent(ctx, token, defaultCalendarID, eventID)
	if err != nil {
		return failedResult("failed to delete event", err), nil
	}
	return &ToolResult{
		Success: true,
		Data:    map[string]string{"event_id": eventID, "link": link},
		Link:    link,
	}, nil
}

func eventView(event *out.ProviderCalendarEvent) *domain.CalendarEvent {
	view := &domain.CalendarEvent{
		ID:          event.ID,
		Summary:     event.Title,
		Location:    event.Location,
		Description: event.Description,
		Start:       event.StartTime,
		End:         event.EndTime,
		Timezone:    event.Timezone,
		HTMLLink:    event.HTMLLink,
		Status:      event.Status,
	}
	for _, a := range event.Attendees {
		view.Attendees = append(view.Attendees, domain.Attendee{Email: a.Email, Name: a.Name, Status: a.Status})
	}
	return view
}

func getString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getStringSlice(args map[string]any, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	switch typed := v.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimeFlexible accepts the datetime formats the engine tends to emit.
// Layouts without an offset are interpreted in the configured timezone.
func parseTimeFlexible(raw, timezone string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	for _, layout := range timeLayouts {
		if layout == time.RFC3339 {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed, nil
			}
			continue
		}
		if parsed, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format: %s", raw)
}
