package out

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// ProviderCalendarEvent is the event shape exchanged with the calendar backend.
// The core never caches these; every list/update/delete re-fetches.
type ProviderCalendarEvent struct {
	ID                string              `json:"id"`
	CalendarID        string              `json:"calendar_id"`
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	Location          string              `json:"location,omitempty"`
	StartTime         time.Time           `json:"start_time"`
	EndTime           time.Time           `json:"end_time"`
	Timezone          string              `json:"timezone,omitempty"`
	IsAllDay          bool                `json:"is_all_day,omitempty"`
	Attendees         []*ProviderAttendee `json:"attendees,omitempty"`
	Reminders         []*ProviderReminder `json:"reminders,omitempty"`
	RecurrenceRule    string              `json:"recurrence_rule,omitempty"`
	SendNotifications string              `json:"send_notifications,omitempty"` // all, externalOnly, none
	HTMLLink          string              `json:"html_link,omitempty"`
	Status            string              `json:"status,omitempty"`
}

// ProviderAttendee is an event participant.
type ProviderAttendee struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Status   string `json:"status,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// ProviderReminder is a notification override on an event.
type ProviderReminder struct {
	Method  string `json:"method"` // email, popup
	Minutes int    `json:"minutes"`
}

// ProviderCalendarQuery bounds a list call.
type ProviderCalendarQuery struct {
	CalendarID string
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int
}

// CalendarProviderPort is the calendar tool adapter boundary: four operations
// against the calendar backend, credential supplied per call. Failures are
// normalized to apperr.BackendError at the adapter, never panics.
type CalendarProviderPort interface {
	CreateEvent(ctx context.Context, token *oauth2.Token, calendarID string, event *ProviderCalendarEvent) (*ProviderCalendarEvent, error)
	ListEvents(ctx context.Context, token *oauth2.Token, query *ProviderCalendarQuery) ([]*ProviderCalendarEvent, error)
	UpdateEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string, event *ProviderCalendarEvent) (*ProviderCalendarEvent, error)
	// DeleteEvent removes the event and returns the deleted event's link.
	DeleteEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string) (string, error)
}
