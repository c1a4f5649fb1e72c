package domain

import "time"

// CalendarEvent is the core view of a backend calendar event, as rendered to
// the agent and to API clients.
type CalendarEvent struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Timezone    string     `json:"timezone,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	HTMLLink    string     `json:"html_link,omitempty"`
	Status      string     `json:"status,omitempty"`
}

// Attendee is an invited participant on an event.
type Attendee struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}
