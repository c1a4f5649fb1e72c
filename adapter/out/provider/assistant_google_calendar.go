package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
	"assistant_server/pkg/logger"
)

// GoogleCalendarAdapter talks to the Google Calendar API behind a circuit
// breaker. Client-side errors (4xx) are reported but do not trip the breaker.
type GoogleCalendarAdapter struct {
	oauthConfig *oauth2.Config
	breaker     *gobreaker.CircuitBreaker
	log         *logger.Logger
}

var _ out.CalendarProviderPort = (*GoogleCalendarAdapter)(nil)

// nonCircuitError marks failures that should not count against the breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }

// NewGoogleCalendarAdapter builds the adapter.
func NewGoogleCalendarAdapter(oauthConfig *oauth2.Config) *GoogleCalendarAdapter {
	settings := gobreaker.Settings{
		Name:        "google-calendar",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures > 5 {
				return true
			}
			return counts.Requests >= 10 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var nce *nonCircuitError
			return errors.As(err, &nce)
		},
	}
	return &GoogleCalendarAdapter{
		oauthConfig: oauthConfig,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		log:         logger.Default().WithField("component", "google-calendar"),
	}
}

// CreateEvent inserts an event and returns it with its link.
func (a *GoogleCalendarAdapter) CreateEvent(ctx context.Context, token *oauth2.Token, calendarID string, event *out.ProviderCalendarEvent) (*out.ProviderCalendarEvent, error) {
	created, err := a.execute(ctx, token, func(svc *calendar.Service) (any, error) {
		call := svc.Events.Insert(calendarID, toGoogleEvent(event)).Context(ctx)
		if len(event.Attendees) > 0 {
			call = call.SendUpdates(sendUpdatesMode(event.SendNotifications))
		}
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return convertEvent(created.(*calendar.Event), calendarID), nil
}

// ListEvents returns the events in the query window, expanded and ordered by
// start time. Transient backend failures are retried once.
func (a *GoogleCalendarAdapter) ListEvents(ctx context.Context, token *oauth2.Token, query *out.ProviderCalendarQuery) ([]*out.ProviderCalendarEvent, error) {
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}

	list, err := a.executeWithRetry(ctx, token, func(svc *calendar.Service) (any, error) {
		return svc.Events.List(query.CalendarID).
			Context(ctx).
			SingleEvents(true).
			OrderBy("startTime").
			TimeMin(query.TimeMin.Format(time.RFC3339)).
			TimeMax(query.TimeMax.Format(time.RFC3339)).
			MaxResults(int64(maxResults)).
			Do()
	})
	if err != nil {
		return nil, err
	}

	items := list.(*calendar.Events).Items
	events := make([]*out.ProviderCalendarEvent, 0, len(items))
	for _, item := range items {
		events = append(events, convertEvent(item, query.CalendarID))
	}
	return events, nil
}

// UpdateEvent patches the given fields of an event and returns the result.
func (a *GoogleCalendarAdapter) UpdateEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string, event *out.ProviderCalendarEvent) (*out.ProviderCalendarEvent, error) {
	updated, err := a.execute(ctx, token, func(svc *calendar.Service) (any, error) {
		return svc.Events.Patch(calendarID, eventID, toGooglePatch(event)).Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return convertEvent(updated.(*calendar.Event), calendarID), nil
}

// DeleteEvent removes an event and returns the deleted event's link.
func (a *GoogleCalendarAdapter) DeleteEvent(ctx context.Context, token *oauth2.Token, calendarID, eventID string) (string, error) {
	existing, err := a.execute(ctx, token, func(svc *calendar.Service) (any, error) {
		return svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	link := existing.(*calendar.Event).HtmlLink

	_, err = a.execute(ctx, token, func(svc *calendar.Service) (any, error) {
		return nil, svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return link, nil
}

func (a *GoogleCalendarAdapter) service(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	client := a.oauthConfig.Client(ctx, token)
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

func (a *GoogleCalendarAdapter) execute(ctx context.Context, token *oauth2.Token, fn func(*calendar.Service) (any, error)) (any, error) {
	result, err := a.breaker.Execute(func() (any, error) {
		svc, err := a.service(ctx, token)
		if err != nil {
			return nil, err
		}
		out, err := fn(svc)
		if err != nil && isClientError(err) {
			return nil, &nonCircuitError{err: err}
		}
		return out, err
	})
	if err != nil {
		return nil, toBackendError(err)
	}
	return result, nil
}

func (a *GoogleCalendarAdapter) executeWithRetry(ctx context.Context, token *oauth2.Token, fn func(*calendar.Service) (any, error)) (any, error) {
	result, err := a.execute(ctx, token, fn)
	if err == nil || !isRetryable(err) {
		return result, err
	}

	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
		return nil, toBackendError(ctx.Err())
	}
	a.log.Warn("retrying calendar request after transient failure")
	return a.execute(ctx, token, fn)
}

func isClientError(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code >= 400 && gErr.Code < 500
}

func isRetryable(err error) bool {
	if !apperr.IsAppError(err) {
		return false
	}
	code, _ := apperr.AsAppError(err).Details["backend_code"].(string)
	switch code {
	case "500", "502", "503", "504":
		return true
	}
	return false
}

// toBackendError normalizes adapter failures to the backend error shape the
// tools relay to the user.
func toBackendError(err error) error {
	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		message := gErr.Message
		if message == "" {
			message = fmt.Sprintf("calendar backend returned status %d", gErr.Code)
		}
		return apperr.BackendError(strconv.Itoa(gErr.Code), message, err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.BackendError("unavailable", "calendar backend is temporarily unavailable", err)
	}
	return apperr.BackendError("request_failed", err.Error(), err)
}

func sendUpdatesMode(mode string) string {
	switch mode {
	case "all", "externalOnly", "none":
		return mode
	}
	return "all"
}

func toGoogleEvent(event *out.ProviderCalendarEvent) *calendar.Event {
	gEvent := &calendar.Event{
		Summary:     event.Title,
		Location:    event.Location,
		Description: event.Description,
		Start:       toEventDateTime(event.StartTime, event.Timezone, event.IsAllDay),
		End:         toEventDateTime(event.EndTime, event.Timezone, event.IsAllDay),
	}
	if event.RecurrenceRule != "" {
		gEvent.Recurrence = []string{event.RecurrenceRule}
	}
	for _, attendee := range event.Attendees {
		gEvent.Attendees = append(gEvent.Attendees, &calendar.EventAttendee{
			Email:       attendee.Email,
			DisplayName: attendee.Name,
			Optional:    attendee.Optional,
		})
	}
	if len(event.Reminders) > 0 {
		overrides := make([]*calendar.EventReminder, 0, len(event.Reminders))
		for _, reminder := range event.Reminders {
			overrides = append(overrides, &calendar.EventReminder{
				Method:  reminder.Method,
				Minutes: int64(reminder.Minutes),
			})
		}
		gEvent.Reminders = &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}
	return gEvent
}

// toGooglePatch maps only the fields the caller set, so untouched fields
// survive the patch.
func toGooglePatch(event *out.ProviderCalendarEvent) *calendar.Event {
	patch := &calendar.Event{
		Summary:     event.Title,
		Location:    event.Location,
		Description: event.Description,
	}
	if !event.StartTime.IsZero() {
		patch.Start = toEventDateTime(event.StartTime, event.Timezone, event.IsAllDay)
	}
	if !event.EndTime.IsZero() {
		patch.End = toEventDateTime(event.EndTime, event.Timezone, event.IsAllDay)
	}
	for _, attendee := range event.Attendees {
		patch.Attendees = append(patch.Attendees, &calendar.EventAttendee{
			Email:       attendee.Email,
			DisplayName: attendee.Name,
			Optional:    attendee.Optional,
		})
	}
	return patch
}

func toEventDateTime(t time.Time, timezone string, allDay bool) *calendar.EventDateTime {
	if allDay {
		return &calendar.EventDateTime{Date: t.Format("2006-01-02")}
	}
	return &calendar.EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: timezone,
	}
}

func convertEvent(gEvent *calendar.Event, calendarID string) *out.ProviderCalendarEvent {
	event := &out.ProviderCalendarEvent{
		ID:          gEvent.Id,
		CalendarID:  calendarID,
		Title:       gEvent.Summary,
		Description: gEvent.Description,
		Location:    gEvent.Location,
		HTMLLink:    gEvent.HtmlLink,
		Status:      gEvent.Status,
	}
	if gEvent.Start != nil {
		if gEvent.Start.DateTime != "" {
			event.StartTime, _ = time.Parse(time.RFC3339, gEvent.Start.DateTime)
			event.Timezone = gEvent.Start.TimeZone
		} else if gEvent.Start.Date != "" {
			event.StartTime, _ = time.Parse("2006-01-02", gEvent.Start.Date)
			event.IsAllDay = true
		}
	}
	if gEvent.End != nil {
		if gEvent.End.DateTime != "" {
			event.EndTime, _ = time.Parse(time.RFC3339, gEvent.End.DateTime)
		} else if gEvent.End.Date != "" {
			event.EndTime, _ = time.Parse("2006-01-02", gEvent.End.Date)
		}
	}
	for _, attendee := range gEvent.Attendees {
		event.Attendees = append(event.Attendees, &out.ProviderAttendee{
			Email:    attendee.Email,
			Name:     attendee.DisplayName,
			Status:   attendee.ResponseStatus,
			Optional: attendee.Optional,
		})
	}
	if gEvent.Reminders != nil {
		for _, override := range gEvent.Reminders.Overrides {
			event.Reminders = append(event.Reminders, &out.ProviderReminder{
				Method:  override.Method,
				Minutes: int(override.Minutes),
			})
		}
	}
	if len(gEvent.Recurrence) > 0 {
		event.RecurrenceRule = gEvent.Recurrence[0]
	}
	return event
}
