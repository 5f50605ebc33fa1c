// Package gcal lists today's events from a Google Calendar.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"gcalpaper/internal/fault"
	"gcalpaper/internal/log"
	"gcalpaper/internal/model"
)

// APITimeout is the timeout for a single list call.
const APITimeout = 15 * time.Second

// Client lists events of one calendar.
type Client struct {
	svc        *calendar.Service
	calendarID string
}

// New creates a calendar client that authenticates with httpClient
// (typically auth.Authenticator.Client). Extra options are appended, so
// tests can point the service at a local endpoint.
func New(ctx context.Context, httpClient *http.Client, calendarID string, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{svc: svc, calendarID: calendarID}, nil
}

// Events returns up to q.MaxResults single (recurrences expanded) events
// overlapping [q.TimeMin, q.TimeMax], ordered by start time. An empty
// result is not an error.
func (c *Client) Events(ctx context.Context, q model.EventQuery) ([]model.CalendarEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	log.Debug("fetching calendar events", "calendar", c.calendarID, "from", q.TimeMin, "to", q.TimeMax)

	call := c.svc.Events.List(c.calendarID).
		TimeMin(q.TimeMin).
		TimeMax(q.TimeMax).
		OrderBy("startTime").
		SingleEvents(true)
	if q.MaxResults > 0 {
		call = call.MaxResults(int64(q.MaxResults))
	}
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}

	events := make([]model.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		if q.MaxResults > 0 && len(events) == q.MaxResults {
			break
		}
		events = append(events, toEvent(item))
	}
	if len(events) == 0 {
		log.Info("no events scheduled for today")
	}
	return events, nil
}

func toEvent(item *calendar.Event) model.CalendarEvent {
	ev := model.CalendarEvent{Summary: item.Summary}
	if item.Start != nil && item.Start.DateTime != "" {
		dt := item.Start.DateTime
		ev.Start = &dt
	}
	return ev
}

func wrapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return fault.Refused("calendar list", err)
	}
	return fault.Network("calendar list", err)
}
