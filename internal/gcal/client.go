// Package gcal pulls events from Google Calendar. Obtaining the OAuth token
// is someone else's job; the client only needs a valid access token.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "focusflow/internal/log"
	"focusflow/internal/model"
)

var ErrNoToken = errors.New("gcal: access token is empty")

type Client struct {
	svc *calendar.Service
}

// New builds a client authorized with a static access token.
func New(ctx context.Context, accessToken string, opts ...option.ClientOption) (*Client, error) {
	if accessToken == "" {
		return nil, ErrNoToken
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return NewWithOptions(ctx, append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)...)
}

// NewWithOptions exposes the raw client options (endpoint, HTTP client).
func NewWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: new service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// List returns the single (recurrence-expanded) events of calendarID
// intersecting [from, to), ordered by start.
func (c *Client) List(ctx context.Context, calendarID string, from, to time.Time) ([]*calendar.Event, error) {
	var out []*calendar.Event
	call := c.svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(250)

	err := call.Pages(ctx, func(page *calendar.Events) error {
		out = append(out, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gcal: list %s: %w", calendarID, err)
	}
	appLog.Debug("gcal list completed", "calendar", calendarID, "count", len(out))
	return out, nil
}

// ToCalendarEvents maps API events into rows. Cancelled events and events
// without a usable start are skipped. All-day dates are anchored in loc.
func ToCalendarEvents(items []*calendar.Event, calendarID, ownerID string, loc *time.Location) []model.CalendarEvent {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]model.CalendarEvent, 0, len(items))
	for _, it := range items {
		if it == nil || it.Status == "cancelled" {
			continue
		}
		start, allDay, err := eventTime(it.Start, loc)
		if err != nil {
			appLog.Warn("gcal event skipped", "id", it.Id, "reason", err.Error())
			continue
		}
		end, _, err := eventTime(it.End, loc)
		if err != nil || end.Before(start) {
			end = start
			if allDay {
				end = start.AddDate(0, 0, 1)
			}
		}

		out = append(out, model.CalendarEvent{
			CalendarID:  calendarID,
			OwnerID:     ownerID,
			ExternalUID: it.Id,
			Title:       it.Summary,
			Description: it.Description,
			Location:    it.Location,
			AllDay:      allDay,
			Start:       start,
			End:         end,
		})
	}
	return out
}

func eventTime(dt *calendar.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	switch {
	case dt == nil:
		return time.Time{}, false, errors.New("missing time")
	case dt.DateTime != "":
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err
	case dt.Date != "":
		t, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
		return t, true, err
	default:
		return time.Time{}, false, errors.New("empty time")
	}
}
