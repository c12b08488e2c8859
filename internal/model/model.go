package model

import (
	"errors"
	"time"
)

var (
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrCalendarExists   = errors.New("calendar already exists")
	ErrEmptyICS         = errors.New("empty ICS content")
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidRange     = errors.New("invalid time range")
	ErrNameRequired     = errors.New("calendar name is required")
)

// CalendarSource tells where a calendar's events come from.
type CalendarSource string

const (
	SourceManual CalendarSource = "manual"
	SourceICS    CalendarSource = "ics"
	SourceGoogle CalendarSource = "google"
)

// Calendar is a named collection of events owned by one user.
type Calendar struct {
	ID      string
	OwnerID string
	Name    string
	Color   string
	// ICSURL is set for subscribed calendars.
	ICSURL string
	Source CalendarSource

	CreatedAt time.Time
}

// CalendarEvent is one persisted event row.
type CalendarEvent struct {
	ID         string
	CalendarID string
	OwnerID    string

	// ExternalUID is the iCalendar UID or Google event id, if any.
	ExternalUID string

	Title       string
	Description string
	Location    string

	AllDay bool

	// Start / End are absolute instants. All-day rows cover
	// [local midnight, next local midnight).
	Start time.Time
	End   time.Time

	CreatedAt time.Time
}

// Overlaps reports whether the row intersects the half-open window [from, to).
func (e CalendarEvent) Overlaps(from, to time.Time) bool {
	return e.Start.Before(to) && from.Before(e.End)
}

// Occurrence represents a single concrete instance of a feed event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// ToCalendarEvent turns an occurrence into a row for calendarID.
func (o Occurrence) ToCalendarEvent(calendarID, ownerID string) CalendarEvent {
	return CalendarEvent{
		CalendarID:  calendarID,
		OwnerID:     ownerID,
		ExternalUID: o.UID + "/" + o.InstanceKey,
		Title:       o.Summary,
		Description: o.Description,
		Location:    o.Location,
		AllDay:      o.AllDay,
		Start:       o.Start,
		End:         o.End,
	}
}
