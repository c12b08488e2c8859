package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"focusflow/internal/clock"
	"focusflow/internal/gcal"
	"focusflow/internal/ics"
	"focusflow/internal/layout"
	appLog "focusflow/internal/log"
	"focusflow/internal/model"
)

var ErrGoogleDisabled = errors.New("google calendar sync is not configured")

type EventStore interface {
	CreateCalendar(ctx context.Context, cal model.Calendar) error
	UpsertCalendar(ctx context.Context, cal model.Calendar) error
	GetCalendar(ctx context.Context, ownerID, id string) (model.Calendar, error)
	ListCalendars(ctx context.Context, ownerID string) ([]model.Calendar, error)
	InsertEvents(ctx context.Context, events []model.CalendarEvent) (int, error)
	ReplaceCalendarEvents(ctx context.Context, calendarID string, events []model.CalendarEvent) error
	ListEvents(ctx context.Context, ownerID string, from, to time.Time) ([]model.CalendarEvent, error)
}

// CalendarFetcher is satisfied by *ics.Fetcher.
type CalendarFetcher interface {
	FetchCalendar(ctx context.Context, rawURL string) ([]byte, error)
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// GoogleLister is satisfied by *gcal.Client.
type GoogleLister interface {
	List(ctx context.Context, calendarID string, from, to time.Time) ([]*calendar.Event, error)
}

// Subscription is a calendar kept in sync with a remote source, either an
// ICS URL or a Google calendar id.
type Subscription struct {
	CalendarID string
	OwnerID    string
	Name       string
	Source     model.CalendarSource
	URL        string
	GoogleID   string
}

type Options struct {
	// Location is the display timezone. Nil means UTC.
	Location     *time.Location
	FirstWeekday time.Weekday
	// HorizonDays and BackfillDays bound the window synced subscriptions
	// are expanded over, relative to now.
	HorizonDays   int
	BackfillDays  int
	Subscriptions []Subscription
}

type CalendarService struct {
	store   EventStore
	fetcher CalendarFetcher
	google  GoogleLister
	clock   clock.Clock
	opts    Options
}

func NewCalendarService(store EventStore, fetcher CalendarFetcher, clk clock.Clock, opts Options) *CalendarService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &CalendarService{
		store:   store,
		fetcher: fetcher,
		clock:   clk,
		opts:    opts,
	}
}

// SetGoogle enables Google subscriptions and SyncGoogle.
func (s *CalendarService) SetGoogle(g GoogleLister) {
	s.google = g
}

func (s *CalendarService) Location() *time.Location {
	return s.opts.Location
}

type CreateCalendarInput struct {
	OwnerID string
	Name    string
	Color   string
	ICSURL  string
}

func (s *CalendarService) CreateCalendar(ctx context.Context, in CreateCalendarInput) (model.Calendar, error) {
	if in.OwnerID == "" {
		return model.Calendar{}, model.ErrInvalidID
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.Calendar{}, model.ErrNameRequired
	}

	cal := model.Calendar{
		ID:        newUUID(),
		OwnerID:   in.OwnerID,
		Name:      strings.TrimSpace(in.Name),
		Color:     in.Color,
		Source:    model.SourceManual,
		CreatedAt: s.clock.Now(),
	}
	if in.ICSURL != "" {
		u, err := ics.NormalizeURL(in.ICSURL)
		if err != nil {
			return model.Calendar{}, err
		}
		cal.ICSURL = u
		cal.Source = model.SourceICS
	}

	if err := s.store.CreateCalendar(ctx, cal); err != nil {
		return model.Calendar{}, err
	}
	return cal, nil
}

func (s *CalendarService) ListCalendars(ctx context.Context, ownerID string) ([]model.Calendar, error) {
	if ownerID == "" {
		return nil, model.ErrInvalidID
	}
	return s.store.ListCalendars(ctx, ownerID)
}

// FetchICS downloads a remote calendar and checks it looks like one.
func (s *CalendarService) FetchICS(ctx context.Context, rawURL string) ([]byte, error) {
	return s.fetcher.FetchCalendar(ctx, rawURL)
}

// ImportResult reports what an import wrote. Records that parsed but could
// not become rows (inverted ranges) are counted in Skipped.
type ImportResult struct {
	Inserted int
	Skipped  int
	Warnings []ics.ParseWarning
}

// ImportICSText parses text and appends one row per record to the calendar.
func (s *CalendarService) ImportICSText(ctx context.Context, ownerID, calendarID, text string) (ImportResult, error) {
	if ownerID == "" || calendarID == "" {
		return ImportResult{}, model.ErrInvalidID
	}
	if strings.TrimSpace(text) == "" {
		return ImportResult{}, model.ErrEmptyICS
	}
	if _, err := s.store.GetCalendar(ctx, ownerID, calendarID); err != nil {
		return ImportResult{}, err
	}

	parsed := ics.ParseText(text)
	res := ImportResult{Warnings: parsed.Warnings}

	now := s.clock.Now()
	rows := make([]model.CalendarEvent, 0, len(parsed.Records))
	for _, rec := range parsed.Records {
		row, err := rec.ToCalendarEvent(calendarID, ownerID, s.opts.Location)
		if err != nil {
			appLog.Warn("ics import: record skipped", "calendar", calendarID, "summary", rec.Summary, "reason", err.Error())
			res.Skipped++
			continue
		}
		row.ID = newUUID()
		row.CreatedAt = now
		rows = append(rows, row)
	}

	n, err := s.store.InsertEvents(ctx, rows)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import ics: %w", err)
	}
	res.Inserted = n

	appLog.Info("ics import completed",
		"owner", ownerID,
		"calendar", calendarID,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// ImportICSURL fetches rawURL through the proxy path and imports its body.
func (s *CalendarService) ImportICSURL(ctx context.Context, ownerID, calendarID, rawURL string) (ImportResult, error) {
	body, err := s.fetcher.FetchCalendar(ctx, rawURL)
	if err != nil {
		return ImportResult{}, err
	}
	return s.ImportICSText(ctx, ownerID, calendarID, string(body))
}

// PlacedEvent is a timed event with its lane assignment and its box inside
// the day column. Event times are clipped to the day.
type PlacedEvent struct {
	Event     model.CalendarEvent
	Placement layout.Placement
	Box       layout.Box
}

type DayView struct {
	Date         time.Time
	AllDay       []model.CalendarEvent
	Timed        []PlacedEvent
	TotalColumns int
}

// DayLayout lays out the owner's events on the local day containing day.
func (s *CalendarService) DayLayout(ctx context.Context, ownerID string, day time.Time) (DayView, error) {
	if ownerID == "" {
		return DayView{}, model.ErrInvalidID
	}
	d := day.In(s.opts.Location)
	dayStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.opts.Location)

	rows, err := s.store.ListEvents(ctx, ownerID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return DayView{}, fmt.Errorf("day layout: %w", err)
	}
	allDay, timed := splitRows(rows)
	return buildView(layout.LayoutDay(timed, dayStart), rows, allDay), nil
}

// WeekLayout lays out the seven days of the week containing day, starting
// on the configured first weekday.
func (s *CalendarService) WeekLayout(ctx context.Context, ownerID string, day time.Time) ([]DayView, error) {
	if ownerID == "" {
		return nil, model.ErrInvalidID
	}
	weekStart := layout.WeekStart(day.In(s.opts.Location), s.opts.FirstWeekday)

	rows, err := s.store.ListEvents(ctx, ownerID, weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, fmt.Errorf("week layout: %w", err)
	}
	allDay, timed := splitRows(rows)

	days := layout.Week(timed, weekStart)
	out := make([]DayView, 0, len(days))
	for _, d := range days {
		out = append(out, buildView(d, rows, allDay))
	}
	return out, nil
}

func splitRows(rows []model.CalendarEvent) ([]model.CalendarEvent, []layout.Event) {
	var allDay []model.CalendarEvent
	timed := make([]layout.Event, 0, len(rows))
	for _, r := range rows {
		if r.AllDay {
			allDay = append(allDay, r)
			continue
		}
		timed = append(timed, layout.Event{ID: r.ID, Start: r.Start, End: r.End})
	}
	return allDay, timed
}

func buildView(d layout.Day, rows, allDay []model.CalendarEvent) DayView {
	dayEnd := d.Date.AddDate(0, 0, 1)
	byID := make(map[string]model.CalendarEvent, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	view := DayView{Date: d.Date, TotalColumns: 1, AllDay: []model.CalendarEvent{}}
	for _, r := range allDay {
		if r.Overlaps(d.Date, dayEnd) {
			view.AllDay = append(view.AllDay, r)
		}
	}

	view.Timed = make([]PlacedEvent, 0, len(d.Events))
	for _, ev := range d.Events {
		p := d.Placements[ev.ID]
		row := byID[ev.ID]
		row.Start, row.End = ev.Start, ev.End
		view.Timed = append(view.Timed, PlacedEvent{
			Event:     row,
			Placement: p,
			Box:       layout.Rect(p, ev, d.Date),
		})
		view.TotalColumns = p.TotalColumns
	}
	sort.SliceStable(view.Timed, func(i, j int) bool {
		return view.Timed[i].Event.Start.Before(view.Timed[j].Event.Start)
	})
	return view
}

// SyncResult describes one synced subscription.
type SyncResult struct {
	CalendarID string
	Source     model.CalendarSource
	Events     int
	FromCache  bool
	Truncated  []string
}

type SyncReport struct {
	Synced []SyncResult
	Errors []error
}

// SyncSubscriptions refreshes every configured subscription over
// [now-backfill, now+horizon). One failing source does not stop the others.
func (s *CalendarService) SyncSubscriptions(ctx context.Context) SyncReport {
	var report SyncReport
	now := s.clock.Now().In(s.opts.Location)
	from := now.AddDate(0, 0, -s.opts.BackfillDays)
	to := now.AddDate(0, 0, s.opts.HorizonDays)

	for _, sub := range s.opts.Subscriptions {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, ctx.Err())
			break
		}

		var (
			res SyncResult
			err error
		)
		switch sub.Source {
		case model.SourceGoogle:
			var n int
			n, err = s.SyncGoogle(ctx, sub.OwnerID, sub.CalendarID, sub.GoogleID)
			res = SyncResult{CalendarID: sub.CalendarID, Source: model.SourceGoogle, Events: n}
		default:
			res, err = s.syncICS(ctx, sub, from, to)
		}
		if err != nil {
			appLog.Error("subscription sync failed", err, "calendar", sub.CalendarID)
			report.Errors = append(report.Errors, fmt.Errorf("sync %s: %w", sub.CalendarID, err))
			continue
		}
		report.Synced = append(report.Synced, res)
	}

	appLog.Info("subscription sync completed",
		"synced", len(report.Synced),
		"failed", len(report.Errors),
		"range_start", from.Format(time.RFC3339),
		"range_end", to.Format(time.RFC3339),
	)
	return report
}

func (s *CalendarService) syncICS(ctx context.Context, sub Subscription, from, to time.Time) (SyncResult, error) {
	now := s.clock.Now()
	if err := s.store.UpsertCalendar(ctx, model.Calendar{
		ID:        sub.CalendarID,
		OwnerID:   sub.OwnerID,
		Name:      sub.Name,
		ICSURL:    sub.URL,
		Source:    model.SourceICS,
		CreatedAt: now,
	}); err != nil {
		return SyncResult{}, fmt.Errorf("upsert calendar: %w", err)
	}

	fetched, err := s.fetcher.FetchOne(ctx, ics.Source{ID: sub.CalendarID, URL: sub.URL})
	if err != nil {
		return SyncResult{}, err
	}
	parsed, err := ics.ParseFeed(fetched.Source, fetched.Body)
	if err != nil {
		return SyncResult{}, err
	}
	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: s.opts.Location,
		RangeStart:      from,
		RangeEnd:        to,
	})
	if err != nil {
		return SyncResult{}, err
	}

	rows := make([]model.CalendarEvent, 0, len(expanded.Occurrences))
	for _, occ := range expanded.Occurrences {
		row := occ.ToCalendarEvent(sub.CalendarID, sub.OwnerID)
		row.ID = newUUID()
		row.CreatedAt = now
		rows = append(rows, row)
	}
	if err := s.store.ReplaceCalendarEvents(ctx, sub.CalendarID, rows); err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		CalendarID: sub.CalendarID,
		Source:     model.SourceICS,
		Events:     len(rows),
		FromCache:  fetched.FromCache,
		Truncated:  expanded.TruncatedEvents,
	}, nil
}

// SyncGoogle replaces the rows of calendarID with the events of the Google
// calendar googleID in the sync window. The calendar is created on first use.
func (s *CalendarService) SyncGoogle(ctx context.Context, ownerID, calendarID, googleID string) (int, error) {
	if s.google == nil {
		return 0, ErrGoogleDisabled
	}
	if ownerID == "" || calendarID == "" || googleID == "" {
		return 0, model.ErrInvalidID
	}

	now := s.clock.Now()
	_, err := s.store.GetCalendar(ctx, ownerID, calendarID)
	switch {
	case errors.Is(err, model.ErrCalendarNotFound):
		err = s.store.CreateCalendar(ctx, model.Calendar{
			ID:        calendarID,
			OwnerID:   ownerID,
			Name:      googleID,
			Source:    model.SourceGoogle,
			CreatedAt: now,
		})
		if err != nil {
			return 0, fmt.Errorf("create google calendar: %w", err)
		}
	case err != nil:
		return 0, err
	}

	local := now.In(s.opts.Location)
	items, err := s.google.List(ctx, googleID,
		local.AddDate(0, 0, -s.opts.BackfillDays),
		local.AddDate(0, 0, s.opts.HorizonDays))
	if err != nil {
		return 0, err
	}

	rows := gcal.ToCalendarEvents(items, calendarID, ownerID, s.opts.Location)
	for i := range rows {
		rows[i].ID = newUUID()
		rows[i].CreatedAt = now
	}
	if err := s.store.ReplaceCalendarEvents(ctx, calendarID, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
