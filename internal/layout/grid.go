package layout

import "time"

// Box is the rectangle of an event inside one day column. All values are
// fractions in [0, 1]: Top/Height of the day's length, Left/Width of the day
// column's width.
type Box struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
}

// Rect computes the box for ev placed at p inside the day starting at
// dayStart. The event is clipped to the day. Day length follows the calendar
// (23h or 25h on DST changes).
func Rect(p Placement, ev Event, dayStart time.Time) Box {
	dayEnd := dayStart.AddDate(0, 0, 1)
	dayLen := dayEnd.Sub(dayStart)

	start, end := clip(ev.Start, ev.End, dayStart, dayEnd)

	total := p.TotalColumns
	if total < 1 {
		total = 1
	}

	return Box{
		Top:    float64(start.Sub(dayStart)) / float64(dayLen),
		Height: float64(end.Sub(start)) / float64(dayLen),
		Left:   float64(p.Column) / float64(total),
		Width:  float64(p.Span) / float64(total),
	}
}

// Day is one column of a week grid.
type Day struct {
	Date time.Time
	// Events holds the events touching this day, clipped to it.
	Events     []Event
	Placements map[string]Placement
}

// LayoutDay clips events to the day starting at dayStart, drops those not
// touching it and places the rest.
func LayoutDay(events []Event, dayStart time.Time) Day {
	dayEnd := dayStart.AddDate(0, 0, 1)

	var dayEvents []Event
	for _, ev := range events {
		if !touches(ev, dayStart, dayEnd) {
			continue
		}
		s, e := clip(ev.Start, ev.End, dayStart, dayEnd)
		dayEvents = append(dayEvents, Event{ID: ev.ID, Start: s, End: e})
	}

	return Day{
		Date:       dayStart,
		Events:     dayEvents,
		Placements: Compute(dayEvents),
	}
}

// Week lays out events over the seven days starting at weekStart (expected
// to be a local midnight). Events spanning midnight show up, clipped, in
// every day they touch. All-day events should be filtered by the caller.
func Week(events []Event, weekStart time.Time) []Day {
	loc := weekStart.Location()
	days := make([]Day, 0, 7)
	for i := 0; i < 7; i++ {
		dayStart := time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day()+i, 0, 0, 0, 0, loc)
		days = append(days, LayoutDay(events, dayStart))
	}
	return days
}

// WeekStart returns local midnight of the first weekday on or before t.
func WeekStart(t time.Time, first time.Weekday) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(d.Weekday()) - int(first) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

func touches(ev Event, from, to time.Time) bool {
	if ev.Start.Equal(ev.End) {
		return !ev.Start.Before(from) && ev.Start.Before(to)
	}
	return ev.Start.Before(to) && from.Before(ev.End)
}

func clip(start, end, from, to time.Time) (time.Time, time.Time) {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if end.Before(start) {
		end = start
	}
	return start, end
}
