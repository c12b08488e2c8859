package layout

import (
	"math"
	"testing"
	"time"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRect(t *testing.T) {
	p := Placement{Column: 1, Span: 1, TotalColumns: 2}
	box := Rect(p, ev("a", "06:00", "12:00"), day)

	if !approx(box.Top, 0.25) || !approx(box.Height, 0.25) {
		t.Fatalf("unexpected vertical geometry: %+v", box)
	}
	if !approx(box.Left, 0.5) || !approx(box.Width, 0.5) {
		t.Fatalf("unexpected horizontal geometry: %+v", box)
	}
}

func TestRectClipsToDay(t *testing.T) {
	p := Placement{Column: 0, Span: 1, TotalColumns: 1}
	e := Event{ID: "overnight", Start: day.Add(-2 * time.Hour), End: day.Add(6 * time.Hour)}
	box := Rect(p, e, day)
	if !approx(box.Top, 0) || !approx(box.Height, 0.25) {
		t.Fatalf("expected clipped box, got %+v", box)
	}
}

func TestRectDSTDay(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2025-03-30 is 23 hours long in Berlin.
	dayStart := time.Date(2025, 3, 30, 0, 0, 0, 0, loc)
	e := Event{ID: "x", Start: dayStart, End: dayStart.AddDate(0, 0, 1)}
	box := Rect(Placement{Column: 0, Span: 1, TotalColumns: 1}, e, dayStart)
	if !approx(box.Height, 1) {
		t.Fatalf("expected full-day height on DST day, got %v", box.Height)
	}
}

func TestWeekStart(t *testing.T) {
	wed := time.Date(2025, 1, 15, 13, 45, 0, 0, time.UTC)

	if got := WeekStart(wed, time.Monday); !got.Equal(time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("monday start: got %v", got)
	}
	if got := WeekStart(wed, time.Sunday); !got.Equal(time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday start: got %v", got)
	}
	sun := time.Date(2025, 1, 19, 8, 0, 0, 0, time.UTC)
	if got := WeekStart(sun, time.Monday); !got.Equal(time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("sunday belongs to previous monday week: got %v", got)
	}
}

func TestWeekSplitsOvernightEvents(t *testing.T) {
	monday := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "late", Start: monday.Add(22 * time.Hour), End: monday.Add(26 * time.Hour)},
		{ID: "tue", Start: monday.Add(25 * time.Hour), End: monday.Add(27 * time.Hour)},
		{ID: "sun", Start: monday.AddDate(0, 0, 6).Add(9 * time.Hour), End: monday.AddDate(0, 0, 6).Add(10 * time.Hour)},
		{ID: "outside", Start: monday.AddDate(0, 0, 8), End: monday.AddDate(0, 0, 8).Add(time.Hour)},
	}

	days := Week(events, monday)
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}

	if _, ok := days[0].Placements["late"]; !ok {
		t.Fatalf("expected overnight event on monday")
	}
	if len(days[0].Events) != 1 || !days[0].Events[0].End.Equal(monday.AddDate(0, 0, 1)) {
		t.Fatalf("expected monday copy clipped at midnight: %+v", days[0].Events)
	}

	tue := days[1]
	if tue.Placements["late"].TotalColumns != 2 || tue.Placements["late"].Column == tue.Placements["tue"].Column {
		t.Fatalf("expected overnight tail to collide with tuesday event: %+v", tue.Placements)
	}
	if _, ok := days[6].Placements["sun"]; !ok {
		t.Fatalf("expected sunday event on last day")
	}
	for _, d := range days {
		if _, ok := d.Placements["outside"]; ok {
			t.Fatalf("event outside the week leaked into %v", d.Date)
		}
	}
	if len(days[3].Placements) != 0 {
		t.Fatalf("expected empty thursday, got %+v", days[3].Placements)
	}
}

func TestLayoutDayKeepsPointEventsAtMidnight(t *testing.T) {
	events := []Event{
		{ID: "start", Start: day, End: day},
		{ID: "next", Start: day.AddDate(0, 0, 1), End: day.AddDate(0, 0, 1)},
	}
	d := LayoutDay(events, day)
	if _, ok := d.Placements["start"]; !ok {
		t.Fatalf("expected point event at day start to be placed")
	}
	if _, ok := d.Placements["next"]; ok {
		t.Fatalf("point event at next midnight belongs to the next day")
	}
}
