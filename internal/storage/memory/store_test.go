package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"focusflow/internal/model"
)

var base = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func row(id, cal string, startH, endH int) model.CalendarEvent {
	return model.CalendarEvent{
		ID:         id,
		CalendarID: cal,
		OwnerID:    "ada",
		Title:      id,
		Start:      base.Add(time.Duration(startH) * time.Hour),
		End:        base.Add(time.Duration(endH) * time.Hour),
	}
}

func TestCalendars(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCalendar(ctx, model.Calendar{ID: "work", OwnerID: "ada", Name: "Work"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateCalendar(ctx, model.Calendar{ID: "work", OwnerID: "ada"}); !errors.Is(err, model.ErrCalendarExists) {
		t.Fatalf("expected ErrCalendarExists, got %v", err)
	}
	if _, err := s.GetCalendar(ctx, "bob", "work"); !errors.Is(err, model.ErrCalendarNotFound) {
		t.Fatalf("other owners must not see the calendar, got %v", err)
	}
	if err := s.UpsertCalendar(ctx, model.Calendar{ID: "work", OwnerID: "ada", Name: "Work 2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	cal, err := s.GetCalendar(ctx, "ada", "work")
	if err != nil || cal.Name != "Work 2" {
		t.Fatalf("unexpected calendar %+v, %v", cal, err)
	}
	cals, _ := s.ListCalendars(ctx, "ada")
	if len(cals) != 1 {
		t.Fatalf("expected 1 calendar, got %d", len(cals))
	}
}

func TestEventsRangeAndReplace(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreateCalendar(ctx, model.Calendar{ID: "work", OwnerID: "ada"})
	_ = s.CreateCalendar(ctx, model.Calendar{ID: "home", OwnerID: "ada"})

	if _, err := s.InsertEvents(ctx, []model.CalendarEvent{row("x", "missing", 1, 2)}); !errors.Is(err, model.ErrCalendarNotFound) {
		t.Fatalf("expected ErrCalendarNotFound, got %v", err)
	}

	n, err := s.InsertEvents(ctx, []model.CalendarEvent{
		row("b", "work", 10, 11),
		row("a", "work", 9, 10),
		row("c", "home", 11, 12),
		row("point", "home", 12, 12),
	})
	if err != nil || n != 4 {
		t.Fatalf("insert: %d, %v", n, err)
	}

	got, err := s.ListEvents(ctx, "ada", base.Add(10*time.Hour), base.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// a ends exactly at 10:00 and the point event sits at the exclusive end.
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("unexpected rows: %+v", got)
	}

	if err := s.ReplaceCalendarEvents(ctx, "work", []model.CalendarEvent{row("d", "", 13, 14)}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ = s.ListEvents(ctx, "ada", base, base.Add(24*time.Hour))
	ids := ""
	for _, ev := range got {
		ids += ev.ID
	}
	if ids != "cpointd" {
		t.Fatalf("unexpected rows after replace: %q", ids)
	}

	if _, err := s.ListEvents(ctx, "ada", base.Add(time.Hour), base); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
