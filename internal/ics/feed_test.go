package ics

import (
	"os"
	"testing"
	"time"
)

func loadFixture(t *testing.T) []ParsedEvent {
	t.Helper()
	body, err := os.ReadFile("testdata/team.ics")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	events, err := ParseFeed(Source{ID: "team", URL: "https://example.com/team.ics"}, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return events
}

func TestParseFeed(t *testing.T) {
	events := loadFixture(t)
	if len(events) != 3 {
		t.Fatalf("expected 3 events (uid-less one skipped), got %d", len(events))
	}

	base := events[0]
	if base.UID != "weekly@test" || base.RawRRule != "FREQ=WEEKLY;COUNT=4" || base.IsOverride {
		t.Fatalf("unexpected base event: %+v", base)
	}
	if len(base.ExDates) != 1 || !base.ExDates[0].Equal(time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected exdates: %v", base.ExDates)
	}

	override := events[1]
	if !override.IsOverride || override.Recurrence == nil {
		t.Fatalf("expected override, got %+v", override)
	}

	if !events[2].AllDay || events[2].Summary != "Holiday" {
		t.Fatalf("expected all-day holiday, got %+v", events[2])
	}
}

func TestParseFeedEmpty(t *testing.T) {
	if _, err := ParseFeed(Source{ID: "x"}, []byte("  \n")); err == nil {
		t.Fatalf("expected error for empty body")
	}
}

func TestExpandOccurrences(t *testing.T) {
	events := loadFixture(t)
	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	want := []struct {
		summary string
		day     int
	}{
		{"Standup", 6},
		{"Holiday", 8},
		{"Standup (moved)", 20},
		{"Standup", 27},
	}
	if len(res.Occurrences) != len(want) {
		t.Fatalf("expected %d occurrences, got %+v", len(want), res.Occurrences)
	}
	for i, w := range want {
		occ := res.Occurrences[i]
		if occ.Summary != w.summary || occ.Start.Day() != w.day {
			t.Fatalf("occurrence %d: expected %s on day %d, got %s on %v", i, w.summary, w.day, occ.Summary, occ.Start)
		}
	}
	if moved := res.Occurrences[2]; moved.Start.Hour() != 10 || moved.End.Sub(moved.Start) != 30*time.Minute {
		t.Fatalf("override times not applied: %+v", moved)
	}
	if len(res.TruncatedEvents) != 0 {
		t.Fatalf("unexpected truncation: %v", res.TruncatedEvents)
	}
}

func TestExpandOccurrencesCap(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	events := []ParsedEvent{{
		UID:      "daily",
		Summary:  "Walk",
		Start:    start,
		End:      start.Add(time.Hour),
		RawRRule: "FREQ=DAILY",
	}}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             start,
		RangeEnd:               start.AddDate(0, 0, 30),
		MaxOccurrencesPerEvent: 3,
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(res.Occurrences) != 3 {
		t.Fatalf("expected 3 occurrences, got %d", len(res.Occurrences))
	}
	if len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "daily" {
		t.Fatalf("expected truncation record, got %v", res.TruncatedEvents)
	}
}

func TestExpandOccurrencesKeepsRunningInstance(t *testing.T) {
	start := time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC)
	events := []ParsedEvent{{
		UID:      "night",
		Summary:  "Shift",
		Start:    start,
		End:      start.Add(4 * time.Hour),
		RawRRule: "FREQ=DAILY;COUNT=2",
	}}

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(res.Occurrences) != 1 || !res.Occurrences[0].Start.Equal(start) {
		t.Fatalf("expected the instance running past midnight, got %+v", res.Occurrences)
	}
}

func TestExpandOccurrencesRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	if _, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestExpandAllDayInDisplayZone(t *testing.T) {
	const body = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\nUID:offsite\r\nDTSTAMP:20250101T000000Z\r\n" +
		"DTSTART;VALUE=DATE:20250115\r\nDTEND;VALUE=DATE:20250116\r\nSUMMARY:Offsite\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:retreat\r\nDTSTAMP:20250101T000000Z\r\n" +
		"DTSTART;VALUE=DATE:20250120\r\nRRULE:FREQ=DAILY;COUNT=2\r\nSUMMARY:Retreat\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	events, err := ParseFeed(Source{ID: "team"}, []byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	loc := time.FixedZone("UTC-5", -5*60*60)
	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      time.Date(2025, 1, 1, 0, 0, 0, 0, loc),
		RangeEnd:        time.Date(2025, 2, 1, 0, 0, 0, 0, loc),
	})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	want := []struct {
		summary string
		day     int
	}{
		{"Offsite", 15},
		{"Retreat", 20},
		{"Retreat", 21},
	}
	if len(res.Occurrences) != len(want) {
		t.Fatalf("expected %d occurrences, got %+v", len(want), res.Occurrences)
	}
	for i, w := range want {
		occ := res.Occurrences[i]
		start := time.Date(2025, 1, w.day, 0, 0, 0, 0, loc)
		if occ.Summary != w.summary || !occ.AllDay {
			t.Fatalf("occurrence %d: unexpected %+v", i, occ)
		}
		if !occ.Start.Equal(start) || !occ.End.Equal(start.AddDate(0, 0, 1)) {
			t.Fatalf("occurrence %d: expected [%v, %v), got [%v, %v)", i, start, start.AddDate(0, 0, 1), occ.Start, occ.End)
		}
	}
}
