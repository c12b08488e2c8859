package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"focusflow/internal/model"
)

func doc(lines ...string) string {
	return strings.Join(lines, "\r\n")
}

func TestParseTextWellFormedBlock(t *testing.T) {
	res := ParseText(doc(
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"DTSTART:20250115T090000Z",
		"DTEND:20250115T100000Z",
		"SUMMARY:Test",
		"END:VEVENT",
		"END:VCALENDAR",
	))

	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d (%+v)", len(res.Records), res.Warnings)
	}
	r := res.Records[0]
	if r.Summary != "Test" {
		t.Fatalf("unexpected summary %q", r.Summary)
	}
	if r.Start.DateTime != "2025-01-15T09:00:00Z" || r.End == nil || r.End.DateTime != "2025-01-15T10:00:00Z" {
		t.Fatalf("unexpected times: start=%+v end=%+v", r.Start, r.End)
	}
	if r.IsAllDay {
		t.Fatalf("timed event flagged all-day")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", res.Warnings)
	}
}

func TestParseTextAllDay(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "value date param", line: "DTSTART;VALUE=DATE:20250115"},
		{name: "bare eight digits", line: "DTSTART:20250115"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseText(doc("BEGIN:VEVENT", tt.line, "SUMMARY:Holiday", "END:VEVENT"))
			if len(res.Records) != 1 {
				t.Fatalf("expected 1 record, got %+v", res)
			}
			r := res.Records[0]
			if r.Start.Date != "2025-01-15" || r.Start.DateTime != "" || !r.IsAllDay {
				t.Fatalf("unexpected all-day decoding: %+v", r)
			}
		})
	}
}

func TestParseTextDropsIncompleteBlocks(t *testing.T) {
	res := ParseText(doc(
		"BEGIN:VEVENT",
		"DTSTART:20250115T090000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:No start",
		"END:VEVENT",
	))
	if len(res.Records) != 0 {
		t.Fatalf("expected no records, got %+v", res.Records)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", res.Warnings)
	}
	if res.Warnings[0].Line != 1 || !strings.Contains(res.Warnings[0].Reason, "SUMMARY") {
		t.Fatalf("unexpected first warning: %+v", res.Warnings[0])
	}
	if res.Warnings[1].Line != 4 || !strings.Contains(res.Warnings[1].Reason, "DTSTART") {
		t.Fatalf("unexpected second warning: %+v", res.Warnings[1])
	}
}

func TestParseTextMultipleEventsInOrder(t *testing.T) {
	res := ParseText(doc(
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT", "DTSTART:20250115T090000Z", "SUMMARY:first", "END:VEVENT",
		"BEGIN:VEVENT", "DTSTART:20250114T090000Z", "SUMMARY:second", "END:VEVENT",
		"BEGIN:VEVENT", "DTSTART:20250116", "SUMMARY:third", "END:VEVENT",
		"END:VCALENDAR",
	))
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}
	for i, want := range []string{"first", "second", "third"} {
		if res.Records[i].Summary != want {
			t.Fatalf("record %d: expected %q, got %q", i, want, res.Records[i].Summary)
		}
	}
}

func TestParseTextIgnoresUnknownProperties(t *testing.T) {
	res := ParseText(doc(
		"BEGIN:VEVENT",
		"X-APPLE-TRAVEL-ADVISORY-BEHAVIOR:AUTOMATIC",
		"DTSTAMP:20250101T000000Z",
		"RRULE:FREQ=WEEKLY",
		"UID:abc-123@example.com",
		"DTSTART;TZID=Europe/Berlin:20250115T090000",
		"SUMMARY:Standup",
		"LOCATION:Room 4",
		"DESCRIPTION:Agenda: updates",
		"garbage line without colon",
		"END:VEVENT",
	))
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %+v", res)
	}
	r := res.Records[0]
	if r.UID != "abc-123@example.com" || r.Location != "Room 4" || r.Description != "Agenda: updates" {
		t.Fatalf("unexpected record: %+v", r)
	}
	// TZID is not interpreted; the wall clock is kept as UTC.
	if r.Start.DateTime != "2025-01-15T09:00:00Z" {
		t.Fatalf("unexpected start %+v", r.Start)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unknown properties must not warn: %+v", res.Warnings)
	}
}

func TestParseTextBadDateWarns(t *testing.T) {
	res := ParseText(doc(
		"BEGIN:VEVENT",
		"DTSTART:2025-01-15",
		"SUMMARY:Broken",
		"END:VEVENT",
	))
	if len(res.Records) != 0 {
		t.Fatalf("expected record dropped, got %+v", res.Records)
	}
	if len(res.Warnings) != 2 || res.Warnings[0].Line != 2 {
		t.Fatalf("expected date warning then drop warning, got %+v", res.Warnings)
	}
}

func TestParseTextUnterminatedBlocks(t *testing.T) {
	res := ParseText(doc(
		"BEGIN:VEVENT",
		"DTSTART:20250115T090000Z",
		"SUMMARY:lost",
		"BEGIN:VEVENT",
		"DTSTART:20250115T100000Z",
		"SUMMARY:kept",
		"END:VEVENT",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:tail",
	))
	if len(res.Records) != 1 || res.Records[0].Summary != "kept" {
		t.Fatalf("unexpected records: %+v", res.Records)
	}
	if len(res.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %+v", res.Warnings)
	}
}

func TestParseTextEmpty(t *testing.T) {
	res := ParseText("")
	if res.Records == nil || len(res.Records) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected result for empty input: %+v", res)
	}
}

func TestRecordToCalendarEvent(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	allDay := Record{Summary: "Off", Start: DateValue{Date: "2025-01-15"}, IsAllDay: true}
	row, err := allDay.ToCalendarEvent("cal", "ada", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !row.Start.Equal(time.Date(2025, 1, 15, 0, 0, 0, 0, loc)) || row.End.Sub(row.Start) != 24*time.Hour || !row.AllDay {
		t.Fatalf("unexpected all-day row: %+v", row)
	}

	timed := Record{Summary: "Call", Start: DateValue{DateTime: "2025-01-15T09:00:00Z"}}
	row, err = timed.ToCalendarEvent("cal", "ada", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !row.Start.Equal(row.End) || row.Title != "Call" || row.CalendarID != "cal" || row.OwnerID != "ada" {
		t.Fatalf("unexpected timed row: %+v", row)
	}

	inverted := Record{
		Summary: "Backwards",
		Start:   DateValue{DateTime: "2025-01-15T10:00:00Z"},
		End:     &DateValue{DateTime: "2025-01-15T09:00:00Z"},
	}
	if _, err := inverted.ToCalendarEvent("cal", "ada", loc); !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestParseTextSkipsNestedAlarm(t *testing.T) {
	res := ParseText(doc(
		"BEGIN:VEVENT",
		"DTSTART:20250115T090000Z",
		"SUMMARY:Dentist",
		"DESCRIPTION:Bring card",
		"BEGIN:VALARM",
		"ACTION:DISPLAY",
		"DESCRIPTION:Reminder",
		"END:VALARM",
		"END:VEVENT",
	))
	if len(res.Records) != 1 || res.Records[0].Description != "Bring card" {
		t.Fatalf("alarm properties leaked into event: %+v", res.Records)
	}
}
