package ics

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"focusflow/internal/model"
)

// DateValue is either a calendar date (all-day) or a UTC timestamp.
// Exactly one field is set.
type DateValue struct {
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty" yaml:"dateTime,omitempty"`
}

// IsZero reports whether neither field is set.
func (d DateValue) IsZero() bool {
	return d.Date == "" && d.DateTime == ""
}

// Record is a VEVENT decoded by ParseText.
type Record struct {
	UID         string     `json:"uid,omitempty" yaml:"uid,omitempty"`
	Summary     string     `json:"summary" yaml:"summary"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string     `json:"location,omitempty" yaml:"location,omitempty"`
	Start       DateValue  `json:"start" yaml:"start"`
	End         *DateValue `json:"end,omitempty" yaml:"end,omitempty"`
	IsAllDay    bool       `json:"isAllDay" yaml:"isAllDay"`
}

// ParseWarning points at input that was skipped. Line is 1-based.
type ParseWarning struct {
	Line   int    `json:"line" yaml:"line"`
	Reason string `json:"reason" yaml:"reason"`
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}

// ParseResult holds the decoded records in document order.
type ParseResult struct {
	Records  []Record       `json:"records" yaml:"records"`
	Warnings []ParseWarning `json:"warnings" yaml:"warnings"`
}

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405"
)

// ParseText decodes the VEVENT blocks of an iCalendar document line by line.
//
// Only DTSTART, DTEND, SUMMARY, DESCRIPTION, LOCATION and UID are read, as
// KEY:VALUE or KEY;PARAMS:VALUE. Parameters matter only for VALUE=DATE.
// Folded lines, text escapes, RRULE and TZID are not interpreted: timestamps
// without a trailing Z are read as UTC wall clock.
//
// Blocks without a start or a summary are dropped and reported as warnings,
// as are unreadable dates and unterminated blocks. ParseText never fails.
func ParseText(text string) ParseResult {
	res := ParseResult{Records: []Record{}, Warnings: []ParseWarning{}}

	var (
		cur       *Record
		blockLine int
		// depth counts components nested in the current VEVENT (VALARM...).
		depth int
	)

	warn := func(line int, format string, args ...any) {
		res.Warnings = append(res.Warnings, ParseWarning{Line: line, Reason: fmt.Sprintf(format, args...)})
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	// Descriptions can be long; allow lines up to 1 MiB.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch trimmed {
		case "BEGIN:VEVENT":
			if cur != nil {
				warn(blockLine, "VEVENT not terminated before next BEGIN:VEVENT; dropped")
			}
			cur = &Record{}
			blockLine = lineNo
			depth = 0
			continue
		case "END:VEVENT":
			if cur == nil {
				warn(lineNo, "END:VEVENT without matching BEGIN")
				continue
			}
			if rec, reason := finish(cur); reason != "" {
				warn(blockLine, "VEVENT dropped: %s", reason)
			} else {
				res.Records = append(res.Records, rec)
			}
			cur = nil
			continue
		}

		if cur == nil {
			continue
		}

		if strings.HasPrefix(trimmed, "BEGIN:") {
			depth++
			continue
		}
		if strings.HasPrefix(trimmed, "END:") && depth > 0 {
			depth--
			continue
		}
		if depth > 0 {
			continue
		}

		key, params, value, ok := splitProperty(line)
		if !ok {
			continue
		}

		switch key {
		case "DTSTART":
			dv, allDay, err := decodeDate(value, params)
			if err != nil {
				warn(lineNo, "DTSTART: %v", err)
				continue
			}
			cur.Start = dv
			cur.IsAllDay = allDay
		case "DTEND":
			dv, _, err := decodeDate(value, params)
			if err != nil {
				warn(lineNo, "DTEND: %v", err)
				continue
			}
			cur.End = &dv
		case "SUMMARY":
			cur.Summary = value
		case "DESCRIPTION":
			cur.Description = value
		case "LOCATION":
			cur.Location = value
		case "UID":
			cur.UID = value
		}
	}

	if err := sc.Err(); err != nil {
		warn(lineNo+1, "read stopped: %v", err)
	}
	if cur != nil {
		warn(blockLine, "VEVENT not terminated at end of input; dropped")
	}

	return res
}

func finish(r *Record) (Record, string) {
	switch {
	case r.Start.IsZero() && r.Summary == "":
		return Record{}, "missing DTSTART and SUMMARY"
	case r.Start.IsZero():
		return Record{}, "missing DTSTART"
	case r.Summary == "":
		return Record{}, "missing SUMMARY"
	}
	return *r, ""
}

// splitProperty splits "KEY;P=1;Q=2:VALUE" at the first colon.
func splitProperty(line string) (key, params, value string, ok bool) {
	head, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", "", false
	}
	key, params, _ = strings.Cut(head, ";")
	return strings.ToUpper(strings.TrimSpace(key)), params, value, true
}

func decodeDate(value, params string) (DateValue, bool, error) {
	value = strings.TrimSpace(value)
	isDate := hasValueDate(params) || (len(value) == 8 && !strings.Contains(value, "T"))

	if isDate {
		if len(value) < 8 {
			return DateValue{}, false, fmt.Errorf("invalid date %q", value)
		}
		d, err := time.Parse(dateLayout, value[:8])
		if err != nil {
			return DateValue{}, false, fmt.Errorf("invalid date %q", value)
		}
		return DateValue{Date: d.Format("2006-01-02")}, true, nil
	}

	ts, err := time.Parse(dateTimeLayout, strings.TrimSuffix(value, "Z"))
	if err != nil {
		return DateValue{}, false, fmt.Errorf("invalid date-time %q", value)
	}
	return DateValue{DateTime: ts.UTC().Format(time.RFC3339)}, false, nil
}

func hasValueDate(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, _ := strings.Cut(p, "=")
		if strings.EqualFold(strings.TrimSpace(k), "VALUE") && strings.EqualFold(strings.TrimSpace(v), "DATE") {
			return true
		}
	}
	return false
}

// ToCalendarEvent converts a record into a row. Dates are anchored in loc;
// all-day records without an end cover one day, timed records without an
// end are zero-duration.
func (r Record) ToCalendarEvent(calendarID, ownerID string, loc *time.Location) (model.CalendarEvent, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := r.Start.Time(loc)
	if err != nil {
		return model.CalendarEvent{}, err
	}

	var end time.Time
	switch {
	case r.End != nil && !r.End.IsZero():
		end, err = r.End.Time(loc)
		if err != nil {
			return model.CalendarEvent{}, err
		}
	case r.IsAllDay:
		end = start.AddDate(0, 0, 1)
	default:
		end = start
	}
	if end.Before(start) {
		return model.CalendarEvent{}, fmt.Errorf("%w: %s ends before it starts", model.ErrInvalidRange, r.Summary)
	}

	return model.CalendarEvent{
		CalendarID:  calendarID,
		OwnerID:     ownerID,
		ExternalUID: r.UID,
		Title:       r.Summary,
		Description: r.Description,
		Location:    r.Location,
		AllDay:      r.IsAllDay,
		Start:       start,
		End:         end,
	}, nil
}

// Time resolves the value to an instant; dates become local midnight in loc.
func (d DateValue) Time(loc *time.Location) (time.Time, error) {
	switch {
	case d.DateTime != "":
		return time.Parse(time.RFC3339, d.DateTime)
	case d.Date != "":
		return time.ParseInLocation("2006-01-02", d.Date, loc)
	default:
		return time.Time{}, fmt.Errorf("empty date value")
	}
}
