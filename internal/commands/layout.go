package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"focusflow/internal/ics"
	"focusflow/internal/layout"
	appLog "focusflow/internal/log"
)

type layoutOptions struct {
	date     string
	timezone string
	strict   bool
	week     bool
	first    string
}

func addLayout(topLevel *cobra.Command) {
	lo := &layoutOptions{}
	cmd := &cobra.Command{
		Use:   "layout FILE",
		Short: "Assign overlap lanes to the events of one day.",
		Long: `Reads events from an .ics file, or from a JSON array of
{"id", "start", "end"} objects, and prints the lane assignment of every
timed event on the chosen day.`,
		Example: `
focusflow layout team.ics --date 2025-01-15
focusflow layout events.json --strict
focusflow layout team.ics --week --tz Europe/Berlin
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd, lo, args[0])
		},
	}
	cmd.Flags().StringVar(&lo.date, "date", "", "Day to lay out (YYYY-MM-DD). Defaults to the day of the earliest event.")
	cmd.Flags().StringVar(&lo.timezone, "tz", "UTC", "Display timezone.")
	cmd.Flags().BoolVar(&lo.strict, "strict", false, "Fail on events that end before they start.")
	cmd.Flags().BoolVar(&lo.week, "week", false, "Lay out the whole week containing --date.")
	cmd.Flags().StringVar(&lo.first, "week-start", "monday", "First day of the week: monday or sunday.")
	topLevel.AddCommand(cmd)
}

type labeledEvent struct {
	layout.Event
	Title string
}

func runLayout(cmd *cobra.Command, lo *layoutOptions, path string) error {
	loc, err := time.LoadLocation(lo.timezone)
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", lo.timezone, err)
	}
	events, err := readLayoutEvents(cmd, path, loc)
	if err != nil {
		return err
	}

	if lo.strict {
		if err := layout.Validate(eventsOf(events)); err != nil {
			return err
		}
	}

	day, err := pickDay(lo.date, events, loc)
	if err != nil {
		return err
	}

	titles := make(map[string]string, len(events))
	for _, ev := range events {
		titles[ev.ID] = ev.Title
	}

	var days []layout.Day
	if lo.week {
		first := time.Monday
		if strings.EqualFold(lo.first, "sunday") {
			first = time.Sunday
		}
		days = layout.Week(eventsOf(events), layout.WeekStart(day, first))
	} else {
		days = []layout.Day{layout.LayoutDay(eventsOf(events), day)}
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("DAY", "ID", "TITLE", "START", "END", "COLUMN", "SPAN", "TOTAL")
	for _, d := range days {
		for _, ev := range d.Events {
			p := d.Placements[ev.ID]
			tbl.AddRow(d.Date.Format("Mon 01-02"), ev.ID, titles[ev.ID],
				ev.Start.In(loc).Format("15:04"), ev.End.In(loc).Format("15:04"),
				p.Column, p.Span, p.TotalColumns)
		}
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), tbl)
	return err
}

// readLayoutEvents loads timed events; all-day records are skipped.
func readLayoutEvents(cmd *cobra.Command, path string, loc *time.Location) ([]labeledEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		var raw []layout.Event
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out := make([]labeledEvent, 0, len(raw))
		for _, ev := range raw {
			out = append(out, labeledEvent{Event: ev, Title: ev.ID})
		}
		return out, nil
	}

	res := ics.ParseText(string(data))
	printWarnings(cmd, res.Warnings)

	out := make([]labeledEvent, 0, len(res.Records))
	for i, rec := range res.Records {
		if rec.IsAllDay {
			continue
		}
		start, err := rec.Start.Time(loc)
		if err != nil {
			return nil, err
		}
		end := start
		if rec.End != nil && !rec.End.IsZero() {
			if end, err = rec.End.Time(loc); err != nil {
				return nil, err
			}
		}
		id := rec.UID
		if id == "" {
			id = fmt.Sprintf("event-%d", i+1)
		}
		out = append(out, labeledEvent{
			Event: layout.Event{ID: id, Start: start.In(loc), End: end.In(loc)},
			Title: rec.Summary,
		})
	}
	appLog.Debug("layout input loaded", "path", path, "events", len(out))
	return out, nil
}

func pickDay(raw string, events []labeledEvent, loc *time.Location) (time.Time, error) {
	if raw != "" {
		d, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", raw)
		}
		return d, nil
	}
	if len(events) == 0 {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	earliest := events[0].Start
	for _, ev := range events[1:] {
		if ev.Start.Before(earliest) {
			earliest = ev.Start
		}
	}
	earliest = earliest.In(loc)
	return time.Date(earliest.Year(), earliest.Month(), earliest.Day(), 0, 0, 0, 0, loc), nil
}

func eventsOf(in []labeledEvent) []layout.Event {
	out := make([]layout.Event, len(in))
	for i, ev := range in {
		out[i] = ev.Event
	}
	return out
}
