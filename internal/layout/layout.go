// Package layout places a day's timed events into side-by-side lanes so a
// grid renderer can draw them without visual collisions.
//
// Placement is a pure function of the input set: nothing is cached between
// calls and the result only depends on event values and their input order
// (used to break start-time ties).
package layout

import (
	"errors"
	"fmt"
	"sort"
	"time"

	appLog "focusflow/internal/log"
)

// MaxVisualSpan caps how many lanes one event box may cover, even when more
// free lanes are available to its right. Changing it alters rendering only,
// never the no-collision guarantee.
const MaxVisualSpan = 2

// ErrInvertedRange is reported by Validate for events ending before they start.
var ErrInvertedRange = errors.New("layout: event ends before it starts")

// Options tunes a Compute call. The zero value is lenient.
type Options struct {
	// Strict panics on events violating End >= Start instead of placing
	// them best-effort.
	Strict bool
}

// Event is the minimal input the engine needs. IDs must be unique within one
// call; Start and End should already be in the display timezone.
type Event struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Placement is the lane assignment for one event.
type Placement struct {
	Column       int `json:"column"`
	Span         int `json:"span"`
	TotalColumns int `json:"totalColumns"`
}

// Overlaps is the half-open interval test: touching endpoints do not overlap.
func Overlaps(a, b Event) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Validate checks the End >= Start precondition for every event.
func Validate(events []Event) error {
	for _, ev := range events {
		if ev.End.Before(ev.Start) {
			return fmt.Errorf("%w: id=%s start=%s end=%s", ErrInvertedRange, ev.ID,
				ev.Start.Format(time.RFC3339), ev.End.Format(time.RFC3339))
		}
	}
	return nil
}

// Compute assigns a Placement to every event.
//
// Events are processed by ascending start (ties keep input order). Each goes
// into the leftmost lane where it overlaps nothing; a new lane is opened when
// none fits. Afterwards every event widens into the following lanes while they
// stay free for its time range, up to MaxVisualSpan.
//
// The returned map is never nil. An empty input yields an empty map.
// Inverted ranges are placed best-effort; see ComputeWithOptions.
func Compute(events []Event) map[string]Placement {
	return ComputeWithOptions(events, Options{})
}

// ComputeWithOptions is Compute with explicit options.
func ComputeWithOptions(events []Event, opts Options) map[string]Placement {
	out := make(map[string]Placement, len(events))
	if len(events) == 0 {
		return out
	}

	if err := Validate(events); err != nil {
		if opts.Strict {
			panic(err)
		}
		appLog.Debug("layout: placing inverted event best-effort", "err", err)
	}

	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var columns [][]Event
	assigned := make([]int, len(sorted))

	for i, ev := range sorted {
		col := -1
		for c := range columns {
			if fits(columns[c], ev) {
				col = c
				break
			}
		}
		if col == -1 {
			columns = append(columns, nil)
			col = len(columns) - 1
		}
		columns[col] = append(columns[col], ev)
		assigned[i] = col
	}

	total := max(1, len(columns))

	for i, ev := range sorted {
		col := assigned[i]
		span := 1
		for k := col + 1; k < len(columns) && span < MaxVisualSpan; k++ {
			if !fits(columns[k], ev) {
				break
			}
			span++
		}
		out[ev.ID] = Placement{Column: col, Span: span, TotalColumns: total}
	}

	return out
}

func fits(column []Event, ev Event) bool {
	for _, other := range column {
		if Overlaps(ev, other) {
			return false
		}
	}
	return true
}
