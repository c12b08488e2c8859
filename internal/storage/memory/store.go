// Package memory is an in-process event store used when no database is
// configured and in tests. It mirrors the Postgres store's semantics.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"focusflow/internal/model"
)

type Store struct {
	mu        sync.RWMutex
	calendars map[string]model.Calendar
	events    map[string]model.CalendarEvent
}

func New() *Store {
	return &Store{
		calendars: make(map[string]model.Calendar),
		events:    make(map[string]model.CalendarEvent),
	}
}

func (s *Store) CreateCalendar(_ context.Context, cal model.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[cal.ID]; ok {
		return model.ErrCalendarExists
	}
	s.calendars[cal.ID] = cal
	return nil
}

func (s *Store) UpsertCalendar(_ context.Context, cal model.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.calendars[cal.ID]; ok && !existing.CreatedAt.IsZero() {
		cal.CreatedAt = existing.CreatedAt
	}
	s.calendars[cal.ID] = cal
	return nil
}

func (s *Store) GetCalendar(_ context.Context, ownerID, id string) (model.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cal, ok := s.calendars[id]
	if !ok || cal.OwnerID != ownerID {
		return model.Calendar{}, model.ErrCalendarNotFound
	}
	return cal, nil
}

func (s *Store) ListCalendars(_ context.Context, ownerID string) ([]model.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Calendar
	for _, cal := range s.calendars {
		if cal.OwnerID == ownerID {
			out = append(out, cal)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) InsertEvents(_ context.Context, events []model.CalendarEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if _, ok := s.calendars[ev.CalendarID]; !ok {
			return 0, model.ErrCalendarNotFound
		}
	}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	return len(events), nil
}

func (s *Store) ReplaceCalendarEvents(_ context.Context, calendarID string, events []model.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[calendarID]; !ok {
		return model.ErrCalendarNotFound
	}
	for id, ev := range s.events {
		if ev.CalendarID == calendarID {
			delete(s.events, id)
		}
	}
	for _, ev := range events {
		ev.CalendarID = calendarID
		s.events[ev.ID] = ev
	}
	return nil
}

func (s *Store) ListEvents(_ context.Context, ownerID string, from, to time.Time) ([]model.CalendarEvent, error) {
	if to.Before(from) {
		return nil, model.ErrInvalidRange
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CalendarEvent
	for _, ev := range s.events {
		if ev.OwnerID != ownerID {
			continue
		}
		if ev.Overlaps(from, to) || (ev.Start.Equal(ev.End) && !ev.Start.Before(from) && ev.Start.Before(to)) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
