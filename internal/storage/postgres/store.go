package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"focusflow/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

func (s *Store) CreateCalendar(ctx context.Context, cal model.Calendar) error {
	const stmt = `
INSERT INTO calendars (id, owner_id, name, color, ics_url, source, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.exec(ctx, stmt, cal.ID, cal.OwnerID, cal.Name, cal.Color, cal.ICSURL, string(cal.Source), createdAt(cal.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrCalendarExists
		}
		return fmt.Errorf("create calendar: %w", err)
	}
	return nil
}

func (s *Store) UpsertCalendar(ctx context.Context, cal model.Calendar) error {
	const stmt = `
INSERT INTO calendars (id, owner_id, name, color, ics_url, source, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET owner_id = EXCLUDED.owner_id,
    name = EXCLUDED.name,
    color = EXCLUDED.color,
    ics_url = EXCLUDED.ics_url,
    source = EXCLUDED.source`

	_, err := s.exec(ctx, stmt, cal.ID, cal.OwnerID, cal.Name, cal.Color, cal.ICSURL, string(cal.Source), createdAt(cal.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert calendar: %w", err)
	}
	return nil
}

func (s *Store) GetCalendar(ctx context.Context, ownerID, id string) (model.Calendar, error) {
	const query = `
SELECT id, owner_id, name, color, ics_url, source, created_at
FROM calendars
WHERE id = $1 AND owner_id = $2`

	cal, err := scanCalendar(s.queryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Calendar{}, model.ErrCalendarNotFound
		}
		return model.Calendar{}, fmt.Errorf("get calendar: %w", err)
	}
	return cal, nil
}

func (s *Store) ListCalendars(ctx context.Context, ownerID string) ([]model.Calendar, error) {
	const query = `
SELECT id, owner_id, name, color, ics_url, source, created_at
FROM calendars
WHERE owner_id = $1
ORDER BY created_at ASC, id ASC`

	rows, err := s.query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	defer rows.Close()

	var out []model.Calendar
	for rows.Next() {
		cal, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar: %w", err)
		}
		out = append(out, cal)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate calendars: %w", rows.Err())
	}
	return out, nil
}

const insertEventStmt = `
INSERT INTO calendar_events
	(id, calendar_id, owner_id, external_uid, title, description, location, all_day, starts_at, ends_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// InsertEvents writes all rows in one batch inside a transaction.
func (s *Store) InsertEvents(ctx context.Context, events []model.CalendarEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		return s.insertBatch(txCtx, events)
	})
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// ReplaceCalendarEvents swaps every row of a calendar atomically.
func (s *Store) ReplaceCalendarEvents(ctx context.Context, calendarID string, events []model.CalendarEvent) error {
	return s.WithTx(ctx, func(txCtx context.Context) error {
		var exists bool
		if err := s.queryRow(txCtx, `SELECT EXISTS (SELECT 1 FROM calendars WHERE id = $1)`, calendarID).Scan(&exists); err != nil {
			return fmt.Errorf("check calendar: %w", err)
		}
		if !exists {
			return model.ErrCalendarNotFound
		}
		if _, err := s.exec(txCtx, `DELETE FROM calendar_events WHERE calendar_id = $1`, calendarID); err != nil {
			return fmt.Errorf("clear calendar events: %w", err)
		}
		rows := make([]model.CalendarEvent, len(events))
		for i, ev := range events {
			ev.CalendarID = calendarID
			rows[i] = ev
		}
		return s.insertBatch(txCtx, rows)
	})
}

// ListEvents returns the owner's rows overlapping [from, to), plus
// zero-length rows starting inside it, ordered by start then id.
func (s *Store) ListEvents(ctx context.Context, ownerID string, from, to time.Time) ([]model.CalendarEvent, error) {
	if to.Before(from) {
		return nil, model.ErrInvalidRange
	}
	const query = `
SELECT id, calendar_id, owner_id, external_uid, title, description, location, all_day, starts_at, ends_at, created_at
FROM calendar_events
WHERE owner_id = $1
  AND starts_at < $3
  AND (ends_at > $2 OR (ends_at = starts_at AND starts_at >= $2))
ORDER BY starts_at ASC, id ASC`

	rows, err := s.query(ctx, query, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []model.CalendarEvent
	for rows.Next() {
		var ev model.CalendarEvent
		if err := rows.Scan(&ev.ID, &ev.CalendarID, &ev.OwnerID, &ev.ExternalUID, &ev.Title, &ev.Description,
			&ev.Location, &ev.AllDay, &ev.Start, &ev.End, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate events: %w", rows.Err())
	}
	return out, nil
}

func (s *Store) insertBatch(ctx context.Context, events []model.CalendarEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx := txFromContext(ctx)
	if tx == nil {
		return errors.New("insert batch: no transaction in context")
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(insertEventStmt, ev.ID, ev.CalendarID, ev.OwnerID, ev.ExternalUID, ev.Title, ev.Description,
			ev.Location, ev.AllDay, ev.Start, ev.End, createdAt(ev.CreatedAt))
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			switch {
			case isForeignKeyViolation(err):
				return model.ErrCalendarNotFound
			case isUniqueViolation(err):
				return fmt.Errorf("insert event: duplicate id: %w", err)
			}
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return br.Close()
}

func scanCalendar(row pgx.Row) (model.Calendar, error) {
	var cal model.Calendar
	var source string
	err := row.Scan(&cal.ID, &cal.OwnerID, &cal.Name, &cal.Color, &cal.ICSURL, &source, &cal.CreatedAt)
	cal.Source = model.CalendarSource(source)
	return cal, err
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}
