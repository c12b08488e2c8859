package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"focusflow/internal/app"
	"focusflow/internal/ics"
	"focusflow/internal/layout"
	appLog "focusflow/internal/log"
	"focusflow/internal/model"
)

type proxyRequest struct {
	ICSURL string `json:"icsUrl"`
}

// handleICSProxy fetches a remote calendar server-side for browser clients.
//
// POST /api/ics/proxy {"icsUrl": "https://..."}
//   - 200 text/calendar with the upstream body
//   - 400 on a bad request or when the body is not an iCalendar document
//   - 502 when the upstream cannot be fetched
func (s *Server) handleICSProxy(w http.ResponseWriter, r *http.Request) {
	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ICSURL) == "" {
		writeError(w, http.StatusBadRequest, "icsUrl is required")
		return
	}

	body, err := s.svc.FetchICS(r.Context(), req.ICSURL)
	if err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleICSParse runs the line parser over a raw ICS body.
func (s *Server) handleICSParse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, ics.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body) > ics.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, ics.ErrTooLarge.Error())
		return
	}
	writeJSON(w, http.StatusOK, ics.ParseText(string(body)))
}

type calendarDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	ICSURL    string    `json:"icsUrl,omitempty"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

func toCalendarDTO(c model.Calendar) calendarDTO {
	return calendarDTO{
		ID:        c.ID,
		Name:      c.Name,
		Color:     c.Color,
		ICSURL:    c.ICSURL,
		Source:    string(c.Source),
		CreatedAt: c.CreatedAt,
	}
}

type createCalendarRequest struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	ICSURL string `json:"icsUrl"`
}

func (s *Server) handleCreateCalendar(w http.ResponseWriter, r *http.Request) {
	var req createCalendarRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cal, err := s.svc.CreateCalendar(r.Context(), app.CreateCalendarInput{
		OwnerID: s.ownerID(r),
		Name:    req.Name,
		Color:   req.Color,
		ICSURL:  req.ICSURL,
	})
	if err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, toCalendarDTO(cal))
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	cals, err := s.svc.ListCalendars(r.Context(), s.ownerID(r))
	if err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}
	resp := make([]calendarDTO, 0, len(cals))
	for _, c := range cals {
		resp = append(resp, toCalendarDTO(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

type importRequest struct {
	ICSURL string `json:"icsUrl"`
	ICS    string `json:"ics"`
}

type importResponse struct {
	Inserted int                `json:"inserted"`
	Skipped  int                `json:"skipped"`
	Warnings []ics.ParseWarning `json:"warnings"`
}

// handleImport appends events to a calendar from either a URL or raw text.
//
// POST /api/calendars/{id}/import {"icsUrl": "..."} | {"ics": "BEGIN:VCALENDAR..."}
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, ics.MaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner := s.ownerID(r)
	calendarID := r.PathValue("id")

	var (
		res app.ImportResult
		err error
	)
	switch {
	case req.ICSURL != "":
		res, err = s.svc.ImportICSURL(r.Context(), owner, calendarID, req.ICSURL)
	case req.ICS != "":
		res, err = s.svc.ImportICSText(r.Context(), owner, calendarID, req.ICS)
	default:
		writeError(w, http.StatusBadRequest, "icsUrl or ics is required")
		return
	}
	if err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}

	s.InvalidateLayouts()
	writeJSON(w, http.StatusOK, importResponse{
		Inserted: res.Inserted,
		Skipped:  res.Skipped,
		Warnings: res.Warnings,
	})
}

type eventDTO struct {
	ID          string    `json:"id"`
	CalendarID  string    `json:"calendarId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	AllDay      bool      `json:"allDay"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

type placedEventDTO struct {
	eventDTO
	layout.Placement
	Box layout.Box `json:"box"`
}

type dayLayoutResponse struct {
	Date         string           `json:"date"`
	TotalColumns int              `json:"totalColumns"`
	AllDay       []eventDTO       `json:"allDay"`
	Events       []placedEventDTO `json:"events"`
}

type weekLayoutResponse struct {
	WeekStart string              `json:"weekStart"`
	Timezone  string              `json:"timezone"`
	Days      []dayLayoutResponse `json:"days"`
}

func toEventDTO(e model.CalendarEvent) eventDTO {
	return eventDTO{
		ID:          e.ID,
		CalendarID:  e.CalendarID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		AllDay:      e.AllDay,
		Start:       e.Start,
		End:         e.End,
	}
}

func toDayResponse(v app.DayView) dayLayoutResponse {
	resp := dayLayoutResponse{
		Date:         v.Date.Format("2006-01-02"),
		TotalColumns: v.TotalColumns,
		AllDay:       make([]eventDTO, 0, len(v.AllDay)),
		Events:       make([]placedEventDTO, 0, len(v.Timed)),
	}
	for _, e := range v.AllDay {
		resp.AllDay = append(resp.AllDay, toEventDTO(e))
	}
	for _, p := range v.Timed {
		resp.Events = append(resp.Events, placedEventDTO{
			eventDTO:  toEventDTO(p.Event),
			Placement: p.Placement,
			Box:       p.Box,
		})
	}
	return resp
}

// parseDay reads ?date=YYYY-MM-DD in the display timezone, defaulting to today.
func (s *Server) parseDay(r *http.Request) (time.Time, error) {
	loc := s.svc.Location()
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.clock.Now().In(loc), nil
	}
	return time.ParseInLocation("2006-01-02", raw, loc)
}

func (s *Server) handleDayLayout(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	owner := s.ownerID(r)
	key := "day|" + owner + "|" + day.Format("2006-01-02")
	if body, ok := s.cachedLayout(key); ok {
		writeJSON(w, http.StatusOK, body)
		return
	}

	view, err := s.svc.DayLayout(r.Context(), owner, day)
	if err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}
	resp := toDayResponse(view)
	s.storeLayout(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWeekLayout(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDay(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	owner := s.ownerID(r)
	key := "week|" + owner + "|" + day.Format("2006-01-02")
	if body, ok := s.cachedLayout(key); ok {
		writeJSON(w, http.StatusOK, body)
		return
	}

	views, err := s.svc.WeekLayout(r.Context(), owner, day)
	if err != nil {
		status, msg := statusFor(err)
		writeError(w, status, msg)
		return
	}
	resp := weekLayoutResponse{
		Timezone: s.svc.Location().String(),
		Days:     make([]dayLayoutResponse, 0, len(views)),
	}
	if len(views) > 0 {
		resp.WeekStart = views[0].Date.Format("2006-01-02")
	}
	for _, v := range views {
		resp.Days = append(resp.Days, toDayResponse(v))
	}
	s.storeLayout(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

type syncedDTO struct {
	CalendarID string   `json:"calendarId"`
	Source     string   `json:"source"`
	Events     int      `json:"events"`
	FromCache  bool     `json:"fromCache"`
	Truncated  []string `json:"truncated,omitempty"`
}

type syncResponse struct {
	Synced []syncedDTO `json:"synced"`
	Errors []string    `json:"errors"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var report app.SyncReport
	if s.syncer != nil {
		report = s.syncer.RunOnce(r.Context())
	} else {
		report = s.svc.SyncSubscriptions(r.Context())
	}
	s.InvalidateLayouts()

	resp := syncResponse{
		Synced: make([]syncedDTO, 0, len(report.Synced)),
		Errors: make([]string, 0, len(report.Errors)),
	}
	for _, res := range report.Synced {
		resp.Synced = append(resp.Synced, syncedDTO{
			CalendarID: res.CalendarID,
			Source:     string(res.Source),
			Events:     res.Events,
			FromCache:  res.FromCache,
			Truncated:  res.Truncated,
		})
	}
	for _, err := range report.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps service errors to an HTTP status and client message.
// Unknown errors are logged and hidden behind a generic 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrCalendarNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrCalendarExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, model.ErrInvalidID),
		errors.Is(err, model.ErrNameRequired),
		errors.Is(err, model.ErrEmptyICS),
		errors.Is(err, model.ErrInvalidRange),
		errors.Is(err, ics.ErrInvalidURL),
		errors.Is(err, ics.ErrNotCalendar):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ics.ErrTooLarge), errors.Is(err, ics.ErrUpstream):
		return http.StatusBadGateway, err.Error()
	}
	appLog.Error("request failed", err)
	return http.StatusInternalServerError, "internal error"
}
