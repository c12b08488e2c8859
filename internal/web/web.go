package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"focusflow/internal/app"
	"focusflow/internal/clock"
	"focusflow/internal/config"
	appLog "focusflow/internal/log"
	"focusflow/internal/model"
)

// DefaultOwner is used when a request carries no identity.
const DefaultOwner = "default"

// OwnerHeader names the caller when basic auth is disabled.
const OwnerHeader = "X-Owner-ID"

const layoutCacheTTL = 30 * time.Second

// CalendarService is the part of *app.CalendarService the handlers use.
type CalendarService interface {
	CreateCalendar(ctx context.Context, in app.CreateCalendarInput) (model.Calendar, error)
	ListCalendars(ctx context.Context, ownerID string) ([]model.Calendar, error)
	FetchICS(ctx context.Context, rawURL string) ([]byte, error)
	ImportICSText(ctx context.Context, ownerID, calendarID, text string) (app.ImportResult, error)
	ImportICSURL(ctx context.Context, ownerID, calendarID, rawURL string) (app.ImportResult, error)
	DayLayout(ctx context.Context, ownerID string, day time.Time) (app.DayView, error)
	WeekLayout(ctx context.Context, ownerID string, day time.Time) ([]app.DayView, error)
	SyncSubscriptions(ctx context.Context) app.SyncReport
	Location() *time.Location
}

// SyncRunner runs one subscription sync. *scheduler.Scheduler satisfies it,
// so manual syncs share its lock with scheduled ones.
type SyncRunner interface {
	RunOnce(ctx context.Context) app.SyncReport
}

// Server provides the HTTP API over the calendar service.
type Server struct {
	cfg    *config.Config
	svc    CalendarService
	clock  clock.Clock
	mux    *http.ServeMux
	syncer SyncRunner

	// Layout responses are cached per owner and date to avoid re-running
	// the store query and lane assignment on every poll.
	layoutMu    sync.RWMutex
	layoutCache map[string]layoutCacheEntry
}

type layoutCacheEntry struct {
	body      any
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc CalendarService, clk clock.Clock) *Server {
	if clk == nil {
		clk = clock.NewSystem()
	}
	s := &Server{
		cfg:         cfg,
		svc:         svc,
		clock:       clk,
		mux:         http.NewServeMux(),
		layoutCache: make(map[string]layoutCacheEntry),
	}
	s.registerRoutes()
	return s
}

// SetSyncRunner routes POST /api/sync through r. Without one the handler
// calls the service directly.
func (s *Server) SetSyncRunner(r SyncRunner) {
	s.syncer = r
}

// Handler returns the routes wrapped with request logging and, when
// configured, basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		h = s.basicAuthMiddleware(h)
	}
	return RequestLogger(h)
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/ics/proxy", s.handleICSProxy)
	s.mux.HandleFunc("POST /api/ics/parse", s.handleICSParse)

	s.mux.HandleFunc("GET /api/calendars", s.handleListCalendars)
	s.mux.HandleFunc("POST /api/calendars", s.handleCreateCalendar)
	s.mux.HandleFunc("POST /api/calendars/{id}/import", s.handleImport)

	s.mux.HandleFunc("GET /api/layout", s.handleDayLayout)
	s.mux.HandleFunc("GET /api/layout/week", s.handleWeekLayout)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)

	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="FocusFlow", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ownerID resolves the caller: the basic-auth user when auth is on, else
// the X-Owner-ID header, else DefaultOwner.
func (s *Server) ownerID(r *http.Request) string {
	if s.basicAuthEnabled() {
		if u, _, ok := r.BasicAuth(); ok && u != "" {
			return u
		}
	}
	if h := r.Header.Get(OwnerHeader); h != "" {
		return h
	}
	return DefaultOwner
}

func (s *Server) cachedLayout(key string) (any, bool) {
	s.layoutMu.RLock()
	defer s.layoutMu.RUnlock()
	e, ok := s.layoutCache[key]
	if !ok || s.clock.Now().Sub(e.updatedAt) >= layoutCacheTTL {
		return nil, false
	}
	return e.body, true
}

func (s *Server) storeLayout(key string, body any) {
	s.layoutMu.Lock()
	s.layoutCache[key] = layoutCacheEntry{body: body, updatedAt: s.clock.Now()}
	s.layoutMu.Unlock()
}

// InvalidateLayouts drops every cached layout response. Called after
// imports and syncs change the stored events.
func (s *Server) InvalidateLayouts() {
	s.layoutMu.Lock()
	clear(s.layoutCache)
	s.layoutMu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
