// Package scheduler runs subscription syncs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"focusflow/internal/app"
	appLog "focusflow/internal/log"
)

// Syncer is satisfied by *app.CalendarService.
type Syncer interface {
	SyncSubscriptions(ctx context.Context) app.SyncReport
}

// Hook runs after every sync, e.g. to drop cached layouts.
type Hook func(app.SyncReport)

type Scheduler struct {
	spec   string
	loc    *time.Location
	syncer Syncer
	hooks  []Hook

	// mu serializes runs so a slow sync is never overlapped by the next tick.
	mu sync.Mutex
}

func New(spec string, loc *time.Location, syncer Syncer, hooks ...Hook) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, loc: loc, syncer: syncer, hooks: hooks}, nil
}

// RunOnce performs one sync synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) app.SyncReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	report := s.syncer.SyncSubscriptions(ctx)
	appLog.Info("scheduled sync finished",
		"synced", len(report.Synced),
		"failed", len(report.Errors),
		"took", time.Since(started).Round(time.Millisecond).String(),
	)
	for _, h := range s.hooks {
		h(report)
	}
	return report
}

// Start runs one sync immediately, then follows the schedule until ctx is
// cancelled. It returns once the cron has stopped and any running job has
// completed.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc(s.spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduler: add job: %w", err)
	}

	appLog.Info("scheduler started", "schedule", s.spec, "timezone", s.loc.String())
	s.RunOnce(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("scheduler stopped")
	return nil
}
