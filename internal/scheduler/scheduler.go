// Package scheduler arms a one-shot timer for the next first-of-month
// boundary and runs the monthly pipeline when it fires: status report,
// announcement, and on quarter boundaries the period reset. Every firing
// recomputes the true next calendar boundary, so the schedule never drifts.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crewline/internal/engine"
	"crewline/internal/notify"
)

type Scheduler struct {
	Engine engine.Engine
	Logger *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
	armed bool
}

func New(eng engine.Engine, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{Engine: eng, Logger: logger}
}

func (s *Scheduler) now() time.Time {
	if s.Engine.Now != nil {
		return s.Engine.Now()
	}
	return time.Now()
}

func (s *Scheduler) hour() int {
	if s.Engine.Config != nil && s.Engine.Config.Scheduler.Hour > 0 {
		return s.Engine.Config.Scheduler.Hour
	}
	return 9
}

func (s *Scheduler) location() *time.Location {
	if s.Engine.Config == nil {
		return time.Local
	}
	name := s.Engine.Config.Scheduler.Location
	if name == "" || name == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.Logger.Warn("bad scheduler location, using local time",
			zap.String("location", name), zap.Error(err))
		return time.Local
	}
	return loc
}

// NextFiring returns the next first-of-month instant at the given hour.
func NextFiring(now time.Time, hour int, loc *time.Location) time.Time {
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), 1, hour, 0, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// Start arms the timer. A second Start while armed is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return
	}
	s.armed = true
	s.arm()
}

func (s *Scheduler) arm() {
	next := NextFiring(s.now(), s.hour(), s.location())
	delay := next.Sub(s.now())
	s.timer = time.AfterFunc(delay, s.fire)
	s.Logger.Info("scheduler armed", zap.Time("next", next))
}

// Stop cancels any pending timer and returns to idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed = false
}

// Armed reports whether a firing is pending.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *Scheduler) fire() {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("scheduler job panicked", zap.Any("panic", r))
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.armed {
			s.arm()
		}
	}()
	if err := s.RunOnce(context.Background()); err != nil {
		s.Logger.Error("scheduler job failed", zap.Error(err))
		if s.Engine.Notifier != nil {
			if nerr := s.Engine.Notifier.Notify(context.Background(), notify.AudienceAdmins,
				fmt.Sprintf("Monthly job failed: %v", err)); nerr != nil {
				s.Logger.Warn("notify failed", zap.Error(nerr))
			}
		}
	}
}

// RunOnce runs one monthly pipeline pass against the current clock. When the
// current month opens a new quarter, the previous quarter's tracking period
// is reset first, then the fresh roster report goes out.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now().In(s.location())
	if opensQuarter(now.Month()) {
		end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.location()).AddDate(0, 0, -1)
		res, err := s.Engine.ResetPeriod(ctx, end.Format("2006-01-02"), "scheduler")
		if err != nil {
			return fmt.Errorf("quarter reset: %w", err)
		}
		s.Logger.Info("quarter reset complete",
			zap.String("end_date", res.EndDate),
			zap.Int("inactivated", len(res.Inactivated)))
	}

	report, err := s.Engine.StatusReport(ctx)
	if err != nil {
		return fmt.Errorf("status report: %w", err)
	}
	s.Logger.Info("monthly report",
		zap.Int("total", report.Total),
		zap.Any("counts", report.Counts))
	if s.Engine.Notifier != nil {
		msg := fmt.Sprintf("Monthly roster: %d volunteers (%d active, %d probation, %d lead, %d inactive).",
			report.Total,
			report.Counts["active"], report.Counts["probation"],
			report.Counts["lead"], report.Counts["inactive"])
		if err := s.Engine.Notifier.Notify(ctx, notify.AudienceAnnouncements, msg); err != nil {
			s.Logger.Warn("notify failed", zap.Error(err))
		}
	}
	return nil
}

func opensQuarter(m time.Month) bool {
	switch m {
	case time.January, time.April, time.July, time.October:
		return true
	}
	return false
}
