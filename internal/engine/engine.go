// Package engine implements the core operations: volunteer lifecycle,
// assignment coordination, the completion cascade, and the period reset.
// Every operation re-reads current state before deciding; nothing is cached
// across calls.
package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"crewline/internal/config"
	"crewline/internal/domain"
	"crewline/internal/journal"
	"crewline/internal/lifecycle"
	"crewline/internal/notify"
	"crewline/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Journal  journal.Writer
	Config   *config.Config
	Notifier notify.Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, notifier notify.Notifier, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: logger}
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Journal:  journal.Writer{DB: db},
		Config:   cfg,
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) policy() lifecycle.Policy {
	if e.Config == nil {
		return lifecycle.DefaultPolicy
	}
	return lifecycle.Policy{
		CommitmentTarget: e.Config.Tracking.CommitmentTarget,
		WindowDays:       e.Config.Tracking.WindowDays,
	}
}

// notifyBestEffort sends a notification and only logs a failure. It runs
// after the state change has committed; delivery problems never undo it.
func (e Engine) notifyBestEffort(ctx context.Context, audience, message string) {
	if err := e.Notifier.Notify(ctx, audience, message); err != nil {
		e.Logger.Warn("notify failed",
			zap.String("audience", audience),
			zap.Error(err))
	}
}

// StatusReport aggregates the volunteer roster grouped by status.
type StatusReport struct {
	GeneratedAt string                                           `json:"generated_at"`
	Total       int                                              `json:"total"`
	Counts      map[domain.VolunteerStatus]int                   `json:"counts"`
	ByStatus    map[domain.VolunteerStatus][]domain.VolunteerRef `json:"by_status"`
}

func (e Engine) StatusReport(ctx context.Context) (StatusReport, error) {
	counts, err := e.Repo.CountVolunteersByStatus(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	volunteers, err := e.Repo.ListVolunteers(ctx, "")
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{
		GeneratedAt: e.timestamp(),
		Counts:      counts,
		ByStatus:    make(map[domain.VolunteerStatus][]domain.VolunteerRef),
	}
	for _, v := range volunteers {
		report.Total++
		report.ByStatus[v.Status] = append(report.ByStatus[v.Status], v.Ref())
	}
	return report, nil
}
