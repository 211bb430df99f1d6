package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crewline/internal/domain"
	"crewline/internal/journal"
	"crewline/internal/notify"
	"crewline/internal/repo"
)

// ResetResult reports one period reset: who was moved to inactive and which
// rows could not be updated.
type ResetResult struct {
	EndDate     string                `json:"end_date"`
	NextStart   string                `json:"next_start"`
	Total       int                   `json:"total"`
	Inactivated []domain.VolunteerRef `json:"inactivated,omitempty"`
	Failures    []string              `json:"failures,omitempty"`
}

// ResetPeriod closes the tracking period ending on endDate (date-only). The
// decision who goes inactive is taken against a snapshot read before any row
// changes: probation and active volunteers with zero commitments become
// inactive; lead and inactive keep their status. Every volunteer's counter
// returns to zero and a fresh open-ended period starts the day after
// endDate. Each row is updated in its own transaction so one bad row never
// stalls the rest.
func (e Engine) ResetPeriod(ctx context.Context, endDate, actorID string) (ResetResult, error) {
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return ResetResult{}, ValidationError{Reason: fmt.Sprintf("bad end date %q, want YYYY-MM-DD", endDate)}
	}
	nextStart := end.AddDate(0, 0, 1).Format(dateLayout)

	volunteers, err := e.Repo.ListVolunteers(ctx, "")
	if err != nil {
		return ResetResult{}, err
	}

	res := ResetResult{EndDate: endDate, NextStart: nextStart, Total: len(volunteers)}
	for _, v := range volunteers {
		inactivate := v.Commitments == 0 &&
			(v.Status == domain.StatusProbation || v.Status == domain.StatusActive)
		if err := e.resetOne(ctx, v, nextStart, inactivate, actorID); err != nil {
			e.Logger.Warn("period reset failed for volunteer",
				zap.Int64("volunteer_id", v.ID),
				zap.Error(err))
			res.Failures = append(res.Failures, fmt.Sprintf("volunteer %d: %v", v.ID, err))
			continue
		}
		if inactivate {
			res.Inactivated = append(res.Inactivated, v.Ref())
		}
	}

	e.Logger.Info("period reset",
		zap.String("end_date", endDate),
		zap.Int("volunteers", res.Total),
		zap.Int("inactivated", len(res.Inactivated)),
		zap.Int("failures", len(res.Failures)))
	e.notifyBestEffort(ctx, notify.AudienceAdmins,
		fmt.Sprintf("Tracking period ended %s: %d volunteers reset, %d moved to inactive.",
			endDate, res.Total, len(res.Inactivated)))
	return res, nil
}

func (e Engine) resetOne(ctx context.Context, v domain.Volunteer, nextStart string, inactivate bool, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	zero := 0
	var noEnd *string
	u := repo.VolunteerUpdate{
		Commitments: &zero,
		PeriodStart: &nextStart,
		PeriodEnd:   &noEnd,
		UpdatedAt:   e.timestamp(),
	}
	if inactivate {
		inactive := domain.StatusInactive
		u.Status = &inactive
	}
	if err := e.Repo.UpdateVolunteer(ctx, tx, v.ID, u); err != nil {
		return err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypePeriodReset, "volunteer", idString(v.ID), actorID, journal.Payload{
		"prior_commitments": v.Commitments,
		"next_start":        nextStart,
	}); err != nil {
		return err
	}
	if inactivate {
		if err := e.Journal.Append(ctx, tx, journal.TypeVolunteerInactivated, "volunteer", idString(v.ID), actorID, journal.Payload{
			"from_status": v.Status,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}
