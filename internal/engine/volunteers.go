package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"crewline/internal/domain"
	"crewline/internal/journal"
	"crewline/internal/lifecycle"
	"crewline/internal/notify"
	"crewline/internal/repo"
)

const dateLayout = "2006-01-02"

// CreateVolunteer enrolls a new volunteer on probation with a fresh tracking
// window starting today. A duplicate handle is a conflict.
func (e Engine) CreateVolunteer(ctx context.Context, handle, name, actorID string) (domain.Volunteer, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return domain.Volunteer{}, ValidationError{Reason: "handle is required"}
	}
	if _, err := e.Repo.GetVolunteerByHandle(ctx, handle); err == nil {
		return domain.Volunteer{}, ConflictError{Reason: fmt.Sprintf("volunteer %s already exists", handle)}
	} else if err != repo.ErrNotFound {
		return domain.Volunteer{}, err
	}
	now := e.timestamp()
	v := domain.Volunteer{
		Handle:      handle,
		Name:        strings.TrimSpace(name),
		Status:      domain.StatusProbation,
		Commitments: 0,
		PeriodStart: e.now().UTC().Format(dateLayout),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Volunteer{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertVolunteer(ctx, tx, v)
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Volunteer{}, ConflictError{Reason: fmt.Sprintf("volunteer %s already exists", handle)}
		}
		return domain.Volunteer{}, fmt.Errorf("insert volunteer: %w", err)
	}
	v.ID = id
	if err := e.Journal.Append(ctx, tx, journal.TypeVolunteerCreated, "volunteer", idString(id), actorID, journal.Payload{
		"handle": v.Handle,
		"status": v.Status,
	}); err != nil {
		return domain.Volunteer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Volunteer{}, err
	}
	return v, nil
}

func (e Engine) GetVolunteer(ctx context.Context, id int64) (domain.Volunteer, error) {
	return e.Repo.GetVolunteer(ctx, id)
}

func (e Engine) GetVolunteerByHandle(ctx context.Context, handle string) (domain.Volunteer, error) {
	return e.Repo.GetVolunteerByHandle(ctx, handle)
}

// SetStatus is the administrative status override. It is the only code path
// that may produce the lead status.
func (e Engine) SetStatus(ctx context.Context, id int64, status domain.VolunteerStatus, actorID string) (domain.Volunteer, error) {
	if !status.IsValid() {
		return domain.Volunteer{}, ValidationError{Reason: fmt.Sprintf("unknown status %q", status)}
	}
	v, err := e.Repo.GetVolunteer(ctx, id)
	if err != nil {
		return domain.Volunteer{}, err
	}
	if v.Status == status {
		return v, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Volunteer{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateVolunteer(ctx, tx, id, repo.VolunteerUpdate{Status: &status, UpdatedAt: now}); err != nil {
		return domain.Volunteer{}, err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeVolunteerUpdated, "volunteer", idString(id), actorID, journal.Payload{
		"from_status": v.Status,
		"to_status":   status,
	}); err != nil {
		return domain.Volunteer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Volunteer{}, err
	}
	v.Status = status
	v.UpdatedAt = now
	return v, nil
}

// SetCommitments is the administrative counter override.
func (e Engine) SetCommitments(ctx context.Context, id int64, commitments int, actorID string) (domain.Volunteer, error) {
	if commitments < 0 {
		return domain.Volunteer{}, ValidationError{Reason: "commitments must not be negative"}
	}
	v, err := e.Repo.GetVolunteer(ctx, id)
	if err != nil {
		return domain.Volunteer{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Volunteer{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateVolunteer(ctx, tx, id, repo.VolunteerUpdate{Commitments: &commitments, UpdatedAt: now}); err != nil {
		return domain.Volunteer{}, err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeVolunteerUpdated, "volunteer", idString(id), actorID, journal.Payload{
		"from_commitments": v.Commitments,
		"to_commitments":   commitments,
	}); err != nil {
		return domain.Volunteer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Volunteer{}, err
	}
	v.Commitments = commitments
	v.UpdatedAt = now
	return v, nil
}

// DeleteVolunteer hard-deletes the record; assignments follow via FK cascade.
func (e Engine) DeleteVolunteer(ctx context.Context, id int64, actorID string) error {
	v, err := e.Repo.GetVolunteer(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteVolunteer(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeVolunteerDeleted, "volunteer", idString(id), actorID, journal.Payload{
		"handle": v.Handle,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// EvaluateProbation runs the pure probation check against current state.
func (e Engine) EvaluateProbation(ctx context.Context, id int64) (lifecycle.Evaluation, error) {
	v, err := e.Repo.GetVolunteer(ctx, id)
	if err != nil {
		return lifecycle.Evaluation{}, err
	}
	return lifecycle.Evaluate(v, e.now(), e.policy())
}

// IncrementAndMaybePromote adds one commitment and re-runs the promotion
// check. Promotion fires at most once; the status guard makes repeat calls
// after promotion no-ops.
func (e Engine) IncrementAndMaybePromote(ctx context.Context, id int64, actorID string) (domain.Volunteer, bool, error) {
	v, err := e.Repo.GetVolunteer(ctx, id)
	if err != nil {
		return domain.Volunteer{}, false, err
	}
	next := v.Commitments + 1
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Volunteer{}, false, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateVolunteer(ctx, tx, id, repo.VolunteerUpdate{Commitments: &next, UpdatedAt: now}); err != nil {
		return domain.Volunteer{}, false, err
	}
	v.Commitments = next
	v.UpdatedAt = now

	promoted, err := e.promoteInTx(ctx, tx, &v, actorID)
	if err != nil {
		return domain.Volunteer{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Volunteer{}, false, err
	}
	if promoted {
		e.announcePromotion(ctx, v)
	}
	return v, promoted, nil
}

// PromoteIfEligible transitions a probation volunteer who meets the target
// to active. Idempotent and re-entrant: anything but probation is a no-op.
func (e Engine) PromoteIfEligible(ctx context.Context, id int64, actorID string) (bool, error) {
	v, err := e.Repo.GetVolunteer(ctx, id)
	if err != nil {
		return false, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	promoted, err := e.promoteInTx(ctx, tx, &v, actorID)
	if err != nil {
		return false, err
	}
	if !promoted {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	e.announcePromotion(ctx, v)
	return true, nil
}

// promoteInTx applies the promotion inside the caller's transaction. The
// volunteer snapshot is updated in place when the transition fires.
func (e Engine) promoteInTx(ctx context.Context, tx *sql.Tx, v *domain.Volunteer, actorID string) (bool, error) {
	if v.Status != domain.StatusProbation {
		return false, nil
	}
	ev, err := lifecycle.Evaluate(*v, e.now(), e.policy())
	if err != nil {
		return false, err
	}
	if !ev.Eligible {
		return false, nil
	}
	active := domain.StatusActive
	now := e.timestamp()
	if err := e.Repo.UpdateVolunteer(ctx, tx, v.ID, repo.VolunteerUpdate{Status: &active, UpdatedAt: now}); err != nil {
		return false, err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeVolunteerPromoted, "volunteer", idString(v.ID), actorID, journal.Payload{
		"handle":      v.Handle,
		"commitments": v.Commitments,
	}); err != nil {
		return false, err
	}
	v.Status = active
	v.UpdatedAt = now
	return true, nil
}

func (e Engine) announcePromotion(ctx context.Context, v domain.Volunteer) {
	name := v.Name
	if name == "" {
		name = v.Handle
	}
	e.Logger.Info("volunteer promoted",
		zap.Int64("volunteer_id", v.ID),
		zap.String("handle", v.Handle))
	e.notifyBestEffort(ctx, notify.AudienceAnnouncements,
		fmt.Sprintf("%s completed %d commitments and is now an active volunteer. Congratulations!", name, v.Commitments))
}

func idString(id int64) string {
	return fmt.Sprintf("%d", id)
}
