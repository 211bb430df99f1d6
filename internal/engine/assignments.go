package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"crewline/internal/domain"
	"crewline/internal/journal"
	"crewline/internal/repo"
)

// Decision is the outcome of an assignment pre-check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanAssign is the fast-path check before Assign. The storage UNIQUE
// constraint on (task, volunteer) remains the source of truth; two callers
// can both pass this check and only one insert will land.
func (e Engine) CanAssign(ctx context.Context, taskID, volunteerID int64) (Decision, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return Decision{}, err
	}
	if _, err := e.Repo.GetVolunteer(ctx, volunteerID); err != nil {
		return Decision{}, err
	}
	if t.Status == domain.TaskComplete {
		return Decision{Reason: fmt.Sprintf("task %d is already complete", taskID)}, nil
	}
	if _, err := e.Repo.GetAssignment(ctx, taskID, volunteerID); err == nil {
		return Decision{Reason: "already assigned to this task"}, nil
	} else if err != repo.ErrNotFound {
		return Decision{}, err
	}
	if e.Config != nil && e.Config.Assignment.OneTaskPerEvent {
		held, err := e.Repo.VolunteerAssignedInEvent(ctx, t.EventID, volunteerID)
		if err != nil {
			return Decision{}, err
		}
		if held {
			return Decision{Reason: "already assigned to another task in this event"}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

// Assign inserts the assignment row. AssignedBy nil marks a self-service
// commit. The completed-task and one-task-per-event rules are re-checked
// here, so callers that skip CanAssign face the same rules. A concurrent
// duplicate surfaces as a conflict from the unique index, not from the
// pre-check.
func (e Engine) Assign(ctx context.Context, taskID, volunteerID int64, assignedBy *int64, actorID string) (domain.Assignment, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Assignment{}, err
	}
	v, err := e.Repo.GetVolunteer(ctx, volunteerID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if t.Status == domain.TaskComplete {
		return domain.Assignment{}, ConflictError{Reason: fmt.Sprintf("task %d is already complete", taskID)}
	}
	if e.Config != nil && e.Config.Assignment.OneTaskPerEvent {
		held, err := e.Repo.VolunteerAssignedInEvent(ctx, t.EventID, volunteerID)
		if err != nil {
			return domain.Assignment{}, err
		}
		if held {
			return domain.Assignment{}, ConflictError{Reason: fmt.Sprintf("%s already holds a task in event %d", v.Handle, t.EventID)}
		}
	}
	a := domain.Assignment{
		TaskID:      taskID,
		VolunteerID: volunteerID,
		AssignedBy:  assignedBy,
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertAssignment(ctx, tx, a)
	if err != nil {
		if repo.IsUniqueViolation(err) {
			return domain.Assignment{}, ConflictError{Reason: fmt.Sprintf("%s is already assigned to task %d", v.Handle, taskID)}
		}
		return domain.Assignment{}, fmt.Errorf("insert assignment: %w", err)
	}
	a.ID = id
	if err := e.Journal.Append(ctx, tx, journal.TypeAssignmentCreated, "assignment", idString(id), actorID, journal.Payload{
		"task_id":      taskID,
		"volunteer_id": volunteerID,
		"self_service": assignedBy == nil,
	}); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

// Unassign removes the (task, volunteer) assignment if present.
func (e Engine) Unassign(ctx context.Context, taskID, volunteerID int64, actorID string) error {
	a, err := e.Repo.GetAssignment(ctx, taskID, volunteerID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAssignment(ctx, tx, taskID, volunteerID); err != nil {
		return err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeAssignmentRemoved, "assignment", idString(a.ID), actorID, journal.Payload{
		"task_id":      taskID,
		"volunteer_id": volunteerID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListAssignments(ctx context.Context, taskID int64) ([]domain.Assignment, error) {
	if _, err := e.Repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.ListAssignmentsByTask(ctx, taskID)
}

// CompletionResult reports the commitment cascade of a single task
// completion. Failed holds one message per assignee whose credit could not
// be applied; the task itself stays complete regardless.
type CompletionResult struct {
	Task            domain.Task           `json:"task"`
	AlreadyComplete bool                  `json:"already_complete"`
	Credited        []domain.VolunteerRef `json:"credited,omitempty"`
	Promoted        []domain.VolunteerRef `json:"promoted,omitempty"`
	Failed          []string              `json:"failed,omitempty"`
}

// CompleteTask transitions the task to complete and credits every current
// assignee with one commitment. The transition fires at most once: the
// status flip and the assignment snapshot happen in one transaction, so a
// repeat call sees complete and stops before any counter moves. Each
// assignee's credit then runs in its own transaction; one failure never
// blocks the others.
func (e Engine) CompleteTask(ctx context.Context, taskID int64, actorID string) (CompletionResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompletionResult{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if t.Status == domain.TaskComplete {
		return CompletionResult{Task: t, AlreadyComplete: true}, nil
	}
	now := e.timestamp()
	if err := e.Repo.UpdateTaskStatus(ctx, tx, taskID, domain.TaskComplete, now); err != nil {
		return CompletionResult{}, err
	}
	assignments, err := e.Repo.ListAssignmentsByTaskTx(ctx, tx, taskID)
	if err != nil {
		return CompletionResult{}, err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeTaskCompleted, "task", idString(taskID), actorID, journal.Payload{
		"event_id":  t.EventID,
		"assignees": len(assignments),
	}); err != nil {
		return CompletionResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompletionResult{}, err
	}
	t.Status = domain.TaskComplete
	t.UpdatedAt = now

	res := CompletionResult{Task: t}
	for _, a := range assignments {
		v, promoted, err := e.IncrementAndMaybePromote(ctx, a.VolunteerID, actorID)
		if err != nil {
			e.Logger.Warn("commitment credit failed",
				zap.Int64("task_id", taskID),
				zap.Int64("volunteer_id", a.VolunteerID),
				zap.Error(err))
			res.Failed = append(res.Failed, fmt.Sprintf("volunteer %d: %v", a.VolunteerID, err))
			continue
		}
		res.Credited = append(res.Credited, v.Ref())
		if promoted {
			res.Promoted = append(res.Promoted, v.Ref())
		}
	}
	return res, nil
}
