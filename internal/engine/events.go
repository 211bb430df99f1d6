package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crewline/internal/domain"
	"crewline/internal/journal"
	"crewline/internal/repo"
)

// CreateEventInput carries the event fields plus any extra task titles to
// seed beyond the configured templates for the format.
type CreateEventInput struct {
	Title      string
	Date       *string
	Format     domain.EventFormat
	Venue      string
	Details    string
	CreatedBy  *int64
	ExtraTasks []string
}

// CreateEvent opens a new event in planning and seeds its task list from the
// configured templates for the format, followed by any extra tasks from the
// input. A nil date means the date is still TBD.
func (e Engine) CreateEvent(ctx context.Context, in CreateEventInput, actorID string) (domain.Event, []domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Event{}, nil, ValidationError{Reason: "title is required"}
	}
	if !in.Format.IsValid() {
		return domain.Event{}, nil, ValidationError{Reason: fmt.Sprintf("unknown format %q", in.Format)}
	}
	if in.Date != nil {
		if _, err := time.Parse(dateLayout, *in.Date); err != nil {
			return domain.Event{}, nil, ValidationError{Reason: fmt.Sprintf("bad date %q, want YYYY-MM-DD", *in.Date)}
		}
	}
	now := e.timestamp()
	ev := domain.Event{
		Title:     in.Title,
		Date:      in.Date,
		Format:    in.Format,
		Status:    domain.EventPlanning,
		Venue:     strings.TrimSpace(in.Venue),
		Details:   in.Details,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, nil, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertEvent(ctx, tx, ev)
	if err != nil {
		return domain.Event{}, nil, fmt.Errorf("insert event: %w", err)
	}
	ev.ID = id

	var tasks []domain.Task
	if e.Config != nil {
		for _, tpl := range e.Config.Events.TaskTemplates[string(in.Format)] {
			t := domain.Task{
				EventID:     id,
				Title:       tpl.Title,
				Description: tpl.Description,
				Status:      domain.TaskTodo,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			tid, err := e.Repo.InsertTask(ctx, tx, t)
			if err != nil {
				return domain.Event{}, nil, fmt.Errorf("seed task %q: %w", tpl.Title, err)
			}
			t.ID = tid
			tasks = append(tasks, t)
		}
	}
	for _, title := range in.ExtraTasks {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		t := domain.Task{
			EventID:   id,
			Title:     title,
			Status:    domain.TaskTodo,
			CreatedAt: now,
			UpdatedAt: now,
		}
		tid, err := e.Repo.InsertTask(ctx, tx, t)
		if err != nil {
			return domain.Event{}, nil, fmt.Errorf("seed task %q: %w", title, err)
		}
		t.ID = tid
		tasks = append(tasks, t)
	}

	if err := e.Journal.Append(ctx, tx, journal.TypeEventCreated, "event", idString(id), actorID, journal.Payload{
		"title":  ev.Title,
		"format": ev.Format,
		"tasks":  len(tasks),
	}); err != nil {
		return domain.Event{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, nil, err
	}
	return ev, tasks, nil
}

func (e Engine) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	return e.Repo.GetEvent(ctx, id)
}

func (e Engine) ListEvents(ctx context.Context, status domain.EventStatus) ([]domain.Event, error) {
	if status != "" && !status.IsValid() {
		return nil, ValidationError{Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return e.Repo.ListEvents(ctx, status)
}

// UpdateEvent edits the descriptive fields. Status changes go through
// SetEventStatus only.
func (e Engine) UpdateEvent(ctx context.Context, id int64, u repo.EventUpdate, actorID string) (domain.Event, error) {
	if u.Date != nil && *u.Date != nil {
		if _, err := time.Parse(dateLayout, **u.Date); err != nil {
			return domain.Event{}, ValidationError{Reason: fmt.Sprintf("bad date %q, want YYYY-MM-DD", **u.Date)}
		}
	}
	if _, err := e.Repo.GetEvent(ctx, id); err != nil {
		return domain.Event{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()

	u.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateEvent(ctx, tx, id, u); err != nil {
		return domain.Event{}, err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeEventUpdated, "event", idString(id), actorID, nil); err != nil {
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	return e.Repo.GetEvent(ctx, id)
}

// CascadeSummary reports what the completion cascade did. TaskFailures holds
// one message per task whose completion failed; those tasks keep their prior
// status and can be completed individually later.
type CascadeSummary struct {
	TasksCompleted int                   `json:"tasks_completed"`
	Credited       []domain.VolunteerRef `json:"credited,omitempty"`
	Promoted       []domain.VolunteerRef `json:"promoted,omitempty"`
	TaskFailures   []string              `json:"task_failures,omitempty"`
}

// SetEventStatus moves the event along planning -> published -> completed,
// with cancelled reachable from any non-terminal state. Completing the event
// cascades: every open task is completed and its assignees credited. Task
// failures do not undo the event transition; they are collected and returned.
func (e Engine) SetEventStatus(ctx context.Context, id int64, to domain.EventStatus, actorID string) (domain.Event, *CascadeSummary, error) {
	if !to.IsValid() {
		return domain.Event{}, nil, ValidationError{Reason: fmt.Sprintf("unknown status %q", to)}
	}
	ev, err := e.Repo.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, nil, err
	}
	if ev.Status == to {
		return ev, nil, nil
	}
	if !ev.Status.CanTransition(to) {
		return domain.Event{}, nil, ConflictError{Reason: fmt.Sprintf("cannot move event from %s to %s", ev.Status, to)}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, nil, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateEventStatus(ctx, tx, id, to, now); err != nil {
		return domain.Event{}, nil, err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeEventStatusChanged, "event", idString(id), actorID, journal.Payload{
		"from": ev.Status,
		"to":   to,
	}); err != nil {
		return domain.Event{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, nil, err
	}
	ev.Status = to
	ev.UpdatedAt = now

	if to != domain.EventCompleted {
		return ev, nil, nil
	}
	summary, err := e.cascadeCompletion(ctx, ev, actorID)
	if err != nil {
		return domain.Event{}, nil, err
	}
	return ev, summary, nil
}

// cascadeCompletion completes every open task on the event. Each task runs
// in its own transaction; one failed task never blocks the rest.
func (e Engine) cascadeCompletion(ctx context.Context, ev domain.Event, actorID string) (*CascadeSummary, error) {
	tasks, err := e.Repo.ListTasksByEvent(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	summary := &CascadeSummary{}
	for _, t := range tasks {
		if t.Status == domain.TaskComplete {
			continue
		}
		res, err := e.CompleteTask(ctx, t.ID, actorID)
		if err != nil {
			e.Logger.Warn("cascade task completion failed",
				zap.Int64("event_id", ev.ID),
				zap.Int64("task_id", t.ID),
				zap.Error(err))
			summary.TaskFailures = append(summary.TaskFailures, fmt.Sprintf("task %d: %v", t.ID, err))
			continue
		}
		summary.TasksCompleted++
		summary.Credited = append(summary.Credited, res.Credited...)
		summary.Promoted = append(summary.Promoted, res.Promoted...)
		summary.TaskFailures = append(summary.TaskFailures, res.Failed...)
	}
	e.Logger.Info("event completed",
		zap.Int64("event_id", ev.ID),
		zap.Int("tasks_completed", summary.TasksCompleted),
		zap.Int("failures", len(summary.TaskFailures)))
	return summary, nil
}

// DeleteEvent removes the event; tasks and their assignments go with it.
func (e Engine) DeleteEvent(ctx context.Context, id int64, actorID string) error {
	ev, err := e.Repo.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteEvent(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeEventDeleted, "event", idString(id), actorID, journal.Payload{
		"title": ev.Title,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateTask adds a task to an event. Terminal events take no new tasks.
func (e Engine) CreateTask(ctx context.Context, eventID int64, title, description, actorID string) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Task{}, ValidationError{Reason: "title is required"}
	}
	ev, err := e.Repo.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Task{}, err
	}
	if ev.Status.Terminal() {
		return domain.Task{}, ConflictError{Reason: fmt.Sprintf("event %d is %s", eventID, ev.Status)}
	}
	now := e.timestamp()
	t := domain.Task{
		EventID:     eventID,
		Title:       title,
		Description: description,
		Status:      domain.TaskTodo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	t.ID = id
	if err := e.Journal.Append(ctx, tx, journal.TypeTaskCreated, "task", idString(id), actorID, journal.Payload{
		"event_id": eventID,
		"title":    title,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, eventID int64) ([]domain.Task, error) {
	if _, err := e.Repo.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return e.Repo.ListTasksByEvent(ctx, eventID)
}

// StartTask marks a todo task in progress. Complete tasks stay complete.
func (e Engine) StartTask(ctx context.Context, id int64, actorID string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if t.Status == domain.TaskComplete {
		return domain.Task{}, ConflictError{Reason: fmt.Sprintf("task %d is already complete", id)}
	}
	if t.Status == domain.TaskInProgress {
		return t, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	if err := e.Repo.UpdateTaskStatus(ctx, tx, id, domain.TaskInProgress, now); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.TaskInProgress
	t.UpdatedAt = now
	return t, nil
}

// DeleteTask removes a task and its assignments. No commitment credit is
// given or taken back.
func (e Engine) DeleteTask(ctx context.Context, id int64, actorID string) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Journal.Append(ctx, tx, journal.TypeTaskDeleted, "task", idString(id), actorID, journal.Payload{
		"event_id": t.EventID,
		"title":    t.Title,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
