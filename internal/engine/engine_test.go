package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/domain"
	"crewline/internal/engine"
	"crewline/internal/journal"
	"crewline/internal/migrate"
	"crewline/internal/repo"
)

type testEnv struct {
	Engine   engine.Engine
	Notifier *recordingNotifier
	Ctx      context.Context
}

type recordingNotifier struct {
	Messages []string
	Err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, audience, message string) error {
	n.Messages = append(n.Messages, audience+": "+message)
	return n.Err
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("Riverbend Mutual Aid")
	// most tests create their tasks explicitly
	cfg.Events.TaskTemplates = nil
	notifier := &recordingNotifier{}
	eng := engine.New(conn, cfg, notifier, nil)
	eng.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return &testEnv{Engine: eng, Notifier: notifier, Ctx: context.Background()}
}

func (env *testEnv) volunteer(t *testing.T, handle string) domain.Volunteer {
	t.Helper()
	v, err := env.Engine.CreateVolunteer(env.Ctx, handle, "", "tester")
	if err != nil {
		t.Fatalf("create volunteer %s: %v", handle, err)
	}
	return v
}

func (env *testEnv) eventWithTask(t *testing.T, title string) (domain.Event, domain.Task) {
	t.Helper()
	ev, _, err := env.Engine.CreateEvent(env.Ctx, engine.CreateEventInput{
		Title:  title,
		Format: domain.FormatMeeting,
	}, "tester")
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, ev.ID, "setup", "", "tester")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return ev, task
}

func TestCreateVolunteerDefaults(t *testing.T) {
	env := newTestEnv(t)
	v := env.volunteer(t, "ada")
	if v.Status != domain.StatusProbation {
		t.Fatalf("status = %s, want probation", v.Status)
	}
	if v.Commitments != 0 {
		t.Fatalf("commitments = %d, want 0", v.Commitments)
	}
	if v.PeriodStart != "2026-03-10" {
		t.Fatalf("period_start = %s", v.PeriodStart)
	}

	_, err := env.Engine.CreateVolunteer(env.Ctx, "ada", "Second Ada", "tester")
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate handle: got %v, want conflict", err)
	}
}

func TestPromotionAtTarget(t *testing.T) {
	env := newTestEnv(t)
	v := env.volunteer(t, "ada")

	for i := 1; i <= 2; i++ {
		got, promoted, err := env.Engine.IncrementAndMaybePromote(env.Ctx, v.ID, "tester")
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if promoted || got.Status != domain.StatusProbation {
			t.Fatalf("increment %d: promoted early (status %s)", i, got.Status)
		}
	}
	got, promoted, err := env.Engine.IncrementAndMaybePromote(env.Ctx, v.ID, "tester")
	if err != nil {
		t.Fatalf("third increment: %v", err)
	}
	if !promoted || got.Status != domain.StatusActive {
		t.Fatalf("third increment: promoted=%v status=%s", promoted, got.Status)
	}
	if len(env.Notifier.Messages) != 1 {
		t.Fatalf("notifications = %d, want 1", len(env.Notifier.Messages))
	}

	// already active, nothing more to promote
	promoted, err = env.Engine.PromoteIfEligible(env.Ctx, v.ID, "tester")
	if err != nil || promoted {
		t.Fatalf("repeat promote: promoted=%v err=%v", promoted, err)
	}
	if len(env.Notifier.Messages) != 1 {
		t.Fatalf("repeat promote sent another notification")
	}
}

func TestNotifyFailureNeverRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.Notifier.Err = errors.New("webhook down")
	v := env.volunteer(t, "ada")
	if _, err := env.Engine.SetCommitments(env.Ctx, v.ID, 2, "tester"); err != nil {
		t.Fatal(err)
	}

	got, promoted, err := env.Engine.IncrementAndMaybePromote(env.Ctx, v.ID, "tester")
	if err != nil {
		t.Fatalf("promote with failing notifier: %v", err)
	}
	if !promoted || got.Status != domain.StatusActive {
		t.Fatalf("promotion rolled back: promoted=%v status=%s", promoted, got.Status)
	}
	entries, err := env.Engine.Repo.LatestEntries(env.Ctx, 5, journal.TypeVolunteerPromoted, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("promotion journal entries = %d, want 1", len(entries))
	}

	res, err := env.Engine.ResetPeriod(env.Ctx, "2026-03-31", "scheduler")
	if err != nil {
		t.Fatalf("reset with failing notifier: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("reset result = %+v", res)
	}
	got, err = env.Engine.GetVolunteer(env.Ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Commitments != 0 || got.PeriodStart != "2026-04-01" {
		t.Fatalf("reset rolled back: %+v", got)
	}
}

func TestNoPromotionOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	v := env.volunteer(t, "ada")

	// jump past the 90-day window before the third commitment lands
	env.Engine.Now = func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) }
	if _, err := env.Engine.SetCommitments(env.Ctx, v.ID, 2, "tester"); err != nil {
		t.Fatal(err)
	}
	got, promoted, err := env.Engine.IncrementAndMaybePromote(env.Ctx, v.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if promoted || got.Status != domain.StatusProbation {
		t.Fatalf("promoted outside window: status=%s", got.Status)
	}

	ev, err := env.Engine.EvaluateProbation(env.Ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Eligible || ev.DaysRemaining != 0 {
		t.Fatalf("evaluation = %+v", ev)
	}
}

func TestCompleteTaskCreditsAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ada := env.volunteer(t, "ada")
	ben := env.volunteer(t, "ben")
	_, task := env.eventWithTask(t, "March service day")

	for _, v := range []domain.Volunteer{ada, ben} {
		if _, err := env.Engine.Assign(env.Ctx, task.ID, v.ID, nil, v.Handle); err != nil {
			t.Fatalf("assign %s: %v", v.Handle, err)
		}
	}

	res, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.AlreadyComplete || len(res.Credited) != 2 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v", res)
	}

	// a repeat completion moves no counters
	res, err = env.Engine.CompleteTask(env.Ctx, task.ID, "tester")
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if !res.AlreadyComplete || len(res.Credited) != 0 {
		t.Fatalf("repeat result = %+v", res)
	}
	for _, id := range []int64{ada.ID, ben.ID} {
		v, err := env.Engine.GetVolunteer(env.Ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if v.Commitments != 1 {
			t.Fatalf("volunteer %d commitments = %d, want 1", id, v.Commitments)
		}
	}
}

func TestDuplicateAssignmentConflict(t *testing.T) {
	env := newTestEnv(t)
	ada := env.volunteer(t, "ada")
	_, task := env.eventWithTask(t, "Bake sale")

	if _, err := env.Engine.Assign(env.Ctx, task.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	dec, err := env.Engine.CanAssign(env.Ctx, task.ID, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatalf("pre-check allowed a duplicate")
	}
	_, err = env.Engine.Assign(env.Ctx, task.ID, ada.ID, nil, "ada")
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second assign: got %v, want conflict", err)
	}
	assignments, err := env.Engine.ListAssignments(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 1 {
		t.Fatalf("assignment rows = %d, want 1", len(assignments))
	}
}

func TestUnassign(t *testing.T) {
	env := newTestEnv(t)
	ada := env.volunteer(t, "ada")
	_, task := env.eventWithTask(t, "Bake sale")

	if err := env.Engine.Unassign(env.Ctx, task.ID, ada.ID, "tester"); err != repo.ErrNotFound {
		t.Fatalf("unassign before assign: %v, want not found", err)
	}
	if _, err := env.Engine.Assign(env.Ctx, task.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.Unassign(env.Ctx, task.ID, ada.ID, "tester"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	assignments, err := env.Engine.ListAssignments(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 0 {
		t.Fatalf("assignment rows = %d after unassign", len(assignments))
	}

	// an unassigned volunteer earns nothing from completion
	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	v, err := env.Engine.GetVolunteer(env.Ctx, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Commitments != 0 {
		t.Fatalf("commitments = %d, want 0", v.Commitments)
	}
}

func TestCanAssignBlocksCompleteTask(t *testing.T) {
	env := newTestEnv(t)
	ada := env.volunteer(t, "ada")
	_, task := env.eventWithTask(t, "Cleanup")

	if _, err := env.Engine.CompleteTask(env.Ctx, task.ID, "tester"); err != nil {
		t.Fatal(err)
	}
	dec, err := env.Engine.CanAssign(env.Ctx, task.ID, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatalf("assignment allowed on a complete task")
	}

	// Assign enforces the same rule for callers that skip the pre-check
	_, err = env.Engine.Assign(env.Ctx, task.ID, ada.ID, nil, "ada")
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("assign to complete task: got %v, want conflict", err)
	}
	assignments, err := env.Engine.ListAssignments(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 0 {
		t.Fatalf("assignment row landed on a complete task")
	}
}

func TestOneTaskPerEventPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Assignment.OneTaskPerEvent = true
	ada := env.volunteer(t, "ada")
	ev, task := env.eventWithTask(t, "Workshop night")
	second, err := env.Engine.CreateTask(env.Ctx, ev.ID, "teardown", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Assign(env.Ctx, task.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatal(err)
	}
	dec, err := env.Engine.CanAssign(env.Ctx, second.ID, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed {
		t.Fatalf("policy did not block second task in the same event")
	}
	_, err = env.Engine.Assign(env.Ctx, second.ID, ada.ID, nil, "ada")
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("assign to second task: got %v, want conflict", err)
	}

	// a task in another event is fine
	_, other := env.eventWithTask(t, "Potluck")
	if _, err := env.Engine.Assign(env.Ctx, other.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatalf("assign in other event: %v", err)
	}
}

func TestEventStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	ev, _ := env.eventWithTask(t, "Fundraiser")

	ev2, _, err := env.Engine.SetEventStatus(env.Ctx, ev.ID, domain.EventPublished, "tester")
	if err != nil || ev2.Status != domain.EventPublished {
		t.Fatalf("publish: %v (status %s)", err, ev2.Status)
	}
	_, _, err = env.Engine.SetEventStatus(env.Ctx, ev.ID, domain.EventPlanning, "tester")
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("publish -> planning: got %v, want conflict", err)
	}
	if _, _, err := env.Engine.SetEventStatus(env.Ctx, ev.ID, domain.EventCancelled, "tester"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, _, err = env.Engine.SetEventStatus(env.Ctx, ev.ID, domain.EventCompleted, "tester")
	if !errors.As(err, &conflict) {
		t.Fatalf("cancelled -> completed: got %v, want conflict", err)
	}
}

func TestEventCompletionCascade(t *testing.T) {
	env := newTestEnv(t)
	ada := env.volunteer(t, "ada")
	ev, first := env.eventWithTask(t, "Service day")
	second, err := env.Engine.CreateTask(env.Ctx, ev.ID, "teardown", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Assign(env.Ctx, first.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Assign(env.Ctx, second.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatal(err)
	}

	_, summary, err := env.Engine.SetEventStatus(env.Ctx, ev.ID, domain.EventCompleted, "tester")
	if err != nil {
		t.Fatalf("complete event: %v", err)
	}
	if summary == nil || summary.TasksCompleted != 2 || len(summary.TaskFailures) != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	v, err := env.Engine.GetVolunteer(env.Ctx, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v.Commitments != 2 {
		t.Fatalf("commitments = %d, want one per task", v.Commitments)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if task.Status != domain.TaskComplete {
			t.Fatalf("task %d still %s", task.ID, task.Status)
		}
	}
}

func TestEventTaskTemplates(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Events.TaskTemplates = config.Default("x").Events.TaskTemplates
	_, tasks, err := env.Engine.CreateEvent(env.Ctx, engine.CreateEventInput{
		Title:      "Spring social",
		Format:     domain.FormatSocial,
		ExtraTasks: []string{"Book the hall"},
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	templates := env.Engine.Config.Events.TaskTemplates[string(domain.FormatSocial)]
	if len(tasks) != len(templates)+1 {
		t.Fatalf("tasks = %d, want %d templates plus 1 extra", len(tasks), len(templates))
	}
	if got := tasks[len(tasks)-1].Title; got != "Book the hall" {
		t.Fatalf("extra task title = %q", got)
	}
}

func TestDeleteEventCascades(t *testing.T) {
	env := newTestEnv(t)
	ada := env.volunteer(t, "ada")
	ev, task := env.eventWithTask(t, "Doomed event")
	if _, err := env.Engine.Assign(env.Ctx, task.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteEvent(env.Ctx, ev.ID, "tester"); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID); err != repo.ErrNotFound {
		t.Fatalf("task after delete: %v, want not found", err)
	}
	assignments, err := env.Engine.Repo.ListAssignmentsByVolunteer(env.Ctx, ada.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 0 {
		t.Fatalf("orphaned assignments: %d", len(assignments))
	}
}

func TestResetPeriod(t *testing.T) {
	env := newTestEnv(t)
	idle := env.volunteer(t, "idle")
	busy := env.volunteer(t, "busy")
	lead := env.volunteer(t, "lead")
	if _, err := env.Engine.SetCommitments(env.Ctx, busy.ID, 4, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, lead.ID, domain.StatusLead, "tester"); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.ResetPeriod(env.Ctx, "2026-03-31", "scheduler")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.Total != 3 || len(res.Failures) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Inactivated) != 1 || res.Inactivated[0].ID != idle.ID {
		t.Fatalf("inactivated = %+v", res.Inactivated)
	}

	for _, tc := range []struct {
		id   int64
		want domain.VolunteerStatus
	}{
		{idle.ID, domain.StatusInactive},
		{busy.ID, domain.StatusActive},
		{lead.ID, domain.StatusLead},
	} {
		v, err := env.Engine.GetVolunteer(env.Ctx, tc.id)
		if err != nil {
			t.Fatal(err)
		}
		if v.Status != tc.want {
			t.Fatalf("volunteer %d status = %s, want %s", tc.id, v.Status, tc.want)
		}
		if v.Commitments != 0 {
			t.Fatalf("volunteer %d commitments = %d after reset", tc.id, v.Commitments)
		}
		if v.PeriodStart != "2026-04-01" || v.PeriodEnd != nil {
			t.Fatalf("volunteer %d period = %s..%v", tc.id, v.PeriodStart, v.PeriodEnd)
		}
	}
}

func TestResetCountsPreResetSnapshot(t *testing.T) {
	env := newTestEnv(t)
	v := env.volunteer(t, "ada")
	if _, err := env.Engine.SetCommitments(env.Ctx, v.ID, 1, "tester"); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.ResetPeriod(env.Ctx, "2026-03-31", "scheduler")
	if err != nil {
		t.Fatal(err)
	}
	// one commitment before the reset keeps the volunteer on the roster
	// even though the counter is zero afterwards
	if len(res.Inactivated) != 0 {
		t.Fatalf("inactivated = %+v", res.Inactivated)
	}
	got, err := env.Engine.GetVolunteer(env.Ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusProbation || got.Commitments != 0 {
		t.Fatalf("after reset: %+v", got)
	}
}

func TestSetStatusValidationAndOverride(t *testing.T) {
	env := newTestEnv(t)
	v := env.volunteer(t, "ada")

	_, err := env.Engine.SetStatus(env.Ctx, v.ID, "superhero", "tester")
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("bad status: got %v, want validation error", err)
	}
	_, err = env.Engine.SetCommitments(env.Ctx, v.ID, -1, "tester")
	if !errors.As(err, &invalid) {
		t.Fatalf("negative commitments: got %v, want validation error", err)
	}

	got, err := env.Engine.SetStatus(env.Ctx, v.ID, domain.StatusLead, "tester")
	if err != nil || got.Status != domain.StatusLead {
		t.Fatalf("set lead: %v (status %s)", err, got.Status)
	}
}

func TestStatusReport(t *testing.T) {
	env := newTestEnv(t)
	env.volunteer(t, "ada")
	ben := env.volunteer(t, "ben")
	if _, err := env.Engine.SetStatus(env.Ctx, ben.ID, domain.StatusActive, "tester"); err != nil {
		t.Fatal(err)
	}

	report, err := env.Engine.StatusReport(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 2 {
		t.Fatalf("total = %d", report.Total)
	}
	if report.Counts[domain.StatusProbation] != 1 || report.Counts[domain.StatusActive] != 1 {
		t.Fatalf("counts = %+v", report.Counts)
	}
	if len(report.ByStatus[domain.StatusActive]) != 1 || report.ByStatus[domain.StatusActive][0].Handle != "ben" {
		t.Fatalf("by_status = %+v", report.ByStatus)
	}
}

func TestDeleteVolunteerCascadesAssignments(t *testing.T) {
	env := newTestEnv(t)
	ada := env.volunteer(t, "ada")
	_, task := env.eventWithTask(t, "One-off")
	if _, err := env.Engine.Assign(env.Ctx, task.ID, ada.ID, nil, "ada"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteVolunteer(env.Ctx, ada.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetVolunteer(env.Ctx, ada.ID); err != repo.ErrNotFound {
		t.Fatalf("get after delete: %v", err)
	}
	assignments, err := env.Engine.ListAssignments(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(assignments) != 0 {
		t.Fatalf("orphaned assignments: %d", len(assignments))
	}
}
