package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/engine"
	"crewline/internal/migrate"
	"crewline/internal/scheduler"
)

func TestNextFiring(t *testing.T) {
	utc := time.UTC
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid month rolls to next first",
			now:  time.Date(2026, 3, 10, 12, 0, 0, 0, utc),
			want: time.Date(2026, 4, 1, 9, 0, 0, 0, utc),
		},
		{
			name: "first of month before the hour fires same day",
			now:  time.Date(2026, 3, 1, 8, 0, 0, 0, utc),
			want: time.Date(2026, 3, 1, 9, 0, 0, 0, utc),
		},
		{
			name: "first of month after the hour rolls over",
			now:  time.Date(2026, 3, 1, 9, 0, 0, 0, utc),
			want: time.Date(2026, 4, 1, 9, 0, 0, 0, utc),
		},
		{
			name: "december rolls into january",
			now:  time.Date(2026, 12, 15, 0, 0, 0, 0, utc),
			want: time.Date(2027, 1, 1, 9, 0, 0, 0, utc),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, scheduler.NextFiring(tc.now, 9, utc))
		})
	}
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, audience, message string) error {
	n.messages = append(n.messages, audience+": "+message)
	return nil
}

func newEngine(t *testing.T, now time.Time) (engine.Engine, *fakeNotifier) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	cfg := config.Default("Test Org")
	cfg.Scheduler.Location = "UTC"
	notifier := &fakeNotifier{}
	eng := engine.New(conn, cfg, notifier, nil)
	eng.Now = func() time.Time { return now }
	return eng, notifier
}

func TestStartStop(t *testing.T) {
	eng, _ := newEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	s := scheduler.New(eng, nil)
	require.False(t, s.Armed())
	s.Start()
	require.True(t, s.Armed())
	s.Start() // second start is a no-op
	require.True(t, s.Armed())
	s.Stop()
	require.False(t, s.Armed())
}

func TestRunOnceMidQuarterReportsOnly(t *testing.T) {
	eng, notifier := newEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	v, err := eng.CreateVolunteer(ctx, "ada", "", "tester")
	require.NoError(t, err)

	s := scheduler.New(eng, nil)
	require.NoError(t, s.RunOnce(ctx))

	// no quarter boundary in March: the counter survives
	got, err := eng.GetVolunteer(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, "2026-03-10", got.PeriodStart)
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "Monthly roster")
}

func TestRunOnceQuarterBoundaryResets(t *testing.T) {
	eng, notifier := newEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	v, err := eng.CreateVolunteer(ctx, "ada", "", "tester")
	require.NoError(t, err)
	_, err = eng.SetCommitments(ctx, v.ID, 2, "tester")
	require.NoError(t, err)

	// move the clock to April 1st, the start of a new quarter
	eng.Now = func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) }
	s := scheduler.New(eng, nil)
	require.NoError(t, s.RunOnce(ctx))

	got, err := eng.GetVolunteer(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Commitments)
	require.Equal(t, "2026-04-01", got.PeriodStart)
	// reset announcement to admins plus the roster report
	require.Len(t, notifier.messages, 2)
}
