package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("Testville Helpers")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Testville Helpers", cfg.Org.Name)
	assert.Equal(t, 3, cfg.Tracking.CommitmentTarget)
	assert.Equal(t, 90, cfg.Tracking.WindowDays)
	assert.False(t, cfg.Assignment.OneTaskPerEvent)
	assert.NotEmpty(t, cfg.Events.TaskTemplates["service_day"])
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing org name", "tracking:\n  commitment_target: 3\n  window_days: 90\n"},
		{"zero target", "org:\n  name: x\ntracking:\n  commitment_target: 0\n  window_days: 90\n"},
		{"negative window", "org:\n  name: x\ntracking:\n  commitment_target: 3\n  window_days: -1\n"},
		{"bad hour", "org:\n  name: x\ntracking:\n  commitment_target: 3\n  window_days: 90\nscheduler:\n  hour: 24\n"},
		{"webhook without url", "org:\n  name: x\ntracking:\n  commitment_target: 3\n  window_days: 90\nnotify:\n  webhooks:\n    - secret: s\n"},
		{"not yaml", "org: [unclosed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestFromYAMLParsesTemplatesAndWebhooks(t *testing.T) {
	cfg, err := FromYAML([]byte(`org:
  name: Riverside Crew
tracking:
  commitment_target: 5
  window_days: 60
assignment:
  one_task_per_event: true
events:
  task_templates:
    workshop:
      - title: "Projector"
        description: "Set up the projector"
notify:
  webhooks:
    - url: https://example.org/hook
      secret: shh
      audiences: [announcements]
`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Tracking.CommitmentTarget)
	assert.True(t, cfg.Assignment.OneTaskPerEvent)
	require.Len(t, cfg.Events.TaskTemplates["workshop"], 1)
	assert.Equal(t, "Projector", cfg.Events.TaskTemplates["workshop"][0].Title)
	require.Len(t, cfg.Notify.Webhooks, 1)
	assert.Equal(t, []string{"announcements"}, cfg.Notify.Webhooks[0].Audiences)
}
