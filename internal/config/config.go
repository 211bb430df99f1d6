package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models crewline.yml.
type Config struct {
	Org struct {
		Name string `yaml:"name"`
	} `yaml:"org"`
	Tracking struct {
		CommitmentTarget int `yaml:"commitment_target"`
		WindowDays       int `yaml:"window_days"`
	} `yaml:"tracking"`
	Assignment struct {
		// OneTaskPerEvent blocks a volunteer from holding assignments on two
		// tasks of the same event. Off by default.
		OneTaskPerEvent bool `yaml:"one_task_per_event"`
	} `yaml:"assignment"`
	Events struct {
		// TaskTemplates seeds an event's task list at creation, keyed by format.
		TaskTemplates map[string][]TaskTemplate `yaml:"task_templates"`
	} `yaml:"events"`
	Notify struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notify"`
	Scheduler struct {
		Enabled  bool   `yaml:"enabled"`
		Hour     int    `yaml:"hour"`
		Location string `yaml:"location"`
	} `yaml:"scheduler"`
}

type TaskTemplate struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	Audiences      []string `yaml:"audiences"`
	Types          []string `yaml:"types"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Org.Name == "" {
		return fmt.Errorf("config.org.name is required")
	}
	if c.Tracking.CommitmentTarget <= 0 {
		return fmt.Errorf("config.tracking.commitment_target must be positive")
	}
	if c.Tracking.WindowDays <= 0 {
		return fmt.Errorf("config.tracking.window_days must be positive")
	}
	if c.Scheduler.Hour < 0 || c.Scheduler.Hour > 23 {
		return fmt.Errorf("config.scheduler.hour must be between 0 and 23")
	}
	for format, templates := range c.Events.TaskTemplates {
		if format == "" {
			return fmt.Errorf("config.events.task_templates has empty format key")
		}
		for i, tpl := range templates {
			if tpl.Title == "" {
				return fmt.Errorf("task template %d for format %s has empty title", i, format)
			}
		}
	}
	for i, hook := range c.Notify.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crewline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for an organization.
func Default(orgName string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgName))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgName string) string {
	return fmt.Sprintf(defaultTemplate, orgName)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `org:
  name: %s

tracking:
  commitment_target: 3
  window_days: 90

assignment:
  one_task_per_event: false

events:
  task_templates:
    service_day:
      - title: "Setup"
        description: "Arrive early, set up tables and signage"
      - title: "Registration desk"
        description: "Check participants in"
      - title: "Teardown"
        description: "Pack up and leave the venue clean"
    workshop:
      - title: "Materials prep"
        description: "Print handouts, test equipment"
      - title: "Room host"
        description: "Greet attendees, manage the room"
    fundraiser:
      - title: "Donation table"
      - title: "Outreach"
        description: "Hand out flyers, talk to passers-by"
    social:
      - title: "Food and drinks"
    meeting:
      - title: "Minutes"
        description: "Take and circulate meeting notes"

notify:
  webhooks: []

scheduler:
  enabled: false
  hour: 9
  location: Local
`
