// Package app wires the workspace together for the CLI and the server:
// database, migrations, config resolution, and engine construction.
package app

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"crewline/internal/config"
	"crewline/internal/db"
	"crewline/internal/engine"
	"crewline/internal/migrate"
	"crewline/internal/notify"
)

// ResolveConfig loads the workspace config, seeding the default file on
// first use so the organization has something to edit.
func ResolveConfig(workspace, orgName string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	if orgName == "" {
		orgName = "My Organization"
	}
	path := config.Path(workspace)
	if err := os.WriteFile(path, []byte(config.GenerateDefault(orgName)), 0o644); err != nil {
		return nil, fmt.Errorf("seed config %s: %w", path, err)
	}
	return config.Default(orgName), nil
}

// OpenEngine opens the workspace database, runs migrations, and returns a
// ready engine. The caller owns the returned close function.
func OpenEngine(workspace, orgName string, logger *zap.Logger) (engine.Engine, func(), error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	cfg, err := ResolveConfig(workspace, orgName)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if len(cfg.Notify.Webhooks) > 0 {
		notifier = notify.Multi{
			notify.LogNotifier{Logger: logger},
			notify.NewWebhookNotifier(cfg.Notify.Webhooks, logger),
		}
	}
	eng := engine.New(conn, cfg, notifier, logger)
	return eng, func() { conn.Close() }, nil
}
