// Package db owns the workspace data directory and the sqlite connection.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir  = ".crewline"
	defaultDBName = "crewline.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .crewline data directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir %s: %w", dir, err)
	}
	return dir, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, defaultDBName)
}

// Open opens the workspace database. Foreign keys enforce the
// event/task/assignment cascades and WAL keeps the CLI and server from
// blocking each other on the same file.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(wal)",
		"_pragma=busy_timeout(5000)",
	}
	dsn := fmt.Sprintf("file:%s?%s", Path(cfg.Workspace), strings.Join(pragmas, "&"))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
