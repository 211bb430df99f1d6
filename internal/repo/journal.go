package repo

import (
	"context"
	"database/sql"
	"strings"

	"crewline/internal/domain"
)

const journalCols = `id,ts,type,entity_kind,COALESCE(entity_id,'') AS entity_id,actor_id,payload_json`

func scanEntry(scan func(dest ...any) error) (domain.JournalEntry, error) {
	var e domain.JournalEntry
	err := scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// EntriesAfter returns up to limit entries with id greater than afterID, in id order.
func (r Repo) EntriesAfter(ctx context.Context, limit int, afterID int64) ([]domain.JournalEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+journalCols+` FROM journal WHERE id>? ORDER BY id LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEntryID returns the current journal high-water mark, 0 when empty.
func (r Repo) LatestEntryID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM journal`).Scan(&id)
	return id, err
}

// LatestEntries returns the newest n entries, optionally filtered.
func (r Repo) LatestEntries(ctx context.Context, n int, entryType, entityKind, entityID string) ([]domain.JournalEntry, error) {
	var clauses []string
	var args []any
	if entryType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, entryType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := `SELECT ` + journalCols + ` FROM journal`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
