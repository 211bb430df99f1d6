package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crewline/internal/domain"
)

const eventCols = `id,title,date,format,status,COALESCE(venue,'') AS venue,COALESCE(details,'') AS details,created_by,created_at,updated_at`

func scanEvent(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var date sql.NullString
	var createdBy sql.NullInt64
	err := scan(&e.ID, &e.Title, &date, &e.Format, &e.Status, &e.Venue, &e.Details, &createdBy, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if date.Valid {
		e.Date = &date.String
	}
	if createdBy.Valid {
		e.CreatedBy = &createdBy.Int64
	}
	return e, err
}

func (r Repo) InsertEvent(ctx context.Context, tx *sql.Tx, e domain.Event) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO events(title,date,format,status,venue,details,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.Title, nullableStringPtr(e.Date), e.Format, e.Status, nullable(e.Venue), nullable(e.Details), nullableInt64Ptr(e.CreatedBy), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id=?`, id)
	return scanEvent(row.Scan)
}

func (r Repo) ListEvents(ctx context.Context, status domain.EventStatus) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) UpdateEventStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.EventStatus, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EventUpdate carries the mutable event fields; nil means unchanged.
type EventUpdate struct {
	Title     *string
	Date      **string
	Venue     *string
	Details   *string
	UpdatedAt string
}

func (r Repo) UpdateEvent(ctx context.Context, tx *sql.Tx, id int64, u EventUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *u.Title)
	}
	if u.Date != nil {
		fields = append(fields, "date=?")
		args = append(args, nullableStringPtr(*u.Date))
	}
	if u.Venue != nil {
		fields = append(fields, "venue=?")
		args = append(args, nullable(*u.Venue))
	}
	if u.Details != nil {
		fields = append(fields, "details=?")
		args = append(args, nullable(*u.Details))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, u.UpdatedAt, id)
	res, err := exec(ctx, r.DB, tx, fmt.Sprintf(`UPDATE events SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEvent removes the event; tasks and assignments follow via FK cascade.
func (r Repo) DeleteEvent(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := exec(ctx, r.DB, tx, `DELETE FROM events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const taskCols = `id,event_id,title,COALESCE(description,'') AS description,status,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	err := scan(&t.ID, &t.EventID, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(event_id,title,description,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		t.EventID, t.Title, nullable(t.Description), t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

func (r Repo) ListTasksByEvent(ctx context.Context, eventID int64) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE event_id=? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) UpdateTaskStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.TaskStatus, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := exec(ctx, r.DB, tx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, eventID int64) (map[domain.TaskStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE event_id=? GROUP BY status`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status domain.TaskStatus
		var c int
		if err := rows.Scan(&status, &c); err != nil {
			return nil, err
		}
		counts[status] = c
	}
	return counts, rows.Err()
}
