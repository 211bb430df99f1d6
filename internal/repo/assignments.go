package repo

import (
	"context"
	"database/sql"
	"strings"

	"crewline/internal/domain"
)

const assignmentCols = `id,task_id,volunteer_id,assigned_by,created_at`

func scanAssignment(scan func(dest ...any) error) (domain.Assignment, error) {
	var a domain.Assignment
	var assignedBy sql.NullInt64
	err := scan(&a.ID, &a.TaskID, &a.VolunteerID, &assignedBy, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if assignedBy.Valid {
		a.AssignedBy = &assignedBy.Int64
	}
	return a, err
}

// InsertAssignment relies on the UNIQUE(task_id, volunteer_id) constraint as
// the source of truth for duplicate detection.
func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO assignments(task_id,volunteer_id,assigned_by,created_at) VALUES (?,?,?,?)`,
		a.TaskID, a.VolunteerID, nullableInt64Ptr(a.AssignedBy), a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetAssignment(ctx context.Context, taskID, volunteerID int64) (domain.Assignment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE task_id=? AND volunteer_id=?`, taskID, volunteerID)
	return scanAssignment(row.Scan)
}

func (r Repo) ListAssignmentsByTask(ctx context.Context, taskID int64) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, `task_id=?`, taskID)
}

func (r Repo) ListAssignmentsByVolunteer(ctx context.Context, volunteerID int64) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, `volunteer_id=?`, volunteerID)
}

func (r Repo) listAssignments(ctx context.Context, where string, args ...any) ([]domain.Assignment, error) {
	query := `SELECT ` + assignmentCols + ` FROM assignments`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListAssignmentsByTaskTx reads within the completion transaction so the
// cascade sees a consistent assignee set.
func (r Repo) ListAssignmentsByTaskTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.Assignment, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// VolunteerAssignedInEvent reports whether the volunteer already holds an
// assignment on any task of the given event.
func (r Repo) VolunteerAssignedInEvent(ctx context.Context, eventID, volunteerID int64) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments a JOIN tasks t ON t.id=a.task_id WHERE t.event_id=? AND a.volunteer_id=?`,
		eventID, volunteerID).Scan(&n)
	return n > 0, err
}

func (r Repo) DeleteAssignment(ctx context.Context, tx *sql.Tx, taskID, volunteerID int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE task_id=? AND volunteer_id=?`, taskID, volunteerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUniqueViolation reports whether err is the sqlite unique-constraint
// failure raised by a duplicate (task, volunteer) insert.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
