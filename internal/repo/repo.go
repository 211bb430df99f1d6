package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"crewline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const volunteerCols = `id,handle,COALESCE(name,'') AS name,status,commitments,period_start,period_end,created_at,updated_at`

func scanVolunteer(scan func(dest ...any) error) (domain.Volunteer, error) {
	var v domain.Volunteer
	var periodEnd sql.NullString
	err := scan(&v.ID, &v.Handle, &v.Name, &v.Status, &v.Commitments, &v.PeriodStart, &periodEnd, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if periodEnd.Valid {
		v.PeriodEnd = &periodEnd.String
	}
	return v, err
}

func (r Repo) InsertVolunteer(ctx context.Context, tx *sql.Tx, v domain.Volunteer) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO volunteers(handle,name,status,commitments,period_start,period_end,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		v.Handle, nullable(v.Name), v.Status, v.Commitments, v.PeriodStart, nullableStringPtr(v.PeriodEnd), v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetVolunteer(ctx context.Context, id int64) (domain.Volunteer, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+volunteerCols+` FROM volunteers WHERE id=?`, id)
	return scanVolunteer(row.Scan)
}

func (r Repo) GetVolunteerByHandle(ctx context.Context, handle string) (domain.Volunteer, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+volunteerCols+` FROM volunteers WHERE handle=?`, handle)
	return scanVolunteer(row.Scan)
}

func (r Repo) ListVolunteers(ctx context.Context, status domain.VolunteerStatus) ([]domain.Volunteer, error) {
	query := `SELECT ` + volunteerCols + ` FROM volunteers`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Volunteer
	for rows.Next() {
		v, err := scanVolunteer(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// VolunteerUpdate carries the mutable volunteer fields; nil means unchanged.
type VolunteerUpdate struct {
	Name        *string
	Status      *domain.VolunteerStatus
	Commitments *int
	PeriodStart *string
	PeriodEnd   **string
	UpdatedAt   string
}

func (r Repo) UpdateVolunteer(ctx context.Context, tx *sql.Tx, id int64, u VolunteerUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, nullable(*u.Name))
	}
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.Commitments != nil {
		fields = append(fields, "commitments=?")
		args = append(args, *u.Commitments)
	}
	if u.PeriodStart != nil {
		fields = append(fields, "period_start=?")
		args = append(args, *u.PeriodStart)
	}
	if u.PeriodEnd != nil {
		fields = append(fields, "period_end=?")
		args = append(args, nullableStringPtr(*u.PeriodEnd))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, u.UpdatedAt, id)
	res, err := exec(ctx, r.DB, tx, fmt.Sprintf(`UPDATE volunteers SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteVolunteer(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := exec(ctx, r.DB, tx, `DELETE FROM volunteers WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountVolunteersByStatus(ctx context.Context) (map[domain.VolunteerStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM volunteers GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[domain.VolunteerStatus]int)
	for rows.Next() {
		var status domain.VolunteerStatus
		var c int
		if err := rows.Scan(&status, &c); err != nil {
			return nil, err
		}
		counts[status] = c
	}
	return counts, rows.Err()
}

func exec(ctx context.Context, db *sql.DB, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
