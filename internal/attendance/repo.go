package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendly/internal/errs"
	"attendly/internal/model"
	"attendly/internal/store"
)

// Repository persists attendance records. Insert and Update return errs.ErrAttendanceExists
// when the (user, date) pair is taken.
type Repository interface {
	Insert(ctx context.Context, a *model.Attendance) error
	Get(ctx context.Context, id string) (*model.Attendance, error)
	Update(ctx context.Context, a *model.Attendance) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]model.Attendance, error)
	UsersWithRecord(ctx context.Context, date string) (map[string]bool, error)
}

// Filter narrows List. Zero fields are ignored; a non-nil empty UserIDs matches nothing.
type Filter struct {
	UserID  string
	UserIDs []string
	Date    string
	From    string
	Before  string
}

// PGRepository persists attendance data in Postgres.
type PGRepository struct {
	db store.Querier
}

// NewPGRepository creates a repo.
func NewPGRepository(db store.Querier) *PGRepository {
	return &PGRepository{db: db}
}

const attendanceColumns = `id, user_id, reg_no, to_char(date, 'YYYY-MM-DD'), time, status, method, created_at, updated_at`

func scanAttendance(row interface{ Scan(...any) error }) (model.Attendance, error) {
	var a model.Attendance
	err := row.Scan(&a.ID, &a.UserID, &a.RegNo, &a.Date, &a.Time, &a.Status, &a.Method, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *PGRepository) Insert(ctx context.Context, a *model.Attendance) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, user_id, reg_no, date, time, status, method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.UserID, a.RegNo, a.Date, a.Time, string(a.Status), string(a.Method), a.CreatedAt, a.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return errs.ErrAttendanceExists
	}
	return err
}

func (r *PGRepository) Get(ctx context.Context, id string) (*model.Attendance, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrAttendanceNotFound
	}
	a, err := scanAttendance(r.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrAttendanceNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PGRepository) Update(ctx context.Context, a *model.Attendance) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance SET date = $2, time = $3, status = $4, updated_at = $5 WHERE id = $1
	`, a.ID, a.Date, a.Time, string(a.Status), a.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return errs.ErrAttendanceExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrAttendanceNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrAttendanceNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrAttendanceNotFound
	}
	return nil
}

// List returns records matching f, newest day first.
func (r *PGRepository) List(ctx context.Context, f Filter) ([]model.Attendance, error) {
	if f.UserIDs != nil && len(f.UserIDs) == 0 {
		return []model.Attendance{}, nil
	}
	if _, err := uuid.Parse(f.UserID); f.UserID != "" && err != nil {
		return []model.Attendance{}, nil
	}
	query := `SELECT ` + attendanceColumns + ` FROM attendance`
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.UserIDs != nil {
		add("user_id = ANY(?)", f.UserIDs)
	}
	if f.Date != "" {
		add("date = ?", f.Date)
	}
	if f.From != "" {
		add("date >= ?", f.From)
	}
	if f.Before != "" {
		add("date < ?", f.Before)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date DESC, reg_no"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []model.Attendance{}
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UsersWithRecord returns the ids of users that already have an entry on date.
func (r *PGRepository) UsersWithRecord(ctx context.Context, date string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM attendance WHERE date = $1`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
