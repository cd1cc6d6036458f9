package leave

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

// Repository persists leave requests. Update and Decide only touch pending rows.
type Repository interface {
	Insert(ctx context.Context, l *model.Leave) error
	Get(ctx context.Context, id string) (*model.Leave, error)
	Update(ctx context.Context, l *model.Leave) (bool, error)
	Decide(ctx context.Context, id string, status model.LeaveStatus, reviewer string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]model.Leave, error)
}

// Filter narrows List. A non-nil empty UserIDs matches nothing.
type Filter struct {
	UserID   string
	UserIDs  []string
	Status   model.LeaveStatus
	Covering string
	From     string
	Before   string
}

type PGRepository struct {
	db store.Querier
}

func NewPGRepository(db store.Querier) *PGRepository {
	return &PGRepository{db: db}
}

const leaveColumns = `id, user_id, type, to_char(from_date, 'YYYY-MM-DD'), to_char(to_date, 'YYYY-MM-DD'), reason,
	status, reviewed_by, reviewed_at, created_at, updated_at`

func scanLeave(row interface{ Scan(...any) error }) (model.Leave, error) {
	var (
		l          model.Leave
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
	)
	err := row.Scan(&l.ID, &l.UserID, &l.Type, &l.FromDate, &l.ToDate, &l.Reason, &l.Status, &reviewedBy, &reviewedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	l.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		l.ReviewedAt = &t
	}
	return l, nil
}

func (r *PGRepository) Insert(ctx context.Context, l *model.Leave) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leaves (id, user_id, type, from_date, to_date, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, l.ID, l.UserID, string(l.Type), l.FromDate, l.ToDate, l.Reason, string(l.Status), l.CreatedAt, l.UpdatedAt)
	return err
}

func (r *PGRepository) Get(ctx context.Context, id string) (*model.Leave, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrLeaveNotFound
	}
	l, err := scanLeave(r.db.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrLeaveNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *PGRepository) Update(ctx context.Context, l *model.Leave) (bool, error) {
	l.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE leaves SET type = $2, from_date = $3, to_date = $4, reason = $5, updated_at = $6
		WHERE id = $1 AND status = 'pending'
	`, l.ID, string(l.Type), l.FromDate, l.ToDate, l.Reason, l.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PGRepository) Decide(ctx context.Context, id string, status model.LeaveStatus, reviewer string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leaves SET status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, string(status), reviewer, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrLeaveNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM leaves WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrLeaveNotFound
	}
	return nil
}

// List returns leaves matching f, newest first. Covering matches ranges containing the date;
// From and Before match ranges overlapping [From, Before).
func (r *PGRepository) List(ctx context.Context, f Filter) ([]model.Leave, error) {
	if f.UserIDs != nil && len(f.UserIDs) == 0 {
		return []model.Leave{}, nil
	}
	if _, err := uuid.Parse(f.UserID); f.UserID != "" && err != nil {
		return []model.Leave{}, nil
	}
	query := `SELECT ` + leaveColumns + ` FROM leaves`
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.UserIDs != nil {
		add("user_id = ANY(?)", f.UserIDs)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Covering != "" {
		add("from_date <= ? AND to_date >= ?", f.Covering)
	}
	if f.From != "" {
		add("to_date >= ?", f.From)
	}
	if f.Before != "" {
		add("from_date < ?", f.Before)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []model.Leave{}
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
