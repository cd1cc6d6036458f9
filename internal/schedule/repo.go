package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendly/internal/errs"
	"attendly/internal/model"
	"attendly/internal/store"
)

// Repository persists schedules. Insert and Update return errs.ErrScheduleExists when the
// (semester, section, year, batch) cohort is taken.
type Repository interface {
	Insert(ctx context.Context, s *model.Schedule) error
	Get(ctx context.Context, id string) (*model.Schedule, error)
	Update(ctx context.Context, s *model.Schedule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]model.Schedule, error)
}

// Filter narrows List; zero values are ignored.
type Filter struct {
	Semester string
	Batch    int
	Section  int
}

type PGRepository struct {
	db store.Querier
}

func NewPGRepository(db store.Querier) *PGRepository {
	return &PGRepository{db: db}
}

const scheduleColumns = `id, semester, venue, regulation, section, batch, department, year, created_by, slots, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (model.Schedule, error) {
	var (
		s         model.Schedule
		createdBy sql.NullString
		slots     []byte
	)
	err := row.Scan(&s.ID, &s.Semester, &s.Venue, &s.Regulation, &s.Section, &s.Batch, &s.Department, &s.Year,
		&createdBy, &slots, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.CreatedBy = createdBy.String
	s.Slots = []model.ScheduleSlot{}
	if len(slots) > 0 {
		if err := json.Unmarshal(slots, &s.Slots); err != nil {
			return s, fmt.Errorf("decode slots: %w", err)
		}
	}
	return s, nil
}

func (r *PGRepository) Insert(ctx context.Context, s *model.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	slots, err := json.Marshal(s.Slots)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, semester, venue, regulation, section, batch, department, year, created_by, slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.Semester, s.Venue, s.Regulation, s.Section, s.Batch, s.Department, s.Year, nullable(s.CreatedBy), string(slots), s.CreatedAt, s.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return errs.ErrScheduleExists
	}
	return err
}

func (r *PGRepository) Get(ctx context.Context, id string) (*model.Schedule, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrScheduleNotFound
	}
	s, err := scanSchedule(r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) Update(ctx context.Context, s *model.Schedule) error {
	s.UpdatedAt = time.Now().UTC()
	slots, err := json.Marshal(s.Slots)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET semester = $2, venue = $3, regulation = $4, section = $5, batch = $6, department = $7,
			year = $8, slots = $9, updated_at = $10
		WHERE id = $1
	`, s.ID, s.Semester, s.Venue, s.Regulation, s.Section, s.Batch, s.Department, s.Year, string(slots), s.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return errs.ErrScheduleExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrScheduleNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrScheduleNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrScheduleNotFound
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context, f Filter) ([]model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	args := []any{}
	clauses := []string{}
	add := func(col string, v any) {
		args = append(args, v)
		clauses = append(clauses, col+" = $"+strconv.Itoa(len(args)))
	}
	if f.Semester != "" {
		add("semester", f.Semester)
	}
	if f.Batch != 0 {
		add("batch", f.Batch)
	}
	if f.Section != 0 {
		add("section", f.Section)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY year DESC, semester, section"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
