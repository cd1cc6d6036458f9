package holiday

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendly/internal/errs"
	"attendly/internal/model"
	"attendly/internal/store"
)

// Repository persists holidays. Insert and Update return errs.ErrHolidayExists for a taken date.
type Repository interface {
	Insert(ctx context.Context, h *model.Holiday) error
	Get(ctx context.Context, id string) (*model.Holiday, error)
	Update(ctx context.Context, h *model.Holiday) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, year int) ([]model.Holiday, error)
	ExistsOn(ctx context.Context, date string) (bool, error)
}

type PGRepository struct {
	db store.Querier
}

func NewPGRepository(db store.Querier) *PGRepository {
	return &PGRepository{db: db}
}

const holidayColumns = `id, title, to_char(date, 'YYYY-MM-DD'), description, created_at, updated_at`

func scanHoliday(row interface{ Scan(...any) error }) (model.Holiday, error) {
	var h model.Holiday
	err := row.Scan(&h.ID, &h.Title, &h.Date, &h.Description, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

func (r *PGRepository) Insert(ctx context.Context, h *model.Holiday) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO holidays (id, title, date, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, h.Title, h.Date, h.Description, h.CreatedAt, h.UpdatedAt)
	if store.IsUniqueViolation(err) {
		return errs.ErrHolidayExists
	}
	return err
}

func (r *PGRepository) Get(ctx context.Context, id string) (*model.Holiday, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrHolidayNotFound
	}
	h, err := scanHoliday(r.db.QueryRowContext(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrHolidayNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r *PGRepository) Update(ctx context.Context, h *model.Holiday) error {
	h.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE holidays SET title = $2, date = $3, description = $4, updated_at = $5 WHERE id = $1
	`, h.ID, h.Title, h.Date, h.Description, h.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return errs.ErrHolidayExists
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrHolidayNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrHolidayNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM holidays WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrHolidayNotFound
	}
	return nil
}

// List returns holidays ordered by date, limited to year when non-zero.
func (r *PGRepository) List(ctx context.Context, year int) ([]model.Holiday, error) {
	query := `SELECT ` + holidayColumns + ` FROM holidays`
	args := []any{}
	if year != 0 {
		query += ` WHERE EXTRACT(YEAR FROM date) = $1`
		args = append(args, year)
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY date`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Holiday{}
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *PGRepository) ExistsOn(ctx context.Context, date string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM holidays WHERE date = $1)`, date).Scan(&ok)
	return ok, err
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type Input struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type UpdateInput struct {
	Title       *string `json:"title"`
	Date        *string `json:"date"`
	Description *string `json:"description"`
}

func (s *Service) Create(ctx context.Context, in Input) (*model.Holiday, error) {
	h := &model.Holiday{
		Title:       strings.TrimSpace(in.Title),
		Date:        strings.TrimSpace(in.Date),
		Description: strings.TrimSpace(in.Description),
	}
	if h.Title == "" || h.Date == "" {
		return nil, errs.ErrHolidayFields
	}
	if _, err := model.ParseDate(h.Date); err != nil {
		return nil, errs.ErrInvalidDate
	}
	if err := s.repo.Insert(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Holiday, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, year int) ([]model.Holiday, error) {
	return s.repo.List(ctx, year)
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Holiday, error) {
	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		h.Title = strings.TrimSpace(*in.Title)
	}
	if in.Date != nil && strings.TrimSpace(*in.Date) != "" {
		date := strings.TrimSpace(*in.Date)
		if _, err := model.ParseDate(date); err != nil {
			return nil, errs.ErrInvalidDate
		}
		h.Date = date
	}
	if in.Description != nil {
		h.Description = strings.TrimSpace(*in.Description)
	}
	if err := s.repo.Update(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// IsHoliday reports whether date (YYYY-MM-DD) is a declared holiday.
func (s *Service) IsHoliday(ctx context.Context, date string) (bool, error) {
	return s.repo.ExistsOn(ctx, date)
}
