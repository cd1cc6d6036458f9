package announcement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"attendly/internal/errs"
	"attendly/internal/model"
	"attendly/internal/store"
)

// Repository persists announcements and their read receipts.
type Repository interface {
	Insert(ctx context.Context, a *model.Announcement) error
	Get(ctx context.Context, id string) (*model.Announcement, error)
	Update(ctx context.Context, a *model.Announcement) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Announcement, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type PGRepository struct {
	db store.Querier
}

func NewPGRepository(db store.Querier) *PGRepository {
	return &PGRepository{db: db}
}

const announcementColumns = `a.id, a.title, a.content, a.posted_by, a.target_roles,
	COALESCE((SELECT json_agg(r.user_id ORDER BY r.read_at) FROM announcement_reads r WHERE r.announcement_id = a.id), '[]'::json),
	a.created_at, a.updated_at`

func scanAnnouncement(row interface{ Scan(...any) error }) (model.Announcement, error) {
	var (
		a      model.Announcement
		roles  []byte
		readBy []byte
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Content, &a.PostedBy, &roles, &readBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return a, err
	}
	a.TargetRoles = []model.Role{}
	if err := json.Unmarshal(roles, &a.TargetRoles); err != nil {
		return a, fmt.Errorf("decode target roles: %w", err)
	}
	a.ReadBy = []string{}
	if err := json.Unmarshal(readBy, &a.ReadBy); err != nil {
		return a, fmt.Errorf("decode read receipts: %w", err)
	}
	return a, nil
}

func rolesJSON(roles []model.Role) (string, error) {
	if roles == nil {
		roles = []model.Role{}
	}
	b, err := json.Marshal(roles)
	return string(b), err
}

func (r *PGRepository) Insert(ctx context.Context, a *model.Announcement) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	roles, err := rolesJSON(a.TargetRoles)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO announcements (id, title, content, posted_by, target_roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Title, a.Content, a.PostedBy, roles, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *PGRepository) Get(ctx context.Context, id string) (*model.Announcement, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.ErrAnnouncementNotFound
	}
	a, err := scanAnnouncement(r.db.QueryRowContext(ctx, `SELECT `+announcementColumns+` FROM announcements a WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrAnnouncementNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PGRepository) Update(ctx context.Context, a *model.Announcement) error {
	a.UpdatedAt = time.Now().UTC()
	roles, err := rolesJSON(a.TargetRoles)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE announcements SET title = $2, content = $3, target_roles = $4, updated_at = $5 WHERE id = $1
	`, a.ID, a.Title, a.Content, roles, a.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrAnnouncementNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrAnnouncementNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrAnnouncementNotFound
	}
	return nil
}

// List returns every announcement, newest first.
func (r *PGRepository) List(ctx context.Context) ([]model.Announcement, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+announcementColumns+` FROM announcements a ORDER BY a.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Announcement{}
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGRepository) MarkRead(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO announcement_reads (announcement_id, user_id) VALUES ($1, $2)
		ON CONFLICT (announcement_id, user_id) DO NOTHING
	`, id, userID)
	return err
}
