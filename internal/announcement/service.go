package announcement

import (
	"context"
	"strings"

	"attendly/internal/errs"
	"attendly/internal/model"
)

var (
	errNotPoster   = errs.Forbidden("Only the poster or an admin can modify this announcement")
	errTargetRoles = errs.Invalid("Invalid target role")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type Input struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	TargetRoles []string `json:"targetRoles"`
}

type UpdateInput struct {
	Title       *string   `json:"title"`
	Content     *string   `json:"content"`
	TargetRoles *[]string `json:"targetRoles"`
}

func parseRoles(raw []string) ([]model.Role, error) {
	roles := make([]model.Role, 0, len(raw))
	seen := map[model.Role]bool{}
	for _, r := range raw {
		role, err := model.ParseRole(r)
		if err != nil {
			return nil, errTargetRoles
		}
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (s *Service) Create(ctx context.Context, actor *model.User, in Input) (*model.Announcement, error) {
	a := &model.Announcement{
		Title:    strings.TrimSpace(in.Title),
		Content:  strings.TrimSpace(in.Content),
		PostedBy: actor.ID,
		ReadBy:   []string{},
	}
	if a.Title == "" || a.Content == "" {
		return nil, errs.ErrAnnouncementFields
	}
	roles, err := parseRoles(in.TargetRoles)
	if err != nil {
		return nil, err
	}
	a.TargetRoles = roles
	if err := s.repo.Insert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns the announcements visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor *model.User) ([]model.Announcement, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Announcement, 0, len(all))
	for i := range all {
		if all[i].VisibleTo(actor) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Get returns an announcement; ones the actor cannot see are reported as missing.
func (s *Service) Get(ctx context.Context, actor *model.User, id string) (*model.Announcement, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.VisibleTo(actor) {
		return nil, errs.ErrAnnouncementNotFound
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, actor *model.User, id string, in UpdateInput) (*model.Announcement, error) {
	a, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		if t := strings.TrimSpace(*in.Title); t != "" {
			a.Title = t
		}
	}
	if in.Content != nil {
		if c := strings.TrimSpace(*in.Content); c != "" {
			a.Content = c
		}
	}
	if in.TargetRoles != nil {
		roles, err := parseRoles(*in.TargetRoles)
		if err != nil {
			return nil, err
		}
		a.TargetRoles = roles
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, actor *model.User, id string) error {
	if _, err := s.editable(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) editable(ctx context.Context, actor *model.User, id string) (*model.Announcement, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin && a.PostedBy != actor.ID {
		return nil, errNotPoster
	}
	return a, nil
}

// MarkRead records that actor has read the announcement. Repeating it is a no-op.
func (s *Service) MarkRead(ctx context.Context, actor *model.User, id string) (*model.Announcement, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := s.repo.MarkRead(ctx, id, actor.ID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}
