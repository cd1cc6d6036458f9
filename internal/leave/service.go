package leave

import (
	"context"
	"errors"
	"strings"
	"time"

	"attendly/internal/errs"
	"attendly/internal/model"
)

// Roster resolves leave owners and proctor relationships.
type Roster interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	ListStudentsOf(ctx context.Context, facultyID string) ([]model.User, error)
}

type Service struct {
	repo   Repository
	roster Roster
	now    func() time.Time
}

func NewService(repo Repository, roster Roster) *Service {
	return &Service{repo: repo, roster: roster, now: time.Now}
}

type Input struct {
	Type     string `json:"type"`
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
	Reason   string `json:"reason"`
}

type UpdateInput struct {
	Type     *string `json:"type"`
	FromDate *string `json:"fromDate"`
	ToDate   *string `json:"toDate"`
	Reason   *string `json:"reason"`
}

// Create files a pending leave for the caller.
func (s *Service) Create(ctx context.Context, actor *model.User, in Input) (*model.Leave, error) {
	if strings.TrimSpace(in.Type) == "" || in.FromDate == "" || in.ToDate == "" || strings.TrimSpace(in.Reason) == "" {
		return nil, errs.ErrLeaveFields
	}
	l := &model.Leave{
		UserID:   actor.ID,
		Type:     model.LeaveType(strings.ToLower(strings.TrimSpace(in.Type))),
		FromDate: strings.TrimSpace(in.FromDate),
		ToDate:   strings.TrimSpace(in.ToDate),
		Reason:   strings.TrimSpace(in.Reason),
		Status:   model.LeavePending,
	}
	if err := validate(l); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func validate(l *model.Leave) error {
	if !l.Type.Valid() {
		return errs.ErrLeaveType
	}
	if _, err := model.ParseDate(l.FromDate); err != nil {
		return errs.ErrInvalidDate
	}
	if _, err := model.ParseDate(l.ToDate); err != nil {
		return errs.ErrInvalidDate
	}
	if l.FromDate > l.ToDate {
		return errs.ErrLeaveRange
	}
	return nil
}

// Get returns a leave the caller may view.
func (s *Service) Get(ctx context.Context, actor *model.User, id string) (*model.Leave, error) {
	l, err := s.load(ctx, ActionView, actor, id)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// load fetches a leave and runs it through Authorize.
func (s *Service) load(ctx context.Context, action Action, actor *model.User, id string) (*model.Leave, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	proctorID, err := s.proctorOf(ctx, l.UserID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(action, actor, l, proctorID); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) proctorOf(ctx context.Context, userID string) (string, error) {
	u, err := s.roster.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return u.ProctorID, nil
}

// UpdateMine edits one of the caller's pending leaves.
func (s *Service) UpdateMine(ctx context.Context, actor *model.User, id string, in UpdateInput) (*model.Leave, error) {
	l, err := s.load(ctx, ActionEdit, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Type != nil && strings.TrimSpace(*in.Type) != "" {
		l.Type = model.LeaveType(strings.ToLower(strings.TrimSpace(*in.Type)))
	}
	if in.FromDate != nil && strings.TrimSpace(*in.FromDate) != "" {
		l.FromDate = strings.TrimSpace(*in.FromDate)
	}
	if in.ToDate != nil && strings.TrimSpace(*in.ToDate) != "" {
		l.ToDate = strings.TrimSpace(*in.ToDate)
	}
	if in.Reason != nil && strings.TrimSpace(*in.Reason) != "" {
		l.Reason = strings.TrimSpace(*in.Reason)
	}
	if err := validate(l); err != nil {
		return nil, err
	}
	ok, err := s.repo.Update(ctx, l)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrLeaveNotPending
	}
	return l, nil
}

// Delete removes a leave. Admins may delete any leave; owners only pending ones.
func (s *Service) Delete(ctx context.Context, actor *model.User, id string) error {
	if _, err := s.load(ctx, ActionDelete, actor, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// DeleteMine removes one of the caller's own leaves.
func (s *Service) DeleteMine(ctx context.Context, actor *model.User, id string) error {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.UserID != actor.ID {
		return errNotOwner
	}
	return s.Delete(ctx, actor, id)
}

func (s *Service) Approve(ctx context.Context, actor *model.User, id string) (*model.Leave, error) {
	return s.review(ctx, actor, id, model.LeaveApproved)
}

func (s *Service) Reject(ctx context.Context, actor *model.User, id string) (*model.Leave, error) {
	return s.review(ctx, actor, id, model.LeaveRejected)
}

// review moves a pending leave to its final status exactly once.
func (s *Service) review(ctx context.Context, actor *model.User, id string, status model.LeaveStatus) (*model.Leave, error) {
	l, err := s.load(ctx, ActionReview, actor, id)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	ok, err := s.repo.Decide(ctx, l.ID, status, actor.ID, at)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrLeaveNotPending
	}
	l.Status = status
	l.ReviewedBy = actor.ID
	l.ReviewedAt = &at
	l.UpdatedAt = at
	return l, nil
}

// ListMine returns the caller's leaves.
func (s *Service) ListMine(ctx context.Context, actor *model.User) ([]model.Leave, error) {
	return s.repo.List(ctx, Filter{UserID: actor.ID})
}

// List returns every leave for an Admin and the proctored students' leaves for a Faculty.
func (s *Service) List(ctx context.Context, actor *model.User) ([]model.Leave, error) {
	return s.scoped(ctx, actor, Filter{})
}

func (s *Service) ByUser(ctx context.Context, actor *model.User, userID string) ([]model.Leave, error) {
	return s.scoped(ctx, actor, Filter{UserID: userID})
}

// ByDate returns leaves whose range covers date.
func (s *Service) ByDate(ctx context.Context, actor *model.User, date string) ([]model.Leave, error) {
	if _, err := model.ParseDate(date); err != nil {
		return nil, errs.ErrInvalidDate
	}
	return s.scoped(ctx, actor, Filter{Covering: date})
}

// ByMonth returns leaves overlapping the month.
func (s *Service) ByMonth(ctx context.Context, actor *model.User, month, year int) ([]model.Leave, error) {
	from, before, err := model.MonthRange(month, year)
	if err != nil {
		return nil, errs.ErrInvalidDate
	}
	return s.scoped(ctx, actor, Filter{From: from, Before: before})
}

func (s *Service) scoped(ctx context.Context, actor *model.User, f Filter) ([]model.Leave, error) {
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleFaculty:
		students, err := s.roster.ListStudentsOf(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		f.UserIDs = make([]string, 0, len(students))
		for _, st := range students {
			f.UserIDs = append(f.UserIDs, st.ID)
		}
	default:
		f.UserID = actor.ID
	}
	return s.repo.List(ctx, f)
}

// ApprovedOn returns the ids of users with an approved leave covering date.
func (s *Service) ApprovedOn(ctx context.Context, date string) (map[string]bool, error) {
	list, err := s.repo.List(ctx, Filter{Status: model.LeaveApproved, Covering: date})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(list))
	for _, l := range list {
		out[l.UserID] = true
	}
	return out, nil
}
