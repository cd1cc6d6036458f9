package schedule

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"attendly/internal/errs"
	"attendly/internal/model"
)

var (
	clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

	errNotCreator  = errs.Forbidden("You can only modify schedules you created")
	errWeekday     = errs.Invalid("Invalid weekday in slots")
	errSlotOrder   = errs.Invalid("startTime must be before endTime")
	errSlotFaculty = errs.Invalid("Invalid faculty in slots")
)

// FacultyLookup resolves slot faculty references.
type FacultyLookup interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type Service struct {
	repo  Repository
	users FacultyLookup
}

func NewService(repo Repository, users FacultyLookup) *Service {
	return &Service{repo: repo, users: users}
}

type Input struct {
	Semester   string               `json:"semester"`
	Venue      string               `json:"venue"`
	Regulation string               `json:"regulation"`
	Section    int                  `json:"section"`
	Batch      int                  `json:"batch"`
	Department string               `json:"department"`
	Year       int                  `json:"year"`
	Slots      []model.ScheduleSlot `json:"slots"`
}

func (s *Service) build(ctx context.Context, in Input) (*model.Schedule, error) {
	sc := &model.Schedule{
		Semester:   strings.TrimSpace(in.Semester),
		Venue:      strings.TrimSpace(in.Venue),
		Regulation: strings.TrimSpace(in.Regulation),
		Section:    in.Section,
		Batch:      in.Batch,
		Department: strings.TrimSpace(in.Department),
		Year:       in.Year,
	}
	if sc.Semester == "" || sc.Regulation == "" || sc.Department == "" || sc.Section <= 0 || sc.Batch <= 0 || sc.Year <= 0 {
		return nil, errs.ErrScheduleFields
	}

	sc.Slots = make([]model.ScheduleSlot, 0, len(in.Slots))
	for _, raw := range in.Slots {
		slot, err := s.slot(ctx, raw)
		if err != nil {
			return nil, err
		}
		sc.Slots = append(sc.Slots, slot)
	}
	return sc, nil
}

func (s *Service) slot(ctx context.Context, slot model.ScheduleSlot) (model.ScheduleSlot, error) {
	slot.CourseTitle = strings.TrimSpace(slot.CourseTitle)
	slot.CourseCode = strings.TrimSpace(slot.CourseCode)
	slot.FacultyID = strings.TrimSpace(slot.FacultyID)
	slot.StartTime = strings.TrimSpace(slot.StartTime)
	slot.EndTime = strings.TrimSpace(slot.EndTime)
	if slot.CourseTitle == "" || slot.CourseCode == "" || slot.FacultyID == "" || slot.Weekday == "" || slot.StartTime == "" || slot.EndTime == "" {
		return slot, errs.ErrSlotFields
	}

	day, ok := canonicalWeekday(slot.Weekday)
	if !ok {
		return slot, errWeekday
	}
	slot.Weekday = day
	if !clockPattern.MatchString(slot.StartTime) || !clockPattern.MatchString(slot.EndTime) {
		return slot, errs.ErrSlotTime
	}
	if slot.StartTime >= slot.EndTime {
		return slot, errSlotOrder
	}

	f, err := s.users.FindByID(ctx, slot.FacultyID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return slot, errSlotFaculty
		}
		return slot, err
	}
	if f.Role != model.RoleFaculty {
		return slot, errSlotFaculty
	}
	return slot, nil
}

func canonicalWeekday(s string) (string, bool) {
	for _, d := range model.Weekdays {
		if strings.EqualFold(strings.TrimSpace(s), d) {
			return d, true
		}
	}
	return "", false
}

func (s *Service) Create(ctx context.Context, actor *model.User, in Input) (*model.Schedule, error) {
	sc, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	sc.CreatedBy = actor.ID
	if err := s.repo.Insert(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Schedule, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]model.Schedule, error) {
	f.Semester = strings.TrimSpace(f.Semester)
	return s.repo.List(ctx, f)
}

// Update replaces a schedule's fields and slots.
func (s *Service) Update(ctx context.Context, actor *model.User, id string, in Input) (*model.Schedule, error) {
	cur, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.CreatedBy = cur.CreatedBy
	next.CreatedAt = cur.CreatedAt
	if err := s.repo.Update(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Service) Delete(ctx context.Context, actor *model.User, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// owned loads a schedule the actor may modify. Faculty are limited to their own.
func (s *Service) owned(ctx context.Context, actor *model.User, id string) (*model.Schedule, error) {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleFaculty && sc.CreatedBy != actor.ID {
		return nil, errNotCreator
	}
	return sc, nil
}
