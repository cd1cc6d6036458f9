package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"attendly/internal/errs"
	"attendly/internal/metrics"
	"attendly/internal/model"
)

// Roster resolves the users attendance is recorded against.
type Roster interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByRegNo(ctx context.Context, regNo string) (*model.User, error)
	ListStudentsOf(ctx context.Context, facultyID string) ([]model.User, error)
	ListValidStudents(ctx context.Context) ([]model.User, error)
}

// Calendar reports non-working days.
type Calendar interface {
	IsHoliday(ctx context.Context, date string) (bool, error)
}

// LeaveBook reports who is on approved leave.
type LeaveBook interface {
	ApprovedOn(ctx context.Context, date string) (map[string]bool, error)
}

var errNotOwnStudent = errs.Forbidden("You can only manage attendance of your own students")

// Service records attendance and answers role-scoped reads.
type Service struct {
	repo      Repository
	roster    Roster
	calendar  Calendar
	leaves    LeaveBook
	log       *zap.Logger
	loc       *time.Location
	lateAfter string
	now       func() time.Time
}

// NewService creates a service. lateAfter is an HH:MM cut-off for face check-ins.
func NewService(repo Repository, roster Roster, calendar Calendar, leaves LeaveBook, log *zap.Logger, loc *time.Location, lateAfter string) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if lateAfter == "" {
		lateAfter = "09:15"
	}
	return &Service{repo: repo, roster: roster, calendar: calendar, leaves: leaves, log: log, loc: loc, lateAfter: lateAfter, now: time.Now}
}

type MarkInput struct {
	RegNo  string `json:"regNo"`
	Date   string `json:"date"`
	Time   string `json:"time"`
	Status string `json:"status"`
}

// Mark records a manual entry. Duplicates are rejected by the unique (user, date) index.
func (s *Service) Mark(ctx context.Context, actor *model.User, in MarkInput) (*model.Attendance, error) {
	regNo := model.NormalizeRegNo(in.RegNo)
	date := strings.TrimSpace(in.Date)
	if regNo == "" || date == "" || in.Status == "" {
		return nil, errs.ErrAttendanceFields
	}
	status := model.AttendanceStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !status.Valid() {
		return nil, errs.ErrInvalidStatus
	}
	if _, err := model.ParseDate(date); err != nil {
		return nil, errs.ErrInvalidDate
	}
	clock, err := s.clock(in.Time)
	if err != nil {
		return nil, err
	}

	u, err := s.roster.FindByRegNo(ctx, regNo)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleFaculty && u.ProctorID != actor.ID {
		return nil, errNotOwnStudent
	}

	a := &model.Attendance{UserID: u.ID, RegNo: u.RegNo, Date: date, Time: clock, Status: status, Method: model.MethodManual}
	if err := s.repo.Insert(ctx, a); err != nil {
		return nil, err
	}
	metrics.AttendanceMarked.WithLabelValues(string(a.Method), string(a.Status)).Inc()
	return a, nil
}

func (s *Service) clock(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.now().In(s.loc).Format(model.ClockLayout), nil
	}
	for _, layout := range []string{model.ClockLayout, "15:04"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(model.ClockLayout), nil
		}
	}
	return "", errs.Invalid("Invalid time")
}

// ListMine returns the caller's own records.
func (s *Service) ListMine(ctx context.Context, actor *model.User) ([]model.Attendance, error) {
	return s.repo.List(ctx, Filter{UserID: actor.ID})
}

// ListAll returns every record.
func (s *Service) ListAll(ctx context.Context) ([]model.Attendance, error) {
	return s.repo.List(ctx, Filter{})
}

// ListForFaculty returns the records of the caller's proctored students.
func (s *Service) ListForFaculty(ctx context.Context, actor *model.User) ([]model.Attendance, error) {
	if actor.Role != model.RoleFaculty {
		return nil, errs.ErrForbiddenRole
	}
	return s.scoped(ctx, actor, Filter{})
}

// ByDate returns one day's records within the caller's scope.
func (s *Service) ByDate(ctx context.Context, actor *model.User, date string) ([]model.Attendance, error) {
	if _, err := model.ParseDate(date); err != nil {
		return nil, errs.ErrInvalidDate
	}
	return s.scoped(ctx, actor, Filter{Date: date})
}

// ByMonth returns a calendar month's records within the caller's scope.
func (s *Service) ByMonth(ctx context.Context, actor *model.User, month, year int) ([]model.Attendance, error) {
	from, before, err := model.MonthRange(month, year)
	if err != nil {
		return nil, errs.ErrInvalidDate
	}
	return s.scoped(ctx, actor, Filter{From: from, Before: before})
}

// ByUser returns one user's records within the caller's scope.
func (s *Service) ByUser(ctx context.Context, actor *model.User, userID string) ([]model.Attendance, error) {
	return s.scoped(ctx, actor, Filter{UserID: userID})
}

// scoped restricts f to the caller's students when the caller is Faculty.
func (s *Service) scoped(ctx context.Context, actor *model.User, f Filter) ([]model.Attendance, error) {
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

type UpdateInput struct {
	Date   *string `json:"date"`
	Time   *string `json:"time"`
	Status *string `json:"status"`
}

// Update applies a partial edit.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*model.Attendance, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Date != nil && strings.TrimSpace(*in.Date) != "" {
		date := strings.TrimSpace(*in.Date)
		if _, err := model.ParseDate(date); err != nil {
			return nil, errs.ErrInvalidDate
		}
		a.Date = date
	}
	if in.Time != nil && strings.TrimSpace(*in.Time) != "" {
		clock, err := s.clock(*in.Time)
		if err != nil {
			return nil, err
		}
		a.Time = clock
	}
	if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
		status := model.AttendanceStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !status.Valid() {
			return nil, errs.ErrInvalidStatus
		}
		a.Status = status
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// RecordCheckin stores a face recognition hit as present, or late after the cut-off.
// It reports false when the user already has an entry for the day.
func (s *Service) RecordCheckin(ctx context.Context, regNo string, at time.Time) (*model.Attendance, bool, error) {
	u, err := s.roster.FindByRegNo(ctx, model.NormalizeRegNo(regNo))
	if err != nil {
		return nil, false, err
	}
	local := at.In(s.loc)
	clock := local.Format(model.ClockLayout)
	status := model.StatusPresent
	if clock[:5] > s.lateAfter {
		status = model.StatusLate
	}
	a := &model.Attendance{
		UserID: u.ID,
		RegNo:  u.RegNo,
		Date:   local.Format(model.DateLayout),
		Time:   clock,
		Status: status,
		Method: model.MethodFace,
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		if errors.Is(err, errs.ErrAttendanceExists) {
			return nil, false, nil
		}
		return nil, false, err
	}
	metrics.AttendanceMarked.WithLabelValues(string(a.Method), string(a.Status)).Inc()
	return a, true, nil
}

// MarkAbsentees records every active student with no entry and no approved leave on the
// day of at as absent. Holidays are skipped.
func (s *Service) MarkAbsentees(ctx context.Context, at time.Time) (int, error) {
	date := at.In(s.loc).Format(model.DateLayout)
	if s.calendar != nil {
		holiday, err := s.calendar.IsHoliday(ctx, date)
		if err != nil {
			return 0, err
		}
		if holiday {
			s.log.Info("absentee sweep skipped for holiday", zap.String("date", date))
			return 0, nil
		}
	}

	students, err := s.roster.ListValidStudents(ctx)
	if err != nil {
		return 0, err
	}
	recorded, err := s.repo.UsersWithRecord(ctx, date)
	if err != nil {
		return 0, err
	}
	onLeave := map[string]bool{}
	if s.leaves != nil {
		if onLeave, err = s.leaves.ApprovedOn(ctx, date); err != nil {
			return 0, err
		}
	}

	marked := 0
	for _, st := range students {
		if recorded[st.ID] || onLeave[st.ID] {
			continue
		}
		a := &model.Attendance{UserID: st.ID, RegNo: st.RegNo, Date: date, Time: "00:00:00", Status: model.StatusAbsent, Method: model.MethodAuto}
		if err := s.repo.Insert(ctx, a); err != nil {
			if errors.Is(err, errs.ErrAttendanceExists) {
				continue
			}
			return marked, err
		}
		marked++
	}
	metrics.AttendanceMarked.WithLabelValues(string(model.MethodAuto), string(model.StatusAbsent)).Add(float64(marked))
	s.log.Info("absentee sweep done", zap.String("date", date), zap.Int("marked", marked))
	return marked, nil
}
