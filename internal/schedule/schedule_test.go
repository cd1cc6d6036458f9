package schedule_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"attendly/internal/errs"
	"attendly/internal/errs/errstest"
	"attendly/internal/model"
	"attendly/internal/schedule"
)

func TestSchedule(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Schedule Suite")
}

type memRepo map[string]model.Schedule

func (r memRepo) taken(s *model.Schedule) bool {
	for id, o := range r {
		if id != s.ID && o.Semester == s.Semester && o.Section == s.Section && o.Year == s.Year && o.Batch == s.Batch {
			return true
		}
	}
	return false
}

func (r memRepo) Insert(_ context.Context, s *model.Schedule) error {
	if r.taken(s) {
		return errs.ErrScheduleExists
	}
	s.ID = uuid.NewString()
	r[s.ID] = *s
	return nil
}

func (r memRepo) Get(_ context.Context, id string) (*model.Schedule, error) {
	s, ok := r[id]
	if !ok {
		return nil, errs.ErrScheduleNotFound
	}
	return &s, nil
}

func (r memRepo) Update(_ context.Context, s *model.Schedule) error {
	if _, ok := r[s.ID]; !ok {
		return errs.ErrScheduleNotFound
	}
	if r.taken(s) {
		return errs.ErrScheduleExists
	}
	r[s.ID] = *s
	return nil
}

func (r memRepo) Delete(_ context.Context, id string) error {
	if _, ok := r[id]; !ok {
		return errs.ErrScheduleNotFound
	}
	delete(r, id)
	return nil
}

func (r memRepo) List(_ context.Context, f schedule.Filter) ([]model.Schedule, error) {
	out := []model.Schedule{}
	for _, s := range r {
		if (f.Semester == "" || s.Semester == f.Semester) && (f.Batch == 0 || s.Batch == f.Batch) && (f.Section == 0 || s.Section == f.Section) {
			out = append(out, s)
		}
	}
	return out, nil
}

type people map[string]model.User

func (p people) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := p[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	return &u, nil
}

var (
	faculty = &model.User{ID: "fac", Role: model.RoleFaculty}
	other   = &model.User{ID: "fac2", Role: model.RoleFaculty}
	admin   = &model.User{ID: "admin", Role: model.RoleAdmin}
)

var _ = Describe("Service", func() {
	var (
		ctx context.Context
		svc *schedule.Service
	)

	input := func() schedule.Input {
		return schedule.Input{
			Semester: "S5", Regulation: "R21", Section: 1, Batch: 2022, Department: "CSE", Year: 3,
			Slots: []model.ScheduleSlot{{CourseTitle: "Networks", CourseCode: "CS501", FacultyID: "fac", Weekday: "monday", StartTime: "09:00", EndTime: "10:00"}},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		svc = schedule.NewService(memRepo{}, people{"fac": *faculty, "fac2": *other, "admin": *admin})
	})

	Specify("validation", func() {
		in := input()
		in.Department = ""
		_, err := svc.Create(ctx, faculty, in)
		Expect(err).To(errstest.MatchDomainError(errs.ErrScheduleFields))

		in = input()
		in.Slots[0].CourseCode = ""
		_, err = svc.Create(ctx, faculty, in)
		Expect(err).To(errstest.MatchDomainError(errs.ErrSlotFields))

		in = input()
		in.Slots[0].StartTime = "9am"
		_, err = svc.Create(ctx, faculty, in)
		Expect(err).To(errstest.MatchDomainError(errs.ErrSlotTime))

		in = input()
		in.Slots[0].EndTime = "08:00"
		_, err = svc.Create(ctx, faculty, in)
		Expect(err).To(MatchError("startTime must be before endTime"))

		in = input()
		in.Slots[0].FacultyID = "admin"
		_, err = svc.Create(ctx, faculty, in)
		Expect(err).To(MatchError("Invalid faculty in slots"))
	})

	Specify("cohorts are unique", func() {
		sc, err := svc.Create(ctx, faculty, input())
		Expect(err).To(BeNil())
		Expect(sc.Slots[0].Weekday).To(Equal("Monday"))
		Expect(sc.CreatedBy).To(Equal("fac"))

		_, err = svc.Create(ctx, admin, input())
		Expect(err).To(errstest.MatchDomainError(errs.ErrScheduleExists))
	})

	Specify("faculty modify only their own schedules", func() {
		sc, err := svc.Create(ctx, faculty, input())
		Expect(err).To(BeNil())

		in := input()
		in.Venue = "Hall B"
		_, err = svc.Update(ctx, other, sc.ID, in)
		Expect(err).To(errstest.MatchDomainError(errs.ErrForbidden))
		Expect(svc.Delete(ctx, other, sc.ID)).To(errstest.MatchDomainError(errs.ErrForbidden))

		updated, err := svc.Update(ctx, admin, sc.ID, in)
		Expect(err).To(BeNil())
		Expect(updated.Venue).To(Equal("Hall B"))
		Expect(updated.CreatedBy).To(Equal("fac"))

		Expect(svc.Delete(ctx, faculty, sc.ID)).To(Succeed())
		_, err = svc.Get(ctx, sc.ID)
		Expect(err).To(errstest.MatchDomainError(errs.ErrScheduleNotFound))
	})

	Specify("filters", func() {
		_, err := svc.Create(ctx, faculty, input())
		Expect(err).To(BeNil())
		in := input()
		in.Section = 2
		_, err = svc.Create(ctx, faculty, in)
		Expect(err).To(BeNil())

		list, _ := svc.List(ctx, schedule.Filter{Semester: "S5"})
		Expect(list).To(HaveLen(2))
		list, _ = svc.List(ctx, schedule.Filter{Semester: "S5", Batch: 2022, Section: 2})
		Expect(list).To(HaveLen(1))
	})
})
