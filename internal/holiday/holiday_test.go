package holiday_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"attendly/internal/errs"
	"attendly/internal/errs/errstest"
	"attendly/internal/holiday"
	"attendly/internal/model"
)

func TestHoliday(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Holiday Suite")
}

type memRepo map[string]model.Holiday

func (r memRepo) taken(h *model.Holiday) bool {
	for id, o := range r {
		if id != h.ID && o.Date == h.Date {
			return true
		}
	}
	return false
}

func (r memRepo) Insert(_ context.Context, h *model.Holiday) error {
	if r.taken(h) {
		return errs.ErrHolidayExists
	}
	h.ID = uuid.NewString()
	r[h.ID] = *h
	return nil
}

func (r memRepo) Get(_ context.Context, id string) (*model.Holiday, error) {
	h, ok := r[id]
	if !ok {
		return nil, errs.ErrHolidayNotFound
	}
	return &h, nil
}

func (r memRepo) Update(_ context.Context, h *model.Holiday) error {
	if r.taken(h) {
		return errs.ErrHolidayExists
	}
	r[h.ID] = *h
	return nil
}

func (r memRepo) Delete(_ context.Context, id string) error {
	if _, ok := r[id]; !ok {
		return errs.ErrHolidayNotFound
	}
	delete(r, id)
	return nil
}

func (r memRepo) List(_ context.Context, year int) ([]model.Holiday, error) {
	out := []model.Holiday{}
	for _, h := range r {
		d, _ := model.ParseDate(h.Date)
		if year == 0 || d.Year() == year {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r memRepo) ExistsOn(_ context.Context, date string) (bool, error) {
	for _, h := range r {
		if h.Date == date {
			return true, nil
		}
	}
	return false, nil
}

var _ = Describe("Service", func() {
	var (
		ctx context.Context
		svc *holiday.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = holiday.NewService(memRepo{})
	})

	Specify("create validates and rejects duplicate dates", func() {
		_, err := svc.Create(ctx, holiday.Input{Title: "Pongal"})
		Expect(err).To(errstest.MatchDomainError(errs.ErrHolidayFields))
		_, err = svc.Create(ctx, holiday.Input{Title: "Pongal", Date: "15-01-2024"})
		Expect(err).To(errstest.MatchDomainError(errs.ErrInvalidDate))

		_, err = svc.Create(ctx, holiday.Input{Title: "Pongal", Date: "2024-01-15"})
		Expect(err).To(BeNil())
		_, err = svc.Create(ctx, holiday.Input{Title: "Other", Date: "2024-01-15"})
		Expect(err).To(errstest.MatchDomainError(errs.ErrHolidayExists))

		on, _ := svc.IsHoliday(ctx, "2024-01-15")
		Expect(on).To(BeTrue())
		off, _ := svc.IsHoliday(ctx, "2024-01-16")
		Expect(off).To(BeFalse())
	})

	Specify("year filter and updates", func() {
		h, _ := svc.Create(ctx, holiday.Input{Title: "New Year", Date: "2024-01-01"})
		_, _ = svc.Create(ctx, holiday.Input{Title: "New Year", Date: "2025-01-01"})

		list, _ := svc.List(ctx, 2025)
		Expect(list).To(HaveLen(1))
		list, _ = svc.List(ctx, 0)
		Expect(list).To(HaveLen(2))

		date := "2025-01-01"
		_, err := svc.Update(ctx, h.ID, holiday.UpdateInput{Date: &date})
		Expect(err).To(errstest.MatchDomainError(errs.ErrHolidayExists))

		title := "Founders Day"
		updated, err := svc.Update(ctx, h.ID, holiday.UpdateInput{Title: &title})
		Expect(err).To(BeNil())
		Expect(updated.Title).To(Equal("Founders Day"))

		Expect(svc.Delete(ctx, h.ID)).To(Succeed())
		Expect(svc.Delete(ctx, h.ID)).To(errstest.MatchDomainError(errs.ErrHolidayNotFound))
	})
})
