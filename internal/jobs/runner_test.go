package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"attendly/internal/faceclient"
	"attendly/internal/jobs"
	"attendly/internal/mailer"
	"attendly/internal/model"
	"attendly/internal/queue"
)

func TestJobs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Jobs Suite")
}

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Mail
	err  error
}

func (o *outbox) Send(_ context.Context, m mailer.Mail) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, m)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type recorder struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func (r *recorder) RecordCheckin(_ context.Context, regNo string, at time.Time) (*model.Attendance, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[regNo]; ok {
		return nil, false, nil
	}
	r.seen[regNo] = at
	return &model.Attendance{RegNo: regNo, Status: model.StatusPresent, Method: model.MethodFace}, true, nil
}

var _ = Describe("Runner", func() {
	var (
		ctx    context.Context
		mail   *outbox
		rec    *recorder
		q      *queue.InMemory
		runner *jobs.Runner
	)

	BeforeEach(func() {
		ctx = context.Background()
		mail = &outbox{}
		rec = &recorder{seen: map[string]time.Time{}}
		q = queue.NewInMemory(8)
		runner = jobs.NewRunner(q, mail, faceclient.New("", true), rec, 0.5, zap.NewNop())
	})

	Specify("mail jobs are sent through the mailer", func() {
		msg, _ := queue.NewMessage(mailer.JobType, mailer.OTPMail("a@x.io", "111111", time.Minute))
		result, err := runner.Handle(ctx, msg)
		Expect(err).To(BeNil())
		Expect(result).To(Equal("sent"))
		Expect(mail.sent[0].To).To(Equal("a@x.io"))

		mail.err = errors.New("provider down")
		_, err = runner.Handle(ctx, msg)
		Expect(err).To(MatchError("provider down"))
	})

	Specify("checkin jobs record recognised faces once", func() {
		at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
		msg, _ := jobs.NewCheckin(faceclient.MockScheme+"REG7", at, "fac")

		result, err := runner.Handle(ctx, msg)
		Expect(err).To(BeNil())
		Expect(result).To(Equal("recorded"))
		Expect(rec.seen).To(HaveKeyWithValue("REG7", at))

		result, _ = runner.Handle(ctx, msg)
		Expect(result).To(Equal("duplicate"))

		unknown, _ := jobs.NewCheckin("https://img/unknown.jpg", at, "fac")
		result, _ = runner.Handle(ctx, unknown)
		Expect(result).To(Equal("unmatched"))
	})

	Specify("unknown job types fail", func() {
		_, err := runner.Handle(ctx, queue.Message{Type: "reindex"})
		Expect(err).To(HaveOccurred())
	})

	Specify("run drains the queue until cancelled", func() {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = runner.Run(runCtx)
		}()
		for i := 0; i < 3; i++ {
			msg, _ := queue.NewMessage(mailer.JobType, mailer.Mail{Template: mailer.TemplateOTP, To: "a@x.io"})
			Expect(q.Publish(ctx, msg)).To(Succeed())
		}
		Eventually(mail.count).Should(Equal(3))
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
