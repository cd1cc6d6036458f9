package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"attendly/internal/faceclient"
	"attendly/internal/mailer"
	"attendly/internal/metrics"
	"attendly/internal/model"
	"attendly/internal/queue"
)

// TypeCheckin is the queue message type for a face check-in.
const TypeCheckin = "checkin"

// Checkin asks the runner to identify the face in ImageURL and record attendance at At.
type Checkin struct {
	ImageURL    string    `json:"imageUrl"`
	At          time.Time `json:"at"`
	RequestedBy string    `json:"requestedBy"`
}

// NewCheckin builds a checkin job message.
func NewCheckin(imageURL string, at time.Time, requestedBy string) (queue.Message, error) {
	return queue.NewMessage(TypeCheckin, Checkin{ImageURL: imageURL, At: at, RequestedBy: requestedBy})
}

// Identifier matches a face image against enrolled users.
type Identifier interface {
	Identify(ctx context.Context, imageURL string, threshold float64) (*faceclient.Match, error)
}

// Recorder stores a recognised check-in.
type Recorder interface {
	RecordCheckin(ctx context.Context, regNo string, at time.Time) (*model.Attendance, bool, error)
}

// Runner consumes jobs from the queue and executes them.
type Runner struct {
	queue     queue.Queue
	mail      mailer.Mailer
	faces     Identifier
	recorder  Recorder
	threshold float64
	workers   int
	timeout   time.Duration
	log       *zap.Logger
}

func NewRunner(q queue.Queue, mail mailer.Mailer, faces Identifier, recorder Recorder, threshold float64, log *zap.Logger) *Runner {
	return &Runner{
		queue:     q,
		mail:      mail,
		faces:     faces,
		recorder:  recorder,
		threshold: threshold,
		workers:   4,
		timeout:   time.Minute,
		log:       log,
	}
}

// Run processes jobs with a fixed worker pool until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	msgs, err := r.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume jobs: %w", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range msgs {
				r.process(ctx, msg)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (r *Runner) process(ctx context.Context, msg queue.Message) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	result, err := r.Handle(jobCtx, msg)
	if err != nil {
		metrics.JobsProcessed.WithLabelValues(msg.Type, "error").Inc()
		r.log.Error("job failed", zap.String("job_id", msg.ID), zap.String("type", msg.Type), zap.Error(err))
		return
	}
	metrics.JobsProcessed.WithLabelValues(msg.Type, result).Inc()
	r.log.Info("job done", zap.String("job_id", msg.ID), zap.String("type", msg.Type), zap.String("result", result))
}

// Handle executes one job and returns a short outcome label.
func (r *Runner) Handle(ctx context.Context, msg queue.Message) (string, error) {
	switch msg.Type {
	case mailer.JobType:
		var m mailer.Mail
		if err := json.Unmarshal(msg.Body, &m); err != nil {
			return "", fmt.Errorf("decode mail job: %w", err)
		}
		return r.sendMail(ctx, m)
	case TypeCheckin:
		var c Checkin
		if err := json.Unmarshal(msg.Body, &c); err != nil {
			return "", fmt.Errorf("decode checkin job: %w", err)
		}
		return r.checkin(ctx, msg.ID, c)
	default:
		return "", fmt.Errorf("unknown job type %q", msg.Type)
	}
}

func (r *Runner) sendMail(ctx context.Context, m mailer.Mail) (string, error) {
	if err := r.mail.Send(ctx, m); err != nil {
		metrics.MailSent.WithLabelValues(m.Template, "error").Inc()
		return "", err
	}
	metrics.MailSent.WithLabelValues(m.Template, "sent").Inc()
	return "sent", nil
}

func (r *Runner) checkin(ctx context.Context, jobID string, c Checkin) (string, error) {
	match, err := r.faces.Identify(ctx, c.ImageURL, r.threshold)
	if err != nil {
		return "", err
	}
	if match == nil {
		r.log.Info("checkin face not recognised", zap.String("job_id", jobID), zap.String("requested_by", c.RequestedBy))
		return "unmatched", nil
	}
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	rec, created, err := r.recorder.RecordCheckin(ctx, match.RegNo, at)
	if err != nil {
		return "", fmt.Errorf("record checkin for %s: %w", match.RegNo, err)
	}
	if !created {
		return "duplicate", nil
	}
	r.log.Info("checkin recorded",
		zap.String("job_id", jobID),
		zap.String("reg_no", rec.RegNo),
		zap.String("status", string(rec.Status)),
		zap.Float64("similarity", match.Similarity),
	)
	return "recorded", nil
}
