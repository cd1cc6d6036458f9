package mailer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"attendly/internal/queue"
)

// JobType is the queue message type carrying a Mail.
const JobType = "mail"

// Dispatcher renders account mail and hands it to the job queue instead of sending inline.
type Dispatcher struct {
	queue    queue.Queue
	otpTTL   time.Duration
	resetTTL time.Duration
	log      *zap.Logger
}

func NewDispatcher(q queue.Queue, otpTTL, resetTTL time.Duration, log *zap.Logger) *Dispatcher {
	return &Dispatcher{queue: q, otpTTL: otpTTL, resetTTL: resetTTL, log: log}
}

func (d *Dispatcher) SendOTP(ctx context.Context, to, otp string) error {
	return d.enqueue(ctx, OTPMail(to, otp, d.otpTTL))
}

func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, link string) error {
	return d.enqueue(ctx, ResetMail(to, link, d.resetTTL))
}

func (d *Dispatcher) enqueue(ctx context.Context, m Mail) error {
	msg, err := queue.NewMessage(JobType, m)
	if err != nil {
		return err
	}
	if err := d.queue.Publish(ctx, msg); err != nil {
		return err
	}
	d.log.Debug("mail queued", zap.String("job_id", msg.ID), zap.String("template", m.Template))
	return nil
}
