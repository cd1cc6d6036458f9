// Package app wires the infrastructure and domain services shared by the api and worker commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"attendly/internal/attendance"
	"attendly/internal/auth"
	"attendly/internal/config"
	"attendly/internal/holiday"
	"attendly/internal/leave"
	"attendly/internal/mailer"
	"attendly/internal/queue"
	"attendly/internal/store"
	"attendly/internal/users"
)

// Infra holds the connections to backing services.
type Infra struct {
	DB    *store.DB
	Redis *store.Redis
	Queue queue.Queue

	closers []func() error
}

// Connect opens postgres (applying migrations), redis and the job queue selected by QUEUE_BACKEND.
func Connect(ctx context.Context, cfg config.App, log *zap.Logger) (*Infra, error) {
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	in := &Infra{DB: db}
	in.closers = append(in.closers, db.Close)

	if err := db.Migrate(ctx); err != nil {
		in.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	in.Redis = store.NewRedis(cfg.RedisAddr)
	in.closers = append(in.closers, in.Redis.Close)
	if !in.Redis.Healthy(ctx) {
		log.Warn("redis not reachable", zap.String("addr", cfg.RedisAddr))
	}

	switch cfg.QueueBackend {
	case "memory":
		in.Queue = queue.NewInMemory(256)
	case "amqp":
		q, err := queue.DialAMQP(cfg.AMQPURL, cfg.QueueKey, log)
		if err != nil {
			in.Close()
			return nil, fmt.Errorf("connect amqp: %w", err)
		}
		in.Queue = q
		in.closers = append(in.closers, q.Close)
	default:
		in.Queue = queue.NewRedisQueue(in.Redis.Client, cfg.QueueKey, log)
	}
	log.Info("job queue ready", zap.String("backend", cfg.QueueBackend))
	return in, nil
}

// Close releases connections in reverse order of opening.
func (in *Infra) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		_ = in.closers[i]()
	}
}

// Core holds the domain services both commands need.
type Core struct {
	UserRepo   *users.PGRepository
	Users      *users.Service
	Holidays   *holiday.Service
	Leaves     *leave.Service
	Attendance *attendance.Service
}

func NewCore(cfg config.App, in *Infra, log *zap.Logger) *Core {
	userRepo := users.NewPGRepository(in.DB.Client)
	signer := Signer(cfg)
	hasher := auth.Hasher{Cost: cfg.BcryptCost}
	notify := mailer.NewDispatcher(in.Queue, cfg.OTPTTL, cfg.ResetTTL, log)

	usersSvc := users.NewService(userRepo, signer, hasher, notify, log, users.Options{
		OTPTTL:    cfg.OTPTTL,
		ResetTTL:  cfg.ResetTTL,
		ClientURL: cfg.ClientURL,
	})
	holidays := holiday.NewService(holiday.NewPGRepository(in.DB.Client))
	leaves := leave.NewService(leave.NewPGRepository(in.DB.Client), userRepo)
	att := attendance.NewService(
		attendance.NewPGRepository(in.DB.Client),
		userRepo, holidays, leaves,
		log, cfg.Location(), cfg.LateAfter,
	)
	return &Core{UserRepo: userRepo, Users: usersSvc, Holidays: holidays, Leaves: leaves, Attendance: att}
}

// Signer returns the token signer configured for cfg.
func Signer(cfg config.App) auth.Signer {
	return auth.Signer{Key: cfg.JWTSigningKey, Issuer: cfg.JWTIssuer, TTL: cfg.TokenTTL}
}

// Mailer delivers through Mailgun when configured and logs otherwise.
func Mailer(cfg config.App, log *zap.Logger) mailer.Mailer {
	if cfg.MailgunConfigured() {
		return mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailFrom, log)
	}
	log.Warn("mailgun not configured, mail will be logged only")
	return mailer.NewLogMailer(log)
}
