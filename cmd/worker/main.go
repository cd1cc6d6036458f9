package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"attendly/internal/app"
	"attendly/internal/config"
	"attendly/internal/faceclient"
	"attendly/internal/jobs"
	"attendly/internal/logger"
)

// Worker consumes queued jobs (mail, face check-ins) and runs the scheduled sweeps.
func main() {
	cfg := config.Load()
	log := logger.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Warn("memory queue is process-local; the api consumes its own jobs and this worker only runs the schedule")
	}

	infra, err := app.Connect(ctx, cfg, log)
	if err != nil {
		log.Fatal("connect failed", zap.Error(err))
	}
	defer infra.Close()

	core := app.NewCore(cfg, infra, log)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Warn("face service not available, check-ins will fail until it is", zap.Error(err))
		} else {
			log.Info("face service connected")
		}
	}

	sched := cron.New(cron.WithSeconds(), cron.WithLocation(cfg.Location()))
	if _, err := sched.AddFunc(cfg.AbsenteeCron, func() {
		runCtx, done := context.WithTimeout(ctx, 5*time.Minute)
		defer done()
		n, err := core.Attendance.MarkAbsentees(runCtx, time.Now())
		if err != nil {
			log.Error("mark absentees failed", zap.Error(err))
			return
		}
		log.Info("absentees marked", zap.Int("count", n))
	}); err != nil {
		log.Fatal("invalid ABSENTEE_CRON", zap.String("schedule", cfg.AbsenteeCron), zap.Error(err))
	}
	if _, err := sched.AddFunc(cfg.CleanupCron, func() {
		runCtx, done := context.WithTimeout(ctx, time.Minute)
		defer done()
		n, err := core.Users.PurgeExpired(runCtx)
		if err != nil {
			log.Error("purge expired tokens failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("expired tokens purged", zap.Int64("count", n))
		}
	}); err != nil {
		log.Fatal("invalid CLEANUP_CRON", zap.String("schedule", cfg.CleanupCron), zap.Error(err))
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	if cfg.QueueBackend == "memory" {
		<-ctx.Done()
		log.Info("worker stopped")
		return
	}

	runner := jobs.NewRunner(infra.Queue, app.Mailer(cfg, log), face, core.Attendance, cfg.FaceMatchThreshold, log)
	log.Info("worker started, waiting for jobs")
	if err := runner.Run(ctx); err != nil {
		log.Error("job runner failed", zap.Error(err))
	}
	log.Info("worker stopped")
}
