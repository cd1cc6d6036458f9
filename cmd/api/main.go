package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendly/internal/announcement"
	"attendly/internal/app"
	"attendly/internal/chat"
	"attendly/internal/cloudinary"
	"attendly/internal/config"
	"attendly/internal/faceclient"
	"attendly/internal/httpapi"
	"attendly/internal/httpmiddleware"
	"attendly/internal/jobs"
	"attendly/internal/logger"
	"attendly/internal/schedule"
	"attendly/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := app.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	mongo, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer func() { _ = mongo.Close(context.Background()) }()

	messages := chat.NewMongoStore(mongo.DB)
	if err := messages.EnsureIndexes(ctx); err != nil {
		log.Warn("ensure message indexes", zap.Error(err))
	}

	core := app.NewCore(cfg, infra, log)
	faces := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	// Chat fan-out and presence go through redis so every API instance sees every connection.
	var (
		broker   chat.Broker
		presence chat.Presence
	)
	if infra.Redis.Healthy(ctx) {
		broker = chat.NewRedisBroker(infra.Redis.Client, log)
		presence = chat.NewRedisPresence(infra.Redis.Client, cfg.PresenceTTL)
	} else {
		log.Warn("redis unavailable, chat runs single-instance")
		broker = chat.NewMemoryBroker()
		presence = chat.NewMemoryPresence(cfg.PresenceTTL)
	}
	chatSvc := chat.NewService(messages, core.Users, broker, log)
	hub := chat.NewHub(chatSvc, broker, presence, log)
	go func() {
		if err := hub.Run(ctx); err != nil {
			log.Error("chat hub stopped", zap.Error(err))
		}
	}()

	// The memory queue is process-local, so its jobs must be consumed here.
	if cfg.QueueBackend == "memory" {
		runner := jobs.NewRunner(infra.Queue, app.Mailer(cfg, log), faces, core.Attendance, cfg.FaceMatchThreshold, log)
		go func() {
			if err := runner.Run(ctx); err != nil {
				log.Error("in-process job runner stopped", zap.Error(err))
			}
		}()
	}

	var images httpapi.ImageStore
	if cfg.CloudinaryConfigured() {
		images = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		log.Warn("cloudinary not configured, inline image uploads are disabled")
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(infra.Redis.Client, cfg.RateLimitPerMin)
	}

	server := httpapi.New(httpapi.Deps{
		Users:         core.Users,
		Attendance:    core.Attendance,
		Leaves:        core.Leaves,
		Schedules:     schedule.NewService(schedule.NewPGRepository(infra.DB.Client), core.UserRepo),
		Holidays:      core.Holidays,
		Announcements: announcement.NewService(announcement.NewPGRepository(infra.DB.Client)),
		Chat:          chatSvc,
		Hub:           hub,
		Images:        images,
		Faces:         faces,
		Jobs:          infra.Queue,
		Signer:        app.Signer(cfg),
		AuthLimiter:   limiter,
		Health: map[string]httpapi.Checker{
			"db":    infra.DB,
			"redis": infra.Redis,
			"mongo": mongo,
		},
		CORSOrigins: cfg.CORSOrigins,
		Production:  cfg.Production(),
		Log:         log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	err = serve(srv, quit, 10*time.Second, log)
	cancel()
	log.Info("server exited")
	return err
}

// serve runs srv until stop fires or the listener fails. A listener failure is returned
// to the caller so deferred cleanup runs.
func serve(srv *http.Server, stop <-chan os.Signal, grace time.Duration, log *zap.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
		log.Info("shutting down server")
	case err := <-serveErr:
		return err
	}

	// Give outstanding requests time to complete
	shutdownCtx, done := context.WithTimeout(context.Background(), grace)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	return nil
}
