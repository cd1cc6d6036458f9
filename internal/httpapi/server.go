package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"attendly/internal/announcement"
	"attendly/internal/attendance"
	"attendly/internal/auth"
	"attendly/internal/chat"
	"attendly/internal/cloudinary"
	"attendly/internal/faceclient"
	"attendly/internal/holiday"
	"attendly/internal/httpmiddleware"
	"attendly/internal/leave"
	"attendly/internal/model"
	"attendly/internal/queue"
	"attendly/internal/schedule"
	"attendly/internal/users"
)

// Checker reports the health of a backing dependency.
type Checker interface {
	Healthy(ctx context.Context) bool
}

// ImageStore uploads images and returns their hosted URL.
type ImageStore interface {
	UploadDataURL(ctx context.Context, data string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// FaceEnroller registers a face with the recognition service.
type FaceEnroller interface {
	Register(ctx context.Context, in faceclient.RegisterInput) ([]float64, error)
}

// Deps wires the services behind the router. Images may be nil when uploads are not configured.
type Deps struct {
	Users         *users.Service
	Lookup        auth.UserLookup
	Attendance    *attendance.Service
	Leaves        *leave.Service
	Schedules     *schedule.Service
	Holidays      *holiday.Service
	Announcements *announcement.Service
	Chat          *chat.Service
	Hub           *chat.Hub
	Images        ImageStore
	Faces         FaceEnroller
	Jobs          queue.Queue
	Signer        auth.Signer
	AuthLimiter   httpmiddleware.Limiter
	Health        map[string]Checker
	CORSOrigins   []string
	Production    bool
	Log           *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	Deps
	log      *zap.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	if d.Lookup == nil && d.Users != nil {
		d.Lookup = d.Users
	}
	s := &Server{Deps: d, log: log, now: time.Now}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger(s.log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(cors.New(s.corsConfig()))
	r.Use(httpmiddleware.SecurityHeaders(s.Production))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)

	api := r.Group("/api")
	api.GET("/health", s.health)

	staff := auth.RequireRoles(model.Staff...)
	admin := auth.RequireRoles(model.AdminOnly...)

	public := api.Group("/auth")
	if s.AuthLimiter != nil {
		public.Use(httpmiddleware.RateLimit(s.AuthLimiter, "auth", s.log))
	}
	public.POST("/register", s.register)
	public.POST("/login", s.login)
	public.POST("/verify-otp", s.verifyOTP)
	public.POST("/resend-otp", s.resendOTP)
	public.POST("/forgot-password", s.forgotPassword)
	public.POST("/reset-password/:token", s.resetPassword)

	authed := api.Group("", auth.Authenticate(s.Signer, s.Lookup))

	account := authed.Group("/auth")
	account.POST("/logout", s.logout)
	account.GET("/me", s.me)
	account.PUT("/me", s.updateMe)
	account.POST("/check-faceprint", s.checkFaceprint)
	account.POST("/face", s.enrollFace)
	account.GET("/users", staff, s.listUsers)
	account.POST("/users", staff, s.addUsers)
	account.GET("/users/:userId", staff, s.getUser)
	account.PUT("/admin/update-user", admin, s.adminUpdateUser)
	account.DELETE("/admin/users/:userId", admin, s.deleteUser)
	account.GET("/attendance", s.myAttendance)
	account.GET("/attendance/full", admin, s.allAttendance)
	account.GET("/attendance/faculty", staff, s.facultyAttendance)

	authed.POST("/uploads", s.upload)

	att := authed.Group("/attendance")
	att.POST("", staff, s.markAttendance)
	att.POST("/checkins", staff, s.checkin)
	att.GET("/date/:date", staff, s.attendanceByDate)
	att.GET("/month/:month/:year", staff, s.attendanceByMonth)
	att.GET("/user/:userId", staff, s.attendanceByUser)
	att.PUT("/:id", admin, s.updateAttendance)
	att.DELETE("/:id", admin, s.deleteAttendance)

	leaves := authed.Group("/leaves")
	leaves.POST("", s.createLeave)
	leaves.GET("/mine", s.myLeaves)
	leaves.PUT("/mine/:id", s.updateMyLeave)
	leaves.DELETE("/mine/:id", s.deleteMyLeave)
	leaves.GET("", staff, s.listLeaves)
	leaves.GET("/user/:userId", staff, s.leavesByUser)
	leaves.GET("/date/:date", staff, s.leavesByDate)
	leaves.GET("/month/:month/:year", staff, s.leavesByMonth)
	leaves.PUT("/:id/approve", staff, s.approveLeave)
	leaves.PUT("/:id/reject", staff, s.rejectLeave)
	leaves.GET("/:id", s.getLeave)
	leaves.DELETE("/:id", staff, s.deleteLeave)

	schedules := authed.Group("/schedules")
	schedules.POST("", staff, s.createSchedule)
	schedules.GET("", s.listSchedules)
	schedules.GET("/semester/:semester/batch/:batch/section/:section", s.findSchedules)
	schedules.GET("/:id", s.getSchedule)
	schedules.PUT("/:id", staff, s.updateSchedule)
	schedules.DELETE("/:id", staff, s.deleteSchedule)

	holidays := authed.Group("/holidays")
	holidays.POST("", admin, s.createHoliday)
	holidays.GET("", s.listHolidays)
	holidays.GET("/:id", s.getHoliday)
	holidays.PUT("/:id", admin, s.updateHoliday)
	holidays.DELETE("/:id", admin, s.deleteHoliday)

	ann := authed.Group("/announcements")
	ann.POST("", staff, s.createAnnouncement)
	ann.GET("", s.listAnnouncements)
	ann.GET("/:id", s.getAnnouncement)
	ann.PUT("/:id", staff, s.updateAnnouncement)
	ann.DELETE("/:id", staff, s.deleteAnnouncement)
	ann.POST("/:id/read", s.readAnnouncement)

	msgs := authed.Group("/messages")
	msgs.GET("", s.inbox)
	msgs.POST("/:receiverId", s.sendMessage)
	msgs.GET("/:userId", s.conversation)
	msgs.PUT("/:id/seen", s.markSeen)
	msgs.PUT("/:id", s.editMessage)
	msgs.DELETE("/:id", s.deleteMessage)

	authed.GET("/ws", s.serveWS)
	authed.GET("/chat/online", s.online)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Can't find " + c.Request.URL.Path + " on this server!"})
	})
	return r
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range s.Health {
		healthy := check.Healthy(ctx)
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowOrigins:     s.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", httpmiddleware.RequestIDHeader},
		ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = nil
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
