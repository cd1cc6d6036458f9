package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendly",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendly",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	UsersAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendly",
		Name:      "users_added_total",
		Help:      "Bulk add rows by outcome (created, claimed, skipped).",
	}, []string{"outcome"})

	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendly",
		Name:      "logins_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})

	AttendanceMarked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendly",
		Name:      "attendance_marked_total",
		Help:      "Attendance records created by method and status.",
	}, []string{"method", "status"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendly",
		Name:      "jobs_processed_total",
		Help:      "Background jobs by type and result.",
	}, []string{"type", "result"})

	MailSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendly",
		Name:      "mail_sent_total",
		Help:      "Outbound mail by template and result.",
	}, []string{"template", "result"})

	ChatConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendly",
		Name:      "chat_connections",
		Help:      "Open websocket connections on this instance.",
	})

	ChatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "attendly",
		Name:      "chat_messages_total",
		Help:      "Direct messages stored.",
	})
)
