package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SessionsStarted    prometheus.Counter
	SessionsExpired    prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	MembersRegistered  prometheus.Counter
	PartialPersists    prometheus.Counter
	StatusUpdates      *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_sessions_started_total",
			Help: "Total number of onboarding sessions started",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_sessions_expired_total",
			Help: "Total number of idle onboarding sessions dropped by the sweeper",
		}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_validation_failures_total",
			Help: "Total number of rejected answers, by field",
		}, []string{"field"}),
		MembersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_members_registered_total",
			Help: "Total number of members persisted to the relational store",
		}),
		PartialPersists: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_partial_persists_total",
			Help: "Total number of registrations where the sheet write failed after the relational write succeeded",
		}),
		StatusUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_status_updates_total",
			Help: "Total number of status update attempts, by store and outcome",
		}, []string{"store", "outcome"}),
	}
}
