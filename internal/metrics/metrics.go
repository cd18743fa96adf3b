// Package metrics provides Prometheus metrics for the workspace.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/scorekeep/internal/events"
)

// Operation results.
const (
	ResultCreated = "created"
	ResultNoop    = "noop"
	ResultError   = "error"
)

var (
	// ProjectsOpen tracks the number of live projects.
	ProjectsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scorekeep",
			Subsystem: "workspace",
			Name:      "projects_open",
			Help:      "Number of projects currently open in the workspace",
		},
	)

	// OperationsTotal counts project tree operations.
	// Labels: operation (open, checkout, create_empty, ...), result (created, noop, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scorekeep",
			Subsystem: "workspace",
			Name:      "operations_total",
			Help:      "Total number of project tree operations by result",
		},
		[]string{"operation", "result"},
	)

	// OperationDuration tracks how long project tree operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scorekeep",
			Subsystem: "workspace",
			Name:      "operation_duration_seconds",
			Help:      "Duration of project tree operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// NotificationsTotal counts project notifications.
	// Labels: kind (reload_project_content, change_project_beat_range, ...)
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scorekeep",
			Subsystem: "events",
			Name:      "notifications_total",
			Help:      "Total number of project notifications by kind",
		},
		[]string{"kind"},
	)
)

// ObserveOperation records the outcome of one operation that started at
// start. Errors matching any of noop count as no-op outcomes.
func ObserveOperation(operation string, start time.Time, err error, noop ...error) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	OperationsTotal.WithLabelValues(operation, Result(err, noop...)).Inc()
}

// Result classifies err.
func Result(err error, noop ...error) string {
	if err == nil {
		return ResultCreated
	}
	for _, n := range noop {
		if errors.Is(err, n) {
			return ResultNoop
		}
	}
	return ResultError
}

// Observer counts notifications passing through an events.Bus.
type Observer struct{}

// Notify implements events.Observer.
func (Observer) Notify(_ context.Context, e events.Event) {
	NotificationsTotal.WithLabelValues(string(e.Kind)).Inc()
}
