// Package observability holds Prometheus metrics and OpenTelemetry tracing setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	habitsTracked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecohabit",
		Subsystem: "habits",
		Name:      "tracked_total",
		Help:      "Number of habit entries tracked, by category.",
	}, []string{"category"})

	impactKg = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecohabit",
		Subsystem: "habits",
		Name:      "impact_kg_total",
		Help:      "Estimated kilograms of CO2 across tracked habits, by category.",
	}, []string{"category"})

	calculations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecohabit",
		Subsystem: "carbon",
		Name:      "calculations_total",
		Help:      "Stateless carbon impact calculations, by category and whether a fallback factor was used.",
	}, []string{"category", "fallback"})

	challengesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ecohabit",
		Subsystem: "challenges",
		Name:      "completed_total",
		Help:      "Number of challenges completed.",
	})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecohabit",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "code"})

	lastHabitTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecohabit",
		Subsystem: "habits",
		Name:      "last_tracked_timestamp_seconds",
		Help:      "Unix timestamp of the most recently tracked habit.",
	})
)

func init() {
	prometheus.MustRegister(habitsTracked, impactKg, calculations, challengesCompleted, requestDuration, lastHabitTracked)
}

// RecordHabitTracked records one tracked habit and its impact.
func RecordHabitTracked(category string, kg float64, at time.Time) {
	habitsTracked.WithLabelValues(metricCategory(category)).Inc()
	impactKg.WithLabelValues(metricCategory(category)).Add(kg)
	if !at.IsZero() {
		lastHabitTracked.Set(float64(at.Unix()))
	}
}

// RecordCalculation records one stateless calculation.
func RecordCalculation(category string, fallback bool) {
	label := "false"
	if fallback {
		label = "true"
	}
	calculations.WithLabelValues(metricCategory(category), label).Inc()
}

// RecordChallengeCompleted increments the completed challenges counter.
func RecordChallengeCompleted() {
	challengesCompleted.Inc()
}

// ObserveRequest records the latency of one HTTP request.
func ObserveRequest(route, method string, code int, d time.Duration) {
	requestDuration.WithLabelValues(route, method, statusLabel(code)).Observe(d.Seconds())
}

// metricCategory bounds label cardinality: free-form categories collapse to "other".
func metricCategory(category string) string {
	switch category {
	case "electricity", "transport", "consumption":
		return category
	default:
		return "other"
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
