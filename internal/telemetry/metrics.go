package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DecodesTotal counts decoded payloads seen by the controller, by what happened to them
	DecodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanstation",
			Name:      "decodes_total",
			Help:      "Total number of decoded payloads received by the scan session",
		},
		[]string{"result"}, // accepted, duplicate, locked, idle
	)

	// PayloadsDropped counts payloads the capture session could not hand off
	PayloadsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanstation",
			Name:      "payloads_dropped_total",
			Help:      "Total number of payloads dropped because the consumer was busy",
		},
		[]string{"device"},
	)

	// CameraStarts counts camera start attempts
	CameraStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanstation",
			Name:      "camera_starts_total",
			Help:      "Total number of camera start attempts",
		},
		[]string{"device", "result"}, // ok, busy, failed
	)

	// CameraRetries counts scheduled start retries after a busy device
	CameraRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scanstation",
			Name:      "camera_retries_total",
			Help:      "Total number of camera start retries after contention",
		},
	)

	// Verifications counts verification calls by outcome
	Verifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanstation",
			Name:      "verifications_total",
			Help:      "Total number of verification calls",
		},
		[]string{"profile", "result"}, // success, transport, rejected, malformed
	)

	// VerificationDuration tracks verification round trips
	VerificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scanstation",
			Name:      "verification_duration_seconds",
			Help:      "Verification call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"profile"},
	)

	// StateTransitions counts controller state entries
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scanstation",
			Name:      "state_transitions_total",
			Help:      "Total number of scan session state transitions",
		},
		[]string{"to"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// It is idempotent.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(DecodesTotal)
		prometheus.DefaultRegisterer.Register(PayloadsDropped)
		prometheus.DefaultRegisterer.Register(CameraStarts)
		prometheus.DefaultRegisterer.Register(CameraRetries)
		prometheus.DefaultRegisterer.Register(Verifications)
		prometheus.DefaultRegisterer.Register(VerificationDuration)
		prometheus.DefaultRegisterer.Register(StateTransitions)
	})
}
