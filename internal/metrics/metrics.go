// Package metrics exposes the console's Prometheus series. All collectors are
// registered with the controller-runtime registry, which the serve command
// publishes on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "openbao_console"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPartial = "partial"
)

var (
	mountSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mount_submissions_total",
			Help:      "Total number of mount submissions sent to OpenBao",
		},
		[]string{"category", "type", "result", "failure_kind"},
	)

	mountSubmitDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mount_submit_duration_seconds",
			Help:      "Duration of mount submissions in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"category"},
	)

	mountValidationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mount_validation_errors_total",
			Help:      "Total number of submissions rejected before reaching OpenBao",
		},
		[]string{"category"},
	)

	capabilityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_checks_total",
			Help:      "Total number of sys/capabilities-self checks by result",
		},
		[]string{"category", "result"},
	)

	activeDraftsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_drafts",
			Help:      "Number of open mount drafts held by the HTTP surface",
		},
	)

	draftsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_expired_total",
			Help:      "Total number of idle drafts removed by the sweeper",
		},
	)

	formSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_saves_total",
			Help:      "Total number of engine item saves (LDAP roles, transform items) by result",
		},
		[]string{"engine", "kind", "result"},
	)

	journalUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_uploads_total",
			Help:      "Total number of mount journal records archived to object storage",
		},
		[]string{"result"},
	)

	circuitTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "openbao_circuit_trips_total",
			Help:      "Total number of times an OpenBao endpoint circuit breaker opened",
		},
		[]string{"endpoint"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP API requests by route and status code",
		},
		[]string{"route", "method", "code"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		mountSubmissionsTotal,
		mountSubmitDurationHistogram,
		mountValidationErrorsTotal,
		capabilityChecksTotal,
		activeDraftsGauge,
		draftsExpiredTotal,
		formSavesTotal,
		journalUploadsTotal,
		circuitTripsTotal,
		httpRequestsTotal,
	)
}

// MountMetrics records mount workflow metrics for one mount category.
type MountMetrics struct {
	category string
}

// NewMountMetrics creates a new MountMetrics instance.
func NewMountMetrics(category string) *MountMetrics {
	return &MountMetrics{category: category}
}

// RecordSubmission records a finished submission. failureKind is empty on success.
func (m *MountMetrics) RecordSubmission(mountType, result, failureKind string, durationSeconds float64) {
	mountSubmissionsTotal.
		WithLabelValues(m.category, mountType, result, failureKind).
		Inc()
	mountSubmitDurationHistogram.
		WithLabelValues(m.category).
		Observe(durationSeconds)
}

// RecordValidationError counts a submit refused before any network call.
func (m *MountMetrics) RecordValidationError() {
	mountValidationErrorsTotal.
		WithLabelValues(m.category).
		Inc()
}

// RecordCapabilityCheck counts a capability lookup.
func (m *MountMetrics) RecordCapabilityCheck(result string) {
	capabilityChecksTotal.
		WithLabelValues(m.category, result).
		Inc()
}

// SetActiveDrafts records the number of open drafts.
func SetActiveDrafts(n int) {
	activeDraftsGauge.Set(float64(n))
}

// RecordDraftsExpired counts drafts removed for idleness.
func RecordDraftsExpired(n int) {
	draftsExpiredTotal.Add(float64(n))
}

// RecordFormSave counts a save of an engine item such as an LDAP role.
func RecordFormSave(engine, kind, result string) {
	formSavesTotal.
		WithLabelValues(engine, kind, result).
		Inc()
}

// RecordJournalUpload counts an archive attempt.
func RecordJournalUpload(result string) {
	journalUploadsTotal.
		WithLabelValues(result).
		Inc()
}

// RecordCircuitTrip counts a breaker opening. endpoint is the endpoint class,
// never a path.
func RecordCircuitTrip(endpoint string) {
	circuitTripsTotal.
		WithLabelValues(endpoint).
		Inc()
}

// RecordHTTPRequest counts a served API request. route is the route template.
func RecordHTTPRequest(route, method string, code int) {
	httpRequestsTotal.
		WithLabelValues(route, method, strconv.Itoa(code)).
		Inc()
}
