package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/agentdesk/internal/authorization"
	"gorm.io/gorm"
)

const (
	LifecycleReasonDeadlineExceeded     = "deadline_exceeded"
	LifecycleReasonForbidden            = "forbidden"
	LifecycleReasonDBLockTimeout        = "db_lock_timeout"
	LifecycleReasonSerializationFailure = "serialization_failure"
	LifecycleReasonUniqueViolation      = "unique_violation"
	LifecycleReasonDB                   = "db"
	LifecycleReasonUnknown              = "unknown"
)

const (
	LockResourceRequestMutex = "request_mutex"
	LockResourceRequestRow   = "request_row"
)

// LifecycleMetrics exposes request lifecycle health on the Prometheus
// registry scraped at /metrics and pushed by the remote writer.
type LifecycleMetrics struct {
	operations       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	transitions      *prometheus.CounterVec
	errors           *prometheus.CounterVec
	versionConflicts *prometheus.CounterVec
	lockWait         *prometheus.HistogramVec
}

var (
	lifecycleMetricsOnce sync.Once
	lifecycleMetrics     *LifecycleMetrics
)

// Lifecycle returns the process-wide lifecycle metrics.
func Lifecycle() *LifecycleMetrics {
	return LifecycleWithConfig(Config{})
}

// LifecycleWithConfig returns the process-wide lifecycle metrics, labelled
// from cfg on first use.
func LifecycleWithConfig(cfg Config) *LifecycleMetrics {
	lifecycleMetricsOnce.Do(func() {
		lifecycleMetrics = newLifecycleMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return lifecycleMetrics
}

func newLifecycleMetrics(registerer prometheus.Registerer, cfg Config) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "agentdesk"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &LifecycleMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "agentdesk_lifecycle_operations_total",
			Help:        "Lifecycle operations by action and outcome.",
			ConstLabels: constLabels,
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "agentdesk_lifecycle_operation_duration_seconds",
			Help:        "Lifecycle operation latency including lock and transaction time.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"action"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "agentdesk_service_request_status_transitions_total",
			Help:        "Committed status changes.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "agentdesk_lifecycle_errors_total",
			Help:        "Lifecycle failures by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"action", "reason"}),
		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "agentdesk_lifecycle_version_conflicts_total",
			Help:        "Optimistic version checks that lost a race and were retried.",
			ConstLabels: constLabels,
		}, []string{"action"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "agentdesk_lifecycle_lock_wait_seconds",
			Help:        "Time spent acquiring per-request serialization.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"resource"}),
	}

	registerer.MustRegister(
		m.operations,
		m.duration,
		m.transitions,
		m.errors,
		m.versionConflicts,
		m.lockWait,
	)
	return m
}

func (m *LifecycleMetrics) ObserveOperation(action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(action, outcome).Inc()
	m.duration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *LifecycleMetrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *LifecycleMetrics) IncError(action, reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(action, reason).Inc()
}

func (m *LifecycleMetrics) IncVersionConflict(action string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(action).Inc()
}

func (m *LifecycleMetrics) ObserveLockWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
}

// ClassifyLifecycleReason maps infrastructure errors to a metric reason.
func ClassifyLifecycleReason(err error) string {
	switch {
	case err == nil:
		return LifecycleReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return LifecycleReasonDeadlineExceeded
	case errors.Is(err, authorization.ErrForbidden):
		return LifecycleReasonForbidden
	case hasPGCode(err, "55P03"):
		return LifecycleReasonDBLockTimeout
	case hasPGCode(err, "40001"), hasPGCode(err, "40P01"):
		return LifecycleReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return LifecycleReasonUniqueViolation
	case isDBError(err):
		return LifecycleReasonDB
	default:
		return LifecycleReasonUnknown
	}
}

// IsRetryable reports whether err is a transient database condition.
func IsRetryable(err error) bool {
	switch ClassifyLifecycleReason(err) {
	case LifecycleReasonDBLockTimeout, LifecycleReasonSerializationFailure:
		return true
	default:
		return false
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
