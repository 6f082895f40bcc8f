// Package metrics exposes Prometheus counters for audit runs, scans,
// remediation and the RPC surface. A nil *Metrics records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors.
type Metrics struct {
	ObjectsAudited  *prometheus.CounterVec   // preservaudit_objects_audited_total{health}
	ObjectFailures  *prometheus.CounterVec   // preservaudit_object_failures_total{reason}
	AuditDuration   prometheus.Histogram     // preservaudit_object_audit_duration_seconds
	ActionsEmitted  *prometheus.CounterVec   // preservaudit_actions_emitted_total{action}
	ActionsExecuted *prometheus.CounterVec   // preservaudit_actions_executed_total{action,status}
	KeysScanned     *prometheus.CounterVec   // preservaudit_keys_scanned_total{tier,status}
	RPCRequests     *prometheus.CounterVec   // preservaudit_rpc_requests_total{method,code}
	RPCDuration     *prometheus.HistogramVec // preservaudit_rpc_duration_seconds{method}
}

// New registers a fresh set of collectors with registry.
func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		ObjectsAudited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "preservaudit_objects_audited_total",
			Help: "Objects audited, by resulting health",
		}, []string{"health"}),

		ObjectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "preservaudit_object_failures_total",
			Help: "Objects that could not be audited, by reason",
		}, []string{"reason"}),

		AuditDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "preservaudit_object_audit_duration_seconds",
			Help:    "Time to load, reconcile and plan one object",
			Buckets: prometheus.DefBuckets,
		}),

		ActionsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "preservaudit_actions_emitted_total",
			Help: "Remediation actions inserted or changed in the plan sink",
		}, []string{"action"}),

		ActionsExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "preservaudit_actions_executed_total",
			Help: "Remediation actions processed by the executor, by status",
		}, []string{"action", "status"}),

		KeysScanned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "preservaudit_keys_scanned_total",
			Help: "Storage objects seen by the tier scanner",
		}, []string{"tier", "status"}),

		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "preservaudit_rpc_requests_total",
			Help: "gRPC requests by method and status code",
		}, []string{"method", "code"}),

		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "preservaudit_rpc_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) ObjectAudited(health string, seconds float64) {
	if m == nil {
		return
	}
	m.ObjectsAudited.WithLabelValues(health).Inc()
	m.AuditDuration.Observe(seconds)
}

func (m *Metrics) ObjectFailed(reason string) {
	if m == nil {
		return
	}
	m.ObjectFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ActionEmitted(action string) {
	if m == nil {
		return
	}
	m.ActionsEmitted.WithLabelValues(action).Inc()
}

func (m *Metrics) ActionExecuted(action, status string) {
	if m == nil {
		return
	}
	m.ActionsExecuted.WithLabelValues(action, status).Inc()
}

func (m *Metrics) KeyScanned(tier, status string) {
	if m == nil {
		return
	}
	m.KeysScanned.WithLabelValues(tier, status).Inc()
}

func (m *Metrics) RPC(method, code string, seconds float64) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method, code).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(seconds)
}
