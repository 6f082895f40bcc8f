package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObjectAudited("ok", 0.2)
	m.ObjectAudited("needs-cleanup", 0.1)
	m.ObjectFailed("source_unavailable")
	m.ActionEmitted("delete")
	m.ActionEmitted("delete")
	m.ActionExecuted("add", "done")
	m.KeyScanned("cold", "recorded")
	m.RPC("AuditObject", "OK", 0.01)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ObjectsAudited.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActionsEmitted.WithLabelValues("delete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsExecuted.WithLabelValues("add", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeysScanned.WithLabelValues("cold", "recorded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("AuditObject", "OK")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AuditDuration))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestNilMetrics_NoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObjectAudited("ok", 1)
		m.ObjectFailed("x")
		m.ActionEmitted("delete")
		m.ActionExecuted("delete", "done")
		m.KeyScanned("primary", "recorded")
		m.RPC("Ping", "OK", 0)
	})
}
