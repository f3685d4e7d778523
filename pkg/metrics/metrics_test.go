package metrics_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/jvs-project/rcopy/pkg/metrics"
	"github.com/jvs-project/rcopy/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, r *metrics.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecordOperation(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordOperation(model.OperationCopy, model.KindSuccess, 2*time.Second)
	r.RecordOperation(model.OperationCopy, model.KindSuccess, time.Second)
	r.RecordOperation(model.OperationExists, model.KindRetriableError, 30*time.Second)

	assert.Equal(t, 2.0, counterValue(t, r, "rcopy_operations_total", map[string]string{"op": "copy", "kind": "success"}))
	assert.Equal(t, 1.0, counterValue(t, r, "rcopy_operations_total", map[string]string{"op": "exists", "kind": "retriable_error"}))
}

func TestRecordTermination(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordTermination(true)
	r.RecordTermination(false)
	r.RecordTermination(false)

	assert.Equal(t, 1.0, counterValue(t, r, "rcopy_terminations_total", map[string]string{"killed": "true"}))
	assert.Equal(t, 2.0, counterValue(t, r, "rcopy_terminations_total", map[string]string{"killed": "false"}))
}

func TestWriteText(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordOperation(model.OperationCheck, model.KindSuccess, 10*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	assert.Contains(t, buf.String(), `rcopy_operations_total{kind="success",op="check"} 1`)
	assert.Contains(t, buf.String(), "rcopy_operation_duration_seconds_bucket")
}

func TestNilRegistry(t *testing.T) {
	var r *metrics.Registry
	r.RecordOperation(model.OperationCopy, model.KindFatalError, time.Second)
	r.RecordTermination(true)
	assert.NoError(t, r.WriteText(&bytes.Buffer{}))
}
