package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_WriteFileRoundTrip(t *testing.T) {
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	r := New()
	r.started = base
	r.now = func() time.Time { return base.Add(90 * time.Second) }

	r.TokenRequest("empty")
	r.TokenRequest("issued")
	r.Attempt("unexpected_status")
	r.Attempt("unexpected_status")
	r.Attempt("created")
	r.Finish(true)

	path := filepath.Join(t.TempDir(), "fmpost.prom")
	require.NoError(t, r.WriteFile(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(f)
	require.NoError(t, err)

	attempts := byLabel(t, mfs[NameAttempts])
	assert.Equal(t, 2.0, attempts["unexpected_status"])
	assert.Equal(t, 1.0, attempts["created"])

	tokens := byLabel(t, mfs[NameTokenRequests])
	assert.Equal(t, 1.0, tokens["empty"])
	assert.Equal(t, 1.0, tokens["issued"])

	require.NotNil(t, mfs[NameSuccess])
	assert.Equal(t, 1.0, mfs[NameSuccess].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 90.0, mfs[NameDuration].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, float64(base.Add(90*time.Second).Unix()), mfs[NameLastRun].GetMetric()[0].GetGauge().GetValue())
}

func TestRecorder_FailureRun(t *testing.T) {
	r := New()
	r.Attempt("transport_error")
	r.Finish(false)

	var success *dto.MetricFamily
	for _, mf := range r.Families() {
		if mf.GetName() == NameSuccess {
			success = mf
		}
	}
	require.NotNil(t, success)
	assert.Equal(t, 0.0, success.GetMetric()[0].GetGauge().GetValue())
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Attempt("created")
	r.TokenRequest("issued")
	r.Finish(true)
	assert.NoError(t, r.WriteFile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRecorder_WriteFileLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	r := New()
	r.Finish(false)
	require.NoError(t, r.WriteFile(filepath.Join(dir, "fmpost.prom")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fmpost.prom", entries[0].Name())
}

func byLabel(t *testing.T, mf *dto.MetricFamily) map[string]float64 {
	t.Helper()
	require.NotNil(t, mf)
	out := map[string]float64{}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "outcome" {
				out[lp.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	return out
}
