// yarex/pkg/metrics/metrics_test.go

package metrics

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCompile(t *testing.T) {
	m := New()

	m.ObserveCompile("compiled", 20*time.Millisecond)
	m.ObserveCompile("compiled", 30*time.Millisecond)
	m.ObserveCompile("syntax_error", time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CompilesTotal.WithLabelValues("compiled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CompilesTotal.WithLabelValues("syntax_error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CompileDuration))
}

func TestObserveLocateAndScan(t *testing.T) {
	m := New()

	m.ObserveLocate(true)
	m.ObserveLocate(false)
	m.ObserveLocate(false)
	m.ObserveScan(nil)
	m.ObserveScan(errors.New("unterminated quoted string"))
	m.ObserveLintIssue("unreferenced_pattern")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LocatesTotal.WithLabelValues("true")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.LocatesTotal.WithLabelValues("false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScansTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScansTotal.WithLabelValues("unterminated")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LintIssuesTotal.WithLabelValues("unreferenced_pattern")))
}

func TestWriteText(t *testing.T) {
	m := New()
	m.ObserveCompile("compiled", time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), `yarex_compiles_total{outcome="compiled"} 1`)
	assert.Contains(t, buf.String(), "# TYPE yarex_compile_duration_seconds histogram")

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, m.WriteFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}
