// yarex/pkg/metrics/metrics.go

// Package metrics holds the Prometheus collectors for compiles, error
// location and source scans. Collectors live in their own registry so a
// dump contains only yarex metrics.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type Metrics struct {
	Registry *prometheus.Registry

	CompilesTotal   *prometheus.CounterVec
	CompileDuration *prometheus.HistogramVec
	LocatesTotal    *prometheus.CounterVec
	ScansTotal      *prometheus.CounterVec
	LintIssuesTotal *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CompilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarex_compiles_total",
			Help: "Total number of rule compiles by outcome.",
		}, []string{"outcome"}),

		CompileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yarex_compile_duration_seconds",
			Help:    "Rule compile latency in seconds, engine calls included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),

		LocatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarex_syntax_error_locates_total",
			Help: "Total number of syntax error locate attempts.",
		}, []string{"located"}),

		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarex_source_scans_total",
			Help: "Total number of rule body scans by result.",
		}, []string{"result"}),

		LintIssuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarex_lint_issues_total",
			Help: "Total number of lint issues reported by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.CompilesTotal,
		m.CompileDuration,
		m.LocatesTotal,
		m.ScansTotal,
		m.LintIssuesTotal,
	)

	return m
}

// ObserveCompile records one compile and how long it took.
func (m *Metrics) ObserveCompile(outcome string, elapsed time.Duration) {
	m.CompilesTotal.WithLabelValues(outcome).Inc()
	m.CompileDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLocate(located bool) {
	m.LocatesTotal.WithLabelValues(strconv.FormatBool(located)).Inc()
}

// ObserveScan records a lexer pass; err is the scan's error, if any.
func (m *Metrics) ObserveScan(err error) {
	result := "ok"
	if err != nil {
		result = "unterminated"
	}
	m.ScansTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLintIssue(kind string) {
	m.LintIssuesTotal.WithLabelValues(kind).Inc()
}

// WriteText writes every gathered family in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile dumps the metrics to path.
func (m *Metrics) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
