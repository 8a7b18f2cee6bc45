package sorter

import (
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type Metrics struct {
	registry     *prometheus.Registry
	Runs         prometheus.Counter
	Records      prometheus.Counter
	Skipped      prometheus.Counter
	Merged       prometheus.Counter
	Refills      prometheus.Counter
	DistinctKeys prometheus.Gauge
	Seconds      *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extsort_runs_total",
			Help: "Number of sorted runs written to the intermediate file.",
		}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extsort_records_read_total",
			Help: "Number of records read from the source.",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extsort_lines_skipped_total",
			Help: "Number of empty or separator-less source lines skipped.",
		}),
		Merged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extsort_records_merged_total",
			Help: "Number of records written to the output.",
		}),
		Refills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extsort_run_refills_total",
			Help: "Number of run queue refills.",
		}),
		DistinctKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "extsort_distinct_keys",
			Help: "Estimated number of distinct keys in the source.",
		}),
		Seconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "extsort_stage_seconds",
			Help: "Wall time spent in each stage of the sort.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.Runs, m.Records, m.Skipped, m.Merged, m.Refills, m.DistinctKeys, m.Seconds)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText writes one "name{labels} value" line per metric, sorted by name.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if _, err := fmt.Fprintf(w, "%s%s %g\n", mf.GetName(), labels(metric), value(mf.GetType(), metric)); err != nil {
				return err
			}
		}
	}
	return nil
}

func labels(m *dto.Metric) string {
	pairs := m.GetLabel()
	if len(pairs) == 0 {
		return ""
	}
	s := "{"
	for i, p := range pairs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}
	return s + "}"
}

func value(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	}
	return m.GetUntyped().GetValue()
}
