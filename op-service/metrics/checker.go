package metrics

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	gocl "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// MetricFamiliesChecker is a snapshot of gathered metrics, for inspection in tests.
// Lookups fail the test when the metric is missing or ambiguous.
type MetricFamiliesChecker struct {
	families map[string]*gocl.MetricFamily
	t        require.TestingT
}

// NewMetricChecker gathers all metrics of g at the time of the call.
func NewMetricChecker(t require.TestingT, g prometheus.Gatherer) *MetricFamiliesChecker {
	families, err := g.Gather()
	require.NoError(t, err, "must gather metrics")
	byName := make(map[string]*gocl.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return &MetricFamiliesChecker{families: byName, t: t}
}

func (m *MetricFamiliesChecker) FindByName(name string) *MetricFamilyChecker {
	fam, ok := m.families[name]
	require.True(m.t, ok, "cannot find metric family %q", name)
	return &MetricFamilyChecker{fam: fam, t: m.t}
}

// Dump renders the snapshot as indented JSON.
func (m *MetricFamiliesChecker) Dump() string {
	out, _ := json.MarshalIndent(m.families, "  ", "  ")
	return string(out)
}

type MetricFamilyChecker struct {
	fam *gocl.MetricFamily
	t   require.TestingT
}

// FindByLabels returns the single metric of the family carrying all the given labels.
func (f *MetricFamilyChecker) FindByLabels(labels map[string]string) *gocl.Metric {
	var found *gocl.Metric
	for _, m := range f.fam.Metric {
		if !matchLabels(m, labels) {
			continue
		}
		require.Nil(f.t, found, "metric %q has more than one series with labels %v", f.fam.GetName(), labels)
		found = m
	}
	require.NotNil(f.t, found, "metric %q has no series with labels %v", f.fam.GetName(), labels)
	return found
}

// Value returns the counter or gauge value of the series with the given labels.
func (f *MetricFamilyChecker) Value(labels map[string]string) float64 {
	m := f.FindByLabels(labels)
	switch f.fam.GetType() {
	case gocl.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case gocl.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		require.Fail(f.t, "metric has no single value", "metric %q is a %s", f.fam.GetName(), f.fam.GetType())
		return 0
	}
}

func matchLabels(m *gocl.Metric, labels map[string]string) bool {
	for k, v := range labels {
		found := false
		for _, lab := range m.GetLabel() {
			if lab.GetName() == k && lab.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
