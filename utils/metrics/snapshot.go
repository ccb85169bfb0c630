package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Snapshot flattens the current counter and gauge values of gatherer into
// "name{label=value,...}" keys. Histograms report their sample count.
func Snapshot(gatherer prometheus.Gatherer) (map[string]float64, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := seriesKey(mf.GetName(), m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return strings.TrimPrefix(name, namespace+"_")
	}

	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return strings.TrimPrefix(name, namespace+"_") + "{" + strings.Join(parts, ",") + "}"
}
