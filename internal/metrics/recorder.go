package metrics

import (
	"holdoutbench/internal/harness"
)

// Recorder feeds harness events into the Prometheus collectors.
type Recorder struct {
	m *Metrics
}

// NewRecorder returns an observer backed by m.
func NewRecorder(m *Metrics) *Recorder {
	return &Recorder{m: m}
}

// OnEvent implements harness.Observer.
func (r *Recorder) OnEvent(ev harness.Event) {
	switch {
	case ev.Failure != nil:
		r.m.IterationsTotal.WithLabelValues(ev.Stage, ev.Model, "failed").Inc()
	case ev.State == harness.StateIdle:
		r.m.ActiveConfigurations.Inc()
	case ev.State == harness.StateRecorded && ev.Iteration != nil:
		it := ev.Iteration
		r.m.IterationsTotal.WithLabelValues(ev.Stage, ev.Model, "recorded").Inc()
		r.m.IterationDuration.Observe(it.Duration.Seconds())
		for metric, v := range it.Metrics {
			r.m.MetricValue.WithLabelValues(metric).Observe(v)
		}
		for metric := range it.Unscored {
			r.m.UnscoredTotal.WithLabelValues(metric).Inc()
		}
	}
}

// OnComplete implements harness.Observer.
func (r *Recorder) OnComplete(res *harness.ConfigurationResult) {
	r.m.ActiveConfigurations.Dec()
	r.m.ConfigurationsTotal.WithLabelValues(res.Status.String()).Inc()
	for _, s := range res.Summaries {
		r.m.SummaryMean.WithLabelValues(res.Stage, res.Model, s.Metric).Set(s.Mean)
		r.m.SummaryHalfWidth.WithLabelValues(res.Stage, res.Model, s.Metric).Set(s.HalfWidth)
	}
}
