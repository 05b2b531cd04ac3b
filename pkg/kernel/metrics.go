package kernel

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the kernel instruments. A nil *Metrics records nothing.
type Metrics struct {
	Groups      *prometheus.CounterVec
	Events      *prometheus.CounterVec
	Faults      *prometheus.CounterVec
	Inputs      *prometheus.CounterVec
	CycleTime   prometheus.Histogram
	Supervision *prometheus.GaugeVec
	Brake       *prometheus.GaugeVec
}

// NewMetrics creates the kernel metrics and registers them
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Groups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evc_balise_groups_total",
				Help: "Passed balise groups by validation outcome",
			},
			[]string{"outcome"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evc_information_events_total",
				Help: "Information events by kind and filter outcome",
			},
			[]string{"kind", "outcome"},
		),
		Faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evc_faults_total",
				Help: "Faults detected by the kernel",
			},
			[]string{"kind"},
		),
		Inputs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evc_inputs_total",
				Help: "Inputs drained by the cycle",
			},
			[]string{"source"},
		),
		CycleTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evc_cycle_duration_seconds",
				Help:    "Duration of one supervision cycle",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
			},
		),
		Supervision: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evc_supervision_status",
				Help: "1 for the current monitoring and supervision status",
			},
			[]string{"monitoring", "supervision"},
		),
		Brake: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evc_brake_command",
				Help: "Commanded brakes, 1 when applied",
			},
			[]string{"brake"},
		),
	}
	reg.MustRegister(m.Groups, m.Events, m.Faults, m.Inputs, m.CycleTime, m.Supervision, m.Brake)
	return m
}

func (m *Metrics) groups() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.Groups
}

func (m *Metrics) events() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.Events
}

func (m *Metrics) observe(out Output, seconds float64) {
	if m == nil {
		return
	}
	m.CycleTime.Observe(seconds)
	for _, f := range out.Faults {
		m.Faults.WithLabelValues(string(f.Kind)).Inc()
	}
	m.Supervision.Reset()
	m.Supervision.WithLabelValues(out.State.Monitoring.String(), out.State.Supervision.String()).Set(1)
	m.Brake.WithLabelValues("service").Set(gauge(out.Brake.ServiceBrake))
	m.Brake.WithLabelValues("emergency").Set(gauge(out.Brake.EmergencyBrake))
	m.Brake.WithLabelValues("traction_cut_off").Set(gauge(out.Brake.TractionCutOff))
}

func (m *Metrics) input(source string) {
	if m != nil {
		m.Inputs.WithLabelValues(source).Inc()
	}
}

func gauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
