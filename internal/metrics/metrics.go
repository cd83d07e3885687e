package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors exported by the worker. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	decisions           *prometheus.CounterVec
	factorFailures      *prometheus.CounterVec
	frames              *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	notifyFailures      *prometheus.CounterVec
	persistenceFailures prometheus.Counter
	openSessions        prometheus.Gauge
	devicesPresent      prometheus.Gauge
	confidence          prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendguard_decisions_total",
			Help: "Authorization decisions by reason.",
		}, []string{"reason"}),
		factorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendguard_factor_failures_total",
			Help: "Second-factor failures by kind.",
		}, []string{"kind"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendguard_frames_total",
			Help: "Processed frames by outcome.",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendguard_transitions_total",
			Help: "Session transitions by action and trigger.",
		}, []string{"action", "trigger"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendguard_notification_failures_total",
			Help: "Failed notification deliveries by channel.",
		}, []string{"channel"}),
		persistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendguard_persistence_failures_total",
			Help: "Attendance records that could not be stored.",
		}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attendguard_open_sessions",
			Help: "Sessions currently holding an entry time.",
		}),
		devicesPresent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attendguard_devices_present",
			Help: "Devices seen on the last presence poll.",
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendguard_match_confidence",
			Help:    "Confidence of accepted face matches.",
			Buckets: prometheus.LinearBuckets(40, 10, 7),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.decisions, m.factorFailures, m.frames, m.transitions, m.notifyFailures,
			m.persistenceFailures, m.openSessions, m.devicesPresent, m.confidence,
		)
	}
	return m
}

func (m *Metrics) Decision(reason string) {
	if m != nil {
		m.decisions.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) FactorFailure(kind string) {
	if m != nil {
		m.factorFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Frame(outcome string) {
	if m != nil {
		m.frames.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Transition(action, trigger string) {
	if m != nil {
		m.transitions.WithLabelValues(action, trigger).Inc()
	}
}

func (m *Metrics) NotifyFailure(channel string) {
	if m != nil {
		m.notifyFailures.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) PersistenceFailure() {
	if m != nil {
		m.persistenceFailures.Inc()
	}
}

func (m *Metrics) SetOpenSessions(n int) {
	if m != nil {
		m.openSessions.Set(float64(n))
	}
}

func (m *Metrics) SetDevicesPresent(n int) {
	if m != nil {
		m.devicesPresent.Set(float64(n))
	}
}

func (m *Metrics) ObserveConfidence(c float64) {
	if m != nil {
		m.confidence.Observe(c)
	}
}
