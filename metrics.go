package mobly

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values
const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics exposes service lifecycle activity as Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	registered prometheus.Gauge
	recorded   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mobly_service_operations_total",
				Help: "Lifecycle calls issued to services by operation and result",
			},
			[]string{"op", "result"},
		),
		registered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mobly_registered_services",
				Help: "Number of services currently registered",
			},
		),
		recorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mobly_recorded_errors_total",
				Help: "Non-fatal errors recorded",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.registered, m.recorded} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeOp(op Operation, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.operations.WithLabelValues(op.String(), result).Inc()
}

func (m *Metrics) setRegistered(n int) {
	if m == nil {
		return
	}
	m.registered.Set(float64(n))
}

func (m *Metrics) observeRecorded() {
	if m == nil {
		return
	}
	m.recorded.Inc()
}
