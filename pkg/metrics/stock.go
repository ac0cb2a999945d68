package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for stock operations.
const (
	OutcomeOK           = "ok"
	OutcomeInsufficient = "insufficient"
	OutcomeRejected     = "rejected"
	OutcomeError        = "error"
)

// StockMetrics counts stock engine operations and cleanup sweeps.
type StockMetrics struct {
	operations *prometheus.CounterVec
	expired    prometheus.Counter
	sweepFails prometheus.Counter
}

// NewStockMetrics registers the stock metrics on the provided registerer.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "operations_total",
		Help:      "Stock engine operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "reservations_expired_total",
		Help:      "Reservations released by the expiry sweep.",
	})
	sweepFails := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "reservation_sweep_failures_total",
		Help:      "Expired reservations the sweep failed to release.",
	})
	reg.MustRegister(operations, expired, sweepFails)
	return &StockMetrics{
		operations: operations,
		expired:    expired,
		sweepFails: sweepFails,
	}
}

// IncOperation counts one finished operation.
func (m *StockMetrics) IncOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// AddExpired records a cleanup sweep result.
func (m *StockMetrics) AddExpired(released, failed int) {
	if m == nil || m.expired == nil {
		return
	}
	m.expired.Add(float64(released))
	m.sweepFails.Add(float64(failed))
}
