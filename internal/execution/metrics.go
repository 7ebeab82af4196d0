package execution

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes bucket sizes of a Database as prometheus gauges. Values
// are read from the store at scrape time.
type Metrics struct {
	OrdersTotal     prometheus.GaugeFunc
	OrdersWorking   prometheus.GaugeFunc
	OrdersCompleted prometheus.GaugeFunc
	PositionsTotal  prometheus.GaugeFunc
	PositionsOpen   prometheus.GaugeFunc
	PositionsClosed prometheus.GaugeFunc
}

// NewMetrics constructs and registers store gauges with the provided registerer.
func NewMetrics(db Database, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"trader_id": string(db.TraderID())}
	gauge := func(name, help string, fn func() int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{ //nolint:exhaustruct
				Namespace:   "tempo",
				Subsystem:   "execution",
				Name:        name,
				Help:        help,
				ConstLabels: labels,
			},
			func() float64 { return float64(fn()) },
		)
	}
	m := &Metrics{
		OrdersTotal:     gauge("orders_total", "Orders held by the execution store.", db.OrdersTotalCount),
		OrdersWorking:   gauge("orders_working", "Orders in the working bucket.", db.OrdersWorkingCount),
		OrdersCompleted: gauge("orders_completed", "Orders in the completed bucket.", db.OrdersCompletedCount),
		PositionsTotal:  gauge("positions_total", "Positions held by the execution store.", db.PositionsTotalCount),
		PositionsOpen:   gauge("positions_open", "Positions in the open bucket.", db.PositionsOpenCount),
		PositionsClosed: gauge("positions_closed", "Positions in the closed bucket.", db.PositionsClosedCount),
	}
	reg.MustRegister(m.OrdersTotal, m.OrdersWorking, m.OrdersCompleted, m.PositionsTotal, m.PositionsOpen, m.PositionsClosed)
	return m
}
