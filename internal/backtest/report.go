package backtest

import (
	"maps"
	"slices"
	"time"

	"github.com/coachpo/tempo/internal/clock"
	"github.com/coachpo/tempo/internal/execution"
)

// Report summarises a backtest run.
type Report struct {
	Start            time.Time
	Stop             time.Time
	Steps            int
	EventsDispatched int
	LabelCounts      map[clock.Label]int

	OrdersTotal     int
	OrdersCompleted int
	PositionsTotal  int
	PositionsClosed int

	Residuals execution.Residuals
}

func newReport(start, stop time.Time) Report {
	return Report{
		Start:       start.UTC(),
		Stop:        stop.UTC(),
		LabelCounts: make(map[clock.Label]int),
	}
}

func (r *Report) recordEvent(label clock.Label) {
	r.EventsDispatched++
	r.LabelCounts[label]++
}

func (r *Report) finish(db execution.Database) {
	r.OrdersTotal = db.OrdersTotalCount()
	r.OrdersCompleted = db.OrdersCompletedCount()
	r.PositionsTotal = db.PositionsTotalCount()
	r.PositionsClosed = db.PositionsClosedCount()
	r.Residuals = db.CheckResiduals()
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	out := r
	out.LabelCounts = maps.Clone(r.LabelCounts)
	out.Residuals.WorkingOrders = slices.Clone(r.Residuals.WorkingOrders)
	out.Residuals.OpenPositions = slices.Clone(r.Residuals.OpenPositions)
	return out
}
