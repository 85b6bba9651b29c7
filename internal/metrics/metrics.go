// Package metrics exposes pass and record counters over Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the engine reports into.
type Metrics struct {
	passes           prometheus.Counter
	lockContention   prometheus.Counter
	recordsProcessed prometheus.Counter
	recordsFailed    prometheus.Counter
	recordsSkipped   prometheus.Counter
	passDuration     prometheus.Gauge
	partnerBalance   prometheus.Gauge
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		passes: factory.NewCounter(prometheus.CounterOpts{
			Name: "tally_passes_total",
			Help: "Reconciliation passes completed.",
		}),
		lockContention: factory.NewCounter(prometheus.CounterOpts{
			Name: "tally_lock_contention_total",
			Help: "Pass invocations that exited because another pass held the lease.",
		}),
		recordsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tally_records_processed_total",
			Help: "Records fully processed across all passes.",
		}),
		recordsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tally_records_failed_total",
			Help: "Record processing attempts that failed and will retry.",
		}),
		recordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tally_records_skipped_total",
			Help: "Records skipped: annotated as unprocessable or deferred by cancellation.",
		}),
		passDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tally_last_pass_duration_seconds",
			Help: "Wall-clock duration of the most recent pass.",
		}),
		partnerBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tally_partner_balance",
			Help: "Running balance with the financial partner.",
		}),
	}
}

// PassCompleted records the summary of one finished pass.
func (m *Metrics) PassCompleted(processed, failed, skipped int, duration time.Duration) {
	m.passes.Inc()
	m.recordsProcessed.Add(float64(processed))
	m.recordsFailed.Add(float64(failed))
	m.recordsSkipped.Add(float64(skipped))
	m.passDuration.Set(duration.Seconds())
}

// LockContention counts an invocation that lost the pass lease.
func (m *Metrics) LockContention() {
	m.lockContention.Inc()
}

// SetPartnerBalance updates the partner balance gauge.
func (m *Metrics) SetPartnerBalance(balance float64) {
	m.partnerBalance.Set(balance)
}
