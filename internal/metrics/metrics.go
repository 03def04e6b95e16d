// Package metrics collects rebalance gauges and counters and writes them to a
// node_exporter textfile. A run is too short to be scraped.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/services/rebalance"
)

// Recorder holds the metrics of a rebalancer process.
type Recorder struct {
	registry *prometheus.Registry

	totalValue     prometheus.Gauge
	share          *prometheus.GaugeVec
	expectedShare  *prometheus.GaugeVec
	swapsPlanned   prometheus.Gauge
	swapsSubmitted prometheus.Counter
	failures       *prometheus.CounterVec
	lastRun        prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		totalValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_fund_total_value",
			Help: "Total value of the weighted fund assets",
		}),
		share: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rebalancer_asset_share",
			Help: "Current share of the asset in the fund",
		}, []string{"symbol"}),
		expectedShare: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rebalancer_asset_expected_share",
			Help: "Target share of the asset in the fund",
		}, []string{"symbol"}),
		swapsPlanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_swaps_planned",
			Help: "Swaps in the last rebalance plan",
		}),
		swapsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rebalancer_swaps_submitted_total",
			Help: "Exchange transactions accepted by the node",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rebalancer_run_failures_total",
			Help: "Failed rebalance runs by stage",
		}, []string{"stage"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalancer_last_run_timestamp_seconds",
			Help: "Unix time the last rebalance run finished",
		}),
	}

	r.registry.MustRegister(
		r.totalValue,
		r.share,
		r.expectedShare,
		r.swapsPlanned,
		r.swapsSubmitted,
		r.failures,
		r.lastRun,
	)
	return r
}

// ObservePool records fund value and shares.
func (r *Recorder) ObservePool(pool *rebalance.Pool) {
	r.totalValue.Set(pool.TotalValue())
	for _, symbol := range pool.Symbols() {
		r.share.WithLabelValues(symbol).Set(pool.Share(symbol))
		r.expectedShare.WithLabelValues(symbol).Set(pool.ExpectedShare(symbol))
	}
}

// ObservePlan records the size of the plan.
func (r *Recorder) ObservePlan(swaps int) {
	r.swapsPlanned.Set(float64(swaps))
}

// ObserveSubmitted counts accepted transactions.
func (r *Recorder) ObserveSubmitted(n int) {
	r.swapsSubmitted.Add(float64(n))
}

// ObserveFailure counts a failed run.
func (r *Recorder) ObserveFailure(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	r.failures.WithLabelValues(stage).Inc()
}

// ObserveRunFinished stamps the end of a run.
func (r *Recorder) ObserveRunFinished(t time.Time) {
	r.lastRun.Set(float64(t.Unix()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in text exposition format. The file is
// replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "write metrics to %s", path)
	}
	return nil
}
