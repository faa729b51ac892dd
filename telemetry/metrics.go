package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carsensor_runs_total",
		Help: "Scraping runs by trigger kind and final status",
	}, []string{"kind", "status"})
	RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "carsensor_run_duration_seconds",
		Help:    "Wall time of finished scraping runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	ListingsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carsensor_listings_processed_total",
		Help: "Listings reconciled against the store, by outcome",
	}, []string{"outcome"})
	PagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carsensor_pages_fetched_total",
		Help: "Search pages fetched, by result",
	}, []string{"result"})
	TriggersSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carsensor_triggers_skipped_total",
		Help: "Triggers ignored because a run was already in progress",
	})
	RunningGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carsensor_run_in_progress",
		Help: "1 while a scraping run is executing",
	})
	LockLeaseLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carsensor_lock_lease_lost_total",
		Help: "Runs whose distributed lock lease expired before they finished",
	})
)

// Handler exposes the /metrics endpoint. Collectors are registered on first use.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RunsTotal,
			RunDuration,
			ListingsProcessed,
			PagesFetched,
			TriggersSkipped,
			RunningGauge,
			LockLeaseLost,
		)
	})
	return promhttp.Handler()
}
