package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/litmuschaos/attrition-go/pkg/log"
)

const namespace = "attrition"

var (
	// KillsTotal counts dispatched kills by axis and kill type
	KillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kills_total",
			Help:      "Kills dispatched, labelled by axis and kill type",
		},
		[]string{"axis", "kill_type"},
	)

	// IterationsTotal counts pacing loop rounds, killed or skipped
	IterationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Pacing loop iterations",
		},
	)

	// GraceWindowsTotal counts storage-failure suppression windows opened
	GraceWindowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grace_windows_total",
			Help:      "Cluster-wide storage failure grace windows opened",
		},
	)

	// PoolSize tracks the candidate pool after the latest round
	PoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_size",
			Help:      "Kill candidates remaining in the pool",
		},
	)
)

// Serve exposes the default registry on addr/metrics. Failures are logged,
// the experiment never depends on the scrape endpoint being up.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics endpoint on %v went down: %v", addr, err)
		}
	}()
	log.Infof("[Info]: Serving metrics on %v/metrics", addr)
}
