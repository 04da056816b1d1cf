// Package metrics exposes poll-cycle counters for Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rileyhilliard/gridmon/internal/errors"
	"github.com/rileyhilliard/gridmon/internal/logger"
)

var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridmon_cycles_total",
			Help: "Total number of poll cycles",
		},
		[]string{"result"}, // result: ok, failed
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridmon_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridmon_source_failures_total",
			Help: "Total number of failed source fetches",
		},
		[]string{"source"}, // source: catalog, thresholds, sensors
	)

	// Evaluation metrics
	ResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridmon_results_total",
			Help: "Total number of check results produced",
		},
		[]string{"status"},
	)

	ThresholdCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridmon_threshold_cache_hits_total",
			Help: "Number of cycles served from the threshold cache",
		},
	)

	// Registration metrics
	HostsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridmon_hosts_created_total",
			Help: "Total number of hosts registered with Icinga",
		},
	)

	RegistrationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridmon_registration_failures_total",
			Help: "Total number of failed host registrations",
		},
	)

	// Dispatch metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridmon_dispatch_total",
			Help: "Total number of result batches dispatched",
		},
		[]string{"transport", "result"},
	)
)

// Server serves /metrics on addr until ctx is cancelled. An empty addr
// disables it.
func Server(ctx context.Context, addr string, log logger.Logger) error {
	if addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't listen on "+addr+" for metrics",
			"Change metrics_listen or free the port.")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info("serving metrics on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped: %v", err)
		}
	}()
	return nil
}
