/*
Package telemetry implements the engine's checkpoint observer on top of
Prometheus counters, replacing the ad-hoc console logging the old mobile
code interleaved with its merge logic.
*/
package telemetry

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Recorder counts reconciliation checkpoints. It implements
// clinical.Observer.
type Recorder struct {
	registry *prometheus.Registry

	reconciliations *prometheus.CounterVec
	recordsMerged   prometheus.Counter
	remoteFallbacks prometheus.Counter
	cacheFailures   prometheus.Counter
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medisync_reconciliations_total",
			Help: "Completed reconciliation passes by freshness.",
		}, []string{"freshness"}),
		recordsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medisync_records_merged_total",
			Help: "Clinical parameter records emitted by the merge pipeline.",
		}),
		remoteFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medisync_remote_fallbacks_total",
			Help: "Syncs that degraded to cache-only because the remote fetch failed.",
		}),
		cacheFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medisync_cache_write_failures_total",
			Help: "Write-through persistence failures (non-fatal).",
		}),
	}

	r.registry.MustRegister(r.reconciliations, r.recordsMerged, r.remoteFallbacks, r.cacheFailures)
	return r
}

// RemoteDegraded implements clinical.Observer.
func (r *Recorder) RemoteDegraded(patientID string, err error) {
	r.remoteFallbacks.Inc()
}

// Reconciled implements clinical.Observer.
func (r *Recorder) Reconciled(patientID string, records int, stale bool) {
	freshness := "fresh"
	if stale {
		freshness = "stale"
	}
	r.reconciliations.WithLabelValues(freshness).Inc()
	r.recordsMerged.Add(float64(records))
	log.Debug().
		Str("patient_id", patientID).
		Int("records", records).
		Bool("stale", stale).
		Msg("Reconciliation pass completed")
}

// CacheWriteFailed implements clinical.Observer.
func (r *Recorder) CacheWriteFailed(patientID string, err error) {
	r.cacheFailures.Inc()
}

// Handler serves the recorder's metrics in Prometheus exposition format.
func (r *Recorder) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
