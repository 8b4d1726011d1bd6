// Package metrics exposes prometheus instruments for the refresh pipeline
// and the job runner.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	refreshdomain "github.com/entforge/entforge/internal/refresh/domain"
)

const (
	RunOutcomeFinished    = "finished"
	RunOutcomeFailed      = "failed"
	RunOutcomeFetchFailed = "fetch_failed"
)

// RefreshMetrics captures refresh pipeline health signals.
type RefreshMetrics struct {
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	pools        *prometheus.CounterVec
	entitlements *prometheus.CounterVec
	jobStates    *prometheus.CounterVec
}

var (
	refreshOnce     sync.Once
	refreshMetrics  *RefreshMetrics
	refreshRegistry = prometheus.DefaultRegisterer
)

// Refresh returns the process-wide refresh metrics, registering them on
// first use.
func Refresh() *RefreshMetrics {
	refreshOnce.Do(func() {
		refreshMetrics = &RefreshMetrics{
			runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "entforge_refresh_runs_total",
				Help: "Refresh runs by outcome.",
			}, []string{"outcome"}),
			runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "entforge_refresh_duration_seconds",
				Help:    "Refresh run duration by outcome.",
				Buckets: prometheus.DefBuckets,
			}, []string{"outcome"}),
			pools: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "entforge_refresh_pools_total",
				Help: "Pool deltas applied by refresh runs.",
			}, []string{"action"}),
			entitlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "entforge_refresh_entitlements_total",
				Help: "Entitlement actions taken by refresh runs.",
			}, []string{"action"}),
			jobStates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "entforge_refresh_jobs_total",
				Help: "Refresh job transitions by state.",
			}, []string{"state"}),
		}
		refreshRegistry.MustRegister(
			refreshMetrics.runs,
			refreshMetrics.runDuration,
			refreshMetrics.pools,
			refreshMetrics.entitlements,
			refreshMetrics.jobStates,
		)
	})
	return refreshMetrics
}

func (m *RefreshMetrics) ObserveRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *RefreshMetrics) ObserveResult(result refreshdomain.RefreshResult) {
	if m == nil {
		return
	}
	m.pools.WithLabelValues("created").Add(float64(result.PoolsCreated))
	m.pools.WithLabelValues("updated").Add(float64(result.PoolsUpdated))
	m.pools.WithLabelValues("deleted").Add(float64(result.PoolsDeleted))
	m.entitlements.WithLabelValues("revoked").Add(float64(result.EntitlementsRevoked))
	m.entitlements.WithLabelValues("regenerated").Add(float64(result.CertsRegenerated))
	m.entitlements.WithLabelValues("failed_regeneration").Add(float64(len(result.FailedRegenerations)))
}

func (m *RefreshMetrics) IncJobState(state string) {
	if m == nil {
		return
	}
	m.jobStates.WithLabelValues(state).Inc()
}
