package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "freemasons_sync_runs_total",
		Help: "Sync runs by kind (project, member) and result status",
	}, []string{"kind", "status"})
	SyncErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "freemasons_sync_errors_total",
		Help: "Sync runs that returned an error",
	}, []string{"kind"})
	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "freemasons_sync_duration_seconds",
		Help:    "Sync duration seconds",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600},
	}, []string{"kind"})
	SyncSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "freemasons_sync_skipped_total",
		Help: "Syncs skipped because another worker held the entity lock",
	}, []string{"kind"})
	WalletLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "freemasons_wallet_lookup_failures_total",
		Help: "Owner lookups that fell back to an empty wallet address",
	})
	EdgesChanged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "freemasons_edges_changed_total",
		Help: "Association rows added or removed by snapshot replacement",
	}, []string{"relation", "op"})
)

func init() {
	prometheus.MustRegister(SyncRuns, SyncErrors, SyncDuration, SyncSkipped, WalletLookupFailures, EdgesChanged)
}

// ObserveSync records one finished sync. status is ignored when err is set.
func ObserveSync(kind string, start time.Time, status int, err error) {
	SyncDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		SyncErrors.WithLabelValues(kind).Inc()
		return
	}
	SyncRuns.WithLabelValues(kind, strconv.Itoa(status)).Inc()
}

// ObserveEdges records an association diff for relation (followers,
// following, roster).
func ObserveEdges(relation string, added, removed int) {
	if added > 0 {
		EdgesChanged.WithLabelValues(relation, "add").Add(float64(added))
	}
	if removed > 0 {
		EdgesChanged.WithLabelValues(relation, "remove").Add(float64(removed))
	}
}

// Handler exposes the default registry on a gin route.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
