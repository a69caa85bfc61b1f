package observability

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for ObserveApplied.
const (
	ApplyApplied = "applied"
	ApplySkipped = "skipped"
	ApplyFailed  = "failed"
)

var (
	// syncCycles counts terminal sync cycles by result (synced, offline, error, busy).
	syncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "possync_sync_cycles_total",
			Help: "Total number of terminal sync cycles by result.",
		},
		[]string{"result"},
	)

	outboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "possync_outbox_pending",
		Help: "Number of outbox entries not yet confirmed by the relay.",
	})

	// outboxStuck gauges pending entries whose attempts reached the stuck threshold.
	outboxStuck = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "possync_outbox_stuck",
		Help: "Number of pending outbox entries at or above the stuck attempt threshold.",
	})

	changesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "possync_changes_applied_total",
			Help: "Remote changes replayed on this terminal by outcome.",
		},
		[]string{"outcome"},
	)

	relayAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "possync_relay_changes_appended_total",
		Help: "Changes appended to the relay change log.",
	})

	relayLatest = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "possync_relay_latest_version",
		Help: "Highest version assigned by the relay.",
	})

	relayReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "possync_relay_push_replays_total",
		Help: "Push batches answered from a stored receipt.",
	})
)

func init() {
	prometheus.MustRegister(syncCycles, outboxPending, outboxStuck, changesApplied, relayAppended, relayLatest, relayReplays)
}

// ObserveCycle counts one finished sync cycle.
func ObserveCycle(result string) { syncCycles.WithLabelValues(result).Inc() }

// SetOutboxBacklog publishes the pending and stuck outbox sizes.
func SetOutboxBacklog(pending, stuck int64) {
	outboxPending.Set(float64(pending))
	outboxStuck.Set(float64(stuck))
}

// ObserveApplied counts n replayed changes with the given outcome.
func ObserveApplied(outcome string, n int) {
	if n > 0 {
		changesApplied.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveAppend records n appended changes and the new latest version.
func ObserveAppend(n int, latest int64) {
	if n > 0 {
		relayAppended.Add(float64(n))
	}
	relayLatest.Set(float64(latest))
}

// ObserveReplay counts one push answered from its receipt.
func ObserveReplay() { relayReplays.Inc() }
