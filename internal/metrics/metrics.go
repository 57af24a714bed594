// Package metrics exposes the chain manager's prometheus instrumentation:
// chain height, false-positive rate, reorg depth, and orphan count. No
// direct teacher analogue exists (the teacher carries no metrics package);
// adopted from the wider retrieval pack, where client_golang is already a
// transitive dependency of the teacher's libp2p stack, promoted here to a
// direct, exercised use as the chain manager's observability layer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ChainHeight is the height of the current best chain tip.
	ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgercore",
		Subsystem: "chain",
		Name:      "height",
		Help:      "Height of the current best chain tip.",
	})

	// FalsePositiveRate is the header-only filter false-positive rate
	// estimate (spec §4.6).
	FalsePositiveRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgercore",
		Subsystem: "chain",
		Name:      "false_positive_rate",
		Help:      "Estimated bloom-filter false-positive rate.",
	})

	// ReorgsTotal counts completed chain reorganizations.
	ReorgsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ledgercore",
		Subsystem: "chain",
		Name:      "reorgs_total",
		Help:      "Total number of completed chain reorganizations.",
	})

	// ReorgDepth observes the depth (blocks disconnected) of each reorg.
	ReorgDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgercore",
		Subsystem: "chain",
		Name:      "reorg_depth",
		Help:      "Depth, in disconnected blocks, of each chain reorganization.",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1000},
	})

	// OrphanCount is the current number of buffered orphan blocks.
	OrphanCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgercore",
		Subsystem: "chain",
		Name:      "orphan_count",
		Help:      "Number of blocks currently buffered awaiting their parent.",
	})
)

func init() {
	prometheus.MustRegister(ChainHeight, FalsePositiveRate, ReorgsTotal, ReorgDepth, OrphanCount)
}
