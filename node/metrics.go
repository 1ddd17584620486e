package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"quantumcoin.dev/node/consensus"
)

const metricsNamespace = "qc"

// Metrics are the node's prometheus collectors. All values are fed from
// ChainState and Mempool as they change.
type Metrics struct {
	BlocksApplied     prometheus.Counter
	BlocksRejected    *prometheus.CounterVec
	MempoolRejected   *prometheus.CounterVec
	TipHeight         prometheus.Gauge
	MempoolSize       prometheus.Gauge
	UtxoBatchOps      prometheus.Gauge
	BlockApplySeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BlocksApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_applied_total",
			Help:      "Blocks committed to the UTXO store.",
		}),
		BlocksRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "blocks_rejected_total",
			Help:      "Blocks rejected by ApplyBlock, by error code.",
		}, []string{"code"}),
		MempoolRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "mempool_rejected_total",
			Help:      "Transactions refused by the mempool, by error code.",
		}, []string{"code"}),
		TipHeight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tip_height",
			Help:      "Height of the current chain tip.",
		}),
		MempoolSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "mempool_size",
			Help:      "Transactions currently held in the mempool.",
		}),
		UtxoBatchOps: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "utxo_batch_ops",
			Help:      "UTXO deletes plus inserts in the last committed batch.",
		}),
		BlockApplySeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "block_apply_seconds",
			Help:      "Wall time of ApplyBlock including the store commit.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
}

func codeLabel(err error) string {
	if code := consensus.CodeOf(err); code != "" {
		return string(code)
	}
	return "internal"
}
