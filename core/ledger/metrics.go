package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/pollchain"
)

// defines prometheus metrics
var (
	promTransactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pollchain_ledger_transactions_total",
		Help: "total number of logged transactions by status",
	}, []string{"status"})

	promSubmitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pollchain_ledger_submit_seconds",
		Help:    "time to execute and commit a transaction",
		Buckets: prometheus.DefBuckets,
	})

	promLockedAddresses = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pollchain_ledger_locked_addresses",
		Help: "number of addresses locked or waited for",
	})
)

func init() {
	pollchain.PromCollectors = append(pollchain.PromCollectors, promTransactions,
		promSubmitDuration, promLockedAddresses)
}
