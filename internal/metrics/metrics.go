package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "millbook_transactions_created_total",
		Help: "Transactions committed locally, by type.",
	}, []string{"type"})

	TransactionsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "millbook_transactions_cancelled_total",
		Help: "Transactions cancelled after commit.",
	})

	StockRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "millbook_stock_rejections_total",
		Help: "Operations rejected for insufficient stock.",
	})

	SyncPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "millbook_sync_pushed_total",
		Help: "Records pushed to the remote, by entity.",
	}, []string{"entity"})

	SyncPulled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "millbook_sync_pulled_total",
		Help: "Records pulled from the remote, by entity.",
	}, []string{"entity"})

	SyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "millbook_sync_failures_total",
		Help: "Sync cycles that ended with at least one push or pull error.",
	})

	SyncPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "millbook_sync_pending_records",
		Help: "Local records waiting to be pushed, by entity.",
	}, []string{"entity"})

	SyncLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "millbook_sync_last_success_timestamp_seconds",
		Help: "Unix time of the last fully successful sync cycle.",
	})
)
