package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts transfer lifecycle events by asset and outcome
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transfers_total",
			Help: "Total number of escrow transfers by lifecycle event",
		},
		[]string{"asset", "event"},
	)

	// TransferDuration tracks end-to-end start processing time
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_transfer_duration_seconds",
			Help:    "Transfer start-to-terminal duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 2400, 3600},
		},
		[]string{"asset", "status"},
	)

	// TransfersByStatus tracks ledger rows per status
	TransfersByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "escrow_transfers_by_status",
			Help: "Number of transfers in the ledger by status",
		},
		[]string{"status"},
	)

	// ListenerPolls counts deposit listener polling rounds
	ListenerPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_listener_polls_total",
			Help: "Total number of deposit listener polls",
		},
		[]string{"chain"},
	)

	// ActiveListeners tracks registered deposit listeners
	ActiveListeners = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escrow_active_listeners",
			Help: "Number of active deposit listeners",
		},
	)

	// DepositsDetected counts qualifying deposits found by the listener
	DepositsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_deposits_detected_total",
			Help: "Total number of qualifying deposits detected",
		},
		[]string{"chain", "asset"},
	)

	// BridgeHops counts bridge hops by protocol and result
	BridgeHops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_bridge_hops_total",
			Help: "Total number of bridge hops",
		},
		[]string{"protocol", "result"},
	)

	// BridgeHopDuration tracks hop submission-to-completion time
	BridgeHopDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_bridge_hop_duration_seconds",
			Help:    "Bridge hop duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		},
		[]string{"protocol"},
	)

	// TransactionsSent counts transactions sent by the escrow per chain
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_transactions_sent_total",
			Help: "Total number of transactions sent",
		},
		[]string{"chain", "operation", "status"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// GasUsed tracks gas used for escrow transactions
	GasUsed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escrow_gas_used",
			Help:    "Gas used for escrow transactions",
			Buckets: []float64{21000, 50000, 100000, 200000, 300000, 500000},
		},
		[]string{"operation"},
	)
)
