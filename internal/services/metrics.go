package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transfers_total",
		Help: "Transfers by outcome",
	}, []string{"outcome"})

	transferRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_transfer_retries_total",
		Help: "Transfer attempts retried, by reason",
	}, []string{"reason"})

	transferLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallet_transfer_duration_seconds",
		Help:    "End-to-end transfer latency including retries",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

func observeTransfer(result TransferResult, err error, elapsed time.Duration) {
	transferLatency.Observe(elapsed.Seconds())
	transfersTotal.WithLabelValues(transferOutcome(result, err)).Inc()
}

func transferOutcome(result TransferResult, err error) string {
	var failed *TransferFailedError
	switch {
	case err == nil && result.Replayed:
		return "replayed"
	case err == nil:
		return "completed"
	case errors.As(err, &failed):
		return "failed_" + string(failed.Reason)
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrCallerAccountMissing):
		return "error"
	default:
		return "rejected"
	}
}
