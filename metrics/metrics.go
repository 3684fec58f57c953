// Package metrics holds the prometheus collectors of the batched tree
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "batchedtree"

	labelTreeType = "tree_type"
	labelQueue    = "queue"
	labelAccount  = "account"
)

var (
	// ValuesInserted counts values accepted into a queue.
	ValuesInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_inserted_total",
			Help:      "Values inserted into a queue.",
		}, []string{labelTreeType, labelQueue})

	// BatchesFilled counts batches that became ready for their proof.
	BatchesFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_filled_total",
			Help:      "Batches that reached batch size.",
		}, []string{labelTreeType, labelQueue})

	// BatchesApplied counts batches applied to a tree.
	BatchesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_applied_total",
			Help:      "Batches applied after proof verification.",
		}, []string{labelTreeType, labelQueue})

	// ProofFailures counts updates rejected by the verifier.
	ProofFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_failures_total",
			Help:      "Updates whose proof failed verification.",
		}, []string{labelTreeType, labelQueue})

	// CommitConflicts counts writes lost to a concurrent writer.
	CommitConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Account writes rejected because the account changed since it was read.",
		}, []string{labelAccount})

	// NextIndex is the leaf cursor of the last tree updated.
	NextIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tree_next_index",
			Help:      "Next leaf index of the tree.",
		}, []string{labelTreeType})

	// SequenceNumber is the sequence number of the last tree updated.
	SequenceNumber = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tree_sequence_number",
			Help:      "Applied batch count of the tree.",
		}, []string{labelTreeType})

	// VerifyDuration is the time spent in proof verification, in ms.
	VerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_duration_ms",
			Help:      "Proof verification duration in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{labelTreeType, labelQueue})
)

// Collectors lists every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ValuesInserted, BatchesFilled, BatchesApplied, ProofFailures,
		CommitConflicts, NextIndex, SequenceNumber, VerifyDuration,
	}
}

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MeasureDuration measure the method execution duration
// and save it into a histogram metric
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	duration := time.Since(start)
	histogram.WithLabelValues(lvs...).Observe(float64(duration.Milliseconds()))
}
