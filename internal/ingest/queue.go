// Package ingest receives telemetry batches, applies them to the twin
// registry, and hands them off to the persistence queue.
package ingest

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twinlab/nettwin/pkg/types"
)

// Queue is the bounded handoff between the ingestion hot path and the
// persistence worker. When the worker falls behind, Offer blocks for at most
// the offer timeout and then drops the batch, so a slow database never stalls
// telemetry ingestion.
type Queue struct {
	ch           chan types.TelemetryBatch
	offerTimeout time.Duration
	dropped      atomic.Int64
	logger       *slog.Logger
}

// NewQueue creates a queue with the given capacity and offer timeout.
func NewQueue(depth int, offerTimeout time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		ch:           make(chan types.TelemetryBatch, depth),
		offerTimeout: offerTimeout,
		logger:       logger.With("component", "queue"),
	}
}

// Offer enqueues a batch for persistence. If the queue stays full for the
// offer timeout the batch is dropped and false is returned. The twin state
// has already been updated by then; only the historical record is lost.
func (q *Queue) Offer(batch types.TelemetryBatch) bool {
	select {
	case q.ch <- batch:
		return true
	default:
	}

	timer := time.NewTimer(q.offerTimeout)
	defer timer.Stop()

	select {
	case q.ch <- batch:
		return true
	case <-timer.C:
		n := q.dropped.Add(1)
		q.logger.Warn("persistence queue full, dropping batch",
			"queue_depth", cap(q.ch),
			"total_dropped", n)
		return false
	}
}

// Out returns the consumer side of the queue.
func (q *Queue) Out() <-chan types.TelemetryBatch {
	return q.ch
}

// Len returns the current number of queued batches.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the total number of batches dropped since startup.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
