// Package recorder drains the persistence queue into the time-series sink.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twinlab/nettwin/internal/config"
	"github.com/twinlab/nettwin/pkg/types"
)

// Sink writes one telemetry batch to durable storage.
type Sink interface {
	WriteBatch(ctx context.Context, batch types.TelemetryBatch) error
}

// Recorder is the single worker draining the persistence queue. Writes are
// serial; after a streak of consecutive failures it sleeps for a cooldown
// instead of hot-looping against a downed sink.
type Recorder struct {
	in       <-chan types.TelemetryBatch
	sink     Sink
	logger   *slog.Logger
	streak   int
	cooldown time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a recorder reading from in and writing to sink.
func New(in <-chan types.TelemetryBatch, sink Sink, logger *slog.Logger) *Recorder {
	return &Recorder{
		in:       in,
		sink:     sink,
		logger:   logger.With("component", "recorder"),
		streak:   config.RecorderFailureStreak,
		cooldown: config.RecorderCooldown,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background drain loop.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Info("recorder started")
}

// Stop stops the recorder and waits for the in-flight write to finish.
func (r *Recorder) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("recorder stopped")
}

func (r *Recorder) run() {
	defer r.wg.Done()

	failures := 0
	for {
		select {
		case <-r.stopCh:
			return
		case batch := <-r.in:
			if err := r.sink.WriteBatch(context.Background(), batch); err != nil {
				failures++
				r.logger.Error("batch write failed",
					"error", err,
					"consecutive_failures", failures)
				if failures >= r.streak {
					r.logger.Warn("sink failing repeatedly, backing off",
						"cooldown", r.cooldown)
					select {
					case <-r.stopCh:
						return
					case <-time.After(r.cooldown):
					}
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

// TimescaleSink writes telemetry batches to TimescaleDB with COPY.
type TimescaleSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTimescaleSink creates a sink over an existing connection pool.
func NewTimescaleSink(pool *pgxpool.Pool, logger *slog.Logger) *TimescaleSink {
	return &TimescaleSink{
		pool:   pool,
		logger: logger.With("component", "timescale_sink"),
	}
}

// WriteBatch writes the batch's host, link and path samples in one
// transaction. All three tables share the batch timestamp so a point in time
// can be reconstructed with a single time-range query.
func (s *TimescaleSink) WriteBatch(ctx context.Context, batch types.TelemetryBatch) error {
	at := batch.Time()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if len(batch.Hosts) > 0 {
		rows := make([][]any, len(batch.Hosts))
		for i, h := range batch.Hosts {
			rows[i] = []any{at, h.Name, h.CPU, h.Mem}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"host_metrics"},
			[]string{"time", "host", "cpu_pct", "mem_pct"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}
	}

	if len(batch.Links) > 0 {
		rows := make([][]any, len(batch.Links))
		for i, l := range batch.Links {
			rows[i] = []any{at, l.ID, l.BW, l.Latency, l.Jitter, l.Loss}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"link_metrics"},
			[]string{"time", "link_id", "throughput_mbps", "latency_ms", "jitter_ms", "loss_pct"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}
	}

	if len(batch.Latency) > 0 {
		rows := make([][]any, len(batch.Latency))
		for i, p := range batch.Latency {
			rows[i] = []any{at, p.Pair, p.Latency, p.Loss, p.Jitter}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"path_metrics"},
			[]string{"time", "pair", "latency_ms", "loss_pct", "jitter_ms"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
