package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/twinlab/nettwin/pkg/types"
)

type fakeSink struct {
	mu      sync.Mutex
	batches []types.TelemetryBatch
	fail    int // fail this many writes before succeeding
	writes  int
}

func (s *fakeSink) WriteBatch(_ context.Context, b types.TelemetryBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.fail > 0 {
		s.fail--
		return errors.New("sink down")
	}
	s.batches = append(s.batches, b)
	return nil
}

func (s *fakeSink) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRecorderDrainsSerially(t *testing.T) {
	in := make(chan types.TelemetryBatch, 8)
	sink := &fakeSink{}
	r := New(in, sink, testLogger())
	r.Start()
	defer r.Stop()

	for i := 1; i <= 3; i++ {
		in <- types.TelemetryBatch{Timestamp: float64(i)}
	}
	waitFor(t, func() bool { return sink.stored() == 3 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, b := range sink.batches {
		if b.Timestamp != float64(i+1) {
			t.Errorf("batch %d timestamp = %v, want %v", i, b.Timestamp, i+1)
		}
	}
}

func TestRecorderBacksOffAfterFailureStreak(t *testing.T) {
	in := make(chan types.TelemetryBatch, 8)
	sink := &fakeSink{fail: 2}
	r := New(in, sink, testLogger())
	r.streak = 2
	r.cooldown = 50 * time.Millisecond
	r.Start()
	defer r.Stop()

	in <- types.TelemetryBatch{Timestamp: 1}
	in <- types.TelemetryBatch{Timestamp: 2}
	in <- types.TelemetryBatch{Timestamp: 3}

	start := time.Now()
	waitFor(t, func() bool { return sink.stored() == 1 })

	// The third batch must have waited out the cooldown triggered by the
	// streak, not been retried immediately.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("recovered after %v, expected a cooldown of about 50ms first", elapsed)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.batches[0].Timestamp != 3 {
		t.Errorf("stored batch timestamp = %v, want 3 (first two failed)", sink.batches[0].Timestamp)
	}
}

func TestRecorderStopsDuringCooldown(t *testing.T) {
	in := make(chan types.TelemetryBatch, 8)
	sink := &fakeSink{fail: 1}
	r := New(in, sink, testLogger())
	r.streak = 1
	r.cooldown = time.Hour
	r.Start()

	in <- types.TelemetryBatch{Timestamp: 1}
	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.writes == 1
	})

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on the cooldown sleep")
	}
}
