package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DE-IBH/b3lb/internal/logging"
)

func TestEveryRunsAndStops(t *testing.T) {
	runner := NewRunner(logging.NewLogger())

	var ticks int64
	runner.Every(5*time.Millisecond, "tick", func(ctx context.Context) {
		atomic.AddInt64(&ticks, 1)
	})

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt64(&ticks) < 3 {
		select {
		case <-deadline:
			t.Fatalf("job never ticked enough, got %d", atomic.LoadInt64(&ticks))
		case <-time.After(time.Millisecond):
		}
	}

	runner.Stop()
	after := atomic.LoadInt64(&ticks)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt64(&ticks) != after {
		t.Fatalf("job kept ticking after Stop")
	}
}

func TestTryRunSingleton(t *testing.T) {
	runner := NewRunner(logging.NewLogger())
	defer runner.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	go runner.TryRun("job", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	// A second run under the same name must be refused while the first
	// one holds the lock.
	if runner.TryRun("job", func(ctx context.Context) {}) {
		t.Fatalf("overlapping run was not refused")
	}
	// Other job names are independent.
	if !runner.TryRun("other", func(ctx context.Context) {}) {
		t.Fatalf("unrelated job was refused")
	}

	close(release)
	deadline := time.After(2 * time.Second)
	for !runner.TryRun("job", func(ctx context.Context) {}) {
		select {
		case <-deadline:
			t.Fatalf("lock never released")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestRunRecoversPanics(t *testing.T) {
	runner := NewRunner(logging.NewLogger())
	defer runner.Stop()

	runner.run("explosive", func(ctx context.Context) {
		panic("boom")
	})
	// The lock must be released even after a panic.
	if !runner.TryRun("explosive", func(ctx context.Context) {}) {
		t.Fatalf("lock leaked after panic")
	}
}

func TestStopCancelsJobContext(t *testing.T) {
	runner := NewRunner(logging.NewLogger())

	canceled := make(chan struct{})
	started := make(chan struct{})
	go runner.TryRun("blocker", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(canceled)
	})
	<-started

	runner.Stop()
	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not cancel the job context")
	}
}
