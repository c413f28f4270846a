package performance

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolStopRunsQueuedTasks(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()

	var ran atomic.Int64
	release := make(chan struct{})

	// The first task blocks the single worker so the rest pile up in the
	// queue before Stop is called.
	if !pool.Submit(func() {
		<-release
		ran.Add(1)
	}) {
		t.Fatal("submit of blocking task rejected")
	}
	for i := 0; i < 50; i++ {
		if !pool.Submit(func() { ran.Add(1) }) {
			t.Fatalf("submit %d rejected", i)
		}
	}

	close(release)
	pool.Stop()

	if got := ran.Load(); got != 51 {
		t.Errorf("ran %d of 51 submitted tasks", got)
	}
	if stats := pool.Stats(); stats.TasksDone != 51 {
		t.Errorf("TasksDone = %d, want 51", stats.TasksDone)
	}
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	pool.Stop()

	if pool.Submit(func() {}) {
		t.Error("submit accepted after Stop")
	}
	if pool.Stats().Running {
		t.Error("pool reports running after Stop")
	}
}

func TestBatchProcessorFlushesOnSizeAndFlush(t *testing.T) {
	var batches [][]int
	bp := NewBatchProcessor(3, func(items []int) error {
		batch := make([]int, len(items))
		copy(batch, items)
		batches = append(batches, batch)
		return nil
	})

	for i := 1; i <= 7; i++ {
		if err := bp.Add(i); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := bp.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[0]) != 3 || len(batches[1]) != 3 || len(batches[2]) != 1 {
		t.Errorf("batch sizes = %d/%d/%d, want 3/3/1", len(batches[0]), len(batches[1]), len(batches[2]))
	}
}

func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(1, 2)

	if !rl.Allow() || !rl.Allow() {
		t.Fatal("burst of 2 should be allowed immediately")
	}
	if rl.Allow() {
		t.Error("third immediate request should be denied")
	}

	time.Sleep(1100 * time.Millisecond)
	if !rl.Allow() {
		t.Error("request after refill interval should be allowed")
	}
}
