package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/livepeer/retention-engine/model"
)

type fakeRunner struct {
	ran   int32
	delay time.Duration

	mu    sync.Mutex
	order []string
}

func (f *fakeRunner) Run(ctx context.Context, job *model.Job) error {
	f.mu.Lock()
	f.order = append(f.order, job.ID)
	f.mu.Unlock()
	atomic.AddInt32(&f.ran, 1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func TestSchedulerRunsPriorityFirst(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	runner := &fakeRunner{delay: 10 * time.Millisecond}
	s := New(runner, nil, 1)

	// Both jobs are queued before the dispatch loop starts, so the single
	// worker slot must go to the priority-1 job first.
	s.Enqueue(&model.Job{ID: "low", PriorityLevel: 2})
	s.Enqueue(&model.Job{ID: "high", PriorityLevel: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&runner.ran) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&runner.ran) != 2 {
		t.Fatalf("expected 2 jobs run, got %d", runner.ran)
	}
	runner.mu.Lock()
	order := append([]string(nil), runner.order...)
	runner.mu.Unlock()
	if order[0] != "high" {
		t.Errorf("expected the priority-1 job to run first, got order %v", order)
	}
	s.Shutdown()
}

func TestEnqueueIsNoopWhenAlreadyQueuedOrRunning(t *testing.T) {
	s := New(&fakeRunner{delay: time.Hour}, nil, 1)

	job := &model.Job{ID: "job1", PriorityLevel: 1}
	s.Enqueue(job)
	s.Enqueue(job)
	if s.queue.Len() != 1 {
		t.Fatalf("expected re-enqueueing a queued job to no-op, queue has %d items", s.queue.Len())
	}

	s.mu.Lock()
	s.runningIDs["job2"] = struct{}{}
	s.mu.Unlock()
	s.Enqueue(&model.Job{ID: "job2", PriorityLevel: 1})
	if s.queue.Len() != 1 {
		t.Fatalf("expected re-enqueueing a running job to no-op, queue has %d items", s.queue.Len())
	}
}

func TestCancelRunningJobKillsChildrenAndMarksFailed(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	runner := &fakeRunner{delay: time.Second}
	s := New(runner, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(&model.Job{ID: "job1", PriorityLevel: 1})
	time.Sleep(20 * time.Millisecond)

	result, err := s.Cancel(context.Background(), "job1", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Running {
		t.Error("expected Cancel to observe job1 as running")
	}
	if result.Status != string(model.StatusFailed) {
		t.Errorf("expected status failed, got %s", result.Status)
	}
	if !s.IsCanceled("job1") {
		t.Error("expected IsCanceled to report true right after Cancel")
	}
	s.Shutdown()
}

func TestCancelQueuedJobRemovesItFromTheQueue(t *testing.T) {
	s := New(&fakeRunner{delay: time.Hour}, nil, 1)
	s.Enqueue(&model.Job{ID: "blocker", PriorityLevel: 1})
	s.Enqueue(&model.Job{ID: "queued", PriorityLevel: 2})

	result, err := s.Cancel(context.Background(), "queued", "", "no longer needed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Running {
		t.Error("expected a queued-only job to report running=false")
	}
	if s.queue.Len() != 1 {
		t.Fatalf("expected the canceled job removed from the queue, queue has %d items", s.queue.Len())
	}
}

func TestCancelRejectsEmptyJobID(t *testing.T) {
	s := New(&fakeRunner{}, nil, 1)
	if _, err := s.Cancel(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected an error for an empty job id")
	}
}

func TestIsCanceledIsReadOnly(t *testing.T) {
	s := New(&fakeRunner{delay: time.Hour}, nil, 1)
	s.Enqueue(&model.Job{ID: "job1", PriorityLevel: 1})
	time.Sleep(10 * time.Millisecond)

	if s.IsCanceled("job1") {
		t.Fatal("expected a freshly enqueued job to not be canceled")
	}
	// Calling IsCanceled repeatedly must never itself cancel the job.
	for i := 0; i < 5; i++ {
		s.IsCanceled("job1")
	}
	if s.IsCanceled("job1") {
		t.Fatal("IsCanceled must never have a side effect")
	}
	s.Shutdown()
}

func TestEstimateETAFallsBackToDefault(t *testing.T) {
	s := New(&fakeRunner{}, nil, 1)
	if got := s.EstimateETASeconds(); got <= 0 {
		t.Fatalf("expected positive default ETA, got %f", got)
	}
}

func TestSnapshotReportsRunningAndQueuedItems(t *testing.T) {
	s := New(&fakeRunner{delay: time.Hour}, nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(&model.Job{ID: "running", PriorityLevel: 1})
	time.Sleep(10 * time.Millisecond)
	s.Enqueue(&model.Job{ID: "queued-1", PriorityLevel: 1})
	s.Enqueue(&model.Job{ID: "queued-2", PriorityLevel: 1})

	snap := s.Snapshot()
	if snap.QueueDepth != len(snap.Items) {
		t.Fatalf("expected queueDepth to equal len(items): %d vs %d", snap.QueueDepth, len(snap.Items))
	}
	if snap.QueueDepth != 3 {
		t.Fatalf("expected 1 running + 2 queued = 3 items, got %d", snap.QueueDepth)
	}

	var sawRunning bool
	positions := map[string]int{}
	for _, item := range snap.Items {
		if item.Running {
			sawRunning = true
			if item.QueueEtaSeconds != 0 || item.QueuePosition != 0 {
				t.Errorf("expected a running item to have position/ETA 0, got %+v", item)
			}
			continue
		}
		positions[item.JobID] = item.QueuePosition
		if item.QueueEtaSeconds <= 0 {
			t.Errorf("expected a queued item to have a positive ETA, got %+v", item)
		}
	}
	if !sawRunning {
		t.Error("expected a running item in the snapshot")
	}
	if positions["queued-1"] != 1 || positions["queued-2"] != 2 {
		t.Errorf("expected FIFO queue positions 1 then 2, got %+v", positions)
	}
}
