package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"os/exec"
	"runtime/debug"
	"sync"
	"time"

	"github.com/livepeer/retention-engine/config"
	xerrors "github.com/livepeer/retention-engine/errors"
	"github.com/livepeer/retention-engine/log"
	"github.com/livepeer/retention-engine/metrics"
	"github.com/livepeer/retention-engine/model"
	"github.com/livepeer/retention-engine/store"
)

// PipelineRunner executes a job end to end. The scheduler owns concurrency,
// queueing and cancellation around it; the pipeline.Coordinator implements it.
type PipelineRunner interface {
	Run(ctx context.Context, job *model.Job) error
}

// queueItem is one entry in the priority queue (spec §4.1: priority_level 1
// jumps ahead of 2, FIFO within a priority band).
type queueItem struct {
	job      *model.Job
	priority int
	seq      int
	index    int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// jobHandle tracks a running job's cancel func and its spawned child
// processes, so Cancel can kill in-flight ffmpeg/whisper subprocesses
// (spec §4.1: "cancellation set", "child-process registry").
type jobHandle struct {
	cancel   context.CancelFunc
	mu       sync.Mutex
	children map[int]*exec.Cmd
}

// CancelResult reports what Cancel actually did, mirroring spec §6's
// {id,status,running,killedCount,ownerUserId} response shape.
type CancelResult struct {
	ID          string
	Status      string
	Running     bool
	KilledCount int
	OwnerUserID string
}

// QueueETA is one queued or running job's position/ETA snapshot entry
// (spec §4.2).
type QueueETA struct {
	JobID           string
	QueuePosition   int // 0 for running jobs, 1-indexed for queued jobs
	QueueEtaSeconds float64
	Running         bool
}

// QueueSnapshot is the full queue+running ETA snapshot. QueueDepth always
// equals len(Items) (spec §8 invariant 5: sum_{running+queued} 1 = queueDepth).
type QueueSnapshot struct {
	QueueDepth int
	Items      []QueueETA
}

// Scheduler is a bounded-concurrency job runner with priority scheduling,
// ETA estimation and stale-job recovery, grounded on the teacher's
// Coordinator's goroutine-per-job pattern. The running-job registry lives
// directly on Scheduler under its own mutex rather than a separate generic
// cache, since every access already happens alongside queuedIDs/runningIDs
// bookkeeping guarded by the same lock.
type Scheduler struct {
	mu         sync.Mutex
	queue      priorityQueue
	seq        int
	active     int
	maxConc    int
	running    map[string]*jobHandle
	queuedIDs  map[string]struct{}
	runningIDs map[string]struct{}
	canceled   map[string]struct{}
	notEmpty   chan struct{}

	runner PipelineRunner
	store  *store.JobStore

	durationWindow []float64 // sliding window of completed job durations, seconds
	windowSize     int

	recoverySweep sync.Mutex // single-flights recoverStaleJobs

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(runner PipelineRunner, jobStore *store.JobStore, maxConcurrency int) *Scheduler {
	return &Scheduler{
		maxConc:    maxConcurrency,
		running:    map[string]*jobHandle{},
		queuedIDs:  map[string]struct{}{},
		runningIDs: map[string]struct{}{},
		canceled:   map[string]struct{}{},
		notEmpty:   make(chan struct{}, 1),
		runner:     runner,
		store:      jobStore,
		windowSize: config.SlidingWindowSize,
		stop:       make(chan struct{}),
	}
}

// SetRunner wires the PipelineRunner after construction, needed because the
// Coordinator's render.Executor takes the Scheduler as its ChildRegistrar:
// the two must be built in two passes from cmd/engine. Call before Run.
func (s *Scheduler) SetRunner(runner PipelineRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = runner
}

func (s *Scheduler) runnerRef() PipelineRunner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner
}

// Enqueue adds a job to the priority queue and wakes a worker if capacity is
// free. It no-ops if the job is already queued or running (spec §4.2), which
// matters because the recovery sweep re-enqueues jobs it reads from the
// store without knowing the in-memory scheduler state.
func (s *Scheduler) Enqueue(job *model.Job) {
	s.mu.Lock()
	if _, queued := s.queuedIDs[job.ID]; queued {
		s.mu.Unlock()
		return
	}
	if _, running := s.runningIDs[job.ID]; running {
		s.mu.Unlock()
		return
	}
	s.seq++
	s.queuedIDs[job.ID] = struct{}{}
	heap.Push(&s.queue, &queueItem{job: job, priority: job.PriorityLevel, seq: s.seq})
	metrics.Metrics.JobsInFlight.Set(float64(s.queue.Len() + s.active))
	s.mu.Unlock()
	s.wake()
}

func (s *Scheduler) wake() {
	select {
	case s.notEmpty <- struct{}{}:
	default:
	}
}

// Run drives the dispatch loop until ctx is canceled. It should be started
// once per process from cmd/engine.
func (s *Scheduler) Run(ctx context.Context) {
	recoveryTicker := time.NewTicker(config.JobQueueRecoveryInterval)
	defer recoveryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-recoveryTicker.C:
			s.recoverStaleJobs(ctx)
		case <-s.notEmpty:
			s.dispatch(ctx)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.queue.Len() == 0 || s.active >= s.maxConc {
			s.mu.Unlock()
			return
		}
		item := heap.Pop(&s.queue).(*queueItem)
		delete(s.queuedIDs, item.job.ID)
		s.active++
		s.runningIDs[item.job.ID] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.runJob(ctx, item.job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *model.Job) {
	defer s.wg.Done()

	if s.IsCanceled(job.ID) {
		log.Log(job.ID, "dropping canceled job pulled from queue")
		s.finishRun(job.ID, 0, false)
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	handle := &jobHandle{cancel: cancel, children: map[int]*exec.Cmd{}}
	s.mu.Lock()
	s.running[job.ID] = handle
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
	}()
	defer cancel()

	start := time.Now()
	log.Log(job.ID, "scheduler starting job", "priority", job.PriorityLevel)

	err := s.recoveredRun(jobCtx, job)

	s.finishRun(job.ID, time.Since(start).Seconds(), true)

	if err != nil {
		log.LogError(job.ID, "job run failed", err)
	} else {
		log.Log(job.ID, "job run completed", "elapsed_s", time.Since(start).Seconds())
	}
}

// finishRun tears down the bookkeeping a dispatched job accumulated:
// active slot, runningIDs membership, the cancellation flag and (when the
// job actually ran) its contribution to the duration window.
func (s *Scheduler) finishRun(jobID string, elapsedSeconds float64, recordDuration bool) {
	s.mu.Lock()
	s.active--
	delete(s.runningIDs, jobID)
	delete(s.canceled, jobID)
	if recordDuration {
		s.recordDuration(elapsedSeconds)
	}
	s.mu.Unlock()
	s.wake()
}

// recoveredRun mirrors the teacher's recovered[T] panic-safety wrapper
// around handler execution so one bad job can't take down the worker pool.
func (s *Scheduler) recoveredRun(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.LogNoJobID("panic in scheduler job goroutine, recovering", "err", r, "trace", string(debug.Stack()))
			err = fmt.Errorf("panic running job %s: %v", job.ID, r)
		}
	}()
	return s.runnerRef().Run(ctx, job)
}

func (s *Scheduler) recordDuration(seconds float64) {
	s.durationWindow = append(s.durationWindow, seconds)
	if len(s.durationWindow) > s.windowSize {
		s.durationWindow = s.durationWindow[len(s.durationWindow)-s.windowSize:]
	}
}

// averageDurationLocked returns the average of the sliding window of recent
// job durations, clamped to [MinPipelineETASecs, MaxPipelineETASecs],
// falling back to DefaultPipelineETASecs with an empty window. Must be
// called with s.mu held. Spec §4.2 calls this avgRecentPipelineSeconds.
func (s *Scheduler) averageDurationLocked() float64 {
	if len(s.durationWindow) == 0 {
		return config.DefaultPipelineETASecs
	}
	var sum float64
	for _, d := range s.durationWindow {
		sum += d
	}
	avg := sum / float64(len(s.durationWindow))
	return math.Min(config.MaxPipelineETASecs, math.Max(config.MinPipelineETASecs, avg))
}

// EstimateETASeconds returns the current average recent pipeline duration,
// the same figure the queue snapshot multiplies by waitWaves.
func (s *Scheduler) EstimateETASeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averageDurationLocked()
}

// Snapshot computes the ETA/position of every queued and running job (spec
// §4.2). Running jobs report queuePosition 0 and a zero ETA. Queued jobs
// report queuePosition as their 1-indexed dispatch order and an ETA derived
// from how many full dispatch waves must complete before a slot opens for
// them: waitSlots = max(0, i - availableNow + 1), waitWaves =
// ceil(waitSlots / MAX_PIPELINES), queueEtaSeconds = waitWaves *
// avgRecentPipelineSeconds.
func (s *Scheduler) Snapshot() QueueSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	avg := s.averageDurationLocked()
	availableNow := s.maxConc - s.active
	if availableNow < 0 {
		availableNow = 0
	}

	items := make([]QueueETA, 0, len(s.runningIDs)+s.queue.Len())
	for id := range s.runningIDs {
		items = append(items, QueueETA{JobID: id, QueuePosition: 0, QueueEtaSeconds: 0, Running: true})
	}

	ordered := make(priorityQueue, len(s.queue))
	copy(ordered, s.queue)
	sortPriorityQueue(ordered)

	for i, item := range ordered {
		waitSlots := i - availableNow + 1
		if waitSlots < 0 {
			waitSlots = 0
		}
		var waitWaves int
		if s.maxConc > 0 {
			waitWaves = int(math.Ceil(float64(waitSlots) / float64(s.maxConc)))
		}
		items = append(items, QueueETA{
			JobID:           item.job.ID,
			QueuePosition:   i + 1,
			QueueEtaSeconds: float64(waitWaves) * avg,
			Running:         false,
		})
	}

	return QueueSnapshot{QueueDepth: len(items), Items: items}
}

// sortPriorityQueue orders a detached copy of a priorityQueue into dispatch
// order without mutating the live heap (Snapshot must not perturb it).
func sortPriorityQueue(pq priorityQueue) {
	for i := 1; i < len(pq); i++ {
		for j := i; j > 0 && pq.Less(j, j-1); j-- {
			pq[j-1], pq[j] = pq[j], pq[j-1]
		}
	}
}

// IsCanceled reports whether jobID is in the process-wide cancellation set.
// It is a pure read, safe to poll repeatedly from render.Executor between
// fallback attempts: unlike Cancel, it never mutates scheduler state.
func (s *Scheduler) IsCanceled(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.canceled[jobID]
	return ok
}

// Cancel implements the external cancel contract (spec §6): it validates
// ownership and status, removes a queued job from the queue or kills a
// running job's child processes, marks the job failed in the store, and
// reports what happened.
func (s *Scheduler) Cancel(ctx context.Context, jobID, requesterUserID, reason string) (CancelResult, error) {
	if jobID == "" {
		return CancelResult{}, xerrors.ErrInvalidJobID
	}

	var owner string
	if s.store != nil {
		job, err := s.store.Get(ctx, jobID)
		if err != nil {
			return CancelResult{}, fmt.Errorf("%w: %s", xerrors.ErrNotFound, jobID)
		}
		if requesterUserID != "" && job.OwnerUserID != requesterUserID {
			// Don't distinguish "not yours" from "doesn't exist" to the caller.
			return CancelResult{}, fmt.Errorf("%w: %s", xerrors.ErrNotFound, jobID)
		}
		if job.Status == model.StatusCompleted || job.Status == model.StatusFailed {
			return CancelResult{}, fmt.Errorf("%w: job %s is already %s", xerrors.ErrCannotCancel, jobID, job.Status)
		}
		owner = job.OwnerUserID
	}

	s.mu.Lock()
	s.canceled[jobID] = struct{}{}
	removedFromQueue := s.removeFromQueueLocked(jobID)
	_, running := s.runningIDs[jobID]
	s.mu.Unlock()

	s.mu.Lock()
	handle := s.running[jobID]
	s.mu.Unlock()

	killed := 0
	if handle != nil {
		handle.cancel()
		handle.mu.Lock()
		for _, cmd := range handle.children {
			if cmd.Process != nil && cmd.Process.Kill() == nil {
				killed++
			}
		}
		handle.mu.Unlock()
	}

	if reason == "" {
		reason = "queue_canceled_by_user"
	}
	if s.store != nil {
		patch := map[string]interface{}{"status": string(model.StatusFailed), "error": reason}
		if err := s.store.Update(ctx, jobID, patch, store.UpdateOpts{}); err != nil {
			log.LogError(jobID, "failed to persist cancel", err)
		}
	}

	log.Log(jobID, "job canceled", "reason", reason, "running", running, "removed_from_queue", removedFromQueue, "killed_children", killed)

	return CancelResult{
		ID:          jobID,
		Status:      string(model.StatusFailed),
		Running:     running,
		KilledCount: killed,
		OwnerUserID: owner,
	}, nil
}

// removeFromQueueLocked removes a queued-but-not-yet-running job from the
// priority queue. Must be called with s.mu held.
func (s *Scheduler) removeFromQueueLocked(jobID string) bool {
	for _, item := range s.queue {
		if item.job.ID == jobID {
			heap.Remove(&s.queue, item.index)
			delete(s.queuedIDs, jobID)
			return true
		}
	}
	return false
}

// RegisterChild records a spawned subprocess against a job so Cancel can
// terminate it (spec §4.1: "child-process registry").
func (s *Scheduler) RegisterChild(jobID string, pid int, cmd *exec.Cmd) {
	s.mu.Lock()
	handle := s.running[jobID]
	s.mu.Unlock()
	if handle == nil {
		return
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	handle.children[pid] = cmd
}

// recoverStaleJobs applies the two-rule recovery sweep from spec §4.2: jobs
// that never made it past upload are re-enqueued as soon as they show
// progress, while jobs already mid-pipeline are only reclaimed once stale,
// and get their status/progress reset first so the pipeline restarts clean.
// Single-flighted so a slow sweep can't overlap the next tick.
func (s *Scheduler) recoverStaleJobs(ctx context.Context) {
	if s.store == nil {
		return
	}
	if !s.recoverySweep.TryLock() {
		log.LogNoJobID("recovery sweep already in flight, skipping tick")
		return
	}
	defer s.recoverySweep.Unlock()

	immediate, err := s.store.FindImmediatelyRecoverable(ctx, config.RecoverySweepLimit)
	if err != nil {
		log.LogNoJobID("recovery sweep failed to list immediately recoverable jobs", "err", err)
	}
	for _, job := range immediate {
		log.Log(job.ID, "recovering interrupted upload", "status", job.Status, "progress", job.Progress)
		s.Enqueue(job)
	}

	stale, err := s.store.FindStaleInProgress(ctx, config.StalePipelineThreshold, config.RecoverySweepLimit)
	if err != nil {
		log.LogNoJobID("recovery sweep failed to list stale in-progress jobs", "err", err)
		return
	}
	for _, job := range stale {
		progress := job.Progress
		if progress < 1 {
			progress = 1
		}
		if progress > 90 {
			progress = 90
		}
		patch := map[string]interface{}{"status": string(model.StatusQueued), "progress": progress}
		if err := s.store.Update(ctx, job.ID, patch, store.UpdateOpts{}); err != nil {
			log.LogError(job.ID, "failed to reset stale job before recovery", err)
			continue
		}
		job.Status = model.StatusQueued
		job.Progress = progress
		log.Log(job.ID, "recovering stale in-progress job", "progress", progress)
		s.Enqueue(job)
	}
}

// Shutdown stops the dispatch loop and waits for in-flight jobs to finish.
func (s *Scheduler) Shutdown() {
	close(s.stop)
	s.wg.Wait()
}
