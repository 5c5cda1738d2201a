// Package scheduler translates persisted Task definitions into wall-clock
// triggers: a 30s sync cycle drives cron and one-shot dispatch, and a
// separate timer keeps the embedding index warm.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/daymon-dev/daymon/internal/runner"
	"github.com/daymon-dev/daymon/internal/store"
)

const (
	syncInterval      = 30 * time.Second
	embeddingInterval = 5 * time.Minute
	embeddingBatch    = 20
)

// Notifier is the subset of internal/notifier's surface the Scheduler
// drives after a run completes.
type Notifier interface {
	NotifyTaskComplete(taskID int64, taskName string, out runner.Outcome)
	NotifyTaskFailed(taskID int64, taskName string, out runner.Outcome)
}

// Embedder computes and stores the embedding for one entity's indexable
// text. Supplied by the embedding engine, which is out of scope here.
type Embedder func(ctx context.Context, st *store.Store, entityID int64) error

// Scheduler owns the cron engine and the task sync loop; watches are synced
// by the File Watcher, not here.
type Scheduler struct {
	store    *store.Store
	runner   *runner.Runner
	notifier Notifier
	embedder Embedder
	log      *log.Logger

	cron *cron.Cron

	mu               sync.Mutex
	scheduledJobs    map[int64]cron.EntryID
	pendingOnce      map[int64]bool
	resultsDirLocked string
	running          bool

	stop   chan struct{}
	doneWg sync.WaitGroup
}

// New constructs a Scheduler. notifier/embedder may be nil (no-op).
func New(st *store.Store, r *runner.Runner, notifier Notifier, embedder Embedder, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		store:         st,
		runner:        r,
		notifier:      notifier,
		embedder:      embedder,
		log:           logger,
		cron:          cron.New(),
		scheduledJobs: make(map[int64]cron.EntryID),
		pendingOnce:   make(map[int64]bool),
		stop:          make(chan struct{}),
	}
}

// Start runs an initial sync, then launches the 30s sync loop, the cron
// engine, and the embedding indexer loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.Sync(ctx)
	s.cron.Start()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.doneWg.Add(2)
	go s.syncLoop(ctx)
	go s.embeddingLoop(ctx)
}

// Stop halts the cron engine and background loops, waiting for them to
// exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.doneWg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.doneWg.Done()
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sync(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) embeddingLoop(ctx context.Context) {
	defer s.doneWg.Done()
	if s.embedder == nil {
		return
	}
	ticker := time.NewTicker(embeddingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.indexEmbeddings(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sync performs one cycle: maintenance, cron-job reconciliation, and
// one-shot dispatch. Safe to call directly (e.g. from the /sync route).
func (s *Scheduler) Sync(ctx context.Context) {
	if err := s.store.Maintain(); err != nil {
		s.log.Printf("scheduler: maintain: %v", err)
	}
	s.reconcileCronJobs()
	s.checkDueOnceTasks(ctx)
}

// reconcileCronJobs diffs the active cron task set against scheduledJobs,
// removing jobs for tasks no longer active/cron and adding jobs for newly
// active ones.
func (s *Scheduler) reconcileCronJobs() {
	active, err := s.store.ActiveCronTasks()
	if err != nil {
		s.log.Printf("scheduler: list active cron tasks: %v", err)
		return
	}
	activeIDs := make(map[int64]bool, len(active))
	for _, t := range active {
		activeIDs[t.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for taskID, entryID := range s.scheduledJobs {
		if !activeIDs[taskID] {
			s.cron.Remove(entryID)
			delete(s.scheduledJobs, taskID)
		}
	}

	for _, t := range active {
		if _, ok := s.scheduledJobs[t.ID]; ok {
			continue
		}
		if t.CronExpression == nil || *t.CronExpression == "" {
			continue
		}
		taskID := t.ID
		entryID, err := s.cron.AddFunc(*t.CronExpression, func() { s.runTask(context.Background(), taskID) })
		if err != nil {
			s.log.Printf("scheduler: invalid cron expression for task %d (%q): %v", t.ID, *t.CronExpression, err)
			continue
		}
		s.scheduledJobs[t.ID] = entryID
	}
}

// checkDueOnceTasks dispatches active once-trigger tasks whose scheduled_at
// has passed, guarding against duplicate dispatch within one tick via
// pendingOnce. A dispatched once-task is marked completed whether or not
// its run succeeded: one-shot means fire once, and a failed run already
// carries its own failed TaskRun row and error_count bump — re-dispatching
// it every sync tick would retry forever.
func (s *Scheduler) checkDueOnceTasks(ctx context.Context) {
	due, err := s.store.DueOnceTasks(time.Now().UTC())
	if err != nil {
		s.log.Printf("scheduler: list due once tasks: %v", err)
		return
	}
	for _, t := range due {
		s.mu.Lock()
		if s.pendingOnce[t.ID] {
			s.mu.Unlock()
			continue
		}
		s.pendingOnce[t.ID] = true
		s.mu.Unlock()

		taskID := t.ID
		go func() {
			defer func() {
				s.mu.Lock()
				delete(s.pendingOnce, taskID)
				s.mu.Unlock()
			}()
			s.runTask(ctx, taskID)
			completed := store.TaskCompleted
			if _, err := s.store.UpdateTask(taskID, store.TaskUpdate{Status: &completed}); err != nil {
				s.log.Printf("scheduler: mark once-task %d completed: %v", taskID, err)
			}
		}()
	}
}

// runTask loads the task (for its name), runs it, and forwards the outcome
// to the Notifier.
func (s *Scheduler) runTask(ctx context.Context, taskID int64) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		s.log.Printf("scheduler: load task %d before run: %v", taskID, err)
		return
	}
	out := s.runner.ExecuteTask(ctx, taskID, runner.Options{
		ResultsDir: s.resultsDir(),
	})
	if s.notifier == nil {
		return
	}
	if out.Success {
		s.notifier.NotifyTaskComplete(taskID, task.Name, out)
	} else {
		s.notifier.NotifyTaskFailed(taskID, task.Name, out)
	}
}

// resultsDir is overridable via SetResultsDir; empty disables result file
// writing.
func (s *Scheduler) resultsDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsDirLocked
}

// SetResultsDir configures where runTask-initiated runs write result
// markdown files.
func (s *Scheduler) SetResultsDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultsDirLocked = dir
}

// RunAdHoc runs a task on demand (the Control Surface path): a paused
// task is temporarily flipped to active for the duration of the run, then
// restored afterward. Completed and errored tasks are NOT activated — the
// Task Runner's pre-flight rejects them, so a max-runs task can never run
// past its cap. The cross-process lock still governs overlap.
func (s *Scheduler) RunAdHoc(ctx context.Context, taskID int64) (runner.Outcome, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return runner.Outcome{}, fmt.Errorf("scheduler: run ad hoc: %w", err)
	}

	original := task.Status
	restored := false
	if original == store.TaskPaused {
		active := store.TaskActive
		if _, err := s.store.UpdateTask(taskID, store.TaskUpdate{Status: &active}); err != nil {
			return runner.Outcome{}, fmt.Errorf("scheduler: activate task for ad hoc run: %w", err)
		}
		defer func() {
			if restored {
				return
			}
			if _, err := s.store.UpdateTask(taskID, store.TaskUpdate{Status: &original}); err != nil {
				s.log.Printf("scheduler: restore task %d status after ad hoc run: %v", taskID, err)
			}
		}()
	}

	out := s.runner.ExecuteTask(ctx, taskID, runner.Options{ResultsDir: s.resultsDir()})

	if original == store.TaskPaused {
		if _, err := s.store.UpdateTask(taskID, store.TaskUpdate{Status: &original}); err != nil {
			s.log.Printf("scheduler: restore task %d status after ad hoc run: %v", taskID, err)
		}
		restored = true
	}

	if s.notifier != nil {
		if out.Success {
			s.notifier.NotifyTaskComplete(taskID, task.Name, out)
		} else {
			s.notifier.NotifyTaskFailed(taskID, task.Name, out)
		}
	}
	return out, nil
}

// indexEmbeddings fetches entities missing an embedding and computes them
// via the configured Embedder. All failures are logged and non-fatal.
func (s *Scheduler) indexEmbeddings(ctx context.Context) {
	ids, err := s.store.EntitiesMissingEmbedding(embeddingBatch)
	if err != nil {
		s.log.Printf("scheduler: list entities missing embedding: %v", err)
		return
	}
	for _, id := range ids {
		if err := s.embedder(ctx, s.store, id); err != nil {
			s.log.Printf("scheduler: embed entity %d: %v", id, err)
		}
	}
}

// JobCount reports how many cron jobs are currently scheduled (for
// /health's scheduler summary).
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduledJobs)
}

// ScheduledTaskNames returns the names of tasks with a live cron job, for
// /health's scheduler summary.
func (s *Scheduler) ScheduledTaskNames() []string {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.scheduledJobs))
	for id := range s.scheduledJobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if t, err := s.store.GetTask(id); err == nil {
			names = append(names, t.Name)
		}
	}
	return names
}

// Running reports whether Start has been called and Stop has not.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
