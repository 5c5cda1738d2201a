// Package runner executes one Task end-to-end: pre-flight locking, worker
// and session resolution, prompt composition, AI Executor invocation,
// result persistence, and memory write-back.
package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/daymon-dev/daymon/internal/executor"
	"github.com/daymon-dev/daymon/internal/store"
)

// sessionRotationThreshold is how many prior runs may share one session_id
// before the Runner forces a fresh session.
const sessionRotationThreshold = 20

// consoleFlushInterval bounds how long console log events sit in memory
// before a bulk insert.
const consoleFlushInterval = time.Second

// progressWriteInterval throttles Store progress writes.
const progressWriteInterval = time.Second

// Outcome is what ExecuteTask returns: a single translating boundary
// between the executor/store plumbing below and the Scheduler/HTTP layer
// above.
type Outcome struct {
	Success      bool
	Output       string
	ErrorMessage string
	DurationMs   int64
	ResultFile   string
}

// Options configure one ExecuteTask call.
type Options struct {
	ResultsDir string
	OnComplete func(taskID int64, taskName string, out Outcome)
	OnFailed   func(taskID int64, taskName string, out Outcome)
}

// ExecuteFunc matches executor.Run's signature; tests substitute a stub via
// SetExecuteFunc.
type ExecuteFunc func(ctx context.Context, prompt string, opts executor.Options) *executor.Result

// Runner owns the in-memory same-process re-entrancy lock that backs up
// the Store's cross-process "latest run is running" check.
type Runner struct {
	store *store.Store
	log   *log.Logger

	// execute is the AI Executor entry point; swapped out in tests.
	execute ExecuteFunc

	mu      sync.Mutex
	running map[int64]bool
}

// New constructs a Runner sharing a Store handle.
func New(st *store.Store, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{store: st, log: logger, execute: executor.Run, running: make(map[int64]bool)}
}

// SetExecuteFunc replaces the AI Executor entry point.
func (r *Runner) SetExecuteFunc(fn ExecuteFunc) {
	r.execute = fn
}

// ExecuteTask runs one task to completion. Pre-flight failures return a
// failed Outcome with no side effects (no TaskRun row created).
func (r *Runner) ExecuteTask(ctx context.Context, taskID int64, opts Options) Outcome {
	if !r.lock(taskID) {
		return Outcome{Success: false, ErrorMessage: "already running"}
	}
	defer r.unlock(taskID)

	running, err := r.store.IsTaskRunning(taskID)
	if err != nil {
		return Outcome{Success: false, ErrorMessage: fmt.Sprintf("store: %v", err)}
	}
	if running {
		return Outcome{Success: false, ErrorMessage: "running in another process"}
	}

	task, err := r.store.GetTask(taskID)
	if err != nil {
		return Outcome{Success: false, ErrorMessage: "task not found"}
	}
	if task.Status != store.TaskActive {
		return Outcome{Success: false, ErrorMessage: "task is not active"}
	}

	run, err := r.store.CreateTaskRun(taskID)
	if err != nil {
		return Outcome{Success: false, ErrorMessage: fmt.Sprintf("store: %v", err)}
	}

	out := r.runOnce(ctx, task, run, opts)

	if out.Success {
		if err := r.store.IncrementTaskRunCount(taskID); err != nil {
			r.log.Printf("runner: increment run count for task %d: %v", taskID, err)
		}
	}
	if out.Success {
		if opts.OnComplete != nil {
			opts.OnComplete(taskID, task.Name, out)
		}
	} else if opts.OnFailed != nil {
		opts.OnFailed(taskID, task.Name, out)
	}
	return out
}

func (r *Runner) lock(taskID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[taskID] {
		return false
	}
	r.running[taskID] = true
	return true
}

func (r *Runner) unlock(taskID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, taskID)
}

// runOnce does worker/session resolution, prompt composition, execution,
// the resume-retry, and finalization for an already-created TaskRun.
func (r *Runner) runOnce(ctx context.Context, task *store.Task, run *store.TaskRun, opts Options) Outcome {
	worker := r.resolveWorker(task)
	systemPrompt, model := "", ""
	if worker != nil {
		systemPrompt, model = worker.SystemPrompt, worker.Model
	}

	resumeID := r.sessionForRun(task)

	fullMemory := resumeID == ""
	prompt, err := r.composePrompt(task, fullMemory)
	if err != nil {
		r.log.Printf("runner: compose prompt for task %d: %v", task.ID, err)
		prompt = task.Prompt
	}

	timeout := executor.DefaultTimeout
	if task.TimeoutMinutes != nil {
		timeout = time.Duration(*task.TimeoutMinutes) * time.Minute
	}

	sink := newConsoleSink(r.store, r.log, run.ID)
	progress := newProgressThrottle(r.store, run.ID)

	result := r.execute(ctx, prompt, executor.Options{
		Timeout:         timeout,
		ResumeSessionID: resumeID,
		SystemPrompt:    systemPrompt,
		Model:           model,
		OnProgress:      progress.onProgress,
		OnConsole:       sink.onConsole,
	})

	if result.ExitCode != 0 && resumeID != "" {
		if _, err := r.store.UpdateTask(task.ID, store.TaskUpdate{ClearSessionID: true}); err != nil {
			r.log.Printf("runner: clear session id for task %d: %v", task.ID, err)
		}
		retryPrompt, err := r.composePrompt(task, true)
		if err != nil {
			r.log.Printf("runner: compose retry prompt for task %d: %v", task.ID, err)
			retryPrompt = task.Prompt
		}
		result = r.execute(ctx, retryPrompt, executor.Options{
			Timeout:      timeout,
			SystemPrompt: systemPrompt,
			Model:        model,
			OnProgress:   progress.onProgress,
			OnConsole:    sink.onConsole,
		})
	}

	sink.flush()
	return r.finalize(task, run, result, opts)
}

// resolveWorker loads task.worker_id if set, else the default worker.
func (r *Runner) resolveWorker(task *store.Task) *store.Worker {
	if task.WorkerID != nil {
		w, err := r.store.GetWorker(*task.WorkerID)
		if err == nil {
			return w
		}
	}
	w, err := r.store.DefaultWorker()
	if err != nil {
		return nil
	}
	return w
}

// sessionForRun decides whether to resume task.session_id, applying the
// rotation threshold; returns "" when a fresh session should be started.
func (r *Runner) sessionForRun(task *store.Task) string {
	if !task.SessionContinuity || task.SessionID == nil || *task.SessionID == "" {
		return ""
	}
	count, err := r.store.CountRunsWithSessionID(task.ID, *task.SessionID)
	if err != nil {
		return ""
	}
	if count >= sessionRotationThreshold {
		return ""
	}
	return *task.SessionID
}

// composePrompt prepends memory context to task.Prompt. fullMemory selects
// between the full (own history + cross-task) and cross-task-only blends;
// this distinction is load-bearing for session continuity.
func (r *Runner) composePrompt(task *store.Task, fullMemory bool) (string, error) {
	var sections []string

	if fullMemory && task.MemoryEntityID != nil {
		obs, err := r.store.ListObservations(*task.MemoryEntityID, 5)
		if err != nil {
			return "", err
		}
		if len(obs) > 0 {
			var b strings.Builder
			b.WriteString("## Your previous results:\n")
			for _, o := range obs {
				b.WriteString("- " + o.Content + "\n")
			}
			sections = append(sections, b.String())
		}
	}

	related, err := r.relatedKnowledge(task)
	if err != nil {
		return "", err
	}
	if related != "" {
		sections = append(sections, related)
	}

	if len(sections) == 0 {
		return task.Prompt, nil
	}
	return strings.Join(sections, "\n") + "\n---\n" + task.Prompt, nil
}

// relatedKnowledge searches entities by each whitespace-separated token of
// the task name (length >= 2), unions results excluding the task's own
// memory entity, takes the first 5, and includes each one's 3 most recent
// observations.
func (r *Runner) relatedKnowledge(task *store.Task) (string, error) {
	seen := map[int64]bool{}
	if task.MemoryEntityID != nil {
		seen[*task.MemoryEntityID] = true
	}
	var entities []store.Entity

	for _, tok := range strings.Fields(task.Name) {
		if len(tok) < 2 {
			continue
		}
		results, err := r.store.SearchEntities(tok, 10)
		if err != nil {
			continue
		}
		for _, res := range results {
			if seen[res.Entity.ID] {
				continue
			}
			seen[res.Entity.ID] = true
			entities = append(entities, res.Entity)
		}
	}
	if len(entities) > 5 {
		entities = entities[:5]
	}
	if len(entities) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("## Related knowledge:\n")
	for _, e := range entities {
		obs, err := r.store.ListObservations(e.ID, 3)
		if err != nil {
			return "", err
		}
		for _, o := range obs {
			b.WriteString("- [" + e.Name + "] " + o.Content + "\n")
		}
	}
	return b.String(), nil
}

// finalize writes the result markdown file, persists session/run state,
// writes memory back, and returns the outcome.
func (r *Runner) finalize(task *store.Task, run *store.TaskRun, result *executor.Result, opts Options) Outcome {
	success := result.ExitCode == 0 && !result.TimedOut

	var errMsg *string
	if !success {
		var msg string
		if result.TimedOut {
			msg = fmt.Sprintf("Timed out after %dms", result.Duration.Milliseconds())
		} else {
			stderr := result.Stderr
			if stderr == "" {
				stderr = "(no stderr)"
			}
			msg = fmt.Sprintf("Exit code %d: %s", result.ExitCode, stderr)
		}
		errMsg = &msg
	}

	resultFile, err := writeResultFile(opts.ResultsDir, task.Name, result, success)
	if err != nil {
		r.log.Printf("runner: write result file for task %d: %v", task.ID, err)
		resultFile = ""
	}
	var resultFilePtr *string
	if resultFile != "" {
		resultFilePtr = &resultFile
	}

	if result.SessionID != "" {
		if err := r.store.UpdateRunSessionID(run.ID, result.SessionID); err != nil {
			r.log.Printf("runner: persist run session id for task %d: %v", task.ID, err)
		}
		if task.SessionContinuity {
			if err := r.store.UpdateTaskSessionID(task.ID, result.SessionID); err != nil {
				r.log.Printf("runner: persist task session id for task %d: %v", task.ID, err)
			}
		}
	}

	if err := r.store.CompleteTaskRun(run.ID, result.Stdout, resultFilePtr, errMsg); err != nil {
		r.log.Printf("runner: complete task run %d: %v", run.ID, err)
	}

	if err := r.store.RecordTaskOutcome(task.ID, success, result.Stdout); err != nil {
		r.log.Printf("runner: record task outcome for task %d: %v", task.ID, err)
	}

	out := Outcome{
		Success:    success,
		Output:     result.Stdout,
		DurationMs: result.Duration.Milliseconds(),
		ResultFile: resultFile,
	}
	if errMsg != nil {
		out.ErrorMessage = *errMsg
	}
	return out
}

// writeResultFile writes a markdown summary to resultsDir, creating it on
// demand. The filename is the sanitized task name (first 50 chars) plus an
// ISO timestamp with colons replaced (filesystem-safe on all platforms).
func writeResultFile(resultsDir, taskName string, result *executor.Result, success bool) (string, error) {
	if resultsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", err
	}

	sanitized := sanitizeFilenameComponent(taskName, 50)
	ts := strings.ReplaceAll(time.Now().UTC().Format(time.RFC3339), ":", "-")
	filename := fmt.Sprintf("%s-%s.md", sanitized, ts)
	path := filepath.Join(resultsDir, filename)

	status := "Success"
	if result.TimedOut {
		status = "Timed Out"
	} else if !success {
		status = fmt.Sprintf("Failed (exit %d)", result.ExitCode)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n", taskName)
	fmt.Fprintf(&b, "**Date:** %s\n", time.Now().Format(time.RFC1123))
	fmt.Fprintf(&b, "**Duration:** %ss\n", strconv.FormatFloat(result.Duration.Seconds(), 'f', 1, 64))
	fmt.Fprintf(&b, "**Status:** %s\n\n---\n\n%s\n", status, result.Stdout)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeFilenameComponent(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	out := b.String()
	if len(out) > max {
		out = out[:max]
	}
	if out == "" {
		out = "task"
	}
	return out
}
