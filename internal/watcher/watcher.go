// Package watcher turns filesystem changes on active Watches into AI
// Executor invocations, with debouncing and a self-trigger suppression
// window so an action's own output never re-fires its own watch.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/daymon-dev/daymon/internal/executor"
	"github.com/daymon-dev/daymon/internal/store"
)

const (
	syncInterval    = 30 * time.Second
	debounceWindow  = 10 * time.Second
	cooldownWindow  = 5 * time.Second
	maxRecurseDepth = 2
)

// liveWatch is the runtime state for one active Watch: its fsnotify handle
// plus the per-watch execution lock and cooldown the event pipeline needs
// to avoid self-triggering on its own action's output.
type liveWatch struct {
	fsw *fsnotify.Watcher

	mu            sync.Mutex
	executing     bool
	cooldownUntil time.Time
}

// Watcher reconciles active Watch rows against live fsnotify watchers and
// runs the Watch's action_prompt through the AI Executor on qualifying
// file-change events.
type Watcher struct {
	store *store.Store
	log   *log.Logger

	// run is the AI Executor entry point; swapped out in tests.
	run func(ctx context.Context, prompt string, opts executor.Options) *executor.Result

	mu       sync.Mutex
	live     map[int64]*liveWatch
	debounce map[string]time.Time

	stop   chan struct{}
	doneWg sync.WaitGroup
}

// New constructs a Watcher sharing a Store handle.
func New(st *store.Store, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		store:    st,
		log:      logger,
		run:      executor.Run,
		live:     make(map[int64]*liveWatch),
		debounce: make(map[string]time.Time),
		stop:     make(chan struct{}),
	}
}

// Start runs an initial sync and launches the periodic resync loop.
func (w *Watcher) Start(ctx context.Context) {
	w.Sync(ctx)
	w.doneWg.Add(1)
	go w.loop(ctx)
}

// Stop closes every live fsnotify watcher and waits for the resync loop to
// exit.
func (w *Watcher) Stop() {
	close(w.stop)
	w.doneWg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, lw := range w.live {
		_ = lw.fsw.Close()
		delete(w.live, id)
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.doneWg.Done()
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Sync(ctx)
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sync reconciles active watches against live fsnotify watchers: starting
// new ones (if their path exists) and tearing down ones whose Watch row is
// no longer active.
func (w *Watcher) Sync(ctx context.Context) {
	watches, err := w.store.ListWatches(nil)
	if err != nil {
		w.log.Printf("watcher: list watches: %v", err)
		return
	}
	activeIDs := make(map[int64]bool, len(watches))

	for _, watch := range watches {
		if watch.Status != store.WatchActive {
			continue
		}
		activeIDs[watch.ID] = true

		w.mu.Lock()
		_, exists := w.live[watch.ID]
		w.mu.Unlock()
		if exists {
			continue
		}
		if err := w.startWatch(ctx, watch); err != nil {
			w.log.Printf("watcher: start watch %d (%s): %v", watch.ID, watch.Path, err)
		}
	}

	w.mu.Lock()
	for id, lw := range w.live {
		if !activeIDs[id] {
			_ = lw.fsw.Close()
			delete(w.live, id)
		}
	}
	w.mu.Unlock()
}

// startWatch creates an fsnotify watcher for watch.Path. Directories are
// recursed into up to maxRecurseDepth; a missing path is logged and
// skipped (the next Sync retries it).
func (w *Watcher) startWatch(ctx context.Context, watch store.Watch) error {
	info, err := os.Stat(watch.Path)
	if err != nil {
		return fmt.Errorf("path does not exist yet: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if info.IsDir() {
		if err := addRecursive(fsw, watch.Path, 0); err != nil {
			_ = fsw.Close()
			return err
		}
	} else {
		if err := fsw.Add(watch.Path); err != nil {
			_ = fsw.Close()
			return err
		}
	}

	lw := &liveWatch{fsw: fsw}
	w.mu.Lock()
	w.live[watch.ID] = lw
	w.mu.Unlock()

	w.doneWg.Add(1)
	go w.pump(ctx, watch.ID, lw)
	return nil
}

// addRecursive adds dir and, while depth < maxRecurseDepth, its
// subdirectories. depth 0 is the watch root itself; its direct children are
// depth 1, grandchildren depth 2, and anything deeper is not recursed into.
func addRecursive(fsw *fsnotify.Watcher, dir string, depth int) error {
	if err := fsw.Add(dir); err != nil {
		return err
	}
	if depth >= maxRecurseDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := addRecursive(fsw, filepath.Join(dir, e.Name()), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// pump drains one watch's fsnotify event/error channels until the watcher
// is closed.
func (w *Watcher) pump(ctx context.Context, watchID int64, lw *liveWatch) {
	defer w.doneWg.Done()
	for {
		select {
		case ev, ok := <-lw.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.handleEvent(ctx, watchID, lw, ev.Name)
			}
		case err, ok := <-lw.fsw.Errors:
			if !ok {
				return
			}
			w.log.Printf("watcher: fsnotify error for watch %d: %v", watchID, err)
		}
	}
}

// handleEvent runs the debounce, execution-lock, and dispatch pipeline
// for one (watchID, path) event.
func (w *Watcher) handleEvent(ctx context.Context, watchID int64, lw *liveWatch, path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	key := fmt.Sprintf("%d:%s", watchID, absPath)

	now := time.Now()
	w.mu.Lock()
	last, seen := w.debounce[key]
	if seen && now.Sub(last) < debounceWindow {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	lw.mu.Lock()
	if lw.executing || now.Before(lw.cooldownUntil) {
		lw.mu.Unlock()
		return
	}
	lw.mu.Unlock()

	w.mu.Lock()
	w.debounce[key] = now
	w.mu.Unlock()

	if err := w.store.RecordWatchTrigger(watchID, now); err != nil {
		w.log.Printf("watcher: record trigger for watch %d: %v", watchID, err)
	}

	lw.mu.Lock()
	lw.executing = true
	lw.mu.Unlock()

	w.runAction(ctx, watchID, absPath)

	lw.mu.Lock()
	lw.executing = false
	lw.cooldownUntil = time.Now().Add(cooldownWindow)
	lw.mu.Unlock()
}

// runAction composes the watch's prompt and invokes the AI Executor
// directly — file watches are not Tasks and don't go through the Task
// Runner's session/memory machinery.
func (w *Watcher) runAction(ctx context.Context, watchID int64, path string) {
	watch, err := w.store.GetWatch(watchID)
	if err != nil {
		w.log.Printf("watcher: load watch %d before run: %v", watchID, err)
		return
	}

	encodedPath, err := json.Marshal(path)
	if err != nil {
		encodedPath = []byte(`"` + strings.ReplaceAll(path, `"`, `\"`) + `"`)
	}
	prompt := fmt.Sprintf("%s\n\nTriggered by file change. File path: %s", watch.ActionPrompt, encodedPath)

	result := w.run(ctx, prompt, executor.Options{})
	if result.ExitCode != 0 {
		w.log.Printf("watcher: action for watch %d failed: %s", watchID, result.Stderr)
		return
	}
	w.log.Printf("watcher: action for watch %d completed in %s", watchID, result.Duration)
}
