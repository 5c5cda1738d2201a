package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daymon-dev/daymon/internal/executor"
	"github.com/daymon-dev/daymon/internal/store"
)

// stubRun replaces the real executor so tests never spawn a child process.
func stubRun(_ context.Context, _ string, _ executor.Options) *executor.Result {
	return &executor.Result{ExitCode: 0}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/daymon-test.db", log.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddRecursive_StopsAtMaxDepth(t *testing.T) {
	root := t.TempDir()
	depth1 := filepath.Join(root, "d1")
	depth2 := filepath.Join(depth1, "d2")
	depth3 := filepath.Join(depth2, "d3")
	require.NoError(t, os.MkdirAll(depth3, 0o755))

	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsw.Close()

	require.NoError(t, addRecursive(fsw, root, 0))

	watched := fsw.WatchList()
	assert.Contains(t, watched, root)
	assert.Contains(t, watched, depth1)
	assert.Contains(t, watched, depth2)
	assert.NotContains(t, watched, depth3)
}

func TestHandleEvent_DebouncesWithinWindow(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)
	w.run = stubRun

	watch, err := st.CreateWatch(store.Watch{Path: "/tmp/x", Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	lw := &liveWatch{}
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/a.txt")
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/a.txt")

	got, err := st.GetWatch(watch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TriggerCount)
}

func TestHandleEvent_DistinctPathsAreNotDebouncedAgainstEachOther(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)
	w.run = stubRun

	watch, err := st.CreateWatch(store.Watch{Path: "/tmp/x", Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	lw := &liveWatch{}
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/a.txt")
	// Clear the per-watch post-run cooldown so only the debounce key decides
	// whether the second path fires.
	lw.cooldownUntil = time.Time{}
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/b.txt")

	got, err := st.GetWatch(watch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TriggerCount)
}

func TestHandleEvent_DropsWhileExecuting(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)
	w.run = stubRun

	watch, err := st.CreateWatch(store.Watch{Path: "/tmp/x", Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	lw := &liveWatch{executing: true}
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/a.txt")

	got, err := st.GetWatch(watch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TriggerCount)
}

func TestHandleEvent_DropsDuringCooldown(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)
	w.run = stubRun

	watch, err := st.CreateWatch(store.Watch{Path: "/tmp/x", Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	lw := &liveWatch{cooldownUntil: time.Now().Add(time.Minute)}
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/a.txt")

	got, err := st.GetWatch(watch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TriggerCount)
}

func TestHandleEvent_SetsCooldownAfterRun(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)
	w.run = stubRun

	watch, err := st.CreateWatch(store.Watch{Path: "/tmp/x", Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	lw := &liveWatch{}
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/a.txt")

	lw.mu.Lock()
	defer lw.mu.Unlock()
	assert.False(t, lw.executing)
	assert.True(t, lw.cooldownUntil.After(time.Now()))
}

func TestHandleEvent_SelfTriggerDuringExecutionIsSuppressed(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)

	watch, err := st.CreateWatch(store.Watch{Path: "/tmp/x", Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	lw := &liveWatch{}
	calls := 0
	w.run = func(ctx context.Context, _ string, _ executor.Options) *executor.Result {
		calls++
		// The action writes an output file into the watched directory,
		// which surfaces as a new event while we are still executing.
		w.handleEvent(ctx, watch.ID, lw, "/tmp/x/out.md")
		return &executor.Result{ExitCode: 0}
	}

	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/a.txt")
	assert.Equal(t, 1, calls)

	got, err := st.GetWatch(watch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TriggerCount)

	// Events arriving inside the post-execution cooldown are dropped too.
	w.handleEvent(context.Background(), watch.ID, lw, "/tmp/x/b.txt")
	assert.Equal(t, 1, calls)
}

func TestRunAction_PromptCarriesJSONEncodedPath(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)

	watch, err := st.CreateWatch(store.Watch{Path: "/tmp/x", Description: "d", ActionPrompt: "process the file"})
	require.NoError(t, err)

	var gotPrompt string
	w.run = func(_ context.Context, prompt string, _ executor.Options) *executor.Result {
		gotPrompt = prompt
		return &executor.Result{ExitCode: 0}
	}

	w.runAction(context.Background(), watch.ID, `/tmp/x/we"ird.txt`)

	assert.Contains(t, gotPrompt, "process the file")
	assert.Contains(t, gotPrompt, "Triggered by file change. File path: ")
	assert.Contains(t, gotPrompt, `"/tmp/x/we\"ird.txt"`)
}

func TestSync_StartsAndStopsWatchersAsStatusChanges(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)
	w.run = stubRun

	dir := t.TempDir()
	watch, err := st.CreateWatch(store.Watch{Path: dir, Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	w.Sync(context.Background())
	w.mu.Lock()
	_, live := w.live[watch.ID]
	w.mu.Unlock()
	assert.True(t, live)

	paused := store.WatchPaused
	_, err = st.UpdateWatch(watch.ID, store.WatchUpdate{Status: &paused})
	require.NoError(t, err)

	w.Sync(context.Background())
	w.mu.Lock()
	_, live = w.live[watch.ID]
	w.mu.Unlock()
	assert.False(t, live)
}

func TestSync_MissingPathIsSkippedAndRetriedNextSync(t *testing.T) {
	st := newTestStore(t)
	w := New(st, nil)
	w.run = stubRun

	missing := filepath.Join(t.TempDir(), "not-yet")
	watch, err := st.CreateWatch(store.Watch{Path: missing, Description: "d", ActionPrompt: "process"})
	require.NoError(t, err)

	w.Sync(context.Background())
	w.mu.Lock()
	_, live := w.live[watch.ID]
	w.mu.Unlock()
	assert.False(t, live)

	require.NoError(t, os.MkdirAll(missing, 0o755))
	w.Sync(context.Background())
	w.mu.Lock()
	_, live = w.live[watch.ID]
	w.mu.Unlock()
	assert.True(t, live)
}
