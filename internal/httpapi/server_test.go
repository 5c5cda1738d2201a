package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daymon-dev/daymon/internal/executor"
	"github.com/daymon-dev/daymon/internal/runner"
	"github.com/daymon-dev/daymon/internal/scheduler"
	"github.com/daymon-dev/daymon/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir()+"/daymon-test.db", log.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := runner.New(st, nil)
	r.SetExecuteFunc(func(_ context.Context, _ string, _ executor.Options) *executor.Result {
		return &executor.Result{Stdout: "ok", ExitCode: 0, Duration: time.Millisecond}
	})
	sched := scheduler.New(st, r, nil, nil, nil)
	s := New(st, sched, nil, "", nil, nil)
	s.startedAt = time.Now()
	return s, st
}

func newMux(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("POST /tasks/{id}/run", s.handleTaskRun)
	mux.HandleFunc("POST /notify", s.handleNotify)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

func TestHandleHealth_ReportsOKAndSchedulerSummary(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.False(t, body.Scheduler.Running)
}

func TestHandleTaskRun_UnknownTaskReturns404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/tasks/999/run", nil)
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTaskRun_KnownTaskReturns202(t *testing.T) {
	s, st := newTestServer(t)
	task, err := st.CreateTask(store.Task{Name: "T", Prompt: "x", TriggerType: store.TriggerManual})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tasks/"+strconv.FormatInt(task.ID, 10)+"/run", nil)
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleNotify_RequiresEventField(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleNotify_PublishesToBroker(t *testing.T) {
	s, _ := newTestServer(t)
	ch, unsubscribe := s.broker.Subscribe()
	defer unsubscribe()

	body := `{"event":"task:complete","task_id":1,"task_name":"T"}`
	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case ev := <-ch:
		assert.Equal(t, "task:complete", ev.Type)
		assert.Equal(t, int64(1), ev.TaskID)
	case <-time.After(time.Second):
		t.Fatal("expected event was not published")
	}
}

func TestHandleNotFound_ReturnsJSON404(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestHandleSync_CallsWatchSync(t *testing.T) {
	s, _ := newTestServer(t)
	called := false
	s.watchSync = func(context.Context) { called = true }

	req := httptest.NewRequest(http.MethodPost, "/sync", nil)
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestHandleShutdown_InvokesCallback(t *testing.T) {
	s, _ := newTestServer(t)
	done := make(chan struct{})
	s.OnShutdown(func() { close(done) })

	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback was not invoked")
	}
}

func TestHandleTaskRun_CompletedMaxRunsTaskAcceptedButNotRerun(t *testing.T) {
	s, st := newTestServer(t)

	maxRuns := 1
	task, err := st.CreateTask(store.Task{
		Name: "Limited", Prompt: "x", TriggerType: store.TriggerManual, MaxRuns: &maxRuns,
	})
	require.NoError(t, err)

	mux := newMux(s)
	url := "/tasks/" + strconv.FormatInt(task.ID, 10) + "/run"

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, url, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The run is dispatched in the background; wait for the max-runs
	// auto-complete transition.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := st.GetTask(task.ID)
		require.NoError(t, err)
		if got.Status == store.TaskCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, err := st.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, store.TaskCompleted, got.Status)
	require.Equal(t, 1, got.RunCount)

	// A second POST is still accepted but must not advance run_count or
	// flip the task away from completed.
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, url, nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	time.Sleep(200 * time.Millisecond)

	got, err = st.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, got.Status)
	assert.Equal(t, 1, got.RunCount)

	runs, err := st.ListTaskRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
