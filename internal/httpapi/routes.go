package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"
)

// schedulerHealth mirrors the Scheduler's /health contribution.
type schedulerHealth struct {
	Running  bool     `json:"running"`
	JobCount int      `json:"jobCount"`
	Jobs     []string `json:"jobs"`
}

type healthResponse struct {
	OK        bool            `json:"ok"`
	UptimeS   float64         `json:"uptime_s"`
	Version   string          `json:"version"`
	PID       int             `json:"pid"`
	Scheduler schedulerHealth `json:"scheduler"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()

	resp := healthResponse{
		OK:      true,
		UptimeS: time.Since(started).Seconds(),
		Version: Version,
		PID:     os.Getpid(),
	}
	if s.scheduler != nil {
		resp.Scheduler = schedulerHealth{
			Running:  s.scheduler.Running(),
			JobCount: s.scheduler.JobCount(),
			Jobs:     s.scheduler.ScheduledTaskNames(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTaskRun serves POST /tasks/{id}/run: accepts immediately (202) and
// runs the task in the background via the Scheduler's ad-hoc path, which
// temporarily activates paused tasks and forwards the outcome to the
// Notifier.
func (s *Server) handleTaskRun(w http.ResponseWriter, r *http.Request) {
	idStr := r.PathValue("id")
	taskID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	if _, err := s.store.GetTask(taskID); err != nil {
		writeJSONError(w, http.StatusNotFound, "task not found")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "task_id": taskID})

	go func() {
		if s.scheduler == nil {
			return
		}
		if _, err := s.scheduler.RunAdHoc(context.Background(), taskID); err != nil {
			s.log.Printf("httpapi: ad hoc run of task %d: %v", taskID, err)
		}
	}()
}

// notifyRequest is the body POST /notify accepts.
type notifyRequest struct {
	Event    string          `json:"event"`
	TaskID   int64           `json:"task_id,omitempty"`
	TaskName string          `json:"task_name,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// handleNotify serves POST /notify: relays a task:complete/task:failed
// event onto the SSE broker.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Event == "" {
		writeJSONError(w, http.StatusBadRequest, "event is required")
		return
	}
	s.broker.Publish(Event{
		Type:      req.Event,
		TaskID:    req.TaskID,
		TaskName:  req.TaskName,
		Timestamp: time.Now(),
		Data:      req.Data,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSync serves POST /sync: triggers one immediate scheduler (and, if
// configured, file watcher) sync.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.scheduler != nil {
		s.scheduler.Sync(r.Context())
	}
	if s.watchSync != nil {
		s.watchSync(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleShutdown serves POST /shutdown: responds 200 then triggers an
// orderly shutdown via the registered ShutdownFunc.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if s.onShutdown != nil {
		go s.onShutdown()
	}
}
