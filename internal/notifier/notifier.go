// Package notifier dispatches task completion/failure nudges to two sinks:
// an OS-level desktop notification and the Control Surface's SSE broker.
// Whether a nudge fires at all is gated by a per-task nudge_mode (falling
// back to a configurable global default) and, for completions, optional
// local quiet hours; a nudge that fires goes to both sinks, except that the
// OS sink can be disabled globally. Failures always notify unless the mode
// is "never".
package notifier

import (
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/daymon-dev/daymon/internal/httpapi"
	"github.com/daymon-dev/daymon/internal/runner"
	"github.com/daymon-dev/daymon/internal/store"
)

const (
	ModeAlways       = "always"
	ModeFailureOnly  = "failure_only"
	ModeNever        = "never"
	outputExcerptLen = 280
)

// Broker is the subset of httpapi.Broker the Notifier publishes onto.
type Broker interface {
	Publish(ev httpapi.Event)
}

// Notifier is the sink fan-out the Scheduler/Control Surface drive after a
// run completes.
type Notifier struct {
	store   *store.Store
	broker  Broker
	log     *log.Logger
	now     func() time.Time
	runOS   func(title, body string) error
	osDisabled      bool
	defaultNudge    string
	quietHoursFrom  string
	quietHoursUntil string
}

// Options configures the global defaults; all fields are optional.
type Options struct {
	OSNotificationsDisabled bool
	DefaultNudgeMode        string
	QuietHoursFrom          string
	QuietHoursUntil         string
}

// New constructs a Notifier. broker may be nil to disable the SSE sink
// (e.g. when no Control Surface is running).
func New(st *store.Store, broker Broker, opts Options, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	defaultNudge := opts.DefaultNudgeMode
	if defaultNudge == "" {
		defaultNudge = ModeAlways
	}
	return &Notifier{
		store:           st,
		broker:          broker,
		log:             logger,
		now:             time.Now,
		runOS:           runOSNotification,
		osDisabled:      opts.OSNotificationsDisabled,
		defaultNudge:    defaultNudge,
		quietHoursFrom:  opts.QuietHoursFrom,
		quietHoursUntil: opts.QuietHoursUntil,
	}
}

// NotifyTaskComplete nudges for a successful run, subject to nudge_mode and
// quiet hours.
func (n *Notifier) NotifyTaskComplete(taskID int64, taskName string, out runner.Outcome) {
	if !n.shouldNotify(taskID, true) {
		return
	}
	title := fmt.Sprintf("Daymon: %s completed", taskName)
	body := fmt.Sprintf("Finished in %s. %s", durationString(out.DurationMs), truncate(out.Output, outputExcerptLen))
	n.dispatch("task:complete", taskID, taskName, title, body, out)
}

// NotifyTaskFailed always nudges unless nudge_mode is "never".
func (n *Notifier) NotifyTaskFailed(taskID int64, taskName string, out runner.Outcome) {
	if !n.shouldNotify(taskID, false) {
		return
	}
	title := fmt.Sprintf("Daymon: %s failed", taskName)
	body := truncate(out.ErrorMessage, outputExcerptLen)
	n.dispatch("task:failed", taskID, taskName, title, body, out)
}

// shouldNotify resolves the task's nudge_mode (falling back to the global
// default) and, for completions only, the quiet-hours window.
func (n *Notifier) shouldNotify(taskID int64, success bool) bool {
	mode := n.defaultNudge
	if n.store != nil {
		if task, err := n.store.GetTask(taskID); err == nil && task.NudgeMode != "" {
			mode = task.NudgeMode
		}
	}
	if mode == ModeNever {
		return false
	}
	if !success {
		return true
	}
	if mode == ModeFailureOnly {
		return false
	}
	if n.inQuietHours(n.now()) {
		return false
	}
	return true
}

// inQuietHours reports whether t's local wall-clock time falls within
// [from, until), wrapping past midnight when until <= from.
func (n *Notifier) inQuietHours(t time.Time) bool {
	if n.quietHoursFrom == "" || n.quietHoursUntil == "" {
		return false
	}
	from, err := parseClock(n.quietHoursFrom)
	if err != nil {
		return false
	}
	until, err := parseClock(n.quietHoursUntil)
	if err != nil {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	if from <= until {
		return cur >= from && cur < until
	}
	// Wraps midnight, e.g. 22:00-07:00.
	return cur >= from || cur < until
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("notifier: invalid HH:MM %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

// dispatch fans a nudge out to the OS sink and the SSE broker.
func (n *Notifier) dispatch(eventType string, taskID int64, taskName, title, body string, out runner.Outcome) {
	if !n.osDisabled {
		if err := n.runOS(title, body); err != nil {
			n.log.Printf("notifier: os notification: %v", err)
		}
	}
	if n.broker == nil {
		return
	}
	data, err := json.Marshal(map[string]interface{}{
		"success":     out.Success,
		"duration_ms": out.DurationMs,
		"excerpt":     truncate(out.Output, outputExcerptLen),
		"error":       out.ErrorMessage,
	})
	if err != nil {
		n.log.Printf("notifier: marshal event data: %v", err)
		data = nil
	}
	n.broker.Publish(httpapi.Event{
		Type:      eventType,
		TaskID:    taskID,
		TaskName:  taskName,
		Timestamp: n.now(),
		Data:      data,
	})
}

// runOSNotification shells out to the platform's native notifier. macOS
// uses osascript, Linux uses notify-send; other platforms are a no-op.
func runOSNotification(title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %s with title %s`, osaQuote(body), osaQuote(title))
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, body)
	default:
		return nil
	}
	return cmd.Run()
}

func osaQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return "..."
	}
	return s[:max-3] + "..."
}

func durationString(ms int64) string {
	return time.Duration(ms * int64(time.Millisecond)).Round(time.Second).String()
}
