package store

import "time"

// TriggerType enumerates how a Task is set into motion.
type TriggerType string

const (
	TriggerCron   TriggerType = "cron"
	TriggerOnce   TriggerType = "once"
	TriggerManual TriggerType = "manual"
)

// TaskStatus enumerates a Task's lifecycle state.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

// RunStatus enumerates a TaskRun's lifecycle state.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ConsoleEntryType enumerates the kinds of console log entries the AI
// Executor's stream parser emits.
type ConsoleEntryType string

const (
	EntryToolCall      ConsoleEntryType = "tool_call"
	EntryAssistantText ConsoleEntryType = "assistant_text"
	EntryToolResult    ConsoleEntryType = "tool_result"
	EntryResult        ConsoleEntryType = "result"
	EntryError         ConsoleEntryType = "error"
)

// WatchStatus enumerates a Watch's lifecycle state.
type WatchStatus string

const (
	WatchActive WatchStatus = "active"
	WatchPaused WatchStatus = "paused"
)

// EmbeddingSourceType enumerates what an Embedding row vectorizes.
type EmbeddingSourceType string

const (
	SourceEntity      EmbeddingSourceType = "entity"
	SourceObservation EmbeddingSourceType = "observation"
)

// Task is a persisted, named unit of work triggered by cron, a one-shot
// time, or manual invocation. Filesystem changes drive Watches, not Tasks.
type Task struct {
	ID               int64
	Name             string
	Description      string
	Prompt           string
	Executor         string
	Status           TaskStatus
	TriggerType      TriggerType
	CronExpression   *string
	ScheduledAt      *time.Time
	TriggerConfig    *string
	LastRun          *time.Time
	LastResult       *string
	ErrorCount       int
	MaxRuns          *int
	RunCount         int
	MemoryEntityID   *int64
	WorkerID         *int64
	SessionContinuity bool
	SessionID        *string
	TimeoutMinutes   *int
	// NudgeMode is one of "", "always", "failure_only", "never". Empty
	// defers to the global default.
	NudgeMode string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TaskUpdate carries a partial update to a Task; nil fields are left
// untouched.
type TaskUpdate struct {
	Name              *string
	Description       *string
	Prompt            *string
	Executor          *string
	Status            *TaskStatus
	CronExpression    *string
	ScheduledAt       *time.Time
	TriggerConfig     *string
	MaxRuns           *int
	WorkerID          *int64
	SessionContinuity *bool
	TimeoutMinutes    *int
	NudgeMode         *string
	// ClearScheduledAt/ClearWorkerID/ClearSessionID allow explicitly
	// nulling a nullable column, distinct from "leave untouched".
	ClearScheduledAt bool
	ClearWorkerID    bool
	ClearSessionID   bool
	SessionID        *string
}

// TaskRun is one attempted execution of a Task.
type TaskRun struct {
	ID               int64
	TaskID           int64
	StartedAt        time.Time
	FinishedAt       *time.Time
	Status           RunStatus
	Result           string
	ResultFile       *string
	ErrorMessage     *string
	DurationMs       *int64
	SessionID        *string
	Progress         *float64
	ProgressMessage  *string
}

// ConsoleLog is one parsed event attached to a run.
type ConsoleLog struct {
	ID        int64
	RunID     int64
	Seq       int64
	EntryType ConsoleEntryType
	Content   string
	CreatedAt time.Time
}

// Watch is a filesystem-change trigger.
type Watch struct {
	ID            int64
	Path          string
	Description   string
	ActionPrompt  string
	Status        WatchStatus
	LastTriggered *time.Time
	TriggerCount  int
}

// Entity is a persistent node in the memory graph.
type Entity struct {
	ID         int64
	Name       string
	Type       string
	Category   string
	EmbeddedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Observation is a free-text note attached to an Entity.
type Observation struct {
	ID        int64
	EntityID  int64
	Content   string
	Source    string
	CreatedAt time.Time
}

// Relation is a typed edge between two Entities.
type Relation struct {
	ID   int64
	From int64
	To   int64
	Type string
}

// Embedding stores a vector for an Entity or Observation.
type Embedding struct {
	ID         int64
	EntityID   int64
	SourceType EmbeddingSourceType
	SourceID   int64
	TextHash   string
	Vector     []byte
	Model      string
	Dimensions int
}

// Worker is a named system-prompt + optional model override.
type Worker struct {
	ID           int64
	Name         string
	SystemPrompt string
	Description  string
	Model        string
	IsDefault    bool
	TaskCount    int
}

// Setting is a scalar key/value row.
type Setting struct {
	Key   string
	Value string
}

// SearchResult is one row of a hybrid or FTS search.
type SearchResult struct {
	Entity Entity
	Score  float64
}
