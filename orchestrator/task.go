package orchestrator

import (
	"sync"
	"time"

	"github.com/roundtable-ai/roundtable/types"
)

// TaskStatus is the lifecycle state of an orchestration task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Response is one AI turn recorded against a task, with its advisory quality
// score.
type Response struct {
	Personality    string               `json:"personality"`
	Content        string               `json:"content"`
	Cycle          int                  `json:"cycle"`
	TokensUsed     int                  `json:"tokens_used"`
	ProcessingTime time.Duration        `json:"processing_time"`
	Provider       string               `json:"provider,omitempty"`
	Quality        *types.QualityMetrics `json:"quality,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Task tracks one orchestration run: which personalities must speak, how far
// the run has progressed, and every response produced so far. Tasks are held
// in memory and garbage-collected after a retention window once terminal.
type Task struct {
	mu sync.Mutex

	ID                    string
	ConversationID        string
	Mode                  Mode
	RequiredPersonalities []string
	CurrentStep           int
	TotalSteps            int // 0 for unbounded (infinite mode)
	Responses             []Response
	Status                TaskStatus
	Error                 string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           time.Time
}

// TaskSnapshot is a copy-safe view of a task for status queries.
type TaskSnapshot struct {
	ID                    string     `json:"id"`
	ConversationID        string     `json:"conversation_id"`
	Mode                  Mode       `json:"mode"`
	RequiredPersonalities []string   `json:"required_personalities"`
	CurrentStep           int        `json:"current_step"`
	TotalSteps            int        `json:"total_steps"`
	Responses             []Response `json:"responses"`
	Status                TaskStatus `json:"status"`
	Error                 string     `json:"error,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (t *Task) start(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = TaskInProgress
	t.UpdatedAt = now
}

// addResponse records a completed turn and advances the step counter.
// currentStep never exceeds totalSteps for bounded runs.
func (t *Task) addResponse(r Response, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Responses = append(t.Responses, r)
	if t.TotalSteps == 0 || t.CurrentStep < t.TotalSteps {
		t.CurrentStep++
	}
	t.UpdatedAt = now
}

func (t *Task) finish(status TaskStatus, errMsg string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status.IsTerminal() {
		return
	}
	t.Status = status
	t.Error = errMsg
	t.UpdatedAt = now
	t.CompletedAt = now
}

// priorResponses returns a copy of the responses recorded so far.
func (t *Task) priorResponses() []Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Response, len(t.Responses))
	copy(out, t.Responses)
	return out
}

// Snapshot returns a consistent copy of the task state.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	responses := make([]Response, len(t.Responses))
	copy(responses, t.Responses)
	participants := make([]string, len(t.RequiredPersonalities))
	copy(participants, t.RequiredPersonalities)
	return TaskSnapshot{
		ID:                    t.ID,
		ConversationID:        t.ConversationID,
		Mode:                  t.Mode,
		RequiredPersonalities: participants,
		CurrentStep:           t.CurrentStep,
		TotalSteps:            t.TotalSteps,
		Responses:             responses,
		Status:                t.Status,
		Error:                 t.Error,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

// expired reports whether a terminal task has outlived the retention window.
func (t *Task) expired(now time.Time, retention time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Status.IsTerminal() && !t.CompletedAt.IsZero() && now.Sub(t.CompletedAt) > retention
}
