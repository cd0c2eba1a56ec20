package models

import "strings"

// TaskState is the server-reported state of a job
type TaskState string

const (
	TaskStatePending    TaskState = "PENDING"
	TaskStateProcessing TaskState = "PROCESSING"
	TaskStateRunning    TaskState = "RUNNING"
	TaskStateCompleted  TaskState = "COMPLETED"
	TaskStateSuccess    TaskState = "SUCCESS" // legacy status route
	TaskStateFailure    TaskState = "FAILURE"
	TaskStateFailed     TaskState = "FAILED"
	TaskStateNotFound   TaskState = "NOT_FOUND"
	TaskStateUnknown    TaskState = "UNKNOWN"
)

// StatusKind is the client-side classification of a TaskState
type StatusKind string

const (
	StatusUnknown   StatusKind = "UNKNOWN"
	StatusRunning   StatusKind = "RUNNING"
	StatusCompleted StatusKind = "COMPLETED"
	StatusFailed    StatusKind = "FAILED"
)

// Normalize upper-cases and trims a state received from the wire
func (s TaskState) Normalize() TaskState {
	return TaskState(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Kind maps the state onto a StatusKind
func (s TaskState) Kind() StatusKind {
	switch s.Normalize() {
	case TaskStatePending, TaskStateProcessing, TaskStateRunning:
		return StatusRunning
	case TaskStateCompleted, TaskStateSuccess:
		return StatusCompleted
	case TaskStateFailure, TaskStateFailed, TaskStateNotFound:
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// IsTerminal reports whether no further progress is expected after this state
func (s TaskState) IsTerminal() bool {
	kind := s.Kind()
	return kind == StatusCompleted || kind == StatusFailed
}

// errorIndicators are matched case-insensitively against status messages
var errorIndicators = []string{"ошибка", "error"}

// HasErrorIndicator reports whether a status message reads as a failure,
// even when it accompanies a completed state.
func HasErrorIndicator(message string) bool {
	lower := strings.ToLower(message)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// JobProgressState is the per-controller view of the tracked job.
// Subscribed implies TaskID != "".
type JobProgressState struct {
	TaskID        string     `json:"task_id"`
	Subscribed    bool       `json:"subscribed"`
	Progress      float64    `json:"progress"`
	StatusKind    StatusKind `json:"status_kind"`
	StatusState   TaskState  `json:"status_state,omitempty"`
	StatusMessage string     `json:"status_message,omitempty"`
}

// HandoffRequest carries a freshly created task id from the submitting form to the page controller
type HandoffRequest struct {
	TaskID string `json:"task_id"`
}
