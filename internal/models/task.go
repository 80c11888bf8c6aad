// Package models defines the task record and the events published about it.
package models

// Task is a persisted to-do item. Timestamps are epoch milliseconds.
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Completed   bool    `json:"completed"`
	CreatedAt   int64   `json:"createdAt"`
	DueDate     *int64  `json:"dueDate,omitempty"`
}

// TasksCreated is published after dictated tasks were saved.
type TasksCreated struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Tasks     []Task `json:"tasks"`
}

// SessionNotice is published for every terminal outcome reported to the user.
type SessionNotice struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

const (
	EventTypeTasksCreated  = "voice.tasks.created"
	EventTypeSessionNotice = "voice.session.notice"
)
