package session

import (
	"fmt"
	"sync"
)

// NoticeKind identifies the outcome a notice reports.
type NoticeKind string

const (
	NoticePermissionDenied NoticeKind = "permission_denied"
	NoticeNoSpeech         NoticeKind = "no_speech"
	NoticeNetworkError     NoticeKind = "network_error"
	NoticeRecognitionError NoticeKind = "recognition_error"
	NoticeEmptyTranscript  NoticeKind = "empty_transcript"
	NoticeNoTasks          NoticeKind = "no_tasks"
	NoticePersistenceError NoticeKind = "persistence_error"
	NoticeTasksAdded       NoticeKind = "tasks_added"
)

// Notice is a terminal session outcome shown to the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Recorder is a Notifier that keeps every notice. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records n.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func permissionDeniedNotice() Notice {
	return Notice{
		Kind:    NoticePermissionDenied,
		Title:   "Permission required",
		Message: "Microphone and speech recognition permission is needed to add tasks by voice.",
	}
}

func noSpeechNotice(attempts int) Notice {
	return Notice{
		Kind:    NoticeNoSpeech,
		Title:   "No speech detected",
		Message: fmt.Sprintf("Nothing was heard after %d retries. Please try again.", attempts),
	}
}

func networkErrorNotice() Notice {
	return Notice{
		Kind:    NoticeNetworkError,
		Title:   "Network error",
		Message: "Speech recognition is unavailable. Check your connection or the device speech services.",
	}
}

func recognitionErrorNotice(message string) Notice {
	return Notice{Kind: NoticeRecognitionError, Title: "Speech recognition error", Message: message}
}

func emptyTranscriptNotice() Notice {
	return Notice{
		Kind:    NoticeEmptyTranscript,
		Title:   "Nothing captured",
		Message: "No speech was captured. Try again.",
	}
}

func noTasksNotice() Notice {
	return Notice{
		Kind:    NoticeNoTasks,
		Title:   "No tasks found",
		Message: "Speech was heard but could not be parsed into tasks.",
	}
}

func persistenceErrorNotice(err error) Notice {
	return Notice{
		Kind:    NoticePersistenceError,
		Title:   "Error",
		Message: fmt.Sprintf("Could not save tasks: %v", err),
	}
}

func tasksAddedNotice(n int) Notice {
	return Notice{
		Kind:    NoticeTasksAdded,
		Title:   "Tasks added",
		Message: fmt.Sprintf("Added %d task(s).", n),
	}
}
