// internal/domain/report/shared_types.go
package report

import "strings"

// TaskType is the kind of work the coordinator set for the day.
type TaskType string

const (
	TaskAudio     TaskType = "Audio"
	TaskWriting   TaskType = "Writing"
	TaskListening TaskType = "Listening"
)

// ParseTaskType maps a stored or typed value onto a known task type.
func ParseTaskType(s string) (TaskType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio":
		return TaskAudio, true
	case "writing":
		return TaskWriting, true
	case "listening":
		return TaskListening, true
	default:
		return "", false
	}
}

// AcceptsAudio reports whether an audio message counts as a submission for this task.
func (t TaskType) AcceptsAudio() bool { return t == TaskAudio }

// AcceptsImage reports whether an image message counts as a submission for this task.
func (t TaskType) AcceptsImage() bool { return t == TaskWriting || t == TaskListening }
