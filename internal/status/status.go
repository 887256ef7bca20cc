// Package status holds the project and task state machines.
package status

import "math"

type ProjectStatus string
type TaskStatus string

const (
	ProjectActive    ProjectStatus = "Active"
	ProjectCompleted ProjectStatus = "Completed"
	ProjectCancelled ProjectStatus = "Cancelled"
)

const (
	TaskNotStarted TaskStatus = "Not Started"
	TaskInProcess  TaskStatus = "In Process"
	TaskCompleted  TaskStatus = "Completed"
)

// projectTransitions is the full transition table. Completed and Cancelled
// are terminal: they have no outgoing edges.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectActive:    {ProjectCompleted, ProjectCancelled},
	ProjectCompleted: {},
	ProjectCancelled: {},
}

// taskTransitions allows free movement between all three task statuses.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskNotStarted: {TaskInProcess, TaskCompleted},
	TaskInProcess:  {TaskNotStarted, TaskCompleted},
	TaskCompleted:  {TaskNotStarted, TaskInProcess},
}

func CanTransitionProject(from, to ProjectStatus) bool {
	for _, next := range projectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func CanTransitionTask(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TasksMutable reports whether tasks under a project may be created,
// updated, or deleted. Only Completed freezes the task list; a Cancelled
// project keeps its tasks editable.
func TasksMutable(s ProjectStatus) bool {
	return s != ProjectCompleted
}

// Terminal reports whether a project status has no outgoing transitions.
func Terminal(s ProjectStatus) bool {
	return len(projectTransitions[s]) == 0
}

func ParseProjectStatus(raw string) (ProjectStatus, bool) {
	switch ProjectStatus(raw) {
	case ProjectActive, ProjectCompleted, ProjectCancelled:
		return ProjectStatus(raw), true
	default:
		return "", false
	}
}

func ParseTaskStatus(raw string) (TaskStatus, bool) {
	switch TaskStatus(raw) {
	case TaskNotStarted, TaskInProcess, TaskCompleted:
		return TaskStatus(raw), true
	default:
		return "", false
	}
}

// Progress returns the percentage of completed tasks, rounded to the
// nearest integer. An empty task list yields 0.
func Progress(statuses []TaskStatus) int {
	if len(statuses) == 0 {
		return 0
	}
	completed := 0
	for _, s := range statuses {
		if s == TaskCompleted {
			completed++
		}
	}
	return int(math.Round(float64(completed) / float64(len(statuses)) * 100))
}

// PendingCount returns the number of tasks not yet completed.
func PendingCount(statuses []TaskStatus) int {
	pending := 0
	for _, s := range statuses {
		if s != TaskCompleted {
			pending++
		}
	}
	return pending
}
