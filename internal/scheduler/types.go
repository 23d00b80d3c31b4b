// Package scheduler runs the recurring background jobs: daily request
// generation from templates and purging of delivered notifications.
//
// Jobs fire from cron inside cmd/worker or on demand from
// cmd/tools/job-runner. Either way they go through Dispatcher.Execute, which
// takes a per-day job lock so replicas never run the same job twice.
package scheduler

import "time"

// TaskType identifies a scheduled job.
type TaskType string

const (
	TaskGenerateRequests   TaskType = "generate_requests"
	TaskPurgeNotifications TaskType = "purge_notifications"
)

// Tasks describes every supported task, keyed by type.
var Tasks = map[TaskType]string{
	TaskGenerateRequests:   "Create requests for every template due today",
	TaskPurgeNotifications: "Delete delivered notifications older than the retention window",
}

// Valid reports whether t is a known task.
func (t TaskType) Valid() bool {
	_, ok := Tasks[t]
	return ok
}

// Result summarizes one Execute call.
type Result struct {
	Task    TaskType
	LockID  string
	Skipped bool
	Items   int
	Elapsed time.Duration
}
