// Package reminder turns a task snapshot into an overdue/pending notice and
// rechecks it on a schedule.
package reminder

import (
	"fmt"
	"time"

	"github.com/sakif/task-master/internal/model"
	"github.com/sakif/task-master/internal/service"
)

// Kind says which condition a Notice reports.
type Kind string

const (
	KindOverdue Kind = "overdue"
	KindPending Kind = "pending"
)

// Notice is one reminder. Tasks holds the tasks it counts.
type Notice struct {
	Kind    Kind         `json:"kind"`
	Count   int          `json:"count"`
	Message string       `json:"message"`
	Tasks   []model.Task `json:"tasks"`
}

// Check returns the reminder for tasks at now, or nil when every task is done.
// Overdue tasks win: the pending notice is only produced when none are overdue.
func Check(tasks []model.Task, now time.Time) *Notice {
	overdue := service.OverdueTasks(tasks, now)
	pending := service.PendingTasks(tasks)

	switch {
	case len(overdue) > 0:
		return &Notice{
			Kind:    KindOverdue,
			Count:   len(overdue),
			Message: fmt.Sprintf("You have %d overdue %s!", len(overdue), plural(len(overdue))),
			Tasks:   overdue,
		}
	case len(pending) > 0:
		return &Notice{
			Kind:    KindPending,
			Count:   len(pending),
			Message: fmt.Sprintf("You have %d pending %s.", len(pending), plural(len(pending))),
			Tasks:   pending,
		}
	default:
		return nil
	}
}

func plural(n int) string {
	if n == 1 {
		return "task"
	}
	return "tasks"
}
