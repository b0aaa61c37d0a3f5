package model

import "time"

// DefaultCategories is the category list a user starts with when their
// partition has no saved categories yet.
var DefaultCategories = []string{"Personal", "Work", "Shopping", "Health", "Other"}

// Task is a single todo item owned by one user.
//
// OPTIONAL TIMESTAMPS:
// CompletedAt and DueDate are pointers so "absent" is distinguishable from
// the zero time. With `omitempty`, a nil pointer is left out of the JSON
// entirely, which is how the persisted layout represents an absent value.
type Task struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Overdue reports whether the task is still open and its due date has passed.
// A task without a due date is never overdue.
func (t Task) Overdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

// HistoryAction is the kind of task mutation a history entry records.
type HistoryAction string

const (
	ActionCreate     HistoryAction = "create"
	ActionUpdate     HistoryAction = "update"
	ActionDelete     HistoryAction = "delete"
	ActionComplete   HistoryAction = "complete"
	ActionUncomplete HistoryAction = "uncomplete"
)

// HistoryLog is one entry in a user's activity log. Entries are never edited;
// the log only grows (newest first) or is cleared as a whole.
type HistoryLog struct {
	ID        string        `json:"id"`
	Action    HistoryAction `json:"action"`
	TodoText  string        `json:"todoText"`
	Timestamp time.Time     `json:"timestamp"`
}
