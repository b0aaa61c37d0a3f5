package service

import (
	"strings"
	"time"

	"github.com/sakif/task-master/internal/apperror"
	"github.com/sakif/task-master/internal/model"
)

// The functions in this file are pure projections over a task snapshot.
// Nothing is cached: callers recompute from TaskStore.Tasks() on every read.

// CategoryCount is the number of tasks filed under one category.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary is the dashboard view of a task list.
type Summary struct {
	Total      int             `json:"total"`
	Active     int             `json:"active"`
	Completed  int             `json:"completed"`
	Overdue    int             `json:"overdue"`
	ByCategory []CategoryCount `json:"byCategory"`
}

// Summarize counts tasks by status and by category.
//
// ByCategory follows the order of categories and leaves out categories with
// no tasks. Tasks whose category was deleted count toward the totals but not
// toward any ByCategory entry.
func Summarize(tasks []model.Task, categories []string, now time.Time) Summary {
	sum := Summary{Total: len(tasks), ByCategory: []CategoryCount{}}

	perCategory := make(map[string]int, len(categories))
	for _, t := range tasks {
		if t.Completed {
			sum.Completed++
		}
		if t.Overdue(now) {
			sum.Overdue++
		}
		perCategory[t.Category]++
	}
	sum.Active = sum.Total - sum.Completed

	for _, c := range categories {
		if n := perCategory[c]; n > 0 {
			sum.ByCategory = append(sum.ByCategory, CategoryCount{Name: c, Count: n})
		}
	}
	return sum
}

// StatusFilter selects tasks by completion state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "All"
	StatusActive    StatusFilter = "Active"
	StatusCompleted StatusFilter = "Completed"
)

// ParseStatusFilter accepts "", "all", "active" or "completed" in any case.
// The empty string means StatusAll.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return StatusAll, nil
	case "active":
		return StatusActive, nil
	case "completed":
		return StatusCompleted, nil
	default:
		return "", apperror.ValidationFailed("status", "status must be one of All, Active, Completed")
	}
}

// TaskFilter is the task-list filter. An empty Category (or "All") matches
// every category.
type TaskFilter struct {
	Category string
	Status   StatusFilter
}

// FilterTasks returns the tasks that match f, preserving order.
func FilterTasks(tasks []model.Task, f TaskFilter) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Category != "" && f.Category != "All" && t.Category != f.Category {
			continue
		}
		switch f.Status {
		case StatusActive:
			if t.Completed {
				continue
			}
		case StatusCompleted:
			if !t.Completed {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// OverdueTasks returns the open tasks whose due date has passed.
func OverdueTasks(tasks []model.Task, now time.Time) []model.Task {
	var out []model.Task
	for _, t := range tasks {
		if t.Overdue(now) {
			out = append(out, t)
		}
	}
	return out
}

// PendingTasks returns the tasks that are not completed.
func PendingTasks(tasks []model.Task) []model.Task {
	return FilterTasks(tasks, TaskFilter{Status: StatusActive})
}
