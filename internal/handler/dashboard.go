package handler

import (
	"net/http"
	"time"

	"github.com/sakif/task-master/internal/reminder"
	"github.com/sakif/task-master/internal/service"
)

// DashboardHandler serves read-only views computed from the task list.
type DashboardHandler struct {
	tasks *service.TaskStore
	now   func() time.Time
}

// NewDashboardHandler creates a DashboardHandler. A nil now uses time.Now.
func NewDashboardHandler(tasks *service.TaskStore, now func() time.Time) *DashboardHandler {
	if now == nil {
		now = time.Now
	}
	return &DashboardHandler{tasks: tasks, now: now}
}

// HandleStats returns status and per-category counts.
//
// HTTP: GET /api/stats
func (h *DashboardHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	view, err := h.tasks.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.Summarize(view.Tasks, view.Categories, h.now()))
}

type reminderResponse struct {
	Notice *reminder.Notice `json:"notice"`
}

// HandleReminders returns the reminder for the current task list, computed
// now. Notice is null when every task is done.
//
// HTTP: GET /api/reminders
func (h *DashboardHandler) HandleReminders(w http.ResponseWriter, r *http.Request) {
	view, err := h.tasks.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reminderResponse{
		Notice: reminder.Check(view.Tasks, h.now()),
	})
}
