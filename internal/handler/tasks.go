package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/task-master/internal/service"
)

// TaskHandler serves the active user's tasks, categories and history.
//
// Every route is behind auth.RequireAuth, and every call passes the request
// context to the Task Store, which rejects it if the caller's partition is no
// longer the active one.
type TaskHandler struct {
	tasks  *service.TaskStore
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks *service.TaskStore, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// taskRequest is the body of create and update. DueDate is RFC 3339 or null.
type taskRequest struct {
	Text     string     `json:"text"`
	Category string     `json:"category"`
	DueDate  *time.Time `json:"dueDate"`
}

// HandleList returns the tasks, newest first, optionally filtered.
//
// HTTP: GET /api/tasks?category=Work&status=active
//
// category "" or "All" means every category; status is all|active|completed.
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := service.ParseStatusFilter(q.Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.tasks.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	tasks := service.FilterTasks(view.Tasks, service.TaskFilter{
		Category: q.Get("category"),
		Status:   status,
	})
	writeJSON(w, http.StatusOK, tasks)
}

// HandleCreate adds a task.
//
// HTTP: POST /api/tasks
// REQUEST BODY: {"text": "Buy milk", "category": "Shopping", "dueDate": null}
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.tasks.AddTask(r.Context(), req.Text, req.Category, req.DueDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// HandleUpdate replaces a task's text, category and due date.
//
// HTTP: PUT /api/tasks/{id}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.tasks.UpdateTask(r.Context(), pathParam(r, "id"), req.Text, req.Category, req.DueDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleDelete removes a task.
//
// HTTP: DELETE /api/tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteTask(r.Context(), pathParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleToggle flips a task between active and completed.
//
// HTTP: POST /api/tasks/{id}/toggle
func (h *TaskHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.ToggleTask(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// =========================================================================
// CATEGORIES
// =========================================================================

type categoryRequest struct {
	Name string `json:"name"`
}

// HandleListCategories returns the categories in order.
//
// HTTP: GET /api/categories
func (h *TaskHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	h.writeCategories(w, r)
}

// HandleAddCategory appends a category and returns the full list. Adding
// an existing name changes nothing and still succeeds.
//
// HTTP: POST /api/categories
// REQUEST BODY: {"name": "Garden"}
func (h *TaskHandler) HandleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.tasks.AddCategory(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	h.writeCategories(w, r)
}

// HandleDeleteCategory removes a category and returns the remaining list.
// Deleting the last category, or one that doesn't exist, is a no-op.
//
// HTTP: DELETE /api/categories/{name}
func (h *TaskHandler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.DeleteCategory(r.Context(), pathParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	h.writeCategories(w, r)
}

func (h *TaskHandler) writeCategories(w http.ResponseWriter, r *http.Request) {
	view, err := h.tasks.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Categories)
}

// =========================================================================
// HISTORY
// =========================================================================

// HandleHistory returns the activity log, newest first.
//
// HTTP: GET /api/history
func (h *TaskHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	view, err := h.tasks.View(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.History)
}

// HandleClearHistory empties the activity log.
//
// HTTP: DELETE /api/history
func (h *TaskHandler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.ClearHistory(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
