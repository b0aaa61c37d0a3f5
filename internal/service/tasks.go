package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/task-master/internal/apperror"
	"github.com/sakif/task-master/internal/auth"
	"github.com/sakif/task-master/internal/model"
	"github.com/sakif/task-master/internal/repository"
)

// errNotOwner is returned when the caller's user is not the active partition.
var errNotOwner = apperror.Unauthorized("session changed, log in again")

// TaskStore holds one user's partition: tasks (newest first), categories
// (insertion order) and history (newest first).
//
// LIFECYCLE:
// A TaskStore starts detached. SwitchUser loads a user's three keys and makes
// that partition active; Detach drops it.
//
// OWNERSHIP:
// Operations that take a context check it against the active partition.
// If ctx carries an authenticated user (auth.WithUserID) who is not the
// partition's owner, the call fails with apperror.ErrUnauthorized and
// changes nothing; this covers a request that passed auth.RequireAuth just
// before another user logged in. Without a user in ctx, a detached store
// panics: reaching one without a session is a wiring bug.
//
// Every mutation that changes state writes the whole affected key before
// returning, and task mutations append a history entry.
type TaskStore struct {
	mu     sync.Mutex
	kv     repository.KeyValueStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	userID     string
	tasks      []model.Task
	categories []string
	history    []model.HistoryLog
}

// TaskStoreOption configures a TaskStore.
type TaskStoreOption func(*TaskStore)

// WithClock replaces time.Now. Tests use it to pin timestamps.
func WithClock(now func() time.Time) TaskStoreOption {
	return func(s *TaskStore) { s.now = now }
}

// WithIDGenerator replaces the xid-based ID generator.
func WithIDGenerator(newID func() string) TaskStoreOption {
	return func(s *TaskStore) { s.newID = newID }
}

// NewTaskStore creates a detached TaskStore.
func NewTaskStore(kv repository.KeyValueStore, logger *slog.Logger, opts ...TaskStoreOption) *TaskStore {
	s := &TaskStore{
		kv:     kv,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return xid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =========================================================================
// PARTITION MANAGEMENT
// =========================================================================

// SwitchUser replaces the active partition with userID's persisted state.
// Absent keys load as an empty task list, an empty history and
// model.DefaultCategories. Nothing of the previous partition survives.
func (s *TaskStore) SwitchUser(ctx context.Context, userID string) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "user ID is required")
	}

	tasks, err := repository.Read[[]model.Task](ctx, s.kv, repository.TodosKey(userID), nil)
	if err != nil {
		return fmt.Errorf("service/tasks: loading tasks for %s: %w", userID, err)
	}
	history, err := repository.Read[[]model.HistoryLog](ctx, s.kv, repository.HistoryKey(userID), nil)
	if err != nil {
		return fmt.Errorf("service/tasks: loading history for %s: %w", userID, err)
	}
	categories, err := repository.Read(ctx, s.kv, repository.CategoriesKey(userID), slices.Clone(model.DefaultCategories))
	if err != nil {
		return fmt.Errorf("service/tasks: loading categories for %s: %w", userID, err)
	}
	// A persisted empty list would break the "never empty" rule.
	if len(categories) == 0 {
		categories = slices.Clone(model.DefaultCategories)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = userID
	s.tasks = tasks
	s.history = history
	s.categories = categories

	s.logger.Debug("task partition switched",
		slog.String("userID", userID),
		slog.Int("tasks", len(tasks)),
	)
	return nil
}

// Detach drops the active partition from memory. Persisted data is untouched.
func (s *TaskStore) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = ""
	s.tasks = nil
	s.history = nil
	s.categories = nil
}

// UserID returns the active partition's user, or ("", false) when detached.
func (s *TaskStore) UserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

// Snapshot returns a copy of the active tasks without panicking when the
// store is detached. Background readers (the reminder scheduler) use it.
func (s *TaskStore) Snapshot() ([]model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID == "" {
		return nil, false
	}
	return cloneTasks(s.tasks), true
}

// mustPartition panics when no partition is active. Caller holds s.mu.
func (s *TaskStore) mustPartition() {
	if s.userID == "" {
		panic("service/tasks: task store used without an active user session")
	}
}

// checkOwner enforces the ownership rule described on TaskStore.
// Caller holds s.mu.
func (s *TaskStore) checkOwner(ctx context.Context) error {
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		if userID != s.userID {
			s.logger.Warn("task store access by non-owner",
				slog.String("userID", userID),
				slog.String("partition", s.userID),
			)
			return errNotOwner
		}
		return nil
	}
	s.mustPartition()
	return nil
}

// =========================================================================
// READS
// =========================================================================

// Tasks returns a copy of the task list, newest first.
func (s *TaskStore) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustPartition()
	return cloneTasks(s.tasks)
}

// Categories returns a copy of the category list in insertion order.
func (s *TaskStore) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustPartition()
	return slices.Clone(s.categories)
}

// Partition is a copy of one user's data taken under a single lock.
type Partition struct {
	UserID     string
	Tasks      []model.Task
	Categories []string
	History    []model.HistoryLog
}

// View returns a consistent copy of the active partition after the
// ownership check. History is never nil.
func (s *TaskStore) View(ctx context.Context) (Partition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return Partition{}, err
	}

	history := slices.Clone(s.history)
	if history == nil {
		history = []model.HistoryLog{}
	}
	return Partition{
		UserID:     s.userID,
		Tasks:      cloneTasks(s.tasks),
		Categories: slices.Clone(s.categories),
		History:    history,
	}, nil
}

// History returns a copy of the activity log, newest first.
func (s *TaskStore) History() []model.HistoryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mustPartition()
	return slices.Clone(s.history)
}

// =========================================================================
// TASK MUTATIONS
// =========================================================================

// AddTask creates an incomplete task at the head of the list and logs a
// "create" entry.
//
// The store owns the non-empty-text rule: text is trimmed, and blank text is
// rejected with apperror.ErrValidation and no state change. An empty
// category means the first category; a non-empty one must exist.
func (s *TaskStore) AddTask(ctx context.Context, text, category string, dueDate *time.Time) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return model.Task{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return model.Task{}, apperror.ValidationFailed("text", "task text is required")
	}

	category = strings.TrimSpace(category)
	if category == "" {
		category = s.categories[0]
	} else if !slices.Contains(s.categories, category) {
		return model.Task{}, apperror.ValidationFailed("category",
			fmt.Sprintf("unknown category %q", category))
	}

	now := s.now()
	task := model.Task{
		ID:        s.newID(),
		Text:      text,
		Completed: false,
		Category:  category,
		CreatedAt: now,
		DueDate:   cloneTime(dueDate),
	}

	tasks := make([]model.Task, 0, len(s.tasks)+1)
	tasks = append(tasks, task)
	tasks = append(tasks, s.tasks...)

	if err := s.commit(ctx, tasks, model.ActionCreate, text, now); err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task created",
		slog.String("userID", s.userID),
		slog.String("taskID", task.ID),
		slog.String("category", category),
	)
	return cloneTask(task), nil
}

// UpdateTask replaces text, category and due date of an existing task in
// place. Completion state and timestamps are left alone. The "update" entry
// reads "<old text> -> <new text> (<category>)".
//
// An empty category keeps the task's current one, which also lets a task
// whose category was deleted be edited without recategorising it. A changed
// category must exist.
func (s *TaskStore) UpdateTask(ctx context.Context, id, text, category string, dueDate *time.Time) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return model.Task{}, err
	}

	i := s.indexOf(id)
	if i < 0 {
		return model.Task{}, apperror.NotFound("task", id)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return model.Task{}, apperror.ValidationFailed("text", "task text is required")
	}

	old := s.tasks[i]
	category = strings.TrimSpace(category)
	if category == "" {
		category = old.Category
	} else if category != old.Category && !slices.Contains(s.categories, category) {
		return model.Task{}, apperror.ValidationFailed("category",
			fmt.Sprintf("unknown category %q", category))
	}

	updated := old
	updated.Text = text
	updated.Category = category
	updated.DueDate = cloneTime(dueDate)

	tasks := cloneTasks(s.tasks)
	tasks[i] = updated

	entry := fmt.Sprintf("%s -> %s (%s)", old.Text, text, category)
	if err := s.commit(ctx, tasks, model.ActionUpdate, entry, s.now()); err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task updated", slog.String("userID", s.userID), slog.String("taskID", id))
	return cloneTask(updated), nil
}

// DeleteTask removes a task and logs a "delete" entry with its text.
func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return err
	}

	i := s.indexOf(id)
	if i < 0 {
		return apperror.NotFound("task", id)
	}

	removed := s.tasks[i]
	tasks := slices.Delete(cloneTasks(s.tasks), i, i+1)

	if err := s.commit(ctx, tasks, model.ActionDelete, removed.Text, s.now()); err != nil {
		return err
	}

	s.logger.Info("task deleted", slog.String("userID", s.userID), slog.String("taskID", id))
	return nil
}

// ToggleTask flips completion. Completing stamps CompletedAt; reopening
// clears it. Logs "complete" or "uncomplete".
func (s *TaskStore) ToggleTask(ctx context.Context, id string) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return model.Task{}, err
	}

	i := s.indexOf(id)
	if i < 0 {
		return model.Task{}, apperror.NotFound("task", id)
	}

	now := s.now()
	toggled := s.tasks[i]
	toggled.Completed = !toggled.Completed

	action := model.ActionUncomplete
	toggled.CompletedAt = nil
	if toggled.Completed {
		action = model.ActionComplete
		toggled.CompletedAt = &now
	}

	tasks := cloneTasks(s.tasks)
	tasks[i] = toggled

	if err := s.commit(ctx, tasks, action, toggled.Text, now); err != nil {
		return model.Task{}, err
	}

	s.logger.Info("task toggled",
		slog.String("userID", s.userID),
		slog.String("taskID", id),
		slog.Bool("completed", toggled.Completed),
	)
	return cloneTask(toggled), nil
}

// =========================================================================
// CATEGORIES & HISTORY
// =========================================================================

// AddCategory appends name to the category list. An existing name
// (exact, case-sensitive match) is a silent no-op. Not logged to history.
func (s *TaskStore) AddCategory(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return apperror.ValidationFailed("name", "category name is required")
	}
	if slices.Contains(s.categories, name) {
		return nil
	}

	categories := append(slices.Clone(s.categories), name)
	if err := s.writeCategories(ctx, categories); err != nil {
		return err
	}

	s.logger.Info("category added", slog.String("userID", s.userID), slog.String("category", name))
	return nil
}

// DeleteCategory removes name from the category list.
//
// Silent no-ops: name not present, or only one category left (the list is
// never empty). Tasks that reference the category keep the string as is.
func (s *TaskStore) DeleteCategory(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return err
	}

	if len(s.categories) <= 1 {
		return nil
	}
	i := slices.Index(s.categories, name)
	if i < 0 {
		return nil
	}

	categories := slices.Delete(slices.Clone(s.categories), i, i+1)
	if err := s.writeCategories(ctx, categories); err != nil {
		return err
	}

	s.logger.Info("category deleted", slog.String("userID", s.userID), slog.String("category", name))
	return nil
}

// ClearHistory empties the activity log. Tasks and categories are untouched.
func (s *TaskStore) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(ctx); err != nil {
		return err
	}

	history := []model.HistoryLog{}
	if err := repository.Write(ctx, s.kv, repository.HistoryKey(s.userID), history); err != nil {
		s.logger.Error("failed to clear history", slog.String("error", err.Error()))
		return fmt.Errorf("service/tasks: clearing history: %w", err)
	}
	s.history = history

	s.logger.Info("history cleared", slog.String("userID", s.userID))
	return nil
}

// =========================================================================
// INTERNALS (caller holds s.mu)
// =========================================================================

func (s *TaskStore) indexOf(id string) int {
	return slices.IndexFunc(s.tasks, func(t model.Task) bool { return t.ID == id })
}

// commit writes the new task list, then the history with a new head entry.
// In-memory state only advances for keys that were written successfully.
func (s *TaskStore) commit(ctx context.Context, tasks []model.Task, action model.HistoryAction, text string, at time.Time) error {
	if err := repository.Write(ctx, s.kv, repository.TodosKey(s.userID), tasks); err != nil {
		s.logger.Error("failed to persist tasks",
			slog.String("userID", s.userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/tasks: saving tasks: %w", err)
	}
	s.tasks = tasks

	entry := model.HistoryLog{
		ID:        s.newID(),
		Action:    action,
		TodoText:  text,
		Timestamp: at,
	}
	history := make([]model.HistoryLog, 0, len(s.history)+1)
	history = append(history, entry)
	history = append(history, s.history...)

	if err := repository.Write(ctx, s.kv, repository.HistoryKey(s.userID), history); err != nil {
		s.logger.Error("failed to persist history",
			slog.String("userID", s.userID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/tasks: saving history: %w", err)
	}
	s.history = history
	return nil
}

func (s *TaskStore) writeCategories(ctx context.Context, categories []string) error {
	if err := repository.Write(ctx, s.kv, repository.CategoriesKey(s.userID), categories); err != nil {
		s.logger.Error("failed to persist categories", slog.String("error", err.Error()))
		return fmt.Errorf("service/tasks: saving categories: %w", err)
	}
	s.categories = categories
	return nil
}

// cloneTasks deep-copies tasks so callers can't reach our pointers.
func cloneTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	for i, t := range tasks {
		out[i] = cloneTask(t)
	}
	return out
}

func cloneTask(t model.Task) model.Task {
	t.CompletedAt = cloneTime(t.CompletedAt)
	t.DueDate = cloneTime(t.DueDate)
	return t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
