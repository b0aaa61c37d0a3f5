package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/task-master/internal/apperror"
	"github.com/sakif/task-master/internal/auth"
	"github.com/sakif/task-master/internal/model"
	"github.com/sakif/task-master/internal/repository"
	"github.com/sakif/task-master/internal/repository/memory"
)

// testClock is a settable clock for pinning timestamps.
type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// newTestTaskStore returns a store switched to user "ann" over a fresh
// memory backend.
func newTestTaskStore(t *testing.T) (*TaskStore, *memory.Store, *testClock) {
	t.Helper()
	kv := memory.New()
	clock := &testClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := NewTaskStore(kv, newTestLogger(), WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
	require.NoError(t, s.SwitchUser(context.Background(), "ann"))
	return s, kv, clock
}

func addTask(t *testing.T, s *TaskStore, text, category string) model.Task {
	t.Helper()
	task, err := s.AddTask(context.Background(), text, category, nil)
	require.NoError(t, err)
	return task
}

// =========================================================================
// PARTITIONS
// =========================================================================

func TestSwitchUser_FreshPartitionDefaults(t *testing.T) {
	s, _, _ := newTestTaskStore(t)

	assert.Empty(t, s.Tasks())
	assert.Empty(t, s.History())
	assert.Equal(t, model.DefaultCategories, s.Categories())
}

func TestSwitchUser_NoLeakBetweenUsers(t *testing.T) {
	s, kv, _ := newTestTaskStore(t)
	ctx := context.Background()

	addTask(t, s, "Ann's task", "Work")
	require.NoError(t, s.AddCategory(ctx, "Garden"))

	require.NoError(t, s.SwitchUser(ctx, "bob"))
	assert.Empty(t, s.Tasks(), "bob sees ann's tasks")
	assert.Empty(t, s.History(), "bob sees ann's history")
	assert.NotContains(t, s.Categories(), "Garden")

	addTask(t, s, "Bob's task", "")

	require.NoError(t, s.SwitchUser(ctx, "ann"))
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Ann's task", tasks[0].Text)
	assert.Contains(t, s.Categories(), "Garden")

	bobTasks, err := repository.Read[[]model.Task](ctx, kv, repository.TodosKey("bob"), nil)
	require.NoError(t, err)
	require.Len(t, bobTasks, 1)
	assert.Equal(t, "Bob's task", bobTasks[0].Text)
}

func TestSwitchUser_EmptyID(t *testing.T) {
	s := NewTaskStore(memory.New(), newTestLogger())
	err := s.SwitchUser(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDetachedStorePanics(t *testing.T) {
	s := NewTaskStore(memory.New(), newTestLogger())
	ctx := context.Background()

	ops := map[string]func(){
		"Tasks":          func() { s.Tasks() },
		"AddTask":        func() { s.AddTask(ctx, "x", "", nil) },
		"ToggleTask":     func() { s.ToggleTask(ctx, "id") },
		"DeleteCategory": func() { s.DeleteCategory(ctx, "Work") },
		"ClearHistory":   func() { s.ClearHistory(ctx) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, op)
		})
	}

	_, ok := s.Snapshot()
	assert.False(t, ok, "Snapshot() on a detached store should report false, not panic")
}

func TestDetach(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	addTask(t, s, "x", "")

	s.Detach()

	_, ok := s.UserID()
	assert.False(t, ok)
	assert.Panics(t, func() { s.Tasks() })
}

func TestOwnership_MismatchedUserRejected(t *testing.T) {
	s, kv, _ := newTestTaskStore(t)
	task := addTask(t, s, "Ann's task", "Work")
	before, err := kv.Get(context.Background(), repository.TodosKey("ann"))
	require.NoError(t, err)

	bob := auth.WithUserID(context.Background(), "bob")

	tests := []struct {
		name string
		op   func() error
	}{
		{"View", func() error { _, err := s.View(bob); return err }},
		{"AddTask", func() error { _, err := s.AddTask(bob, "x", "", nil); return err }},
		{"UpdateTask", func() error { _, err := s.UpdateTask(bob, task.ID, "y", "", nil); return err }},
		{"ToggleTask", func() error { _, err := s.ToggleTask(bob, task.ID); return err }},
		{"DeleteTask", func() error { return s.DeleteTask(bob, task.ID) }},
		{"AddCategory", func() error { return s.AddCategory(bob, "Garden") }},
		{"DeleteCategory", func() error { return s.DeleteCategory(bob, "Work") }},
		{"ClearHistory", func() error { return s.ClearHistory(bob) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.op(), apperror.ErrUnauthorized)
		})
	}

	after, err := kv.Get(context.Background(), repository.TodosKey("ann"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].Completed)
	assert.Len(t, s.History(), 1)
	assert.Equal(t, model.DefaultCategories, s.Categories())
}

func TestOwnership_MatchingUserAllowed(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	ann := auth.WithUserID(context.Background(), "ann")

	task, err := s.AddTask(ann, "mine", "", nil)
	require.NoError(t, err)

	view, err := s.View(ann)
	require.NoError(t, err)
	assert.Equal(t, "ann", view.UserID)
	require.Len(t, view.Tasks, 1)
	assert.Equal(t, task.ID, view.Tasks[0].ID)
	assert.Equal(t, model.DefaultCategories, view.Categories)
}

func TestOwnership_DetachedStoreRejectsInsteadOfPanicking(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	s.Detach()
	ann := auth.WithUserID(context.Background(), "ann")

	assert.NotPanics(t, func() {
		_, err := s.View(ann)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
		_, err = s.AddTask(ann, "x", "", nil)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	})
}

func TestView_EmptyHistoryIsNotNil(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	view, err := s.View(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, view.History)
}

// =========================================================================
// ADD / UPDATE / DELETE / TOGGLE
// =========================================================================

func TestAddTask(t *testing.T) {
	s, kv, clock := newTestTaskStore(t)

	addTask(t, s, "Buy milk", "Shopping")

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	head := tasks[0]
	assert.Equal(t, "Buy milk", head.Text)
	assert.Equal(t, "Shopping", head.Category)
	assert.False(t, head.Completed)
	assert.Nil(t, head.DueDate)
	assert.Nil(t, head.CompletedAt)
	assert.Equal(t, clock.Now(), head.CreatedAt)

	history := s.History()
	require.Len(t, history, 1)
	assert.Equal(t, model.ActionCreate, history[0].Action)
	assert.Equal(t, "Buy milk", history[0].TodoText)

	// Write-through: the backend already has the task.
	persisted, err := repository.Read[[]model.Task](context.Background(), kv, repository.TodosKey("ann"), nil)
	require.NoError(t, err)
	assert.Equal(t, tasks, persisted)
}

func TestAddTask_NewestFirstAndUniqueIDs(t *testing.T) {
	s, _, _ := newTestTaskStore(t)

	first := addTask(t, s, "first", "")
	second := addTask(t, s, "second", "")

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "second", tasks[0].Text)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAddTask_DefaultsToFirstCategory(t *testing.T) {
	s, _, _ := newTestTaskStore(t)

	task := addTask(t, s, "whatever", "")
	assert.Equal(t, "Personal", task.Category)
}

func TestAddTask_WithDueDate(t *testing.T) {
	s, _, clock := newTestTaskStore(t)
	due := clock.Now().Add(48 * time.Hour)

	task, err := s.AddTask(context.Background(), "Dentist", "Health", &due)
	require.NoError(t, err)
	require.NotNil(t, task.DueDate)
	assert.True(t, due.Equal(*task.DueDate))

	// Mutating the caller's time must not reach the store.
	due = due.Add(time.Hour)
	assert.False(t, due.Equal(*s.Tasks()[0].DueDate))
}

func TestAddTask_Rejects(t *testing.T) {
	tests := []struct {
		name, text, category string
	}{
		{"empty text", "", "Work"},
		{"whitespace text", "   \t", "Work"},
		{"unknown category", "Do it", "Nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestTaskStore(t)

			_, err := s.AddTask(context.Background(), tt.text, tt.category, nil)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, s.Tasks())
			assert.Empty(t, s.History())
		})
	}
}

func TestUpdateTask(t *testing.T) {
	s, _, clock := newTestTaskStore(t)
	ctx := context.Background()
	orig := addTask(t, s, "Buy milk", "Shopping")
	_, err := s.ToggleTask(ctx, orig.ID)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	due := clock.Now().Add(time.Hour)
	updated, err := s.UpdateTask(ctx, orig.ID, "Buy oat milk", "Shopping", &due)
	require.NoError(t, err)

	assert.Equal(t, orig.ID, updated.ID)
	assert.Equal(t, "Buy oat milk", updated.Text)
	assert.Equal(t, orig.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.Completed, "update must not touch completion")
	assert.NotNil(t, updated.CompletedAt)

	head := s.History()[0]
	assert.Equal(t, model.ActionUpdate, head.Action)
	assert.Equal(t, "Buy milk -> Buy oat milk (Shopping)", head.TodoText)
}

func TestUpdateTask_ClearsDueDate(t *testing.T) {
	s, _, clock := newTestTaskStore(t)
	due := clock.Now()
	task, _ := s.AddTask(context.Background(), "x", "", &due)

	updated, err := s.UpdateTask(context.Background(), task.ID, "x", "", nil)
	require.NoError(t, err)
	assert.Nil(t, updated.DueDate)
}

func TestUpdateTask_UnknownID(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	addTask(t, s, "keep me", "")

	_, err := s.UpdateTask(context.Background(), "missing", "x", "Work", nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Len(t, s.History(), 1, "no history entry for a missing task")
	assert.Equal(t, "keep me", s.Tasks()[0].Text)
}

func TestDeleteTask(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	ctx := context.Background()
	a := addTask(t, s, "a", "")
	b := addTask(t, s, "b", "")

	require.NoError(t, s.DeleteTask(ctx, a.ID))

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, b.ID, tasks[0].ID)
	head := s.History()[0]
	assert.Equal(t, model.ActionDelete, head.Action)
	assert.Equal(t, "a", head.TodoText)

	assert.ErrorIs(t, s.DeleteTask(ctx, a.ID), apperror.ErrNotFound)
	assert.Len(t, s.History(), 3)
}

func TestToggleTask_RoundTrip(t *testing.T) {
	s, _, clock := newTestTaskStore(t)
	ctx := context.Background()
	task := addTask(t, s, "Run", "Health")

	clock.Advance(time.Minute)
	done, err := s.ToggleTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, clock.Now(), *done.CompletedAt)
	assert.Equal(t, model.ActionComplete, s.History()[0].Action)

	undone, err := s.ToggleTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	assert.Nil(t, undone.CompletedAt)
	assert.Equal(t, model.ActionUncomplete, s.History()[0].Action)
	assert.Equal(t, "Run", s.History()[0].TodoText)
}

func TestToggleTask_UnknownID(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	_, err := s.ToggleTask(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, s.History())
}

// =========================================================================
// CATEGORIES
// =========================================================================

func TestAddCategory(t *testing.T) {
	s, kv, _ := newTestTaskStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddCategory(ctx, "Garden"))
	require.NoError(t, s.AddCategory(ctx, "Garden")) // duplicate: no-op
	require.NoError(t, s.AddCategory(ctx, "garden")) // case differs: new entry

	want := append(append([]string{}, model.DefaultCategories...), "Garden", "garden")
	assert.Equal(t, want, s.Categories())
	assert.Empty(t, s.History(), "categories are not logged")

	persisted, _ := repository.Read[[]string](ctx, kv, repository.CategoriesKey("ann"), nil)
	assert.Equal(t, want, persisted)

	assert.ErrorIs(t, s.AddCategory(ctx, "  "), apperror.ErrValidation)
}

func TestDeleteCategory_KeepsOrphanedTasks(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	ctx := context.Background()
	task := addTask(t, s, "Buy milk", "Shopping")

	require.NoError(t, s.DeleteCategory(ctx, "Shopping"))

	assert.NotContains(t, s.Categories(), "Shopping")
	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)
	assert.Equal(t, "Shopping", tasks[0].Category)

	// Editing an orphaned task without changing its category still works.
	_, err := s.UpdateTask(ctx, task.ID, "Buy more milk", "Shopping", nil)
	assert.NoError(t, err)
}

func TestDeleteCategory_LastOneIsKept(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	ctx := context.Background()

	for _, c := range model.DefaultCategories[1:] {
		require.NoError(t, s.DeleteCategory(ctx, c))
	}
	require.Equal(t, []string{"Personal"}, s.Categories())

	for _, name := range []string{"Personal", "Work", "anything"} {
		require.NoError(t, s.DeleteCategory(ctx, name))
		assert.Equal(t, []string{"Personal"}, s.Categories(), "after DeleteCategory(%q)", name)
	}
}

func TestDeleteCategory_Absent(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	require.NoError(t, s.DeleteCategory(context.Background(), "Nope"))
	assert.Equal(t, model.DefaultCategories, s.Categories())
}

// =========================================================================
// HISTORY
// =========================================================================

func TestClearHistory(t *testing.T) {
	s, kv, _ := newTestTaskStore(t)
	ctx := context.Background()
	addTask(t, s, "a", "")
	addTask(t, s, "b", "")
	require.NoError(t, s.AddCategory(ctx, "Garden"))
	cats := s.Categories()
	tasks := s.Tasks()

	require.NoError(t, s.ClearHistory(ctx))

	assert.Empty(t, s.History())
	assert.Equal(t, tasks, s.Tasks())
	assert.Equal(t, cats, s.Categories())

	persisted, _ := repository.Read[[]model.HistoryLog](ctx, kv, repository.HistoryKey("ann"), nil)
	assert.Empty(t, persisted)
}

func TestHistory_NewestFirst(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	ctx := context.Background()
	task := addTask(t, s, "a", "")
	_, _ = s.ToggleTask(ctx, task.ID)
	_ = s.DeleteTask(ctx, task.ID)

	var actions []model.HistoryAction
	for _, h := range s.History() {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []model.HistoryAction{model.ActionDelete, model.ActionComplete, model.ActionCreate}, actions)
}

// =========================================================================
// PERSISTENCE FAILURES
// =========================================================================

func TestAddTask_PersistFailureKeepsState(t *testing.T) {
	kv := &flakyStore{Store: memory.New(), failSuffix: "_todos"}
	s := NewTaskStore(kv, newTestLogger())
	require.NoError(t, s.SwitchUser(context.Background(), "ann"))

	_, err := s.AddTask(context.Background(), "x", "", nil)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Empty(t, s.Tasks())
	assert.Empty(t, s.History())
}

func TestReturnedSlicesAreCopies(t *testing.T) {
	s, _, _ := newTestTaskStore(t)
	addTask(t, s, "original", "")

	tasks := s.Tasks()
	tasks[0].Text = "mutated"
	cats := s.Categories()
	cats[0] = "mutated"

	assert.Equal(t, "original", s.Tasks()[0].Text)
	assert.Equal(t, "Personal", s.Categories()[0])
}
