package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sakif/task-master/internal/model"
)

// TaskSource is the read-only view the scheduler needs. service.TaskStore
// satisfies it; ok is false while nobody is logged in.
type TaskSource interface {
	Snapshot() (tasks []model.Task, ok bool)
}

// NotifyFunc receives every non-nil notice.
type NotifyFunc func(Notice)

// Scheduler runs Check once after a short delay and then on a fixed interval.
type Scheduler struct {
	source   TaskSource
	notify   NotifyFunc
	logger   *slog.Logger
	now      func() time.Time
	delay    time.Duration
	interval time.Duration

	cron *cron.Cron

	mu      sync.Mutex
	initial *time.Timer
	stopped bool
	running sync.WaitGroup
}

// NewScheduler validates the timings and registers the periodic job.
// The interval must be a whole number of seconds, the finest step cron
// schedules at. A nil notify logs each notice at Info.
func NewScheduler(source TaskSource, delay, interval time.Duration, notify NotifyFunc, logger *slog.Logger) (*Scheduler, error) {
	if delay < 0 {
		return nil, fmt.Errorf("reminder: delay must not be negative, got %s", delay)
	}
	if interval < time.Second {
		return nil, fmt.Errorf("reminder: interval must be at least 1s, got %s", interval)
	}
	if interval%time.Second != 0 {
		return nil, fmt.Errorf("reminder: interval must be whole seconds, got %s", interval)
	}

	s := &Scheduler{
		source:   source,
		notify:   notify,
		logger:   logger,
		now:      time.Now,
		delay:    delay,
		interval: interval,
		cron:     cron.New(),
	}
	if s.notify == nil {
		s.notify = s.logNotice
	}

	spec := "@every " + interval.String()
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce() }); err != nil {
		return nil, fmt.Errorf("reminder: scheduling %q: %w", spec, err)
	}
	return s, nil
}

// Start arms the one-shot check and starts the periodic job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.initial = time.AfterFunc(s.delay, s.runInitial)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("reminder scheduler started",
		slog.Duration("delay", s.delay),
		slog.Duration("interval", s.interval),
	)
}

// runInitial is the one-shot callback. It is a no-op once Stop has begun.
func (s *Scheduler) runInitial() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	s.RunOnce()
}

// Stop cancels the pending one-shot check and waits for any check already
// running, one-shot or periodic. No notice is delivered after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.initial != nil {
		s.initial.Stop()
	}
	s.mu.Unlock()
	s.running.Wait()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("reminder scheduler stopped")
}

// RunOnce checks the current snapshot and notifies if there is anything to
// say. It returns the notice, or nil when logged out or all tasks are done.
func (s *Scheduler) RunOnce() *Notice {
	tasks, ok := s.source.Snapshot()
	if !ok {
		return nil
	}

	n := Check(tasks, s.now())
	if n != nil {
		s.notify(*n)
	}
	return n
}

func (s *Scheduler) logNotice(n Notice) {
	level := slog.LevelInfo
	if n.Kind == KindOverdue {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, n.Message, slog.String("kind", string(n.Kind)), slog.Int("count", n.Count))
}
