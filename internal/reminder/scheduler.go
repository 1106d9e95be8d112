package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/clientflow/internal/config"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/events"
	"github.com/phrazzld/clientflow/internal/metrics"
	"github.com/phrazzld/clientflow/internal/store"
	"github.com/robfig/cron/v3"
)

// Start errors
var (
	ErrAlreadyStarted = errors.New("reminder scheduler already started")
	ErrStopped        = errors.New("reminder scheduler stopped")
)

// Scheduler sweeps pending tasks on a fixed interval.
type Scheduler struct {
	tasks     store.TaskStore
	emitter   events.EventEmitter
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger
	timeFunc  func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// NewScheduler creates a scheduler. Zero durations in cfg select the defaults.
func NewScheduler(tasks store.TaskStore, emitter events.EventEmitter, cfg config.ReminderConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scheduler{
		tasks:     tasks,
		emitter:   emitter,
		interval:  interval,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "reminder_scheduler")),
		timeFunc:  time.Now,
	}
}

// WithTimeFunc replaces the clock. Intended for tests.
func (s *Scheduler) WithTimeFunc(fn func() time.Time) *Scheduler {
	s.timeFunc = fn
	return s
}

// Start runs one sweep immediately and then one every interval until Stop
// or ctx is done. A tick that arrives while a sweep is running is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.runSweep(ctx)
	}))

	s.runSweep(ctx)
	s.cron.Start()

	s.logger.Info("reminder scheduler started",
		slog.Duration("interval", s.interval),
		slog.Duration("threshold", s.threshold))
	return nil
}

// Stop cancels the tick and waits for a running sweep to return. Calling it
// again does nothing. A scheduler stopped before Start never starts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if !s.started {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	done := c.Stop()
	cancel()
	<-done.Done()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) runSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("reminder sweep failed", slog.String("error", err.Error()))
	}
}

// Sweep fires every due reminder once and returns how many fired. A
// reminder another sweep already wrote back is skipped.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	fired, err := s.sweep(ctx)
	metrics.SweepsTotal.WithLabelValues(metrics.Result(err)).Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	return fired, err
}

func (s *Scheduler) sweep(ctx context.Context) (int, error) {
	now := s.timeFunc().UTC().Truncate(time.Microsecond)

	pending, err := s.tasks.List(ctx, store.TaskFilter{Statuses: []domain.TaskStatus{domain.TaskStatusPending}})
	if err != nil {
		return 0, fmt.Errorf("listing pending tasks: %w", err)
	}

	fired := 0
	var firstErr error
	for _, d := range Decide(pending, now, s.threshold) {
		ok, err := s.tasks.TouchReminder(ctx, d.Task.ID, d.Previous, now)
		if err != nil {
			s.logger.Error("failed to record reminder",
				slog.String("error", err.Error()),
				slog.String("task_id", d.Task.ID.String()))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			s.logger.Debug("reminder already recorded elsewhere", slog.String("task_id", d.Task.ID.String()))
			continue
		}

		fired++
		metrics.RemindersFiredTotal.Inc()
		event := events.NewTaskEvent(events.KindTaskReminder, d.Task, d.Message, now)
		if err := s.emitter.EmitEvent(ctx, event); err != nil {
			s.logger.Warn("failed to deliver reminder",
				slog.String("error", err.Error()),
				slog.String("task_id", d.Task.ID.String()))
		}
	}

	if fired > 0 {
		s.logger.Info("reminders fired", slog.Int("count", fired))
	}
	return fired, firstErr
}
