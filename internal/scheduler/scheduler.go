// Package scheduler runs the engine's periodic tasks. The escalation sweep
// must keep running independently of request handling, and a clean shutdown
// lets an in-flight sweep finish rather than abort mid-transition.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/config"
	"github.com/clearcomply/remediation-engine/internal/metrics"
	"github.com/clearcomply/remediation-engine/internal/workflow"
)

// Scheduler manages the recurring tasks of the remediation engine.
type Scheduler struct {
	config  *config.Config
	logger  *zap.Logger
	cron    *cron.Cron
	engine  *workflow.Engine
	metrics *metrics.Collector

	tasksMu sync.RWMutex
	tasks   map[string]*Task
}

// Task tracks bookkeeping for one scheduled job.
type Task struct {
	ID         string    `json:"id"`
	Schedule   string    `json:"schedule"`
	LastRun    time.Time `json:"last_run"`
	RunCount   int64     `json:"run_count"`
	ErrorCount int64     `json:"error_count"`

	run func()
}

// NewScheduler creates a scheduler with the escalation sweep and metrics
// refresh tasks registered.
func NewScheduler(
	cfg *config.Config,
	engine *workflow.Engine,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Scheduler {
	s := &Scheduler{
		config:  cfg,
		logger:  logger,
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		engine:  engine,
		metrics: collector,
		tasks:   make(map[string]*Task),
	}

	s.tasks["escalation_sweep"] = &Task{
		ID:       "escalation_sweep",
		Schedule: cfg.Workflow.EscalationSweepSchedule,
		run:      s.runEscalationSweep,
	}
	s.tasks["metrics_refresh"] = &Task{
		ID:       "metrics_refresh",
		Schedule: cfg.Workflow.MetricsRefreshSchedule,
		run:      s.refreshMetrics,
	}

	return s
}

// Start schedules all tasks and starts the cron loop.
func (s *Scheduler) Start() error {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()

	for _, task := range s.tasks {
		task := task
		if _, err := s.cron.AddFunc(task.Schedule, func() {
			s.execute(task)
		}); err != nil {
			return err
		}
		s.logger.Info("Task scheduled",
			zap.String("task_id", task.ID),
			zap.String("schedule", task.Schedule),
		)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("tasks", len(s.tasks)))
	return nil
}

// Stop stops the cron loop and blocks until in-flight runs have finished, so
// a sweep is never interrupted between a step update and its audit record.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunSweepNow triggers the escalation sweep outside its schedule.
func (s *Scheduler) RunSweepNow() workflow.SweepResult {
	return s.engine.CheckEscalations()
}

// Tasks returns bookkeeping snapshots of the scheduled tasks.
func (s *Scheduler) Tasks() []Task {
	s.tasksMu.RLock()
	defer s.tasksMu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, *task)
	}
	return out
}

func (s *Scheduler) execute(task *Task) {
	s.tasksMu.Lock()
	task.LastRun = time.Now()
	task.RunCount++
	s.tasksMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.tasksMu.Lock()
			task.ErrorCount++
			s.tasksMu.Unlock()
			s.logger.Error("Scheduled task panicked",
				zap.String("task_id", task.ID),
				zap.Any("panic", r),
			)
		}
	}()

	task.run()
}

func (s *Scheduler) runEscalationSweep() {
	result := s.engine.CheckEscalations()
	if result.Failures > 0 {
		s.logger.Warn("Escalation sweep finished with isolated failures",
			zap.Int("failures", result.Failures),
			zap.Int("applied", result.Applied),
		)
	}
}

func (s *Scheduler) refreshMetrics() {
	for status, count := range s.engine.StatusCounts() {
		s.metrics.SetActiveWorkflows(string(status), count)
	}
}
