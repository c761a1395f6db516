package maintenance

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages and executes maintenance tasks on a schedule. A task
// never overlaps with itself: cron triggers that fire during a run are
// skipped, and manual runs are rejected with ErrTaskRunning.
type Scheduler struct {
	config  Config
	cron    *cron.Cron
	tasks   map[string]Task
	status  map[string]TaskStatus
	entries map[string]cron.EntryID
	active  map[string]bool
	mu      sync.RWMutex
	running bool
	logger  *log.Logger
}

// NewScheduler creates a new maintenance scheduler
func NewScheduler(config Config, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}

	cronLogger := cron.PrintfLogger(logger)
	return &Scheduler{
		config: config,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		tasks:   make(map[string]Task),
		status:  make(map[string]TaskStatus),
		entries: make(map[string]cron.EntryID),
		active:  make(map[string]bool),
		logger:  logger,
	}
}

func (s *Scheduler) scheduleFor(task Task) string {
	if st, ok := task.(Scheduled); ok && st.Schedule() != "" {
		return st.Schedule()
	}
	return s.config.Schedule
}

// RegisterTask registers a maintenance task with the scheduler
func (s *Scheduler) RegisterTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := task.Name()
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s is already registered", name)
	}
	schedule := s.scheduleFor(task)
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", schedule, name, err)
	}

	s.tasks[name] = task
	s.status[name] = TaskStatus{
		Name:        name,
		Description: task.Description(),
		State:       StateIdle,
		NextRun:     task.NextRun(),
		Enabled:     task.ShouldRun(),
		Schedule:    schedule,
	}

	s.logger.Printf("[Maintenance] Registered task: %s (%s)", name, schedule)
	return nil
}

// Start begins the maintenance scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if !s.config.Enabled {
		s.logger.Println("[Maintenance] Scheduler disabled in configuration")
		return nil
	}

	for name, task := range s.tasks {
		schedule := s.status[name].Schedule
		id, err := s.cron.AddFunc(schedule, func(taskName string, maintenanceTask Task) func() {
			return func() {
				if !maintenanceTask.ShouldRun() {
					return
				}
				if err := s.executeTask(context.Background(), taskName, maintenanceTask); err != nil {
					s.logger.Printf("[Maintenance] Skipping scheduled run of %s: %v", taskName, err)
				}
			}
		}(name, task))
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", name, err)
		}
		s.entries[name] = id
	}

	s.cron.Start()
	s.running = true

	s.logger.Printf("[Maintenance] Scheduler started with %d tasks", len(s.tasks))
	return nil
}

// Stop stops the scheduler and waits up to 30 seconds for running tasks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	ctx := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.logger.Println("[Maintenance] Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		s.logger.Println("[Maintenance] Scheduler stop timed out")
	}

	return nil
}

// RunNow executes all maintenance tasks immediately, in name order. Tasks
// that are already running are skipped.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.mu.RLock()
	tasks := make(map[string]Task, len(s.tasks))
	names := make([]string, 0, len(s.tasks))
	for name, task := range s.tasks {
		tasks[name] = task
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	s.logger.Printf("[Maintenance] Running %d tasks immediately", len(tasks))

	for _, name := range names {
		if err := s.executeTask(ctx, name, tasks[name]); err != nil {
			s.logger.Printf("[Maintenance] Skipping %s: %v", name, err)
		}
	}

	return nil
}

// RunTask executes a specific maintenance task by name
func (s *Scheduler) RunTask(ctx context.Context, taskName string) error {
	s.mu.RLock()
	task, exists := s.tasks[taskName]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("task %s not found", taskName)
	}

	return s.executeTask(ctx, taskName, task)
}

// GetStatus returns the current status of all maintenance tasks
func (s *Scheduler) GetStatus() map[string]TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := make(map[string]TaskStatus, len(s.status))
	for name, stat := range s.status {
		stat.Running = s.active[name]
		switch {
		case stat.Running:
			stat.State = StateRunning
		case s.running:
			stat.State = StateScheduled
		default:
			stat.State = StateIdle
		}
		if id, ok := s.entries[name]; ok && s.running {
			if next := s.cron.Entry(id).Next; !next.IsZero() {
				stat.NextRun = next
			}
		}
		status[name] = stat
	}

	return status
}

// IsRunning returns true if the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// executeTask runs a single maintenance task and updates its status. It
// returns ErrTaskRunning without running the task if a run is in flight.
func (s *Scheduler) executeTask(ctx context.Context, name string, task Task) error {
	s.mu.Lock()
	if s.active[name] {
		status := s.status[name]
		status.Skipped++
		s.status[name] = status
		s.mu.Unlock()
		return ErrTaskRunning
	}
	s.active[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, name)
		s.mu.Unlock()
	}()

	s.logger.Printf("[Maintenance] Starting task: %s", name)

	start := time.Now()
	result := task.Execute(ctx)
	result.Duration = time.Since(start)

	s.mu.Lock()
	status := s.status[name]
	status.LastRun = start
	status.NextRun = task.NextRun()
	status.LastResult = result
	status.Runs++
	s.status[name] = status
	s.mu.Unlock()

	if result.Success {
		s.logger.Printf("[Maintenance] Task %s completed successfully in %v: %s",
			name, result.Duration, result.Message)

		if result.RecordsProcessed > 0 {
			s.logger.Printf("[Maintenance] Task %s processed %d records",
				name, result.RecordsProcessed)
		}

		if result.SpaceReclaimed > 0 {
			s.logger.Printf("[Maintenance] Task %s reclaimed %d bytes",
				name, result.SpaceReclaimed)
		}
	} else {
		s.logger.Printf("[Maintenance] Task %s failed after %v: %s",
			name, result.Duration, result.Message)
		if result.Error != nil {
			s.logger.Printf("[Maintenance] Task %s error: %v", name, result.Error)
		}
	}
	return nil
}
