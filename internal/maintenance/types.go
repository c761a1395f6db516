package maintenance

import (
	"context"
	"errors"
	"time"
)

// ErrTaskRunning is returned when a task is started while a previous run of
// it is still in flight.
var ErrTaskRunning = errors.New("maintenance: task is already running")

// Task represents a maintenance task that can be scheduled and executed
type Task interface {
	// Name returns the name of the maintenance task
	Name() string

	// Description returns a human-readable description of what the task does
	Description() string

	// Execute runs the maintenance task
	Execute(ctx context.Context) TaskResult

	// ShouldRun determines if the task should run based on its configuration
	ShouldRun() bool

	// NextRun returns when the task expects to run next if it were started now
	NextRun() time.Time

	// IsDestructive returns true if the task performs destructive operations
	IsDestructive() bool
}

// Scheduled is implemented by tasks that carry their own cron spec instead
// of using the scheduler default.
type Scheduled interface {
	Schedule() string
}

// TaskResult represents the result of executing a maintenance task
type TaskResult struct {
	Success          bool          `json:"success"`
	Duration         time.Duration `json:"duration"`
	Message          string        `json:"message"`
	RecordsProcessed int           `json:"records_processed,omitempty"`
	SpaceReclaimed   int64         `json:"space_reclaimed,omitempty"`
	Error            error         `json:"-"`
}

// TaskState is the lifecycle state of a registered task.
type TaskState string

const (
	StateIdle      TaskState = "idle"
	StateScheduled TaskState = "scheduled"
	StateRunning   TaskState = "running"
)

// TaskStatus represents the status of a maintenance task
type TaskStatus struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	State       TaskState  `json:"state"`
	Running     bool       `json:"running"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	LastResult  TaskResult `json:"last_result"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Runs        int        `json:"runs"`
	Skipped     int        `json:"skipped"`
}

// Config represents maintenance configuration
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Schedule is the cron spec for tasks without their own, in the
	// six-field (with seconds) format or a descriptor such as "@daily".
	Schedule string `json:"schedule" yaml:"schedule"`

	Database DatabaseConfig `json:"database" yaml:"database"`
}

// DatabaseConfig configures database maintenance operations
type DatabaseConfig struct {
	VacuumEnabled      bool  `json:"vacuum_enabled" yaml:"vacuum_enabled"`
	VacuumThreshold    int64 `json:"vacuum_threshold" yaml:"vacuum_threshold"` // vacuum when DB > threshold MB
	BackupBeforeVacuum bool  `json:"backup_before_vacuum" yaml:"backup_before_vacuum"`
	OptimizeIndexes    bool  `json:"optimize_indexes" yaml:"optimize_indexes"`
}

// DefaultConfig returns the default maintenance configuration
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Schedule: "0 0 3 * * *", // Daily at 3 AM
		Database: DatabaseConfig{
			VacuumEnabled:      true,
			VacuumThreshold:    100, // 100 MB
			BackupBeforeVacuum: false,
			OptimizeIndexes:    true,
		},
	}
}
