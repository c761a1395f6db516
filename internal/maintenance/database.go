package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"
)

// DatabaseMaintenanceTask compacts the database after index evictions free
// pages, and refreshes query planner statistics.
type DatabaseMaintenanceTask struct {
	db     *sql.DB
	dbPath string
	config DatabaseConfig
	logger *log.Logger
}

// NewDatabaseMaintenanceTask creates a new database maintenance task. dbPath
// is only used to name backups.
func NewDatabaseMaintenanceTask(db *sql.DB, dbPath string, config DatabaseConfig, logger *log.Logger) *DatabaseMaintenanceTask {
	if logger == nil {
		logger = log.Default()
	}

	return &DatabaseMaintenanceTask{
		db:     db,
		dbPath: dbPath,
		config: config,
		logger: logger,
	}
}

func (t *DatabaseMaintenanceTask) Name() string { return "database_maintenance" }

func (t *DatabaseMaintenanceTask) Description() string {
	return "Reclaim space left by evicted indexes and refresh query planner statistics"
}

func (t *DatabaseMaintenanceTask) ShouldRun() bool {
	return t.config.VacuumEnabled || t.config.OptimizeIndexes
}

func (t *DatabaseMaintenanceTask) NextRun() time.Time { return time.Now().Add(24 * time.Hour) }

// IsDestructive returns false since VACUUM rewrites but never drops data
func (t *DatabaseMaintenanceTask) IsDestructive() bool { return false }

// Execute runs VACUUM when the free space exceeds the configured threshold,
// then ANALYZE.
func (t *DatabaseMaintenanceTask) Execute(ctx context.Context) TaskResult {
	if !t.ShouldRun() {
		return TaskResult{Success: true, Message: "Database maintenance disabled in configuration"}
	}

	var notes []string
	var reclaimed int64

	if t.config.VacuumEnabled {
		free, err := t.freeBytes(ctx)
		if err != nil {
			return TaskResult{Success: false, Message: "Failed to measure free pages", Error: err}
		}

		if free/(1024*1024) >= t.config.VacuumThreshold {
			if t.config.BackupBeforeVacuum {
				if err := t.backup(ctx); err != nil {
					return TaskResult{Success: false, Message: "Failed to back up database", Error: err}
				}
			}

			before, _ := t.sizeBytes(ctx)
			if _, err := t.db.ExecContext(ctx, "VACUUM"); err != nil {
				return TaskResult{Success: false, Message: "VACUUM operation failed", Error: err}
			}
			after, _ := t.sizeBytes(ctx)
			reclaimed = max(before-after, 0)
			notes = append(notes, fmt.Sprintf("vacuumed, %.1f MB reclaimed", float64(reclaimed)/(1024*1024)))
		} else {
			notes = append(notes, fmt.Sprintf("%.1f MB free, below vacuum threshold", float64(free)/(1024*1024)))
		}
	}

	if t.config.OptimizeIndexes {
		if _, err := t.db.ExecContext(ctx, "ANALYZE"); err != nil {
			return TaskResult{Success: false, Message: "Index analysis failed", Error: err}
		}
		if _, err := t.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			t.logger.Printf("[DatabaseMaintenance] Warning: PRAGMA optimize failed: %v", err)
		}
		notes = append(notes, "statistics refreshed")
	}

	return TaskResult{
		Success:        true,
		Message:        "Database maintenance completed: " + strings.Join(notes, "; "),
		SpaceReclaimed: reclaimed,
	}
}

func (t *DatabaseMaintenanceTask) sizeBytes(ctx context.Context) (int64, error) {
	var size int64
	err := t.db.QueryRowContext(ctx,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
	).Scan(&size)
	return size, err
}

func (t *DatabaseMaintenanceTask) freeBytes(ctx context.Context) (int64, error) {
	var size int64
	err := t.db.QueryRowContext(ctx,
		"SELECT freelist_count * page_size FROM pragma_freelist_count(), pragma_page_size()",
	).Scan(&size)
	return size, err
}

// backup writes a consistent copy next to the database with VACUUM INTO.
func (t *DatabaseMaintenanceTask) backup(ctx context.Context) error {
	if t.dbPath == "" {
		return fmt.Errorf("database path not available")
	}
	backupPath := fmt.Sprintf("%s.backup.%s", t.dbPath, time.Now().Format("20060102-150405"))
	if _, err := t.db.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		return err
	}
	t.logger.Printf("[DatabaseMaintenance] Created backup: %s", backupPath)
	return nil
}
