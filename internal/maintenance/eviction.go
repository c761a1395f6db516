package maintenance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"docquery/internal/indexstore"
)

// IndexSweeper is the part of an index backend the eviction task needs.
type IndexSweeper interface {
	Sweep(ctx context.Context, threshold time.Duration) ([]string, error)
	List(ctx context.Context) ([]indexstore.Entry, error)
}

// IndexEvictionTask deletes document indexes that have not been accessed
// for longer than the inactivity threshold.
type IndexEvictionTask struct {
	store     IndexSweeper
	threshold time.Duration
	interval  time.Duration
	logger    *log.Logger
}

// NewIndexEvictionTask creates an eviction task that runs every interval.
func NewIndexEvictionTask(store IndexSweeper, threshold, interval time.Duration, logger *log.Logger) *IndexEvictionTask {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &IndexEvictionTask{
		store:     store,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
	}
}

func (t *IndexEvictionTask) Name() string { return "index_eviction" }

func (t *IndexEvictionTask) Description() string {
	return fmt.Sprintf("Delete document indexes idle for more than %v", t.threshold)
}

// Schedule runs the sweep on a fixed interval.
func (t *IndexEvictionTask) Schedule() string {
	return "@every " + t.interval.String()
}

func (t *IndexEvictionTask) ShouldRun() bool     { return t.threshold > 0 }
func (t *IndexEvictionTask) NextRun() time.Time  { return time.Now().Add(t.interval) }
func (t *IndexEvictionTask) IsDestructive() bool { return true }

// Execute performs one sweep. Failures are reported in the result; stale
// entries stay in place and are retried on the next run.
func (t *IndexEvictionTask) Execute(ctx context.Context) TaskResult {
	t.logger.Printf("[IndexEviction] Running index cleanup (threshold %v)", t.threshold)

	evicted, err := t.store.Sweep(ctx, t.threshold)
	for _, id := range evicted {
		t.logger.Printf("[IndexEviction] Deleted index for document %s", id)
	}
	if err != nil {
		return TaskResult{
			Success:          false,
			Message:          fmt.Sprintf("Index sweep failed after evicting %d index(es)", len(evicted)),
			RecordsProcessed: len(evicted),
			Error:            err,
		}
	}

	remaining, err := t.store.List(ctx)
	if err != nil {
		return TaskResult{
			Success:          true,
			Message:          fmt.Sprintf("Evicted %d index(es); remaining count unavailable: %v", len(evicted), err),
			RecordsProcessed: len(evicted),
		}
	}

	ids := make([]string, len(remaining))
	for i, e := range remaining {
		ids[i] = e.DocumentID
	}
	t.logger.Printf("[IndexEviction] Remaining indexes: [%s]", strings.Join(ids, ", "))

	msg := fmt.Sprintf("Evicted %d index(es), %d remaining", len(evicted), len(remaining))
	if len(evicted) > 0 {
		msg += ": " + strings.Join(evicted, ", ")
	}
	return TaskResult{
		Success:          true,
		Message:          msg,
		RecordsProcessed: len(evicted),
	}
}
