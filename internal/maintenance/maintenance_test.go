package maintenance

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/internal/database"
	"docquery/internal/embedding"
	"docquery/internal/indexstore"
	"docquery/internal/vectorindex"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[Test] ", log.LstdFlags)
}

// TestTask is a simple task implementation for testing
type TestTask struct {
	name     string
	schedule string
	calls    atomic.Int32
	started  chan struct{}
	release  chan struct{}
}

func (t *TestTask) Name() string { return t.name }

func (t *TestTask) Description() string { return "Test task for unit testing" }

func (t *TestTask) Schedule() string { return t.schedule }

func (t *TestTask) Execute(ctx context.Context) TaskResult {
	t.calls.Add(1)
	if t.started != nil {
		select {
		case t.started <- struct{}{}:
		default:
		}
	}
	if t.release != nil {
		<-t.release
	}
	return TaskResult{
		Success: true,
		Message: "Test task executed successfully",
	}
}

func (t *TestTask) ShouldRun() bool     { return true }
func (t *TestTask) NextRun() time.Time  { return time.Now().Add(time.Hour) }
func (t *TestTask) IsDestructive() bool { return false }

func newBlockingTask(name, schedule string) *TestTask {
	return &TestTask{
		name:     name,
		schedule: schedule,
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
}

func TestScheduler_RegisterAndRunTask(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig(), testLogger())

	task := &TestTask{name: "test_task"}
	require.NoError(t, scheduler.RegisterTask(task))

	status := scheduler.GetStatus()
	require.Len(t, status, 1)
	assert.Equal(t, StateIdle, status["test_task"].State)
	assert.Equal(t, DefaultConfig().Schedule, status["test_task"].Schedule)

	require.NoError(t, scheduler.RunTask(context.Background(), "test_task"))
	assert.Equal(t, int32(1), task.calls.Load())

	status = scheduler.GetStatus()
	assert.Equal(t, 1, status["test_task"].Runs)
	assert.True(t, status["test_task"].LastResult.Success)
	assert.False(t, status["test_task"].LastRun.IsZero())

	assert.Error(t, scheduler.RunTask(context.Background(), "missing"))
}

func TestScheduler_RegisterRejectsDuplicatesAndBadSchedules(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig(), testLogger())

	require.NoError(t, scheduler.RegisterTask(&TestTask{name: "a"}))
	assert.Error(t, scheduler.RegisterTask(&TestTask{name: "a"}))
	assert.Error(t, scheduler.RegisterTask(&TestTask{name: "b", schedule: "not a schedule"}))
}

func TestScheduler_ManualRunRejectedWhileRunning(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig(), testLogger())
	task := newBlockingTask("slow", "")
	require.NoError(t, scheduler.RegisterTask(task))

	done := make(chan error, 1)
	go func() { done <- scheduler.RunTask(context.Background(), "slow") }()
	<-task.started

	assert.Equal(t, StateRunning, scheduler.GetStatus()["slow"].State)
	assert.ErrorIs(t, scheduler.RunTask(context.Background(), "slow"), ErrTaskRunning)

	close(task.release)
	require.NoError(t, <-done)

	status := scheduler.GetStatus()["slow"]
	assert.Equal(t, 1, status.Runs)
	assert.Equal(t, 1, status.Skipped)
	assert.False(t, status.Running)
}

func TestScheduler_SkipsOverlappingTriggers(t *testing.T) {
	config := DefaultConfig()
	scheduler := NewScheduler(config, testLogger())

	task := newBlockingTask("overlap", "* * * * * *") // every second
	require.NoError(t, scheduler.RegisterTask(task))
	require.NoError(t, scheduler.Start())

	select {
	case <-task.started:
	case <-time.After(5 * time.Second):
		t.Fatal("task was never triggered")
	}
	assert.Equal(t, StateRunning, scheduler.GetStatus()["overlap"].State)

	// Several more triggers fire while the first run is blocked.
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, int32(1), task.calls.Load(), "overlapping triggers must be skipped")

	close(task.release)
	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.IsRunning())
}

func TestScheduler_StartStopStates(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig(), testLogger())
	require.NoError(t, scheduler.RegisterTask(&TestTask{name: "t", schedule: "@every 1h"}))

	require.NoError(t, scheduler.Start())
	assert.True(t, scheduler.IsRunning())
	assert.Error(t, scheduler.Start())

	status := scheduler.GetStatus()["t"]
	assert.Equal(t, StateScheduled, status.State)
	assert.WithinDuration(t, time.Now().Add(time.Hour), status.NextRun, 5*time.Second)

	require.NoError(t, scheduler.Stop())
	assert.Equal(t, StateIdle, scheduler.GetStatus()["t"].State)
	require.NoError(t, scheduler.Stop(), "stopping twice is a no-op")
}

func TestScheduler_Disabled(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false
	scheduler := NewScheduler(config, nil)
	require.NoError(t, scheduler.RegisterTask(&TestTask{name: "t"}))

	require.NoError(t, scheduler.Start())
	assert.False(t, scheduler.IsRunning())
}

func TestScheduler_RunNow(t *testing.T) {
	scheduler := NewScheduler(DefaultConfig(), testLogger())
	a, b := &TestTask{name: "a"}, &TestTask{name: "b"}
	require.NoError(t, scheduler.RegisterTask(a))
	require.NoError(t, scheduler.RegisterTask(b))

	require.NoError(t, scheduler.RunNow(context.Background()))
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())
}

// Index eviction

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func saveIndex(t *testing.T, store indexstore.Store, id string) {
	t.Helper()
	ix, err := vectorindex.Build(context.Background(), embedding.NewHashingEmbedder(16), vectorindex.Source{
		DocumentID: id,
		Chunks:     []string{"content of " + id},
	}, vectorindex.Options{})
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), id, ix))
}

func TestIndexEvictionTask_Execute(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	c := &clock{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	store := indexstore.NewSQLiteStore(db, indexstore.WithClock(c.Now))

	t0 := c.Now()
	saveIndex(t, store, "d1")
	c.Set(t0.Add(90 * time.Minute))
	saveIndex(t, store, "d2")
	c.Set(t0.Add(2 * time.Hour))

	var logs bytes.Buffer
	task := NewIndexEvictionTask(store, time.Hour, time.Hour, log.New(&logs, "", 0))
	assert.Equal(t, "@every 1h0m0s", task.Schedule())
	assert.True(t, task.IsDestructive())
	assert.True(t, task.ShouldRun())

	result := task.Execute(context.Background())
	require.True(t, result.Success, result.Message)
	assert.Equal(t, 1, result.RecordsProcessed)
	assert.Contains(t, result.Message, "d1")
	assert.Contains(t, logs.String(), "Deleted index for document d1")
	assert.Contains(t, logs.String(), "Remaining indexes: [d2]")

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "d2", entries[0].DocumentID)
}

type failingSweeper struct{ calls atomic.Int32 }

func (f *failingSweeper) Sweep(context.Context, time.Duration) ([]string, error) {
	f.calls.Add(1)
	return []string{"gone"}, indexstore.ErrMetadataPersistence
}

func (f *failingSweeper) List(context.Context) ([]indexstore.Entry, error) { return nil, nil }

func TestIndexEvictionTask_FailureIsContained(t *testing.T) {
	sweeper := &failingSweeper{}
	scheduler := NewScheduler(DefaultConfig(), testLogger())
	task := NewIndexEvictionTask(sweeper, time.Hour, time.Hour, testLogger())
	require.NoError(t, scheduler.RegisterTask(task))

	require.NoError(t, scheduler.RunTask(context.Background(), task.Name()))
	require.NoError(t, scheduler.RunTask(context.Background(), task.Name()))

	status := scheduler.GetStatus()[task.Name()]
	assert.False(t, status.LastResult.Success)
	assert.True(t, errors.Is(status.LastResult.Error, indexstore.ErrMetadataPersistence))
	assert.Equal(t, 1, status.LastResult.RecordsProcessed)
	assert.Equal(t, int32(2), sweeper.calls.Load(), "a failed sweep does not stop later runs")
}

func TestIndexEvictionTask_PartialFailureLogsEvicted(t *testing.T) {
	var buf bytes.Buffer
	task := NewIndexEvictionTask(&failingSweeper{}, time.Hour, time.Hour, log.New(&buf, "", 0))

	result := task.Execute(context.Background())
	assert.False(t, result.Success)
	assert.Contains(t, buf.String(), "[IndexEviction] Deleted index for document gone")
}

func TestIndexEvictionTask_Defaults(t *testing.T) {
	task := NewIndexEvictionTask(&failingSweeper{}, 0, 0, nil)
	assert.False(t, task.ShouldRun(), "zero threshold disables eviction")
	assert.Equal(t, "@every 1h0m0s", task.Schedule())
}

// Token cleanup

type fakeCleaner struct {
	removed int64
	err     error
}

func (f *fakeCleaner) CleanupExpiredTokens(context.Context) (int64, error) { return f.removed, f.err }

func TestTokenCleanupTask(t *testing.T) {
	result := NewTokenCleanupTask(&fakeCleaner{removed: 3}, nil).Execute(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.RecordsProcessed)

	result = NewTokenCleanupTask(&fakeCleaner{err: errors.New("locked")}, nil).Execute(context.Background())
	assert.False(t, result.Success)
	assert.Error(t, result.Error)
}

// Database maintenance

func TestDatabaseMaintenanceTask(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	store := indexstore.NewSQLiteStore(db)
	for _, id := range []string{"a", "b", "c"} {
		saveIndex(t, store, id)
	}
	for _, id := range []string{"a", "b"} {
		require.NoError(t, store.Delete(context.Background(), id))
	}

	config := DatabaseConfig{
		VacuumEnabled:      true,
		VacuumThreshold:    0, // Always vacuum for testing
		BackupBeforeVacuum: true,
		OptimizeIndexes:    true,
	}
	task := NewDatabaseMaintenanceTask(db, dbPath, config, testLogger())

	result := task.Execute(context.Background())
	require.True(t, result.Success, "%s: %v", result.Message, result.Error)
	assert.Contains(t, result.Message, "vacuumed")

	backups, err := filepath.Glob(dbPath + ".backup.*")
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestDatabaseMaintenanceTask_Disabled(t *testing.T) {
	task := NewDatabaseMaintenanceTask(nil, "", DatabaseConfig{}, nil)
	assert.False(t, task.ShouldRun())
	result := task.Execute(context.Background())
	assert.True(t, result.Success)
}
