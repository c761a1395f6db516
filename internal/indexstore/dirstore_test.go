package indexstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/internal/vectorindex"
)

func TestDirStore_Layout(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := filepath.Join(t.TempDir(), "indexes")

	s, err := NewDirStore(dir, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "doc-1", buildIndex(t, "doc-1")))

	assert.FileExists(t, filepath.Join(dir, "doc-1.idx"))

	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)

	var records map[string]struct {
		LastAccess string `json:"last_access"`
	}
	require.NoError(t, json.Unmarshal(data, &records))
	require.Contains(t, records, "doc-1")

	parsed, err := time.Parse(time.RFC3339Nano, records["doc-1"].LastAccess)
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(parsed))

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDirStore_EscapesIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDirStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "../escape/attempt", buildIndex(t, "x")))
	assert.FileExists(t, filepath.Join(dir, "..%2Fescape%2Fattempt.idx"))

	reopened, err := NewDirStore(dir)
	require.NoError(t, err)
	has, err := reopened.Has(ctx, "../escape/attempt")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDirStore_CorruptArtifact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDirStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "doc-1", buildIndex(t, "doc-1")))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc-1.idx"), []byte("not an index"), 0644))

	ix, err := s.Load(ctx, "doc-1")
	assert.Nil(t, ix)
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.ErrorIs(t, err, vectorindex.ErrCorrupt)

	// Saving again replaces the bad artifact.
	require.NoError(t, s.Save(ctx, "doc-1", buildIndex(t, "doc-1")))
	ix, err = s.Load(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotNil(t, ix)
}

func TestDirStore_ReconcileOnOpen(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := t.TempDir()

	s, err := NewDirStore(dir, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "kept", buildIndex(t, "kept")))
	require.NoError(t, s.Save(ctx, "lost", buildIndex(t, "lost")))

	// An artifact vanished and another appeared without metadata.
	require.NoError(t, os.Remove(filepath.Join(dir, "lost.idx")))
	data, err := buildIndex(t, "orphan").MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.idx"), data, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0644))

	reopened, err := NewDirStore(dir, WithClock(clock.Now))
	require.NoError(t, err)

	entries, err := reopened.List(ctx)
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.DocumentID
	}
	assert.Equal(t, []string{"kept", "orphan"}, ids)
	assert.NoFileExists(t, filepath.Join(dir, ".tmp-123"))

	raw, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"lost"`)
}

func TestDirStore_SweepMetadataFailure(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	dir := t.TempDir()

	s, err := NewDirStore(dir, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "doc-1", buildIndex(t, "doc-1")))

	// Replace the metadata file with a non-empty directory so the final
	// rename fails.
	metaPath := filepath.Join(dir, MetadataFile)
	require.NoError(t, os.Remove(metaPath))
	require.NoError(t, os.MkdirAll(filepath.Join(metaPath, "blocker"), 0755))

	clock.Advance(2 * time.Hour)
	evicted, err := s.Sweep(ctx, time.Hour)
	assert.ErrorIs(t, err, ErrMetadataPersistence)
	assert.Equal(t, []string{"doc-1"}, evicted)
	assert.NoFileExists(t, filepath.Join(dir, "doc-1.idx"))
}

func TestDirStore_InvalidID(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Save(context.Background(), "", buildIndex(t, "x")), ErrInvalidID)
}
