package indexstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docquery/internal/vectorindex"
)

// Compile-time interface check.
var _ Backend = (*DirStore)(nil)

const (
	// MetadataFile is the name of the access metadata file in a DirStore.
	MetadataFile = "index_metadata.json"

	artifactExt = ".idx"
)

type metadataRecord struct {
	LastAccess time.Time `json:"last_access"`
}

// DirStore keeps one <id>.idx artifact per document and a JSON file mapping
// document ids to last access times. Artifact renames, deletions and
// metadata writes happen under one mutex, so an id has a metadata entry
// exactly when its artifact exists.
type DirStore struct {
	dir  string
	opts options

	mu   sync.Mutex
	meta map[string]time.Time
}

// NewDirStore opens (creating if needed) an index directory. Metadata
// entries without an artifact are dropped and artifacts without an entry are
// adopted using their modification time.
func NewDirStore(dir string, opts ...Option) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	s := &DirStore{
		dir:  dir,
		opts: buildOptions(opts),
		meta: make(map[string]time.Time),
	}
	if err := s.reconcile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the index directory.
func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) artifactPath(documentID string) string {
	return filepath.Join(s.dir, url.PathEscape(documentID)+artifactExt)
}

func (s *DirStore) metadataPath() string {
	return filepath.Join(s.dir, MetadataFile)
}

func (s *DirStore) reconcile() error {
	data, err := os.ReadFile(s.metadataPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("failed to read index metadata: %w", err)
	default:
		var records map[string]metadataRecord
		if err := json.Unmarshal(data, &records); err != nil {
			s.opts.logger.Printf("[IndexStore] Ignoring unreadable %s: %v", MetadataFile, err)
		}
		for id, rec := range records {
			s.meta[id] = rec.LastAccess
		}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read index directory: %w", err)
	}

	artifacts := make(map[string]bool)
	changed := false
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".tmp-") {
			// Left behind by an interrupted write.
			os.Remove(filepath.Join(s.dir, name))
			continue
		}
		if e.IsDir() || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, artifactExt))
		if err != nil {
			continue
		}
		artifacts[id] = true
		if _, ok := s.meta[id]; !ok {
			info, err := e.Info()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", name, err)
			}
			s.meta[id] = info.ModTime().UTC()
			changed = true
		}
	}
	for id := range s.meta {
		if !artifacts[id] {
			delete(s.meta, id)
			changed = true
		}
	}

	if changed {
		if err := s.persistLocked(); err != nil {
			return err
		}
	}
	return nil
}

// persistLocked writes the metadata file. Callers hold s.mu.
func (s *DirStore) persistLocked() error {
	records := make(map[string]metadataRecord, len(s.meta))
	for id, t := range s.meta {
		records[id] = metadataRecord{LastAccess: t}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataPersistence, err)
	}
	if err := writeFileAtomic(s.dir, s.metadataPath(), data); err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataPersistence, err)
	}
	return nil
}

// writeTemp writes data to a synced temp file in dir and returns its name.
func writeTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// writeFileAtomic writes data to a temp file in dir and renames it over path.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := writeTemp(dir, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Has reports whether an index is stored for documentID.
func (s *DirStore) Has(_ context.Context, documentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.meta[documentID]
	return ok, nil
}

// Load reads and decodes the artifact for documentID. Artifacts are only
// ever replaced by rename, so a reader never sees a partial file.
func (s *DirStore) Load(_ context.Context, documentID string) (*vectorindex.Index, error) {
	if documentID == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.artifactPath(documentID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", documentID, err)
	}

	ix, err := vectorindex.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCorruptIndex, documentID, err)
	}
	return ix, nil
}

// Save writes the artifact to a temp file, then renames it into place and
// records the access under the store mutex.
func (s *DirStore) Save(_ context.Context, documentID string, ix *vectorindex.Index) error {
	if documentID == "" {
		return ErrInvalidID
	}
	data, err := ix.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode index %s: %w", documentID, err)
	}

	tmpName, err := writeTemp(s.dir, data)
	if err != nil {
		return fmt.Errorf("failed to write index %s: %w", documentID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Rename(tmpName, s.artifactPath(documentID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to install index %s: %w", documentID, err)
	}
	s.meta[documentID] = s.opts.now().UTC()
	return s.persistLocked()
}

// Delete removes the artifact and metadata entry for documentID.
func (s *DirStore) Delete(_ context.Context, documentID string) error {
	if documentID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.artifactPath(documentID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete index %s: %w", documentID, err)
	}
	if _, ok := s.meta[documentID]; !ok {
		return nil
	}
	delete(s.meta, documentID)
	return s.persistLocked()
}

// Touch records an access for an existing index and writes the metadata
// file through.
func (s *DirStore) Touch(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta[documentID]; !ok {
		return nil
	}
	s.meta[documentID] = s.opts.now().UTC()
	return s.persistLocked()
}

// Sweep removes the artifacts of idle indexes, drops their entries and then
// persists the metadata once. When that final write fails the evicted ids are
// still returned along with an ErrMetadataPersistence error.
func (s *DirStore) Sweep(_ context.Context, threshold time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	var evicted []string
	for id, lastAccess := range s.meta {
		if !expired(now, lastAccess, threshold) {
			continue
		}
		if err := os.Remove(s.artifactPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			// Keep the entry so the artifact is retried on the next sweep.
			s.opts.logger.Printf("[IndexStore] Failed to remove index %s: %v", id, err)
			continue
		}
		delete(s.meta, id)
		evicted = append(evicted, id)
	}
	if len(evicted) == 0 {
		return nil, nil
	}
	sort.Strings(evicted)

	if err := s.persistLocked(); err != nil {
		return evicted, err
	}
	return evicted, nil
}

// List returns every stored index ordered by document id.
func (s *DirStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.meta))
	for id, lastAccess := range s.meta {
		e := Entry{DocumentID: id, LastAccess: lastAccess}
		if info, err := os.Stat(s.artifactPath(id)); err == nil {
			e.SizeBytes = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocumentID < entries[j].DocumentID })
	return entries, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *DirStore) Close() error { return nil }
