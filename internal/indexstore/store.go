// Package indexstore persists per-document vector indexes together with
// their last-access times and evicts indexes that have gone unused.
//
// Two backends are provided. SQLiteStore keeps an index and its access time
// in one row, so every mutation is atomic. DirStore keeps one artifact file
// per document plus a JSON metadata file and serializes mutations of both
// behind a single mutex.
package indexstore

import (
	"context"
	"errors"
	"log"
	"time"

	"docquery/internal/vectorindex"
)

var (
	// ErrCorruptIndex is returned by Load when a persisted index exists but
	// cannot be decoded. It also matches vectorindex.ErrCorrupt.
	ErrCorruptIndex = errors.New("indexstore: corrupt index")

	// ErrMetadataPersistence is returned when access metadata could not be
	// written. Index artifacts may already have been changed.
	ErrMetadataPersistence = errors.New("indexstore: metadata persistence failed")

	// ErrInvalidID is returned for an empty document id.
	ErrInvalidID = errors.New("indexstore: invalid document id")
)

// Store maps document ids to persisted indexes.
type Store interface {
	Has(ctx context.Context, documentID string) (bool, error)

	// Load returns (nil, nil) when no index is stored for documentID.
	Load(ctx context.Context, documentID string) (*vectorindex.Index, error)

	// Save atomically replaces the stored index and records an access.
	Save(ctx context.Context, documentID string, ix *vectorindex.Index) error

	// Delete removes the index and its access entry. Missing ids are a no-op.
	Delete(ctx context.Context, documentID string) error
}

// Tracker records index accesses and evicts idle indexes.
type Tracker interface {
	// Touch records an access now. It is a no-op for ids without an index.
	Touch(ctx context.Context, documentID string) error

	// Sweep evicts every index idle for strictly longer than threshold and
	// returns the evicted ids in ascending order.
	Sweep(ctx context.Context, threshold time.Duration) ([]string, error)
}

// Entry describes one stored index.
type Entry struct {
	DocumentID string    `json:"document_id"`
	LastAccess time.Time `json:"last_access"`
	SizeBytes  int64     `json:"size_bytes"`
}

// Backend is a complete index store.
type Backend interface {
	Store
	Tracker

	// List returns all stored indexes ordered by document id.
	List(ctx context.Context) ([]Entry, error)

	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	now    func() time.Time
	logger *log.Logger
}

// WithClock overrides the time source used for access times and sweeps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// expired reports whether an entry last accessed at lastAccess is idle for
// strictly longer than threshold at now.
func expired(now, lastAccess time.Time, threshold time.Duration) bool {
	return now.Sub(lastAccess) > threshold
}
