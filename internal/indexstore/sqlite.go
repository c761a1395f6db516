package indexstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"docquery/internal/vectorindex"
)

// Compile-time interface check.
var _ Backend = (*SQLiteStore)(nil)

// SQLiteStore keeps indexes in the vector_indexes table. The index payload
// and its last access time share a row.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLiteStore wraps a migrated database. The caller owns db.
func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	return &SQLiteStore{db: db, opts: buildOptions(opts)}
}

// Has reports whether an index is stored for documentID.
func (s *SQLiteStore) Has(ctx context.Context, documentID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM vector_indexes WHERE document_id = ?", documentID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", documentID, err)
	}
	return true, nil
}

// Load reads and decodes the stored index.
func (s *SQLiteStore) Load(ctx context.Context, documentID string) (*vectorindex.Index, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM vector_indexes WHERE document_id = ?", documentID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", documentID, err)
	}

	ix, err := vectorindex.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCorruptIndex, documentID, err)
	}
	return ix, nil
}

// Save upserts the index and sets its last access to now in one statement.
func (s *SQLiteStore) Save(ctx context.Context, documentID string, ix *vectorindex.Index) error {
	if documentID == "" {
		return ErrInvalidID
	}
	payload, err := ix.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode index %s: %w", documentID, err)
	}

	now := s.opts.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vector_indexes
			(document_id, content_hash, embedder, chunk_count, payload, size_bytes, created_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			embedder = excluded.embedder,
			chunk_count = excluded.chunk_count,
			payload = excluded.payload,
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at,
			last_access = excluded.last_access`,
		documentID, ix.ContentHash(), ix.Embedder(), ix.Len(),
		payload, len(payload), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save index %s: %w", documentID, err)
	}
	return nil
}

// Delete removes the stored index, if any.
func (s *SQLiteStore) Delete(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM vector_indexes WHERE document_id = ?", documentID,
	); err != nil {
		return fmt.Errorf("failed to delete index %s: %w", documentID, err)
	}
	return nil
}

// Touch updates the last access of an existing index.
func (s *SQLiteStore) Touch(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE vector_indexes SET last_access = ? WHERE document_id = ?",
		s.opts.now().UnixNano(), documentID,
	); err != nil {
		return fmt.Errorf("%w: touch %s: %w", ErrMetadataPersistence, documentID, err)
	}
	return nil
}

// Sweep deletes every index idle for longer than threshold. The delete is a
// single statement, so the row set it reports is exactly the row set removed.
func (s *SQLiteStore) Sweep(ctx context.Context, threshold time.Duration) ([]string, error) {
	// now - last_access > threshold  <=>  last_access < now - threshold
	cutoff := s.opts.now().Add(-threshold).UnixNano()

	rows, err := s.db.QueryContext(ctx,
		"DELETE FROM vector_indexes WHERE last_access < ? RETURNING document_id", cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: sweep: %w", ErrMetadataPersistence, err)
	}
	defer rows.Close()

	var evicted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: sweep: %w", ErrMetadataPersistence, err)
		}
		evicted = append(evicted, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sweep: %w", ErrMetadataPersistence, err)
	}

	sort.Strings(evicted)
	return evicted, nil
}

// List returns every stored index ordered by document id.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT document_id, last_access, size_bytes FROM vector_indexes ORDER BY document_id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			lastAccess int64
		)
		if err := rows.Scan(&e.DocumentID, &lastAccess, &e.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan index entry: %w", err)
		}
		e.LastAccess = time.Unix(0, lastAccess).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close is a no-op; the database belongs to the caller.
func (s *SQLiteStore) Close() error { return nil }
