// Package documents stores uploaded documents and extracts their text.
package documents

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document does not exist or is not visible
// to the owner carried by the context.
var ErrNotFound = errors.New("documents: not found")

// Document is one ingested upload.
type Document struct {
	ID          string    `json:"document_id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"document_title"`
	Content     string    `json:"-"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary is the listing view of a document.
type Summary struct {
	ID    string `json:"document_id"`
	Title string `json:"document_title"`
}

type ownerKey struct{}

// WithOwner scopes document lookups made with ctx to ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the owner set by WithOwner.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok
}

// Store persists documents in sqlite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a document store on an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// HashContent returns the hex sha256 of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Create stores a new document owned by ownerID.
func (s *Store) Create(ctx context.Context, ownerID, title, content string) (*Document, error) {
	doc := &Document{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Title:       title,
		Content:     content,
		ContentHash: HashContent(content),
		CreatedAt:   s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, title, content, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OwnerID, doc.Title, doc.Content, doc.ContentHash, doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	return doc, nil
}

// GetDocument returns the document with id. When ctx carries an owner, a
// document belonging to someone else is reported as ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, content, content_hash, created_at
		FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.Content, &doc.ContentHash, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if owner, ok := OwnerFromContext(ctx); ok && owner != doc.OwnerID {
		return nil, ErrNotFound
	}
	return &doc, nil
}

// ListByOwner returns the owner's documents, oldest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title FROM documents
		WHERE owner_id = ?
		ORDER BY created_at, id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}
