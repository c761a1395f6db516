package documents

import (
	"context"
	"log"
	"path/filepath"
)

// Warmer prepares the retrieval index of a freshly stored document.
type Warmer interface {
	Warm(ctx context.Context, documentID string) error
}

// Ingester validates uploads, extracts their text and stores them.
type Ingester struct {
	store     *Store
	extractor *Extractor
	warmer    Warmer
	logger    *log.Logger
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithWarmer builds the document's index right after it is stored.
func WithWarmer(w Warmer) IngesterOption {
	return func(i *Ingester) { i.warmer = w }
}

// WithLogger sets the ingester's logger.
func WithLogger(l *log.Logger) IngesterOption {
	return func(i *Ingester) { i.logger = l }
}

// NewIngester creates an ingester.
func NewIngester(store *Store, extractor *Extractor, opts ...IngesterOption) *Ingester {
	i := &Ingester{store: store, extractor: extractor}
	for _, opt := range opts {
		opt(i)
	}
	if i.extractor == nil {
		i.extractor = NewExtractor(nil)
	}
	if i.logger == nil {
		i.logger = log.Default()
	}
	return i
}

// Ingest extracts the text of an uploaded file and stores it for ownerID. A
// failed warm-up is logged only; the index is built on first query instead.
func (i *Ingester) Ingest(ctx context.Context, ownerID, filename string, data []byte) (*Document, error) {
	title := filepath.Base(filename)
	text, err := i.extractor.Extract(ctx, title, data)
	if err != nil {
		i.logger.Printf("[Ingest] Rejected %q from user %s: %v", title, ownerID, err)
		return nil, err
	}

	doc, err := i.store.Create(ctx, ownerID, title, text)
	if err != nil {
		return nil, err
	}
	i.logger.Printf("[Ingest] Stored document %s (%q, %d bytes)", doc.ID, title, len(text))

	if i.warmer != nil {
		if err := i.warmer.Warm(ctx, doc.ID); err != nil {
			i.logger.Printf("[Ingest] Index warm-up for %s failed: %v", doc.ID, err)
		}
	}
	return doc, nil
}
