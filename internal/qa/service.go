// Package qa answers questions against a single document. It chunks the
// document, obtains its vector index from the store (building it at most once
// per document at a time), retrieves the closest chunks and hands them to the
// answer generator.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/singleflight"

	"docquery/internal/chunker"
	"docquery/internal/documents"
	"docquery/internal/embedding"
	"docquery/internal/indexstore"
	"docquery/internal/llm"
	"docquery/internal/vectorindex"
)

// DocumentSource resolves document ids to content.
type DocumentSource interface {
	// GetDocument returns documents.ErrNotFound when id is unknown.
	GetDocument(ctx context.Context, id string) (*documents.Document, error)
}

// IndexStore is the part of an index backend the orchestrator needs.
type IndexStore interface {
	Load(ctx context.Context, documentID string) (*vectorindex.Index, error)
	Save(ctx context.Context, documentID string, ix *vectorindex.Index) error
	Touch(ctx context.Context, documentID string) error
}

// Options tunes retrieval.
type Options struct {
	// TopK is the number of chunks passed to the generator.
	TopK int

	// MaxChunkChars bounds chunk length in code points.
	MaxChunkChars int

	// RebuildOnChange rebuilds a stored index whose content hash or embedder
	// no longer matches.
	RebuildOnChange bool

	Index vectorindex.Options
}

// DefaultOptions returns the retrieval defaults.
func DefaultOptions() Options {
	return Options{
		TopK:            vectorindex.DefaultTopK,
		MaxChunkChars:   chunker.DefaultMaxChunkChars,
		RebuildOnChange: true,
	}
}

// NotFoundAnswer is the answer for a document that does not exist.
func NotFoundAnswer(documentID string) string {
	return "No document found with id " + documentID
}

// Service is the QA orchestrator.
type Service struct {
	docs      DocumentSource
	store     IndexStore
	embedder  embedding.Embedder
	generator llm.Generator
	chunker   *chunker.Chunker
	opts      Options
	logger    *log.Logger

	builds singleflight.Group
}

// NewService wires the orchestrator. If logger is nil, log.Default() is used.
func NewService(docs DocumentSource, store IndexStore, emb embedding.Embedder, gen llm.Generator, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = vectorindex.DefaultTopK
	}
	return &Service{
		docs:      docs,
		store:     store,
		embedder:  emb,
		generator: gen,
		chunker:   chunker.New(nil, opts.MaxChunkChars),
		opts:      opts,
		logger:    logger,
	}
}

// Answer answers question from the content of documentID. An unknown
// document yields NotFoundAnswer with a nil error. The document id is used
// as given; blank ids are rejected.
func (s *Service) Answer(ctx context.Context, question, documentID string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", invalid("Question cannot be empty")
	}
	if strings.TrimSpace(documentID) == "" {
		return "", invalid("Document ID is required")
	}

	doc, err := s.docs.GetDocument(ctx, documentID)
	if errors.Is(err, documents.ErrNotFound) {
		s.logger.Printf("[QA] Document %s not found", documentID)
		return NotFoundAnswer(documentID), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch document %s: %w", documentID, err)
	}

	ix, err := s.index(ctx, doc)
	if err != nil {
		return "", err
	}

	hits, err := ix.Query(ctx, s.embedder, question, s.opts.TopK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}

	answer, err := s.generator.Generate(ctx, question, strings.Join(texts, "\n\n"))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %s: %w", ErrUpstreamModel, s.generator.Name(), err)
	}
	return strings.TrimSpace(answer), nil
}

// Warm builds or loads the index of documentID without answering anything.
func (s *Service) Warm(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to fetch document %s: %w", documentID, err)
	}
	_, err = s.index(ctx, doc)
	return err
}

// index returns the document's index, sharing one load-or-build among all
// concurrent callers for the same document. The shared work runs detached
// from the caller so that a cancelled request still leaves a saved index.
func (s *Service) index(ctx context.Context, doc *documents.Document) (*vectorindex.Index, error) {
	ch := s.builds.DoChan(doc.ID, func() (any, error) {
		return s.loadOrBuild(context.WithoutCancel(ctx), doc)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*vectorindex.Index), nil
	}
}

func (s *Service) loadOrBuild(ctx context.Context, doc *documents.Document) (*vectorindex.Index, error) {
	hash := doc.ContentHash
	if hash == "" {
		hash = vectorindex.ContentHash(doc.Content)
	}

	ix, err := s.store.Load(ctx, doc.ID)
	switch {
	case errors.Is(err, indexstore.ErrCorruptIndex):
		s.logger.Printf("[QA] Index for %s is corrupt, rebuilding: %v", doc.ID, err)
		ix = nil
	case err != nil:
		return nil, err
	}

	if ix != nil && s.opts.RebuildOnChange {
		if ix.ContentHash() != hash || ix.Embedder() != s.embedder.Name() {
			s.logger.Printf("[QA] Index for %s is stale (embedder %s), rebuilding", doc.ID, ix.Embedder())
			ix = nil
		}
	}

	if ix != nil {
		if err := s.store.Touch(ctx, doc.ID); err != nil {
			return nil, err
		}
		return ix, nil
	}

	chunks := s.chunker.Chunk(doc.Content)
	ix, err = vectorindex.Build(ctx, s.embedder, vectorindex.Source{
		DocumentID:  doc.ID,
		ContentHash: hash,
		Chunks:      chunks,
	}, s.opts.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: build index for %s: %w", ErrEmbedding, doc.ID, err)
	}

	if err := s.store.Save(ctx, doc.ID, ix); err != nil {
		return nil, err
	}
	s.logger.Printf("[QA] Built index for %s: %d chunks, embedder %s", doc.ID, ix.Len(), ix.Embedder())
	return ix, nil
}
