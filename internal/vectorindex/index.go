// Package vectorindex implements the per-document similarity index: chunk
// texts, their embedding vectors and an optional HNSW candidate graph.
//
// Ranking is by squared L2 distance, closest first, with ties broken by
// chunk position. Graph candidates are always re-ranked exactly, so an index
// answers the same query the same way before and after serialization.
package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"docquery/internal/embedding"
)

// DefaultTopK is the number of chunks returned when a query asks for k <= 0.
const DefaultTopK = 4

// Options controls how an index is built.
type Options struct {
	// GraphMinChunks is the chunk count from which an HNSW graph is built.
	// Zero disables the graph and keeps search exact. Graph search ranks
	// only the candidates the graph visits, so results are approximate.
	GraphMinChunks int

	Graph GraphConfig
}

// Source is the document content an index is built from.
type Source struct {
	DocumentID  string
	ContentHash string
	Chunks      []string
}

// Hit is one ranked chunk.
type Hit struct {
	Position int
	Text     string
	Distance float32
}

// Index is a read-only similarity index over one document's chunks.
type Index struct {
	documentID  string
	contentHash string
	embedder    string
	dims        int
	chunks      []string
	vectors     [][]float32
	graph       *graph
	createdAt   time.Time
}

// ContentHash returns the hex sha256 of text. Indexes record it so a changed
// document can be detected.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Build embeds every chunk in one call and constructs the index. Any embedder
// failure fails the build; no partial index is returned.
func Build(ctx context.Context, emb embedding.Embedder, src Source, opts Options) (*Index, error) {
	ix := &Index{
		documentID:  src.DocumentID,
		contentHash: src.ContentHash,
		embedder:    emb.Name(),
		dims:        emb.Dimensions(),
		chunks:      append([]string(nil), src.Chunks...),
		createdAt:   time.Now().UTC(),
	}
	if len(src.Chunks) == 0 {
		return ix, nil
	}

	vectors, err := emb.Embed(ctx, src.Chunks)
	if err != nil {
		return nil, WrapError("build", err)
	}
	if len(vectors) != len(src.Chunks) {
		return nil, WrapError("build", fmt.Errorf("%w: want %d, got %d", ErrVectorCount, len(src.Chunks), len(vectors)))
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, WrapError("build", ErrEmptyVectors)
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, WrapError("build", fmt.Errorf("%w: chunk %d has %d, want %d", ErrDimMismatch, i, len(v), dims))
		}
	}
	ix.dims = dims
	ix.vectors = vectors

	if opts.GraphMinChunks > 0 && len(vectors) >= opts.GraphMinChunks {
		ix.graph = buildGraph(vectors, opts.Graph, graphSeed(src.DocumentID))
	}
	return ix, nil
}

// Query embeds question and returns the k nearest chunks.
func (ix *Index) Query(ctx context.Context, emb embedding.Embedder, question string, k int) ([]Hit, error) {
	if len(ix.vectors) == 0 {
		return nil, nil
	}
	vectors, err := emb.Embed(ctx, []string{question})
	if err != nil {
		return nil, WrapError("query", err)
	}
	if len(vectors) != 1 {
		return nil, WrapError("query", fmt.Errorf("%w: want 1, got %d", ErrVectorCount, len(vectors)))
	}
	return ix.Search(vectors[0], k)
}

// Search returns the k chunks nearest to vec, closest first.
func (ix *Index) Search(vec []float32, k int) ([]Hit, error) {
	if len(ix.vectors) == 0 {
		return nil, nil
	}
	if len(vec) != ix.dims {
		return nil, WrapError("search", fmt.Errorf("%w: query has %d, index has %d", ErrDimMismatch, len(vec), ix.dims))
	}
	if k <= 0 {
		k = DefaultTopK
	}

	var items []distItem
	if ix.graph != nil {
		for _, idx := range ix.graph.search(vec, max(ix.graph.cfg.EfSearch, 4*k)) {
			items = append(items, distItem{idx: idx, dist: SquaredL2(vec, ix.vectors[idx])})
		}
	} else {
		items = make([]distItem, len(ix.vectors))
		for i, v := range ix.vectors {
			items[i] = distItem{idx: uint32(i), dist: SquaredL2(vec, v)}
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].less(items[j]) })
	if len(items) > k {
		items = items[:k]
	}

	hits := make([]Hit, len(items))
	for i, it := range items {
		hits[i] = Hit{
			Position: int(it.idx),
			Text:     ix.chunks[it.idx],
			Distance: it.dist,
		}
	}
	return hits, nil
}

func (ix *Index) DocumentID() string   { return ix.documentID }
func (ix *Index) ContentHash() string  { return ix.contentHash }
func (ix *Index) Embedder() string     { return ix.embedder }
func (ix *Index) Dimensions() int      { return ix.dims }
func (ix *Index) Len() int             { return len(ix.chunks) }
func (ix *Index) HasGraph() bool       { return ix.graph != nil }
func (ix *Index) CreatedAt() time.Time { return ix.createdAt }

// Chunks returns a copy of the indexed chunk texts in position order.
func (ix *Index) Chunks() []string {
	return append([]string(nil), ix.chunks...)
}
