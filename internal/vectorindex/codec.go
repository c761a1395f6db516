package vectorindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// Serialized layout: a 4-byte magic, one version byte, then a gob-encoded
// wireIndex.
const (
	codecMagic   = "DQIX"
	codecVersion = 1
)

type wireGraph struct {
	Cfg        GraphConfig
	Levels     []int
	Neighbors  [][][]uint32
	EntryPoint int32
	MaxLevel   int
}

type wireIndex struct {
	DocumentID  string
	ContentHash string
	Embedder    string
	Dimensions  int
	Chunks      []string
	Vectors     [][]float32
	CreatedAt   int64
	Graph       *wireGraph
}

// MarshalBinary encodes the index.
func (ix *Index) MarshalBinary() ([]byte, error) {
	w := wireIndex{
		DocumentID:  ix.documentID,
		ContentHash: ix.contentHash,
		Embedder:    ix.embedder,
		Dimensions:  ix.dims,
		Chunks:      ix.chunks,
		Vectors:     ix.vectors,
		CreatedAt:   ix.createdAt.UnixNano(),
	}
	if g := ix.graph; g != nil {
		w.Graph = &wireGraph{
			Cfg:        g.cfg,
			Levels:     g.levels,
			Neighbors:  g.neighbors,
			EntryPoint: g.entryPoint,
			MaxLevel:   g.maxLevel,
		}
	}

	var buf bytes.Buffer
	buf.WriteString(codecMagic)
	buf.WriteByte(codecVersion)
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, WrapError("marshal", err)
	}
	return buf.Bytes(), nil
}

// Decode restores an index produced by MarshalBinary. Any malformed input
// returns an error matching ErrCorrupt.
func Decode(data []byte) (*Index, error) {
	header := len(codecMagic) + 1
	if len(data) < header || string(data[:len(codecMagic)]) != codecMagic {
		return nil, WrapError("decode", fmt.Errorf("%w: bad header", ErrCorrupt))
	}
	if v := data[len(codecMagic)]; v != codecVersion {
		return nil, WrapError("decode", fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v))
	}

	var w wireIndex
	if err := gob.NewDecoder(bytes.NewReader(data[header:])).Decode(&w); err != nil {
		return nil, WrapError("decode", fmt.Errorf("%w: %v", ErrCorrupt, err))
	}
	if err := w.validate(); err != nil {
		return nil, WrapError("decode", fmt.Errorf("%w: %v", ErrCorrupt, err))
	}

	ix := &Index{
		documentID:  w.DocumentID,
		contentHash: w.ContentHash,
		embedder:    w.Embedder,
		dims:        w.Dimensions,
		chunks:      w.Chunks,
		vectors:     w.Vectors,
		createdAt:   time.Unix(0, w.CreatedAt).UTC(),
	}
	if wg := w.Graph; wg != nil {
		ix.graph = &graph{
			cfg:        wg.Cfg,
			vectors:    w.Vectors,
			levels:     wg.Levels,
			neighbors:  wg.Neighbors,
			entryPoint: wg.EntryPoint,
			maxLevel:   wg.MaxLevel,
		}
	}
	return ix, nil
}

func (w *wireIndex) validate() error {
	if len(w.Chunks) != len(w.Vectors) {
		return fmt.Errorf("%d chunks but %d vectors", len(w.Chunks), len(w.Vectors))
	}
	for i, v := range w.Vectors {
		if len(v) != w.Dimensions {
			return fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), w.Dimensions)
		}
	}

	g := w.Graph
	if g == nil {
		return nil
	}
	n := len(w.Vectors)
	if len(g.Levels) != n || len(g.Neighbors) != n {
		return fmt.Errorf("graph has %d nodes, want %d", len(g.Neighbors), n)
	}
	if n == 0 || g.EntryPoint < 0 || int(g.EntryPoint) >= n {
		return fmt.Errorf("graph entry point %d out of range", g.EntryPoint)
	}
	if g.Cfg.M <= 1 || g.Cfg.EfSearch <= 0 {
		return fmt.Errorf("graph config invalid")
	}
	for node, links := range g.Neighbors {
		if len(links) != g.Levels[node]+1 || g.Levels[node] > g.MaxLevel {
			return fmt.Errorf("graph node %d has inconsistent levels", node)
		}
		for _, level := range links {
			for _, to := range level {
				if int(to) >= n {
					return fmt.Errorf("graph node %d links to %d", node, to)
				}
			}
		}
	}
	return nil
}
