// Package chunker splits document text into sentence-aligned chunks that
// become the unit of indexing and retrieval.
package chunker

import (
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
)

// Segmenter splits text into an ordered sequence of sentences.
type Segmenter interface {
	Segment(text string) []string
}

// UAXSegmenter segments text on Unicode UAX #29 sentence boundaries.
type UAXSegmenter struct{}

// NewUAXSegmenter returns the default segmenter.
func NewUAXSegmenter() *UAXSegmenter {
	return &UAXSegmenter{}
}

// Segment returns the trimmed, non-empty sentences of text in order.
func (UAXSegmenter) Segment(text string) []string {
	var out []string
	iter := sentences.FromString(text)
	for iter.Next() {
		s := strings.TrimSpace(iter.Value())
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
