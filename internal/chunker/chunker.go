package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkChars is the chunk size threshold used when none is configured.
const DefaultMaxChunkChars = 1600

// Chunker groups sentences into chunks of bounded character length.
type Chunker struct {
	segmenter Segmenter
	maxChars  int
}

// New creates a chunker. A nil segmenter selects the UAX #29 segmenter and a
// non-positive maxChars selects DefaultMaxChunkChars.
func New(segmenter Segmenter, maxChars int) *Chunker {
	if segmenter == nil {
		segmenter = NewUAXSegmenter()
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	return &Chunker{segmenter: segmenter, maxChars: maxChars}
}

// MaxChars returns the configured threshold.
func (c *Chunker) MaxChars() int { return c.maxChars }

// Chunk splits text into chunks. Sentences are accumulated greedily; when
// adding the next sentence would push the accumulated length over the
// threshold, the current chunk is closed first. A sentence longer than the
// threshold ends up alone in its own chunk. Lengths count code points and
// ignore the single spaces used to join sentences.
func (c *Chunker) Chunk(text string) []string {
	return Split(c.segmenter.Segment(text), c.maxChars)
}

// Split applies the chunking policy to an already segmented sentence list.
// Only sentence lengths count toward maxChars, so a chunk of n sentences can
// be up to n-1 characters longer than maxChars once they are joined with
// spaces.
func Split(sentences []string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	var (
		chunks  []string
		current []string
		length  int
	)
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		n := utf8.RuneCountInString(sentence)
		if len(current) > 0 && length+n > maxChars {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = nil, 0
		}
		current = append(current, sentence)
		length += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
