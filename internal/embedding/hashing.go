package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const defaultHashingDims = 1024

// Compile-time interface check.
var _ Embedder = (*HashingEmbedder)(nil)

// HashingEmbedder is a deterministic, model-free embedder. Terms and adjacent
// term pairs are hashed into a fixed number of signed buckets, weighted by
// term frequency and L2-normalized. It needs no training, so vectors are
// comparable across documents and process restarts.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates a hashing embedder. dims <= 0 selects 1024.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = defaultHashingDims
	}
	return &HashingEmbedder{dims: dims}
}

func (h *HashingEmbedder) Name() string    { return "hashing:" + strconv.Itoa(h.dims) }
func (h *HashingEmbedder) Dimensions() int { return h.dims }

// Embed converts texts to hashed term-frequency vectors.
func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = h.embedOne(text)
	}
	return vectors, nil
}

func (h *HashingEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dims)
	words := tokenize(text)
	if len(words) == 0 {
		return vec
	}

	total := float32(len(words))
	for i, w := range words {
		h.add(vec, w, 1/total)
		if i > 0 {
			// Pairs carry half weight so single terms dominate.
			h.add(vec, words[i-1]+" "+w, 0.5/total)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for j := range vec {
			vec[j] /= n
		}
	}
	return vec
}

func (h *HashingEmbedder) add(vec []float32, term string, weight float32) {
	hasher := fnv.New64a()
	hasher.Write([]byte(term))
	sum := hasher.Sum64()

	bucket := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

// tokenize splits text into lowercase words.
func tokenize(text string) []string {
	var words []string
	var word strings.Builder

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			word.WriteRune(r)
		} else if word.Len() > 0 {
			words = append(words, word.String())
			word.Reset()
		}
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}

	return words
}
