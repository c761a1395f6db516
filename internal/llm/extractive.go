package llm

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"docquery/internal/chunker"
)

var _ Generator = (*ExtractiveGenerator)(nil)

const defaultMaxSentences = 2

// ExtractiveGenerator answers without a model by returning the context
// sentences that best overlap the question. Overlapping terms are weighted by
// their normalized frequency in the context, and sentence scores are damped
// by the square root of sentence length.
type ExtractiveGenerator struct {
	segmenter    chunker.Segmenter
	maxSentences int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewExtractiveGenerator creates an extractive generator. A nil segmenter
// uses UAX #29 sentence boundaries; maxSentences <= 0 selects 2.
func NewExtractiveGenerator(seg chunker.Segmenter, maxSentences int) *ExtractiveGenerator {
	if seg == nil {
		seg = chunker.NewUAXSegmenter()
	}
	if maxSentences <= 0 {
		maxSentences = defaultMaxSentences
	}
	return &ExtractiveGenerator{
		segmenter:    seg,
		maxSentences: maxSentences,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (g *ExtractiveGenerator) Name() string { return ProviderExtractive }

// Generate returns NoAnswer when no sentence shares a content term with the
// question.
func (g *ExtractiveGenerator) Generate(ctx context.Context, question, docContext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	terms := make(map[string]struct{})
	for _, tok := range g.terms(question) {
		terms[tok] = struct{}{}
	}
	if len(terms) == 0 {
		return NoAnswer, nil
	}

	sentences := g.segmenter.Segment(docContext)
	if len(sentences) == 0 {
		return NoAnswer, nil
	}

	tokenized := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokenized[i] = g.terms(sent)
		for _, tok := range tokenized[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	var ranked []scored
	for i, toks := range tokenized {
		if len(toks) == 0 {
			continue
		}
		score := 0.0
		for _, tok := range toks {
			if _, ok := terms[tok]; ok {
				score += 1 + freq[tok]/maxF
			}
		}
		if score == 0 {
			continue
		}
		ranked = append(ranked, scored{idx: i, score: score / math.Sqrt(float64(len(toks)))})
	}
	if len(ranked) == 0 {
		return NoAnswer, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	n := min(g.maxSentences, len(ranked))
	selected := make([]int, n)
	for i := range n {
		selected[i] = ranked[i].idx
	}
	sort.Ints(selected)

	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// terms returns the lowercased non-stopword tokens of text.
func (g *ExtractiveGenerator) terms(text string) []string {
	all := g.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, tok := range all {
		if _, stop := g.stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such",
		"into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off",
		"own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "do", "does", "did",
		"what", "which", "who", "whom", "whose", "when", "where", "why", "how", "there", "their", "they",
		"has", "have", "had", "i", "you", "he", "she", "we", "me", "my", "your", "our", "his", "her",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
