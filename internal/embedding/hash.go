package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// DefaultHashDimensions is the bucket count used when none is configured.
const DefaultHashDimensions = 512

var tokenRe = regexp.MustCompile(`\p{L}[\p{L}\p{N}_]*|\p{N}+`)

// Hasher is a local, deterministic bag-of-words embedder.
// Every token is hashed into one of a fixed number of buckets and the vector
// holds per-bucket term counts. Texts sharing vocabulary end up close together,
// which is enough for keyword-grade retrieval without a model server.
type Hasher struct {
	dims      int
	stopwords map[string]struct{}
}

// NewHasher returns a Hasher producing vectors of the given size.
func NewHasher(dims int) *Hasher {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &Hasher{dims: dims, stopwords: defaultStopwords()}
}

// Model identifies the hashing space, including its size.
func (h *Hasher) Model() string { return fmt.Sprintf("hash-%d", h.dims) }

// Dimensions returns the vector size.
func (h *Hasher) Dimensions() int { return h.dims }

// Embed returns term counts per bucket. Text without any token yields a zero vector.
func (h *Hasher) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range h.tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		vec[f.Sum32()%uint32(h.dims)]++
	}
	return vec, nil
}

func (h *Hasher) tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := h.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of",
		"in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been",
		"it", "its", "this", "that", "these", "those", "from", "into", "about", "so",
		"than", "too", "very", "can", "will", "just", "do", "does", "did", "what",
		"which", "who", "how", "i", "you", "me", "my", "we", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
