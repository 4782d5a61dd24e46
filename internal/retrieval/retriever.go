// Package retrieval selects the passages that frame a generation request.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/vectorstore"
)

const (
	DefaultTopK              = 5
	DefaultDistanceThreshold = 1.5
)

// NoMatchContext replaces the passage context when nothing is close enough.
const NoMatchContext = "The query does not closely match any specific file content."

// Querier is the store surface the retriever reads from.
type Querier interface {
	Query(ctx context.Context, text string, k int) ([]vectorstore.Match, error)
}

// Hit is a chunk that passed the distance threshold.
type Hit struct {
	ID       string  `json:"id"`
	Path     string  `json:"path"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// Result is the outcome of one retrieval.
type Result struct {
	Hits    []Hit    `json:"matches"`
	Sources []string `json:"sources"`
	Context string   `json:"context"`
}

// Retriever runs nearest-neighbour queries and filters them by relevance.
type Retriever struct {
	store     Querier
	topK      int
	threshold float64
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets how many neighbours are requested from the store.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithDistanceThreshold sets the exclusive upper bound on accepted distances.
func WithDistanceThreshold(d float64) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.threshold = d
		}
	}
}

// New creates a Retriever over store.
func New(store Querier, opts ...Option) *Retriever {
	r := &Retriever{store: store, topK: DefaultTopK, threshold: DefaultDistanceThreshold}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve returns the top-K store results closer than the threshold, in the
// store's rank order, with their distinct source paths and joined context.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Result, error) {
	return r.RetrieveK(ctx, query, r.topK)
}

// RetrieveK is Retrieve with an explicit neighbour count.
func (r *Retriever) RetrieveK(ctx context.Context, query string, k int) (*Result, error) {
	if k <= 0 {
		k = r.topK
	}
	matches, err := r.store.Query(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query: %w", err)
	}

	res := &Result{Hits: []Hit{}, Sources: []string{}}
	seen := make(map[string]struct{})
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Distance >= r.threshold {
			continue
		}
		res.Hits = append(res.Hits, Hit{
			ID:       m.ID,
			Path:     m.Metadata.DocumentPath,
			Title:    m.Metadata.Title,
			Text:     m.Text,
			Distance: m.Distance,
		})
		texts = append(texts, m.Text)
		if _, ok := seen[m.Metadata.DocumentPath]; !ok {
			seen[m.Metadata.DocumentPath] = struct{}{}
			res.Sources = append(res.Sources, m.Metadata.DocumentPath)
		}
	}

	if len(texts) == 0 {
		res.Context = NoMatchContext
	} else {
		res.Context = strings.Join(texts, "\n\n")
	}
	return res, nil
}
