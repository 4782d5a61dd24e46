package vectorstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// MaxDistance is the largest squared L2 distance between two unit vectors.
const MaxDistance = 4.0

// Match is a stored entry with its distance to the query. Smaller is closer.
type Match struct {
	Entry
	Distance float64
}

// Store is the subset of DB used by the synchronizer and the retriever.
type Store interface {
	ReplaceDocument(ctx context.Context, doc DocumentRecord, entries []Entry) error
	DeleteDocument(ctx context.Context, path string) (int64, error)
	Documents(ctx context.Context) (map[string]string, error)
	Query(ctx context.Context, text string, k int) ([]Match, error)
}

var _ Store = (*DB)(nil)

// Query embeds text and returns up to k nearest chunks ordered by ascending
// distance, ties broken by id. The distance is the squared Euclidean distance
// between unit-normalized vectors, in [0, MaxDistance].
func (db *DB) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := db.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	q := normalize(vec)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT c.id, c.seq, c.text, c.document_path, COALESCE(d.title, ''), c.embedding
		FROM chunks c
		LEFT JOIN documents d ON d.path = c.document_path
	`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			blob []byte
		)
		if err := rows.Scan(&m.ID, &m.Seq, &m.Text, &m.Metadata.DocumentPath, &m.Metadata.Title, &blob); err != nil {
			return nil, fmt.Errorf("vectorstore: scan chunk: %w", err)
		}
		m.Distance = distance(q, decodeVector(blob))
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// distance returns the squared L2 distance. Zero vectors and mismatched
// dimensions are treated as unrelated.
func distance(a, b []float32) float64 {
	if len(a) != len(b) || isZero(a) || isZero(b) {
		return MaxDistance
	}
	var d float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		d += diff * diff
	}
	return d
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
