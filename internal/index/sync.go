package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/chunker"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vectorstore"
)

// Change kinds.
const (
	KindIndexed = "indexed"
	KindRemoved = "removed"
)

// Change describes one index mutation. Chunks is the number of chunks
// written for KindIndexed and deleted for KindRemoved.
type Change struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Chunks int    `json:"chunks"`
}

// EventCallback is called after each index mutation.
type EventCallback func(Change)

// Report summarises a full synchronization pass.
type Report struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Synchronizer maps vault documents onto chunk entries in the store.
type Synchronizer struct {
	store    Store
	vault    storage.Provider
	maxSize  int
	logger   *slog.Logger
	onChange EventCallback
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithMaxChunkSize sets the chunker's soft size bound.
func WithMaxChunkSize(n int) SyncOption {
	return func(s *Synchronizer) { s.maxSize = n }
}

// WithLogger sets the logger used for per-document failures.
func WithLogger(l *slog.Logger) SyncOption {
	return func(s *Synchronizer) { s.logger = l }
}

// WithCallback registers cb to be called after every index mutation.
func WithCallback(cb EventCallback) SyncOption {
	return func(s *Synchronizer) { s.onChange = cb }
}

// NewSynchronizer creates a Synchronizer writing vault documents into store.
func NewSynchronizer(store Store, vault storage.Provider, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		store:   store,
		vault:   vault,
		maxSize: chunker.DefaultMaxSize,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IndexFile reads, chunks and stores the document at rel, replacing every
// chunk of its previous version. A document that no longer exists, or that
// yields no chunks, is removed from the index. It returns the chunk count.
func (s *Synchronizer) IndexFile(ctx context.Context, rel string) (int, error) {
	data, err := s.vault.Read(rel)
	if err != nil {
		if storage.IsNotExist(err) {
			_, rmErr := s.RemoveFile(ctx, rel)
			return 0, rmErr
		}
		return 0, err
	}
	return s.indexData(ctx, rel, data)
}

func (s *Synchronizer) indexData(ctx context.Context, rel string, data []byte) (int, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("index: parse %s: %w", rel, err)
	}
	chunks := chunker.Split(res.Body, s.maxSize)
	if len(chunks) == 0 {
		_, err := s.RemoveFile(ctx, rel)
		return 0, err
	}

	title := res.Title
	if title == "" {
		title = parser.TitleFromPath(rel)
	}
	entries := make([]vectorstore.Entry, len(chunks))
	for i, text := range chunks {
		entries[i] = vectorstore.Entry{
			ID:       vectorstore.ChunkID(rel, i),
			Seq:      i,
			Text:     text,
			Metadata: vectorstore.Metadata{DocumentPath: rel, Title: title},
		}
	}
	doc := vectorstore.DocumentRecord{Path: rel, Title: title, Checksum: checksum.Sum(data)}
	if err := s.store.ReplaceDocument(ctx, doc, entries); err != nil {
		return 0, fmt.Errorf("index: store %s: %w", rel, err)
	}
	s.logger.Debug("sync: indexed", slog.String("path", rel), slog.Int("chunks", len(entries)))
	s.notify(Change{Kind: KindIndexed, Path: rel, Chunks: len(entries)})
	return len(entries), nil
}

// RemoveFile deletes every chunk whose document path equals rel.
func (s *Synchronizer) RemoveFile(ctx context.Context, rel string) (int64, error) {
	n, err := s.store.DeleteDocument(ctx, rel)
	if err != nil {
		return 0, fmt.Errorf("index: delete %s: %w", rel, err)
	}
	if n > 0 {
		s.logger.Debug("sync: removed", slog.String("path", rel), slog.Int64("chunks", n))
		s.notify(Change{Kind: KindRemoved, Path: rel, Chunks: int(n)})
	}
	return n, nil
}

// RemoveDir deletes every indexed document below the directory rel.
func (s *Synchronizer) RemoveDir(ctx context.Context, rel string) (int, error) {
	docs, err := s.store.Documents(ctx)
	if err != nil {
		return 0, fmt.Errorf("index: list documents: %w", err)
	}
	prefix := strings.TrimSuffix(rel, "/") + "/"
	removed := 0
	for _, p := range sortedKeys(docs) {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if _, err := s.RemoveFile(ctx, p); err != nil {
			s.logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed, nil
}

// SyncAll walks the vault and brings the index up to date:
//   - new/changed documents are chunked and stored (all documents when force is set)
//   - documents removed from disk are deleted from the index
//
// Failures are isolated per document: they are logged, counted in the
// report and never abort the pass.
func (s *Synchronizer) SyncAll(ctx context.Context, force bool) (Report, error) {
	var rep Report
	metas, err := s.vault.List("")
	if err != nil {
		return rep, fmt.Errorf("index: list vault: %w", err)
	}
	checksums, err := s.store.Documents(ctx)
	if err != nil {
		return rep, fmt.Errorf("index: list documents: %w", err)
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		disk[m.Path] = struct{}{}

		if !force && checksums[m.Path] == m.Checksum {
			rep.Skipped++
			continue
		}

		data, err := s.vault.Read(m.Path)
		if err != nil {
			s.logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		if _, err := s.indexData(ctx, m.Path, data); err != nil {
			s.logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		rep.Indexed++
	}

	// Remove stale entries.
	for _, p := range sortedKeys(checksums) {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, err := s.RemoveFile(ctx, p); err != nil {
			s.logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			rep.Failed++
			continue
		}
		rep.Removed++
	}

	s.logger.Info("sync: complete",
		slog.Int("indexed", rep.Indexed),
		slog.Int("skipped", rep.Skipped),
		slog.Int("removed", rep.Removed),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

func (s *Synchronizer) notify(c Change) {
	if s.onChange != nil {
		s.onChange(c)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
