package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vectorstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// testEnv sets up a vault dir, storage and vector store.
func testEnv(t *testing.T) (string, *storage.FS, *vectorstore.DB) {
	t.Helper()
	vaultDir := t.TempDir()
	vault, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	dbFile, err := os.CreateTemp("", "ansuz-index-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := vectorstore.Open(dbFile.Name(), embedding.NewHasher(256))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return vaultDir, vault, db
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sources(t *testing.T, db *vectorstore.DB, query string) []string {
	t.Helper()
	matches, err := db.Query(context.Background(), query, 50)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, m := range matches {
		out = append(out, m.Metadata.DocumentPath)
	}
	return out
}

type recorder struct {
	mu      sync.Mutex
	events  []string
	changes []Change
}

func (r *recorder) record(c Change) {
	r.mu.Lock()
	r.events = append(r.events, c.Kind+":"+c.Path)
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func TestIndexFile_ChunkIDsAndMetadata(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	writeFile(t, vaultDir, "notes/plants.md", "# Plants\n\nTomatoes love sun.\n\n## Care\n\nWater daily.")

	s := NewSynchronizer(db, vault, WithLogger(discardLogger()))
	n, err := s.IndexFile(context.Background(), "notes/plants.md")
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if n != 2 {
		t.Fatalf("chunks = %d, want 2", n)
	}

	matches, _ := db.Query(context.Background(), "tomatoes water", 10)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
		if m.Metadata.DocumentPath != "notes/plants.md" {
			t.Errorf("document path = %q", m.Metadata.DocumentPath)
		}
		if m.Metadata.Title != "Plants" {
			t.Errorf("title = %q", m.Metadata.Title)
		}
	}
	sort.Strings(ids)
	if strings.Join(ids, ",") != "notes/plants.md_0,notes/plants.md_1" {
		t.Errorf("ids = %v", ids)
	}
}

func TestIndexFile_ShrinkingDocumentLeavesNoOrphans(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	ctx := context.Background()
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()), WithMaxChunkSize(10))

	writeFile(t, vaultDir, "a.md", "alpha one\n\nbeta two\n\ngamma three")
	if n, _ := s.IndexFile(ctx, "a.md"); n != 3 {
		t.Fatalf("first version chunks = %d, want 3", n)
	}
	writeFile(t, vaultDir, "a.md", "alpha one")
	if n, _ := s.IndexFile(ctx, "a.md"); n != 1 {
		t.Fatalf("second version chunks = %d, want 1", n)
	}
	if c, _ := db.Count(ctx); c != 1 {
		t.Errorf("stored chunks = %d, want 1", c)
	}
}

func TestIndexFile_EmptyDocumentRemoved(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	ctx := context.Background()
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()))

	writeFile(t, vaultDir, "e.md", "some words")
	_, _ = s.IndexFile(ctx, "e.md")
	writeFile(t, vaultDir, "e.md", "   \n\n  ")
	if n, err := s.IndexFile(ctx, "e.md"); err != nil || n != 0 {
		t.Fatalf("IndexFile = %d, %v", n, err)
	}
	docs, _ := db.Documents(ctx)
	if _, ok := docs["e.md"]; ok {
		t.Error("empty document should not be indexed")
	}
}

func TestIndexFile_Idempotent(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	ctx := context.Background()
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()))
	writeFile(t, vaultDir, "i.md", "# Idempotent\n\nrepeatable indexing result")

	_, _ = s.IndexFile(ctx, "i.md")
	first, _ := db.Query(ctx, "repeatable result", 5)
	_, _ = s.IndexFile(ctx, "i.md")
	second, _ := db.Query(ctx, "repeatable result", 5)

	if len(first) != len(second) {
		t.Fatalf("len %d != %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Distance != second[i].Distance {
			t.Errorf("result %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestSyncAll(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	ctx := context.Background()
	rec := &recorder{}
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()), WithCallback(rec.record))

	writeFile(t, vaultDir, "a.md", "# A\n\nfirst")
	writeFile(t, vaultDir, "sub/b.md", "# B\n\nsecond")
	writeFile(t, vaultDir, ".obsidian/c.md", "# hidden")
	writeFile(t, vaultDir, "notes.txt", "ignored")

	rep, err := s.SyncAll(ctx, false)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if rep.Indexed != 2 || rep.Removed != 0 || rep.Failed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if !rec.has("indexed:sub/b.md") {
		t.Errorf("events = %v", rec.events)
	}

	// Unchanged files are skipped; removed files are dropped.
	_ = os.Remove(filepath.Join(vaultDir, "a.md"))
	rep, err = s.SyncAll(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Indexed != 0 || rep.Skipped != 1 || rep.Removed != 1 {
		t.Errorf("second report = %+v", rep)
	}
	if !rec.has("removed:a.md") {
		t.Errorf("events = %v", rec.events)
	}

	// Force re-embeds everything.
	rep, _ = s.SyncAll(ctx, true)
	if rep.Indexed != 1 || rep.Skipped != 0 {
		t.Errorf("forced report = %+v", rep)
	}
}

type failingStore struct {
	Store
	failPath string
}

func (f failingStore) ReplaceDocument(ctx context.Context, doc vectorstore.DocumentRecord, entries []vectorstore.Entry) error {
	if doc.Path == f.failPath {
		return errors.New("disk full")
	}
	return f.Store.ReplaceDocument(ctx, doc, entries)
}

func TestSyncAll_IsolatesFailures(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	writeFile(t, vaultDir, "bad.md", "broken document")
	writeFile(t, vaultDir, "good.md", "healthy document")

	s := NewSynchronizer(failingStore{Store: db, failPath: "bad.md"}, vault, WithLogger(discardLogger()))
	rep, err := s.SyncAll(context.Background(), false)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if rep.Indexed != 1 || rep.Failed != 1 {
		t.Errorf("report = %+v", rep)
	}
	docs, _ := db.Documents(context.Background())
	if _, ok := docs["good.md"]; !ok {
		t.Error("good.md should be indexed despite bad.md failing")
	}
}

func TestSyncAll_SkipsUnreadableDocument(t *testing.T) {
	vaultDir, _, db := testEnv(t)
	vault, err := storage.NewFS(vaultDir, storage.WithLogger(discardLogger()))
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, vaultDir, "good.md", "healthy document")
	if err := os.Symlink(filepath.Join(vaultDir, "gone.md"), filepath.Join(vaultDir, "broken.md")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	s := NewSynchronizer(db, vault, WithLogger(discardLogger()))
	rep, err := s.SyncAll(context.Background(), false)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if rep.Indexed != 1 {
		t.Errorf("report = %+v", rep)
	}
	docs, _ := db.Documents(context.Background())
	if _, ok := docs["good.md"]; !ok {
		t.Error("good.md should be indexed despite broken.md")
	}
}

func TestHandle_Events(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	ctx := context.Background()
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()))

	writeFile(t, vaultDir, "doc.md", "# Title\n\nShort paragraph.")
	s.Handle(ctx, Event{Op: Created, Path: filepath.Join(vaultDir, "doc.md")})
	if got := sources(t, db, "Title"); len(got) == 0 || got[0] != "doc.md" {
		t.Fatalf("sources after create = %v", got)
	}

	writeFile(t, vaultDir, "skip.txt", "Title")
	s.Handle(ctx, Event{Op: Created, Path: filepath.Join(vaultDir, "skip.txt")})

	_ = os.Remove(filepath.Join(vaultDir, "doc.md"))
	s.Handle(ctx, Event{Op: Deleted, Path: filepath.Join(vaultDir, "doc.md")})
	if got := sources(t, db, "Title"); len(got) != 0 {
		t.Fatalf("sources after delete = %v", got)
	}
}

func TestHandle_DirectoryEvents(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	ctx := context.Background()
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()))

	writeFile(t, vaultDir, "proj/x.md", "x content")
	writeFile(t, vaultDir, "proj/deep/y.md", "y content")
	writeFile(t, vaultDir, "project.md", "sibling content")
	s.Handle(ctx, Event{Op: Created, Path: filepath.Join(vaultDir, "proj"), IsDir: true})
	s.Handle(ctx, Event{Op: Created, Path: filepath.Join(vaultDir, "project.md")})

	docs, _ := db.Documents(ctx)
	if len(docs) != 3 {
		t.Fatalf("docs = %v, want 3", docs)
	}

	_ = os.RemoveAll(filepath.Join(vaultDir, "proj"))
	s.Handle(ctx, Event{Op: Deleted, Path: filepath.Join(vaultDir, "proj")})

	docs, _ = db.Documents(ctx)
	if len(docs) != 1 {
		t.Fatalf("docs after dir delete = %v, want only project.md", docs)
	}
	if _, ok := docs["project.md"]; !ok {
		t.Errorf("project.md removed by prefix match")
	}
}

func TestRun_DebouncesPerPath(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	rec := &recorder{}
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()), WithCallback(rec.record))

	writeFile(t, vaultDir, "burst.md", "final content")
	events := make(chan Event, 8)
	abs := filepath.Join(vaultDir, "burst.md")
	for i := 0; i < 5; i++ {
		events <- Event{Op: Modified, Path: abs}
	}
	close(events)

	if err := s.Run(context.Background(), events, DefaultDebounce); err != nil {
		t.Fatal(err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0] != "indexed:burst.md" {
		t.Errorf("events = %v, want a single indexed:burst.md", rec.events)
	}
}

func TestRun_BusyPathDoesNotDelayOthers(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	rec := &recorder{}
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()), WithCallback(rec.record))

	writeFile(t, vaultDir, "busy.md", "edited constantly")
	writeFile(t, vaultDir, "quiet.md", "edited once")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event, 8)
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx, events, 100*time.Millisecond)
		close(done)
	}()

	events <- Event{Op: Modified, Path: filepath.Join(vaultDir, "quiet.md")}
	busy := filepath.Join(vaultDir, "busy.md")
	for i := 0; i < 30; i++ {
		events <- Event{Op: Modified, Path: busy}
		time.Sleep(20 * time.Millisecond)
	}

	if !rec.has("indexed:quiet.md") {
		t.Error("quiet.md not indexed while busy.md kept changing")
	}
	cancel()
	<-done
}

func TestCallback_ReportsChunkCounts(t *testing.T) {
	vaultDir, vault, db := testEnv(t)
	ctx := context.Background()
	rec := &recorder{}
	s := NewSynchronizer(db, vault, WithLogger(discardLogger()), WithCallback(rec.record))

	writeFile(t, vaultDir, "two.md", "intro\n\n# Part\n\nbody")
	if _, err := s.IndexFile(ctx, "two.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RemoveFile(ctx, "two.md"); err != nil {
		t.Fatal(err)
	}
	// Removing an unknown path deletes nothing and reports nothing.
	if _, err := s.RemoveFile(ctx, "never.md"); err != nil {
		t.Fatal(err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []Change{
		{Kind: KindIndexed, Path: "two.md", Chunks: 2},
		{Kind: KindRemoved, Path: "two.md", Chunks: 2},
	}
	if len(rec.changes) != len(want) {
		t.Fatalf("changes = %+v, want %+v", rec.changes, want)
	}
	for i := range want {
		if rec.changes[i] != want[i] {
			t.Errorf("change[%d] = %+v, want %+v", i, rec.changes[i], want[i])
		}
	}
}
