package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/testutil"
)

func testRuntime(t *testing.T, mutate func(*Config)) (*runtime, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Vault.Path = filepath.Join(dir, "vault")
	cfg.SQLite.Path = filepath.Join(dir, "ansuz.db")
	if mutate != nil {
		mutate(cfg)
	}

	rt, err := bootstrap(&application{
		config:    cfg,
		logOutput: &bytes.Buffer{},
		embedder:  embedding.NewHasher(128),
		generator: &testutil.Generator{Reply: "ok"},
	}, nil)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	t.Cleanup(func() { rt.db.Close() })
	return rt, cfg.Vault.Path
}

func TestBootstrap_InitialSyncHonoursIgnore(t *testing.T) {
	rt, vault := testRuntime(t, nil)
	testutil.WriteFile(t, vault, "notes/a.md", "# A\n\nalpha beta")
	testutil.WriteFile(t, vault, "chats/chat-export-x.md", "## old question")
	testutil.WriteFile(t, vault, "notes/b.txt", "not markdown")

	rt.initialSync(context.Background())

	docs, err := rt.db.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs = %v, want only notes/a.md", docs)
	}
	if _, ok := docs["notes/a.md"]; !ok {
		t.Errorf("docs = %v", docs)
	}
}

func TestBootstrap_RequiresConfig(t *testing.T) {
	if _, err := bootstrap(&application{}, nil); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestHTTPHandler_HealthAndAuth(t *testing.T) {
	rt, _ := testRuntime(t, func(c *Config) {
		c.Auth = AuthConfig{Mode: AuthModeToken, Token: "tok"}
	})
	h := newHTTPHandler(rt.svc, rt.cfg, nil)

	for _, p := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", p, w.Code)
		}
	}

	body, _ := json.Marshal(map[string]string{"query": "alpha"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated query = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated query = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestStartup_EditsDuringScanAreApplied(t *testing.T) {
	rt, vault := testRuntime(t, func(c *Config) {
		c.Sync.Debounce = 20 * time.Millisecond
	})
	testutil.WriteFile(t, vault, "notes/a.md", "# A\n\nalpha")

	g, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	events := rt.startWatcher(ctx, g)
	rt.initialSync(ctx)
	testutil.WriteFile(t, vault, "notes/late.md", "# Late\n\nwritten after the scan listed the vault")
	rt.startSync(ctx, g, events)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		docs, err := rt.db.Documents(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := docs["notes/late.md"]; ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("notes/late.md was not indexed after startup")
}
