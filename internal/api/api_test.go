package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/conversation"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/ragservice"
	"github.com/starford/ansuz/internal/retrieval"
	"github.com/starford/ansuz/internal/testutil"
)

type env struct {
	router   http.Handler
	gen      *testutil.Generator
	vaultDir string
	svc      *ragservice.Service
}

// testEnv sets up a temp vault, vector store, service and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) *env {
	t.Helper()
	vaultDir, vault := testutil.TestVault(t)
	db := testutil.TestStore(t)
	gen := &testutil.Generator{Reply: "It needs sun."}

	syncer := index.NewSynchronizer(db, vault, index.WithLogger(testutil.Logger()))
	retriever := retrieval.New(db)
	svc := ragservice.New(vault, syncer, retriever, answer.New(retriever, gen, testutil.Logger()), conversation.NewManager(0))

	testutil.WriteFile(t, vaultDir, "garden/tomatoes.md", "# Tomatoes\n\nTomatoes need full sun and warm soil.")
	testutil.WriteFile(t, vaultDir, "car.md", "# Car\n\nChange the engine oil yearly.")
	if _, err := syncer.SyncAll(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	return &env{
		router:   NewRouter(svc, authToken != "", authToken, sseHandler),
		gen:      gen,
		vaultDir: vaultDir,
		svc:      svc,
	}
}

func (e *env) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestQuery_Success(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/query", QueryRequest{Query: "how much sun do tomatoes need"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Answer != "It needs sun." || resp.Query != "how much sun do tomatoes need" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Sources) == 0 || resp.Sources[0] != "garden/tomatoes.md" {
		t.Errorf("sources = %v", resp.Sources)
	}
	if resp.SessionID == "" {
		t.Error("expected a session id")
	}

	// Follow-up in the same session carries history.
	w = e.do(t, http.MethodPost, "/query", QueryRequest{Query: "and soil?", SessionID: resp.SessionID})
	if w.Code != http.StatusOK {
		t.Fatalf("follow-up status = %d", w.Code)
	}
	if !strings.Contains(e.gen.Prompts[1], "Human: how much sun do tomatoes need\nAssistant: It needs sun.") {
		t.Errorf("second prompt lacks history:\n%s", e.gen.Prompts[1])
	}
}

func TestQuery_MissingQuery(t *testing.T) {
	e := testEnv(t, "")

	for _, body := range []any{map[string]string{}, QueryRequest{Query: "   "}, "not json"} {
		w := e.do(t, http.MethodPost, "/query", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: status = %d, want 400", body, w.Code)
		}
		var er errResponse
		_ = json.Unmarshal(w.Body.Bytes(), &er)
		if er.Error == "" {
			t.Errorf("body %v: missing error message", body)
		}
	}
	if e.gen.Calls() != 0 {
		t.Error("generator called for invalid requests")
	}
}

func TestQuery_MissingQueryKeepsHistory(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/query", QueryRequest{Query: "tomatoes sun"})
	var first QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	for _, body := range []any{
		QueryRequest{Query: "", SessionID: first.SessionID},
		QueryRequest{Query: "  ", SessionID: first.SessionID},
	} {
		if w := e.do(t, http.MethodPost, "/query", body); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	}

	view, err := e.svc.Session(first.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Turns) != 1 || view.Turns[0].Question != "tomatoes sun" {
		t.Errorf("turns = %+v", view.Turns)
	}
	if e.gen.Calls() != 1 {
		t.Errorf("generator calls = %d, want 1", e.gen.Calls())
	}
}

func TestQuery_WithoutSessionIDKeepsHistory(t *testing.T) {
	e := testEnv(t, "")

	var ids []string
	for _, q := range []string{"how much sun do tomatoes need", "and the soil?"} {
		w := e.do(t, http.MethodPost, "/query", map[string]string{"query": q})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp QueryResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		ids = append(ids, resp.SessionID)
	}

	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("session ids = %v, want one shared session", ids)
	}
	if !strings.Contains(e.gen.Prompts[1], "Human: how much sun do tomatoes need\nAssistant: It needs sun.") {
		t.Errorf("second prompt lacks history:\n%s", e.gen.Prompts[1])
	}
}

func TestQuery_GenerationFailure(t *testing.T) {
	e := testEnv(t, "")
	e.gen.Err = errors.New("model overloaded")

	w := e.do(t, http.MethodPost, "/query", QueryRequest{Query: "tomatoes sun"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var resp QueryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "model overloaded" || resp.Query != "tomatoes sun" || len(resp.Sources) == 0 {
		t.Errorf("resp = %+v", resp)
	}

	view, err := e.svc.Session(resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Turns) != 0 {
		t.Errorf("failed turn recorded: %+v", view.Turns)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodGet, "/search?q=engine+oil&limit=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if len(res.Hits) == 0 || res.Hits[0].Path != "car.md" || res.Hits[0].Title != "Car" {
		t.Errorf("hits = %+v", res.Hits)
	}

	w = e.do(t, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(t, http.MethodPost, "/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var created CreateSessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	// Saving an empty session conflicts.
	if w := e.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/export", nil); w.Code != http.StatusConflict {
		t.Errorf("empty export = %d, want 409", w.Code)
	}

	e.do(t, http.MethodPost, "/query", QueryRequest{Query: "tomatoes", SessionID: created.SessionID})

	w = e.do(t, http.MethodGet, "/sessions/"+created.SessionID, nil)
	var view SessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &view)
	if w.Code != http.StatusOK || len(view.Turns) != 1 || view.Turns[0].Question != "tomatoes" {
		t.Fatalf("get = %d %+v", w.Code, view)
	}

	w = e.do(t, http.MethodGet, "/sessions/"+created.SessionID+"/export", nil)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "## tomatoes") {
		t.Errorf("export = %q", w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/sessions/"+created.SessionID+"/export", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("save export = %d, body = %s", w.Code, w.Body.String())
	}
	var exp ExportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &exp)
	if !strings.HasPrefix(exp.Path, "chats/chat-export-") {
		t.Errorf("export path = %q", exp.Path)
	}

	if w := e.do(t, http.MethodDelete, "/sessions/"+created.SessionID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/sessions/"+created.SessionID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestReindexEndpoint(t *testing.T) {
	e := testEnv(t, "")
	testutil.WriteFile(t, e.vaultDir, "new.md", "# New\n\nfresh")

	w := e.do(t, http.MethodPost, "/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rep ReindexResponse
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Indexed != 1 || rep.Skipped != 2 {
		t.Errorf("report = %+v", rep)
	}

	w = e.do(t, http.MethodPost, "/reindex?force=true", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Indexed != 3 {
		t.Errorf("forced report = %+v", rep)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")

	body, _ := json.Marshal(QueryRequest{Query: "tomatoes"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed query = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")

	w := e.do(t, http.MethodPost, "/sessions", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithSSE(t, "secret", sseStub)

	w := e.do(t, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithSSE(t, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
