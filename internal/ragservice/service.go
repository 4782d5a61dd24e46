// Package ragservice coordinates retrieval, answering, sessions and
// re-indexing for the transport layers (HTTP and MCP).
package ragservice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/conversation"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/retrieval"
	"github.com/starford/ansuz/internal/storage"
)

// SessionView is the serialisable state of a conversation.
type SessionView struct {
	SessionID string              `json:"session_id"`
	Turns     []conversation.Turn `json:"turns"`
}

// Service is the application facade used by the API and MCP servers.
type Service struct {
	vault     storage.Provider
	sync      *index.Synchronizer
	retriever *retrieval.Retriever
	composer  *answer.Composer
	sessions  *conversation.Manager

	reindexMu sync.Mutex
	now       func() time.Time
}

// New creates a Service.
func New(vault storage.Provider, sync *index.Synchronizer, retriever *retrieval.Retriever, composer *answer.Composer, sessions *conversation.Manager) *Service {
	return &Service{
		vault:     vault,
		sync:      sync,
		retriever: retriever,
		composer:  composer,
		sessions:  sessions,
		now:       time.Now,
	}
}

// Ask answers query within the session sessionID. An empty id uses the
// default session, so clients that never send an id still keep history.
func (s *Service) Ask(ctx context.Context, sessionID, query string) (*answer.Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.ErrEmptyQuery
	}
	return s.composer.Answer(ctx, s.sessions.GetOrCreate(sessionID), query)
}

// Search runs retrieval without generation. limit ≤ 0 uses the configured top-K.
func (s *Service) Search(ctx context.Context, query string, limit int) (*retrieval.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.ErrEmptyQuery
	}
	return s.retriever.RetrieveK(ctx, query, limit)
}

// CreateSession starts an empty session and returns its id.
func (s *Service) CreateSession() string {
	return s.sessions.Create().ID()
}

// Session returns the turns of session id.
func (s *Service) Session(id string) (*SessionView, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return &SessionView{SessionID: sess.ID(), Turns: sess.Turns()}, nil
}

// DeleteSession forgets session id.
func (s *Service) DeleteSession(id string) error {
	return s.sessions.Delete(id)
}

// ExportMarkdown renders session id as a Markdown transcript.
func (s *Service) ExportMarkdown(id string) (string, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return "", err
	}
	return conversation.Markdown(sess.Turns()), nil
}

// SaveExport writes the transcript of session id into the vault and returns
// the vault-relative path. Sessions without turns return apperr.ErrConflict.
func (s *Service) SaveExport(_ context.Context, id string) (string, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return "", err
	}
	turns := sess.Turns()
	if len(turns) == 0 {
		return "", fmt.Errorf("%w: session has no turns", apperr.ErrConflict)
	}
	path := conversation.ExportPath(s.now())
	if err := s.vault.Write(path, []byte(conversation.Markdown(turns))); err != nil {
		return "", fmt.Errorf("ragservice: write export: %w", err)
	}
	return path, nil
}

// Reindex runs a full synchronization pass. Concurrent calls are serialized.
func (s *Service) Reindex(ctx context.Context, force bool) (index.Report, error) {
	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()
	return s.sync.SyncAll(ctx, force)
}

// ReadDocument returns a parsed vault document.
func (s *Service) ReadDocument(_ context.Context, path string) (*models.Document, error) {
	data, err := s.vault.Read(path)
	if err != nil {
		if storage.IsNotExist(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	title := res.Title
	if title == "" {
		title = parser.TitleFromPath(path)
	}
	return &models.Document{
		Path:        path,
		Title:       title,
		Body:        res.Body,
		Frontmatter: res.Frontmatter,
		Checksum:    checksum.Sum(data),
	}, nil
}

// Documents lists the qualifying documents in the vault.
func (s *Service) Documents(_ context.Context, dir string) ([]models.DocumentMeta, error) {
	return s.vault.List(dir)
}
