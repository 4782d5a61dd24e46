// Package answer turns a question into a grounded generation request and
// records the exchange in the caller's session.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/conversation"
	"github.com/starford/ansuz/internal/retrieval"
)

// Retriever supplies the passage context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Result, error)
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Response is the outcome of one Answer call. Exactly one of Answer and
// Error is set.
type Response struct {
	Query     string   `json:"query"`
	Answer    string   `json:"answer,omitempty"`
	Error     string   `json:"error,omitempty"`
	Sources   []string `json:"sources"`
	SessionID string   `json:"session_id,omitempty"`
}

// Composer assembles prompts and calls the generator.
type Composer struct {
	retriever Retriever
	generator Generator
	logger    *slog.Logger
}

// New creates a Composer.
func New(r Retriever, g Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{retriever: r, generator: g, logger: logger}
}

// Answer retrieves context for query, generates a reply framed by the
// session's history and appends the new turn on success.
//
// A blank query returns apperr.ErrEmptyQuery before anything else runs.
// A generation failure returns a Response carrying the error message and
// the retrieved sources together with an error wrapping apperr.ErrGeneration;
// the session is left untouched.
func (c *Composer) Answer(ctx context.Context, sess *conversation.Session, query string) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.ErrEmptyQuery
	}
	resp := &Response{Query: query, Sources: []string{}, SessionID: sess.ID()}

	err := sess.Exchange(func(transcript string) (conversation.Turn, error) {
		res, err := c.retriever.Retrieve(ctx, query)
		if err != nil {
			return conversation.Turn{}, err
		}
		resp.Sources = res.Sources

		text, err := c.generator.Generate(ctx, BuildPrompt(transcript, query, res.Context))
		if err != nil {
			resp.Error = err.Error()
			return conversation.Turn{}, fmt.Errorf("%w: %w", apperr.ErrGeneration, err)
		}
		resp.Answer = text
		return conversation.Turn{
			Question: query,
			Answer:   text,
			Sources:  res.Sources,
			At:       time.Now(),
		}, nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrGeneration) {
			c.logger.Warn("answer: generation failed",
				slog.String("session", sess.ID()),
				slog.String("error", resp.Error))
			return resp, err
		}
		return nil, fmt.Errorf("answer: %w", err)
	}
	c.logger.Debug("answer: ok",
		slog.String("session", sess.ID()),
		slog.Int("sources", len(resp.Sources)))
	return resp, nil
}
