package api

import (
	"github.com/starford/ansuz/internal/answer"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/ragservice"
	"github.com/starford/ansuz/internal/retrieval"
)

// QueryRequest is the request body for asking a question.
type QueryRequest struct {
	Query     string `json:"query" example:"What did I write about tomatoes?" validate:"required"`
	SessionID string `json:"session_id,omitempty" example:"4f1c0d8e-3b4a-4bb0-9d7e-0d1f5c2a9e11"`
}

// QueryResponse is returned by POST /api/query (aliased from the domain layer).
type QueryResponse = answer.Response

// SearchResponse is returned by GET /api/search (aliased from the domain layer).
type SearchResponse = retrieval.Result

// SessionResponse is returned by GET /api/sessions/{id}.
type SessionResponse = ragservice.SessionView

// CreateSessionResponse is returned after a session is created.
type CreateSessionResponse struct {
	SessionID string `json:"session_id" validate:"required"`
}

// ExportResponse is returned after a transcript is written into the vault.
type ExportResponse struct {
	Path string `json:"path" example:"chats/chat-export-2025-01-02T03-04-05.000Z.md" validate:"required"`
}

// ReindexResponse summarises a synchronization pass.
type ReindexResponse = index.Report
