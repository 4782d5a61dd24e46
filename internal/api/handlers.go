package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/ragservice"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *ragservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *ragservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Query handles POST /api/query.
//
//	@Summary		Answer a question from the vault
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequest	true	"Question"
//	@Success		200		{object}	QueryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	QueryResponse
//	@Security		BearerAuth
//	@Router			/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.svc.Ask(r.Context(), req.SessionID, req.Query)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrEmptyQuery):
			writeError(w, http.StatusBadRequest, "query is required")
		case errors.Is(err, apperr.ErrGeneration) && resp != nil:
			writeJSON(w, http.StatusBadGateway, resp)
		default:
			slog.Error("query failed", slog.String("query", req.Query), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Search handles GET /api/search.
//
//	@Summary		Retrieve matching passages without generation
//	@Tags			query
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Neighbours to request"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	res, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Start a conversation
//	@Tags			sessions
//	@Produce		json
//	@Success		201	{object}	CreateSessionResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: h.svc.CreateSession()})
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get the turns of a conversation
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{object}	SessionResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteSession handles DELETE /api/sessions/{id}.
//
//	@Summary		Forget a conversation
//	@Tags			sessions
//	@Param			id	path	string	true	"Session ID"
//	@Success		204	"Session deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportSession handles GET /api/sessions/{id}/export.
//
//	@Summary		Download a conversation as Markdown
//	@Tags			sessions
//	@Produce		text/markdown
//	@Param			id	path		string	true	"Session ID"
//	@Success		200	{string}	string
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/export [get]
func (h *Handler) ExportSession(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.ExportMarkdown(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "export session", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

// SaveExport handles POST /api/sessions/{id}/export.
//
//	@Summary		Save a conversation into the vault
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session ID"
//	@Success		201	{object}	ExportResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/export [post]
func (h *Handler) SaveExport(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.SaveExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "save export", err)
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{Path: path})
}

// Reindex handles POST /api/reindex.
//
//	@Summary		Synchronize the index with the vault
//	@Tags			index
//	@Produce		json
//	@Param			force	query		bool	false	"Re-embed unchanged documents too"
//	@Success		200		{object}	ReindexResponse
//	@Security		BearerAuth
//	@Router			/reindex [post]
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	rep, err := h.svc.Reindex(r.Context(), force)
	if err != nil {
		slog.Error("reindex failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
