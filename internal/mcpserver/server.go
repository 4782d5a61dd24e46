// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/ragservice"
)

const usageURI = "ansuz://usage"

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp *server.MCPServer
	svc *ragservice.Service
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *ragservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the vault, keeping conversation context. "+
			"Returns the answer, the source document paths and the session id."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("session_id", mcp.Description("Conversation to continue (omit for the default conversation)")),
	), s.ask)

	s.mcp.AddTool(mcp.NewTool("search_vault",
		mcp.WithDescription("Retrieve the vault passages closest to a query, without generating an answer."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Number of neighbours to request (default: configured top-K)")),
	), s.searchVault)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the body of a Markdown document in the vault."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. folder/note.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all indexable documents or those in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Synchronize the vector index with the vault and report what changed."),
		mcp.WithBoolean("force", mcp.Description("Re-embed documents even when their content is unchanged")),
	), s.reindex)

	s.mcp.AddResource(
		mcp.NewResource(usageURI, "Ansuz Usage Guide",
			mcp.WithResourceDescription("How the Ansuz tools work together."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readUsageResource,
	)

	return s
}

// Serve speaks MCP over the given streams until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	resp, err := s.svc.Ask(ctx, req.GetString("session_id", ""), query)
	if err != nil {
		if errors.Is(err, apperr.ErrGeneration) && resp != nil {
			return mcp.NewToolResultError(fmt.Sprintf("generation failed: %s", resp.Error)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp), nil
}

func (s *Server) searchVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Search(ctx, query, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.ReadDocument(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(doc.Body), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.svc.Documents(ctx, req.GetString("folder", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) reindex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Reindex(ctx, req.GetBool("force", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep), nil
}

func (s *Server) readUsageResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      usageURI,
			MIMEType: "text/markdown",
			Text:     UsageGuide,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}
