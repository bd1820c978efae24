package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/mdnotes/internal/apperr"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Notes   NoteLister
	Reader  NoteReader
	Grammar GrammarChecker // optional; if nil, check_grammar is not registered
}

// NewMCPServer creates an MCP server exposing read-only note tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"mdnotes",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("mdnotes: read stored markdown notes and check their grammar."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_notes",
			mcp.WithDescription("List stored notes, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of notes (default 20, max 100)")),
		),
		mcpListNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("read_note",
			mcp.WithDescription("Return the markdown content of a note."),
			mcp.WithString("id", mcp.Description("Note id"), mcp.Required()),
		),
		mcpReadNote(deps),
	)

	if deps.Grammar != nil {
		s.AddTool(
			mcp.NewTool("check_grammar",
				mcp.WithDescription("Check a note for grammar, spelling and style issues and return the report as JSON."),
				mcp.WithString("id", mcp.Description("Note id"), mcp.Required()),
			),
			mcpCheckGrammar(deps),
		)
	}

	return s
}

func mcpListNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		notes, err := deps.Notes.ListNotes(ctx, limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list notes: %v", err)), nil
		}

		type noteSummary struct {
			ID        string `json:"id"`
			PublicURL string `json:"public_url"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]noteSummary, len(notes))
		for i, n := range notes {
			summaries[i] = noteSummary{
				ID:        n.ID,
				PublicURL: n.PublicURL,
				CreatedAt: n.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal notes: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpReadNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		content, err := deps.Reader.Content(ctx, id)
		if apperr.Is(err, apperr.NotFound) {
			return mcpError(fmt.Sprintf("note %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read note: %v", err)), nil
		}
		return mcpText(content), nil
	}
}

func mcpCheckGrammar(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		report, err := deps.Grammar.Check(ctx, id)
		if apperr.Is(err, apperr.NotFound) {
			return mcpError(fmt.Sprintf("note %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("grammar check failed: %v", err)), nil
		}

		b, err := json.Marshal(report)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
