// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Echoes catalog tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/echoes/internal/apperr"
	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/models"
	"github.com/starford/echoes/internal/remotesync"
	"github.com/starford/echoes/internal/router"
	"github.com/starford/echoes/internal/textcodec"
)

const formatURI = "echoes://entry-format"

// Server wraps the MCP server with Echoes tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *entryservice.Service
	cred remotesync.Credential
}

// New creates a new MCP server with all Echoes tools registered. cred is used
// by add_entry when a call carries no token of its own.
func New(svc *entryservice.Service, cred remotesync.Credential) *Server {
	s := &Server{svc: svc, cred: cred}

	s.mcp = server.NewMCPServer(
		"Echoes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List catalog entries in display order with a short excerpt."),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("read_entry",
		mcp.WithDescription("Read one entry by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entry id (e.g. my-new-tale)")),
		mcp.WithString("format", mcp.Description("display (default), storage or html")),
	), s.readEntry)

	s.mcp.AddTool(mcp.NewTool("resolve_fragment",
		mcp.WithDescription("Show which view a URL fragment selects: home, admin or an entry."),
		mcp.WithString("fragment", mcp.Description("URL fragment, with or without the leading #")),
	), s.resolveFragment)

	s.mcp.AddTool(mcp.NewTool("add_entry",
		mcp.WithDescription("Append a new entry to the catalog and commit it to remote storage. "+
			"The body MUST follow the entry format. Read it first via the get_entry_format "+
			"tool or the echoes://entry-format resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Entry title; the id is derived from it")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Story text with real line breaks")),
		mcp.WithString("subtitle", mcp.Description("One-line subtitle")),
		mcp.WithString("foreword", mcp.Description("Optional introduction")),
		mcp.WithString("thumbnail_url", mcp.Description("Absolute http(s) image URL")),
		mcp.WithString("token", mcp.Description("Storage token; defaults to the server's token")),
	), s.addEntry)

	s.mcp.AddTool(mcp.NewTool("get_entry_format",
		mcp.WithDescription("Returns the Echoes entry format. "+
			"Call this before adding entries to ensure correct structure."),
	), s.getEntryFormat)

	s.mcp.AddTool(mcp.NewTool("check_thumbnail",
		mcp.WithDescription("Verify that a URL or data URI holds a supported thumbnail image."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or base64 data URI")),
	), s.checkThumbnail)

	// Resource: entry format.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Entry Format",
			mcp.WithResourceDescription("How entries are written, stored and addressed."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readEntryFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// optString returns an optional string argument, or "" when absent.
func optString(req mcp.CallToolRequest, key string) string {
	v, err := req.RequireString(key)
	if err != nil {
		return ""
	}
	return v
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listEntries(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items := s.svc.ListEntries(ctx)
	if len(items) == 0 {
		return mcp.NewToolResultText("catalog is empty"), nil
	}
	return jsonResult(items), nil
}

func (s *Server) readEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.svc.GetEntry(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}

	var body string
	format := optString(req, "format")
	switch format {
	case "display", "":
		body = textcodec.ToDisplay(entry.StoryText)
	case "storage":
		body = entry.StoryText
	case "html":
		body = string(entry.HTML)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format: %s (use display, storage or html)", format)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", entry.Title)
	if entry.Subtitle != "" {
		fmt.Fprintf(&b, "%s\n", entry.Subtitle)
	}
	if entry.Foreword != "" {
		fmt.Fprintf(&b, "\n> %s\n", entry.Foreword)
	}
	fmt.Fprintf(&b, "\n%s\n", body)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) resolveFragment(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fragment := router.Normalize(optString(req, "fragment"))
	return jsonResult(struct {
		Fragment string            `json:"fragment"`
		Route    models.RouteState `json:"route"`
	}{fragment, router.Resolve(fragment, s.svc.Store())}), nil
}

func (s *Server) addEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	draft := models.Draft{
		Title:        title,
		Body:         body,
		Subtitle:     optString(req, "subtitle"),
		Foreword:     optString(req, "foreword"),
		ThumbnailURL: optString(req, "thumbnail_url"),
	}

	cred := remotesync.Credential(optString(req, "token"))
	if cred.Empty() {
		cred = s.cred
	}

	res, err := s.svc.AddEntry(ctx, draft, cred)
	if err != nil {
		return mcp.NewToolResultError(addFailure(err)), nil
	}
	return jsonResult(res), nil
}

func addFailure(err error) string {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		return err.Error()
	case errors.Is(err, apperr.ErrDuplicateIdentifier):
		return "an entry with this title already exists; choose a different title"
	case errors.Is(err, apperr.ErrAuthRequired):
		return "a storage token is required: pass token or start the server with one"
	default:
		return fmt.Sprintf("failed to save entry: %v", err)
	}
}

func (s *Server) getEntryFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(EntryFormatContract), nil
}

func (s *Server) readEntryFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     EntryFormatContract,
		},
	}, nil
}
