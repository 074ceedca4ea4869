// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes site build tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/siteservice"
)

const contractURI = "bread://authoring-contract"

// Server wraps the MCP server with bread tools.
type Server struct {
	mcp *server.MCPServer
	svc *siteservice.Service
}

// New creates a new MCP server with all bread tools registered.
func New(svc *siteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"bread",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("build_site",
		mcp.WithDescription("Run a full build of the site and return the build report: "+
			"outcome (success, partial or fatal), written pages and per-page failures."),
	), s.buildSite)

	s.mcp.AddTool(mcp.NewTool("get_build_report",
		mcp.WithDescription("Return the record of the most recent build without building."),
	), s.getBuildReport)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List built pages newest first, optionally filtered by tag."),
		mcp.WithString("tag", mcp.Description("Only pages carrying this tag")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of pages (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Number of pages to skip")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read one built page by slug, including its Markdown body."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Page slug, e.g. hello-world")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through built pages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("get_authoring_contract",
		mcp.WithDescription("Returns the source format contract: frontmatter fields and directives. "+
			"Call this before writing pages."),
	), s.getAuthoringContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Authoring Contract",
			mcp.WithResourceDescription("Frontmatter fields and directives understood by the site builder."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) buildSite(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.TryRebuild(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := jsonResult(rep)
	if err == nil && rep.Err() != nil {
		res.IsError = true
	}
	return res, err
}

func (s *Server) getBuildReport(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.svc.LatestBuild(ctx)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultText("no build yet"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, total, err := s.svc.ListPages(ctx, req.GetString("tag", ""), req.GetInt("limit", 0), req.GetInt("offset", 0))
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultText("no build yet"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"pages": pages, "total": total})
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.GetPage(ctx, slug)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError("not found: " + slug), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"page": p, "body": p.Body})
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getAuthoringContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AuthoringContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     AuthoringContract,
		},
	}, nil
}
