package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bread/internal/site"
	"github.com/starford/bread/internal/siteservice"
	"github.com/starford/bread/internal/testutil"
)

func testServer(t *testing.T, files map[string]string) *Server {
	t.Helper()
	src, _ := testutil.TestSource(t, files)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	b := site.New(site.Config{
		Source: src,
		Output: filepath.Join(t.TempDir(), "public"),
	}, site.WithLogger(logger))
	return New(siteservice.New(b, testutil.TestCatalog(t), logger), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process call helper, so dispatch to the handlers.
	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "build_site":
		result, err = srv.buildSite(ctx, req)
	case "get_build_report":
		result, err = srv.getBuildReport(ctx, req)
	case "list_pages":
		result, err = srv.listPages(ctx, req)
	case "read_page":
		result, err = srv.readPage(ctx, req)
	case "search_pages":
		result, err = srv.searchPages(ctx, req)
	case "get_authoring_contract":
		result, err = srv.getAuthoringContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

var blog = map[string]string{
	"index.md":     "---\ntitle: Home\n---\n{{ post_list }}\n",
	"posts/a.md":   "---\ntitle: A\ndate: 2025-01-01\ntags: [rust]\n---\nPost A.\n",
	"posts/b.md":   "---\ntitle: B\ndate: 2025-02-01\ntags: [intro]\n---\nPost B.\n",
	"posts/bad.md": "no frontmatter here\n",
}

func TestBuildSiteAndReport(t *testing.T) {
	srv := testServer(t, blog)

	if text := resultText(callTool(t, srv, "get_build_report", nil)); text != "no build yet" {
		t.Errorf("report before build = %q", text)
	}

	r := callTool(t, srv, "build_site", nil)
	if r.IsError {
		t.Fatalf("build_site error: %s", resultText(r))
	}
	var rep struct {
		Outcome  string `json:"outcome"`
		Failures []struct {
			Path string `json:"path"`
		} `json:"failures"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Outcome != "partial" || len(rep.Failures) != 1 || rep.Failures[0].Path != "posts/bad.md" {
		t.Errorf("report = %+v", rep)
	}

	text := resultText(callTool(t, srv, "get_build_report", nil))
	if !strings.Contains(text, `"outcome": "partial"`) {
		t.Errorf("latest build = %s", text)
	}
}

func TestBuildSiteFatal(t *testing.T) {
	srv := testServer(t, map[string]string{
		"one.md": "---\ntitle: One\nslug: same\n---\n",
		"two.md": "---\ntitle: Two\nslug: same\n---\n",
	})
	r := callTool(t, srv, "build_site", nil)
	if !r.IsError {
		t.Error("expected error result for a fatal build")
	}
	if !strings.Contains(resultText(r), "duplicate slug") {
		t.Errorf("result = %s", resultText(r))
	}
}

func TestListAndReadPages(t *testing.T) {
	srv := testServer(t, blog)
	callTool(t, srv, "build_site", nil)

	text := resultText(callTool(t, srv, "list_pages", map[string]any{"tag": "rust"}))
	var list struct {
		Pages []struct {
			Slug string `json:"slug"`
		} `json:"pages"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Pages[0].Slug != "a" {
		t.Errorf("list = %+v", list)
	}

	text = resultText(callTool(t, srv, "read_page", map[string]any{"slug": "b"}))
	if !strings.Contains(text, `"body": "Post B.`) {
		t.Errorf("read_page = %s", text)
	}

	r := callTool(t, srv, "read_page", map[string]any{"slug": "nope"})
	if !r.IsError {
		t.Error("expected error for missing page")
	}
	r = callTool(t, srv, "read_page", map[string]any{})
	if !r.IsError {
		t.Error("expected error when slug is missing")
	}
}

func TestSearchPages(t *testing.T) {
	srv := testServer(t, blog)
	callTool(t, srv, "build_site", nil)

	text := resultText(callTool(t, srv, "search_pages", map[string]any{"query": "Post B"}))
	if !strings.Contains(text, "posts/b.md") || strings.Contains(text, "posts/a.md") {
		t.Errorf("search = %s", text)
	}
}

func TestAuthoringContract(t *testing.T) {
	srv := testServer(t, blog)
	text := resultText(callTool(t, srv, "get_authoring_contract", nil))
	for _, want := range []string{"title", "post_list", "tag_cloud"} {
		if !strings.Contains(text, want) {
			t.Errorf("contract misses %q", want)
		}
	}

	res, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if tc, ok := res[0].(mcp.TextResourceContents); !ok || tc.URI != contractURI {
		t.Errorf("resource = %+v", res)
	}
}
