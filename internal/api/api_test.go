package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/catalog"
	"github.com/starford/bread/internal/site"
	"github.com/starford/bread/internal/siteservice"
	"github.com/starford/bread/internal/testutil"
)

var blog = map[string]string{
	"index.md":   "---\ntitle: Home\n---\n{{ post_list }}\n",
	"posts/a.md": "---\ntitle: A\ndate: 2025-01-01\ntags: [rust]\n---\nPost A.\n",
	"posts/b.md": "---\ntitle: B\ndate: 2025-02-01\ntags: [rust, intro]\n---\nPost B.\n",
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// testEnv builds a service over a temp source tree and catalog. An empty
// authToken means disabled mode.
func testEnv(t *testing.T, files map[string]string, authToken string) (*siteservice.Service, http.Handler) {
	t.Helper()
	src, _ := testutil.TestSource(t, files)
	b := site.New(site.Config{
		Title:  "Test",
		Source: src,
		Output: filepath.Join(t.TempDir(), "public"),
	}, site.WithLogger(quietLogger()))
	svc := siteservice.New(b, testutil.TestCatalog(t), quietLogger())
	return svc, NewRouter(svc, authToken != "", authToken, nil)
}

func do(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestBuildAndQueryPages(t *testing.T) {
	_, router := testEnv(t, blog, "")

	w := do(t, router, http.MethodPost, "/build", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("build status = %d, body = %s", w.Code, w.Body.String())
	}
	rep := decode[map[string]any](t, w)
	if rep["outcome"] != "success" {
		t.Errorf("outcome = %v, want success", rep["outcome"])
	}

	w = do(t, router, http.MethodGet, "/build", nil)
	status := decode[BuildStatusResponse](t, w)
	if status.Latest == nil || status.Latest.Outcome != "success" || status.Latest.Pages != 3 {
		t.Errorf("latest = %+v", status.Latest)
	}
	if status.Building {
		t.Error("building should be false once the build returned")
	}

	w = do(t, router, http.MethodGet, "/pages?tag=rust", nil)
	list := decode[PageListResponse](t, w)
	if list.Total != 2 || len(list.Pages) != 2 || list.Pages[0].Slug != "b" {
		t.Errorf("pages = %+v", list)
	}

	w = do(t, router, http.MethodGet, "/pages?limit=1&offset=1", nil)
	list = decode[PageListResponse](t, w)
	if list.Total != 3 || len(list.Pages) != 1 || list.Pages[0].Slug != "a" {
		t.Errorf("second page = %+v", list)
	}
}

func TestGetPage_ETag(t *testing.T) {
	_, router := testEnv(t, blog, "")
	do(t, router, http.MethodPost, "/build", nil)

	w := do(t, router, http.MethodGet, "/pages/b", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	page := decode[catalog.PageRow](t, w)
	if page.Source != "posts/b.md" || page.URL != "/posts/b.html" {
		t.Errorf("page = %+v", page)
	}
	etag := w.Header().Get("ETag")
	if etag != `"`+page.Checksum+`"` {
		t.Errorf("ETag = %q, checksum = %q", etag, page.Checksum)
	}

	w = do(t, router, http.MethodGet, "/pages/b", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}

	w = do(t, router, http.MethodGet, "/pages/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing page = %d, want 404", w.Code)
	}
}

func TestSearch(t *testing.T) {
	_, router := testEnv(t, blog, "")
	do(t, router, http.MethodPost, "/build", nil)

	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("no query = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/search?q=Post+B", nil)
	res := decode[SearchResponse](t, w)
	if len(res.Results) != 1 || res.Results[0].Source != "posts/b.md" {
		t.Errorf("results = %+v", res.Results)
	}
}

func TestPostBuild_Auth(t *testing.T) {
	_, router := testEnv(t, blog, "secret")

	if w := do(t, router, http.MethodPost, "/build", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/build", map[string]string{"Authorization": "Bearer nope"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/build", map[string]string{"Authorization": "Bearer secret"}); w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
	// Reads stay open.
	if w := do(t, router, http.MethodGet, "/pages", nil); w.Code != http.StatusOK {
		t.Errorf("read = %d, want 200", w.Code)
	}
}

func TestPostBuild_FatalIsUnprocessable(t *testing.T) {
	_, router := testEnv(t, map[string]string{
		"one.md": "---\ntitle: One\nslug: same\n---\nx\n",
		"two.md": "---\ntitle: Two\nslug: same\n---\ny\n",
	}, "")

	w := do(t, router, http.MethodPost, "/build", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	rep := decode[map[string]any](t, w)
	if fatal, _ := rep["fatal"].(string); !strings.Contains(fatal, "same") {
		t.Errorf("fatal = %q", fatal)
	}
}

type busySite struct {
	Site
}

func (busySite) TryRebuild(context.Context) (*site.Report, error) {
	return nil, apperr.ErrBuilding
}

func TestPostBuild_Conflict(t *testing.T) {
	router := NewRouter(busySite{}, false, "", nil)
	if w := do(t, router, http.MethodPost, "/build", nil); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestBeforeFirstBuild(t *testing.T) {
	src, _ := testutil.TestSource(t, blog)
	b := site.New(site.Config{Source: src, Output: t.TempDir()}, site.WithLogger(quietLogger()))
	router := NewRouter(siteservice.New(b, nil, quietLogger()), false, "", nil)

	w := do(t, router, http.MethodGet, "/pages", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"pages":[]`) {
		t.Errorf("pages = %d %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/build", nil)
	if status := decode[BuildStatusResponse](t, w); status.Latest != nil {
		t.Errorf("latest = %+v, want nil", status.Latest)
	}
}

func TestSiteHandler(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>hi</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := do(t, SiteHandler(dir), http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || w.Body.String() != "<p>hi</p>" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", got)
	}
}
