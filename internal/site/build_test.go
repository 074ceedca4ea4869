package site

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/testutil"
)

var blog = map[string]string{
	"index.md":     "---\ntitle: Home\n---\n# Welcome\n\n{{ post_list }}\n\n## Intro\n\n{{ post_list tag=intro }}\n",
	"posts/a.md":   "---\ntitle: A\ndate: 2025-01-01\ntags: [rust]\n---\nPost A.\n",
	"posts/b.md":   "---\ntitle: B\ndate: 2025-02-01\ntags: [rust, intro]\n---\nPost B.\n",
	"img/logo.svg": "<svg/>",
}

func config(t *testing.T, src string) Config {
	t.Helper()
	return Config{
		Title:  "Test",
		Source: src,
		Output: filepath.Join(t.TempDir(), "public"),
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	src, _ := testutil.TestSource(t, blog)
	cfg := config(t, src)

	rep := Build(context.Background(), cfg)
	require.NoError(t, rep.Err())
	assert.Equal(t, OutcomeSuccess, rep.Outcome)
	assert.Equal(t, 3, rep.Discovered)
	assert.Len(t, rep.Pages, 3)
	assert.Equal(t, []string{"img/logo.svg", "index.html", "posts/a.html", "posts/b.html"}, rep.Written)

	out := testutil.ReadTree(t, cfg.Output)
	assert.Equal(t, "<svg/>", out["img/logo.svg"])

	index := out["index.html"]
	lists := strings.SplitN(index, "<h2", 2)
	require.Len(t, lists, 2)

	all, intro := lists[0], lists[1]
	a := strings.Index(all, `data-title="A"`)
	b := strings.Index(all, `data-title="B"`)
	require.True(t, a > 0 && b > 0, all)
	assert.Less(t, b, a, "B is newer and must come first")
	assert.Contains(t, all, `href="/posts/b.html"`)

	assert.Contains(t, intro, `data-title="B"`)
	assert.NotContains(t, intro, `data-title="A"`)

	assert.Contains(t, out["posts/b.html"], "<p>Post B.</p>")
	assert.Contains(t, out["posts/b.html"], `data-tag="intro"`)
	assert.NotContains(t, index, "{{")
}

func TestBuild_DuplicateSlugWritesNothing(t *testing.T) {
	src, _ := testutil.TestSource(t, map[string]string{
		"one.md": "---\ntitle: One\nslug: same\n---\nx\n",
		"two.md": "---\ntitle: Two\nslug: same\n---\ny\n",
	})
	cfg := config(t, src)

	rep := Build(context.Background(), cfg)
	assert.Equal(t, OutcomeFatal, rep.Outcome)

	var de *apperr.DuplicateSlugError
	require.True(t, errors.As(rep.Fatal, &de), "err = %v", rep.Fatal)
	assert.Equal(t, "same", de.Slug)
	assert.Equal(t, []string{"one.md", "two.md"}, de.Paths)

	_, err := os.Stat(cfg.Output)
	assert.True(t, os.IsNotExist(err), "output root should not be created")
}

func TestBuild_PartialExcludesFailingDocuments(t *testing.T) {
	src, _ := testutil.TestSource(t, map[string]string{
		"index.md":   "---\ntitle: Home\n---\n{{ post_list }}\n",
		"good.md":    "---\ntitle: Good\ndate: 2025-01-01\n---\nok\n",
		"unknown.md": "---\ntitle: Unknown\ndate: 2025-03-01\n---\n{{ sibling_nav }}\n",
		"notitle.md": "---\ndate: 2025-02-01\n---\nno title\n",
		"syntax.md":  "---\ntitle: Syntax\n---\nbroken {{ post_list\n",
	})
	cfg := config(t, src)

	rep := Build(context.Background(), cfg)
	require.NoError(t, rep.Err())
	assert.Equal(t, OutcomePartial, rep.Outcome)
	require.Len(t, rep.Failures, 3)

	assert.Equal(t, "notitle.md", rep.Failures[0].Path)
	var pe *apperr.ParseError
	assert.True(t, errors.As(rep.Failures[0].Err, &pe))

	assert.Equal(t, "syntax.md", rep.Failures[1].Path)
	var se *apperr.DirectiveSyntaxError
	assert.True(t, errors.As(rep.Failures[1].Err, &se))

	assert.Equal(t, "unknown.md", rep.Failures[2].Path)
	var ue *apperr.UnknownDirectiveError
	require.True(t, errors.As(rep.Failures[2].Err, &ue))
	assert.Equal(t, "sibling_nav", ue.Name)
	assert.Equal(t, 5, ue.Line)

	out := testutil.ReadTree(t, cfg.Output)
	assert.Contains(t, out, "good.html")
	assert.NotContains(t, out, "unknown.html")
	assert.NotContains(t, out["index.html"], "Unknown", "excluded documents are not listed")
	assert.Contains(t, out["index.html"], `data-title="Good"`)
}

func TestBuild_WorkerCountDoesNotChangeOutput(t *testing.T) {
	files := map[string]string{
		"index.md":      "---\ntitle: Home\n---\n{{ post_list }}\n\n{{ tag_cloud }}\n",
		"tags.md":       "---\ntitle: Tags\n---\n{{ post_list tag=go limit=3 }}\n",
		"undated.md":    "---\ntitle: Undated\ntags: go\n---\nno date\n",
		"style.css":     "body{}",
		"posts/same.md": "---\ntitle: Same Day\ndate: 2025-05-05\ntags: go\n---\n",
	}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("posts/p%02d.md", i)] = fmt.Sprintf(
			"---\ntitle: Post %d\ndate: 2025-%02d-%02d\ntags: [go, t%d]\n---\nBody %d\n",
			i, 1+i%9, 10+i%10, i%4, i)
	}
	src, _ := testutil.TestSource(t, files)

	serial := config(t, src)
	serial.Workers = 1
	parallel := config(t, src)
	parallel.Workers = 8

	r1 := Build(context.Background(), serial)
	r2 := Build(context.Background(), parallel)
	require.NoError(t, r1.Err())
	require.NoError(t, r2.Err())
	assert.Equal(t, OutcomeSuccess, r1.Outcome)

	assert.Equal(t, testutil.ReadTree(t, serial.Output), testutil.ReadTree(t, parallel.Output))
}

func TestBuild_MissingSourceIsFatal(t *testing.T) {
	cfg := config(t, filepath.Join(t.TempDir(), "nope"))
	rep := Build(context.Background(), cfg)
	assert.Equal(t, OutcomeFatal, rep.Outcome)
	var de *apperr.DiscoveryError
	assert.True(t, errors.As(rep.Fatal, &de))
}

func TestBuild_WriteErrorIsFatal(t *testing.T) {
	src, _ := testutil.TestSource(t, blog)
	cfg := config(t, src)
	require.NoError(t, os.MkdirAll(cfg.Output, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Output, "posts"), []byte("in the way"), 0o644))

	rep := Build(context.Background(), cfg)
	assert.Equal(t, OutcomeFatal, rep.Outcome)
	var we *apperr.WriteError
	require.True(t, errors.As(rep.Fatal, &we), "err = %v", rep.Fatal)
	assert.True(t, strings.HasPrefix(filepath.ToSlash(we.Path), "posts/"), "path = %q", we.Path)
}

func TestBuild_StaticAndTemplates(t *testing.T) {
	src, _ := testutil.TestSource(t, map[string]string{
		"about.md":    "---\ntitle: About\ntemplate: plain\nauthor: Ana\n---\nHi\n",
		"layout.tmpl": "<x>{{ .Title }} by {{ .Meta.author }}</x>",
	})
	static := t.TempDir()
	testutil.WriteTree(t, static, map[string]string{"js/filter.js": "//filter"})
	tmpls := t.TempDir()
	testutil.WriteTree(t, tmpls, map[string]string{"plain.html": "<plain>{{ .Title }}|{{ .Meta.author }}</plain>"})

	cfg := config(t, src)
	cfg.Static = static
	cfg.Templates = tmpls

	rep := Build(context.Background(), cfg)
	require.NoError(t, rep.Err())

	out := testutil.ReadTree(t, cfg.Output)
	assert.Equal(t, "//filter", out["js/filter.js"])
	assert.Equal(t, "<plain>About|Ana</plain>", out["about.html"])
	assert.NotContains(t, out, "layout.tmpl", "templates are not copied as assets")
}

func TestBuild_BrokenTemplateIsFatal(t *testing.T) {
	src, _ := testutil.TestSource(t, map[string]string{
		"a.md":        "---\ntitle: A\n---\n",
		"base.gohtml": "{{ .Title ",
	})
	rep := Build(context.Background(), config(t, src))
	assert.Equal(t, OutcomeFatal, rep.Outcome)
	var te *apperr.TemplateError
	assert.True(t, errors.As(rep.Fatal, &te))
}

func TestBuild_MissingTemplateFailsDocument(t *testing.T) {
	src, _ := testutil.TestSource(t, map[string]string{
		"a.md": "---\ntitle: A\ntemplate: gallery\n---\n",
		"b.md": "---\ntitle: B\n---\n",
	})
	rep := Build(context.Background(), config(t, src))
	assert.Equal(t, OutcomePartial, rep.Outcome)
	require.Len(t, rep.Failures, 1)
	var re *apperr.RenderError
	assert.True(t, errors.As(rep.Failures[0].Err, &re))
}

func TestBuild_PageAssetCollisionIsFatal(t *testing.T) {
	src, _ := testutil.TestSource(t, map[string]string{
		"hello.md":   "---\ntitle: Hello\n---\n",
		"hello.html": "<p>raw</p>",
	})
	rep := Build(context.Background(), config(t, src))
	var pe *apperr.PathCollisionError
	require.True(t, errors.As(rep.Fatal, &pe), "err = %v", rep.Fatal)
	assert.Equal(t, "hello.html", pe.Dest)
}

func TestBuild_Cancelled(t *testing.T) {
	src, _ := testutil.TestSource(t, blog)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := Build(ctx, config(t, src))
	assert.Equal(t, OutcomeFatal, rep.Outcome)
	assert.ErrorIs(t, rep.Fatal, context.Canceled)
}
