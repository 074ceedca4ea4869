package resolver

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/index"
	"github.com/starford/bread/internal/models"
)

func post(slug, title, date string, tags ...string) *models.Document {
	d := &models.Document{
		Path:       slug + ".md",
		Slug:       slug,
		Title:      title,
		Tags:       tags,
		URL:        "/" + slug + ".html",
		OutputPath: slug + ".html",
	}
	if date != "" {
		t, err := time.Parse(time.DateOnly, date)
		if err != nil {
			panic(err)
		}
		d.Date = t
	}
	return d
}

func directive(name string, params map[string]string) *models.Directive {
	return &models.Directive{
		Name:   name,
		Kind:   models.LookupDirective(name),
		Params: params,
		Source: "index.md",
		Line:   4,
	}
}

func page(nodes ...models.Node) *models.Document {
	return &models.Document{Path: "index.md", Slug: "index", Title: "Home", Body: nodes}
}

// site indexes the two-post example plus an undated page.
func site(t *testing.T) *index.SiteIndex {
	t.Helper()
	idx, err := index.Build([]*models.Document{
		post("a", "A", "2025-01-01", "rust"),
		post("b", "B", "2025-02-01", "rust", "intro"),
		post("about", "About", ""),
	}, nil)
	if err != nil {
		t.Fatalf("index.Build: %v", err)
	}
	return idx
}

func resolve(t *testing.T, r *Resolver, d *models.Directive) string {
	t.Helper()
	doc := page(models.Fragment("<p>x</p>\n"), d)
	if err := r.Resolve(doc); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !doc.Body.Resolved() {
		t.Fatal("body still has directives")
	}
	if got := string(doc.Body[0].(models.Fragment)); got != "<p>x</p>\n" {
		t.Errorf("existing fragment changed: %q", got)
	}
	return doc.Body.HTML()
}

func TestPostList_NewestFirst(t *testing.T) {
	html := resolve(t, New(site(t), Options{}), directive("post_list", nil))

	a := strings.Index(html, `data-title="A"`)
	b := strings.Index(html, `data-title="B"`)
	if a < 0 || b < 0 || b > a {
		t.Fatalf("want B before A: %s", html)
	}
	if strings.Contains(html, "About") {
		t.Errorf("undated page listed: %s", html)
	}
	for _, want := range []string{
		`<div class="post-list" data-post-list>`,
		`<a class="post-link" href="/b.html">B</a>`,
		`<time class="post-date" datetime="2025-02-01">2025-02-01</time>`,
		`data-tags="rust intro"`,
		`<span class="tag" data-tag="intro" role="button" tabindex="0">#intro</span>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in %s", want, html)
		}
	}
}

func TestPostList_TagFilter(t *testing.T) {
	html := resolve(t, New(site(t), Options{}), directive("post_list", map[string]string{"tag": "intro"}))
	if !strings.Contains(html, `data-title="B"`) || strings.Contains(html, `data-title="A"`) {
		t.Errorf("tag=intro should list only B: %s", html)
	}
}

func TestPostList_TagIsNormalized(t *testing.T) {
	html := resolve(t, New(site(t), Options{}), directive("post_list", map[string]string{"tag": " Intro "}))
	if !strings.Contains(html, `data-title="B"`) {
		t.Errorf("tag should match case-insensitively: %s", html)
	}
}

func TestPostList_Limit(t *testing.T) {
	html := resolve(t, New(site(t), Options{}), directive("post_list", map[string]string{"limit": "1"}))
	if got := strings.Count(html, "<article"); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
	if !strings.Contains(html, `data-title="B"`) {
		t.Errorf("limit=1 should keep the newest: %s", html)
	}
}

func TestPostList_EmptyIsValid(t *testing.T) {
	html := resolve(t, New(site(t), Options{}), directive("post_list", map[string]string{"tag": "python"}))
	if !strings.Contains(html, `<p class="post-list-empty">No posts found.</p>`) {
		t.Errorf("html = %s", html)
	}
	if !strings.Contains(html, `data-post-list`) {
		t.Errorf("empty listing lost its container: %s", html)
	}
}

func TestPostList_EscapesTitles(t *testing.T) {
	idx, err := index.Build([]*models.Document{post("x", `<b>"Fish" & Chips</b>`, "2025-01-01")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	html := resolve(t, New(idx, Options{}), directive("post_list", nil))
	if strings.Contains(html, "<b>") {
		t.Errorf("title not escaped: %s", html)
	}
}

func TestPostList_DateFormat(t *testing.T) {
	html := resolve(t, New(site(t), Options{DateFormat: "Jan 2, 2006"}), directive("post_list", nil))
	if !strings.Contains(html, `datetime="2025-02-01">Feb 1, 2025</time>`) {
		t.Errorf("html = %s", html)
	}
}

func TestTagCloud(t *testing.T) {
	html := resolve(t, New(site(t), Options{}), directive("tag_cloud", nil))
	intro := strings.Index(html, `data-tag="intro" data-count="1"`)
	rust := strings.Index(html, `data-tag="rust" data-count="2"`)
	if intro < 0 || rust < 0 || intro > rust {
		t.Errorf("html = %s", html)
	}
}

func TestResolve_UnknownDirective(t *testing.T) {
	doc := page(directive("sibling_nav", nil))
	err := New(site(t), Options{}).Resolve(doc)
	var ue *apperr.UnknownDirectiveError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnknownDirectiveError", err)
	}
	if ue.Name != "sibling_nav" || ue.Path != "index.md" || ue.Line != 4 {
		t.Errorf("err = %+v", ue)
	}
	if doc.Body.Resolved() {
		t.Error("body changed on failure")
	}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name    string
		d       *models.Directive
		wantErr bool
	}{
		{"plain", directive("post_list", nil), false},
		{"tag and limit", directive("post_list", map[string]string{"tag": "go", "limit": "5"}), false},
		{"zero limit", directive("post_list", map[string]string{"limit": "0"}), true},
		{"word limit", directive("post_list", map[string]string{"limit": "ten"}), true},
		{"empty tag", directive("post_list", map[string]string{"tag": "  "}), true},
		{"unknown param", directive("post_list", map[string]string{"sort": "asc"}), true},
		{"tag cloud param", directive("tag_cloud", map[string]string{"tag": "go"}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(page(tc.d))
			if tc.wantErr {
				var se *apperr.DirectiveSyntaxError
				if !errors.As(err, &se) {
					t.Fatalf("err = %v, want DirectiveSyntaxError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
		})
	}
}
