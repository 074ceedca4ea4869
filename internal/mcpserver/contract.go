package mcpserver

// AuthoringContract describes the source format that LLM consumers should
// follow when writing pages for a bread site.
const AuthoringContract = `# bread Authoring Contract

Every Markdown file under the source root becomes one page. Any other file
is copied to the output unchanged.

## Structure

` + "```" + `markdown
---
title: Human-readable title   # REQUIRED
date: 2025-01-15              # OPTIONAL - YYYY-MM-DD or RFC 3339; dated pages appear in post lists
tags: [rust, intro]           # OPTIONAL - list or comma-separated string
slug: custom-slug             # OPTIONAL - defaults to the file name
template: post                # OPTIONAL - defaults to "base"
---

Body text in standard Markdown (GitHub flavoured: tables, task lists, strikethrough).
` + "```" + `

## Rules

1. **` + "`" + `title` + "`" + ` is required.** A page without it is left out of the build.
2. **Slugs are unique.** Two pages with the same slug abort the whole build.
3. **Output path** is the source directory plus ` + "`" + `<slug>.html` + "`" + `:
   ` + "`" + `posts/hello.md` + "`" + ` is served at ` + "`" + `/posts/hello.html` + "`" + `.
4. **Tags** are lowercased and trimmed; duplicates collapse.
5. **Unknown frontmatter keys** are kept and exposed to templates as ` + "`" + `.Meta` + "`" + `.

## Directives

A directive sits alone on its own line and is replaced by generated HTML
once every page has been parsed.

- ` + "`" + `{{ post_list }}` + "`" + ` lists dated pages, newest first.
- ` + "`" + `{{ post_list tag=rust limit=5 }}` + "`" + ` filters by tag and caps the list.
  ` + "`" + `limit` + "`" + ` must be a positive integer.
- ` + "`" + `{{ tag_cloud }}` + "`" + ` lists every tag with its page count.

An unknown directive name or parameter excludes the page from the build
and is reported with its line number.

## Example

` + "```" + `markdown
---
title: Blog
---

# Latest posts

{{ post_list limit=10 }}

## Topics

{{ tag_cloud }}
` + "```" + `
`
