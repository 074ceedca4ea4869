package resolver

import "html/template"

// The class names and data attributes below are read by the browser-side
// filter script. Keep them stable.

var postListTmpl = template.Must(template.New("post_list").Parse(
	`<div class="post-list" data-post-list>
{{- range . }}
<article class="post-item" data-title="{{ .Title }}" data-tags="{{ .TagAttr }}">
<h3><a class="post-link" href="{{ .URL }}">{{ .Title }}</a></h3>
<time class="post-date" datetime="{{ .DateISO }}">{{ .Date }}</time>
{{- if .Tags }}
<div class="post-tags">
{{- range .Tags }}<span class="tag" data-tag="{{ . }}" role="button" tabindex="0">#{{ . }}</span>{{ end -}}
</div>
{{- end }}
</article>
{{- else }}
<p class="post-list-empty">No posts found.</p>
{{- end }}
</div>
`))

var tagCloudTmpl = template.Must(template.New("tag_cloud").Parse(
	`<div class="tag-cloud" data-tag-cloud>
{{- range . }}
<span class="tag" data-tag="{{ .Tag }}" data-count="{{ .Count }}" role="button" tabindex="0">#{{ .Tag }} <small>{{ .Count }}</small></span>
{{- end }}
</div>
`))
