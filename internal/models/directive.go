package models

// DirectiveKind enumerates the directives the resolver knows how to expand.
type DirectiveKind int

const (
	DirectiveUnknown DirectiveKind = iota
	DirectivePostList
	DirectiveTagCloud
)

var directiveNames = map[string]DirectiveKind{
	"post_list": DirectivePostList,
	"tag_cloud": DirectiveTagCloud,
}

// LookupDirective maps a directive name to its kind.
func LookupDirective(name string) DirectiveKind {
	return directiveNames[name]
}

// String returns the directive name as written by authors.
func (k DirectiveKind) String() string {
	switch k {
	case DirectivePostList:
		return "post_list"
	case DirectiveTagCloud:
		return "tag_cloud"
	default:
		return "unknown"
	}
}

// Directive is a placeholder in a document body that needs site-wide
// knowledge to expand, written as {{ name key=value }}.
type Directive struct {
	Name   string
	Kind   DirectiveKind
	Params map[string]string
	Source string // document path
	Line   int    // 1-based line in the source file
}

func (*Directive) node() {}
