package compiler

import (
	"bytes"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	openMarker  = []byte("{{")
	closeMarker = []byte("}}")
)

var (
	kindDirective      = ast.NewNodeKind("Directive")
	kindDirectiveBlock = ast.NewNodeKind("DirectiveBlock")
	kindDirectiveHTML  = ast.NewNodeKind("DirectiveHTML")
)

// directiveNode is a directive inside running text.
type directiveNode struct {
	ast.BaseInline
	Index int
}

func (n *directiveNode) Kind() ast.NodeKind { return kindDirective }

func (n *directiveNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Index": strconv.Itoa(n.Index)}, nil)
}

// directiveBlock is a directive that made up a whole paragraph.
type directiveBlock struct {
	ast.BaseBlock
	Index int
}

func (n *directiveBlock) Kind() ast.NodeKind { return kindDirectiveBlock }

func (n *directiveBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Index": strconv.Itoa(n.Index)}, nil)
}

// htmlPiece is raw HTML text, or a directive when index >= 0.
type htmlPiece struct {
	text  []byte
	index int
}

// directiveHTML replaces a raw HTML block that contains directives.
type directiveHTML struct {
	ast.BaseBlock
	Pieces []htmlPiece
}

func (n *directiveHTML) Kind() ast.NodeKind { return kindDirectiveHTML }

func (n *directiveHTML) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Pieces": strconv.Itoa(len(n.Pieces))}, nil)
}

// directiveExtension wires directive parsing and rendering into goldmark.
type directiveExtension struct {
	st   *state
	safe bool
}

func (e *directiveExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(util.Prioritized(&directiveParser{st: e.st}, 100)),
		parser.WithASTTransformers(util.Prioritized(&directiveTransformer{st: e.st}, 100)),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(util.Prioritized(&directiveRenderer{safe: e.safe}, 100)),
	)
}

// directiveParser recognises {{ ... }} in inline content. Code spans are
// consumed by goldmark before this parser sees them, so directives inside
// code stay literal.
type directiveParser struct {
	st *state
}

func (p *directiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (p *directiveParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, seg := block.PeekLine()
	if !bytes.HasPrefix(line, openMarker) {
		return nil
	}
	end := closeIndex(line[len(openMarker):])
	if end < 0 {
		p.st.fail(seg.Start, "unclosed {{")
		return nil
	}
	raw := line[len(openMarker) : len(openMarker)+end]

	idx, ok := p.st.register(raw, seg.Start)
	if !ok {
		return nil
	}
	block.Advance(len(openMarker) + end + len(closeMarker))
	return &directiveNode{Index: idx}
}

// closeIndex returns the offset of the first }} in b that is not inside a
// double-quoted value, or -1.
func closeIndex(b []byte) int {
	inQuote := false
	for i := 0; i < len(b); i++ {
		switch c := b[i]; {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case !inQuote && c == '}' && i+1 < len(b) && b[i+1] == '}':
			return i
		}
	}
	return -1
}

// scanHTML splits one raw HTML line into text and directives. start is the
// line's offset in the source.
func scanHTML(st *state, line []byte, start int, pieces []htmlPiece) ([]htmlPiece, bool) {
	off := 0
	for {
		i := bytes.Index(line[off:], openMarker)
		if i < 0 {
			break
		}
		open := off + i
		end := closeIndex(line[open+len(openMarker):])
		if end < 0 {
			st.fail(start+open, "unclosed {{")
			return nil, false
		}
		raw := line[open+len(openMarker) : open+len(openMarker)+end]
		idx, ok := st.register(raw, start+open)
		if !ok {
			return nil, false
		}
		pieces = append(pieces, htmlPiece{text: line[off:open], index: -1}, htmlPiece{index: idx})
		off = open + len(openMarker) + end + len(closeMarker)
	}
	return append(pieces, htmlPiece{text: line[off:], index: -1}), true
}

// firstDirective returns the first directive node below n, or nil.
func firstDirective(n ast.Node) *directiveNode {
	var found *directiveNode
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if d, ok := c.(*directiveNode); ok && entering {
			found = d
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

// directiveTransformer lifts paragraphs that hold nothing but one directive
// to block level, expands directives in raw HTML blocks, and rejects
// directives where their output could not be placed: image alt text,
// headings and HTML tags. It also reports stray closing markers.
type directiveTransformer struct {
	st *state
}

func (t *directiveTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	var (
		lift []*ast.Paragraph
		raw  = map[*ast.HTMLBlock]*directiveHTML{}
	)

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.CodeSpan:
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			if d := firstDirective(node); d != nil {
				t.st.failLine(t.st.directives[d.Index].Line, "directive inside image alt text")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			if d := firstDirective(node); d != nil {
				t.st.failLine(t.st.directives[d.Index].Line, "directive inside a heading")
			}
		case *ast.RawHTML:
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				if j := bytes.Index(seg.Value(source), openMarker); j >= 0 {
					t.st.fail(seg.Start+j, "directive inside an HTML tag")
				}
			}
		case *ast.HTMLBlock:
			if h := t.expandHTML(node, source); h != nil {
				raw[node] = h
			}
		case *ast.Paragraph:
			if _, ok := node.FirstChild().(*directiveNode); ok && node.ChildCount() == 1 {
				lift = append(lift, node)
			}
		case *ast.Text:
			if i := bytes.Index(node.Segment.Value(source), closeMarker); i >= 0 {
				t.st.fail(node.Segment.Start+i, "}} without matching {{")
			}
		}
		return ast.WalkContinue, nil
	})

	for _, para := range lift {
		inline := para.FirstChild().(*directiveNode)
		parent := para.Parent()
		parent.ReplaceChild(parent, para, &directiveBlock{Index: inline.Index})
	}
	for block, h := range raw {
		parent := block.Parent()
		parent.ReplaceChild(parent, block, h)
	}
}

// expandHTML returns a replacement for block when its lines hold
// directives, or nil.
func (t *directiveTransformer) expandHTML(block *ast.HTMLBlock, source []byte) *directiveHTML {
	segs := make([]text.Segment, 0, block.Lines().Len()+1)
	found := false
	for i := 0; i < block.Lines().Len(); i++ {
		segs = append(segs, block.Lines().At(i))
	}
	if block.HasClosure() {
		segs = append(segs, block.ClosureLine)
	}
	for _, seg := range segs {
		if bytes.Contains(seg.Value(source), openMarker) {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	var pieces []htmlPiece
	for _, seg := range segs {
		var ok bool
		if pieces, ok = scanHTML(t.st, seg.Value(source), seg.Start, pieces); !ok {
			return nil
		}
	}
	return &directiveHTML{Pieces: pieces}
}

// directiveRenderer writes a sentinel per directive; Compile splits the
// output on them.
type directiveRenderer struct {
	safe bool
}

func (r *directiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(kindDirective, r.render)
	reg.Register(kindDirectiveBlock, r.render)
	reg.Register(kindDirectiveHTML, r.render)
}

func (r *directiveRenderer) render(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	switch node := n.(type) {
	case *directiveNode:
		writeSentinel(w, node.Index)
	case *directiveBlock:
		writeSentinel(w, node.Index)
		_ = w.WriteByte('\n')
	case *directiveHTML:
		// Safe mode drops the markup but keeps what the directives generate.
		if r.safe {
			_, _ = w.WriteString("<!-- raw HTML omitted -->\n")
		}
		for _, p := range node.Pieces {
			switch {
			case p.index >= 0:
				writeSentinel(w, p.index)
				if r.safe {
					_ = w.WriteByte('\n')
				}
			case !r.safe:
				_, _ = w.Write(p.text)
			}
		}
	}
	return ast.WalkSkipChildren, nil
}
