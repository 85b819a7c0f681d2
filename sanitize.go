package purify

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Clean sanitizes an HTML fragment with the NewBuilder default policy
// and returns the sanitized fragment.
func Clean(input string) string {
	doc, err := NewBuilder().Clean(input)
	if err != nil {
		// The default configuration cannot conflict and string input
		// cannot fail to parse.
		return ""
	}
	return doc.String()
}

// CleanText escapes a string so that it stays inert in any HTML
// context, including unquoted attribute values: the markup-significant
// characters and ASCII whitespace become character references.
// Elements are never allowed; the input is not parsed as HTML.
func CleanText(input string) string {
	var sb strings.Builder
	sb.Grow(len(input))
	for _, r := range input {
		switch r {
		case '&':
			sb.WriteString("&amp;")
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '"':
			sb.WriteString("&quot;")
		case '\'':
			sb.WriteString("&#39;")
		case '\t':
			sb.WriteString("&#9;")
		case '\n':
			sb.WriteString("&#10;")
		case '\f':
			sb.WriteString("&#12;")
		case '\r':
			sb.WriteString("&#13;")
		case ' ':
			sb.WriteString("&#32;")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Clean sanitizes an HTML fragment according to the accumulated
// policy. Configuration conflicts are reported as errors wrapping
// ErrPolicy.
func (b *Builder) Clean(input string) (*Document, error) {
	return b.CleanFromReader(strings.NewReader(input))
}

// CleanFromReader sanitizes an HTML fragment read from r. Reader
// errors propagate as-is.
func (b *Builder) CleanFromReader(r io.Reader) (*Document, error) {
	p, err := b.compile()
	if err != nil {
		return nil, err
	}
	root, err := parseBodyFragment(r)
	if err != nil {
		return nil, err
	}
	p.sanitizeTree(root)
	return &Document{root: root}, nil
}

// parseBodyFragment parses input in an HTML body context and reattaches
// the resulting nodes under a synthetic container element.
func parseBodyFragment(r io.Reader) (*html.Node, error) {
	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(r, ctx)
	if err != nil {
		return nil, err
	}
	root := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// frame is one unit of tree-walk work: a detached node and the parent
// it will be appended to if it survives.
type frame struct {
	node   *html.Node
	parent *html.Node
}

// sanitizeTree rewrites the fragment below root in place. The walk is
// an explicit-stack traversal, parent before children, so arbitrarily
// deep input cannot exhaust the goroutine stack: each node is detached
// from its parent, judged, and either reattached (keep), skipped with
// its children promoted to its parent (unwrap), or skipped entirely
// (remove).
func (p *policy) sanitizeTree(root *html.Node) {
	stack := make([]frame, 0, 64)
	pushChildren := func(n, parent *html.Node) {
		var kids []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			kids = append(kids, c)
		}
		for i := len(kids) - 1; i >= 0; i-- {
			n.RemoveChild(kids[i])
			stack = append(stack, frame{node: kids[i], parent: parent})
		}
	}
	pushChildren(root, root)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := f.node

		switch n.Type {
		case html.TextNode:
			f.parent.AppendChild(n)
		case html.CommentNode:
			if !p.stripComments {
				f.parent.AppendChild(n)
			}
		case html.DoctypeNode:
			// never part of a fragment
		case html.ElementNode:
			name := n.Data
			switch {
			case n.Namespace != "":
				// Foreign (SVG/MathML) content is not eligible for the
				// whitelist.
				if p.unwrapForeign {
					pushChildren(n, f.parent)
				}
			case p.isCleanContent(name):
				// element and entire subtree removed
			case p.isKept(name):
				p.sanitizeAttributes(n)
				f.parent.AppendChild(n)
				pushChildren(n, n)
			default:
				// unwrap: the children re-enter the walk against this
				// element's parent
				pushChildren(n, f.parent)
			}
		default:
			pushChildren(n, f.parent)
		}
	}
}

func (p *policy) isKept(name string) bool {
	_, ok := p.tags[name]
	return ok
}

func (p *policy) isCleanContent(name string) bool {
	_, ok := p.cleanContent[name]
	return ok
}

// sanitizeAttributes runs the attribute pipeline on a kept element:
// per-attribute filtering in input order, then rel forcing, id
// prefixing, and unconditional attribute injection.
func (p *policy) sanitizeAttributes(n *html.Node) {
	tag := n.Data
	kept := n.Attr[:0]

	for _, a := range n.Attr {
		if a.Namespace != "" && !p.prefixAllowed(a.Key) {
			continue
		}
		if classes, ok := p.allowedClasses[tag]; ok && a.Key == "class" {
			filtered := filterClassTokens(a.Val, classes)
			if filtered == "" {
				continue
			}
			a.Val = filtered
		} else {
			if !p.attrAllowed(tag, a.Key) {
				continue
			}
			if a.Key == "srcset" {
				v, ok := p.classifySrcset(a.Val)
				if !ok {
					continue
				}
				a.Val = v
			} else if isURLAttr(tag, a.Key) {
				v, ok := p.classifyURL(a.Val)
				if !ok {
					continue
				}
				a.Val = v
			}
			if a.Key == "style" {
				v := p.filterStyle(a.Val)
				if v == "" {
					continue
				}
				a.Val = v
			}
			if values, ok := p.allowedValues(tag, a.Key); ok {
				if _, ok := values[a.Val]; !ok {
					continue
				}
			}
		}
		if p.attrFilter != nil {
			v, ok := p.attrFilter(tag, a.Key, a.Val)
			if !ok {
				continue
			}
			a.Val = v
		}
		kept = append(kept, a)
	}
	n.Attr = kept

	if p.linkRel != "" && tag == "a" {
		setNodeAttr(n, "rel", p.linkRel)
	}
	if p.idPrefix != "" {
		for i, a := range n.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val != "" &&
				!strings.HasPrefix(a.Val, p.idPrefix) {
				n.Attr[i].Val = p.idPrefix + a.Val
			}
		}
	}
	for _, sv := range p.injectedAttrs(tag) {
		setNodeAttr(n, sv.attr, sv.value)
	}
}

func (p *policy) prefixAllowed(attr string) bool {
	for _, pre := range p.genericPrefixes {
		if strings.HasPrefix(attr, pre) {
			return true
		}
	}
	return false
}

// filterClassTokens keeps only whitelisted class tokens, rejoined with
// single spaces.
func filterClassTokens(value string, allowed map[string]struct{}) string {
	var kept []string
	for _, token := range strings.Fields(value) {
		if _, ok := allowed[token]; ok {
			kept = append(kept, token)
		}
	}
	return strings.Join(kept, " ")
}

// setNodeAttr overwrites or appends an attribute; either way the
// attribute ends up last, so injected attributes serialize after the
// surviving input attributes.
func setNodeAttr(n *html.Node, key, val string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = append(attrs, html.Attribute{Key: key, Val: val})
}

// Document is a sanitized HTML fragment. It serializes on demand and
// exposes the underlying parse tree for further processing.
type Document struct {
	root *html.Node
}

// DocumentFromNode wraps an existing tree in a Document. The children
// of n form the fragment. No sanitization is performed.
func DocumentFromNode(n *html.Node) *Document {
	return &Document{root: n}
}

// Node returns the synthetic container element holding the sanitized
// fragment as its children. Mutating the returned tree mutates the
// Document.
func (d *Document) Node() *html.Node {
	return d.root
}

// String serializes the fragment to HTML.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := serializeFragment(&buf, d.root); err != nil {
		// bytes.Buffer cannot fail
		return ""
	}
	return buf.String()
}

// WriteTo serializes the fragment to w, implementing io.WriterTo.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := serializeFragment(cw, d.root)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
