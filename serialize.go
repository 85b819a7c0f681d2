package purify

import (
	"bufio"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// voidElements have no content and serialize as a bare start tag: no
// end tag, no self-closing slash.
var voidElements = map[string]struct{}{
	"area": {}, "base": {}, "br": {}, "col": {}, "embed": {},
	"hr": {}, "img": {}, "input": {}, "link": {}, "meta": {},
	"param": {}, "source": {}, "track": {}, "wbr": {},
}

// rawTextElements serialize their text children without entity
// encoding, per the HTML5 serialization algorithm. None are in the
// default policy; they only matter when a policy allows them.
var rawTextElements = map[string]struct{}{
	"iframe": {}, "noembed": {}, "noframes": {}, "noscript": {},
	"plaintext": {}, "script": {}, "style": {}, "xmp": {},
	"textarea": {}, "title": {},
}

// serializeOp is one unit of serializer work: emit a node, or emit the
// end tag of an element whose children have been emitted.
type serializeOp struct {
	node  *html.Node
	close bool
}

// serializeFragment writes the children of root to w as an HTML
// fragment. The traversal uses an explicit stack and the output is
// written incrementally, so deeply nested trees serialize in linear
// time and constant goroutine stack.
func serializeFragment(w io.Writer, root *html.Node) error {
	bw := bufio.NewWriter(w)
	stack := make([]serializeOp, 0, 64)
	for c := root.LastChild; c != nil; c = c.PrevSibling {
		stack = append(stack, serializeOp{node: c})
	}

	for len(stack) > 0 {
		op := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := op.node

		if op.close {
			if _, err := bw.WriteString("</" + n.Data + ">"); err != nil {
				return err
			}
			continue
		}

		switch n.Type {
		case html.TextNode:
			var err error
			if isRawText(n.Parent) {
				_, err = bw.WriteString(n.Data)
			} else {
				err = escapeText(bw, n.Data)
			}
			if err != nil {
				return err
			}
		case html.CommentNode:
			if _, err := bw.WriteString("<!--" + n.Data + "-->"); err != nil {
				return err
			}
		case html.ElementNode:
			if err := writeOpenTag(bw, n); err != nil {
				return err
			}
			if _, void := voidElements[n.Data]; void && n.Namespace == "" {
				continue
			}
			stack = append(stack, serializeOp{node: n, close: true})
			for c := n.LastChild; c != nil; c = c.PrevSibling {
				stack = append(stack, serializeOp{node: c})
			}
		}
	}
	return bw.Flush()
}

func isRawText(parent *html.Node) bool {
	if parent == nil || parent.Type != html.ElementNode || parent.Namespace != "" {
		return false
	}
	_, ok := rawTextElements[parent.Data]
	return ok
}

func writeOpenTag(w *bufio.Writer, n *html.Node) error {
	if err := w.WriteByte('<'); err != nil {
		return err
	}
	if _, err := w.WriteString(n.Data); err != nil {
		return err
	}
	for _, a := range n.Attr {
		if err := w.WriteByte(' '); err != nil {
			return err
		}
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + key
		}
		if _, err := w.WriteString(key); err != nil {
			return err
		}
		if _, err := w.WriteString(`="`); err != nil {
			return err
		}
		if err := escapeAttr(w, a.Val); err != nil {
			return err
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
	}
	return w.WriteByte('>')
}

// escapeText encodes the characters that can open markup in a text
// context.
func escapeText(w *bufio.Writer, s string) error {
	return escape(w, s, textReplacer)
}

// escapeAttr encodes the characters that can break out of a
// double-quoted attribute value, plus "<" for defence against
// non-quote-aware consumers.
func escapeAttr(w *bufio.Writer, s string) error {
	return escape(w, s, attrReplacer)
}

var (
	textReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrReplacer = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;")
)

func escape(w *bufio.Writer, s string, r *strings.Replacer) error {
	_, err := r.WriteString(w, s)
	return err
}
