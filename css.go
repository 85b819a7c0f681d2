package purify

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// safeStyleProperties is the fixed whitelist of CSS properties a style
// attribute may carry: color, font, text, box, and table properties
// that cannot reach the network. The url() form is still permitted in
// the background and list-style families because every url token is
// routed through the URL classifier before it is kept.
var safeStyleProperties = map[string]struct{}{
	"background":            {},
	"background-color":      {},
	"background-image":      {},
	"background-position":   {},
	"background-repeat":     {},
	"background-size":       {},
	"border":                {},
	"border-bottom":         {},
	"border-bottom-color":   {},
	"border-bottom-style":   {},
	"border-bottom-width":   {},
	"border-collapse":       {},
	"border-color":          {},
	"border-left":           {},
	"border-left-color":     {},
	"border-left-style":     {},
	"border-left-width":     {},
	"border-radius":         {},
	"border-right":          {},
	"border-right-color":    {},
	"border-right-style":    {},
	"border-right-width":    {},
	"border-spacing":        {},
	"border-style":          {},
	"border-top":            {},
	"border-top-color":      {},
	"border-top-style":      {},
	"border-top-width":      {},
	"border-width":          {},
	"caption-side":          {},
	"clear":                 {},
	"color":                 {},
	"direction":             {},
	"empty-cells":           {},
	"float":                 {},
	"font":                  {},
	"font-family":           {},
	"font-size":             {},
	"font-style":            {},
	"font-variant":          {},
	"font-weight":           {},
	"height":                {},
	"letter-spacing":        {},
	"line-height":           {},
	"list-style":            {},
	"list-style-image":      {},
	"list-style-position":   {},
	"list-style-type":       {},
	"margin":                {},
	"margin-bottom":         {},
	"margin-left":           {},
	"margin-right":          {},
	"margin-top":            {},
	"max-height":            {},
	"max-width":             {},
	"min-height":            {},
	"min-width":             {},
	"overflow-wrap":         {},
	"padding":               {},
	"padding-bottom":        {},
	"padding-left":          {},
	"padding-right":         {},
	"padding-top":           {},
	"quotes":                {},
	"table-layout":          {},
	"text-align":            {},
	"text-decoration":       {},
	"text-indent":           {},
	"text-overflow":         {},
	"text-transform":        {},
	"unicode-bidi":          {},
	"vertical-align":        {},
	"white-space":           {},
	"width":                 {},
	"word-break":            {},
	"word-spacing":          {},
	"word-wrap":             {},
}

// filterStyle rewrites a style attribute value to the declarations the
// property whitelist permits, dropping malformed declarations up to
// the next top-level semicolon and continuing, per the forgiving
// declaration-list grammar of CSS style attributes. The surviving
// declarations are reserialized as "property: value; property: value".
// A tokenizer error (an unclosed string or comment) ends the scan: the
// declaration it appears in and everything after it are dropped.
// An empty result means the attribute is dropped.
func (p *policy) filterStyle(style string) string {
	sc := scanner.New(style)
	var toks []*scanner.Token
	for {
		t := sc.Next()
		if t.Type == scanner.TokenEOF || t.Type == scanner.TokenError {
			break
		}
		toks = append(toks, t)
	}

	var decls []string
	i := 0
	for i < len(toks) {
		t := toks[i]
		switch {
		case t.Type == scanner.TokenS || t.Type == scanner.TokenComment ||
			t.Type == scanner.TokenBOM || t.Type == scanner.TokenCDO ||
			t.Type == scanner.TokenCDC:
			i++
		case t.Type == scanner.TokenChar && t.Value == ";":
			i++
		case t.Type == scanner.TokenAtKeyword:
			// No at-rule is valid in a style attribute; skip it and
			// keep parsing whatever follows.
			i = skipStyleDeclaration(toks, i+1)
		case t.Type == scanner.TokenIdent:
			name := strings.ToLower(t.Value)
			j := i + 1
			for j < len(toks) && (toks[j].Type == scanner.TokenS || toks[j].Type == scanner.TokenComment) {
				j++
			}
			if j >= len(toks) || toks[j].Type != scanner.TokenChar || toks[j].Value != ":" {
				i = skipStyleDeclaration(toks, j)
				continue
			}
			value, next, ok := p.scanStyleValue(toks, j+1)
			i = next
			if !ok {
				continue
			}
			if _, safe := safeStyleProperties[name]; safe && value != "" {
				decls = append(decls, name+": "+value)
			}
		default:
			i = skipStyleDeclaration(toks, i+1)
		}
	}
	return strings.Join(decls, "; ")
}

// scanStyleValue collects a declaration value up to the top-level
// semicolon or the end of input. ok is false when the value contains a
// construct that cannot be kept (a rejected url, a bare quote, a
// malformed url( function, an embedded block).
func (p *policy) scanStyleValue(toks []*scanner.Token, i int) (value string, next int, ok bool) {
	var sb strings.Builder
	depth := 0
	pendingSpace := false
	flushSpace := func() {
		if pendingSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false
	}
	for ; i < len(toks); i++ {
		t := toks[i]
		switch t.Type {
		case scanner.TokenS:
			pendingSpace = true
		case scanner.TokenComment:
			// dropped from the canonical form
		case scanner.TokenChar:
			switch t.Value {
			case ";":
				if depth == 0 {
					return strings.TrimSpace(sb.String()), i + 1, true
				}
				flushSpace()
				sb.WriteString(t.Value)
			case "(":
				depth++
				flushSpace()
				sb.WriteString(t.Value)
			case ")":
				depth--
				sb.WriteString(t.Value)
				pendingSpace = false
			case "{":
				// A block is never valid in a declaration value.
				return "", skipStyleDeclaration(toks, i), false
			case `"`, "'":
				// A bare quote means the tokenizer could not form a
				// string; the declaration is unparseable.
				return "", skipStyleDeclaration(toks, i), false
			default:
				flushSpace()
				sb.WriteString(t.Value)
			}
		case scanner.TokenFunction:
			if strings.EqualFold(t.Value, "url(") {
				// A url( that failed to scan as a complete url token
				// is malformed.
				return "", skipStyleDeclaration(toks, i), false
			}
			depth++
			flushSpace()
			sb.WriteString(t.Value)
		case scanner.TokenURI:
			rewritten, keep := p.rewriteStyleURL(t.Value)
			if !keep {
				return "", skipStyleDeclaration(toks, i), false
			}
			flushSpace()
			sb.WriteString(rewritten)
		default:
			flushSpace()
			sb.WriteString(t.Value)
		}
	}
	return strings.TrimSpace(sb.String()), len(toks), true
}

// skipStyleDeclaration advances past a malformed or filtered-out
// declaration: to just after the next top-level semicolon, or past a
// balanced brace block, or to the end of input.
func skipStyleDeclaration(toks []*scanner.Token, i int) int {
	braces := 0
	for ; i < len(toks); i++ {
		t := toks[i]
		if t.Type != scanner.TokenChar {
			continue
		}
		switch t.Value {
		case "{":
			braces++
		case "}":
			braces--
			if braces <= 0 {
				return i + 1
			}
		case ";":
			if braces == 0 {
				return i + 1
			}
		}
	}
	return i
}

// rewriteStyleURL routes one css url(...) token through the URL
// classifier, rebuilding the token when the classifier rewrote the
// URL.
func (p *policy) rewriteStyleURL(token string) (string, bool) {
	inner := strings.TrimSpace(token[len("url(") : len(token)-1])
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
		inner = inner[1 : len(inner)-1]
	}
	cleaned, ok := p.classifyURL(inner)
	if !ok {
		return "", false
	}
	if cleaned == inner {
		return token, true
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(cleaned)
	return `url("` + escaped + `")`, true
}
