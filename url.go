package purify

import (
	"net/url"
	"strings"
)

// URLRelativeEvaluate decides the fate of one relative URL under
// URLRelativeCustom. It returns the replacement value, or ok=false to
// drop the attribute carrying the URL.
type URLRelativeEvaluate func(url string) (string, bool)

type urlRelativeMode int

const (
	urlDeny urlRelativeMode = iota
	urlPassThrough
	urlRewriteBase
	urlRewriteRoot
	urlCustom
)

// URLRelative is the policy for URLs that do not carry a scheme,
// including scheme-relative (//host/...) and fragment-only (#foo)
// references. Absolute URLs are never affected; they are only checked
// against the scheme whitelist.
type URLRelative struct {
	mode urlRelativeMode
	base string
	root string
	path string
	eval URLRelativeEvaluate
}

// URLRelativeDeny drops every attribute holding a relative URL.
var URLRelativeDeny = URLRelative{mode: urlDeny}

// URLRelativePassThrough keeps relative URLs unchanged.
var URLRelativePassThrough = URLRelative{mode: urlPassThrough}

// URLRelativeRewriteWithBase resolves every relative URL against base
// and emits the absolute result. base must parse as an absolute URL;
// that is checked when the policy is first used.
func URLRelativeRewriteWithBase(base string) URLRelative {
	return URLRelative{mode: urlRewriteBase, base: base}
}

// URLRelativeRewriteWithRoot resolves root-relative URLs (leading "/")
// against root, and all other relative URLs against path joined to
// root. root must parse as an absolute URL.
func URLRelativeRewriteWithRoot(root, path string) URLRelative {
	return URLRelative{mode: urlRewriteRoot, root: root, path: path}
}

// URLRelativeCustom delegates relative URLs to eval.
func URLRelativeCustom(eval URLRelativeEvaluate) URLRelative {
	return URLRelative{mode: urlCustom, eval: eval}
}

// isURLAttr reports whether the HTML spec interprets the attribute's
// value as a URL. The set is fixed; it is not policy-configurable.
func isURLAttr(element, attr string) bool {
	switch attr {
	case "href", "src", "srcset", "cite", "action", "formaction",
		"poster", "longdesc", "usemap":
		return true
	case "data":
		return element == "object"
	}
	return false
}

// classifyURL tests one URL string against the scheme whitelist and
// the relative-URL policy. It returns the value to emit, which the
// rewrite modes may have changed, or ok=false to drop the attribute.
func (p *policy) classifyURL(value string) (string, bool) {
	value = strings.TrimSpace(value)
	u, err := url.Parse(value)
	if err != nil {
		// Unparseable values, including those smuggling control
		// characters past the scheme check, are dropped.
		return "", false
	}
	if u.Scheme != "" {
		if _, ok := p.urlSchemes[strings.ToLower(u.Scheme)]; ok {
			return value, true
		}
		return "", false
	}
	switch p.urlRelative.mode {
	case urlPassThrough:
		return value, true
	case urlRewriteBase:
		return p.urlBase.ResolveReference(u).String(), true
	case urlRewriteRoot:
		if strings.HasPrefix(value, "/") {
			rel, err := url.Parse(strings.TrimPrefix(value, "/"))
			if err != nil {
				return "", false
			}
			return p.urlRoot.ResolveReference(rel).String(), true
		}
		return p.urlRootPath.ResolveReference(u).String(), true
	case urlCustom:
		return p.urlRelative.eval(value)
	}
	return "", false
}

// classifySrcset filters a srcset attribute candidate by candidate.
// Rejected candidates are removed; the attribute is dropped only when
// nothing survives.
func (p *policy) classifySrcset(value string) (string, bool) {
	var kept []string
	for _, candidate := range strings.Split(value, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		u, ok := p.classifyURL(fields[0])
		if !ok {
			continue
		}
		if len(fields) > 1 {
			u += " " + strings.Join(fields[1:], " ")
		}
		kept = append(kept, u)
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, ", "), true
}
