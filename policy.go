package purify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// GenericTag is the map key that makes a per-tag entry apply to every
// tag, e.g. Builder.TagAttributes(map[string][]string{GenericTag: {"dir"}}).
const GenericTag = "*"

// ErrPolicy is wrapped by every configuration error reported from
// Clean and CleanFromReader. Test with errors.Is.
var ErrPolicy = errors.New("purify: invalid policy")

// AttributeFilter is a per-attribute callback applied after all other
// attribute rules. It receives the element's tag name, the attribute
// name, and the attribute value that survived filtering, and returns
// the replacement value. Returning ok=false drops the attribute.
type AttributeFilter func(element, attribute, value string) (string, bool)

// Builder accumulates a sanitization policy through chainable setters
// and applies it with Clean or CleanFromReader.
//
// The zero value keeps no elements and no attributes, but does not
// strip comments; NewBuilder returns the default policy.
// A Builder must not be mutated once it is in use, but it may then be
// shared by any number of concurrent Clean calls.
type Builder struct {
	tags            map[string]struct{}
	cleanContent    map[string]struct{}
	tagAttrs        map[string]map[string]struct{}
	tagAttrValues   map[string]map[string]map[string]struct{}
	setTagAttrs     map[string][]setAttrValue
	genericAttrs    map[string]struct{}
	genericPrefixes []string
	urlSchemes      map[string]struct{}
	urlRelative     URLRelative
	linkRel         string
	allowedClasses  map[string]map[string]struct{}
	stripComments   bool
	idPrefix        string
	attrFilter      AttributeFilter
	unwrapForeign   bool
}

// setAttrValue is one unconditionally injected attribute. Within one
// tag key, injection order follows the order of SetTagAttributeValue
// calls.
type setAttrValue struct {
	attr  string
	value string
}

// NewBuilder returns the conservative "safe rich text" policy:
// common structural and inline tags, the per-tag attribute map and URL
// schemes of the HTML spec's benign subset, rel="noopener noreferrer"
// on links, comments stripped, script and style subtrees removed, and
// relative URLs passed through unchanged.
func NewBuilder() *Builder {
	b := &Builder{
		urlRelative:   URLRelativePassThrough,
		linkRel:       "noopener noreferrer",
		stripComments: true,
	}
	b.Tags(
		"a", "abbr", "acronym", "area", "article", "aside", "b", "bdi",
		"bdo", "blockquote", "br", "caption", "center", "cite", "code",
		"col", "colgroup", "data", "dd", "del", "details", "dfn", "div",
		"dl", "dt", "em", "figcaption", "figure", "footer", "h1", "h2",
		"h3", "h4", "h5", "h6", "header", "hgroup", "hr", "i", "img",
		"ins", "kbd", "li", "map", "mark", "nav", "ol", "p", "pre",
		"q", "rp", "rt", "rtc", "ruby", "s", "samp", "small", "span",
		"strike", "strong", "sub", "summary", "sup", "table", "tbody",
		"td", "th", "thead", "time", "tr", "tt", "u", "ul", "var", "wbr",
	)
	b.CleanContentTags("script", "style")
	b.TagAttributes(map[string][]string{
		"a":          {"href", "hreflang"},
		"bdo":        {"dir"},
		"blockquote": {"cite"},
		"col":        {"align", "char", "charoff", "span"},
		"colgroup":   {"align", "char", "charoff", "span"},
		"del":        {"cite", "datetime"},
		"hr":         {"align", "size", "width"},
		"img":        {"align", "alt", "height", "src", "width"},
		"ins":        {"cite", "datetime"},
		"ol":         {"start"},
		"q":          {"cite"},
		"table":      {"align", "char", "charoff", "summary"},
		"tbody":      {"align", "char", "charoff"},
		"td":         {"align", "char", "charoff", "colspan", "headers", "rowspan"},
		"tfoot":      {"align", "char", "charoff"},
		"th":         {"align", "char", "charoff", "colspan", "headers", "rowspan"},
		"thead":      {"align", "char", "charoff"},
		"tr":         {"align", "char", "charoff"},
	})
	b.GenericAttributes("lang", "title")
	b.URLSchemes(
		"bitcoin", "ftp", "ftps", "geo", "http", "https", "im", "irc",
		"ircs", "magnet", "mailto", "mms", "news", "nntp", "openpgp4fpr",
		"sip", "sms", "smsto", "ssh", "tel", "url", "webcal", "wtai",
		"xmpp",
	)
	return b
}

// StrictBuilder returns a minimal policy allowing only basic inline
// formatting with no attributes at all. Suitable for comment sections
// and other short user-generated text.
func StrictBuilder() *Builder {
	b := &Builder{
		urlRelative:   URLRelativeDeny,
		stripComments: true,
	}
	b.Tags("b", "br", "code", "em", "i", "p", "strong", "u")
	b.CleanContentTags("script", "style")
	b.URLSchemes("https")
	return b
}

// Tags replaces the set of element tags that are kept and descended
// into. Elements outside this set are unwrapped (their children are
// promoted) unless listed in CleanContentTags.
func (b *Builder) Tags(tags ...string) *Builder {
	b.tags = make(map[string]struct{}, len(tags))
	return b.AddTags(tags...)
}

// AddTags adds tags to the kept set.
func (b *Builder) AddTags(tags ...string) *Builder {
	if b.tags == nil {
		b.tags = make(map[string]struct{}, len(tags))
	}
	for _, t := range tags {
		b.tags[strings.ToLower(t)] = struct{}{}
	}
	return b
}

// RemoveTags removes tags from the kept set.
func (b *Builder) RemoveTags(tags ...string) *Builder {
	for _, t := range tags {
		delete(b.tags, strings.ToLower(t))
	}
	return b
}

// CleanContentTags replaces the set of tags whose elements are removed
// together with their entire subtree, including descendant text.
func (b *Builder) CleanContentTags(tags ...string) *Builder {
	b.cleanContent = make(map[string]struct{}, len(tags))
	return b.AddCleanContentTags(tags...)
}

// AddCleanContentTags adds tags to the remove-with-subtree set.
func (b *Builder) AddCleanContentTags(tags ...string) *Builder {
	if b.cleanContent == nil {
		b.cleanContent = make(map[string]struct{}, len(tags))
	}
	for _, t := range tags {
		b.cleanContent[strings.ToLower(t)] = struct{}{}
	}
	return b
}

// RemoveCleanContentTags removes tags from the remove-with-subtree set.
func (b *Builder) RemoveCleanContentTags(tags ...string) *Builder {
	for _, t := range tags {
		delete(b.cleanContent, strings.ToLower(t))
	}
	return b
}

// TagAttributes replaces the per-tag attribute whitelist. The
// GenericTag key applies its attributes to every tag.
func (b *Builder) TagAttributes(attrs map[string][]string) *Builder {
	b.tagAttrs = make(map[string]map[string]struct{}, len(attrs))
	for tag, names := range attrs {
		b.AddTagAttributes(tag, names...)
	}
	return b
}

// AddTagAttributes adds allowed attributes for one tag.
func (b *Builder) AddTagAttributes(tag string, attrs ...string) *Builder {
	if b.tagAttrs == nil {
		b.tagAttrs = make(map[string]map[string]struct{})
	}
	tag = strings.ToLower(tag)
	set := b.tagAttrs[tag]
	if set == nil {
		set = make(map[string]struct{}, len(attrs))
		b.tagAttrs[tag] = set
	}
	for _, a := range attrs {
		set[strings.ToLower(a)] = struct{}{}
	}
	return b
}

// AddTagAttributeValues restricts an attribute on a tag to a set of
// literal values; any other value drops the attribute. The GenericTag
// key applies the restriction on every tag.
func (b *Builder) AddTagAttributeValues(tag, attr string, values ...string) *Builder {
	if b.tagAttrValues == nil {
		b.tagAttrValues = make(map[string]map[string]map[string]struct{})
	}
	tag, attr = strings.ToLower(tag), strings.ToLower(attr)
	byAttr := b.tagAttrValues[tag]
	if byAttr == nil {
		byAttr = make(map[string]map[string]struct{})
		b.tagAttrValues[tag] = byAttr
	}
	set := byAttr[attr]
	if set == nil {
		set = make(map[string]struct{}, len(values))
		byAttr[attr] = set
	}
	for _, v := range values {
		set[v] = struct{}{}
	}
	return b
}

// SetTagAttributeValue unconditionally sets an attribute on every kept
// element of the given tag, overwriting any inbound value. Injected
// attributes serialize after the surviving input attributes: first the
// entries for the element's own tag, then the GenericTag entries, each
// group in the order its SetTagAttributeValue calls were made. The
// GenericTag key injects on every tag.
func (b *Builder) SetTagAttributeValue(tag, attr, value string) *Builder {
	if b.setTagAttrs == nil {
		b.setTagAttrs = make(map[string][]setAttrValue)
	}
	tag, attr = strings.ToLower(tag), strings.ToLower(attr)
	for i, sv := range b.setTagAttrs[tag] {
		if sv.attr == attr {
			b.setTagAttrs[tag][i].value = value
			return b
		}
	}
	b.setTagAttrs[tag] = append(b.setTagAttrs[tag], setAttrValue{attr: attr, value: value})
	return b
}

// GenericAttributes replaces the set of attributes allowed on every
// kept tag.
func (b *Builder) GenericAttributes(attrs ...string) *Builder {
	b.genericAttrs = make(map[string]struct{}, len(attrs))
	return b.AddGenericAttributes(attrs...)
}

// AddGenericAttributes adds attributes allowed on every kept tag.
func (b *Builder) AddGenericAttributes(attrs ...string) *Builder {
	if b.genericAttrs == nil {
		b.genericAttrs = make(map[string]struct{}, len(attrs))
	}
	for _, a := range attrs {
		b.genericAttrs[strings.ToLower(a)] = struct{}{}
	}
	return b
}

// GenericAttributePrefixes replaces the set of name prefixes that
// allow an attribute on any kept tag, e.g. "data-".
func (b *Builder) GenericAttributePrefixes(prefixes ...string) *Builder {
	b.genericPrefixes = nil
	return b.AddGenericAttributePrefixes(prefixes...)
}

// AddGenericAttributePrefixes adds allowed attribute-name prefixes.
func (b *Builder) AddGenericAttributePrefixes(prefixes ...string) *Builder {
	for _, p := range prefixes {
		b.genericPrefixes = append(b.genericPrefixes, strings.ToLower(p))
	}
	return b
}

// URLSchemes replaces the set of schemes permitted in URL-valued
// attributes. Scheme matching is case-insensitive.
func (b *Builder) URLSchemes(schemes ...string) *Builder {
	b.urlSchemes = make(map[string]struct{}, len(schemes))
	return b.AddURLSchemes(schemes...)
}

// AddURLSchemes adds permitted URL schemes.
func (b *Builder) AddURLSchemes(schemes ...string) *Builder {
	if b.urlSchemes == nil {
		b.urlSchemes = make(map[string]struct{}, len(schemes))
	}
	for _, s := range schemes {
		b.urlSchemes[strings.ToLower(s)] = struct{}{}
	}
	return b
}

// URLRelative sets the handling of relative URLs in URL-valued
// attributes. The default for NewBuilder is URLRelativePassThrough.
func (b *Builder) URLRelative(policy URLRelative) *Builder {
	b.urlRelative = policy
	return b
}

// LinkRel sets the rel value forced onto every kept <a> element. The
// empty string disables rel injection, allowing an inbound rel
// attribute to be whitelisted instead.
func (b *Builder) LinkRel(rel string) *Builder {
	b.linkRel = rel
	return b
}

// AllowedClasses switches the class attribute on the given tag into
// filter mode: class is accepted on the tag, its value is split on
// ASCII whitespace, and only the listed tokens are kept. Configuring
// this together with class in TagAttributes or GenericAttributes is a
// configuration error.
func (b *Builder) AllowedClasses(tag string, classes ...string) *Builder {
	if b.allowedClasses == nil {
		b.allowedClasses = make(map[string]map[string]struct{})
	}
	tag = strings.ToLower(tag)
	set := b.allowedClasses[tag]
	if set == nil {
		set = make(map[string]struct{}, len(classes))
		b.allowedClasses[tag] = set
	}
	for _, c := range classes {
		set[c] = struct{}{}
	}
	return b
}

// StripComments sets whether comment nodes are removed. NewBuilder
// defaults to true.
func (b *Builder) StripComments(strip bool) *Builder {
	b.stripComments = strip
	return b
}

// IDPrefix sets a prefix prepended to every surviving id attribute
// value. Empty id values stay empty, and a value already carrying the
// prefix is not prefixed again.
func (b *Builder) IDPrefix(prefix string) *Builder {
	b.idPrefix = prefix
	return b
}

// AttributeFilter installs a callback invoked for every attribute that
// survived all other rules. See AttributeFilter.
func (b *Builder) AttributeFilter(f AttributeFilter) *Builder {
	b.attrFilter = f
	return b
}

// StripForeignElements controls SVG and MathML content. When true (the
// default) foreign elements are removed together with their subtree;
// when false they are unwrapped and their children re-enter the HTML
// whitelist.
func (b *Builder) StripForeignElements(strip bool) *Builder {
	b.unwrapForeign = !strip
	return b
}

// policy is the frozen form of a Builder consumed by one Clean call.
// It shares the Builder's maps, so it is immutable exactly as long as
// the Builder is no longer mutated.
type policy struct {
	*Builder

	urlBase     *url.URL // RewriteWithBase target
	urlRoot     *url.URL // RewriteWithRoot target for "/"-prefixed input
	urlRootPath *url.URL // RewriteWithRoot target for other relative input
}

// compile validates the accumulated configuration and resolves the
// relative-URL rewrite targets.
func (b *Builder) compile() (*policy, error) {
	for tag := range b.cleanContent {
		if _, ok := b.tags[tag]; ok {
			return nil, fmt.Errorf("%w: tag %q in both Tags and CleanContentTags", ErrPolicy, tag)
		}
	}
	if b.linkRel != "" {
		if b.attrInSets("rel", "a") {
			return nil, fmt.Errorf("%w: rel attribute whitelisted while LinkRel is set; call LinkRel(\"\") first", ErrPolicy)
		}
	}
	for tag := range b.allowedClasses {
		if b.attrInSets("class", tag) {
			return nil, fmt.Errorf("%w: class attribute whitelisted on %q while AllowedClasses is set for it", ErrPolicy, tag)
		}
	}

	p := &policy{Builder: b}
	switch b.urlRelative.mode {
	case urlCustom:
		if b.urlRelative.eval == nil {
			return nil, fmt.Errorf("%w: URLRelativeCustom needs a non-nil evaluator", ErrPolicy)
		}
	case urlRewriteBase:
		base, err := url.Parse(b.urlRelative.base)
		if err != nil || !base.IsAbs() {
			return nil, fmt.Errorf("%w: RewriteWithBase needs an absolute base URL, got %q", ErrPolicy, b.urlRelative.base)
		}
		p.urlBase = base
	case urlRewriteRoot:
		root, err := url.Parse(ensureTrailingSlash(b.urlRelative.root))
		if err != nil || !root.IsAbs() {
			return nil, fmt.Errorf("%w: RewriteWithRoot needs an absolute root URL, got %q", ErrPolicy, b.urlRelative.root)
		}
		p.urlRoot = root
		p.urlRootPath = root
		if path := b.urlRelative.path; path != "" {
			rel, err := url.Parse(ensureTrailingSlash(strings.TrimPrefix(path, "/")))
			if err != nil {
				return nil, fmt.Errorf("%w: RewriteWithRoot path %q", ErrPolicy, path)
			}
			p.urlRootPath = root.ResolveReference(rel)
		}
	}
	return p, nil
}

// attrInSets reports whether attr is reachable on tag through the
// generic set or the per-tag whitelist (including the GenericTag key).
func (b *Builder) attrInSets(attr, tag string) bool {
	if _, ok := b.genericAttrs[attr]; ok {
		return true
	}
	if set, ok := b.tagAttrs[tag]; ok {
		if _, ok := set[attr]; ok {
			return true
		}
	}
	if set, ok := b.tagAttrs[GenericTag]; ok {
		if _, ok := set[attr]; ok {
			return true
		}
	}
	return false
}

// attrAllowed applies step 2 of the attribute pipeline: membership in
// the per-tag or generic whitelists, or a generic prefix match.
func (p *policy) attrAllowed(tag, attr string) bool {
	if p.attrInSets(attr, tag) {
		return true
	}
	for _, pre := range p.genericPrefixes {
		if strings.HasPrefix(attr, pre) {
			return true
		}
	}
	return false
}

// allowedValues returns the literal-value restriction for (tag, attr),
// if any, consulting the GenericTag key as well.
func (p *policy) allowedValues(tag, attr string) (map[string]struct{}, bool) {
	if byAttr, ok := p.tagAttrValues[tag]; ok {
		if set, ok := byAttr[attr]; ok {
			return set, true
		}
	}
	if byAttr, ok := p.tagAttrValues[GenericTag]; ok {
		if set, ok := byAttr[attr]; ok {
			return set, true
		}
	}
	return nil, false
}

// injectedAttrs returns the SetTagAttributeValue entries for a tag:
// tag-specific entries first, then GenericTag ones.
func (p *policy) injectedAttrs(tag string) []setAttrValue {
	specific := p.setTagAttrs[tag]
	generic := p.setTagAttrs[GenericTag]
	if len(generic) == 0 {
		return specific
	}
	out := make([]setAttrValue, 0, len(specific)+len(generic))
	out = append(out, specific...)
	for _, g := range generic {
		dup := false
		for _, s := range specific {
			if s.attr == g.attr {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, g)
		}
	}
	return out
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
