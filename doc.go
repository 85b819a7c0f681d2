// Package purify is a whitelist-based HTML sanitizer for rendering
// untrusted fragments (comments, markdown output, wiki text) inside a
// trusted page. It parses input with the standard
// golang.org/x/net/html tree builder, rewrites the resulting node tree
// so that it contains only elements, attributes, URL schemes, and CSS
// constructs a policy explicitly permits, and serializes the result
// back to an HTML fragment.
//
// # Overview
//
// Sanitization is a three-step pipeline: parse the fragment in a body
// context, walk the tree applying the policy, and serialize. Because
// the input goes through a real HTML5 parser first, syntactic
// obfuscation (unclosed tags, entity-encoded scheme names, misnested
// markup) is normalized away before any policy decision is made.
//
// # Policies
//
// A [Builder] accumulates the policy with chainable setters:
//   - Which element tags are kept ([Builder.Tags]) and which are
//     removed together with their entire subtree
//     ([Builder.CleanContentTags]); everything else is unwrapped,
//     keeping its children.
//   - Which attributes survive, per tag ([Builder.TagAttributes]), on
//     every tag ([Builder.GenericAttributes]), or by name prefix
//     ([Builder.GenericAttributePrefixes]).
//   - Which URL schemes are allowed in URL-valued attributes
//     ([Builder.URLSchemes]) and what happens to relative URLs
//     ([Builder.URLRelative]).
//   - Class-token filtering ([Builder.AllowedClasses]), style-attribute
//     filtering against a fixed safe-property list, comment stripping,
//     id prefixing, rel injection on links, and a final per-attribute
//     callback ([Builder.AttributeFilter]).
//
// [NewBuilder] returns a conservative "safe rich text" policy.
// [StrictBuilder] allows only minimal inline formatting.
//
// # Security
//
// purify defends against script injection via disallowed elements and
// event-handler attributes, URL-scheme attacks such as javascript: and
// data: URLs (including entity-encoded forms, which the parser decodes
// before the scheme check), CSS-based exfiltration through style
// attributes, and reverse tabnabbing via rel-less links. Output is safe
// under re-parsing by any conformant HTML5 parser; it makes no promise
// about renderers that disagree with the standard parsing algorithm.
//
// # Thread Safety
//
// A Builder must not be mutated concurrently with use, but any number
// of goroutines may call [Builder.Clean] or [Builder.CleanFromReader]
// on the same Builder once configuration is done. Each call owns its
// parse tree; no state is shared between calls.
//
// # Example
//
//	clean := purify.Clean(`<a href="javascript:alert(1)" onclick=pwn>hi</a>`)
//	// clean == `<a rel="noopener noreferrer">hi</a>`
package purify
