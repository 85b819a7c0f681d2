package purify_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htmlpurify/purify"
)

func mustClean(t *testing.T, b *purify.Builder, input string) string {
	t.Helper()
	doc, err := b.Clean(input)
	require.NoError(t, err)
	return doc.String()
}

func TestClean_DefaultPolicy(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"allowed tag kept", "<b>hello</b>", "<b>hello</b>"},
		{"script subtree removed", "<script>alert(1)</script>text", "text"},
		{"style subtree removed", "<style>p{color:red}</style>text", "text"},
		{"js href dropped rel injected", `<a href="javascript:alert(1)">x</a>`, `<a rel="noopener noreferrer">x</a>`},
		{"http href kept", `<a href="http://e.com">x</a>`, `<a href="http://e.com" rel="noopener noreferrer">x</a>`},
		{"void element", "<br>", "<br>"},
		{"unknown element unwrapped", "<custom><b>x</b></custom>", "<b>x</b>"},
		{"comment stripped", "<!-- c --><p>hi</p>", "<p>hi</p>"},
		{"included angles escaped", "1 < 2", "1 &lt; 2"},
		{"ampersand escaped", "a & b", "a &amp; b"},
		{"unclosed tag rebalanced", "<b>AWESOME!", "<b>AWESOME!</b>"},
		{"event handler dropped", `an <a onclick="evil()" href="http://www.google.com">evil</a> example`,
			`an <a href="http://www.google.com" rel="noopener noreferrer">evil</a> example`},
		{"entity encoded scheme dropped",
			"<a href=\"&#x6A&#x61&#x76&#x61&#x73&#x63&#x72&#x69&#x70&#x74&#x3A&#x61&#x6C&#x65&#x72&#x74&#x28&#x27&#x58&#x53&#x53&#x27&#x29\">Click me!</a>",
			`<a rel="noopener noreferrer">Click me!</a>`},
		{"disallowed attribute removed", `<table border="1"><tr></tr></table>`,
			"<table><tbody><tr></tr></tbody></table>"},
		{"quote in attribute escaped", `<b title='"'>contents</b>`, `<b title="&quot;">contents</b>`},
		{"children of bad element kept", "<bad><evil>a</evil>b</bad>", "ab"},
		{"relative url passed through", "<a href=test>Test</a>", `<a href="test" rel="noopener noreferrer">Test</a>`},
		{"inbound rel replaced", `<a href=test rel="garbage">Test</a>`, `<a href="test" rel="noopener noreferrer">Test</a>`},
		{"data uri image dropped", `<img src="data:text/html,x">`, "<img>"},
		{"doctype ignored", "<!DOCTYPE html>x", "x"},
		{"svg subtree removed", "<svg><circle></circle>inside</svg>after", "after"},
		{"mathml subtree removed", "<math><mi>x</mi></math>y", "y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, purify.Clean(tt.input))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{
		"<b>hello</b>",
		`<a href="javascript:alert(1)">x</a>`,
		`<a href="http://e.com">x</a>`,
		"<custom><b>x</b></custom>",
		"<!-- c --><p>hi</p>",
		"1 < 2 & 3 > 2",
		`<table border="1"><tr><td colspan="2">x</td></tr></table>`,
		"<bad><evil>a</evil>b</bad>",
		"<svg><circle></circle>inside</svg>after",
		`<img src="http://e.com/a.png" alt="a"><br><hr>`,
	}
	for _, input := range inputs {
		once := purify.Clean(input)
		twice := purify.Clean(once)
		assert.Equal(t, once, twice, "input %q", input)
	}
}

func TestClean_WhitelistSoundness(t *testing.T) {
	// Every element name present in the output must be a whitelisted
	// tag; <b> is the only whitelisted element in the input, so the
	// whole output is compared.
	out := purify.Clean(`<iframe src=x></iframe><object data=y></object><form action=z><input></form><b>ok</b>`)
	assert.Equal(t, "<b>ok</b>", out)
}

func TestClean_UnwrapPromotesToGrandparent(t *testing.T) {
	// The unwrapped element's children are judged against its parent.
	out := purify.Clean("<p><strike-through><b>x</b></strike-through></p>")
	assert.Equal(t, "<p><b>x</b></p>", out)
}

func TestCleanContentTags_Custom(t *testing.T) {
	b := purify.NewBuilder().AddCleanContentTags("textarea")
	assert.Equal(t, "y", mustClean(t, b, "<textarea>x</textarea>y"))
}

func TestLinkRel_DisabledKeepsWhitelistedRel(t *testing.T) {
	b := purify.NewBuilder().LinkRel("").AddTagAttributes("a", "rel")
	assert.Equal(t, `<a href="test" rel="nofollow">x</a>`,
		mustClean(t, b, `<a href=test rel="nofollow">x</a>`))
	assert.Equal(t, `<a href="test">x</a>`,
		mustClean(t, purify.NewBuilder().LinkRel(""), `<a href=test rel="nofollow">x</a>`))
}

func TestStripComments_Disabled(t *testing.T) {
	b := purify.NewBuilder().StripComments(false)
	assert.Equal(t, "<!-- yes -->", mustClean(t, b, "<!-- yes -->"))
}

func TestIDPrefix(t *testing.T) {
	b := purify.NewBuilder().AddGenericAttributes("id").IDPrefix("user-content-")
	assert.Equal(t, `<p id="user-content-intro">x</p>`, mustClean(t, b, `<p id="intro">x</p>`))

	// empty ids stay empty, and the prefix is never doubled
	assert.Equal(t, `<p id="">x</p>`, mustClean(t, b, `<p id="">x</p>`))
	once := mustClean(t, b, `<p id="intro">x</p>`)
	assert.Equal(t, once, mustClean(t, b, once))
}

func TestAllowedClasses(t *testing.T) {
	b := purify.NewBuilder().
		LinkRel("").
		AllowedClasses("p", "foo", "bar").
		AllowedClasses("a", "baz")
	got := mustClean(t, b, `<p class="foo bar"><a class="baz bleh">Hey</a></p>`)
	assert.Equal(t, `<p class="foo bar"><a class="baz">Hey</a></p>`, got)
}

func TestAllowedClasses_EmptyResultDropsAttribute(t *testing.T) {
	b := purify.NewBuilder().AllowedClasses("p", "x")
	assert.Equal(t, "<p>t</p>", mustClean(t, b, `<p class="y z">t</p>`))
}

func TestGenericAttributePrefixes(t *testing.T) {
	b := purify.NewBuilder().AddGenericAttributePrefixes("data-")
	got := mustClean(t, b, `<b data-foo="1" onclick="x" data-bar="2">t</b>`)
	assert.Equal(t, `<b data-foo="1" data-bar="2">t</b>`, got)
}

func TestTagAttributeValues(t *testing.T) {
	b := purify.NewBuilder().
		AddTagAttributes("ol", "type").
		AddTagAttributeValues("ol", "type", "1", "a")
	assert.Equal(t, `<ol type="a"><li>x</li></ol>`, mustClean(t, b, `<ol type="a"><li>x</li></ol>`))
	assert.Equal(t, `<ol><li>x</li></ol>`, mustClean(t, b, `<ol type="I"><li>x</li></ol>`))
}

func TestSetTagAttributeValue(t *testing.T) {
	b := purify.NewBuilder().SetTagAttributeValue("a", "target", "_blank")
	got := mustClean(t, b, `<a href="http://e.com">x</a>`)
	assert.Equal(t, `<a href="http://e.com" rel="noopener noreferrer" target="_blank">x</a>`, got)

	// inbound values are overwritten and the attribute moves to the end
	b = purify.NewBuilder().
		AddTagAttributes("img", "loading").
		SetTagAttributeValue("img", "loading", "lazy")
	assert.Equal(t, `<img alt="a" loading="lazy">`,
		mustClean(t, b, `<img loading="eager" alt="a">`))
}

func TestSetTagAttributeValue_GenericTag(t *testing.T) {
	b := purify.NewBuilder().SetTagAttributeValue(purify.GenericTag, "data-clean", "1")
	assert.Equal(t, `<b data-clean="1">x</b>`, mustClean(t, b, "<b>x</b>"))
}

func TestAttributeFilter(t *testing.T) {
	b := purify.NewBuilder().AttributeFilter(
		func(element, attribute, value string) (string, bool) {
			if element == "img" && attribute == "src" {
				return "", false
			}
			if attribute == "title" {
				return strings.ToUpper(value), true
			}
			return value, true
		})
	assert.Equal(t, `<img alt="pic">`, mustClean(t, b, `<img src="http://e.com/a.png" alt="pic">`))
	assert.Equal(t, `<b title="HI">x</b>`, mustClean(t, b, `<b title="hi">x</b>`))
}

func TestObjectDataAttribute(t *testing.T) {
	// data is a URL attribute on <object> only; elsewhere it is an
	// ordinary attribute.
	b := purify.NewBuilder().
		Tags("span", "object").
		GenericAttributes("data")
	got := mustClean(t, b, `<span data="javascript:evil()">Test</span><object data="javascript:evil()"></object>M`)
	assert.Equal(t, `<span data="javascript:evil()">Test</span><object></object>M`, got)
}

func TestForeignContent_Unwrap(t *testing.T) {
	b := purify.NewBuilder().StripForeignElements(false)
	assert.Equal(t, "insideafter", mustClean(t, b, "<svg><circle></circle>inside</svg>after"))
}

func TestStrictBuilder(t *testing.T) {
	b := purify.StrictBuilder()
	assert.Equal(t, "<b>ok</b>gone", mustClean(t, b, `<b onclick=x>ok</b><div>gone</div>`))
	assert.Equal(t, "x", mustClean(t, b, `<a href="https://e.com">x</a>`))
}

func TestCleanFromReader(t *testing.T) {
	b := purify.NewBuilder()
	doc, err := b.CleanFromReader(strings.NewReader("an <script>evil()</script> example"))
	require.NoError(t, err)
	assert.Equal(t, "an  example", doc.String())
}

func TestDocument_WriteTo(t *testing.T) {
	doc, err := purify.NewBuilder().Clean("<b>hello</b> & more")
	require.NoError(t, err)
	var buf bytes.Buffer
	n, err := doc.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "<b>hello</b> &amp; more", buf.String())
	assert.Equal(t, int64(buf.Len()), n)
}

func TestDocument_NodeRoundTrip(t *testing.T) {
	doc, err := purify.NewBuilder().Clean("<b>x</b>")
	require.NoError(t, err)
	again := purify.DocumentFromNode(doc.Node())
	assert.Equal(t, doc.String(), again.String())
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a&#32;&lt;b&gt;&#32;&quot;c&quot;&#32;&amp;&#32;&#39;d&#39;", purify.CleanText(`a <b> "c" & 'd'`))
	assert.Equal(t, "", purify.CleanText(""))
	assert.Equal(t, "tab&#9;nl&#10;", purify.CleanText("tab\tnl\n"))
}

func TestClean_DeeplyNested(t *testing.T) {
	const depth = 10000
	input := strings.Repeat("<div>", depth) + "x" + strings.Repeat("</div>", depth)
	out := purify.Clean(input)
	assert.Equal(t, depth, strings.Count(out, "<div>"))
	assert.Equal(t, depth, strings.Count(out, "</div>"))
	assert.Contains(t, out, "x")
}

func TestClean_ConcurrentUse(t *testing.T) {
	b := purify.NewBuilder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				doc, err := b.Clean(`<a href="javascript:x">y</a><b>z</b>`)
				if assert.NoError(t, err) {
					assert.Equal(t, `<a rel="noopener noreferrer">y</a><b>z</b>`, doc.String())
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkClean(b *testing.B) {
	input := strings.Repeat(`<p>Hello <b>world</b> <script>bad()</script> <a href="http://x.com">link</a></p>`, 100)
	builder := purify.NewBuilder()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = builder.Clean(input)
	}
}

func BenchmarkClean_DeepNesting(b *testing.B) {
	input := strings.Repeat("<div>", 5000) + "x" + strings.Repeat("</div>", 5000)
	builder := purify.NewBuilder()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = builder.Clean(input)
	}
}
